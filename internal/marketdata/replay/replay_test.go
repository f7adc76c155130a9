package replay

import (
	"context"
	"testing"
	"time"

	"chart-indicators/internal/model"
)

var t0 = time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)

func mk(tf, i int, token string) model.Bar {
	return model.Bar{
		Token: token, Exchange: "CME", TF: tf,
		TS:    t0.Add(time.Duration(i*tf) * time.Second),
		Close: float64(i), Forming: true,
	}
}

func TestReplayer_OrdersAcrossTFs(t *testing.T) {
	store := NewMemoryStore([]model.Bar{
		mk(300, 1, "ES"), mk(60, 0, "ES"), mk(60, 6, "ES"),
		mk(300, 0, "ES"), mk(60, 3, "NQ"), mk(900, 0, "ES"),
	})

	out := make(chan model.Bar, 16)
	n, err := New(store).Run(context.Background(), []int{60, 300}, 0, 0, out)
	if err != nil {
		t.Fatal(err)
	}
	close(out)
	if n != 5 {
		t.Fatalf("emitted %d bars, want 5 (900s not requested)", n)
	}

	var prev time.Time
	for b := range out {
		if b.TS.Before(prev) {
			t.Errorf("bar %v emitted after %v", b.TS, prev)
		}
		if b.Forming {
			t.Error("replayed bars must be closed")
		}
		prev = b.TS
	}
}

func TestReplayer_FromTS(t *testing.T) {
	store := NewMemoryStore([]model.Bar{mk(60, 0, "ES"), mk(60, 1, "ES"), mk(60, 2, "ES")})
	out := make(chan model.Bar, 4)
	n, _ := New(store).Run(context.Background(), []int{60}, t0.Unix(), 0, out)
	if n != 2 {
		t.Errorf("emitted %d, want 2", n)
	}
}

func TestReplayer_Cancel(t *testing.T) {
	store := NewMemoryStore([]model.Bar{mk(60, 0, "ES"), mk(60, 1, "ES")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan model.Bar) // unbuffered, nobody reads
	n, err := New(store).Run(ctx, []int{60}, 0, 0, out)
	if err != context.Canceled || n != 0 {
		t.Errorf("got n=%d err=%v, want 0, context.Canceled", n, err)
	}
}

func TestMemoryStore_ReadBars(t *testing.T) {
	store := NewMemoryStore([]model.Bar{mk(60, 1, "ES"), mk(60, 0, "ES"), mk(60, 0, "NQ")})
	bars, _ := store.ReadBars("CME", "ES", 60, 0)
	if len(bars) != 2 || !bars[0].TS.Equal(t0) {
		t.Errorf("ReadBars = %+v", bars)
	}
}
