package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("env"))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 3; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_EvictsOldest(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("env"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	got := rb.Range(1, 10)
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("range = [%d..%d], want [4..8]", got[0].Seq, got[4].Seq)
	}

	// Partial range across the wrap point.
	got = rb.Range(6, 7)
	if len(got) != 2 || got[0].Seq != 6 || got[1].Seq != 7 {
		t.Errorf("Range(6,7) = %+v", got)
	}
}

func TestReplayBuffer_EmptyAndInverted(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range returned %d entries", len(got))
	}
	rb.Push(1, []byte("a"))
	if got := rb.Range(5, 2); len(got) != 0 {
		t.Fatalf("inverted Range returned %d entries", len(got))
	}
	if got := rb.Range(2, 9); len(got) != 0 {
		t.Fatalf("Range past newest returned %d entries", len(got))
	}
}
