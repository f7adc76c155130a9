package indicator

import (
	"fmt"
	"testing"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

func linearPoints(from, n int, slope, intercept float64) []Point {
	pts := make([]Point, n)
	for i := range pts {
		x := float64(from + i)
		pts[i] = Point{X: x, Y: slope*x + intercept}
	}
	return pts
}

func TestFitLine_RecoversExactLine(t *testing.T) {
	for _, n := range []int{2, 3, 10, 50} {
		for _, from := range []int{0, 7, 1000} {
			line, ok := FitLine(linearPoints(from, n, 2, 3))
			if !ok {
				t.Fatalf("n=%d from=%d: fit failed", n, from)
			}
			label := fmt.Sprintf("n=%d from=%d", n, from)
			assertClose(t, label+" slope", line.Slope, 2, 1e-9)
			assertClose(t, label+" intercept", line.Intercept, 3, 1e-6)
		}
	}
}

func TestFitLine_TooFewPoints(t *testing.T) {
	if _, ok := FitLine(nil); ok {
		t.Error("expected no fit for empty window")
	}
	if _, ok := FitLine([]Point{{X: 1, Y: 1}}); ok {
		t.Error("expected no fit for a single point")
	}
	if _, ok := FitLine([]Point{{X: 1, Y: 1}, {X: 1, Y: 2}}); ok {
		t.Error("expected no fit for zero x-variance")
	}
}

func TestFitLine_MatchesGonum(t *testing.T) {
	in := series(60)
	xs := make([]float64, len(in))
	pts := make([]Point, len(in))
	for i, y := range in {
		xs[i] = float64(i + 100)
		pts[i] = Point{X: xs[i], Y: y}
	}
	line, ok := FitLine(pts)
	if !ok {
		t.Fatal("fit failed")
	}
	alpha, beta := stat.LinearRegression(xs, in, nil, false)
	assertClose(t, "slope", line.Slope, beta, 1e-9)
	assertClose(t, "intercept", line.Intercept, alpha, 1e-6)
}

func TestComputeChannel_MatchesTalibEndpoint(t *testing.T) {
	in := series(120)
	const period = 14
	wantEnd := talib.LinearReg(in, period)
	wantSlope := talib.LinearRegSlope(in, period)

	for i := period - 1; i < len(in); i++ {
		pts := make([]Point, 0, period)
		for j := i - period + 1; j <= i; j++ {
			pts = append(pts, Point{X: float64(j), Y: in[j]})
		}
		ch, ok := ComputeChannel(pts, [2]BandConfig{})
		if !ok {
			t.Fatalf("bar %d: channel failed", i)
		}
		assertClose(t, fmt.Sprintf("end[%d]", i), ch.Center.Y2, wantEnd[i], 1e-6)
		assertClose(t, fmt.Sprintf("slope[%d]", i), ch.Line.Slope, wantSlope[i], 1e-6)
	}
}

func TestComputeChannel_Bands(t *testing.T) {
	pts := []Point{{X: 0, Y: 1}, {X: 1, Y: 3}, {X: 2, Y: 2}, {X: 3, Y: 6}}
	bands := [2]BandConfig{{StdDevs: 1, Enabled: true}, {StdDevs: 2, Enabled: false}}
	ch, ok := ComputeChannel(pts, bands)
	if !ok {
		t.Fatal("channel failed")
	}
	if ch.Bands[1] != nil {
		t.Error("band 2 should be disabled")
	}
	b := ch.Bands[0]
	if b == nil {
		t.Fatal("band 1 missing")
	}

	// y = {1,3,2,6}: mean 3, population variance (4+0+1+9)/4 = 3.5
	sd := ch.StdDev
	assertClose(t, "σ", sd, 1.8708286933869707, 1e-12)
	assertClose(t, "upper start", b.Upper.Y1, ch.Center.Y1+sd, 1e-12)
	assertClose(t, "lower end", b.Lower.Y2, ch.Center.Y2-sd, 1e-12)
	if b.Upper.X1 != 0 || b.Upper.X2 != 3 {
		t.Errorf("band spans x=%v..%v, want 0..3", b.Upper.X1, b.Upper.X2)
	}
}
