package indicator

import "math"

// Point is one (index, value) sample of a regression window.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Line is a least-squares fit y = Slope·x + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
	XMean     float64
	YMean     float64
}

// At evaluates the line at x.
func (l Line) At(x float64) float64 {
	return l.Slope*x + l.Intercept
}

// FitLine computes the ordinary least-squares line through points. It is
// recomputed from the whole window on every call. ok is false for fewer than
// two points or when all x are equal.
func FitLine(points []Point) (line Line, ok bool) {
	n := len(points)
	if n < 2 {
		return Line{}, false
	}

	var xTotal, yTotal float64
	for _, p := range points {
		xTotal += p.X
		yTotal += p.Y
	}
	xMean := xTotal / float64(n)
	yMean := yTotal / float64(n)

	var num, den float64
	for _, p := range points {
		dx := p.X - xMean
		num += dx * (p.Y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return Line{}, false
	}

	b1 := num / den
	return Line{
		Slope:     b1,
		Intercept: yMean - b1*xMean,
		XMean:     xMean,
		YMean:     yMean,
	}, true
}

// BandConfig is one pair of parallel bands at ±StdDevs standard deviations.
type BandConfig struct {
	StdDevs float64 `json:"std_devs"`
	Enabled bool    `json:"enabled"`
}

// Segment is a straight line between two points.
type Segment struct {
	X1, Y1 float64
	X2, Y2 float64
}

// Offset returns the segment shifted vertically by dy.
func (s Segment) Offset(dy float64) Segment {
	return Segment{X1: s.X1, Y1: s.Y1 + dy, X2: s.X2, Y2: s.Y2 + dy}
}

// BandPair is an upper and a lower band.
type BandPair struct {
	Upper Segment
	Lower Segment
}

// Channel is a linear regression channel over one window: a center segment
// and up to two band pairs, all spanning the window's first and last x.
type Channel struct {
	Line   Line
	StdDev float64
	Center Segment
	Bands  [2]*BandPair // nil when the band is disabled
}

// ComputeChannel fits points and offsets the configured bands by multiples of
// the window's standard deviation of y. ok is false when the line cannot be
// fitted.
func ComputeChannel(points []Point, bands [2]BandConfig) (Channel, bool) {
	line, ok := FitLine(points)
	if !ok {
		return Channel{}, false
	}

	sd := NewStdDev(len(points))
	stdDev := nan
	for _, p := range points {
		stdDev = sd.Update(p.Y)
	}
	if math.IsNaN(stdDev) {
		return Channel{}, false
	}

	x1 := points[0].X
	x2 := points[len(points)-1].X
	ch := Channel{
		Line:   line,
		StdDev: stdDev,
		Center: Segment{X1: x1, Y1: line.At(x1), X2: x2, Y2: line.At(x2)},
	}
	for i, b := range bands {
		if !b.Enabled {
			continue
		}
		off := b.StdDevs * stdDev
		ch.Bands[i] = &BandPair{
			Upper: ch.Center.Offset(off),
			Lower: ch.Center.Offset(-off),
		}
	}
	return ch, true
}
