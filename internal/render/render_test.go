package render

import (
	"errors"
	"math"
	"testing"

	"github.com/yellow-pitaya/frontend-sub000/internal/scale"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

func testScales() scale.Scales {
	s := scale.New(protocol.Dec64)
	s.SetWindow(800, 400)
	return s
}

func TestOffset(t *testing.T) {
	s := testScales()
	m := Markers{"IN1": 100, "OUT1": 200}

	if got := Offset(s, m, "IN1"); got != 2.5 {
		t.Errorf("Offset(IN1) = %v, want 2.5", got)
	}
	if got := Offset(s, m, "OUT1"); got != 0 {
		t.Errorf("Offset(OUT1) = %v, want 0", got)
	}
	if got := Offset(s, m, "IN2"); got != 0 {
		t.Errorf("Offset(missing) = %v, want 0", got)
	}
}

func TestAcquisition(t *testing.T) {
	s := testScales()
	s.NSamples = 4

	points := Acquisition(s, []float64{0.1, -0.2, 1, 0.3}, protocol.Attenuation10, 0.5)
	want := []float64{1.5, -1.5, 5, 3.5}
	if len(points) != len(want) {
		t.Fatalf("len = %d, want %d", len(points), len(want))
	}
	for i, p := range points {
		if math.Abs(p.Y-want[i]) > 1e-12 {
			t.Errorf("points[%d].Y = %v, want %v", i, p.Y, want[i])
		}
		if p.X != s.SampleToTime(i) {
			t.Errorf("points[%d].X = %v, want %v", i, p.X, s.SampleToTime(i))
		}
	}
}

func TestAcquisition_ShortBufferNotPadded(t *testing.T) {
	s := testScales()
	points := Acquisition(s, []float64{1, 2, 3}, protocol.Attenuation1, 0)
	if len(points) != 3 {
		t.Errorf("len = %d, want 3", len(points))
	}
}

func TestGenerator(t *testing.T) {
	s := testScales()
	p := protocol.GeneratorParams{Form: protocol.FormSquare, Amplitude: 1, Frequency: 1000}

	points, err := Generator(s, p, 0)
	if err != nil {
		t.Fatalf("Generator failed: %v", err)
	}
	if len(points) != s.Window.Width {
		t.Fatalf("len = %d, want one point per column", len(points))
	}
	last := s.XToOffset(float64(s.Window.Width - 1))
	if points[0].X != s.H[0] || points[len(points)-1].X != last {
		t.Errorf("x range = [%v, %v], want [%v, %v]", points[0].X, points[len(points)-1].X, s.H[0], last)
	}
	for _, pt := range points {
		if pt.Y < -1 || pt.Y > 1 {
			t.Fatalf("y = %v outside generator range", pt.Y)
		}
	}
}

func TestGenerator_Errors(t *testing.T) {
	s := scale.New(protocol.Dec1)
	p := protocol.GeneratorParams{Form: protocol.FormSine, Amplitude: 1, Frequency: 1}
	if _, err := Generator(s, p, 0); !errors.Is(err, ErrNoWindow) {
		t.Errorf("err = %v, want ErrNoWindow", err)
	}

	s.SetWindow(10, 10)
	p.Form = protocol.FormArbitrary
	if _, err := Generator(s, p, 0); !errors.Is(err, protocol.ErrUnsupportedForm) {
		t.Errorf("err = %v, want ErrUnsupportedForm", err)
	}
}

func TestToPixels(t *testing.T) {
	s := testScales()
	px := ToPixels(s, []Point{{X: s.H[0], Y: 5}, {X: 0, Y: 0}, {X: s.H[1], Y: -5}})
	want := []Point{{0, 0}, {400, 200}, {800, 400}}
	for i := range want {
		if math.Abs(px[i].X-want[i].X) > 1e-9 || math.Abs(px[i].Y-want[i].Y) > 1e-9 {
			t.Errorf("px[%d] = %v, want %v", i, px[i], want[i])
		}
	}
}

func TestSpectrum(t *testing.T) {
	const n = 1024
	d := protocol.Dec1024
	rate := d.SampleRate()
	bin := 16
	freq := float64(bin) * rate / n

	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 + 2*math.Sin(2*math.Pi*freq*float64(i)/rate)
	}

	bins := Spectrum(samples, d)
	if len(bins) != n/2+1 {
		t.Fatalf("len = %d, want %d", len(bins), n/2+1)
	}
	if math.Abs(bins[0].Y-0.5) > 1e-9 {
		t.Errorf("DC = %v, want 0.5", bins[0].Y)
	}
	if math.Abs(bins[bin].Y-2) > 1e-9 {
		t.Errorf("peak = %v, want 2", bins[bin].Y)
	}
	if math.Abs(bins[bin].X-freq) > 1e-6 {
		t.Errorf("peak frequency = %v, want %v", bins[bin].X, freq)
	}
	if Spectrum(nil, d) != nil {
		t.Error("Spectrum(nil) != nil")
	}
}
