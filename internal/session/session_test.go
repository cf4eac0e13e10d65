package session

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/yellow-pitaya/frontend-sub000/internal/config"
	"github.com/yellow-pitaya/frontend-sub000/internal/device"
	"github.com/yellow-pitaya/frontend-sub000/internal/parser"
	"github.com/yellow-pitaya/frontend-sub000/internal/transport"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

type scripted struct {
	sent    []string
	replies map[string]string
	err     error
}

func (s *scripted) Send(command string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, command)
	return nil
}

func (s *scripted) SendAndReceive(command string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, command)
	return s.replies[command], nil
}

func (s *scripted) count(command string) int {
	n := 0
	for _, c := range s.sent {
		if c == command {
			n++
		}
	}
	return n
}

type capture struct {
	frames []*protocol.Frame
}

func (c *capture) Publish(_ context.Context, f *protocol.Frame) error {
	c.frames = append(c.frames, f)
	return nil
}

func (c *capture) Close() error { return nil }

type counters struct {
	buffers   map[string]int
	refreshes int
}

func (c *counters) ObserveBuffer(source string) { c.buffers[source]++ }

func (c *counters) ObserveRefresh(time.Duration) { c.refreshes++ }

func newSession(replies map[string]string) (*Session, *device.Device, *scripted, *capture) {
	cmd := &scripted{replies: replies}
	log, _ := test.NewNullLogger()
	dev := device.New(cmd, log)
	pub := &capture{}
	return New(dev, parser.NewParser(log), pub, log), dev, cmd, pub
}

func TestTick_NotStarted(t *testing.T) {
	s, _, cmd, pub := newSession(nil)
	s.EnableInput(protocol.IN1, protocol.Attenuation1)

	frame, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(cmd.sent) != 0 || len(frame.Acquired) != 0 || len(pub.frames) != 0 {
		t.Errorf("idle tick sent %v, acquired %d", cmd.sent, len(frame.Acquired))
	}
}

func TestTick_AutoReadsEveryTick(t *testing.T) {
	s, dev, cmd, pub := newSession(map[string]string{
		"ACQ:SOUR1:DATA?": "{0.1,0.2,x}",
	})
	rec := &counters{buffers: map[string]int{}}
	s.SetRecorder(rec)
	s.EnableInput(protocol.IN1, protocol.Attenuation10)
	if err := dev.Acquire.Start(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		frame, err := s.Tick(context.Background())
		if err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
		points := frame.Acquired["IN1"]
		if len(points) != 3 {
			t.Fatalf("got %d points, want 3", len(points))
		}
		want := []float64{1, 2, 0}
		for j, p := range points {
			if math.Abs(p.Y-want[j]) > 1e-9 {
				t.Errorf("point %d Y = %v, want %v", j, p.Y, want[j])
			}
		}
		if frame.Faults != 1 {
			t.Errorf("faults = %d, want 1", frame.Faults)
		}
	}

	if n := cmd.count("ACQ:SOUR1:DATA?"); n != 2 {
		t.Errorf("buffer read %d times, want 2", n)
	}
	if n := cmd.count("ACQ:TRIG:STAT?"); n != 0 {
		t.Errorf("auto mode polled trigger state %d times", n)
	}
	if len(pub.frames) != 2 || pub.frames[0].Source != "IN1" || pub.frames[0].Decimation != 1 {
		t.Errorf("published %+v", pub.frames)
	}
	if rec.buffers["IN1"] != 2 || rec.refreshes != 2 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestTick_NormalWaitsForTrigger(t *testing.T) {
	replies := map[string]string{
		"ACQ:TRIG:STAT?":  "WAIT",
		"ACQ:SOUR2:DATA?": "{1,2}",
	}
	s, dev, cmd, _ := newSession(replies)
	s.EnableInput(protocol.IN2, protocol.Attenuation1)
	dev.Acquire.Start()
	dev.Trigger.Enable(protocol.NewTriggerSource(protocol.TriggerCH2, protocol.EdgeNegative))
	dev.Trigger.SetMode(protocol.TriggerNormal)

	frame, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(frame.Acquired) != 0 || cmd.count("ACQ:SOUR2:DATA?") != 0 {
		t.Fatal("read buffer before trigger")
	}

	replies["ACQ:TRIG:STAT?"] = "TD"
	cmd.sent = nil
	frame, err = s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(frame.Acquired["IN2"]) != 2 {
		t.Fatalf("acquired %v", frame.Acquired)
	}
	want := []string{"ACQ:TRIG:STAT?", "ACQ:SOUR2:DATA?", "ACQ:START", "ACQ:TRIG CH2_NE"}
	if len(cmd.sent) != len(want) {
		t.Fatalf("sent %v, want %v", cmd.sent, want)
	}
	for i := range want {
		if cmd.sent[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, cmd.sent[i], want[i])
		}
	}
	if !dev.Acquire.IsStarted() {
		t.Error("normal mode must stay armed")
	}
}

func TestTick_SingleStopsAfterOneCapture(t *testing.T) {
	s, dev, cmd, _ := newSession(map[string]string{
		"ACQ:TRIG:STAT?":  "TD",
		"ACQ:SOUR1:DATA?": "{0.5}",
	})
	s.EnableInput(protocol.IN1, protocol.Attenuation1)
	dev.Acquire.Start()
	dev.Trigger.SetMode(protocol.TriggerSingle)

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if dev.Acquire.IsStarted() || cmd.count("ACQ:STOP") != 1 {
		t.Fatal("single mode did not stop acquisition")
	}

	frame, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(frame.Acquired) != 0 || cmd.count("ACQ:SOUR1:DATA?") != 1 {
		t.Error("single mode read a second buffer")
	}
}

func TestTick_InvalidTriggerStateSkipsRead(t *testing.T) {
	s, dev, cmd, _ := newSession(map[string]string{
		"ACQ:TRIG:STAT?": "???",
	})
	s.EnableInput(protocol.IN1, protocol.Attenuation1)
	dev.Acquire.Start()
	dev.Trigger.SetMode(protocol.TriggerNormal)

	frame, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("invalid reply must not fail the tick: %v", err)
	}
	if len(frame.Acquired) != 0 || cmd.count("ACQ:SOUR1:DATA?") != 0 {
		t.Error("read buffer without a valid trigger state")
	}
}

func TestTick_FatalError(t *testing.T) {
	s, dev, cmd, _ := newSession(nil)
	s.EnableInput(protocol.IN1, protocol.Attenuation1)
	dev.Acquire.Start()
	cmd.err = &transport.FatalError{Op: "write", Addr: "rp:5000", Err: io.ErrClosedPipe}

	_, err := s.Tick(context.Background())
	if !transport.IsFatal(err) {
		t.Errorf("err = %v, want fatal", err)
	}
}

func TestTick_TimeoutIsNotFatal(t *testing.T) {
	s, dev, cmd, _ := newSession(nil)
	s.EnableInput(protocol.IN1, protocol.Attenuation1)
	dev.Acquire.Start()
	cmd.err = transport.ErrTimeout

	frame, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("timeout must degrade locally: %v", err)
	}
	if len(frame.Acquired) != 0 {
		t.Errorf("acquired %v", frame.Acquired)
	}
}

func TestTick_Previews(t *testing.T) {
	s, dev, _, _ := newSession(nil)
	s.SetWindow(100, 50)

	g := dev.Generator
	if err := errors.Join(
		g.SetForm(protocol.OUT1, protocol.FormSine),
		g.SetAmplitude(protocol.OUT1, 1),
		g.SetFrequency(protocol.OUT1, 1000),
		g.Start(protocol.OUT1),
		g.SetForm(protocol.OUT2, protocol.FormDC),
	); err != nil {
		t.Fatal(err)
	}

	frame, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if n := len(frame.Previews["OUT1"]); n != 100 {
		t.Errorf("OUT1 preview has %d points, want 100", n)
	}
	if _, ok := frame.Previews["OUT2"]; ok {
		t.Error("stopped output must not be previewed")
	}
}

func TestSyncDecimation(t *testing.T) {
	replies := map[string]string{"ACQ:DEC?": "1024"}
	s, _, _, _ := newSession(replies)

	d, err := s.SyncDecimation()
	if err != nil || d != protocol.Dec1024 {
		t.Fatalf("SyncDecimation = %v, %v", d, err)
	}
	if got, want := s.Scales().Width(), protocol.Dec1024.BufferDurationMicros(); got != want {
		t.Errorf("width = %v, want %v", got, want)
	}

	replies["ACQ:DEC?"] = "garbage"
	d, err = s.SyncDecimation()
	if err != nil || d != protocol.Dec1024 {
		t.Errorf("invalid reply must keep prior value, got %v, %v", d, err)
	}
}

func TestApply(t *testing.T) {
	s, dev, cmd, _ := newSession(nil)
	cfg := config.GetDefaultConfig().Session
	cfg.Inputs["IN2"] = config.InputConfig{Enabled: true, Gain: "HV", Attenuation: 10}
	cfg.Outputs = map[string]config.OutputConfig{
		"OUT1": {Enabled: true, Form: "PWM", Amplitude: 0.5, Frequency: 1000, DutyCycle: 0.25},
	}
	cfg.Markers = map[string]float64{"IN1": 0}

	if err := s.Apply(cfg); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := []string{
		"ACQ:RST",
		"ACQ:DATA:UNITS VOLTS",
		"ACQ:DEC 64",
		"ACQ:AVG OFF",
		"ACQ:SOUR1:GAIN LV",
		"ACQ:SOUR2:GAIN HV",
		"ACQ:TRIG:LEV 0",
		"ACQ:TRIG:DLY 0",
		"OUTPUT1:FUNC PWM",
		"OUTPUT1:VOLT 0.5",
		"OUTPUT1:VOLT:OFFS 0",
		"OUTPUT1:FREQ:FIX 1000",
		"OUTPUT1:DCYC 0.25",
		"OUTPUT1:STATE ON",
		"ACQ:START",
		"ACQ:TRIG CH1_PE",
	}
	if len(cmd.sent) != len(want) {
		t.Fatalf("sent %v\nwant %v", cmd.sent, want)
	}
	for i := range want {
		if cmd.sent[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, cmd.sent[i], want[i])
		}
	}

	if !dev.Acquire.IsStarted() || dev.Trigger.Source() != "CH1_PE" || dev.Trigger.Mode() != protocol.TriggerAuto {
		t.Error("acquisition state not applied")
	}
	if s.Scales().Window.Width != 1024 {
		t.Errorf("window = %+v", s.Scales().Window)
	}
	if got := s.Offset("IN1"); got != 5 {
		t.Errorf("marker offset = %v, want 5", got)
	}
	if len(s.inputs) != 2 || s.inputs[protocol.IN2] != protocol.Attenuation10 {
		t.Errorf("inputs = %v", s.inputs)
	}
}

func TestApply_CollectsParameterErrors(t *testing.T) {
	s, dev, _, _ := newSession(nil)
	cfg := config.GetDefaultConfig().Session
	cfg.Outputs = map[string]config.OutputConfig{
		"OUT1": {Enabled: true, Form: "SINE", Amplitude: 3},
	}

	err := s.Apply(cfg)
	if !errors.Is(err, device.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if !dev.Acquire.IsStarted() {
		t.Error("parameter error must not abort startup")
	}
}

func TestApply_Fatal(t *testing.T) {
	s, _, cmd, _ := newSession(nil)
	cmd.err = &transport.FatalError{Op: "write", Err: io.EOF}

	if err := s.Apply(config.GetDefaultConfig().Session); !transport.IsFatal(err) {
		t.Errorf("err = %v, want fatal", err)
	}
}

type manualTicker struct {
	c       chan time.Time
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() { m.stopped = true }

func TestRun(t *testing.T) {
	s, _, _, _ := newSession(nil)
	ticker := &manualTicker{c: make(chan time.Time)}
	ctx, cancel := context.WithCancel(context.Background())

	frames := make(chan *Frame, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, ticker, func(f *Frame) { frames <- f })
	}()

	ticker.c <- time.Now()
	select {
	case <-frames:
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit")
	}
	if !ticker.stopped {
		t.Error("ticker not stopped")
	}
}

func TestRun_StopsOnFatal(t *testing.T) {
	s, dev, cmd, _ := newSession(nil)
	s.EnableInput(protocol.IN1, protocol.Attenuation1)
	dev.Acquire.Start()
	cmd.err = &transport.FatalError{Op: "read", Err: io.EOF}

	ticker := &manualTicker{c: make(chan time.Time, 1)}
	ticker.c <- time.Now()

	if err := s.Run(context.Background(), ticker, nil); !transport.IsFatal(err) {
		t.Errorf("err = %v, want fatal", err)
	}
}
