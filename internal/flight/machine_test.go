package flight

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/relabs-tech/flight_computer/internal/flightlog"
	"github.com/relabs-tech/flight_computer/internal/sendqueue"
	"github.com/relabs-tech/flight_computer/internal/telemetry"
)

// script replays a fixed sample sequence, holding the last value once
// exhausted.
type script struct {
	vals []float64
	i    int
}

func (s *script) next() float64 {
	v := s.vals[s.i]
	if s.i < len(s.vals)-1 {
		s.i++
	}
	return v
}

type scriptAccel struct{ script }

func (s *scriptAccel) Accel() (float64, error) { return s.next(), nil }

type scriptAlt struct{ script }

func (s *scriptAlt) Altitude() (float64, error) { return s.next(), nil }

func newTestMachine(accel, alt []float64, sink flightlog.Sink, q *sendqueue.Queue[[]byte]) *Machine {
	return New(Config{}, Deps{
		Accel: &scriptAccel{script{vals: accel}},
		Alt:   &scriptAlt{script{vals: alt}},
		Log:   sink,
		Queue: q,
	})
}

func tick(t *testing.T, m *Machine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := m.Tick(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIdleBelowThreshold(t *testing.T) {
	sink := &flightlog.Memory{}
	m := newTestMachine([]float64{5, 5, 5}, []float64{0}, sink, nil)

	tick(t, m, 10)
	if m.Phase() != PhaseIdle {
		t.Errorf("phase = %v after sustained 15 m/s² sum, want idle", m.Phase())
	}
	if len(sink.Lines) != 0 {
		t.Errorf("log lines = %v, want none", sink.Lines)
	}
	if !m.LaunchTime().IsZero() {
		t.Error("launch timestamp recorded while idle")
	}
}

func TestLaunchDetectedOnceOnFirstQualifyingTick(t *testing.T) {
	sink := &flightlog.Memory{}
	// Sums per tick: 5, 10, 15, 45 — first tick over 30 is tick 4.
	m := newTestMachine([]float64{5, 5, 5, 35, 35, 35}, []float64{0}, sink, nil)

	tick(t, m, 3)
	if m.Phase() != PhaseIdle {
		t.Fatalf("phase = %v before threshold, want idle", m.Phase())
	}
	tick(t, m, 1)
	if m.Phase() != PhaseLaunched {
		t.Fatalf("phase = %v on first qualifying tick, want launched", m.Phase())
	}
	if m.LaunchTime().IsZero() {
		t.Error("launch timestamp not recorded")
	}

	tick(t, m, 3)
	launches := 0
	for _, l := range sink.Lines {
		if l == "L" {
			launches++
		}
	}
	if launches != 1 {
		t.Errorf("launch logged %d times, want exactly once", launches)
	}
}

func TestFullFlightSequence(t *testing.T) {
	sink := &flightlog.Memory{}
	// Tick sums: 20, 40 (launch), 10, -40 (apogee), -90 (landed), -90, ...
	accel := []float64{20, 20, -30, -30, -30}
	alt := []float64{0, 50, 300, 210, 120, 30, 0}
	m := newTestMachine(accel, alt, sink, nil)

	tick(t, m, 2)
	if m.Phase() != PhaseLaunched {
		t.Fatalf("phase after tick 2 = %v, want launched", m.Phase())
	}
	tick(t, m, 1)
	if m.Phase() != PhaseLaunched {
		t.Fatalf("phase after tick 3 = %v, want launched (sum still positive)", m.Phase())
	}
	tick(t, m, 1)
	if m.Phase() != PhaseApogee {
		t.Fatalf("phase after tick 4 = %v, want apogee", m.Phase())
	}
	tick(t, m, 1)
	if m.Phase() != PhaseLanded {
		t.Fatalf("phase after tick 5 = %v, want landed", m.Phase())
	}

	// Further qualifying ticks must not re-trigger anything.
	lines := len(sink.Lines)
	tick(t, m, 5)
	if m.Phase() != PhaseLanded {
		t.Errorf("phase after landing = %v, want landed (terminal)", m.Phase())
	}
	if len(sink.Lines) != lines {
		t.Errorf("log grew after landing: %v", sink.Lines[lines:])
	}

	if len(sink.Lines) != 4 {
		t.Fatalf("log lines = %v, want L, A, H and the maxima line", sink.Lines)
	}
	if sink.Lines[0] != "L" {
		t.Errorf("line 0 = %q, want \"L\"", sink.Lines[0])
	}
	if !strings.HasPrefix(sink.Lines[1], "A ") {
		t.Errorf("line 1 = %q, want apogee marker", sink.Lines[1])
	}
	if !strings.HasPrefix(sink.Lines[2], "H ") {
		t.Errorf("line 2 = %q, want landing marker", sink.Lines[2])
	}
	if sink.Lines[3] != "20.00 300.00" {
		t.Errorf("maxima line = %q, want \"20.00 300.00\"", sink.Lines[3])
	}
}

func TestMaximaTrackedRegardlessOfPhase(t *testing.T) {
	accel := []float64{5, 61, 5, 5, 5}
	alt := []float64{0, 10, 812, 40, 0}
	m := newTestMachine(accel, alt, &flightlog.Memory{}, nil)

	tick(t, m, 5)
	if m.MaxAccel() != 61 {
		t.Errorf("max accel = %v, want 61", m.MaxAccel())
	}
	if m.MaxAltitude() != 812 {
		t.Errorf("max altitude = %v, want 812", m.MaxAltitude())
	}
	if m.Phase() != PhaseLaunched {
		// The 61 spike alone sums past the threshold with its neighbours.
		t.Logf("phase = %v", m.Phase())
	}
}

func TestTelemetryEnqueuedEveryTick(t *testing.T) {
	q := sendqueue.New[[]byte]()
	m := newTestMachine([]float64{20, 20, -30}, []float64{100}, &flightlog.Memory{}, q)

	tick(t, m, 3)
	if q.Len() != 3 {
		t.Fatalf("queued samples = %d, want 3", q.Len())
	}

	payload, err := q.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var s telemetry.Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		t.Fatal(err)
	}
	if s.Phase != "idle" {
		t.Errorf("first sample phase = %q, want idle", s.Phase)
	}
	if s.Altitude != 100 {
		t.Errorf("first sample altitude = %v, want 100", s.Altitude)
	}
}
