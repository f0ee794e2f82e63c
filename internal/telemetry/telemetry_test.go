package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/flight_computer/internal/sendqueue"
)

type captureRadio struct {
	mu   sync.Mutex
	sent [][]byte
	fail error
}

func (r *captureRadio) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, p)
	return nil
}

func (r *captureRadio) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.sent...)
}

func TestTransmitterPreservesOrder(t *testing.T) {
	q := sendqueue.New[[]byte]()
	radio := &captureRadio{}
	tx := NewTransmitter(q, radio)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tx.Run(ctx) }()

	q.Put([]byte("one"))
	q.Put([]byte("two"))
	q.Put([]byte("three"))

	deadline := time.After(time.Second)
	for len(radio.snapshot()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("radio received %d payloads, want 3", len(radio.snapshot()))
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}

	sent := radio.snapshot()
	for i, want := range []string{"one", "two", "three"} {
		if string(sent[i]) != want {
			t.Errorf("payload %d = %q, want %q", i, sent[i], want)
		}
	}
}

func TestSampleEncodeRoundTrip(t *testing.T) {
	s := Sample{
		Time:        "2026-08-26T12:00:00Z",
		Phase:       "launched",
		Accel:       42.5,
		Altitude:    812.3,
		Pressure:    918.4,
		MaxAccel:    61.2,
		MaxAltitude: 812.3,
	}
	payload, err := s.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var back Sample
	if err := json.Unmarshal(payload, &back); err != nil {
		t.Fatal(err)
	}
	if back != s {
		t.Errorf("decoded sample = %+v, want %+v", back, s)
	}
}
