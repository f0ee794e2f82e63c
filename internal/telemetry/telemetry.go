// Package telemetry defines the downlink sample format and the transmit loop
// that drains the send queue into a radio. The core hands the radio raw
// bytes; framing, checksums and retries belong to the transport.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/relabs-tech/flight_computer/internal/sendqueue"
)

// Sample is one telemetry datagram, produced once per control-loop tick.
type Sample struct {
	Time  string `json:"time"` // RFC3339
	Phase string `json:"phase"`

	Accel    float64 `json:"accel_ms2"`    // dominant axis, m/s²
	Altitude float64 `json:"altitude_m"`   // barometric, m
	Pressure float64 `json:"pressure_hpa"` // hPa

	MaxAccel    float64 `json:"max_accel_ms2"`
	MaxAltitude float64 `json:"max_altitude_m"`
}

// Encode marshals the sample into its wire payload.
func (s Sample) Encode() ([]byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("telemetry: marshal sample: %w", err)
	}
	return payload, nil
}

// Radio writes one outbound datagram to its own medium.
type Radio interface {
	Send(payload []byte) error
}

// Transmitter is the single consumer of the send queue.
type Transmitter struct {
	q *sendqueue.Queue[[]byte]
	r Radio
}

// NewTransmitter returns a transmitter draining q into r.
func NewTransmitter(q *sendqueue.Queue[[]byte], r Radio) *Transmitter {
	return &Transmitter{q: q, r: r}
}

// Run forwards queued payloads in FIFO order until ctx is done. A send
// failure is logged and the loop moves on; the link has no retry contract.
func (t *Transmitter) Run(ctx context.Context) error {
	for {
		payload, err := t.q.Get(ctx)
		if err != nil {
			return err
		}
		if err := t.r.Send(payload); err != nil {
			log.Printf("telemetry: radio send error: %v", err)
		}
	}
}
