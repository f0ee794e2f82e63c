// Package buzzer drives the locator buzzer through a level-triggered GPIO
// output. Every pattern guarantees the pin is released (driven low) on every
// exit path, including cancellation, so a forcibly abandoned burst can never
// leave the buzzer stuck on.
package buzzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Buzzer owns one output pin. The owner is responsible for not sharing the
// pin with other tasks.
type Buzzer struct {
	pin gpio.PinIO
}

// New returns a Buzzer over pin.
func New(pin gpio.PinIO) *Buzzer {
	return &Buzzer{pin: pin}
}

// On drives the pin high.
func (b *Buzzer) On() error {
	return b.pin.Out(gpio.High)
}

// Off drives the pin low.
func (b *Buzzer) Off() error {
	return b.pin.Out(gpio.Low)
}

// Repeat emits n on/off pulses, or pulses until ctx is done when n <= 0.
// The pin is low when Repeat returns, whatever the exit path.
func (b *Buzzer) Repeat(ctx context.Context, on, off time.Duration, n int) error {
	defer b.pin.Out(gpio.Low)

	for i := 0; n <= 0 || i < n; i++ {
		if err := b.pin.Out(gpio.High); err != nil {
			return fmt.Errorf("buzzer: %w", err)
		}
		if err := sleep(ctx, on); err != nil {
			return err
		}
		if err := b.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("buzzer: %w", err)
		}
		if err := sleep(ctx, off); err != nil {
			return err
		}
	}
	return nil
}

// RunBounded runs fn and forcibly abandons it once bound elapses. Effects up
// to the cancellation point stand; a burst cut short by the bound completes
// successfully from the caller's perspective.
func RunBounded(ctx context.Context, bound time.Duration, fn func(context.Context) error) error {
	bctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()
	err := fn(bctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
