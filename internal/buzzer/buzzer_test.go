package buzzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestRepeatLeavesPinLowAfterCancellation(t *testing.T) {
	pin := &gpiotest.Pin{N: "BUZZ", Num: 18}
	b := New(pin)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// Long pulses relative to the bound: cancellation lands mid-pulse.
	err := b.Repeat(ctx, 100*time.Millisecond, 100*time.Millisecond, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Repeat = %v, want context.DeadlineExceeded", err)
	}
	if pin.Read() != gpio.Low {
		t.Error("pin left high after cancellation")
	}
}

func TestRepeatFiniteCount(t *testing.T) {
	pin := &gpiotest.Pin{N: "BUZZ", Num: 18}
	b := New(pin)

	if err := b.Repeat(context.Background(), time.Millisecond, time.Millisecond, 3); err != nil {
		t.Fatal(err)
	}
	if pin.Read() != gpio.Low {
		t.Error("pin left high after a finite burst")
	}
}

func TestRunBoundedSwallowsDeadline(t *testing.T) {
	pin := &gpiotest.Pin{N: "BUZZ", Num: 18}
	b := New(pin)

	err := RunBounded(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		return b.Repeat(ctx, 50*time.Millisecond, 50*time.Millisecond, 0)
	})
	if err != nil {
		t.Errorf("bounded burst = %v, want nil (cancellation is not an error)", err)
	}
	if pin.Read() != gpio.Low {
		t.Error("pin left high after bounded burst")
	}
}

func TestRunBoundedPropagatesOuterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunBounded(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunBounded = %v, want context.Canceled from the outer context", err)
	}
}
