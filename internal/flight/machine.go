// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package flight implements the flight-phase state machine: it fuses
// acceleration and barometric altitude through a short smoothing window,
// detects launch, apogee and touchdown, drives the locator buzzer and hands
// events to the flight log and the telemetry downlink.
package flight

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/flight_computer/internal/buzzer"
	"github.com/relabs-tech/flight_computer/internal/flightlog"
	"github.com/relabs-tech/flight_computer/internal/sendqueue"
	"github.com/relabs-tech/flight_computer/internal/telemetry"
)

// Phase is the flight phase. Transitions are strictly forward; no phase is
// revisited and Landed is terminal.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLaunched
	PhaseApogee
	PhaseLanded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLaunched:
		return "launched"
	case PhaseApogee:
		return "apogee"
	case PhaseLanded:
		return "landed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// AccelSource delivers the dominant-axis acceleration in m/s².
type AccelSource interface {
	Accel() (float64, error)
}

// Altimeter delivers the barometric altitude in meters.
type Altimeter interface {
	Altitude() (float64, error)
}

// PressureSource optionally enriches telemetry samples with the compensated
// pressure in hPa.
type PressureSource interface {
	Pressure() (float64, error)
}

// Config tunes the state machine. Zero values select the reference
// deployment's settings.
type Config struct {
	// LaunchAccelSum is the threshold, in m/s², that the sum of the last
	// three acceleration samples must exceed to declare launch.
	LaunchAccelSum float64
	// TickInterval is the control-loop period.
	TickInterval time.Duration
	// PreArmDelay is the wait between the startup burst and arming.
	PreArmDelay time.Duration
	// StartupBurst, ArmedBurst and TerminalBurst bound the three buzzer
	// patterns; a pattern still running at its bound is forcibly cancelled.
	StartupBurst  time.Duration
	ArmedBurst    time.Duration
	TerminalBurst time.Duration
	// BuzzOn/BuzzOff shape the individual pulses.
	BuzzOn  time.Duration
	BuzzOff time.Duration
}

func (c Config) withDefaults() Config {
	if c.LaunchAccelSum == 0 {
		c.LaunchAccelSum = 30
	}
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.PreArmDelay == 0 {
		c.PreArmDelay = 30 * time.Minute
	}
	if c.StartupBurst == 0 {
		c.StartupBurst = 3 * time.Second
	}
	if c.ArmedBurst == 0 {
		c.ArmedBurst = 5 * time.Second
	}
	if c.TerminalBurst == 0 {
		c.TerminalBurst = 1800 * time.Second
	}
	if c.BuzzOn == 0 {
		c.BuzzOn = 200 * time.Millisecond
	}
	if c.BuzzOff == 0 {
		c.BuzzOff = 200 * time.Millisecond
	}
	return c
}

// Deps are the resource handles the machine exclusively owns while running.
// Buzzer and Queue may be nil (no locator, no downlink).
type Deps struct {
	Accel    AccelSource
	Alt      Altimeter
	Pressure PressureSource // optional
	Buzzer   *buzzer.Buzzer
	Log      flightlog.Sink
	Queue    *sendqueue.Queue[[]byte]
}

// Machine is the top-level control loop. It is not safe for concurrent use;
// exactly one goroutine runs Tick/Run.
type Machine struct {
	cfg  Config
	deps Deps

	phase      Phase
	launchTime time.Time
	maxAccel   float64
	maxAlt     float64
	win        window

	now func() time.Time
}

// New returns an idle machine.
func New(cfg Config, deps Deps) *Machine {
	return &Machine{
		cfg:  cfg.withDefaults(),
		deps: deps,
		now:  time.Now,
	}
}

// Phase returns the current flight phase.
func (m *Machine) Phase() Phase { return m.phase }

// LaunchTime returns when launch was detected; zero before launch.
func (m *Machine) LaunchTime() time.Time { return m.launchTime }

// MaxAccel returns the running acceleration maximum in m/s².
func (m *Machine) MaxAccel() float64 { return m.maxAccel }

// MaxAltitude returns the running altitude maximum in meters.
func (m *Machine) MaxAltitude() float64 { return m.maxAlt }

// Tick processes one sample pair: read acceleration and altitude, update the
// running maxima and the smoothing window, then evaluate at most one phase
// transition against the current phase.
func (m *Machine) Tick() error {
	accel, err := m.deps.Accel.Accel()
	if err != nil {
		return fmt.Errorf("flight: read acceleration: %w", err)
	}
	alt, err := m.deps.Alt.Altitude()
	if err != nil {
		return fmt.Errorf("flight: read altitude: %w", err)
	}

	if accel > m.maxAccel {
		m.maxAccel = accel
	}
	if alt > m.maxAlt {
		m.maxAlt = alt
	}
	m.win.push(accel)
	sum := m.win.sum

	switch m.phase {
	case PhaseIdle:
		if sum > m.cfg.LaunchAccelSum {
			m.phase = PhaseLaunched
			m.launchTime = m.now()
			m.logEvent("L")
		}
	case PhaseLaunched:
		if sum < 0 {
			m.phase = PhaseApogee
			m.logEvent(fmt.Sprintf("A %.2f", m.sinceLaunch().Seconds()))
		}
	case PhaseApogee:
		// The same sum<0 condition stands in for ground impact here. A
		// profile with a long powered descent could trip this early; known
		// fidelity limitation, kept as deployed.
		if sum < 0 {
			m.phase = PhaseLanded
			m.logEvent(fmt.Sprintf("H %.2f", m.sinceLaunch().Seconds()))
			m.logEvent(fmt.Sprintf("%.2f %.2f", m.maxAccel, m.maxAlt))
		}
	}

	m.enqueueSample(accel, alt)
	return nil
}

// Run executes the startup sequence and then ticks until touchdown or ctx
// cancellation: short locator burst, pre-arm delay, longer burst, control
// loop. On reaching Landed the terminal locator pattern runs for up to
// TerminalBurst and the loop stops.
func (m *Machine) Run(ctx context.Context) error {
	if err := m.burst(ctx, m.cfg.StartupBurst); err != nil {
		return err
	}

	log.Printf("flight: armed in %v", m.cfg.PreArmDelay)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.PreArmDelay):
	}

	if err := m.burst(ctx, m.cfg.ArmedBurst); err != nil {
		return err
	}
	log.Printf("flight: entering tick loop (interval %v, launch threshold %.1f m/s²)",
		m.cfg.TickInterval, m.cfg.LaunchAccelSum)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := m.Tick(); err != nil {
			log.Printf("flight: %v", err)
			continue
		}
		if m.phase == PhaseLanded {
			log.Printf("flight: landed; max accel %.2f m/s², max altitude %.2f m", m.maxAccel, m.maxAlt)
			return m.burst(ctx, m.cfg.TerminalBurst)
		}
	}
}

func (m *Machine) burst(ctx context.Context, bound time.Duration) error {
	if m.deps.Buzzer == nil {
		return nil
	}
	return buzzer.RunBounded(ctx, bound, func(ctx context.Context) error {
		return m.deps.Buzzer.Repeat(ctx, m.cfg.BuzzOn, m.cfg.BuzzOff, 0)
	})
}

func (m *Machine) sinceLaunch() time.Duration {
	return m.now().Sub(m.launchTime)
}

func (m *Machine) logEvent(line string) {
	if m.deps.Log == nil {
		return
	}
	if err := m.deps.Log.Append(line); err != nil {
		log.Printf("flight: log append: %v", err)
	}
}

func (m *Machine) enqueueSample(accel, alt float64) {
	if m.deps.Queue == nil {
		return
	}
	s := telemetry.Sample{
		Time:        m.now().Format(time.RFC3339),
		Phase:       m.phase.String(),
		Accel:       accel,
		Altitude:    alt,
		MaxAccel:    m.maxAccel,
		MaxAltitude: m.maxAlt,
	}
	if m.deps.Pressure != nil {
		if p, err := m.deps.Pressure.Pressure(); err == nil {
			s.Pressure = p
		}
	}
	payload, err := s.Encode()
	if err != nil {
		log.Printf("flight: %v", err)
		return
	}
	m.deps.Queue.Put(payload)
}
