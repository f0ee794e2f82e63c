// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/flight_computer/internal/buzzer"
	"github.com/relabs-tech/flight_computer/internal/config"
	"github.com/relabs-tech/flight_computer/internal/dps310"
	"github.com/relabs-tech/flight_computer/internal/flight"
	"github.com/relabs-tech/flight_computer/internal/flightlog"
	"github.com/relabs-tech/flight_computer/internal/gps"
	"github.com/relabs-tech/flight_computer/internal/sendqueue"
	"github.com/relabs-tech/flight_computer/internal/sensors"
	"github.com/relabs-tech/flight_computer/internal/telemetry"
)

// RunFlight wires the airborne stack and hands control to the flight state
// machine. It returns after landing (terminal buzzer pattern included) or
// when ctx is cancelled.
func RunFlight(ctx context.Context) error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// --- barometer on I2C ---
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	baro, err := dps310.New(&i2c.Dev{Bus: bus, Addr: cfg.BaroI2CAddr}, &dps310.Opts{
		Oversampling:     cfg.BaroOversampling,
		PollTimeout:      time.Duration(cfg.BaroPollTimeoutS) * time.Second,
		SeaLevelPressure: cfg.SeaLevelPressure,
	})
	if err != nil {
		return fmt.Errorf("failed to build DPS310: %w", err)
	}
	if err := baro.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize DPS310: %w", err)
	}
	if id, err := baro.ProductID(); err == nil {
		log.Printf("flight: DPS310 product/revision id 0x%02X at 0x%02X", id, cfg.BaroI2CAddr)
	}

	// --- accelerometer on SPI ---
	accel, err := sensors.NewMPU9250(cfg.AccelSPIDevice, cfg.AccelCSPin, cfg.AccelRange)
	if err != nil {
		return fmt.Errorf("failed to initialize accelerometer: %w", err)
	}
	axis, err := sensors.ParseAxis(cfg.AccelAxis)
	if err != nil {
		return err
	}
	axisSrc := &sensors.AxisSource{Src: accel, Axis: axis}

	// --- buzzer ---
	pin := gpioreg.ByName(cfg.BuzzerPin)
	if pin == nil {
		return fmt.Errorf("buzzer pin %q not found", cfg.BuzzerPin)
	}
	buz := buzzer.New(pin)

	// --- flight log ---
	flog, err := flightlog.OpenFile(cfg.FlightLogPath)
	if err != nil {
		return fmt.Errorf("failed to open flight log: %w", err)
	}
	defer flog.Close()

	// --- telemetry downlink (optional, needs a broker) ---
	var queue *sendqueue.Queue[[]byte]
	if cfg.MQTTBroker != "" {
		queue = sendqueue.New[[]byte]()
		radio, err := telemetry.NewMQTTRadio(cfg.MQTTBroker, cfg.MQTTClientIDFlight, cfg.TopicTelemetry)
		if err != nil {
			return fmt.Errorf("failed to connect telemetry radio: %w", err)
		}
		defer radio.Close()

		tx := telemetry.NewTransmitter(queue, radio)
		go func() {
			if err := tx.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("flight: transmitter stopped: %v", err)
			}
		}()
	} else {
		log.Println("flight: MQTT_BROKER not set, telemetry downlink disabled")
	}

	// --- GPS locator feed (optional) ---
	if cfg.GPSSerialPort != "" && cfg.MQTTBroker != "" {
		gpsRadio, err := telemetry.NewMQTTRadio(cfg.MQTTBroker, cfg.MQTTClientIDFlight+"-gps", cfg.TopicGPS)
		if err != nil {
			return fmt.Errorf("failed to connect GPS radio: %w", err)
		}
		defer gpsRadio.Close()

		go func() {
			err := gps.Run(ctx, cfg.GPSSerialPort, cfg.GPSBaudRate, func(f gps.Fix) {
				payload, err := json.Marshal(f)
				if err != nil {
					log.Printf("flight: gps marshal error: %v", err)
					return
				}
				if err := gpsRadio.Send(payload); err != nil {
					log.Printf("flight: gps publish error: %v", err)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("flight: gps reader stopped: %v", err)
			}
		}()
		log.Printf("flight: GPS locator feed on %s @ %d baud", cfg.GPSSerialPort, cfg.GPSBaudRate)
	} else {
		log.Println("flight: locator feed disabled (needs GPS_SERIAL_PORT and MQTT_BROKER)")
	}

	machine := flight.New(flight.Config{
		LaunchAccelSum: cfg.LaunchAccelSum,
		TickInterval:   time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		PreArmDelay:    time.Duration(cfg.PreArmDelayS) * time.Second,
		StartupBurst:   time.Duration(cfg.StartupBurstS) * time.Second,
		ArmedBurst:     time.Duration(cfg.ArmedBurstS) * time.Second,
		TerminalBurst:  time.Duration(cfg.TerminalBurstS) * time.Second,
	}, flight.Deps{
		Accel:    axisSrc,
		Alt:      baro,
		Pressure: baro,
		Buzzer:   buz,
		Log:      flog,
		Queue:    queue,
	})

	log.Println("flight: entering control loop")
	return machine.Run(ctx)
}
