package gps

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// Run opens the GPS serial port, parses NMEA sentences and calls handle for
// every RMC fix until ctx is done or the port fails. Partial or non-NMEA
// lines are skipped silently; the receiver is noisy by nature.
func Run(ctx context.Context, port string, baud uint, handle func(Fix)) error {
	opts := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	p, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", port, err)
	}
	defer p.Close()
	log.Printf("gps: serial port opened on %s at %d baud", port, baud)

	// Close the port when the context ends so the blocking read returns.
	go func() {
		<-ctx.Done()
		p.Close()
	}()

	reader := bufio.NewReader(p)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gps: read: %w", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		if sentence.DataType() != nmea.TypeRMC {
			continue
		}
		m := sentence.(nmea.RMC)
		handle(Fix{
			Time:       m.Time.String(),
			Date:       m.Date.String(),
			Latitude:   m.Latitude,
			Longitude:  m.Longitude,
			SpeedKnots: m.Speed,
			CourseDeg:  m.Course,
			Validity:   string(m.Validity),
		})
	}
}
