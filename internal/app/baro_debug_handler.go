// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/flight_computer/internal/config"
	"github.com/relabs-tech/flight_computer/internal/dps310"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Bench tool, same-host use only.
		return true
	},
}

// BaroDebugSession holds WebSocket connection state for barometer debugging.
type BaroDebugSession struct {
	Conn *websocket.Conn
	Dev  *dps310.Dev
}

// BaroResponse is the single response envelope for all actions.
type BaroResponse struct {
	Type        string            `json:"type"` // "register_data", "reading", "status", "error"
	Address     string            `json:"addr,omitempty"`
	Value       string            `json:"value,omitempty"`
	Registers   map[string]string `json:"registers,omitempty"`
	Pressure    float64           `json:"pressure_hpa,omitempty"`
	Temperature float64           `json:"temperature_c,omitempty"`
	Altitude    float64           `json:"altitude_m,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// baroRegisterSpan is the address range dumped by read_all: the data,
// configuration and status registers plus the calibration block.
const (
	baroRegFirst = 0x00
	baroRegLast  = 0x21
)

// RunBaroDebug wires the DPS310 and serves the register debug tool over HTTP
// and WebSocket.
func RunBaroDebug(ctx context.Context) error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := dps310.New(&i2c.Dev{Bus: bus, Addr: cfg.BaroI2CAddr}, &dps310.Opts{
		Oversampling:     cfg.BaroOversampling,
		PollTimeout:      time.Duration(cfg.BaroPollTimeoutS) * time.Second,
		SeaLevelPressure: cfg.SeaLevelPressure,
	})
	if err != nil {
		return fmt.Errorf("failed to build DPS310: %w", err)
	}
	if err := dev.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize DPS310: %w", err)
	}

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleBaroDebugWS(ctx, dev, w, r)
	})

	// REST endpoint for a one-shot compensated reading
	http.HandleFunc("/api/baro", func(w http.ResponseWriter, r *http.Request) {
		handleBaroData(dev, w, r)
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/baro_debug.html")
	})

	addr := fmt.Sprintf(":%d", cfg.BaroDebugPort)
	log.Printf("baro debug tool listening on %s", addr)
	log.Printf("open http://localhost%s in your browser", addr)
	return http.ListenAndServe(addr, nil)
}

// handleBaroDebugWS handles the WebSocket connection for register debugging.
func handleBaroDebugWS(ctx context.Context, dev *dps310.Dev, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("baro_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &BaroDebugSession{Conn: conn, Dev: dev}

	// Message loop
	for {
		var rawMsg map[string]interface{}
		err := conn.ReadJSON(&rawMsg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("baro_debug: websocket error: %v", err)
			}
			break
		}

		action, ok := rawMsg["action"].(string)
		if !ok {
			session.sendError("missing or invalid action field")
			continue
		}

		switch action {
		case "read":
			session.handleRead(rawMsg)
		case "read_all":
			session.handleReadAll()
		case "write":
			session.handleWrite(rawMsg)
		case "reading":
			session.handleReading()
		case "reinit":
			session.handleReinit(ctx)
		default:
			session.sendError(fmt.Sprintf("unknown action: %s", action))
		}
	}
}

func (s *BaroDebugSession) handleRead(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	if addr == "" {
		s.sendError("missing addr field")
		return
	}

	var addrByte byte
	if _, err := fmt.Sscanf(addr, "0x%X", &addrByte); err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}

	value, err := s.Dev.ReadRegister(addrByte)
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}

	resp := BaroResponse{
		Type:      "register_data",
		Address:   addr,
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

func (s *BaroDebugSession) handleReadAll() {
	regMap := make(map[string]string)
	for addr := byte(baroRegFirst); addr <= baroRegLast; addr++ {
		value, err := s.Dev.ReadRegister(addr)
		if err != nil {
			s.sendError(fmt.Sprintf("read all error at 0x%02X: %v", addr, err))
			return
		}
		regMap[fmt.Sprintf("0x%02X", addr)] = fmt.Sprintf("0x%02X", value)
	}

	resp := BaroResponse{
		Type:      "register_data",
		Registers: regMap,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

func (s *BaroDebugSession) handleWrite(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	valueStr, _ := rawMsg["value"].(string)

	if addr == "" || valueStr == "" {
		s.sendError("missing addr or value field")
		return
	}

	var addrByte, valueByte byte
	if _, err := fmt.Sscanf(addr, "0x%X", &addrByte); err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}
	if _, err := fmt.Sscanf(valueStr, "0x%X", &valueByte); err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", valueStr))
		return
	}

	// The calibration block is read-only silicon; refuse writes there so a
	// typo cannot wedge the part until power cycle.
	if addrByte >= 0x10 && addrByte <= 0x21 {
		s.sendError(fmt.Sprintf("register 0x%02X is in the read-only calibration block", addrByte))
		return
	}

	if err := s.Dev.WriteRegister(addrByte, valueByte); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}

	resp := BaroResponse{
		Type:      "register_data",
		Address:   addr,
		Value:     valueStr,
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	}
	s.Conn.WriteJSON(resp)
}

func (s *BaroDebugSession) handleReading() {
	pressure, err := s.Dev.Pressure()
	if err != nil {
		s.sendError(fmt.Sprintf("pressure read error: %v", err))
		return
	}
	temp, err := s.Dev.Temperature()
	if err != nil {
		s.sendError(fmt.Sprintf("temperature read error: %v", err))
		return
	}
	alt, err := s.Dev.Altitude()
	if err != nil {
		s.sendError(fmt.Sprintf("altitude read error: %v", err))
		return
	}

	resp := BaroResponse{
		Type:        "reading",
		Pressure:    pressure,
		Temperature: temp,
		Altitude:    alt,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

func (s *BaroDebugSession) handleReinit(ctx context.Context) {
	if err := s.Dev.Init(ctx); err != nil {
		s.sendError(fmt.Sprintf("reinit error: %v", err))
		return
	}
	resp := BaroResponse{
		Type:      "status",
		Message:   "sensor reset and reinitialized",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

func (s *BaroDebugSession) sendError(message string) {
	resp := BaroResponse{
		Type:    "error",
		Message: message,
	}
	s.Conn.WriteJSON(resp)
}

// handleBaroData serves one compensated reading via REST.
func handleBaroData(dev *dps310.Dev, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	pressure, err := dev.Pressure()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": "%v"}`, err), http.StatusInternalServerError)
		return
	}
	temp, err := dev.Temperature()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": "%v"}`, err), http.StatusInternalServerError)
		return
	}
	alt, err := dev.Altitude()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": "%v"}`, err), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(BaroResponse{
		Type:        "reading",
		Pressure:    pressure,
		Temperature: temp,
		Altitude:    alt,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}
