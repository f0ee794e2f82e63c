package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all flight-computer configuration values.
type Config struct {
	// Barometer (DPS310)
	I2CBus           string
	BaroI2CAddr      uint16
	BaroOversampling int     // rate code 0-7 (1x..128x)
	BaroPollTimeoutS int     // 0 = unbounded ready polls
	SeaLevelPressure float64 // hPa

	// Accelerometer (MPU9250)
	AccelSPIDevice string
	AccelCSPin     string
	// Accelerometer full-scale range: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	AccelRange byte
	AccelAxis  string // dominant axis: "x", "y" or "z"

	// Buzzer
	BuzzerPin string

	// Flight state machine
	LaunchAccelSum float64 // m/s², threshold over the 3-sample window sum
	TickIntervalMS int
	PreArmDelayS   int
	StartupBurstS  int
	ArmedBurstS    int
	TerminalBurstS int

	// Flight log
	FlightLogPath string

	// Telemetry / MQTT
	MQTTBroker          string
	MQTTClientIDFlight  string
	MQTTClientIDConsole string
	MQTTClientIDGround  string
	MQTTClientIDDisplay string
	TopicTelemetry      string
	TopicGPS            string

	// GPS (optional; empty port disables the locator feed)
	GPSSerialPort string
	GPSBaudRate   uint

	// Ground-side tools
	GroundstationPort int
	BaroDebugPort     int
	DisplayUpdateMS   int
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only reachable through InitGlobal/Get so external code
//     cannot modify configuration without proper locking.
//   - configOnce ensures InitGlobal only runs once even if called repeatedly.
//   - configMu allows multiple concurrent readers via Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a Config pre-filled with the reference deployment values.
func defaults() *Config {
	return &Config{
		BaroI2CAddr:      0x77,
		BaroOversampling: 6, // 64x
		BaroPollTimeoutS: 10,
		SeaLevelPressure: 1013.25,

		AccelRange: 3, // ±16g; boost pulls well past ±8g
		AccelAxis:  "z",

		LaunchAccelSum: 30,
		TickIntervalMS: 100,
		PreArmDelayS:   1800,
		StartupBurstS:  3,
		ArmedBurstS:    5,
		TerminalBurstS: 1800,

		MQTTClientIDFlight:  "flight-computer",
		MQTTClientIDConsole: "flight-console",
		MQTTClientIDGround:  "flight-groundstation",
		MQTTClientIDDisplay: "flight-display",
		TopicTelemetry:      "flight/telemetry",
		TopicGPS:            "flight/gps",

		GPSBaudRate: 9600,

		GroundstationPort: 8080,
		BaroDebugPort:     8081,
		DisplayUpdateMS:   500,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Barometer
	case "I2C_BUS":
		c.I2CBus = value
	case "BARO_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid BARO_I2C_ADDR %q: %w", value, err)
		}
		c.BaroI2CAddr = uint16(addr)
	case "BARO_OVERSAMPLING":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BARO_OVERSAMPLING %q: %w", value, err)
		}
		if val < 0 || val > 7 {
			return fmt.Errorf("BARO_OVERSAMPLING must be 0-7 (0=1x .. 7=128x), got %d", val)
		}
		c.BaroOversampling = val
	case "BARO_POLL_TIMEOUT_S":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BARO_POLL_TIMEOUT_S %q: %w", value, err)
		}
		if val < 0 {
			return fmt.Errorf("BARO_POLL_TIMEOUT_S must be >= 0, got %d", val)
		}
		c.BaroPollTimeoutS = val
	case "SEA_LEVEL_PRESSURE_HPA":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SEA_LEVEL_PRESSURE_HPA %q: %w", value, err)
		}
		c.SeaLevelPressure = val

	// Accelerometer
	case "ACCEL_SPI_DEVICE":
		c.AccelSPIDevice = value
	case "ACCEL_CS_PIN":
		c.AccelCSPin = value
	case "ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.AccelRange = byte(rangeVal)
	case "ACCEL_AXIS":
		if value != "x" && value != "y" && value != "z" {
			return fmt.Errorf("ACCEL_AXIS must be x, y or z, got %q", value)
		}
		c.AccelAxis = value

	// Buzzer
	case "BUZZER_PIN":
		c.BuzzerPin = value

	// Flight state machine
	case "LAUNCH_ACCEL_SUM":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid LAUNCH_ACCEL_SUM %q: %w", value, err)
		}
		if val <= 0 {
			return fmt.Errorf("LAUNCH_ACCEL_SUM must be positive, got %v", val)
		}
		c.LaunchAccelSum = val
	case "TICK_INTERVAL_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL_MS %q: %w", value, err)
		}
		if val <= 0 {
			return fmt.Errorf("TICK_INTERVAL_MS must be positive, got %d", val)
		}
		c.TickIntervalMS = val
	case "PRE_ARM_DELAY_S":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PRE_ARM_DELAY_S %q: %w", value, err)
		}
		if val < 0 {
			return fmt.Errorf("PRE_ARM_DELAY_S must be >= 0, got %d", val)
		}
		c.PreArmDelayS = val
	case "STARTUP_BURST_S":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STARTUP_BURST_S %q: %w", value, err)
		}
		c.StartupBurstS = val
	case "ARMED_BURST_S":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ARMED_BURST_S %q: %w", value, err)
		}
		c.ArmedBurstS = val
	case "TERMINAL_BURST_S":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TERMINAL_BURST_S %q: %w", value, err)
		}
		c.TerminalBurstS = val

	// Flight log
	case "FLIGHT_LOG_PATH":
		c.FlightLogPath = value

	// Telemetry / MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FLIGHT":
		c.MQTTClientIDFlight = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_GROUND":
		c.MQTTClientIDGround = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		if rate <= 0 {
			return fmt.Errorf("GPS_BAUD_RATE must be positive, got %d", rate)
		}
		c.GPSBaudRate = uint(rate)

	// Ground-side tools
	case "GROUNDSTATION_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GROUNDSTATION_PORT %q: %w", value, err)
		}
		c.GroundstationPort = port
	case "BARO_DEBUG_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BARO_DEBUG_PORT %q: %w", value, err)
		}
		c.BaroDebugPort = port
	case "DISPLAY_UPDATE_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL_MS %q: %w", value, err)
		}
		c.DisplayUpdateMS = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.BuzzerPin == "" {
		return fmt.Errorf("BUZZER_PIN is required")
	}
	if c.AccelSPIDevice == "" {
		return fmt.Errorf("ACCEL_SPI_DEVICE is required")
	}
	if c.AccelCSPin == "" {
		return fmt.Errorf("ACCEL_CS_PIN is required")
	}
	if c.FlightLogPath == "" {
		return fmt.Errorf("FLIGHT_LOG_PATH is required")
	}
	// MQTT_BROKER intentionally stays optional: the airborne program flies
	// without a downlink, only the ground tools insist on one.
	return nil
}

// InitGlobal initializes the global configuration from file. Uses sync.Once
// so repeated calls are harmless.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this returns nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
