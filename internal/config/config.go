// Package config holds the relay's runtime settings: defaults, environment
// overrides and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultPort - TCP port the relay listens on when none is given.
const DefaultPort = "4620"

// Config holds the relay configuration.
type Config struct {
	Port           string
	MaxConnections int
	MessageSize    int
	NicknameLength int
	QueueSize      int
	WriteTimeout   time.Duration
	// WebSocketAddr enables the WebSocket gateway when not empty, e.g. ":4680".
	WebSocketAddr string
	// LogFile receives the activity log. Empty disables it.
	LogFile string
	// UI runs the operator console instead of plain logging.
	UI bool
}

// Default creates a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		MaxConnections: 64,
		MessageSize:    10240,
		NicknameLength: 64,
		QueueSize:      64,
		WriteTimeout:   10 * time.Second,
		LogFile:        "relay.log",
	}
}

// FromEnv creates a Config from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func FromEnv() Config {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) Config {
	cfg := Default()

	if port, ok := lookup("RELAY_PORT"); ok && port != "" {
		cfg.Port = port
	}
	if v, ok := lookup("RELAY_MAX_CONNS"); ok {
		cfg.MaxConnections = parseIntValue(v, cfg.MaxConnections)
	}
	if v, ok := lookup("RELAY_MSG_SIZE"); ok {
		cfg.MessageSize = parseIntValue(v, cfg.MessageSize)
	}
	if v, ok := lookup("RELAY_NICK_LEN"); ok {
		cfg.NicknameLength = parseIntValue(v, cfg.NicknameLength)
	}
	if v, ok := lookup("RELAY_QUEUE_SIZE"); ok {
		cfg.QueueSize = parseIntValue(v, cfg.QueueSize)
	}
	if v, ok := lookup("RELAY_WRITE_TIMEOUT"); ok {
		cfg.WriteTimeout = parseSeconds(v, cfg.WriteTimeout)
	}
	if v, ok := lookup("RELAY_WS_ADDR"); ok {
		cfg.WebSocketAddr = v
	}
	if v, ok := lookup("RELAY_LOG_FILE"); ok {
		cfg.LogFile = v
	}

	return cfg
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// Validate reports the first setting the relay cannot run with.
func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid port number: %s", c.Port)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("invalid connection limit: %d", c.MaxConnections)
	}
	if c.MessageSize < 2 {
		return fmt.Errorf("invalid message size: %d", c.MessageSize)
	}
	if c.NicknameLength < 2 {
		return fmt.Errorf("invalid nickname length: %d", c.NicknameLength)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid queue size: %d", c.QueueSize)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v", c.WriteTimeout)
	}
	return nil
}

// ListenAddr - TCP address for the relay listener.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}
