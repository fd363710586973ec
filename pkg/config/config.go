package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/errors"
)

// Defaults matching common GB28181 lab deployments.
const (
	DefaultDeviceID = "34020000001320000001"
	DefaultServerID = "34020000002000000001"
	DefaultRealm    = "3402000000"
)

// DefaultMediaSources are rotated across channels when no explicit source
// list is configured.
var DefaultMediaSources = []string{
	"rtmp://ns8.indexforce.com/home/mystream",
}

var deviceIDPattern = regexp.MustCompile(`^\d{20}$`)

// Config is the complete simulator configuration.
type Config struct {
	// Signaling target
	ServerIP   string `json:"server_ip" env:"GB_SERVER_IP"`
	ServerPort int    `json:"server_port" env:"GB_SERVER_PORT"`

	// Device identity
	DeviceID string `json:"device_id" env:"GB_DEVICE_ID"`
	ServerID string `json:"server_id" env:"GB_SERVER_ID"`
	Realm    string `json:"realm" env:"GB_REALM"`
	Password string `json:"password" env:"GB_PASSWORD"`

	// Channels
	ChannelCount int      `json:"channel_count" env:"GB_CHANNELS"`
	MediaSources []string `json:"media_sources" env:"GB_MEDIA_SOURCES"`

	// Local socket
	LocalPortMin int `json:"local_port_min" env:"GB_LOCAL_PORT_MIN"`
	LocalPortMax int `json:"local_port_max" env:"GB_LOCAL_PORT_MAX"`

	// Timing
	HeartbeatInterval time.Duration `json:"heartbeat_interval" env:"GB_HEARTBEAT_INTERVAL"`
	ResponseTimeout   time.Duration `json:"response_timeout" env:"GB_RESPONSE_TIMEOUT"`
	ReceivePoll       time.Duration `json:"receive_poll" env:"GB_RECEIVE_POLL"`
	CatalogDelay      time.Duration `json:"catalog_delay" env:"GB_CATALOG_DELAY"`
	RegisterExpires   int           `json:"register_expires" env:"GB_REGISTER_EXPIRES"`

	// Observability
	LogLevel    string `json:"log_level" env:"LOG_LEVEL"`
	MetricsPort int    `json:"metrics_port" env:"GB_METRICS_PORT"`
}

// Load reads configuration from a .env file (when present) and the
// environment. CLI flags are merged on top by the caller.
func Load(logger *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded configuration from .env file")
	} else {
		logger.Debug("No .env file found, using environment variables only")
	}

	cfg := &Config{
		ServerIP:          getEnv("GB_SERVER_IP", "127.0.0.1"),
		DeviceID:          getEnv("GB_DEVICE_ID", DefaultDeviceID),
		ServerID:          getEnv("GB_SERVER_ID", DefaultServerID),
		Realm:             getEnv("GB_REALM", DefaultRealm),
		Password:          getEnv("GB_PASSWORD", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MediaSources:      getEnvList("GB_MEDIA_SOURCES", DefaultMediaSources),
		ServerPort:        getEnvInt(logger, "GB_SERVER_PORT", 5060),
		ChannelCount:      getEnvInt(logger, "GB_CHANNELS", 4),
		LocalPortMin:      getEnvInt(logger, "GB_LOCAL_PORT_MIN", 5080),
		LocalPortMax:      getEnvInt(logger, "GB_LOCAL_PORT_MAX", 5099),
		RegisterExpires:   getEnvInt(logger, "GB_REGISTER_EXPIRES", 3600),
		MetricsPort:       getEnvInt(logger, "GB_METRICS_PORT", 0),
		HeartbeatInterval: getEnvDuration(logger, "GB_HEARTBEAT_INTERVAL", 30*time.Second),
		ResponseTimeout:   getEnvDuration(logger, "GB_RESPONSE_TIMEOUT", 5*time.Second),
		ReceivePoll:       getEnvDuration(logger, "GB_RECEIVE_POLL", 1*time.Second),
		CatalogDelay:      getEnvDuration(logger, "GB_CATALOG_DELAY", 100*time.Millisecond),
	}

	return cfg, nil
}

// Validate checks invariants that would otherwise surface as protocol
// failures mid-run.
func (c *Config) Validate() error {
	if !deviceIDPattern.MatchString(c.DeviceID) {
		return errors.New("device id must be a 20-digit code", map[string]interface{}{
			"device_id": c.DeviceID,
		})
	}
	if c.ServerIP == "" {
		return errors.New("server ip is required")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return errors.New(fmt.Sprintf("invalid server port %d", c.ServerPort))
	}
	if c.ChannelCount < 1 {
		return errors.New("at least one channel is required")
	}
	if c.LocalPortMin > c.LocalPortMax || c.LocalPortMin <= 0 {
		return errors.New(fmt.Sprintf("invalid local port range %d-%d", c.LocalPortMin, c.LocalPortMax))
	}
	if len(c.MediaSources) == 0 {
		return errors.New("at least one media source is required")
	}
	if c.HeartbeatInterval <= 0 || c.ResponseTimeout <= 0 || c.ReceivePoll <= 0 {
		return errors.New("timing intervals must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(logger *logrus.Logger, key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"key":     key,
			"value":   value,
			"default": defaultValue,
		}).Warn("Invalid integer in environment, using default")
		return defaultValue
	}
	return parsed
}

func getEnvDuration(logger *logrus.Logger, key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"key":     key,
			"value":   value,
			"default": defaultValue,
		}).Warn("Invalid duration in environment, using default")
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
