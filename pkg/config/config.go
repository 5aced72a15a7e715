package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Position  PositionConfig  `yaml:"position"`
	Geofence  GeofenceConfig  `yaml:"geofence"`
	Nav       NavConfig       `yaml:"nav"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// IngestionConfig holds settings for the remote ingestion endpoint.
// An empty base URL is a valid degraded state: delivery always fails and
// the subsystem runs purely as a local buffer.
type IngestionConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"` // falls back to TRACETRIP_API_TOKEN
	Timeout Duration `yaml:"timeout"`
}

// TrackingConfig holds telemetry loop settings.
type TrackingConfig struct {
	Interval Duration `yaml:"interval"` // telemetry tick period
}

// PositionConfig holds settings for the position source.
type PositionConfig struct {
	Provider string       `yaml:"provider"` // "serial", "mock"
	Serial   SerialConfig `yaml:"serial"`
	Mock     MockConfig   `yaml:"mock"`
}

// SerialConfig holds settings for the NMEA serial GPS source.
type SerialConfig struct {
	Port     string `yaml:"port"` // e.g. "/dev/ttyUSB0", "COM3"
	BaudRate int    `yaml:"baud_rate"`
}

// MockConfig holds settings for the simulated position source.
type MockConfig struct {
	StartLat   float64 `yaml:"start_lat"`
	StartLon   float64 `yaml:"start_lon"`
	SpeedMps   float64 `yaml:"speed_mps"`
	HeadingDeg float64 `yaml:"heading_deg"`
}

// GeofenceConfig holds settings for the geofence monitor.
type GeofenceConfig struct {
	WatchInterval Duration `yaml:"watch_interval"` // denser than the telemetry tick
}

// NavConfig holds settings for the navigation calculator.
type NavConfig struct {
	WatchInterval      Duration `yaml:"watch_interval"`       // guidance poll period while navigating
	ArrivalRadius      Distance `yaml:"arrival_radius"`       // per-waypoint geofence radius
	DefaultCruiseSpeed float64  `yaml:"default_cruise_speed"` // m/s, for ETA when speed is unknown
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DB: DBConfig{
			Path: "./data/tracetrip.db",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Ingestion: IngestionConfig{
			BaseURL: "",
			Timeout: Duration(15 * time.Second),
		},
		Tracking: TrackingConfig{
			Interval: Duration(10 * time.Minute),
		},
		Position: PositionConfig{
			Provider: "mock",
			Serial: SerialConfig{
				Port:     "",
				BaudRate: 9600,
			},
			Mock: MockConfig{
				StartLat:   -23.5505,
				StartLon:   -46.6333,
				SpeedMps:   13.9, // ~50 km/h
				HeadingDeg: 90,
			},
		},
		Geofence: GeofenceConfig{
			WatchInterval: Duration(15 * time.Second),
		},
		Nav: NavConfig{
			WatchInterval:      Duration(5 * time.Second),
			ArrivalRadius:      Distance(100),
			DefaultCruiseSpeed: 13.9,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		// If file does not exist, save defaults
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	// Load the token from env if empty (fallback only, never saved back)
	if cfg.Ingestion.Token == "" {
		if tok := os.Getenv("TRACETRIP_API_TOKEN"); tok != "" {
			cfg.Ingestion.Token = tok
		}
	}

	return cfg, nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# TraceTrip Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
