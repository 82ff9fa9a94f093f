package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Harshitk-cp/smartcart/libs/validate"
)

// Config represents the kiosk-sim configuration
type Config struct {
	// Service information
	Service struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Frames    FramesConfig    `yaml:"frames"`
	Admin     AdminConfig     `yaml:"admin"`
	Scenario  ScenarioConfig  `yaml:"scenario"`
	Log       LogConfig       `yaml:"log"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	EnableCORS      bool          `yaml:"enable_cors"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// WebSocketConfig represents the session socket configuration
type WebSocketConfig struct {
	Path           string        `yaml:"path" validate:"required,startswith=/"`
	BufferSize     int           `yaml:"buffer_size" validate:"gte=1024"`
	MaxMessageSize int64         `yaml:"max_message_size" validate:"gte=1024"`
	PingPeriod     time.Duration `yaml:"ping_period" validate:"gt=0,ltfield=PongWait"`
	PongWait       time.Duration `yaml:"pong_wait" validate:"gt=0"`
	WriteWait      time.Duration `yaml:"write_wait" validate:"gt=0"`
	SendBuffer     int           `yaml:"send_buffer" validate:"gte=1"`
}

// FramesConfig throttles frame processing per session
type FramesConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gt=0"`
	Burst         int     `yaml:"burst" validate:"gte=1"`
}

// AdminConfig holds the administrator credentials
type AdminConfig struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`
}

// ScenarioConfig points at the scripted scenario
type ScenarioConfig struct {
	Path string `yaml:"path"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type environment struct {
	Address       string  `envconfig:"HTTP_ADDRESS"`
	AdminUsername string  `envconfig:"ADMIN_USERNAME"`
	AdminPassword string  `envconfig:"ADMIN_PASSWORD"`
	Scenario      string  `envconfig:"SCENARIO"`
	FrameRate     float64 `envconfig:"FRAME_RATE"`
	LogLevel      string  `envconfig:"LOG_LEVEL"`
	LogFormat     string  `envconfig:"LOG_FORMAT"`
	Environment   string  `envconfig:"ENVIRONMENT"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	config := &Config{
		HTTP: HTTPConfig{
			Address:         ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			EnableCORS:      true,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			BufferSize:     4096,
			MaxMessageSize: 16 << 20,
			PingPeriod:     30 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			SendBuffer:     256,
		},
		Frames: FramesConfig{
			RatePerSecond: 5,
			Burst:         1,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "admin123",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
	config.Service.Name = "kiosk-sim"
	config.Service.Description = "Scripted smart cart backend"
	config.Service.Environment = "development"
	return config
}

// Load loads the configuration from a file, then applies KIOSKSIM_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func applyEnvironmentOverrides(config *Config) error {
	var env environment
	if err := envconfig.Process("KIOSKSIM", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.Address != "" {
		config.HTTP.Address = env.Address
	}
	if env.AdminUsername != "" {
		config.Admin.Username = env.AdminUsername
	}
	if env.AdminPassword != "" {
		config.Admin.Password = env.AdminPassword
	}
	if env.Scenario != "" {
		config.Scenario.Path = env.Scenario
	}
	if env.FrameRate > 0 {
		config.Frames.RatePerSecond = env.FrameRate
	}
	if env.LogLevel != "" {
		config.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		config.Log.Format = env.LogFormat
	}
	if env.Environment != "" {
		config.Service.Environment = env.Environment
	}
	return nil
}

// NewLogger builds the structured logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
