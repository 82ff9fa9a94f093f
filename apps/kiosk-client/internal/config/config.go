package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Harshitk-cp/smartcart/libs/validate"
)

// Config represents the kiosk client configuration
type Config struct {
	// Service information
	Service struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Environment string `yaml:"environment"`
		KioskID     string `yaml:"kiosk_id"`
	} `yaml:"service"`

	Backend BackendConfig `yaml:"backend"`
	Channel ChannelConfig `yaml:"channel"`
	Camera  CameraConfig  `yaml:"camera"`
	Emitter EmitterConfig `yaml:"emitter"`
	Status  StatusConfig  `yaml:"status"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig locates the perception backend
type BackendConfig struct {
	URL         string        `yaml:"url" validate:"required,httpurl"`
	WSPath      string        `yaml:"ws_path" validate:"required,startswith=/"`
	HTTPTimeout time.Duration `yaml:"http_timeout" validate:"gt=0"`
}

// ChannelConfig tunes the session channel
type ChannelConfig struct {
	BaseDelay         time.Duration `yaml:"base_delay" validate:"gt=0"`
	MaxAttempts       int           `yaml:"max_attempts" validate:"gte=1,lte=100"`
	DialTimeout       time.Duration `yaml:"dial_timeout" validate:"gt=0"`
	WriteWait         time.Duration `yaml:"write_wait" validate:"gt=0"`
	MaxMessageSize    int64         `yaml:"max_message_size" validate:"gte=1024"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" validate:"gte=0"`
	PingPeriod        time.Duration `yaml:"ping_period" validate:"gt=0,ltfield=PongWait"`
	PongWait          time.Duration `yaml:"pong_wait" validate:"gt=0"`
}

// CameraConfig selects and configures the capture device
type CameraConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=gst dir"`
	Device      string `yaml:"device"`
	Dir         string `yaml:"dir" validate:"required_if=Driver dir"`
	Width       int    `yaml:"width" validate:"gte=0"`
	Height      int    `yaml:"height" validate:"gte=0"`
	FPS         int    `yaml:"fps" validate:"gte=1,lte=60"`
	JPEGQuality int    `yaml:"jpeg_quality" validate:"gte=1,lte=100"`
}

// EmitterConfig controls frame upload
type EmitterConfig struct {
	Period  time.Duration `yaml:"period" validate:"gt=0"`
	DataURL bool          `yaml:"data_url"`
}

// StatusConfig configures the local status server
type StatusConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address" validate:"required_if=Enabled true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// environment lists the KIOSK_* variables that override the file.
type environment struct {
	BackendURL  string        `envconfig:"BACKEND_URL"`
	SessionWS   string        `envconfig:"WS_PATH"`
	CameraDev   string        `envconfig:"CAMERA_DEVICE"`
	CameraDir   string        `envconfig:"CAMERA_DIR"`
	Driver      string        `envconfig:"CAMERA_DRIVER"`
	Period      time.Duration `envconfig:"FRAME_PERIOD"`
	StatusAddr  string        `envconfig:"STATUS_ADDRESS"`
	LogLevel    string        `envconfig:"LOG_LEVEL"`
	LogFormat   string        `envconfig:"LOG_FORMAT"`
	Environment string        `envconfig:"ENVIRONMENT"`
	KioskID     string        `envconfig:"ID"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	config := &Config{
		Backend: BackendConfig{
			URL:         "http://localhost:8000",
			WSPath:      "/ws",
			HTTPTimeout: 15 * time.Second,
		},
		Channel: ChannelConfig{
			BaseDelay:         1000 * time.Millisecond,
			MaxAttempts:       5,
			DialTimeout:       10 * time.Second,
			WriteWait:         10 * time.Second,
			MaxMessageSize:    16 << 20,
			HeartbeatInterval: 0,
			PingPeriod:        30 * time.Second,
			PongWait:          60 * time.Second,
		},
		Camera: CameraConfig{
			Driver:      "gst",
			Device:      "/dev/video0",
			Width:       640,
			Height:      480,
			FPS:         15,
			JPEGQuality: 80,
		},
		Emitter: EmitterConfig{
			Period: 1000 * time.Millisecond,
		},
		Status: StatusConfig{
			Enabled:         true,
			Address:         "127.0.0.1:8090",
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
	config.Service.Name = "kiosk-client"
	config.Service.Environment = "development"
	return config
}

// Load loads the configuration from a file. An empty path, or a path that
// does not exist, yields the defaults; environment overrides apply either way.
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

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvironmentOverrides applies KIOSK_* environment overrides
func applyEnvironmentOverrides(config *Config) error {
	var env environment
	if err := envconfig.Process("KIOSK", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.BackendURL != "" {
		config.Backend.URL = env.BackendURL
	}
	if env.SessionWS != "" {
		config.Backend.WSPath = env.SessionWS
	}
	if env.Driver != "" {
		config.Camera.Driver = env.Driver
	}
	if env.CameraDev != "" {
		config.Camera.Device = env.CameraDev
	}
	if env.CameraDir != "" {
		config.Camera.Dir = env.CameraDir
	}
	if env.Period > 0 {
		config.Emitter.Period = env.Period
	}
	if env.StatusAddr != "" {
		config.Status.Address = env.StatusAddr
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
	if env.KioskID != "" {
		config.Service.KioskID = env.KioskID
	}
	return nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	return validate.Struct(config)
}
