package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/RogersSccot/STI-Vision/camproto"
	"github.com/RogersSccot/STI-Vision/session"
	"github.com/RogersSccot/STI-Vision/snapshot"
)

const (
	BackendDir = "dir"
	BackendS3  = "s3"
)

// Config is the stivision configuration file.
type Config struct {
	Camera   CameraConfig   `json:"camera"`
	Relay    RelayConfig    `json:"relay"`
	Web      WebConfig      `json:"web"`
	Snapshot SnapshotConfig `json:"snapshot"`
}

type CameraConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	Width      int32         `json:"width"`
	Height     int32         `json:"height"`
	FPS        int32         `json:"fps"`
	Quality    int32         `json:"quality"`
	OverlayFPS bool          `json:"overlay_fps"`
	Timeout    time.Duration `json:"timeout"`
	QueueSize  int           `json:"queue_size"`

	// Reconnect dials again after the stream dies.
	Reconnect  bool          `json:"reconnect"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

type RelayConfig struct {
	ListenAddr   string `json:"listen_address"`
	ListenSerial string `json:"listen_serial"`
	ListenBaud   int    `json:"listen_baud"`

	DialAddr   string `json:"dial_address"`
	DialSerial string `json:"dial_serial"`
	DialBaud   int    `json:"dial_baud"`

	Advertise bool `json:"advertise"`
}

type WebConfig struct {
	Addr    string `json:"address"`
	Overlay bool   `json:"overlay"`
	Quality int    `json:"jpeg_quality"`
}

type SnapshotConfig struct {
	Backend string            `json:"backend"`
	Dir     string            `json:"dir"`
	S3      snapshot.S3Config `json:"s3"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			Host:       "nanopiduo2",
			Port:       6756,
			Width:      1920,
			Height:     1080,
			FPS:        60,
			Quality:    80,
			Timeout:    20 * time.Second,
			QueueSize:  3,
			MaxRetries: 5,
			RetryDelay: time.Second,
		},
		Relay: RelayConfig{
			ListenAddr:   "0.0.0.0:2000",
			ListenSerial: "COM2",
			ListenBaud:   9600,
			DialAddr:     "orangepizero3.lan:2001",
			DialSerial:   "COM2",
			DialBaud:     500000,
		},
		Web: WebConfig{
			Addr:    ":8079",
			Overlay: true,
			Quality: 80,
		},
		Snapshot: SnapshotConfig{
			Backend: BackendDir,
			Dir:     snapshot.DefaultDir,
		},
	}
}

// Load reads a JSON file on top of the defaults, so a partial file only
// overrides what it names.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func Save(config *Config, filename string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if c.Web.Addr == "" {
		return fmt.Errorf("web: address is required")
	}
	if c.Web.Quality < 1 || c.Web.Quality > 100 {
		return fmt.Errorf("web: jpeg_quality must be in 1..100")
	}
	switch c.Snapshot.Backend {
	case BackendDir:
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot: dir is required")
		}
	case BackendS3:
		if c.Snapshot.S3.Bucket == "" {
			return fmt.Errorf("snapshot: s3 bucket is required")
		}
	default:
		return fmt.Errorf("snapshot: unknown backend %q", c.Snapshot.Backend)
	}
	return nil
}

func (c *CameraConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("resolution %dx%d must be positive", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be in 1..100")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func (c *RelayConfig) Validate() error {
	if c.ListenBaud <= 0 || c.DialBaud <= 0 {
		return fmt.Errorf("baud rate must be positive")
	}
	return nil
}

func (c CameraConfig) Endpoint() session.Endpoint {
	return session.Endpoint{Host: c.Host, Port: c.Port}
}

func (c CameraConfig) CaptureOptions() camproto.CaptureOptions {
	return camproto.CaptureOptions{
		Width:      c.Width,
		Height:     c.Height,
		TargetFPS:  c.FPS,
		Quality:    c.Quality,
		OverlayFPS: c.OverlayFPS,
	}
}

func (c CameraConfig) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ReadTimeout = c.Timeout
	if c.QueueSize > 0 {
		cfg.QueueSize = c.QueueSize
	}
	return cfg
}

func (c CameraConfig) ReconnectConfig() session.ReconnectConfig {
	cfg := session.DefaultReconnectConfig()
	cfg.MaxRetries = c.MaxRetries
	if c.RetryDelay > 0 {
		cfg.RetryDelay = c.RetryDelay
	}
	return cfg
}

// UnmarshalJSON implements custom JSON unmarshaling for durations
func (c *CameraConfig) UnmarshalJSON(data []byte) error {
	type Alias CameraConfig
	aux := &struct {
		Timeout    string `json:"timeout"`
		RetryDelay string `json:"retry_delay"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout format: %w", err)
		}
		c.Timeout = d
	}
	if aux.RetryDelay != "" {
		d, err := time.ParseDuration(aux.RetryDelay)
		if err != nil {
			return fmt.Errorf("invalid retry_delay format: %w", err)
		}
		c.RetryDelay = d
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling for durations
func (c CameraConfig) MarshalJSON() ([]byte, error) {
	type Alias CameraConfig
	return json.Marshal(&struct {
		Timeout    string `json:"timeout"`
		RetryDelay string `json:"retry_delay"`
		*Alias
	}{
		Timeout:    c.Timeout.String(),
		RetryDelay: c.RetryDelay.String(),
		Alias:      (*Alias)(&c),
	})
}

// Store builds the snapshot store selected by Backend.
func (c SnapshotConfig) Store() snapshot.Store {
	if c.Backend == BackendS3 {
		return snapshot.NewS3Store(snapshot.NewS3Client(c.S3), c.S3.Bucket, c.S3.Prefix)
	}
	return snapshot.NewDirStore(c.Dir)
}
