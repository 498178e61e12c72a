// Package config loads the capture service configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/rangescan/internal/lidar/l1packets/parse"
)

// Defaults for every optional CaptureConfig field.
const (
	DefaultBaudRate        = 115200
	DefaultDataBits        = 8
	DefaultStopBits        = 1
	DefaultParity          = "N"
	DefaultReadTimeout     = time.Second
	DefaultDataSize        = 480
	DefaultInvert          = true
	DefaultPublishInterval = 50 * time.Millisecond
	DefaultFrameID         = "map"
	DefaultRangeMin        = 0.08
	DefaultRangeMax        = 1.0
	DefaultStatsInterval   = 10 * time.Second
	DefaultRecordInterval  = time.Second
	DefaultGRPCListen      = "localhost:50052"
	DefaultHTTPListen      = ":8082"
)

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// CaptureConfig is the root configuration for a capture service. Every
// field is optional; the Get* methods supply defaults for fields left unset,
// so partial files are safe.
type CaptureConfig struct {
	// Serial port
	Port        *string `json:"port,omitempty" yaml:"port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"` // duration string like "1s"

	// Capture
	DataSize     *int    `json:"data_size,omitempty" yaml:"data_size,omitempty"`
	Invert       *bool   `json:"invert,omitempty" yaml:"invert,omitempty"`
	Magic        *string `json:"magic,omitempty" yaml:"magic,omitempty"` // hex like "55AA0308"
	MaxSyncBytes *int    `json:"max_sync_bytes,omitempty" yaml:"max_sync_bytes,omitempty"`

	// Publishing
	PublishInterval *string  `json:"publish_interval,omitempty" yaml:"publish_interval,omitempty"`
	FrameID         *string  `json:"frame_id,omitempty" yaml:"frame_id,omitempty"`
	RangeMin        *float64 `json:"range_min,omitempty" yaml:"range_min,omitempty"`
	RangeMax        *float64 `json:"range_max,omitempty" yaml:"range_max,omitempty"`

	// Housekeeping
	StatsInterval  *string `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"`
	RecordInterval *string `json:"record_interval,omitempty" yaml:"record_interval,omitempty"`

	// Outputs
	GRPCListen *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`
	HTTPListen *string `json:"http_listen,omitempty" yaml:"http_listen,omitempty"`
	DBPath     *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	PcapPath   *string `json:"pcap_path,omitempty" yaml:"pcap_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyCaptureConfig returns a CaptureConfig with all fields set to nil.
func EmptyCaptureConfig() *CaptureConfig {
	return &CaptureConfig{}
}

// LoadCaptureConfig loads a CaptureConfig from a .json, .yaml or .yml file.
// The file must be under 1MB.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCaptureConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *CaptureConfig) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.DataBits != nil && (*c.DataBits < 5 || *c.DataBits > 8) {
		return fmt.Errorf("data_bits must be between 5 and 8, got %d", *c.DataBits)
	}
	if c.StopBits != nil && *c.StopBits != 1 && *c.StopBits != 2 {
		return fmt.Errorf("stop_bits must be 1 or 2, got %d", *c.StopBits)
	}
	if c.Parity != nil {
		switch strings.ToUpper(*c.Parity) {
		case "", "N", "O", "E", "M", "S":
		default:
			return fmt.Errorf("parity must be one of N, O, E, M, S, got %q", *c.Parity)
		}
	}
	if c.DataSize != nil {
		if *c.DataSize <= 0 || *c.DataSize%parse.SAMPLES_PER_PACKET != 0 {
			return fmt.Errorf("data_size must be a positive multiple of %d, got %d", parse.SAMPLES_PER_PACKET, *c.DataSize)
		}
	}
	if c.Magic != nil && *c.Magic != "" {
		if _, err := parse.ParseMagic(*c.Magic); err != nil {
			return fmt.Errorf("magic: %w", err)
		}
	}
	if c.MaxSyncBytes != nil && *c.MaxSyncBytes < 0 {
		return fmt.Errorf("max_sync_bytes must be non-negative, got %d", *c.MaxSyncBytes)
	}
	if c.RangeMin != nil && *c.RangeMin < 0 {
		return fmt.Errorf("range_min must be non-negative, got %f", *c.RangeMin)
	}
	if c.GetRangeMax() <= c.GetRangeMin() {
		return fmt.Errorf("range_max (%f) must be greater than range_min (%f)", c.GetRangeMax(), c.GetRangeMin())
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"read_timeout", c.ReadTimeout},
		{"publish_interval", c.PublishInterval},
		{"stats_interval", c.StatsInterval},
		{"record_interval", c.RecordInterval},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.v)
		}
	}
	if c.PublishInterval != nil && c.GetPublishInterval() == 0 {
		return fmt.Errorf("publish_interval must be positive")
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetPort returns the serial port path, or "" when none is configured.
func (c *CaptureConfig) GetPort() string {
	if c.Port == nil {
		return ""
	}
	return *c.Port
}

// GetBaudRate returns the baud_rate value or the default.
func (c *CaptureConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return DefaultBaudRate
	}
	return *c.BaudRate
}

// GetDataBits returns the data_bits value or the default.
func (c *CaptureConfig) GetDataBits() int {
	if c.DataBits == nil {
		return DefaultDataBits
	}
	return *c.DataBits
}

// GetStopBits returns the stop_bits value or the default.
func (c *CaptureConfig) GetStopBits() int {
	if c.StopBits == nil {
		return DefaultStopBits
	}
	return *c.StopBits
}

// GetParity returns the upper-cased parity value or the default.
func (c *CaptureConfig) GetParity() string {
	if c.Parity == nil || *c.Parity == "" {
		return DefaultParity
	}
	return strings.ToUpper(*c.Parity)
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *CaptureConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, DefaultReadTimeout)
}

// GetDataSize returns the number of sample slots in the scan store.
func (c *CaptureConfig) GetDataSize() int {
	if c.DataSize == nil {
		return DefaultDataSize
	}
	return *c.DataSize
}

// GetInvert returns the invert value or the default.
func (c *CaptureConfig) GetInvert() bool {
	if c.Invert == nil {
		return DefaultInvert
	}
	return *c.Invert
}

// GetMagic returns the configured frame magic or parse.DefaultMagic.
func (c *CaptureConfig) GetMagic() parse.Magic {
	if c.Magic == nil || *c.Magic == "" {
		return parse.DefaultMagic
	}
	m, err := parse.ParseMagic(*c.Magic)
	if err != nil {
		return parse.DefaultMagic
	}
	return m
}

// GetMaxSyncBytes returns the max_sync_bytes value; zero means unbounded.
func (c *CaptureConfig) GetMaxSyncBytes() int {
	if c.MaxSyncBytes == nil {
		return 0
	}
	return *c.MaxSyncBytes
}

// GetPublishInterval parses and returns the PublishInterval as a time.Duration.
func (c *CaptureConfig) GetPublishInterval() time.Duration {
	return durationOr(c.PublishInterval, DefaultPublishInterval)
}

// GetFrameID returns the frame_id value or the default.
func (c *CaptureConfig) GetFrameID() string {
	if c.FrameID == nil || *c.FrameID == "" {
		return DefaultFrameID
	}
	return *c.FrameID
}

// GetRangeMin returns the range_min value or the default.
func (c *CaptureConfig) GetRangeMin() float64 {
	if c.RangeMin == nil {
		return DefaultRangeMin
	}
	return *c.RangeMin
}

// GetRangeMax returns the range_max value or the default.
func (c *CaptureConfig) GetRangeMax() float64 {
	if c.RangeMax == nil {
		return DefaultRangeMax
	}
	return *c.RangeMax
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
// Zero disables periodic stats logging.
func (c *CaptureConfig) GetStatsInterval() time.Duration {
	return durationOr(c.StatsInterval, DefaultStatsInterval)
}

// GetRecordInterval parses and returns the RecordInterval as a time.Duration.
func (c *CaptureConfig) GetRecordInterval() time.Duration {
	return durationOr(c.RecordInterval, DefaultRecordInterval)
}

// GetGRPCListen returns the scan bus listen address or the default.
func (c *CaptureConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return DefaultGRPCListen
	}
	return *c.GRPCListen
}

// GetHTTPListen returns the monitor listen address or the default.
func (c *CaptureConfig) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return DefaultHTTPListen
	}
	return *c.HTTPListen
}

// GetDBPath returns the sqlite path, or "" when recording is disabled.
func (c *CaptureConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetPcapPath returns the raw capture path, or "" when disabled.
func (c *CaptureConfig) GetPcapPath() string {
	if c.PcapPath == nil {
		return ""
	}
	return *c.PcapPath
}

// Overrides carries command-line values that take precedence over the file.
// Zero values leave the file value alone.
type Overrides struct {
	Port       string
	BaudRate   int
	HTTPListen string
	GRPCListen string
	DBPath     string
	PcapPath   string
}

// Apply copies the non-zero overrides into c.
func (o Overrides) Apply(c *CaptureConfig) {
	if o.Port != "" {
		c.Port = ptrString(o.Port)
	}
	if o.BaudRate != 0 {
		c.BaudRate = ptrInt(o.BaudRate)
	}
	if o.HTTPListen != "" {
		c.HTTPListen = ptrString(o.HTTPListen)
	}
	if o.GRPCListen != "" {
		c.GRPCListen = ptrString(o.GRPCListen)
	}
	if o.DBPath != "" {
		c.DBPath = ptrString(o.DBPath)
	}
	if o.PcapPath != "" {
		c.PcapPath = ptrString(o.PcapPath)
	}
}
