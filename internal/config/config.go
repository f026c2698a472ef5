// Package config holds nfpcapd's runtime configuration, built from CLI
// flags and/or a config file (spec §6), following the teacher's
// validator-per-section pattern (cmd/goProbe/config/config.go).
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nfpcapd-go/nfpcapd/internal/nffile"
)

// validator is a contract for a config section to check itself against its
// predefined value range.
type validator interface {
	validate() error
}

// Config stores the daemon's full runtime configuration.
type Config struct {
	Capture CaptureConfig `json:"capture" mapstructure:"capture"`
	Flow    FlowConfig    `json:"flow" mapstructure:"flow"`
	Pcap    PcapConfig    `json:"pcap" mapstructure:"pcap"`
	Logging LogConfig     `json:"logging" mapstructure:"logging"`
	API     APIConfig     `json:"api" mapstructure:"api"`

	Ident         string `json:"ident" mapstructure:"ident"`
	PidFile       string `json:"pidfile" mapstructure:"pidfile"`
	Daemonize     bool   `json:"daemonize" mapstructure:"daemonize"`
	User          string `json:"user" mapstructure:"user"`
	Group         string `json:"group" mapstructure:"group"`
	ExtensionTags bool   `json:"extension_tags" mapstructure:"extension_tags"`
	ExtendedDebug bool   `json:"extended_debug" mapstructure:"extended_debug"`
}

// CaptureConfig configures the packet source (spec §4.1, §6).
type CaptureConfig struct {
	// Interface is the live device to capture on (`-i`). Mutually
	// exclusive with ReadFile.
	Interface string `json:"interface" mapstructure:"interface"`
	// ReadFile is an offline pcap file to read instead of a live device (`-r`).
	ReadFile string `json:"read_file" mapstructure:"read_file"`
	// Snaplen is the capture snapshot length in bytes, minimum 54 (`-s`).
	Snaplen int `json:"snaplen" mapstructure:"snaplen"`
	// BPFFilter is the positional BPF expression applied at the source.
	BPFFilter string `json:"bpf_filter" mapstructure:"bpf_filter"`
	// BufferMB sizes the live capture ring buffer, 1..2047 (`-b`).
	BufferMB int `json:"buffer_mb" mapstructure:"buffer_mb"`
	// Promisc enables promiscuous mode on a live device.
	Promisc bool `json:"promisc" mapstructure:"promisc"`
}

// FlowConfig configures the flow stage and flow-file output (spec §3, §6).
type FlowConfig struct {
	// Dir is the base flow-record output directory (`-l`).
	Dir string `json:"dir" mapstructure:"dir"`
	// SubdirIndex selects the subdirectory hierarchy depth, 0 disables (`-S`).
	SubdirIndex int `json:"subdir_index" mapstructure:"subdir_index"`
	// WindowSeconds is the rotation interval, >= 2s (`-t`).
	WindowSeconds int `json:"window_seconds" mapstructure:"window_seconds"`
	// ActiveSeconds/InactiveSeconds are the flow expiry timers (`-e`).
	ActiveSeconds   int `json:"active_seconds" mapstructure:"active_seconds"`
	InactiveSeconds int `json:"inactive_seconds" mapstructure:"inactive_seconds"`
	// CacheSize bounds the number of live flows, default 524288 (`-B`).
	CacheSize int `json:"cache_size" mapstructure:"cache_size"`
	// Compression selects the block codec: "none", "lz4", "zstd", "gzip"
	// (`-y`/`-z`/`-j` respectively; see SPEC_FULL.md for the zstd/gzip substitutions).
	Compression string `json:"compression" mapstructure:"compression"`
}

// PcapConfig configures the optional pcap dual-output (spec §4.3, §6).
type PcapConfig struct {
	// Dir enables pcap dual-output when non-empty (`-p`).
	Dir string `json:"dir" mapstructure:"dir"`
	// SubdirIndex mirrors FlowConfig.SubdirIndex for the pcap tree.
	SubdirIndex int `json:"subdir_index" mapstructure:"subdir_index"`
}

// LogConfig mirrors the teacher's logging section (pkg/logging).
type LogConfig struct {
	Destination string `json:"destination" mapstructure:"destination"`
	Level       string `json:"level" mapstructure:"level"`
	Encoding    string `json:"encoding" mapstructure:"encoding"`
}

// APIConfig configures the status/health HTTP surface (internal/api).
type APIConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    string `json:"port" mapstructure:"port"`
	Metrics bool   `json:"metrics" mapstructure:"metrics"`
}

// New returns a Config with nfpcapd's documented defaults (spec glossary,
// §3, §6).
func New() *Config {
	return &Config{
		Capture: CaptureConfig{
			Snaplen:  1518,
			BufferMB: 4,
		},
		Flow: FlowConfig{
			WindowSeconds:   300,
			ActiveSeconds:   300,
			InactiveSeconds: 60,
			CacheSize:       524288,
			Compression:     "lz4",
		},
		Logging: LogConfig{
			Destination: "stderr",
			Level:       "info",
			Encoding:    "logfmt",
		},
		API: APIConfig{
			Host: "localhost",
			Port: "6520",
		},
	}
}

func (c CaptureConfig) validate() error {
	if c.Interface == "" && c.ReadFile == "" {
		return fmt.Errorf("one of interface or read_file must be set")
	}
	if c.Interface != "" && c.ReadFile != "" {
		return fmt.Errorf("interface and read_file are mutually exclusive")
	}
	if c.Snaplen < 54 {
		return fmt.Errorf("snaplen must be >= 54, got %d", c.Snaplen)
	}
	if c.BufferMB < 1 || c.BufferMB > 2047 {
		return fmt.Errorf("buffer_mb must be in [1, 2047], got %d", c.BufferMB)
	}
	return nil
}

func (f FlowConfig) validate() error {
	if f.Dir == "" {
		return fmt.Errorf("flow directory must not be empty")
	}
	if f.WindowSeconds < 2 {
		return fmt.Errorf("window_seconds must be >= 2, got %d", f.WindowSeconds)
	}
	if f.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", f.CacheSize)
	}
	if _, err := f.compression(); err != nil {
		return err
	}
	return nil
}

// compression resolves the configured codec name to its nffile.Compression value.
func (f FlowConfig) compression() (nffile.Compression, error) {
	switch f.Compression {
	case "", "none":
		return nffile.CompressionNone, nil
	case "lz4":
		return nffile.CompressionLZ4, nil
	case "zstd":
		return nffile.CompressionZstd, nil
	case "gzip":
		return nffile.CompressionGzip, nil
	default:
		return nffile.CompressionNone, fmt.Errorf("unknown compression %q", f.Compression)
	}
}

// Compression exposes the resolved codec to callers outside this package.
func (f FlowConfig) Compression() nffile.Compression {
	c, _ := f.compression()
	return c
}

// Window returns the configured rotation interval as a time.Duration.
func (f FlowConfig) Window() time.Duration {
	return time.Duration(f.WindowSeconds) * time.Second
}

// Active returns the configured active timeout as a time.Duration.
func (f FlowConfig) Active() time.Duration {
	return time.Duration(f.ActiveSeconds) * time.Second
}

// Inactive returns the configured inactive timeout as a time.Duration.
func (f FlowConfig) Inactive() time.Duration {
	return time.Duration(f.InactiveSeconds) * time.Second
}

func (p PcapConfig) validate() error {
	return nil // empty Dir just disables pcap dual-output
}

func (l LogConfig) validate() error {
	return nil
}

func (a APIConfig) validate() error {
	if a.Enabled && a.Port == "" {
		return fmt.Errorf("api port must be set when the status API is enabled")
	}
	return nil
}

// Validate runs every section's validator.
func (c *Config) Validate() error {
	for _, section := range []validator{c.Capture, c.Flow, c.Pcap, c.Logging, c.API} {
		if err := section.validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParseFile reads a JSON configuration from path, applying it over New()'s
// defaults.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a JSON configuration from r over New()'s defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := New()
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
