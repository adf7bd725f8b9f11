package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
)

// Config is the chix configuration file.
type Config struct {
	LSP          LSPConfig          `yaml:"lsp"`
	OutputLimits OutputLimitsConfig `yaml:"output_limits"`
}

// LSPConfig describes the language server spawned for every LSP tool call.
type LSPConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args,omitempty"`
	Env        []string `yaml:"env,omitempty"`
	LanguageID string   `yaml:"language_id,omitempty"`
	// FilePatterns restricts the files the tools accept, as doublestar globs
	// matched against the file's path. Empty accepts every file.
	FilePatterns    []string          `yaml:"file_patterns,omitempty"`
	RequestTimeout  Duration          `yaml:"request_timeout,omitempty"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout,omitempty"`
	Diagnostics     DiagnosticsConfig `yaml:"diagnostics"`
}

// DiagnosticsConfig tunes how long the diagnostics tool waits for a server
// to publish after the document is opened.
type DiagnosticsConfig struct {
	Settle Duration `yaml:"settle,omitempty"`
	Poll   Duration `yaml:"poll,omitempty"`
	Window Duration `yaml:"window,omitempty"`
}

type OutputLimitsConfig struct {
	DefaultMaxItems  int      `yaml:"default_max_items,omitempty"`
	MaxResponseBytes ByteSize `yaml:"max_response_bytes,omitempty"`
}

func (t *Config) UnmarshalYAML(unmarshal func(any) error) error {
	type alias Config
	var tmp alias
	if err := unmarshal(&tmp); err != nil {
		return err
	}
	*t = Config(tmp)
	return t.validate()
}

func (t *Config) validate() error {
	if err := t.LSP.validate(); err != nil {
		return fmt.Errorf("lsp: %w", err)
	}
	if t.OutputLimits.DefaultMaxItems < 0 {
		return errors.New("output_limits: default_max_items must not be negative")
	}
	if t.OutputLimits.MaxResponseBytes < 0 {
		return errors.New("output_limits: max_response_bytes must not be negative")
	}
	return nil
}

func (t *LSPConfig) validate() error {
	for name, d := range map[string]Duration{
		"request_timeout":    t.RequestTimeout,
		"shutdown_timeout":   t.ShutdownTimeout,
		"diagnostics.settle": t.Diagnostics.Settle,
		"diagnostics.poll":   t.Diagnostics.Poll,
		"diagnostics.window": t.Diagnostics.Window,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	for _, pattern := range t.FilePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid file pattern %q", pattern)
		}
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// ByteSize is a size in bytes, written either as a number or as a human
// readable size such as "100kB" or "1MiB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := units.RAMInBytes(s)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", s, err)
	}
	*b = ByteSize(parsed)
	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return int64(b), nil
}

func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}
