package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/chix/chix/pkg/lsp"
	"github.com/chix/chix/pkg/output"
)

const (
	appName        = "chix"
	configFileName = "config.yaml"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	drain := lsp.DefaultDrain()
	return &Config{
		LSP: LSPConfig{
			Command:         "nil",
			LanguageID:      lsp.DefaultLanguageID,
			FilePatterns:    []string{"**/*.nix"},
			RequestTimeout:  Duration{lsp.DefaultRequestTimeout},
			ShutdownTimeout: Duration{lsp.DefaultShutdownTimeout},
			Diagnostics: DiagnosticsConfig{
				Settle: Duration{drain.Settle},
				Poll:   Duration{drain.Poll},
				Window: Duration{drain.Window},
			},
		},
		OutputLimits: OutputLimitsConfig{
			DefaultMaxItems:  output.DefaultMaxItems,
			MaxResponseBytes: output.DefaultMaxResponseBytes,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/chix/config.yaml, or the platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Load reads the configuration at path. A missing file yields the defaults.
// Fields the file leaves out keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults(Default())
	return &cfg, nil
}

// LoadOrDefault is Load that falls back to the defaults, with a warning,
// when the file cannot be read or parsed.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		slog.Warn("Using default configuration", "path", path, "error", err)
		return Default()
	}
	return cfg
}

func (t *Config) applyDefaults(def *Config) {
	l := &t.LSP
	if l.Command == "" {
		l.Command = def.LSP.Command
		if l.Args == nil {
			l.Args = def.LSP.Args
		}
	}
	if l.LanguageID == "" {
		l.LanguageID = def.LSP.LanguageID
	}
	if l.FilePatterns == nil {
		l.FilePatterns = def.LSP.FilePatterns
	}
	setDuration(&l.RequestTimeout, def.LSP.RequestTimeout)
	setDuration(&l.ShutdownTimeout, def.LSP.ShutdownTimeout)
	setDuration(&l.Diagnostics.Settle, def.LSP.Diagnostics.Settle)
	setDuration(&l.Diagnostics.Poll, def.LSP.Diagnostics.Poll)
	setDuration(&l.Diagnostics.Window, def.LSP.Diagnostics.Window)

	if t.OutputLimits.DefaultMaxItems == 0 {
		t.OutputLimits.DefaultMaxItems = def.OutputLimits.DefaultMaxItems
	}
	if t.OutputLimits.MaxResponseBytes == 0 {
		t.OutputLimits.MaxResponseBytes = def.OutputLimits.MaxResponseBytes
	}
}

func setDuration(d *Duration, def Duration) {
	if d.Duration == 0 {
		*d = def
	}
}

// Marshal encodes the configuration as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ServerCommand returns how to start the language server.
func (l LSPConfig) ServerCommand(dir string) lsp.Command {
	return lsp.Command{
		Name: l.Command,
		Args: l.Args,
		Env:  l.Env,
		Dir:  dir,
	}
}

// Options returns the connection options the configuration describes.
func (l LSPConfig) Options() []lsp.Option {
	return []lsp.Option{
		lsp.WithLanguageID(l.LanguageID),
		lsp.WithRequestTimeout(l.RequestTimeout.Duration),
		lsp.WithShutdownTimeout(l.ShutdownTimeout.Duration),
		lsp.WithDrain(lsp.DrainConfig{
			Settle: l.Diagnostics.Settle.Duration,
			Poll:   l.Diagnostics.Poll.Duration,
			Window: l.Diagnostics.Window.Duration,
		}),
	}
}
