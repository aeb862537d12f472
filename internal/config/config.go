package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables that override file values
const EnvPrefix = "SIMPLERECORD"

// DefaultRecordURI is used when no output URI is given on the command line
const DefaultRecordURI = "ffmpeg:[fps=30,bps=8388608]//video.avi"

// DefaultFallbackSources are tried in order when no source URI is given
var DefaultFallbackSources = []string{
	"convert:[fmt=RGB24]//v4l:///dev/video0",
	"convert:[fmt=RGB24]//v4l:///dev/video1",
	"gst://autovideosrc",
}

// Display backends understood by the display package
var DisplayBackends = []string{"x11", "none", "opencv"}

// DisplayConfig selects and configures the preview window
type DisplayConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	Title   string `json:"title" yaml:"title" mapstructure:"title"`
	HUD     bool   `json:"hud" yaml:"hud" mapstructure:"hud"`
}

// Config represents the application configuration
type Config struct {
	RecordURI       string        `json:"record_uri" yaml:"record_uri" mapstructure:"record_uri"`
	FallbackSources []string      `json:"fallback_sources" yaml:"fallback_sources" mapstructure:"fallback_sources"`
	SinkFormat      string        `json:"sink_format" yaml:"sink_format" mapstructure:"sink_format"`
	CaptureTimeout  time.Duration `json:"capture_timeout" yaml:"capture_timeout" mapstructure:"capture_timeout"`
	MaxFrames       int           `json:"max_frames" yaml:"max_frames" mapstructure:"max_frames"`
	ExitOnEOS       bool          `json:"exit_on_eos" yaml:"exit_on_eos" mapstructure:"exit_on_eos"`
	Display         DisplayConfig `json:"display" yaml:"display" mapstructure:"display"`
	HTTPAddr        string        `json:"http_addr" yaml:"http_addr" mapstructure:"http_addr"`
	FFmpegPath      string        `json:"ffmpeg_path" yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	LogLevel        string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty       bool          `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		RecordURI:       DefaultRecordURI,
		FallbackSources: append([]string(nil), DefaultFallbackSources...),
		SinkFormat:      video.FormatYUV420P.String(),
		CaptureTimeout:  2 * time.Second,
		Display: DisplayConfig{
			Backend: "x11",
			Title:   "SimpleRecord",
			HUD:     true,
		},
		FFmpegPath: "ffmpeg",
		LogLevel:   "info",
	}
}

// Validate checks values that would otherwise fail deep inside a session
func (c *Config) Validate() error {
	if c.CaptureTimeout <= 0 {
		return fmt.Errorf("capture_timeout must be positive, got %v", c.CaptureTimeout)
	}
	if c.MaxFrames < 0 {
		return fmt.Errorf("max_frames must not be negative, got %d", c.MaxFrames)
	}
	if _, err := video.ParsePixelFormat(c.SinkFormat); err != nil {
		return fmt.Errorf("sink_format: %w", err)
	}
	if strings.TrimSpace(c.RecordURI) == "" {
		return fmt.Errorf("record_uri must not be empty")
	}
	known := false
	for _, b := range DisplayBackends {
		if c.Display.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("display.backend %q is not one of %s", c.Display.Backend, strings.Join(DisplayBackends, ", "))
	}
	return nil
}

// Manager handles configuration. v is the effective view with env vars and
// bound flags layered on top; file holds only what is persisted.
type Manager struct {
	configPath string
	v          *viper.Viper
	file       *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/simplerecord/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "simplerecord", "config.yaml"), nil
}

// NewManager loads configFile (or the default path), creating it with
// defaults when it does not exist yet
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{
		configPath: path,
		v:          newViper(true),
		file:       newViper(false),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := m.write(Defaults()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

func newViper(env bool) *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("record_uri", d.RecordURI)
	v.SetDefault("fallback_sources", d.FallbackSources)
	v.SetDefault("sink_format", d.SinkFormat)
	v.SetDefault("capture_timeout", d.CaptureTimeout)
	v.SetDefault("max_frames", d.MaxFrames)
	v.SetDefault("exit_on_eos", d.ExitOnEOS)
	v.SetDefault("display.backend", d.Display.Backend)
	v.SetDefault("display.title", d.Display.Title)
	v.SetDefault("display.hud", d.Display.HUD)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("ffmpeg_path", d.FFmpegPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)

	if env {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}

// load reads the configuration file into viper
func (m *Manager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range []*viper.Viper{m.v, m.file} {
		v.SetConfigFile(m.configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the effective configuration: file values overridden by
// environment variables and bound flags
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return decode(m.v)
}

func decode(v *viper.Viper) *Config {
	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		logger.WithComponent("config").Warn().
			Err(err).
			Msg("Failed to decode config, using defaults")
		return Defaults()
	}
	return cfg
}

// BindFlag lets a command-line flag override key when the flag is set
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag to bind for %s", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.BindPFlag(key, flag)
}

// GetViper exposes the underlying viper instance for key-level access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Set overrides a single key in memory; call Save to persist it
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Set(key, value)
	m.file.Set(key, value)
}

// Save writes the file values plus every key changed with Set. Environment
// and flag overrides are never persisted.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := decode(m.file)
	m.mu.RUnlock()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	return m.write(cfg)
}

func (m *Manager) write(cfg *Config) error {
	log := logger.WithComponent("config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	log.Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
