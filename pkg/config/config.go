// Package config provides YAML-based configuration loading for muxlink.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the process
	AppName string `mapstructure:"app_name"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Client holds the transport engine settings
	Client ClientConfig `mapstructure:"client"`

	// Echo configures the reference peer started by muxlink-echo
	Echo EchoConfig `mapstructure:"echo"`
}

// LogConfig selects level, encoding and sinks of the process logger.
type LogConfig struct {
	Level       string         `mapstructure:"level"`       // debug|info|warn|error
	Format      string         `mapstructure:"format"`      // console|json
	Outputs     []string       `mapstructure:"outputs"`     // stdout, stderr or file paths
	Rotation    RotationConfig `mapstructure:"rotation"`    // applies to file outputs
	Development bool           `mapstructure:"development"` // dev encoder, caller and stack traces
}

// RotationConfig is handed to lumberjack for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "muxlink",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/muxlink.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Client: DefaultClient(),
		Echo: EchoConfig{
			Listen: []string{"ws://127.0.0.1:8080/ws"},
			Echo:   true,
			Acks:   true,
			Pongs:  true,
		},
	}
}

// Load merges defaults, an optional YAML file and MUXLINK_* environment
// variables, in increasing precedence. With an empty path the file comes
// from MUXLINK_CONFIG or is searched as muxlink.yaml in ., ./configs and
// ~/.muxlink; a missing file is not an error. Keys map to variables by
// upper-casing and replacing `.`/`-` with `_`, e.g. MUXLINK_CLIENT_BATCH_SIZE=25.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MUXLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("app_name", cfg.AppName)
	seedLogDefaults(v, "log", cfg.Log)
	seedClientDefaults(v, "client", cfg.Client)
	seedEchoDefaults(v, "echo", cfg.Echo)

	chooseFile(v, path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func chooseFile(v *viper.Viper, path string) {
	if path == "" {
		path = os.Getenv("MUXLINK_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("muxlink")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".muxlink"))
	}
}

func seedLogDefaults(v *viper.Viper, prefix string, l LogConfig) {
	set := func(k string, val any) { v.SetDefault(prefix+"."+k, val) }
	set("level", l.Level)
	set("format", l.Format)
	set("outputs", l.Outputs)
	set("development", l.Development)
	set("rotation.enable", l.Rotation.Enable)
	set("rotation.filename", l.Rotation.Filename)
	set("rotation.max_size_mb", l.Rotation.MaxSizeMB)
	set("rotation.max_backups", l.Rotation.MaxBackups)
	set("rotation.max_age_days", l.Rotation.MaxAgeDays)
	set("rotation.compress", l.Rotation.Compress)
}

func seedEchoDefaults(v *viper.Viper, prefix string, e EchoConfig) {
	set := func(k string, val any) { v.SetDefault(prefix+"."+k, val) }
	set("listen", e.Listen)
	set("echo", e.Echo)
	set("acks", e.Acks)
	set("pongs", e.Pongs)
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	listen := c.Echo.Listen[:0]
	for _, u := range c.Echo.Listen {
		if u = strings.TrimSpace(u); u != "" {
			listen = append(listen, u)
		}
	}
	c.Echo.Listen = listen
	return c.Client.Validate()
}

// MustLoad is Load for callers that cannot continue without a config.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
