// Package config defines the civichero configuration file and loads it
// through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName names config directories, the config file and the env prefix.
const AppName = "civichero"

// Config is the full configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	OTP    OTPConfig    `yaml:"otp" mapstructure:"otp"`
	Audit  AuditConfig  `yaml:"audit" mapstructure:"audit"`
	Speech SpeechConfig `yaml:"speech" mapstructure:"speech"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// debug, info, warn or error
	Level string `yaml:"level" mapstructure:"level"`
	// Log file for the player; empty uses the user cache dir
	File string `yaml:"file" mapstructure:"file"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	// "production" disables the development code echo
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// OTPConfig holds verification code settings.
type OTPConfig struct {
	// memory or redis
	Store    string   `yaml:"store" mapstructure:"store"`
	RedisURL string   `yaml:"redis_url" mapstructure:"redis_url"`
	TTL      Duration `yaml:"ttl" mapstructure:"ttl"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// SQLite file; empty disables the trail
	Path      string   `yaml:"path" mapstructure:"path"`
	Retention Duration `yaml:"retention" mapstructure:"retention"`
}

// SpeechConfig holds lesson playback settings.
type SpeechConfig struct {
	// auto, espeak or mock
	Engine         string  `yaml:"engine" mapstructure:"engine"`
	Binary         string  `yaml:"binary" mapstructure:"binary"`
	Language       string  `yaml:"language" mapstructure:"language"`
	Voice          string  `yaml:"voice" mapstructure:"voice"`
	Rate           float64 `yaml:"rate" mapstructure:"rate"`
	Pitch          float64 `yaml:"pitch" mapstructure:"pitch"`
	Volume         float64 `yaml:"volume" mapstructure:"volume"`
	MaxChunkLength int     `yaml:"max_chunk_length" mapstructure:"max_chunk_length"`
	WordsPerMinute float64 `yaml:"words_per_minute" mapstructure:"words_per_minute"`
}

// Duration is a time.Duration written as "10m" in config files.
type Duration time.Duration

// Std returns the time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			Environment: "development",
		},
		OTP: OTPConfig{
			Store: "memory",
			TTL:   Duration(10 * time.Minute),
		},
		Audit: AuditConfig{
			Retention: Duration(30 * 24 * time.Hour),
		},
		Speech: SpeechConfig{
			Engine:         "espeak",
			Binary:         "espeak-ng",
			Language:       "en",
			Rate:           0.8,
			Pitch:          1.0,
			Volume:         0.8,
			MaxChunkLength: 160,
			WordsPerMinute: 150,
		},
	}
}

// SetDefaults registers Default() with v so every key is known to viper,
// including for env lookups.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("otp.store", d.OTP.Store)
	v.SetDefault("otp.redis_url", d.OTP.RedisURL)
	v.SetDefault("otp.ttl", d.OTP.TTL.Std().String())
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.retention", d.Audit.Retention.Std().String())
	v.SetDefault("speech.engine", d.Speech.Engine)
	v.SetDefault("speech.binary", d.Speech.Binary)
	v.SetDefault("speech.language", d.Speech.Language)
	v.SetDefault("speech.voice", d.Speech.Voice)
	v.SetDefault("speech.rate", d.Speech.Rate)
	v.SetDefault("speech.pitch", d.Speech.Pitch)
	v.SetDefault("speech.volume", d.Speech.Volume)
	v.SetDefault("speech.max_chunk_length", d.Speech.MaxChunkLength)
	v.SetDefault("speech.words_per_minute", d.Speech.WordsPerMinute)
}

// Dirs returns the directories searched for the config file, most
// specific first.
func Dirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, err
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("CIVICHERO_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// Init points v at the config search path, the env prefix and the
// defaults, then reads the file if there is one. It returns the path of
// the file in use, or where a new one should be created.
func Init(v *viper.Viper) (string, error) {
	dirs, err := Dirs()
	if err != nil {
		return "", fmt.Errorf("could not find configuration directory: %w", err)
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}

	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return used, nil
	}
	return filepath.Join(dirs[0], AppName+".yml"), nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	for _, p := range []*string{&c.Log.File, &c.Audit.Path, &c.Speech.Binary} {
		if *p == "" {
			continue
		}
		if expanded, err := homedir.Expand(*p); err == nil {
			*p = expanded
		}
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.OTP.Store {
	case "memory":
	case "redis":
		if c.OTP.RedisURL == "" {
			return errors.New("otp.redis_url is required for the redis store")
		}
	default:
		return fmt.Errorf("otp.store must be memory or redis, got %q", c.OTP.Store)
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("otp.ttl must be positive, got %s", c.OTP.TTL.Std())
	}
	switch c.Speech.Engine {
	case "auto", "espeak", "mock":
	default:
		return fmt.Errorf("speech.engine must be auto, espeak or mock, got %q", c.Speech.Engine)
	}
	if c.Speech.Rate < 0.1 || c.Speech.Rate > 3.0 {
		return fmt.Errorf("speech.rate must be between 0.1 and 3.0, got %.2f", c.Speech.Rate)
	}
	if c.Speech.Pitch < 0 || c.Speech.Pitch > 2.0 {
		return fmt.Errorf("speech.pitch must be between 0 and 2.0, got %.2f", c.Speech.Pitch)
	}
	if c.Speech.Volume < 0 || c.Speech.Volume > 1.0 {
		return fmt.Errorf("speech.volume must be between 0 and 1.0, got %.2f", c.Speech.Volume)
	}
	switch c.Speech.Language {
	case "en", "sw":
	default:
		return fmt.Errorf("speech.language must be en or sw, got %q", c.Speech.Language)
	}
	return nil
}
