// Package config handles loading and validating the saytext configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Speech defaults used when the config source omits a value.
const (
	DefaultVoice      = "kal"
	DefaultSampleRate = 8000
	DefaultCacheDir   = "/tmp"
	DefaultEngine     = "flite"
)

// Config is the root configuration for the saytext daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	AGI  AGIConfig  `mapstructure:"agi"`
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// AGIConfig configures the FastAGI listener the dialplan connects to.
type AGIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SpeechConfig is the per-request speech setup. A request works on a copy,
// so a reload never changes the settings of a call that is already playing.
type SpeechConfig struct {
	Engine     string        `mapstructure:"engine"` // "flite", "piper" or "gtts"
	Voice      string        `mapstructure:"voice"`
	SampleRate int           `mapstructure:"sample_rate"` // 8000 or 16000
	UseCache   bool          `mapstructure:"use_cache"`
	CacheDir   string        `mapstructure:"cache_dir"`
	TmpDir     string        `mapstructure:"tmp_dir"`
	Timeout    time.Duration `mapstructure:"timeout"` // synthesis deadline
}

// TTSConfig holds engine specific settings.
type TTSConfig struct {
	Flite FliteConfig `mapstructure:"flite"`
	Piper PiperConfig `mapstructure:"piper"`
	GTTS  GTTSConfig  `mapstructure:"gtts"`
}

// FliteConfig locates the flite binary.
type FliteConfig struct {
	Binary string `mapstructure:"binary"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
type PiperConfig struct {
	Endpoint string            `mapstructure:"endpoint"` // Wyoming TCP endpoint (host:port)
	Voices   map[string]string `mapstructure:"voices"`   // saytext voice name -> Piper voice model name
}

// GTTSConfig holds Google Translate TTS settings.
type GTTSConfig struct {
	Language          string `mapstructure:"language"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`   // optional rotated log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.agi.enabled", true)
	v.SetDefault("transports.agi.port", 4573)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", false)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("speech.engine", DefaultEngine)
	v.SetDefault("speech.voice", DefaultVoice)
	v.SetDefault("speech.sample_rate", DefaultSampleRate)
	v.SetDefault("speech.use_cache", false)
	v.SetDefault("speech.cache_dir", DefaultCacheDir)
	v.SetDefault("speech.tmp_dir", os.TempDir())
	v.SetDefault("speech.timeout", 30*time.Second)
	v.SetDefault("tts.flite.binary", "flite")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.gtts.language", "en")
	v.SetDefault("tts.gtts.requests_per_minute", 50)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
}

// newViper builds a viper instance with defaults, the config file search
// order and the SAYTEXT_ environment binding.
func newViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("saytext")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/saytext")
	}

	// Environment variables: SAYTEXT_SPEECH_VOICE, SAYTEXT_SPEECH_USE_CACHE, etc.
	v.SetEnvPrefix("SAYTEXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./saytext.yaml, ./configs/saytext.yaml, /etc/saytext/saytext.yaml.
//
// An unreadable config file is not fatal: saytext falls back to its
// defaults and logs a warning, the same way it treats a missing file.
func Load(configFile string) (*Config, error) {
	v := newViper(configFile)
	readConfig(v)
	return decode(v)
}

// readConfig reports whether a config file was read.
func readConfig(v *viper.Viper) bool {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("no config file found, using defaults and environment variables")
			return false
		}
		slog.Warn("unable to read config file, using default settings", "error", err)
		return false
	}
	slog.Info("loaded config file", "path", v.ConfigFileUsed())
	return true
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Speech.Normalize()
	cfg.TTS.Piper.Endpoint = resolveEnvRef(cfg.TTS.Piper.Endpoint)

	return &cfg, nil
}

// Normalize applies the hard-coded speech defaults and clamps the sample
// rate to one of the two supported values.
func (s *SpeechConfig) Normalize() {
	if s.Engine == "" {
		s.Engine = DefaultEngine
	}
	if s.Voice == "" {
		s.Voice = DefaultVoice
	}
	if s.CacheDir == "" {
		s.CacheDir = DefaultCacheDir
	}
	if s.TmpDir == "" {
		s.TmpDir = os.TempDir()
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.SampleRate != 8000 && s.SampleRate != 16000 {
		slog.Warn("unsupported sample rate, falling back to default",
			"sample_rate", s.SampleRate, "default", DefaultSampleRate)
		s.SampleRate = DefaultSampleRate
	}
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}
