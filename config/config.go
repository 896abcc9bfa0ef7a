// Package config loads the settings shared by the backend and the headless
// client from a .env file, an optional sidesync.yaml and SIDESYNC_*
// environment variables.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so server.url is
// read from SIDESYNC_SERVER_URL.
const EnvPrefix = "SIDESYNC"

// Config holds every setting either binary reads.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Client   Client   `mapstructure:"client"`
	Database Database `mapstructure:"database"`
	Seed     Seed     `mapstructure:"seed"`
	LogLevel string   `mapstructure:"log_level"`
}

// Server configures the reference backend.
type Server struct {
	URL        string        `mapstructure:"url"`
	Port       string        `mapstructure:"port"`
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	// MaxFrame is the largest event payload sent unchunked.
	MaxFrame int    `mapstructure:"max_frame"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Client configures the headless client.
type Client struct {
	Token            string        `mapstructure:"token"`
	Email            string        `mapstructure:"email"`
	Password         string        `mapstructure:"password"`
	DeviceToken      string        `mapstructure:"device_token"`
	ReadDelay        time.Duration `mapstructure:"read_delay"`
	ReadFlushTimeout time.Duration `mapstructure:"read_flush_timeout"`
	ChunkTTL         time.Duration `mapstructure:"chunk_ttl"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryWait        time.Duration `mapstructure:"retry_wait"`
}

// Database points the backend at postgres. An empty URL keeps everything
// in memory.
type Database struct {
	URL string `mapstructure:"url"`
}

// Seed is the user created when the backend starts with no users.
type Seed struct {
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	DisplayName string `mapstructure:"display_name"`
	Team        string `mapstructure:"team"`
}

var defaults = map[string]interface{}{
	"server.url":                "http://localhost:8080",
	"server.port":               "8080",
	"server.signing_key":        "",
	"server.token_ttl":          24 * time.Hour,
	"server.max_frame":          8 * 1024,
	"server.cert_file":          "",
	"server.key_file":           "",
	"client.token":              "",
	"client.email":              "",
	"client.password":           "",
	"client.device_token":       "",
	"client.read_delay":         200 * time.Millisecond,
	"client.read_flush_timeout": 10 * time.Second,
	"client.chunk_ttl":          30 * time.Second,
	"client.request_timeout":    10 * time.Second,
	"client.retry_attempts":     3,
	"client.retry_wait":         250 * time.Millisecond,
	"database.url":              "",
	"seed.email":                "",
	"seed.password":             "",
	"seed.display_name":         "admin",
	"seed.team":                 "general",
	"log_level":                 "info",
}

// Load reads the configuration. A missing .env file is logged and
// ignored, as is a missing sidesync.yaml when file is empty. A file named
// explicitly must exist.
func Load(file string, log logrus.FieldLogger) (*Config, error) {
	if log == nil {
		log = logrus.WithField("component", "config")
	}

	// load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading %s", file)
		}
	} else {
		v.SetConfigName("sidesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "reading sidesync.yaml")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return &cfg, nil
}

// Logger returns the standard logger set to the configured level.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.StandardLogger()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
