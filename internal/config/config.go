package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"devicegateway/internal/protocol/server"
)

// Config holds every gateway setting. Values come from defaults, then the
// optional TOML file, then environment variables.
type Config struct {
	HTTPAddr        string   `toml:"http_addr"`
	TCPAddr         string   `toml:"tcp_addr"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
	MongoURI        string   `toml:"mongodb_uri"`
	MongoDatabase   string   `toml:"mongodb_database"`
	RedisURL        string   `toml:"redis_url"`
	RedisChannel    string   `toml:"redis_channel"`
	CacheTTL        Duration `toml:"cache_ttl"`
	JWTSecret       string   `toml:"jwt_secret"`
	CORSOrigins     string   `toml:"cors_origins"`
	SubscriberQueue int      `toml:"subscriber_queue"`
	ReadBuffer      int      `toml:"read_buffer"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	Framing         string   `toml:"framing"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default() *Config {
	return &Config{
		HTTPAddr:        "0.0.0.0:3000",
		TCPAddr:         "0.0.0.0:4000",
		LogLevel:        "info",
		LogFormat:       "text",
		MongoDatabase:   "tracking",
		RedisChannel:    "gateway:events",
		CacheTTL:        Duration{5 * time.Minute},
		CORSOrigins:     "*",
		SubscriberQueue: 64,
		ReadBuffer:      4096,
		Framing:         server.FramingRead,
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.TCPAddr = getEnv("TCP_ADDR", c.TCPAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.MongoURI = getEnv("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGODB_DATABASE", c.MongoDatabase)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisChannel = getEnv("REDIS_CHANNEL", c.RedisChannel)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.CORSOrigins = getEnv("CORS_ORIGINS", c.CORSOrigins)
	c.Framing = getEnv("FRAMING", c.Framing)

	var err error
	if c.SubscriberQueue, err = getEnvInt("SUBSCRIBER_QUEUE", c.SubscriberQueue); err != nil {
		return err
	}
	if c.ReadBuffer, err = getEnvInt("READ_BUFFER", c.ReadBuffer); err != nil {
		return err
	}
	if c.CacheTTL.Duration, err = getEnvDuration("CACHE_TTL", c.CacheTTL.Duration); err != nil {
		return err
	}
	if c.ReadTimeout.Duration, err = getEnvDuration("READ_TIMEOUT", c.ReadTimeout.Duration); err != nil {
		return err
	}
	if c.WriteTimeout.Duration, err = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout.Duration); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" || c.TCPAddr == "" {
		return fmt.Errorf("http_addr and tcp_addr are required")
	}
	if c.SubscriberQueue <= 0 {
		return fmt.Errorf("subscriber_queue must be positive, got %d", c.SubscriberQueue)
	}
	if c.ReadBuffer < 64 {
		return fmt.Errorf("read_buffer must be at least 64, got %d", c.ReadBuffer)
	}
	if c.ReadTimeout.Duration < 0 || c.WriteTimeout.Duration < 0 || c.CacheTTL.Duration < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch c.Framing {
	case server.FramingRead, server.FramingLength:
	default:
		return fmt.Errorf("unknown framing %q", c.Framing)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// TCPServer returns the acceptor settings.
func (c *Config) TCPServer() server.Config {
	return server.Config{
		Addr:           c.TCPAddr,
		ReadBufferSize: c.ReadBuffer,
		ReadTimeout:    c.ReadTimeout.Duration,
		WriteTimeout:   c.WriteTimeout.Duration,
		Framing:        c.Framing,
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
