package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"intake-pipeline/backend/pkg/models"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`
	Server      struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Enable   bool   `mapstructure:"enable"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"db"`
	Pipeline struct {
		Enabled       bool          `mapstructure:"enabled"`
		APIURL        string        `mapstructure:"api_url"`
		Timeout       time.Duration `mapstructure:"timeout"`
		SwallowErrors bool          `mapstructure:"swallow_errors"`
		StatusTTL     time.Duration `mapstructure:"status_ttl"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"pipeline"`
	Stream struct {
		PollInterval      time.Duration `mapstructure:"poll_interval"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
		CloseGrace        time.Duration `mapstructure:"close_grace"`
		UnknownAsError    bool          `mapstructure:"unknown_as_error"`
	} `mapstructure:"stream"`
	Fallback struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"fallback"`
	Documents struct {
		Types []string `mapstructure:"types"`
	} `mapstructure:"documents"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	MCP struct {
		Enable bool `mapstructure:"enable"`
	} `mapstructure:"mcp"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
// An empty path searches for config.yaml in . and ./config; a missing file is
// not an error since every key has a default.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	config.Pipeline.APIURL = normalizeBaseURL(config.Pipeline.APIURL)
	if len(config.Documents.Types) == 0 {
		config.Documents.Types = append([]string(nil), models.DefaultDocumentTypes...)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "DEV")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// streams stay open for the lifetime of a job
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("db.enable", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "intake")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "intake")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)

	v.SetDefault("pipeline.enabled", true)
	v.SetDefault("pipeline.api_url", "http://localhost:5000")
	v.SetDefault("pipeline.timeout", 30*time.Second)
	v.SetDefault("pipeline.swallow_errors", true)
	v.SetDefault("pipeline.status_ttl", time.Hour)
	v.SetDefault("pipeline.sweep_interval", time.Minute)

	v.SetDefault("stream.poll_interval", 2*time.Second)
	v.SetDefault("stream.heartbeat_interval", 20*time.Second)
	v.SetDefault("stream.close_grace", time.Second)
	v.SetDefault("stream.unknown_as_error", false)

	v.SetDefault("fallback.dir", "./data/submissions")
	v.SetDefault("documents.types", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("mcp.enable", true)

	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.hostnames", []string{})
}

// Validate checks invariants that viper cannot express.
func (c *Config) Validate() error {
	if c.Pipeline.APIURL == "" {
		return errors.New("pipeline.api_url is required")
	}
	if c.Pipeline.Timeout <= 0 {
		return errors.New("pipeline.timeout must be positive")
	}
	if c.Pipeline.StatusTTL <= 0 || c.Pipeline.SweepInterval <= 0 {
		return errors.New("pipeline.status_ttl and pipeline.sweep_interval must be positive")
	}
	if c.Stream.PollInterval <= 0 || c.Stream.HeartbeatInterval <= 0 {
		return errors.New("stream intervals must be positive")
	}
	if c.Stream.HeartbeatInterval <= c.Stream.PollInterval {
		return fmt.Errorf("stream.heartbeat_interval (%s) must exceed stream.poll_interval (%s)",
			c.Stream.HeartbeatInterval, c.Stream.PollInterval)
	}
	if c.TLS.Enable && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.New("tls enabled but cert_file/key_file not provided")
	}
	return nil
}

// DSN builds the pgx connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// normalizeBaseURL strips whitespace and any trailing slash so that
// collaborator paths can be appended without doubling separators.
func normalizeBaseURL(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
