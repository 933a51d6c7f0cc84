package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Sink drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverWebhook  = "webhook"
)

// Config is built once at startup and not modified afterwards.
type Config struct {
	LogPaths       []string      `yaml:"log_paths"`
	Follow         bool          `yaml:"follow"`
	StartAt        string        `yaml:"start_at"`
	Poll           bool          `yaml:"poll"`
	CheckpointFile string        `yaml:"checkpoint_file"`
	CheckpointSave time.Duration `yaml:"checkpoint_interval"`

	Destination string `yaml:"destination"`
	CreateTable bool   `yaml:"create_table"`
	Filter      string `yaml:"filter"`

	Driver          string        `yaml:"driver"`
	DBUser          string        `yaml:"db_user"`
	DBPassword      string        `yaml:"db_password"`
	DBHost          string        `yaml:"db_host"`
	DBPort          string        `yaml:"db_port"`
	DBName          string        `yaml:"db_name"`
	DBSSLMode       string        `yaml:"db_sslmode"`
	SQLitePath      string        `yaml:"sqlite_path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	InsertTimeout   time.Duration `yaml:"insert_timeout"`

	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`

	HTTPAddr string `yaml:"http_addr"`
	LogMode  string `yaml:"log_mode"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Load returns defaults overridden by environment variables.
func Load() *Config {
	return &Config{
		LogPaths:       getEnvList("FATALWATCH_LOG_PATHS", nil),
		Follow:         getEnvBool("FATALWATCH_FOLLOW", false),
		StartAt:        getEnv("FATALWATCH_START_AT", "end"),
		Poll:           getEnvBool("FATALWATCH_POLL", false),
		CheckpointFile: getEnv("FATALWATCH_CHECKPOINT_FILE", ""),
		CheckpointSave: getEnvDuration("FATALWATCH_CHECKPOINT_INTERVAL_MS", 2*time.Second),

		Destination: getEnv("FATALWATCH_DESTINATION", "fatal_events"),
		CreateTable: getEnvBool("FATALWATCH_CREATE_TABLE", false),
		Filter:      getEnv("FATALWATCH_FILTER", ""),

		Driver:          getEnv("FATALWATCH_DRIVER", DriverPostgres),
		DBUser:          getEnv("PGUSER", "postgres"),
		DBPassword:      getEnv("PGPASSWORD", ""),
		DBHost:          getEnv("PGHOST", "localhost"),
		DBPort:          getEnv("PGPORT", ""),
		DBName:          getEnv("PGDATABASE", "postgres"),
		DBSSLMode:       getEnv("PGSSLMODE", "disable"),
		SQLitePath:      getEnv("FATALWATCH_SQLITE_PATH", "fatalwatch.db"),
		MaxOpenConns:    getEnvInt("FATALWATCH_MAX_OPEN_CONNS", 4),
		MaxIdleConns:    getEnvInt("FATALWATCH_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("FATALWATCH_CONN_MAX_LIFETIME_MS", 30*time.Minute),
		InsertTimeout:   getEnvDuration("FATALWATCH_INSERT_TIMEOUT_MS", 5*time.Second),

		WebhookURL:     getEnv("FATALWATCH_WEBHOOK_URL", ""),
		WebhookTimeout: getEnvDuration("FATALWATCH_WEBHOOK_TIMEOUT_MS", 5*time.Second),

		HTTPAddr: getEnv("FATALWATCH_HTTP_ADDR", ""),
		LogMode:  getEnv("LOG_MODE", "dev"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		LogFile:  getEnv("FATALWATCH_LOG_FILE", ""),
	}
}

// LoadFile overlays the YAML file at path on top of c. Keys absent from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	var errs []error
	if len(c.LogPaths) == 0 {
		errs = append(errs, errors.New("no log paths configured"))
	}
	switch c.StartAt {
	case "start", "end", "offset":
	default:
		errs = append(errs, fmt.Errorf("invalid start_at %q (want start, end or offset)", c.StartAt))
	}
	if c.StartAt == "offset" && c.CheckpointFile == "" {
		errs = append(errs, errors.New("start_at=offset requires checkpoint_file"))
	}
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		if c.Destination == "" {
			errs = append(errs, errors.New("destination is required"))
		}
	case DriverWebhook:
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("webhook driver requires webhook_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	return errors.Join(errs...)
}

// DSN returns the data source name for the configured SQL driver.
func (c *Config) DSN() string {
	switch c.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.DBUser
		mc.Passwd = c.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.DBHost, c.port("3306"))
		mc.DBName = c.DBName
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN()
	case DriverSQLite:
		return c.SQLitePath
	default:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.DBUser, c.DBPassword),
			Host:   net.JoinHostPort(c.DBHost, c.port("5432")),
			Path:   "/" + c.DBName,
		}
		q := url.Values{}
		if c.DBSSLMode != "" {
			q.Set("sslmode", c.DBSSLMode)
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
}

func (c *Config) port(fallback string) string {
	if c.DBPort != "" {
		return c.DBPort
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return time.Duration(i) * time.Millisecond
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
