// Package config loads crudkit's YAML configuration.
//
// Precedence, lowest to highest:
//  1. Default()
//  2. The config file (--config, or ./crudkit.yaml when present)
//  3. Environment: PORT, CRUDKIT_DB, CRUDKIT_DRIVER, CRUDKIT_LOG_LEVEL,
//     CRUDKIT_LOG_FORMAT, CRUDKIT_SPECS, CRUDKIT_CORS_ORIGIN
//  4. Command-line flags, applied by the caller
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "crudkit.yaml"

// Config is the full configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigin      string        `yaml:"cors_origin"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// DatabaseConfig selects the SQLite file and driver.
type DatabaseConfig struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
}

// CatalogConfig locates entity specs. An empty SpecsDir uses the embedded
// default catalog.
type CatalogConfig struct {
	SpecsDir string `yaml:"specs_dir"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxConnections:  256,
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:   "crudkit.db",
			Driver: "sqlite3",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LookupEnv matches os.LookupEnv; tests pass a map-backed function.
type LookupEnv func(key string) (string, bool)

// Load reads configuration. An explicit path must exist; with an empty path
// ./crudkit.yaml is read when present. lookup may be nil to skip the
// environment.
func Load(path string, lookup LookupEnv) (Config, string, error) {
	cfg := Default()

	source := path
	mustExist := path != ""
	if source == "" {
		source = FileName
	}
	data, err := os.ReadFile(source)
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return Config{}, "", fmt.Errorf("config %s: %w", source, err)
		}
	case errors.Is(err, os.ErrNotExist) && !mustExist:
		source = ""
	default:
		return Config{}, "", fmt.Errorf("read config: %w", err)
	}

	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return Config{}, "", err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, source, nil
}

// Parse decodes a YAML document over Default(). Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup LookupEnv) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %q is not a number", v)
		}
		c.Server.Port = port
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"CRUDKIT_DB", &c.Database.Path},
		{"CRUDKIT_DRIVER", &c.Database.Driver},
		{"CRUDKIT_LOG_LEVEL", &c.Logging.Level},
		{"CRUDKIT_LOG_FORMAT", &c.Logging.Format},
		{"CRUDKIT_SPECS", &c.Catalog.SpecsDir},
		{"CRUDKIT_CORS_ORIGIN", &c.Server.CORSOrigin},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxConnections < 1 {
		problems = append(problems, "server.max_connections must be at least 1")
	}
	if c.Server.MaxBodyBytes < 1 {
		problems = append(problems, "server.max_body_bytes must be at least 1")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite3 or sqlite", c.Database.Driver))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DefaultFile is the commented config written by WriteDefault.
const DefaultFile = `# crudkit configuration
#
# Environment variables override this file:
#   PORT, CRUDKIT_DB, CRUDKIT_DRIVER, CRUDKIT_LOG_LEVEL,
#   CRUDKIT_LOG_FORMAT, CRUDKIT_SPECS, CRUDKIT_CORS_ORIGIN

server:
  host: ""
  port: 8080
  max_connections: 256
  max_body_bytes: 1048576
  read_timeout: 10s
  write_timeout: 30s
  shutdown_timeout: 10s
  cors_origin: ""

database:
  path: crudkit.db
  driver: sqlite3  # sqlite3 (cgo) or sqlite (pure Go)

catalog:
  specs_dir: ""  # empty uses the built-in catalog

logging:
  level: info
  format: json  # json or console
`

// ErrExists is returned by WriteDefault when the file is already there.
var ErrExists = errors.New("config file already exists")

// WriteDefault writes DefaultFile to path atomically. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := atomic.WriteFile(path, strings.NewReader(DefaultFile)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
