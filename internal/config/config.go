// Package config loads and validates the NEO6 proxy's configuration
// (spec §6): a TOML document (default.toml) merged with CLI flags and
// environment variables, plus the separate transactions.yaml document
// (owned by internal/txregistry).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/carles-abarca/NEO6/internal/errors"
)

// Config is the merged default.toml document.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Protocols     ProtocolsConfig     `toml:"protocols"`
	Security      SecurityConfig      `toml:"security"`
	Logging       LoggingConfig       `toml:"logging"`
	Metrics       MetricsConfig       `toml:"metrics"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
	MQ            MQConfig            `toml:"mq"`
	TN3270        TN3270Config        `toml:"tn3270"`
}

type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	AdminPort      int    `toml:"admin_port"`
	MaxConnections int    `toml:"max_connections"`
	TimeoutMS      int    `toml:"timeout_ms"`
}

type ProtocolsConfig struct {
	LibraryPath string   `toml:"library_path"`
	AutoLoad    bool     `toml:"auto_load"`
	Enabled     []string `toml:"enabled"`
}

// SecurityConfig carries TLS and REST bearer-auth settings. JWTSecret
// is env-expandable: a value of the form "${VAR}" is resolved against
// the process environment at load time (spec §6).
type SecurityConfig struct {
	TLSEnabled bool   `toml:"tls_enabled"`
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	JWTSecret  string `toml:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"`
}

type MetricsConfig struct {
	Enabled          bool   `toml:"enabled"`
	Endpoint         string `toml:"endpoint"`
	CollectIntervalS int    `toml:"collect_interval_s"`
}

type CircuitBreakerConfig struct {
	Enabled          bool    `toml:"enabled"`
	FailureThreshold float64 `toml:"failure_threshold"`
	RecoveryTimeoutS int     `toml:"recovery_timeout_s"`
	HalfOpenMaxCalls int     `toml:"half_open_max_calls"`
}

// MQConfig configures the MQ Frontend Listener's NATS connection when
// --protocol mq is selected.
type MQConfig struct {
	URL            string `toml:"url"`
	RequestSubject string `toml:"request_subject"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
}

// TN3270Config names the screen templates driving the TN3270 Frontend
// Listener when --protocol tn3270 is selected. Template files are
// compiled per spec §4.7's template language; TerminalType defaults to
// "IBM-3278-2" when empty.
type TN3270Config struct {
	EntryTemplatePath  string `toml:"entry_template_path"`
	ResultTemplatePath string `toml:"result_template_path"`
	TransactionID      string `toml:"transaction_id"`
	TerminalType       string `toml:"terminal_type"`
}

// Load parses path as default.toml, expands ${VAR} references, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("read default.toml: %v", err))
	}
	return LoadBytes(raw)
}

// LoadBytes is Load without the filesystem dependency.
func LoadBytes(raw []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("parse default.toml: %v", err))
	}

	cfg.Security.JWTSecret = expandEnv(cfg.Security.JWTSecret)
	cfg.Security.CertFile = expandEnv(cfg.Security.CertFile)
	cfg.Security.KeyFile = expandEnv(cfg.Security.KeyFile)

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in zero-valued fields the same way the teacher's
// own agent Config.Validate does: silently, in place.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = 4001
	}
	if c.Server.TimeoutMS == 0 {
		c.Server.TimeoutMS = 30000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.Output) == 0 {
		c.Logging.Output = []string{"stdout"}
	}
	if c.Metrics.CollectIntervalS == 0 {
		c.Metrics.CollectIntervalS = 60
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		c.CircuitBreaker.FailureThreshold = 0.5
	}
	if c.CircuitBreaker.RecoveryTimeoutS == 0 {
		c.CircuitBreaker.RecoveryTimeoutS = 60
	}
	if c.CircuitBreaker.HalfOpenMaxCalls == 0 {
		c.CircuitBreaker.HalfOpenMaxCalls = 1
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.ConfigInvalid(fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.AdminPort < 1 || c.Server.AdminPort > 65535 {
		return errors.ConfigInvalid(fmt.Sprintf("server.admin_port out of range: %d", c.Server.AdminPort))
	}
	if c.Server.AdminPort == c.Server.Port {
		return errors.ConfigInvalid("server.admin_port must differ from server.port")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if c.Security.TLSEnabled && (c.Security.CertFile == "" || c.Security.KeyFile == "") {
		return errors.ConfigInvalid("security.tls_enabled requires cert_file and key_file")
	}
	return nil
}

// expandEnv resolves a "${VAR}" or "${VAR:-default}" reference against
// the process environment; a plain value passes through unchanged.
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	inner := value[2 : len(value)-1]
	if name, def, ok := strings.Cut(inner, ":-"); ok {
		if v := os.Getenv(name); v != "" {
			return v
		}
		return def
	}
	return os.Getenv(inner)
}

// ParsePort parses a port number given as a string, rejecting anything
// outside 1..65535 with CONFIG_INVALID.
func ParsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return 0, errors.ConfigInvalid(fmt.Sprintf("invalid port %q", s))
	}
	return n, nil
}
