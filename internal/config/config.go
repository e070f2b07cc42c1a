// Package config loads fundd configuration from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/logging"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRPC      = "rpc"
	BackendStub     = "stub"
	BackendWS       = "ws"
)

// Config holds all fundd configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	ProgramID string `yaml:"program_id"`

	Storage struct {
		Backend     string `yaml:"backend"`
		PostgresDSN string `yaml:"postgres_dsn"`
		MaxConns    int32  `yaml:"max_conns"` // 0 keeps the pgx default
	} `yaml:"storage"`

	Activity struct {
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"activity"`

	Events struct {
		NATSURL       string `yaml:"nats_url"`
		SubjectPrefix string `yaml:"subject_prefix"`
		ClientName    string `yaml:"client_name"`
	} `yaml:"events"`

	Issuer struct {
		Backend    string        `yaml:"backend"`
		Endpoint   string        `yaml:"endpoint"`
		AuthToken  string        `yaml:"auth_token"`
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries int           `yaml:"max_retries"`
	} `yaml:"issuer"`

	Venue struct {
		Backend          string        `yaml:"backend"`
		Endpoint         string        `yaml:"endpoint"`
		ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	} `yaml:"venue"`

	Sweeper struct {
		Enabled     bool   `yaml:"enabled"`
		Schedule    string `yaml:"schedule"`
		AutoExecute bool   `yaml:"auto_execute"`
	} `yaml:"sweeper"`

	Metrics struct {
		Addr      string `yaml:"addr"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metrics"`

	// Defaults applied to funds created without explicit parameters.
	FundDefaults struct {
		QuorumThreshold string        `yaml:"quorum_threshold"`
		VotingWindow    time.Duration `yaml:"voting_window"`
		MinimumDeposit  uint64        `yaml:"minimum_deposit"`
	} `yaml:"fund_defaults"`
}

// Load reads config from a YAML file, then applies environment overrides and
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"FUNDD_LOG_LEVEL":         &c.LogLevel,
		"FUNDD_PROGRAM_ID":        &c.ProgramID,
		"FUNDD_STORAGE_BACKEND":   &c.Storage.Backend,
		"FUNDD_POSTGRES_DSN":      &c.Storage.PostgresDSN,
		"FUNDD_CLICKHOUSE_DSN":    &c.Activity.ClickhouseDSN,
		"FUNDD_NATS_URL":          &c.Events.NATSURL,
		"FUNDD_NATS_PREFIX":       &c.Events.SubjectPrefix,
		"FUNDD_ISSUER_BACKEND":    &c.Issuer.Backend,
		"FUNDD_ISSUER_ENDPOINT":   &c.Issuer.Endpoint,
		"FUNDD_ISSUER_AUTH_TOKEN": &c.Issuer.AuthToken,
		"FUNDD_VENUE_BACKEND":     &c.Venue.Backend,
		"FUNDD_VENUE_ENDPOINT":    &c.Venue.Endpoint,
		"FUNDD_SWEEPER_SCHEDULE":  &c.Sweeper.Schedule,
		"FUNDD_METRICS_ADDR":      &c.Metrics.Addr,
		"FUNDD_DEFAULT_QUORUM":    &c.FundDefaults.QuorumThreshold,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"FUNDD_ISSUER_TIMEOUT":        &c.Issuer.Timeout,
		"FUNDD_EXECUTION_TIMEOUT":     &c.Venue.ExecutionTimeout,
		"FUNDD_DEFAULT_VOTING_WINDOW": &c.FundDefaults.VotingWindow,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"FUNDD_SWEEPER_ENABLED":      &c.Sweeper.Enabled,
		"FUNDD_SWEEPER_AUTO_EXECUTE": &c.Sweeper.AutoExecute,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv("FUNDD_DEFAULT_MINIMUM_DEPOSIT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FUNDD_DEFAULT_MINIMUM_DEPOSIT: %w", err)
		}
		c.FundDefaults.MinimumDeposit = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "dao"
	}
	if c.Events.ClientName == "" {
		c.Events.ClientName = "fundd"
	}
	if c.Issuer.Backend == "" {
		c.Issuer.Backend = BackendMemory
	}
	if c.Issuer.Timeout == 0 {
		c.Issuer.Timeout = 10 * time.Second
	}
	if c.Issuer.MaxRetries == 0 {
		c.Issuer.MaxRetries = 3
	}
	if c.Venue.Backend == "" {
		c.Venue.Backend = BackendStub
	}
	if c.Venue.ExecutionTimeout == 0 {
		c.Venue.ExecutionTimeout = 30 * time.Second
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "@every 30s"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "fund_dao"
	}
	if c.FundDefaults.QuorumThreshold == "" {
		c.FundDefaults.QuorumThreshold = "0.5"
	}
	if c.FundDefaults.VotingWindow == 0 {
		c.FundDefaults.VotingWindow = 72 * time.Hour
	}
}

// Validate checks backend choices and their required settings.
func (c *Config) Validate() error {
	var errs []error

	if !contains(logging.Levels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("log_level %q must be one of %v", c.LogLevel, logging.Levels))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be memory or postgres", c.Storage.Backend))
	}
	if c.Storage.MaxConns < 0 {
		errs = append(errs, errors.New("storage.max_conns must not be negative"))
	}

	switch c.Issuer.Backend {
	case BackendMemory:
	case BackendRPC:
		if c.Issuer.Endpoint == "" {
			errs = append(errs, errors.New("issuer.endpoint is required for the rpc backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("issuer.backend %q must be memory or rpc", c.Issuer.Backend))
	}
	if c.Issuer.MaxRetries < 0 {
		errs = append(errs, errors.New("issuer.max_retries must not be negative"))
	}

	switch c.Venue.Backend {
	case BackendStub:
	case BackendWS:
		if c.Venue.Endpoint == "" {
			errs = append(errs, errors.New("venue.endpoint is required for the ws backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("venue.backend %q must be stub or ws", c.Venue.Backend))
	}
	if c.Venue.ExecutionTimeout < 0 {
		errs = append(errs, errors.New("venue.execution_timeout must be positive"))
	}

	if c.Sweeper.Enabled {
		if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("sweeper.schedule: %w", err))
		}
	}

	if _, err := c.DefaultFundConfig(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// DefaultFundConfig returns the governance parameters for new funds.
func (c *Config) DefaultFundConfig() (domain.FundConfig, error) {
	q, err := decimal.NewFromString(c.FundDefaults.QuorumThreshold)
	if err != nil {
		return domain.FundConfig{}, fmt.Errorf("fund_defaults.quorum_threshold: %w", err)
	}
	fc := domain.FundConfig{
		QuorumThreshold: q,
		VotingWindow:    c.FundDefaults.VotingWindow,
		MinimumDeposit:  c.FundDefaults.MinimumDeposit,
	}
	if err := fc.Validate(); err != nil {
		return domain.FundConfig{}, fmt.Errorf("fund_defaults: %w", err)
	}
	return fc, nil
}

// LoadEnvFile sets variables from a .env file without overriding ones that
// are already set. A missing file is ignored.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if os.Getenv(key) == "" {
			os.Setenv(key, strings.TrimSpace(value))
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
