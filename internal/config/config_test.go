package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, BackendMemory, cfg.Issuer.Backend)
	assert.Equal(t, BackendStub, cfg.Venue.Backend)
	assert.Equal(t, "dao", cfg.Events.SubjectPrefix)
	assert.Equal(t, 30*time.Second, cfg.Venue.ExecutionTimeout)
	assert.Equal(t, "@every 30s", cfg.Sweeper.Schedule)
	assert.Equal(t, 72*time.Hour, cfg.FundDefaults.VotingWindow)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "fundd.yaml", `
log_level: debug
storage:
  backend: postgres
  postgres_dsn: postgres://dao@localhost/dao
issuer:
  backend: rpc
  endpoint: http://localhost:8899
  timeout: 5s
venue:
  backend: ws
  endpoint: ws://localhost:9000/trade
  execution_timeout: 45s
sweeper:
  enabled: true
  schedule: "*/5 * * * *"
  auto_execute: true
fund_defaults:
  quorum_threshold: "0.6"
  voting_window: 24h
  minimum_deposit: 100
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Issuer.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Venue.ExecutionTimeout)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.True(t, cfg.Sweeper.AutoExecute)

	fc, err := cfg.DefaultFundConfig()
	require.NoError(t, err)
	assert.True(t, fc.QuorumThreshold.Equal(decimal.RequireFromString("0.6")))
	assert.Equal(t, 24*time.Hour, fc.VotingWindow)
	assert.Equal(t, uint64(100), fc.MinimumDeposit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "fundd.yaml", "log_level: debug\nsweeper:\n  enabled: false\n")
	t.Setenv("FUNDD_LOG_LEVEL", "warn")
	t.Setenv("FUNDD_SWEEPER_ENABLED", "true")
	t.Setenv("FUNDD_DEFAULT_VOTING_WINDOW", "90m")
	t.Setenv("FUNDD_DEFAULT_MINIMUM_DEPOSIT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, 90*time.Minute, cfg.FundDefaults.VotingWindow)
	assert.Equal(t, uint64(7), cfg.FundDefaults.MinimumDeposit)
}

func TestLoad_BadInput(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "storage: [unclosed"))
	assert.Error(t, err)

	t.Setenv("FUNDD_EXECUTION_TIMEOUT", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.LogLevel = "chatty"
	cfg.Storage.Backend = BackendPostgres
	cfg.Issuer.Backend = "carrier-pigeon"
	cfg.Venue.Backend = BackendWS
	cfg.Sweeper.Enabled = true
	cfg.Sweeper.Schedule = "whenever"
	cfg.FundDefaults.QuorumThreshold = "1.5"
	cfg.Storage.MaxConns = -1

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"log_level",
		"storage.postgres_dsn",
		"storage.max_conns",
		"issuer.backend",
		"venue.endpoint",
		"sweeper.schedule",
		"fund_defaults",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "# local\nFUNDD_TEST_A=one\nFUNDD_TEST_B = two \nnot-a-pair\n")
	t.Setenv("FUNDD_TEST_A", "kept")
	t.Setenv("FUNDD_TEST_B", "")

	LoadEnvFile(path)
	assert.Equal(t, "kept", os.Getenv("FUNDD_TEST_A"))
	assert.Equal(t, "two", os.Getenv("FUNDD_TEST_B"))

	LoadEnvFile(filepath.Join(t.TempDir(), "missing"))
}
