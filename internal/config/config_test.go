package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, 60*time.Second, cfg.Settlement.MinDelayDuration())
	assert.Equal(t, 180*time.Second, cfg.Settlement.MaxDelayDuration())
	assert.Equal(t, 15*time.Second, cfg.Settlement.SubmissionSlackDuration())
	assert.Equal(t, 10*time.Second, cfg.Settlement.BatchIntervalDuration())
	assert.Equal(t, 5*time.Second, cfg.Settlement.KeeperIntervalDuration())
	assert.Equal(t, 64, cfg.Settlement.MaxBatchSize)
	assert.Equal(t, 100*time.Second, cfg.Settlement.QuarantineDuration())
	assert.Equal(t, 4, cfg.Settlement.WrapWorkers)
	assert.Equal(t, uint64(30), cfg.AMM.FeeBps)
	assert.Equal(t, "ledger.events", cfg.NATS.SubjectPrefix)
}

func TestLoadParsesSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
settlement:
  minDelay: 30
  maxDelay: 90
amm:
  feeBps: 5
  pools:
    - tokenA: "0x00000000000000000000000000000000000000aa"
      tokenB: "0x00000000000000000000000000000000000000bb"
      reserveA: "1000000"
      reserveB: "2000000"
bootstrap:
  owner: "0x000000000000000000000000000000000000dEaD"
  balances:
    - token: "0x00000000000000000000000000000000000000aa"
      account: "0xA11CE00000000000000000000000000000000001"
      amount: "500"
admin:
  allowedIPs: ["10.0.0.0/8"]
`))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Settlement.MinDelay)
	assert.Equal(t, 90, cfg.Settlement.MaxDelay)
	assert.Equal(t, uint64(5), cfg.AMM.FeeBps)
	require.Len(t, cfg.AMM.Pools, 1)
	assert.Equal(t, "2000000", cfg.AMM.Pools[0].ReserveB)
	require.Len(t, cfg.Bootstrap.Balances, 1)
	assert.Equal(t, "500", cfg.Bootstrap.Balances[0].Amount)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Admin.AllowedIPs)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: postgres://file\nsettlement:\n  minDelay: 30\n")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("SETTLEMENT_MIN_DELAY", "45")
	t.Setenv("ENCLAVE_PRIVATE_KEY", "abcd")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CHAIN_CLOCK", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, 45, cfg.Settlement.MinDelay)
	assert.Equal(t, "abcd", cfg.Enclave.PrivateKey)
	assert.Equal(t, "jwt-secret", cfg.JWT.Secret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Chain.UseChainClock)
}

func TestLoadRejectsInvalidWindow(t *testing.T) {
	_, err := Load(writeConfig(t, "settlement:\n  minDelay: 170\n  maxDelay: 180\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "amm:\n  feeBps: 10000\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "server: ["))
	require.Error(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	require.NoError(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")))
	require.NotNil(t, AppConfig)
	assert.Equal(t, 8080, AppConfig.Server.Port)
}
