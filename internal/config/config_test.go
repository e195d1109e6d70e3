package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

const sampleTOML = `
wallets = ["9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"]
mode = "sync"

[rpc]
url = "https://rpc.example/?api-key=abc"
program_id = "PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLR89jjFHGqdXY"
batch_delay = "1s"

[[protocol.instruments]]
market_id = 1
symbol = "SOL/USDC"
kind = "spot"
base_decimals = 9
quote_decimals = 6
price_decimals = 6

[[protocol.tokens]]
id = 0
symbol = "USDC"
decimals = 6

[postgres]
password = "hunter2"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sync", cfg.Mode)
	assert.Equal(t, time.Second, cfg.RPC.BatchDelay.Duration)
	assert.Equal(t, 30*time.Second, cfg.RPC.Timeout.Duration, "unset fields keep defaults")
	require.Len(t, cfg.Protocol.Instruments, 1)
	assert.Equal(t, domain.Instrument{
		MarketID: 1, Symbol: "SOL/USDC", Kind: domain.InstrumentSpot,
		BaseDecimals: 9, QuoteDecimals: 6, PriceDecimals: 6,
	}, cfg.Protocol.Instruments[0])
	assert.Equal(t, []domain.Token{{ID: 0, Symbol: "USDC", Decimals: 6}}, cfg.Protocol.Tokens)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_RPC_PROGRAM_ID", "Override111111111111111111111111111111111111")
	t.Setenv("LEDGER_WALLETS", " a , b ,")
	t.Setenv("LEDGER_PIPELINE_INTERVAL", "90s")
	t.Setenv("LEDGER_S3_ENABLED", "true")
	t.Setenv("LEDGER_SERVER_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "Override111111111111111111111111111111111111", cfg.RPC.ProgramID)
	assert.Equal(t, []string{"a", "b"}, cfg.Wallets)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.Interval.Duration)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, 8000, cfg.Server.Port, "unparseable values are ignored")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().RPC.URL, cfg.RPC.URL)

	_, err = Load(writeConfig(t, "mode = ["))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program_id")

	cfg.RPC.ProgramID = "prog"
	require.NoError(t, cfg.Validate())

	cfg.Mode = "sync"
	cfg.Protocol.Instruments = []domain.Instrument{
		{MarketID: 1, Symbol: "A", Kind: domain.InstrumentSpot},
		{MarketID: 1, Symbol: "", Kind: "option", PriceDecimals: 40},
	}
	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"at least one wallet",
		"duplicate instrument market_id 1",
		"instrument 1 has no symbol",
		`kind must be spot or perp, got "option"`,
		"decimals must be 0-38",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestWarnings(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, cfg.Warnings())

	cfg.Ledger.CacheLimit = 500
	cfg.RPC.MaxSignatures = 10
	warns := cfg.Warnings()
	require.Len(t, warns, 2)
	assert.Contains(t, warns[0], "cache_limit 500")
	assert.Contains(t, warns[1], "max_signatures 10")
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	cfg.Server.APIKey = "key"

	red := RedactedConfig(cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Empty(t, red.Redis.Password, "empty secrets stay empty")
	assert.Equal(t, "https://rpc.example/?***", red.RPC.URL)

	red.Wallets[0] = "changed"
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.NotEqual(t, "changed", cfg.Wallets[0])
}
