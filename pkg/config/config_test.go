package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
prices:
  provider: eodhd
eodhd:
  api_key: demo
`))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 5*time.Second, c.Scheduler.Interval)
	assert.True(t, c.Scheduler.RunOnStart)
	assert.Equal(t, 8*time.Second, c.Valuation.FetchTimeout)
	assert.Equal(t, "USD", c.Valuation.Currency)
	assert.Equal(t, 10, c.Calendar.MaxLookback)
	assert.Equal(t, "static", c.Calendar.Provider)
	assert.Equal(t, "memory", c.Cache.Backend)
	assert.Equal(t, "~/stocks.csv", c.Portfolio.Path)
	assert.Equal(t, "America/New_York", c.Location().String())
	assert.False(t, c.NeedsClickHouse())
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
scheduler:
  interval: 30s
  run_on_start: false
calendar:
  max_lookback: 20
  extra_holidays: ["2025-01-09"]
prices:
  provider: clickhouse
clickhouse:
  host: ch.local
`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.Scheduler.Interval)
	assert.False(t, c.Scheduler.RunOnStart)
	assert.Equal(t, 20, c.Calendar.MaxLookback)
	assert.Equal(t, []string{"2025-01-09"}, c.Calendar.ExtraHolidays)
	assert.True(t, c.NeedsClickHouse())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"alpaca without keys":  "prices: {provider: alpaca}",
		"unknown provider":     "prices: {provider: yahoo}",
		"bad timezone":         "prices: {provider: eodhd}\neodhd: {api_key: k}\ncalendar: {timezone: Mars/Olympus}",
		"bad holiday":          "prices: {provider: eodhd}\neodhd: {api_key: k}\ncalendar: {extra_holidays: [tomorrow]}",
		"kafka without broker": "prices: {provider: eodhd}\neodhd: {api_key: k}\nkafka: {enabled: true}",
		"finnhub without key":  "prices: {provider: eodhd}\neodhd: {api_key: k}\nfinnhub: {enabled: true}",
		"interval too short":   "prices: {provider: eodhd}\neodhd: {api_key: k}\nscheduler: {interval: 10ms}",
		"bad currency":         "prices: {provider: eodhd}\neodhd: {api_key: k}\nvaluation: {currency: DOLLARS}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prices: {provider: alpaca}\n"), 0o644))

	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_API_SECRET", "secret")
	t.Setenv("PORTFOLIO_PATH", "/tmp/holdings.yaml")
	t.Setenv("REDIS_ADDR", "redis.local:6380")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "key", c.Alpaca.APIKey)
	assert.Equal(t, "/tmp/holdings.yaml", c.Portfolio.Path)
	assert.Equal(t, "redis", c.Cache.Backend)
	assert.Equal(t, "redis.local", c.Cache.Redis.Host)
	assert.Equal(t, 6380, c.Cache.Redis.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestLoadWithEnvMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PRICE_PROVIDER", "eodhd")
	t.Setenv("EODHD_API_KEY", "k")
	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "eodhd", c.Prices.Provider)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "stocks.csv"), ExpandPath("~/stocks.csv"))
	assert.Equal(t, "/abs/stocks.csv", ExpandPath("/abs/stocks.csv"))
}
