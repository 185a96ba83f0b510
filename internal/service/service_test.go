package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30s", want: 30 * time.Second},
		{in: "1m", want: time.Minute},
		{in: "15m", want: 15 * time.Minute},
		{in: "4h", want: 4 * time.Hour},
		{in: "1d", want: 24 * time.Hour},
		{in: "m", wantErr: true},
		{in: "0m", wantErr: true},
		{in: "xm", wantErr: true},
		{in: "5w", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIntervalDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "1m", FormatInterval(time.Minute))
	assert.Equal(t, "4h", FormatInterval(4*time.Hour))
	assert.Equal(t, "90m", FormatInterval(90*time.Minute))
	assert.Equal(t, "30s", FormatInterval(30*time.Second))
	assert.Equal(t, "24h", FormatInterval(24*time.Hour))
}

func TestInstanceConfig_SeriesKey(t *testing.T) {
	tests := []struct {
		interval string
		want     string
	}{
		{interval: "1m", want: "BTCUSDT-1m"},
		{interval: "60s", want: "BTCUSDT-1m"},
		{interval: "120m", want: "BTCUSDT-2h"},
		{interval: "1d", want: "BTCUSDT-24h"},
	}
	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			got, err := InstanceConfig{Symbol: "BTCUSDT", Interval: tt.interval}.SeriesKey()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := InstanceConfig{Symbol: "BTCUSDT", Interval: "1y"}.SeriesKey()
	assert.Error(t, err)
}

func TestStringConversions(t *testing.T) {
	f, err := StringToFloat("42150.5")
	require.NoError(t, err)
	assert.Equal(t, 42150.5, f)

	i, err := StringToInt64("1700000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), i)

	_, err = StringToFloat("abc")
	assert.Error(t, err)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := writeConfig(t, `
Instances:
  btc:
    Symbol: BTCUSDT
  eth:
    Symbol: ETHUSDT
    Interval: 5m
    Replay: true
`)
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Pipeline.PenMinDistance)
	assert.Equal(t, 256, cfg.Pipeline.EventBuffer)
	assert.Equal(t, DefaultOkxWSURL, cfg.Exchange.WSURL)

	require.Len(t, cfg.Instances, 2)
	assert.Equal(t, "1m", cfg.Instances["btc"].Interval)
	assert.Equal(t, "5m", cfg.Instances["eth"].Interval)
	assert.True(t, cfg.Instances["eth"].Replay)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)

	dir := writeConfig(t, `
Store:
  Driver: redis
Instances:
  btc:
    Symbol: BTCUSDT
`)
	_, err = LoadConfig(dir)
	assert.ErrorContains(t, err, "Store.Driver")

	dir = writeConfig(t, `
Exchange:
  WSURL: https://www.okx.com
Instances:
  btc:
    Symbol: BTCUSDT
`)
	_, err = LoadConfig(dir)
	assert.ErrorContains(t, err, "Exchange.WSURL")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Exchange:  ExchangeConfig{Name: "okx", WSURL: DefaultOkxWSURL},
			Store:     StoreConfig{Driver: StoreSQLite, SQLitePath: "bars.db"},
			Pipeline:  PipelineConfig{PenMinDistance: 4, EventBuffer: 16},
			Instances: map[string]InstanceConfig{"btc": {Symbol: "BTCUSDT", Interval: "1m"}},
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing ws url", mutate: func(c *Config) { c.Exchange.WSURL = "" }, errMsg: "Exchange.WSURL is required"},
		{name: "http ws url", mutate: func(c *Config) { c.Exchange.WSURL = "http://localhost:8080" }, errMsg: "ws or wss"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.SQLitePath = "" }, errMsg: "SQLitePath"},
		{name: "pen distance", mutate: func(c *Config) { c.Pipeline.PenMinDistance = 0 }, errMsg: "PenMinDistance"},
		{name: "negative buffer", mutate: func(c *Config) { c.Pipeline.EventBuffer = -1 }, errMsg: "EventBuffer"},
		{name: "no instances", mutate: func(c *Config) { c.Instances = nil }, errMsg: "instance"},
		{name: "missing symbol", mutate: func(c *Config) { c.Instances["btc"] = InstanceConfig{Interval: "1m"} }, errMsg: "Symbol"},
		{name: "bad interval", mutate: func(c *Config) { c.Instances["btc"] = InstanceConfig{Symbol: "BTCUSDT", Interval: "1y"} }, errMsg: "unsupported interval unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestInitLogger(t *testing.T) {
	InitLogger("debug")
	require.NotNil(t, Logger)
	assert.True(t, Logger.Core().Enabled(-1))

	InitLogger("")
	assert.False(t, Logger.Core().Enabled(-1))
}
