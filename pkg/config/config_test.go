package config

import (
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
debug = true
load_delay = "2s"

[scheduler]
host = "Tick"
tick = "25ms"

[status]
addr = "127.0.0.1:8080"

[[bots]]
name = "b1"
token = "secret"
enabled = true
addons = ["spicord::info", "spicord::players"]
command_support = true
command_prefix = "!"

[[bots]]
name = "b2"
enabled = false
auto_reconnect = false
`

func load(t *testing.T, content string) *Config {
	t.Helper()
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad(t *testing.T) {
	cfg := load(t, sample)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 2*time.Second, cfg.LoadDelay)
	assert.True(t, cfg.UpdateCheck)
	assert.Equal(t, DefaultUpdateURL, cfg.UpdateURL)
	assert.Equal(t, HostTick, cfg.Scheduler.Host)
	assert.Equal(t, 25*time.Millisecond, cfg.Scheduler.Tick)
	assert.Equal(t, "127.0.0.1:8080", cfg.Status.Addr)
	assert.Empty(t, cfg.Links.File)
	require.Len(t, cfg.Bots, 2)
	assert.NoError(t, cfg.Validate())

	b1 := cfg.Bots[0].BotConfig()
	assert.Equal(t, "b1", b1.Name)
	assert.Equal(t, "secret", b1.Token)
	assert.True(t, b1.Enabled)
	assert.Equal(t, []string{"spicord::info", "spicord::players"}, b1.Addons)
	assert.True(t, b1.CommandSupport)
	assert.Equal(t, "!", b1.CommandPrefix)
	assert.True(t, b1.AutoReconnect)

	b2 := cfg.Bots[1].BotConfig()
	assert.False(t, b2.Enabled)
	assert.False(t, b2.AutoReconnect)
}

func TestDefaults(t *testing.T) {
	cfg := load(t, "")

	assert.Equal(t, HostPool, cfg.Scheduler.Host)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.Tick)
	assert.Zero(t, cfg.LoadDelay)
	assert.Equal(t, time.Minute, cfg.Presence.Interval)
	assert.Empty(t, cfg.Bots)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := load(t, `
[scheduler]
host = "folia"
tick = "0s"

[[bots]]
name = ""

[[bots]]
name = "b1"
enabled = true

[[bots]]
name = "b2"

[[bots]]
name = "b2"
`)

	err := cfg.Validate()
	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), `unknown scheduler host "folia"`)
	assert.Contains(t, err.Error(), "scheduler tick must be positive")
	assert.Contains(t, err.Error(), "the bot name cannot be empty")
	assert.Contains(t, err.Error(), `the bot "b1" is enabled but has no token`)
	assert.Contains(t, err.Error(), `duplicate bot name "b2"`)

	usable := cfg.UsableBots()
	require.Len(t, usable, 1)
	assert.Equal(t, "b2", usable[0].Name)
}
