// Package config loads the Spicord configuration through viper.
package config

import (
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/lunemec/spicord/pkg/bot"
)

// Scheduler hosts.
const (
	HostTick = "tick"
	HostPool = "pool"
	HostLoop = "loop"
)

// DefaultUpdateURL is queried for new releases. A %version% placeholder in
// the URL is replaced by the running version.
const DefaultUpdateURL = "https://api.spicord.org/checkversion"

// Config is the whole configuration.
type Config struct {
	Debug       bool          `mapstructure:"debug"`
	LoadDelay   time.Duration `mapstructure:"load_delay"`
	UpdateCheck bool          `mapstructure:"update_check"`
	UpdateURL   string        `mapstructure:"update_url"`
	Scheduler   Scheduler     `mapstructure:"scheduler"`
	Status      Status        `mapstructure:"status"`
	Links       Links         `mapstructure:"links"`
	Presence    Presence      `mapstructure:"presence"`
	Bots        []Bot         `mapstructure:"bots"`
}

// Scheduler selects and tunes the host scheduler.
type Scheduler struct {
	Host     string        `mapstructure:"host"`
	Tick     time.Duration `mapstructure:"tick"`
	PoolSize int           `mapstructure:"pool_size"`
}

// Status configures the status API. An empty address disables it.
type Status struct {
	Addr string `mapstructure:"addr"`
}

// Links configures the account linking database. An empty file disables it.
type Links struct {
	File string `mapstructure:"file"`
}

// Presence configures the player count shown as bot activity. A zero
// interval disables it.
type Presence struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Bot is one [[bots]] entry.
type Bot struct {
	Name                  string   `mapstructure:"name"`
	Token                 string   `mapstructure:"token"`
	Enabled               bool     `mapstructure:"enabled"`
	Addons                []string `mapstructure:"addons"`
	CommandSupport        bool     `mapstructure:"command_support"`
	CommandPrefix         string   `mapstructure:"command_prefix"`
	InitialCommandCleanup bool     `mapstructure:"initial_command_cleanup"`
	// AutoReconnect defaults to true when omitted.
	AutoReconnect *bool `mapstructure:"auto_reconnect"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("load_delay", 0)
	v.SetDefault("update_check", true)
	v.SetDefault("update_url", DefaultUpdateURL)
	v.SetDefault("scheduler.host", HostPool)
	v.SetDefault("scheduler.tick", 50*time.Millisecond)
	v.SetDefault("scheduler.pool_size", 0)
	v.SetDefault("status.addr", "")
	v.SetDefault("links.file", "")
	v.SetDefault("presence.interval", time.Minute)
}

// Load unmarshals the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode configuration")
	}
	cfg.Scheduler.Host = strings.ToLower(strings.TrimSpace(cfg.Scheduler.Host))
	return &cfg, nil
}

// Validate returns every problem of the configuration, nil when there is
// none.
func (c *Config) Validate() error {
	var result *multierror.Error
	switch c.Scheduler.Host {
	case HostTick, HostPool, HostLoop:
	default:
		result = multierror.Append(result, errors.Errorf("unknown scheduler host %q", c.Scheduler.Host))
	}
	if c.Scheduler.Tick <= 0 {
		result = multierror.Append(result, errors.Errorf("scheduler tick must be positive, got %s", c.Scheduler.Tick))
	}
	if c.Presence.Interval < 0 {
		result = multierror.Append(result, errors.Errorf("presence interval cannot be negative, got %s", c.Presence.Interval))
	}
	if c.LoadDelay < 0 {
		result = multierror.Append(result, errors.Errorf("load delay cannot be negative, got %s", c.LoadDelay))
	}

	seen := make(map[string]bool)
	for i, b := range c.Bots {
		if err := b.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "bot #%d", i+1))
			continue
		}
		if seen[b.Name] {
			result = multierror.Append(result, errors.Errorf("bot #%d: duplicate bot name %q", i+1, b.Name))
		}
		seen[b.Name] = true
	}
	return result.ErrorOrNil()
}

// UsableBots returns the bots passing validation. Of bots sharing a name only
// the first is kept.
func (c *Config) UsableBots() []Bot {
	seen := make(map[string]bool)
	var out []Bot
	for _, b := range c.Bots {
		if b.Validate() != nil || seen[b.Name] {
			continue
		}
		seen[b.Name] = true
		out = append(out, b)
	}
	return out
}

// Validate checks a single bot entry.
func (b Bot) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("the bot name cannot be empty")
	}
	if b.Enabled && strings.TrimSpace(b.Token) == "" {
		return errors.Errorf("the bot %q is enabled but has no token", b.Name)
	}
	return nil
}

// BotConfig converts the entry into the configuration of a bot.
func (b Bot) BotConfig() bot.Config {
	reconnect := true
	if b.AutoReconnect != nil {
		reconnect = *b.AutoReconnect
	}
	return bot.Config{
		Name:                  b.Name,
		Token:                 b.Token,
		Enabled:               b.Enabled,
		Addons:                b.Addons,
		CommandSupport:        b.CommandSupport,
		CommandPrefix:         b.CommandPrefix,
		InitialCommandCleanup: b.InitialCommandCleanup,
		AutoReconnect:         reconnect,
	}
}
