// Package bot implements a single Discord bot: its connection lifecycle,
// loaded addons, prefix commands and slash commands.
//
// A bot moves through OFFLINE, STARTING, READY and STOPPING and back to
// OFFLINE. All mutable state is guarded by a per-bot mutex; addon hooks and
// command handlers always run without it held.
package bot

import (
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/lunemec/spicord/pkg/gateway"
	"github.com/lunemec/spicord/pkg/scheduler"
)

var (
	// ErrDisabled is returned when starting a disabled bot.
	ErrDisabled = errors.New("bot is disabled")
	// ErrNotOffline is returned when starting a bot that is already running.
	ErrNotOffline = errors.New("bot is not offline")
	// ErrNotConnected is returned by operations needing a gateway session.
	ErrNotConnected = errors.New("bot is not connected")
	// ErrAuthentication is the cause of a start failing on a rejected token.
	ErrAuthentication = errors.New("authentication failed")
)

// Status of a bot.
type Status int

// Bot statuses. Unknown is never entered.
const (
	Unknown Status = iota
	Offline
	Starting
	Ready
	Stopping
)

func (s Status) String() string {
	switch s {
	case Offline:
		return "Offline"
	case Starting:
		return "Starting"
	case Ready:
		return "Ready"
	case Stopping:
		return "Stopping"
	}
	return "Unknown"
}

type logger interface {
	Debugw(string, ...interface{})
	Infow(string, ...interface{})
	Warnw(string, ...interface{})
	Errorw(string, ...interface{})
}

// AddonResolver returns the addons a bot should load on start.
type AddonResolver interface {
	Resolve(b *Bot) []Addon
}

// Config describes one bot.
type Config struct {
	Name                  string
	Token                 string
	Enabled               bool
	Addons                []string
	CommandSupport        bool
	CommandPrefix         string
	InitialCommandCleanup bool
	AutoReconnect         bool
}

// Options are the collaborators of a bot.
type Options struct {
	Log       logger
	Scheduler scheduler.Scheduler
	Connector gateway.Connector
	Addons    AddonResolver
	// Debug enables debug log lines.
	Debug bool
	// OnStatusChange, when set, is called after every status transition.
	OnStatusChange func(b *Bot, from, to Status)
}

// Bot is one configured Discord bot.
type Bot struct {
	name           string
	token          string
	enabled        bool
	addonIDs       []string
	commandSupport bool
	prefix         string
	initialCleanup bool
	autoReconnect  bool

	log       logger
	debug     bool
	sched     scheduler.Scheduler
	connector gateway.Connector
	resolver  AddonResolver
	onStatus  func(b *Bot, from, to Status)
	presence  *Presence

	mu       sync.Mutex
	status   Status
	client   gateway.Client
	group    *scheduler.Group
	commands map[string]CommandHandler
	loaded   []Addon
	slash    map[string]map[string]*slashHandler
	readied  bool
	selfID   string

	// gen identifies the current lifecycle. It changes on every start and
	// shutdown.
	gen uint64
}

// New creates an OFFLINE bot. An empty prefix disables command support.
func New(cfg Config, opts Options) *Bot {
	b := &Bot{
		name:           cfg.Name,
		token:          cfg.Token,
		enabled:        cfg.Enabled,
		addonIDs:       dedupe(cfg.Addons),
		commandSupport: cfg.CommandSupport,
		prefix:         strings.TrimSpace(cfg.CommandPrefix),
		initialCleanup: cfg.InitialCommandCleanup,
		autoReconnect:  cfg.AutoReconnect,
		log:            opts.Log,
		debug:          opts.Debug,
		sched:          opts.Scheduler,
		connector:      opts.Connector,
		resolver:       opts.Addons,
		onStatus:       opts.OnStatusChange,
		status:         Offline,
		commands:       make(map[string]CommandHandler),
		slash:          make(map[string]map[string]*slashHandler),
	}
	b.presence = &Presence{bot: b, status: discordgo.StatusOnline}

	if b.commandSupport && b.prefix == "" {
		b.commandSupport = false
		b.log.Errorw("The command prefix cannot be empty, command support is now disabled",
			"bot", b.name,
		)
	}
	return b
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Name returns the configured bot name.
func (b *Bot) Name() string { return b.name }

// Enabled reports whether the bot may be started.
func (b *Bot) Enabled() bool { return b.enabled }

// AddonIDs returns the ids of the addons configured for the bot.
func (b *Bot) AddonIDs() []string {
	return append([]string(nil), b.addonIDs...)
}

// CommandSupport reports whether prefix commands are enabled.
func (b *Bot) CommandSupport() bool { return b.commandSupport }

// CommandPrefix returns the prefix of text commands.
func (b *Bot) CommandPrefix() string { return b.prefix }

// Presence controls the bot activity and online status.
func (b *Bot) Presence() *Presence { return b.presence }

// Status returns the current status.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// IsReady reports whether the bot is connected and ready.
func (b *Bot) IsReady() bool {
	return b.Status() == Ready
}

// IsConnected is IsReady.
func (b *Bot) IsConnected() bool {
	return b.IsReady()
}

// ID returns the user id of the bot account, known once the bot was ready.
func (b *Bot) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selfID
}

// Client returns the gateway session, nil while offline.
func (b *Bot) Client() gateway.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Scheduler returns the worker pool of the current lifecycle, nil while
// offline. It silently rejects work once the bot shuts down.
func (b *Bot) Scheduler() scheduler.Scheduler {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.group == nil {
		return nil
	}
	return b.group
}

// GatewayStatus returns the gateway client status or "-" without a client.
func (b *Bot) GatewayStatus() string {
	client := b.Client()
	if client == nil {
		return "-"
	}
	return client.Status()
}

// Commands returns the registered prefix command names, sorted.
func (b *Bot) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadedAddons returns the loaded addons in load order.
func (b *Bot) LoadedAddons() []Addon {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Addon(nil), b.loaded...)
}

// IsPrivilegedUser reports whether userID owns the bot application or is an
// accepted member of its team.
func (b *Bot) IsPrivilegedUser(userID string) (bool, error) {
	client := b.Client()
	if client == nil {
		return false, ErrNotConnected
	}
	app, err := client.Application()
	if err != nil {
		return false, err
	}
	if app.Owner != nil && app.Owner.ID == userID {
		return true, nil
	}
	if app.Team != nil {
		for _, m := range app.Team.Members {
			if m.MembershipState == discordgo.MembershipStateAccepted && m.User != nil && m.User.ID == userID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (b *Bot) debugw(msg string, keysAndValues ...interface{}) {
	if b.debug {
		b.log.Debugw(msg, append([]interface{}{"bot", b.name}, keysAndValues...)...)
	}
}

// transition moves to status to if the current status is one of from. The
// status hook runs after the lock is released.
func (b *Bot) transition(to Status, from ...Status) bool {
	b.mu.Lock()
	old := b.status
	ok := false
	for _, s := range from {
		if s == old {
			ok = true
			break
		}
	}
	if ok {
		b.status = to
	}
	b.mu.Unlock()

	if ok {
		b.notify(old, to)
	}
	return ok
}

func (b *Bot) notify(from, to Status) {
	if b.onStatus != nil && from != to {
		b.onStatus(b, from, to)
	}
}
