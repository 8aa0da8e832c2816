// Package spicord is the application controller: it owns the configured bots,
// the addon registry and the services, and loads or disables them together.
package spicord

import (
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/addon"
	"github.com/lunemec/spicord/pkg/bot"
	"github.com/lunemec/spicord/pkg/config"
	"github.com/lunemec/spicord/pkg/gateway"
	"github.com/lunemec/spicord/pkg/scheduler"
	"github.com/lunemec/spicord/pkg/server"
	"github.com/lunemec/spicord/pkg/services"
)

// Version of Spicord.
const Version = "5.0.0"

// StartupListener is called once Spicord finished loading.
type StartupListener func(s *Spicord)

// Options are the collaborators of the controller.
type Options struct {
	Log       *zap.Logger
	Config    *config.Config
	Scheduler scheduler.Scheduler
	Connector gateway.Connector
	Server    server.Server
	// Services defaults to an empty registry.
	Services *services.Manager
}

// Spicord owns every configured bot.
type Spicord struct {
	log       *zap.Logger
	cfg       *config.Config
	sched     scheduler.Scheduler
	connector gateway.Connector
	srv       server.Server
	addons    *addon.Manager
	services  *services.Manager
	loader    *bot.Loader

	mu        sync.Mutex
	loaded    bool
	bots      []*bot.Bot
	listeners []StartupListener
}

// New returns an unloaded controller.
func New(opts Options) *Spicord {
	svcs := opts.Services
	if svcs == nil {
		svcs = services.NewManager()
	}
	return &Spicord{
		log:       opts.Log,
		cfg:       opts.Config,
		sched:     opts.Scheduler,
		connector: opts.Connector,
		srv:       opts.Server,
		addons:    addon.NewManager(opts.Log),
		services:  svcs,
		loader:    bot.NewLoader(opts.Log.Sugar()),
	}
}

// Load runs OnLoad on the scheduler after the configured load delay.
func (s *Spicord) Load() *scheduler.Task {
	if s.cfg.LoadDelay > 0 {
		s.log.Info("Spicord will load after the configured delay",
			zap.Duration("delay", s.cfg.LoadDelay),
		)
	}
	return s.sched.RunAsyncLater(func() (interface{}, error) {
		return nil, s.OnLoad()
	}, s.cfg.LoadDelay)
}

// OnLoad registers the built-in addons and starts every configured bot. A
// failure is logged and leaves the controller disabled.
func (s *Spicord) OnLoad() error {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.load(); err != nil {
		s.log.Error("Spicord could not be loaded", zap.Error(err))
		if disableErr := s.OnDisable(); disableErr != nil {
			s.log.Error("Error disabling Spicord", zap.Error(disableErr))
		}
		return err
	}
	return nil
}

func (s *Spicord) load() error {
	if err := s.cfg.Validate(); err != nil {
		// Invalid entries are skipped below, the rest still loads.
		s.log.Warn("Configuration problems found", zap.Error(err))
	}

	for _, a := range addon.Builtin(s.srv, Version) {
		err := s.addons.Register(a)
		switch {
		case errors.Is(err, addon.ErrNameConflict):
			// The manager already warned; the registered addon keeps the id.
		case err != nil:
			return errors.Wrap(err, "unable to register built-in addons")
		}
	}

	var bots []*bot.Bot
	for _, entry := range s.cfg.UsableBots() {
		bots = append(bots, bot.New(entry.BotConfig(), bot.Options{
			Log:            s.log.Sugar(),
			Scheduler:      s.sched,
			Connector:      s.connector,
			Addons:         s.addons,
			Debug:          s.cfg.Debug,
			OnStatusChange: s.statusChanged,
		}))
	}

	s.mu.Lock()
	s.bots = bots
	s.loaded = true
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	s.log.Info("Starting the bots...", zap.Int("bots", len(bots)))
	for _, b := range bots {
		s.loader.StartBot(b)
	}

	for _, l := range listeners {
		l(s)
	}
	return nil
}

func (s *Spicord) statusChanged(b *bot.Bot, from, to bot.Status) {
	s.Debug("Bot %s changed status from %s to %s", b.Name(), from, to)
}

// OnDisable shuts every bot down, clears the bots, the addons and the
// services and leaves the controller unloaded.
func (s *Spicord) OnDisable() error {
	s.log.Info("Disabling Spicord...")

	s.mu.Lock()
	bots := s.bots
	s.bots = nil
	s.loaded = false
	s.mu.Unlock()

	for _, b := range bots {
		s.loader.ShutdownBot(b, true)
	}
	s.addons.Clear()

	var result *multierror.Error
	if linking, ok := s.services.Linking(); ok {
		if closer, ok := linking.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, errors.Wrap(err, "unable to close linking service"))
			}
		}
	}
	s.services.Clear()
	return result.ErrorOrNil()
}

// RestartBots shuts every bot down and starts it again.
func (s *Spicord) RestartBots() {
	for _, b := range s.Bots() {
		s.loader.ShutdownBot(b, false)
		s.loader.StartBot(b)
	}
}

// AddStartupListener registers l to run once at the end of the next OnLoad.
// When Spicord is already loaded l runs right away instead.
func (s *Spicord) AddStartupListener(l StartupListener) {
	s.mu.Lock()
	loaded := s.loaded
	if !loaded {
		s.listeners = append(s.listeners, l)
	}
	s.mu.Unlock()

	if loaded {
		l(s)
	}
}

// IsLoaded reports whether OnLoad completed and OnDisable was not called.
func (s *Spicord) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Bot returns the bot called name, nil when there is none.
func (s *Spicord) Bot(name string) *bot.Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bots {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// Bots returns the configured bots.
func (s *Spicord) Bots() []*bot.Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*bot.Bot(nil), s.bots...)
}

func (s *Spicord) Addons() *addon.Manager         { return s.addons }
func (s *Spicord) Services() *services.Manager    { return s.services }
func (s *Spicord) Scheduler() scheduler.Scheduler { return s.sched }
func (s *Spicord) Server() server.Server          { return s.srv }

// Debug logs a message when debug mode is enabled.
func (s *Spicord) Debug(format string, args ...interface{}) {
	if s.cfg.Debug {
		s.log.Info("[DEBUG] " + fmt.Sprintf(format, args...))
	}
}
