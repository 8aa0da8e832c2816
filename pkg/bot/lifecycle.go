package bot

import (
	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/lunemec/spicord/pkg/gateway"
	"github.com/lunemec/spicord/pkg/scheduler"
)

var errStoppedWhileConnecting = errors.New("bot stopped while connecting")

// DefaultIntents are requested by every bot: all unprivileged intents plus
// message content and guild members. Addons may add more.
const DefaultIntents = discordgo.IntentsAllWithoutPrivileged |
	discordgo.IntentMessageContent |
	discordgo.IntentGuildMembers

// Intents returns the gateway intents needed by addons.
func Intents(addons []Addon) discordgo.Intent {
	intents := DefaultIntents
	for _, a := range addons {
		intents |= a.Info().Intents
	}
	return intents
}

// Start moves an enabled OFFLINE bot to STARTING and connects it on the
// scheduler. It returns right away; the task completes once the gateway
// session is open or the start failed.
//
// Every start begins a new lifecycle. Work left over from an earlier
// lifecycle never touches the bot again.
func (b *Bot) Start() (*scheduler.Task, error) {
	if !b.enabled {
		return nil, ErrDisabled
	}
	if b.sched.IsShutdown() {
		return nil, errors.Wrap(scheduler.ErrShutdown, "unable to start bot")
	}

	b.mu.Lock()
	if b.status != Offline {
		b.mu.Unlock()
		return nil, ErrNotOffline
	}
	b.status = Starting
	b.gen++
	gen := b.gen
	b.mu.Unlock()
	b.notify(Offline, Starting)

	task := b.sched.RunAsync(func() (interface{}, error) {
		return nil, b.connect(gen)
	})
	if task.IsDone() {
		if _, err := task.Await(0); errors.Is(err, scheduler.ErrShutdown) {
			b.abortStart(gen)
			return nil, errors.Wrap(err, "unable to start bot")
		}
		return task, nil
	}
	// The scheduler may still drop the connect task before it runs.
	go func() {
		if _, err := task.Await(0); errors.Is(err, scheduler.ErrShutdown) {
			b.abortStart(gen)
		}
	}()
	return task, nil
}

// abortStart returns a bot whose connect task never ran to OFFLINE.
func (b *Bot) abortStart(gen uint64) {
	b.mu.Lock()
	if b.gen != gen || b.status != Starting || b.client != nil {
		b.mu.Unlock()
		return
	}
	b.status = Offline
	b.mu.Unlock()
	b.notify(Starting, Offline)
	b.log.Errorw("Unable to start bot",
		"bot", b.name,
		"error", scheduler.ErrShutdown,
	)
}

// current reports whether gen is the running lifecycle.
func (b *Bot) current(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen == gen
}

func (b *Bot) connect(gen uint64) error {
	var addons []Addon
	if b.resolver != nil {
		addons = b.resolver.Resolve(b)
	}

	client, err := b.connector.Connect(gateway.Options{
		Token:         b.token,
		Intents:       Intents(addons),
		AutoReconnect: b.autoReconnect,
	})
	if err != nil {
		return b.fail(gen, nil, err)
	}

	b.mu.Lock()
	if b.gen != gen || b.status != Starting {
		b.mu.Unlock()
		_ = client.Close()
		return errStoppedWhileConnecting
	}
	b.client = client
	b.group = scheduler.NewGroup(b.sched)
	b.mu.Unlock()

	client.AddHandler(func(event interface{}) {
		if b.current(gen) {
			b.handleEvent(event)
		}
	})
	for _, a := range addons {
		b.LoadAddon(a)
	}

	if err := client.Open(); err != nil {
		return b.fail(gen, client, err)
	}
	b.debugw("Gateway session opened")
	return nil
}

// fail returns a bot that could not connect to OFFLINE. client is the client
// that failed, nil when none was created. A lifecycle that already ended is
// left alone; its client was closed by Shutdown.
func (b *Bot) fail(gen uint64, client gateway.Client, err error) error {
	switch gateway.CloseCode(err) {
	case gateway.CloseAuthenticationFailed:
		err = errors.Wrap(ErrAuthentication, err.Error())
	case gateway.CloseDisallowedIntents:
		b.warnMissingIntents()
	}
	b.log.Errorw("Unable to start bot",
		"bot", b.name,
		"error", err,
	)

	b.mu.Lock()
	if b.gen != gen || b.status != Starting || b.client != client {
		b.mu.Unlock()
		return err
	}
	group := b.group
	addons := b.loaded
	b.client = nil
	b.group = nil
	b.loaded = nil
	b.commands = make(map[string]CommandHandler)
	b.mu.Unlock()

	if client != nil {
		client.RemoveHandlers()
		_ = client.Close()
	}
	if group != nil {
		group.Shutdown()
	}
	for _, a := range addons {
		a.OnUnload(b)
	}
	b.transition(Offline, Starting)
	return err
}

func (b *Bot) warnMissingIntents() {
	for _, line := range []string{
		"=============================================",
		"      OPEN THE DISCORD DEVELOPER PORTAL      ",
		"       AND ENABLE THE GATEWAY INTENTS        ",
		"                FOR YOUR BOT                 ",
		" https://discord.com/developers/applications ",
		"=============================================",
	} {
		b.log.Errorw(line, "bot", b.name)
	}
}

// Shutdown stops a running bot: addon shutdown hooks, listeners detached,
// worker pool rejecting silently, session closed and local state cleared.
// It is a no-op for an OFFLINE or STOPPING bot.
func (b *Bot) Shutdown() {
	b.mu.Lock()
	if b.status == Offline || b.status == Stopping {
		b.mu.Unlock()
		return
	}
	from := b.status
	b.status = Stopping
	b.gen++
	client := b.client
	group := b.group
	addons := append([]Addon(nil), b.loaded...)
	b.mu.Unlock()
	b.notify(from, Stopping)

	for _, a := range addons {
		a.OnShutdown(b)
	}
	if client != nil {
		client.RemoveHandlers()
	}
	if group != nil {
		group.Shutdown()
	}
	if client != nil {
		if err := client.Close(); err != nil {
			b.log.Warnw("Error closing gateway session",
				"bot", b.name,
				"error", err,
			)
		}
	}

	b.mu.Lock()
	b.client = nil
	b.group = nil
	b.commands = make(map[string]CommandHandler)
	b.loaded = nil
	b.slash = make(map[string]map[string]*slashHandler)
	b.readied = false
	b.mu.Unlock()

	b.transition(Offline, Stopping)
	b.log.Infow("Bot stopped", "bot", b.name)
}

func (b *Bot) handleEvent(event interface{}) {
	switch e := event.(type) {
	case *discordgo.Connect:
		b.debugw("Gateway connected")
	case *discordgo.Ready:
		b.onReady(e)
	case *discordgo.Resumed:
		b.onResumed()
	case *discordgo.Disconnect:
		b.onDisconnect()
	case *gateway.Shutdown:
		b.onShutdown()
	case *discordgo.MessageCreate:
		b.onMessage(e)
	case *discordgo.InteractionCreate:
		b.onInteraction(e)
	}
}

func (b *Bot) onReady(e *discordgo.Ready) {
	b.mu.Lock()
	if b.status != Starting || b.client == nil {
		b.mu.Unlock()
		return
	}
	first := !b.readied
	b.readied = true
	b.status = Ready
	client := b.client
	self := e.User
	if self == nil {
		self = client.Self()
	}
	if self != nil {
		b.selfID = self.ID
	}
	addons := append([]Addon(nil), b.loaded...)
	b.mu.Unlock()
	b.notify(Starting, Ready)

	if !first {
		b.debugw("Gateway session recreated")
		return
	}

	if b.initialCleanup {
		b.cleanupCommands(client)
	}

	if self != nil {
		b.log.Infow("Logged in",
			"bot", b.name,
			"user", self.Username,
			"id", self.ID,
		)
	}
	for _, g := range client.Guilds() {
		b.log.Infow("Available guild",
			"bot", b.name,
			"guild", g.Name,
			"id", g.ID,
		)
	}

	for _, a := range addons {
		a.OnReady(b)
	}
}

func (b *Bot) cleanupCommands(client gateway.Client) {
	b.debugw("Cleaning up commands")
	if err := client.ClearCommands(""); err != nil {
		b.log.Warnw("Unable to clear global commands",
			"bot", b.name,
			"error", err,
		)
	}
	for _, g := range client.Guilds() {
		if err := client.ClearCommands(g.ID); err != nil {
			b.log.Warnw("Unable to clear guild commands",
				"bot", b.name,
				"guild", g.ID,
				"error", err,
			)
		}
	}
}

// onResumed returns a reconnecting bot to READY without running startup.
func (b *Bot) onResumed() {
	b.mu.Lock()
	readied := b.readied
	b.mu.Unlock()
	if readied && b.transition(Ready, Starting) {
		b.debugw("Gateway session resumed")
	}
}

func (b *Bot) onDisconnect() {
	if b.transition(Starting, Ready) {
		b.debugw("Gateway disconnected, waiting for reconnect")
	}
}

func (b *Bot) onShutdown() {
	status := b.Status()
	if status == Stopping || status == Offline {
		return
	}
	b.log.Warnw("Gateway session closed unexpectedly", "bot", b.name)
	b.Shutdown()
}
