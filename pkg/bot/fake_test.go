package bot

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/gateway"
	"github.com/lunemec/spicord/pkg/host/pool"
	"github.com/lunemec/spicord/pkg/scheduler"
)

type fakeClient struct {
	opts    gateway.Options
	openErr error
	opened  chan struct{}

	mu        sync.Mutex
	handlers  []gateway.Handler
	closed    bool
	created   []*discordgo.ApplicationCommand
	cleared   []string
	sent      []string
	presence  []discordgo.UpdateStatusData
	responses []*discordgo.InteractionResponse
	app       *discordgo.Application
	guilds    []*discordgo.Guild
	lastCmdID int
}

func (c *fakeClient) AddHandler(h gateway.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	return func() {}
}

func (c *fakeClient) RemoveHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = nil
}

func (c *fakeClient) Open() error {
	close(c.opened)
	return c.openErr
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) Status() string { return gateway.StatusConnected }

func (c *fakeClient) Self() *discordgo.User {
	return &discordgo.User{ID: "self", Username: "spicord"}
}

func (c *fakeClient) Guilds() []*discordgo.Guild { return c.guilds }

func (c *fakeClient) Application() (*discordgo.Application, error) { return c.app, nil }

func (c *fakeClient) CreateCommand(guildID string, cmd *discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCmdID++
	created := *cmd
	created.ID = strconv.Itoa(c.lastCmdID)
	created.GuildID = guildID
	c.created = append(c.created, &created)
	return &created, nil
}

func (c *fakeClient) ClearCommands(guildID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, guildID)
	return nil
}

func (c *fakeClient) SendMessage(channelID, content string) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (c *fakeClient) Respond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, resp)
	return nil
}

func (c *fakeClient) UpdatePresence(data discordgo.UpdateStatusData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, data)
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// emit delivers event to the subscribed handlers on the calling goroutine.
func (c *fakeClient) emit(event interface{}) {
	c.mu.Lock()
	handlers := append([]gateway.Handler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (c *fakeClient) ready() {
	c.emit(&discordgo.Ready{User: c.Self()})
}

func (c *fakeClient) message(authorID, content string) {
	c.emit(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: authorID},
	}})
}

type fakeConnector struct {
	openErr error
	clients chan *fakeClient

	mu      sync.Mutex
	hold    chan struct{}
	holding chan struct{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{clients: make(chan *fakeClient, 10)}
}

func (c *fakeConnector) Connect(opts gateway.Options) (gateway.Client, error) {
	c.mu.Lock()
	hold, holding := c.hold, c.holding
	c.hold, c.holding = nil, nil
	c.mu.Unlock()
	if hold != nil {
		close(holding)
		<-hold
	}

	client := &fakeClient{
		opts:    opts,
		openErr: c.openErr,
		opened:  make(chan struct{}),
		app:     &discordgo.Application{Owner: &discordgo.User{ID: "owner"}},
	}
	c.clients <- client
	return client, nil
}

// holdNext blocks the next Connect until release is called. waiting is closed
// once that Connect is blocked.
func (c *fakeConnector) holdNext() (waiting <-chan struct{}, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hold := make(chan struct{})
	c.hold = hold
	c.holding = make(chan struct{})
	return c.holding, func() { close(hold) }
}

// created waits for the next client without waiting for it to be opened.
func (c *fakeConnector) created(t *testing.T) *fakeClient {
	t.Helper()
	select {
	case client := <-c.clients:
		return client
	case <-time.After(time.Second):
		t.Fatal("bot never connected")
	}
	return nil
}

// next waits for the client of the next start and for it to be opened.
func (c *fakeConnector) next(t *testing.T) *fakeClient {
	t.Helper()
	select {
	case client := <-c.clients:
		select {
		case <-client.opened:
		case <-time.After(time.Second):
			t.Fatal("client was never opened")
		}
		return client
	case <-time.After(time.Second):
		t.Fatal("bot never connected")
	}
	return nil
}

type fakeResolver []Addon

func (r fakeResolver) Resolve(*Bot) []Addon { return r }

type fakeAddon struct {
	BaseAddon

	mu       sync.Mutex
	calls    map[string]int
	commands []string
	args     [][]string
}

func newFakeAddon(id string, commands ...string) *fakeAddon {
	return &fakeAddon{
		BaseAddon: BaseAddon{Meta: AddonInfo{ID: id, Name: id, Commands: commands}},
		calls:     make(map[string]int),
	}
}

func (a *fakeAddon) hit(hook string) {
	a.mu.Lock()
	a.calls[hook]++
	a.mu.Unlock()
}

func (a *fakeAddon) count(hook string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[hook]
}

func (a *fakeAddon) OnLoad(*Bot)     { a.hit("load") }
func (a *fakeAddon) OnUnload(*Bot)   { a.hit("unload") }
func (a *fakeAddon) OnReady(*Bot)    { a.hit("ready") }
func (a *fakeAddon) OnShutdown(*Bot) { a.hit("shutdown") }

func (a *fakeAddon) OnMessageReceived(*Bot, *discordgo.MessageCreate) { a.hit("message") }

func (a *fakeAddon) OnCommand(cmd *Command, args []string) {
	a.mu.Lock()
	a.commands = append(a.commands, cmd.Name())
	a.args = append(a.args, args)
	a.mu.Unlock()
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(_ *Bot, from, to Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		r.statuses = append(r.statuses, from)
	}
	r.statuses = append(r.statuses, to)
}

func (r *statusRecorder) snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

// lateRejectScheduler reports itself running while rejecting all work, like a
// scheduler shut down right after the check.
type lateRejectScheduler struct {
	scheduler.Scheduler
}

func (lateRejectScheduler) IsShutdown() bool { return false }

type harness struct {
	bot       *Bot
	connector *fakeConnector
	statuses  *statusRecorder
	sched     scheduler.Scheduler
}

func newHarness(t *testing.T, cfg Config, addons ...Addon) *harness {
	host := pool.New(4)
	t.Cleanup(host.Close)
	sched := scheduler.NewPoolAdapter(host)

	h := &harness{
		connector: newFakeConnector(),
		statuses:  &statusRecorder{},
		sched:     sched,
	}
	h.bot = New(cfg, Options{
		Log:            zap.NewNop().Sugar(),
		Scheduler:      sched,
		Connector:      h.connector,
		Addons:         fakeResolver(addons),
		Debug:          true,
		OnStatusChange: h.statuses.record,
	})
	return h
}

// start starts the bot, waits for the session to open and delivers Ready.
func (h *harness) start(t *testing.T) *fakeClient {
	t.Helper()
	task, err := h.bot.Start()
	require.NoError(t, err)
	client := h.connector.next(t)
	_, err = task.Await(time.Second)
	require.NoError(t, err)
	client.ready()
	require.Equal(t, Ready, h.bot.Status())
	return client
}

func defaultConfig() Config {
	return Config{
		Name:           "b1",
		Token:          "token",
		Enabled:        true,
		CommandSupport: true,
		CommandPrefix:  "!",
		AutoReconnect:  true,
	}
}
