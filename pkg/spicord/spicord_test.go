package spicord

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lunemec/spicord/pkg/addon"
	"github.com/lunemec/spicord/pkg/bot"
	"github.com/lunemec/spicord/pkg/config"
	"github.com/lunemec/spicord/pkg/gateway"
	"github.com/lunemec/spicord/pkg/host/pool"
	"github.com/lunemec/spicord/pkg/scheduler"
	"github.com/lunemec/spicord/pkg/server"
	"github.com/lunemec/spicord/pkg/services"
)

// readyClient becomes ready as soon as it is opened, unless its token is
// rejected.
type readyClient struct {
	token string

	mu       sync.Mutex
	handlers []gateway.Handler
}

func (c *readyClient) AddHandler(h gateway.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	return func() {}
}

func (c *readyClient) RemoveHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = nil
}

func (c *readyClient) Open() error {
	if c.token == "bad" {
		return &websocket.CloseError{Code: gateway.CloseAuthenticationFailed, Text: "Authentication failed."}
	}
	c.mu.Lock()
	handlers := append([]gateway.Handler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(&discordgo.Ready{User: c.Self()})
	}
	return nil
}

func (c *readyClient) Close() error                                    { return nil }
func (c *readyClient) Status() string                                  { return gateway.StatusConnected }
func (c *readyClient) Self() *discordgo.User                           { return &discordgo.User{ID: "self", Username: "spicord"} }
func (c *readyClient) Guilds() []*discordgo.Guild                      { return nil }
func (c *readyClient) ClearCommands(string) error                      { return nil }
func (c *readyClient) UpdatePresence(discordgo.UpdateStatusData) error { return nil }

func (c *readyClient) Application() (*discordgo.Application, error) {
	return &discordgo.Application{}, nil
}

func (c *readyClient) CreateCommand(guildID string, cmd *discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error) {
	return cmd, nil
}

func (c *readyClient) SendMessage(channelID, content string) (*discordgo.Message, error) {
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (c *readyClient) Respond(*discordgo.Interaction, *discordgo.InteractionResponse) error {
	return nil
}

type readyConnector struct{}

func (readyConnector) Connect(opts gateway.Options) (gateway.Client, error) {
	return &readyClient{token: opts.Token}, nil
}

func newSpicord(t *testing.T, cfg *config.Config, log *zap.Logger) *Spicord {
	t.Helper()
	host := pool.New(4)
	t.Cleanup(host.Close)
	if cfg.Scheduler.Host == "" {
		cfg.Scheduler = config.Scheduler{Host: config.HostPool, Tick: 50 * time.Millisecond}
	}
	return New(Options{
		Log:       log,
		Config:    cfg,
		Scheduler: scheduler.NewPoolAdapter(host),
		Connector: readyConnector{},
		Server:    server.NewStandalone(zap.NewNop(), "1.20.1", 20),
	})
}

func waitStatus(t *testing.T, b *bot.Bot, want bot.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.Status() == want
	}, 5*time.Second, 5*time.Millisecond, "bot %s never reached %s", b.Name(), want)
}

func TestLoadAndDisable(t *testing.T) {
	cfg := &config.Config{
		Bots: []config.Bot{
			{Name: "b1", Token: "good", Enabled: true, Addons: []string{addon.InfoID}, CommandSupport: true, CommandPrefix: "!"},
			{Name: "b2", Token: "bad", Enabled: true},
			{Name: "b3", Enabled: false},
			{Name: "", Token: "x", Enabled: true},
		},
	}
	s := newSpicord(t, cfg, zap.NewNop())

	var started int
	s.AddStartupListener(func(*Spicord) {
		started++
	})

	require.NoError(t, s.OnLoad())
	assert.True(t, s.IsLoaded())
	assert.Equal(t, 1, started)
	require.Len(t, s.Bots(), 3)
	assert.Len(t, s.Addons().Addons(), 3)

	b1 := s.Bot("b1")
	require.NotNil(t, b1)
	waitStatus(t, b1, bot.Ready)
	assert.True(t, b1.IsAddonLoaded(addon.InfoID))

	// A rejected token only takes its own bot down.
	b2 := s.Bot("b2")
	require.NotNil(t, b2)
	waitStatus(t, b2, bot.Offline)
	assert.Equal(t, bot.Ready, b1.Status())

	assert.Equal(t, bot.Offline, s.Bot("b3").Status())
	assert.Nil(t, s.Bot("missing"))

	// Listeners added after load run right away.
	s.AddStartupListener(func(*Spicord) {
		started++
	})
	assert.Equal(t, 2, started)

	require.NoError(t, s.OnDisable())
	assert.False(t, s.IsLoaded())
	assert.Empty(t, s.Bots())
	assert.Empty(t, s.Addons().Addons())
	assert.Equal(t, bot.Offline, b1.Status())
	assert.Empty(t, b1.LoadedAddons())
}

func TestLoadHonoursDelay(t *testing.T) {
	cfg := &config.Config{LoadDelay: 30 * time.Millisecond}
	s := newSpicord(t, cfg, zap.NewNop())

	start := time.Now()
	task := s.Load()
	assert.False(t, s.IsLoaded())
	_, err := task.Await(5 * time.Second)
	require.NoError(t, err)
	assert.True(t, s.IsLoaded())
	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(30*time.Millisecond))
}

func TestOnLoadTwiceIsNoop(t *testing.T) {
	s := newSpicord(t, &config.Config{}, zap.NewNop())
	require.NoError(t, s.OnLoad())
	require.NoError(t, s.OnLoad())
	assert.Len(t, s.Addons().Addons(), 3)
}

func TestBuiltinIDConflictKeepsLoading(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := &config.Config{
		Bots: []config.Bot{{Name: "b1", Token: "good", Enabled: true, Addons: []string{addon.InfoID}}},
	}
	s := newSpicord(t, cfg, zap.New(core))
	custom := &bot.BaseAddon{Meta: bot.AddonInfo{ID: addon.InfoID, Name: "custom info"}}
	require.NoError(t, s.Addons().Register(custom))

	require.NoError(t, s.OnLoad())
	assert.True(t, s.IsLoaded())
	assert.Len(t, s.Addons().Addons(), 3)
	registered, ok := s.Addons().Get(addon.InfoID)
	require.True(t, ok)
	assert.Same(t, custom, registered)
	assert.Equal(t, 1, logs.FilterField(zap.String("addon", addon.InfoID)).Len())

	b1 := s.Bot("b1")
	require.NotNil(t, b1)
	waitStatus(t, b1, bot.Ready)
	assert.True(t, b1.IsAddonLoaded(addon.InfoID))
}

func TestStartupListenersRunOncePerRegistration(t *testing.T) {
	s := newSpicord(t, &config.Config{}, zap.NewNop())
	var runs int
	s.AddStartupListener(func(*Spicord) {
		runs++
	})

	require.NoError(t, s.OnLoad())
	assert.Equal(t, 1, runs)

	require.NoError(t, s.OnDisable())
	require.NoError(t, s.OnLoad())
	assert.Equal(t, 1, runs)
}

func TestOnDisableClosesServices(t *testing.T) {
	s := newSpicord(t, &config.Config{}, zap.NewNop())
	linking, err := services.NewBoltLinkingService(zap.NewNop(), filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	require.True(t, s.Services().Register(services.Linking, linking))

	require.NoError(t, s.OnLoad())
	require.NoError(t, s.OnDisable())
	assert.False(t, s.Services().IsRegistered(services.Linking))
	_, err = linking.Links()
	assert.Error(t, err)
}

func TestDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := &config.Config{
		Debug: true,
		Bots:  []config.Bot{{Name: "b1", Token: "good", Enabled: true}},
	}
	s := newSpicord(t, cfg, zap.New(core))
	require.NoError(t, s.OnLoad())
	waitStatus(t, s.Bot("b1"), bot.Ready)

	assert.Equal(t, 1, logs.FilterMessage("[DEBUG] Bot b1 changed status from Offline to Starting").Len())
	assert.Equal(t, 1, logs.FilterMessage("[DEBUG] Bot b1 changed status from Starting to Ready").Len())

	cfg.Debug = false
	s.Debug("hidden")
	assert.Equal(t, 0, logs.FilterMessage("[DEBUG] hidden").Len())
}

func TestRestartBots(t *testing.T) {
	cfg := &config.Config{
		Bots: []config.Bot{{Name: "b1", Token: "good", Enabled: true, CommandSupport: true, CommandPrefix: "!"}},
	}
	s := newSpicord(t, cfg, zap.NewNop())
	require.NoError(t, s.OnLoad())
	b1 := s.Bot("b1")
	waitStatus(t, b1, bot.Ready)
	require.NoError(t, b1.OnCommand("ping", func(*bot.Command) {}))

	s.RestartBots()
	waitStatus(t, b1, bot.Ready)
	assert.Empty(t, b1.Commands())
}
