package addon

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lunemec/spicord/pkg/bot"
	"github.com/lunemec/spicord/pkg/server"
)

type fakeServer struct {
	players []server.Player
	plugins []string
}

func (s *fakeServer) Type() string                   { return "fake" }
func (s *fakeServer) Version() string                { return "1.20.1" }
func (s *fakeServer) OnlineCount() int               { return len(s.players) }
func (s *fakeServer) PlayerLimit() int               { return 20 }
func (s *fakeServer) OnlinePlayers() []server.Player { return s.players }
func (s *fakeServer) Plugins() []string              { return s.plugins }
func (s *fakeServer) DispatchCommand(string) bool    { return false }
func (s *fakeServer) Broadcast(string)               {}

func (s *fakeServer) ServersAndPlayers() map[string][]string {
	out := make(map[string][]string)
	for _, p := range s.players {
		out[p.Server] = append(out[p.Server], p.Name)
	}
	return out
}

func (s *fakeServer) Player(id uuid.UUID) (server.Player, bool) {
	for _, p := range s.players {
		if p.ID == id {
			return p, true
		}
	}
	return server.Player{}, false
}

func testAddon(id string) bot.Addon {
	return &bot.BaseAddon{Meta: bot.AddonInfo{ID: id, Name: id}}
}

func newBot(addons ...string) *bot.Bot {
	return bot.New(bot.Config{
		Name:    "b1",
		Enabled: true,
		Addons:  addons,
	}, bot.Options{
		Log: zap.NewNop().Sugar(),
	})
}

func TestRegister(t *testing.T) {
	m := NewManager(zap.NewNop())

	require.NoError(t, m.Register(testAddon("a")))
	require.NoError(t, m.Register(testAddon("b")))

	err := m.Register(testAddon("a"))
	assert.True(t, errors.Is(err, ErrNameConflict))

	err = m.Register(nil)
	assert.True(t, errors.Is(err, ErrInvalidAddon))
	err = m.Register(testAddon(" "))
	assert.True(t, errors.Is(err, ErrInvalidAddon))

	assert.True(t, m.IsRegistered("a"))
	assert.False(t, m.IsRegistered("c"))

	var ids []string
	for _, a := range m.Addons() {
		ids = append(ids, a.Info().ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestUnregisterAndClear(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(testAddon("a")))
	require.NoError(t, m.Register(testAddon("b")))

	assert.True(t, m.Unregister("a"))
	assert.False(t, m.Unregister("a"))
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Len(t, m.Addons(), 1)

	// The id can be taken again once free.
	require.NoError(t, m.Register(testAddon("a")))

	m.Clear()
	assert.Empty(t, m.Addons())
	assert.False(t, m.IsRegistered("b"))
}

func TestResolve(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := NewManager(zap.New(core))
	for _, a := range Builtin(&fakeServer{}, "test") {
		require.NoError(t, m.Register(a))
	}

	resolved := m.Resolve(newBot(PluginsID, "spicord::player", InfoID, "zzz"))

	var ids []string
	for _, a := range resolved {
		ids = append(ids, a.Info().ID)
	}
	assert.Equal(t, []string{PluginsID, InfoID}, ids)

	entries := logs.FilterMessage("Unknown addon").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "spicord::player", entries[0].ContextMap()["addon"])
	assert.Equal(t, PlayersID, entries[0].ContextMap()["did_you_mean"])
	assert.Equal(t, "zzz", entries[1].ContextMap()["addon"])
	assert.NotContains(t, entries[1].ContextMap(), "did_you_mean")
}

func TestResolveIsBotResolver(t *testing.T) {
	var _ bot.AddonResolver = NewManager(zap.NewNop())
}
