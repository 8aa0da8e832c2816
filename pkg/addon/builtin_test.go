package addon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lunemec/spicord/pkg/server"
)

func TestInfoMessage(t *testing.T) {
	srv := &fakeServer{
		players: []server.Player{{Name: "Steve", Server: "lobby"}},
		plugins: []string{"Spicord", "LuckPerms"},
	}
	a := NewInfo(srv, "5.0.0")
	a.now = func() time.Time { return a.started.Add(3 * time.Hour) }

	assert.Equal(t, "**Server information**\n"+
		"Server: fake 1.20.1\n"+
		"Players: 1/20\n"+
		"Plugins: 2\n"+
		"Up since: 3 hours ago\n"+
		"Spicord: 5.0.0", a.message())
}

func TestPlayersMessage(t *testing.T) {
	srv := &fakeServer{}
	a := NewPlayers(srv)
	assert.Equal(t, "There are no players online.", a.message())

	srv.players = []server.Player{
		{Name: "Alex", Server: "lobby"},
		{Name: "Steve", Server: "lobby"},
	}
	assert.Equal(t, "**Online players (2/20)**\nAlex, Steve", a.message())

	srv.players = append(srv.players, server.Player{Name: "Herobrine", Server: "survival"})
	assert.Equal(t, "**Online players (3/20)**\n"+
		"[lobby] (2): Alex, Steve\n"+
		"[survival] (1): Herobrine", a.message())
}

func TestPluginsMessage(t *testing.T) {
	srv := &fakeServer{}
	a := NewPlugins(srv)
	assert.Equal(t, "There are no plugins installed.", a.message())

	srv.plugins = []string{"Spicord", "LuckPerms"}
	assert.Equal(t, "**Plugins (2)**\nLuckPerms, Spicord", a.message())
}

func TestBuiltinClaimsCommands(t *testing.T) {
	commands := map[string]string{}
	for _, a := range Builtin(&fakeServer{}, "test") {
		for _, c := range a.Info().Commands {
			commands[c] = a.Info().ID
		}
	}
	assert.Equal(t, map[string]string{
		"info":    InfoID,
		"players": PlayersID,
		"plugins": PluginsID,
	}, commands)
}
