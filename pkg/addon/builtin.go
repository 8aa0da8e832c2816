package addon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lunemec/spicord/pkg/bot"
	"github.com/lunemec/spicord/pkg/server"
)

// Ids of the built-in addons.
const (
	InfoID    = "spicord::info"
	PlayersID = "spicord::players"
	PluginsID = "spicord::plugins"
)

const builtinAuthor = "Spicord"

// Builtin returns the addons shipped with Spicord.
func Builtin(srv server.Server, version string) []bot.Addon {
	return []bot.Addon{
		NewInfo(srv, version),
		NewPlayers(srv),
		NewPlugins(srv),
	}
}

// Info answers the "info" command with the server and Spicord versions.
type Info struct {
	bot.BaseAddon
	srv     server.Server
	started time.Time
	now     func() time.Time
}

// NewInfo returns the info addon.
func NewInfo(srv server.Server, version string) *Info {
	return &Info{
		BaseAddon: bot.BaseAddon{Meta: bot.AddonInfo{
			ID:       InfoID,
			Name:     "Info",
			Author:   builtinAuthor,
			Version:  version,
			Commands: []string{"info"},
		}},
		srv:     srv,
		started: time.Now(),
		now:     time.Now,
	}
}

func (a *Info) OnCommand(cmd *bot.Command, args []string) {
	_ = cmd.Reply(a.message())
}

func (a *Info) message() string {
	lines := []string{
		"**Server information**",
		fmt.Sprintf("Server: %s %s", a.srv.Type(), a.srv.Version()),
		fmt.Sprintf("Players: %d/%d", a.srv.OnlineCount(), a.srv.PlayerLimit()),
		fmt.Sprintf("Plugins: %d", len(a.srv.Plugins())),
		fmt.Sprintf("Up since: %s", humanize.RelTime(a.started, a.now(), "ago", "from now")),
		fmt.Sprintf("Spicord: %s", a.Meta.Version),
	}
	return strings.Join(lines, "\n")
}

// Players answers the "players" command with the online players.
type Players struct {
	bot.BaseAddon
	srv server.Server
}

// NewPlayers returns the players addon.
func NewPlayers(srv server.Server) *Players {
	return &Players{
		BaseAddon: bot.BaseAddon{Meta: bot.AddonInfo{
			ID:       PlayersID,
			Name:     "Players",
			Author:   builtinAuthor,
			Commands: []string{"players"},
		}},
		srv: srv,
	}
}

func (a *Players) OnCommand(cmd *bot.Command, args []string) {
	_ = cmd.Reply(a.message())
}

func (a *Players) message() string {
	groups := a.srv.ServersAndPlayers()
	count := a.srv.OnlineCount()
	if count == 0 {
		return "There are no players online."
	}

	servers := make([]string, 0, len(groups))
	for name := range groups {
		servers = append(servers, name)
	}
	sort.Strings(servers)

	lines := []string{fmt.Sprintf("**Online players (%d/%d)**", count, a.srv.PlayerLimit())}
	for _, name := range servers {
		players := groups[name]
		if len(servers) > 1 {
			lines = append(lines, fmt.Sprintf("[%s] (%d): %s", name, len(players), strings.Join(players, ", ")))
			continue
		}
		lines = append(lines, strings.Join(players, ", "))
	}
	return strings.Join(lines, "\n")
}

// Plugins answers the "plugins" command with the installed plugins.
type Plugins struct {
	bot.BaseAddon
	srv server.Server
}

// NewPlugins returns the plugins addon.
func NewPlugins(srv server.Server) *Plugins {
	return &Plugins{
		BaseAddon: bot.BaseAddon{Meta: bot.AddonInfo{
			ID:       PluginsID,
			Name:     "Plugins",
			Author:   builtinAuthor,
			Commands: []string{"plugins"},
		}},
		srv: srv,
	}
}

func (a *Plugins) OnCommand(cmd *bot.Command, args []string) {
	_ = cmd.Reply(a.message())
}

func (a *Plugins) message() string {
	plugins := append([]string(nil), a.srv.Plugins()...)
	if len(plugins) == 0 {
		return "There are no plugins installed."
	}
	sort.Strings(plugins)
	return fmt.Sprintf("**Plugins (%d)**\n%s", len(plugins), strings.Join(plugins, ", "))
}
