package bot

import "github.com/bwmarrin/discordgo"

// AddonInfo describes an addon.
type AddonInfo struct {
	ID      string
	Name    string
	Author  string
	Version string
	// Commands are the prefix command names the addon claims.
	Commands []string
	// Intents are gateway intents the addon needs on top of DefaultIntents.
	Intents discordgo.Intent
}

// Addon reacts to the lifecycle and messages of the bots it is loaded into.
// Addons are identified by Info().ID.
type Addon interface {
	Info() AddonInfo
	OnLoad(b *Bot)
	OnUnload(b *Bot)
	OnReady(b *Bot)
	OnShutdown(b *Bot)
	OnMessageReceived(b *Bot, m *discordgo.MessageCreate)
	OnCommand(cmd *Command, args []string)
}

// BaseAddon implements every Addon hook as a no-op. Embed it and override
// the hooks you need.
type BaseAddon struct {
	Meta AddonInfo
}

func (a *BaseAddon) Info() AddonInfo                                  { return a.Meta }
func (a *BaseAddon) OnLoad(*Bot)                                      {}
func (a *BaseAddon) OnUnload(*Bot)                                    {}
func (a *BaseAddon) OnReady(*Bot)                                     {}
func (a *BaseAddon) OnShutdown(*Bot)                                  {}
func (a *BaseAddon) OnMessageReceived(*Bot, *discordgo.MessageCreate) {}
func (a *BaseAddon) OnCommand(*Command, []string)                     {}

// LoadAddon loads a into the bot. Loading an addon that is already loaded
// does nothing; otherwise its load hook runs once.
func (b *Bot) LoadAddon(a Addon) {
	id := a.Info().ID

	b.mu.Lock()
	for _, loaded := range b.loaded {
		if loaded.Info().ID == id {
			b.mu.Unlock()
			return
		}
	}
	b.loaded = append(b.loaded, a)
	b.mu.Unlock()

	b.debugw("Loaded addon", "addon", id)
	a.OnLoad(b)
}

// UnloadAddon unloads a if it is loaded: its claimed commands are
// unregistered first, then its unload hook runs.
func (b *Bot) UnloadAddon(a Addon) {
	info := a.Info()

	b.mu.Lock()
	idx := -1
	for i, loaded := range b.loaded {
		if loaded.Info().ID == info.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return
	}
	b.loaded = append(b.loaded[:idx:idx], b.loaded[idx+1:]...)
	for _, name := range info.Commands {
		delete(b.commands, name)
	}
	b.mu.Unlock()

	b.debugw("Unloaded addon", "addon", info.ID)
	a.OnUnload(b)
}

// IsAddonLoaded reports whether an addon with id is loaded.
func (b *Bot) IsAddonLoaded(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, loaded := range b.loaded {
		if loaded.Info().ID == id {
			return true
		}
	}
	return false
}
