package bot

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Presence sets the activity and online status shown for the bot.
type Presence struct {
	bot *Bot

	mu       sync.Mutex
	status   discordgo.Status
	activity *discordgo.Activity
}

func (p *Presence) SetPlaying(value string) error {
	return p.setActivity(discordgo.ActivityTypeGame, value)
}

func (p *Presence) SetListening(value string) error {
	return p.setActivity(discordgo.ActivityTypeListening, value)
}

func (p *Presence) SetStreaming(value string) error {
	return p.setActivity(discordgo.ActivityTypeStreaming, value)
}

func (p *Presence) SetWatching(value string) error {
	return p.setActivity(discordgo.ActivityTypeWatching, value)
}

func (p *Presence) SetCompeting(value string) error {
	return p.setActivity(discordgo.ActivityTypeCompeting, value)
}

// SetCustom sets a custom status text.
func (p *Presence) SetCustom(value string) error {
	return p.setActivity(discordgo.ActivityTypeCustom, value)
}

func (p *Presence) SetOnline() error       { return p.setStatus(discordgo.StatusOnline) }
func (p *Presence) SetIdle() error         { return p.setStatus(discordgo.StatusIdle) }
func (p *Presence) SetDoNotDisturb() error { return p.setStatus(discordgo.StatusDoNotDisturb) }
func (p *Presence) SetInvisible() error    { return p.setStatus(discordgo.StatusInvisible) }

func (p *Presence) setActivity(t discordgo.ActivityType, value string) error {
	activity := &discordgo.Activity{Type: t, Name: value}
	if t == discordgo.ActivityTypeCustom {
		activity.Name = "Custom Status"
		activity.State = value
	}
	p.mu.Lock()
	p.activity = activity
	p.mu.Unlock()
	return p.update()
}

func (p *Presence) setStatus(status discordgo.Status) error {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	return p.update()
}

func (p *Presence) update() error {
	client := p.bot.Client()
	if client == nil {
		return ErrNotConnected
	}
	p.mu.Lock()
	data := discordgo.UpdateStatusData{Status: string(p.status)}
	if p.activity != nil {
		data.Activities = []*discordgo.Activity{p.activity}
	}
	p.mu.Unlock()
	return client.UpdatePresence(data)
}
