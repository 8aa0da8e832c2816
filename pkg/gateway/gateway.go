// Package gateway is the boundary between a bot and the Discord gateway.
//
// The bot only talks to the Client and Connector interfaces. The discordgo
// backed implementation lives in discord.go; tests use fakes.
package gateway

import (
	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Gateway close codes the bot reacts to.
const (
	CloseAuthenticationFailed = 4004
	CloseDisallowedIntents    = 4014
)

// Client statuses reported by Status.
const (
	StatusInitializing = "INITIALIZING"
	StatusConnecting   = "CONNECTING"
	StatusConnected    = "CONNECTED"
	StatusReconnecting = "RECONNECTING"
	StatusShutdown     = "SHUTDOWN"
)

// Shutdown is delivered when the connection is gone for good without Close
// having been called, e.g. a dropped connection with reconnects disabled.
type Shutdown struct{}

// Handler receives gateway events in delivery order.
type Handler func(event interface{})

// Client is a live gateway session.
type Client interface {
	// AddHandler subscribes h to every event and returns a function removing it.
	AddHandler(h Handler) (remove func())
	// RemoveHandlers detaches every subscribed handler.
	RemoveHandlers()
	// Open connects and blocks until the session is established.
	Open() error
	// Close tears the session down. No Shutdown event is delivered for it.
	Close() error
	// Status returns one of the Status* constants.
	Status() string

	Self() *discordgo.User
	Guilds() []*discordgo.Guild
	Application() (*discordgo.Application, error)

	CreateCommand(guildID string, cmd *discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error)
	ClearCommands(guildID string) error
	SendMessage(channelID, content string) (*discordgo.Message, error)
	Respond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	UpdatePresence(data discordgo.UpdateStatusData) error
}

// Options configure a new Client.
type Options struct {
	Token         string
	Intents       discordgo.Intent
	AutoReconnect bool
}

// Connector creates clients. Creating a client does not touch the network.
type Connector interface {
	Connect(opts Options) (Client, error)
}

// CloseCode returns the websocket close code carried by err, or 0.
func CloseCode(err error) int {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	return 0
}
