package bot

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidCommand is returned for an empty command name, a name with
	// spaces or a nil handler.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrCommandSupportDisabled is returned when registering a command on a
	// bot without command support.
	ErrCommandSupportDisabled = errors.New("command support is disabled")
	// ErrCommandExists is returned when a command name is already taken.
	ErrCommandExists = errors.New("command already registered")
)

// CommandHandler handles a prefix command.
type CommandHandler func(cmd *Command)

// DiscordCommand is a prefix command with aliases.
type DiscordCommand struct {
	Name    string
	Aliases []string
	Handler CommandHandler
}

// Command is the context of one prefix command invocation.
type Command struct {
	bot     *Bot
	name    string
	args    []string
	message *discordgo.Message
}

// Name returns the invoked command name, without prefix.
func (c *Command) Name() string { return c.name }

// Args returns the space separated arguments.
func (c *Command) Args() []string { return c.args }

// Message returns the message that invoked the command.
func (c *Command) Message() *discordgo.Message { return c.message }

// Author returns the author of the invoking message.
func (c *Command) Author() *discordgo.User { return c.message.Author }

// Bot returns the bot that received the command.
func (c *Command) Bot() *Bot { return c.bot }

// Reply sends content to the channel of the invoking message. Content longer
// than a Discord message is split on line boundaries.
func (c *Command) Reply(content string) error {
	client := c.bot.Client()
	if client == nil {
		return ErrNotConnected
	}
	for _, part := range splitMessage(content, maxMessageLength) {
		if _, err := client.SendMessage(c.message.ChannelID, part); err != nil {
			return err
		}
	}
	return nil
}

func validateCommandName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Wrap(ErrInvalidCommand, "the command name cannot be empty")
	}
	if strings.ContainsAny(name, " \t\n") {
		return errors.Wrapf(ErrInvalidCommand, "the command name %q cannot contain spaces", name)
	}
	return nil
}

// OnCommand registers handler for the prefix command name.
func (b *Bot) OnCommand(name string, handler CommandHandler) error {
	name = strings.TrimSpace(name)
	if err := validateCommandName(name); err != nil {
		return err
	}
	if handler == nil {
		return errors.Wrap(ErrInvalidCommand, "the command handler cannot be nil")
	}

	if !b.commandSupport {
		b.log.Warnw("Cannot register command because command support is disabled",
			"bot", b.name,
			"command", name,
		)
		return errors.Wrap(ErrCommandSupportDisabled, name)
	}

	b.mu.Lock()
	_, exists := b.commands[name]
	if !exists {
		b.commands[name] = handler
	}
	b.mu.Unlock()

	if exists {
		b.log.Warnw("Command is already registered",
			"bot", b.name,
			"command", name,
		)
		return errors.Wrap(ErrCommandExists, name)
	}
	return nil
}

// RegisterCommand registers cmd under its name and every alias.
func (b *Bot) RegisterCommand(cmd DiscordCommand) error {
	var result *multierror.Error
	for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
		if err := b.OnCommand(name, cmd.Handler); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// UnregisterCommand removes the prefix command name.
func (b *Bot) UnregisterCommand(name string) {
	b.UnregisterCommands(name)
}

// UnregisterCommands removes every named prefix command.
func (b *Bot) UnregisterCommands(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		delete(b.commands, strings.TrimSpace(name))
	}
}

// parseCommand splits "name arg1 arg2" into the name and its arguments.
// Trailing empty arguments are dropped.
func parseCommand(text string) (string, []string) {
	i := strings.IndexByte(text, ' ')
	if i < 0 {
		return text, []string{}
	}
	args := strings.Split(text[i+1:], " ")
	for len(args) > 0 && args[len(args)-1] == "" {
		args = args[:len(args)-1]
	}
	return text[:i], args
}

func (b *Bot) onMessage(e *discordgo.MessageCreate) {
	if e.Message == nil {
		return
	}
	for _, a := range b.LoadedAddons() {
		a.OnMessageReceived(b, e)
	}
	if !b.commandSupport || !strings.HasPrefix(e.Content, b.prefix) {
		return
	}
	text := e.Content[len(b.prefix):]
	if text == "" {
		return
	}

	b.mu.Lock()
	if b.status != Ready || (e.Author != nil && e.Author.ID == b.selfID) {
		b.mu.Unlock()
		return
	}
	name, args := parseCommand(text)
	handler := b.commands[name]
	var target Addon
	if handler == nil {
		target = b.addonFor(name)
	}
	b.mu.Unlock()

	switch {
	case handler != nil:
		handler(b.newCommand(name, args, e.Message))
	case target != nil:
		target.OnCommand(b.newCommand(name, args, e.Message), args)
	}
}

// addonFor returns the first loaded addon claiming name. Called with b.mu held.
func (b *Bot) addonFor(name string) Addon {
	for _, a := range b.loaded {
		for _, claimed := range a.Info().Commands {
			if claimed == name {
				return a
			}
		}
	}
	return nil
}

func (b *Bot) newCommand(name string, args []string, message *discordgo.Message) *Command {
	return &Command{
		bot:     b,
		name:    name,
		args:    args,
		message: message,
	}
}
