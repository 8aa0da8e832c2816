package bot

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/lunemec/spicord/pkg/scheduler"
)

// SlashHandler executes a slash command.
type SlashHandler func(i *Interaction)

// AutocompleteHandler answers autocomplete requests of a slash command.
type AutocompleteHandler func(i *Interaction)

// SlashCommand builds a slash command with its options, sub-commands and
// sub-command groups. A command without sub-commands or groups is single and
// runs its own executor.
type SlashCommand struct {
	name        string
	description string
	options     []*discordgo.ApplicationCommandOption
	executor    SlashHandler
	completer   AutocompleteHandler
	subcommands []*SlashCommand
	groups      []*SlashCommandGroup
}

// NewSlashCommand starts building a slash command.
func NewSlashCommand(name, description string) *SlashCommand {
	return &SlashCommand{name: name, description: description}
}

// CommandBuilder is NewSlashCommand. The command is only available once it
// is registered with RegisterSlashCommand.
func (b *Bot) CommandBuilder(name, description string) *SlashCommand {
	return NewSlashCommand(name, description)
}

// Name returns the command name.
func (c *SlashCommand) Name() string { return c.name }

// AddOption adds an option.
func (c *SlashCommand) AddOption(opt *discordgo.ApplicationCommandOption) *SlashCommand {
	c.options = append(c.options, opt)
	return c
}

// SetExecutor sets the handler run when the command is invoked.
func (c *SlashCommand) SetExecutor(h SlashHandler) *SlashCommand {
	c.executor = h
	return c
}

// SetCompleter sets the handler answering autocomplete requests.
func (c *SlashCommand) SetCompleter(h AutocompleteHandler) *SlashCommand {
	c.completer = h
	return c
}

// AddSubcommand adds a sub-command.
func (c *SlashCommand) AddSubcommand(sub *SlashCommand) *SlashCommand {
	c.subcommands = append(c.subcommands, sub)
	return c
}

// AddSubcommandGroup adds a sub-command group.
func (c *SlashCommand) AddSubcommandGroup(g *SlashCommandGroup) *SlashCommand {
	c.groups = append(c.groups, g)
	return c
}

// IsSingle reports whether the command has no sub-commands or groups.
func (c *SlashCommand) IsSingle() bool {
	return len(c.subcommands) == 0 && len(c.groups) == 0
}

// Build returns the remote representation of the command.
func (c *SlashCommand) Build() *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Type:        discordgo.ChatApplicationCommand,
		Name:        c.name,
		Description: c.description,
		Options:     append([]*discordgo.ApplicationCommandOption(nil), c.options...),
	}
	for _, g := range c.groups {
		cmd.Options = append(cmd.Options, g.build())
	}
	for _, sub := range c.subcommands {
		cmd.Options = append(cmd.Options, sub.buildSubcommand())
	}
	return cmd
}

func (c *SlashCommand) buildSubcommand() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        c.name,
		Description: c.description,
		Options:     c.options,
	}
}

// handlers maps full command names ("cmd", "cmd sub", "cmd group sub") to
// their handlers.
func (c *SlashCommand) handlers() map[string]*slashHandler {
	out := make(map[string]*slashHandler)
	if c.IsSingle() {
		out[c.name] = &slashHandler{executor: c.executor, completer: c.completer}
		return out
	}
	for _, g := range c.groups {
		for _, sub := range g.subcommands {
			out[strings.Join([]string{c.name, g.name, sub.name}, " ")] = &slashHandler{
				executor:  sub.executor,
				completer: sub.completer,
			}
		}
	}
	for _, sub := range c.subcommands {
		out[c.name+" "+sub.name] = &slashHandler{executor: sub.executor, completer: sub.completer}
	}
	return out
}

// SlashCommandGroup is a named group of sub-commands.
type SlashCommandGroup struct {
	name        string
	description string
	subcommands []*SlashCommand
}

// NewSlashCommandGroup starts building a sub-command group.
func NewSlashCommandGroup(name, description string) *SlashCommandGroup {
	return &SlashCommandGroup{name: name, description: description}
}

// AddSubcommand adds a sub-command to the group.
func (g *SlashCommandGroup) AddSubcommand(sub *SlashCommand) *SlashCommandGroup {
	g.subcommands = append(g.subcommands, sub)
	return g
}

func (g *SlashCommandGroup) build() *discordgo.ApplicationCommandOption {
	opt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
		Name:        g.name,
		Description: g.description,
	}
	for _, sub := range g.subcommands {
		opt.Options = append(opt.Options, sub.buildSubcommand())
	}
	return opt
}

type slashHandler struct {
	executor  SlashHandler
	completer AutocompleteHandler
}

// RegisterSlashCommand registers cmd in guildID, or globally when guildID is
// empty. The task result is the *discordgo.ApplicationCommand created by
// Discord; the handlers are invocable only after that.
func (b *Bot) RegisterSlashCommand(cmd *SlashCommand, guildID string) (*scheduler.Task, error) {
	b.mu.Lock()
	client := b.client
	group := b.group
	b.mu.Unlock()
	if client == nil || group == nil {
		return nil, ErrNotConnected
	}

	handlers := cmd.handlers()
	remote := cmd.Build()
	return group.RunAsync(func() (interface{}, error) {
		created, err := client.CreateCommand(guildID, remote)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if b.client == client {
			b.slash[created.ID] = handlers
		}
		b.mu.Unlock()
		b.debugw("Registered discord command", "command", "/"+created.Name)
		return created, nil
	}), nil
}

// Interaction is the context of a slash command or autocomplete request.
type Interaction struct {
	bot   *Bot
	event *discordgo.InteractionCreate
	name  string
}

// Bot returns the bot that received the interaction.
func (i *Interaction) Bot() *Bot { return i.bot }

// Event returns the raw interaction.
func (i *Interaction) Event() *discordgo.InteractionCreate { return i.event }

// FullCommandName returns "cmd", "cmd sub" or "cmd group sub".
func (i *Interaction) FullCommandName() string { return i.name }

// Options returns the options of the invoked (sub-)command.
func (i *Interaction) Options() []*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.event.ApplicationCommandData().Options
	for len(opts) == 1 && isSubcommandOption(opts[0].Type) {
		opts = opts[0].Options
	}
	return opts
}

// Option returns the option called name, nil if it was not given.
func (i *Interaction) Option(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.Options() {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// Focused returns the option being autocompleted, nil if none.
func (i *Interaction) Focused() *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.Options() {
		if opt.Focused {
			return opt
		}
	}
	return nil
}

// Respond replies to the interaction with a message.
func (i *Interaction) Respond(content string) error {
	return i.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// Suggest answers an autocomplete request.
func (i *Interaction) Suggest(choices ...*discordgo.ApplicationCommandOptionChoice) error {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	return i.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

func (i *Interaction) respond(resp *discordgo.InteractionResponse) error {
	client := i.bot.Client()
	if client == nil {
		return ErrNotConnected
	}
	return errors.WithStack(client.Respond(i.event.Interaction, resp))
}

func isSubcommandOption(t discordgo.ApplicationCommandOptionType) bool {
	return t == discordgo.ApplicationCommandOptionSubCommand ||
		t == discordgo.ApplicationCommandOptionSubCommandGroup
}

func fullCommandName(data discordgo.ApplicationCommandInteractionData) string {
	parts := []string{data.Name}
	opts := data.Options
	for len(opts) == 1 && isSubcommandOption(opts[0].Type) {
		parts = append(parts, opts[0].Name)
		opts = opts[0].Options
	}
	return strings.Join(parts, " ")
}

func (b *Bot) onInteraction(e *discordgo.InteractionCreate) {
	if e.Interaction == nil {
		return
	}
	if e.Type != discordgo.InteractionApplicationCommand &&
		e.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return
	}
	data := e.ApplicationCommandData()
	name := fullCommandName(data)

	b.mu.Lock()
	var h *slashHandler
	if handlers, ok := b.slash[data.ID]; ok {
		h = handlers[name]
	}
	b.mu.Unlock()
	if h == nil {
		return
	}

	i := &Interaction{bot: b, event: e, name: name}
	switch {
	case e.Type == discordgo.InteractionApplicationCommand && h.executor != nil:
		h.executor(i)
	case e.Type == discordgo.InteractionApplicationCommandAutocomplete && h.completer != nil:
		h.completer(i)
	}
}
