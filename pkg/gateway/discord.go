package gateway

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DiscordConnector creates discordgo backed clients.
type DiscordConnector struct{}

// Connect implements Connector.
func (DiscordConnector) Connect(opts Options) (Client, error) {
	token := opts.Token
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create discord session")
	}
	session.Identify.Intents = opts.Intents
	session.ShouldReconnectOnError = opts.AutoReconnect
	// Events are queued by the client, keep discordgo from reordering them.
	session.SyncEvents = true

	c := &discordClient{
		session:       session,
		autoReconnect: opts.AutoReconnect,
		handlers:      make(map[int]Handler),
		status:        StatusInitializing,
	}
	c.queue = newEventQueue(c.dispatch)
	session.AddHandler(c.onEvent)
	return c, nil
}

type discordClient struct {
	session       *discordgo.Session
	autoReconnect bool
	queue         *eventQueue

	mu       sync.Mutex
	handlers map[int]Handler
	lastID   int
	status   string
	closing  bool
}

func (c *discordClient) AddHandler(h Handler) func() {
	c.mu.Lock()
	c.lastID++
	id := c.lastID
	c.handlers[id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

func (c *discordClient) RemoveHandlers() {
	c.mu.Lock()
	c.handlers = make(map[int]Handler)
	c.mu.Unlock()
}

func (c *discordClient) Open() error {
	c.setStatus(StatusConnecting)
	err := c.session.Open()
	if err != nil {
		c.setStatus(StatusShutdown)
		if CloseCode(err) == CloseAuthenticationFailed {
			return errors.Wrap(err, "invalid token")
		}
		return errors.Wrap(err, "unable to connect to discord")
	}
	return nil
}

func (c *discordClient) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.status = StatusShutdown
	c.mu.Unlock()

	c.session.ShouldReconnectOnError = false
	err := c.session.Close()
	c.queue.stop()
	return errors.Wrap(err, "unable to close discord session")
}

func (c *discordClient) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *discordClient) setStatus(status string) {
	c.mu.Lock()
	if !c.closing {
		c.status = status
	}
	c.mu.Unlock()
}

func (c *discordClient) Self() *discordgo.User {
	if c.session.State == nil {
		return nil
	}
	return c.session.State.User
}

func (c *discordClient) Guilds() []*discordgo.Guild {
	if c.session.State == nil {
		return nil
	}
	c.session.State.RLock()
	defer c.session.State.RUnlock()
	guilds := make([]*discordgo.Guild, len(c.session.State.Guilds))
	copy(guilds, c.session.State.Guilds)
	return guilds
}

func (c *discordClient) Application() (*discordgo.Application, error) {
	app, err := c.session.Application("@me")
	if err != nil {
		return nil, errors.Wrap(err, "unable to fetch application info")
	}
	return app, nil
}

func (c *discordClient) appID() (string, error) {
	self := c.Self()
	if self == nil {
		return "", errors.New("session is not ready")
	}
	return self.ID, nil
}

func (c *discordClient) CreateCommand(guildID string, cmd *discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error) {
	appID, err := c.appID()
	if err != nil {
		return nil, err
	}
	created, err := c.session.ApplicationCommandCreate(appID, guildID, cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create command %s", cmd.Name)
	}
	return created, nil
}

func (c *discordClient) ClearCommands(guildID string) error {
	appID, err := c.appID()
	if err != nil {
		return err
	}
	_, err = c.session.ApplicationCommandBulkOverwrite(appID, guildID, []*discordgo.ApplicationCommand{})
	return errors.Wrapf(err, "unable to clear commands of guild %q", guildID)
}

func (c *discordClient) SendMessage(channelID, content string) (*discordgo.Message, error) {
	msg, err := c.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to send message to channel %s", channelID)
	}
	return msg, nil
}

func (c *discordClient) Respond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return errors.Wrap(c.session.InteractionRespond(interaction, resp), "unable to respond to interaction")
}

func (c *discordClient) UpdatePresence(data discordgo.UpdateStatusData) error {
	return errors.Wrap(c.session.UpdateStatusComplex(data), "unable to update presence")
}

// onEvent runs on discordgo's goroutine, possibly with the session locked.
func (c *discordClient) onEvent(_ *discordgo.Session, event interface{}) {
	switch event.(type) {
	case *discordgo.Event:
		// Raw payloads are delivered again as typed events.
		return
	case *discordgo.Connect, *discordgo.Ready, *discordgo.Resumed:
		c.setStatus(StatusConnected)
	case *discordgo.Disconnect:
		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if !closing && c.autoReconnect {
			c.setStatus(StatusReconnecting)
		}
		c.queue.push(event)
		if !closing && !c.autoReconnect {
			c.setStatus(StatusShutdown)
			c.queue.push(&Shutdown{})
		}
		return
	}
	c.queue.push(event)
}

func (c *discordClient) dispatch(event interface{}) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for id := 1; id <= c.lastID; id++ {
		if h, ok := c.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// eventQueue delivers events one at a time, in push order, on its own
// goroutine. It never blocks the pusher.
type eventQueue struct {
	deliver func(interface{})

	mu      sync.Mutex
	events  []interface{}
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newEventQueue(deliver func(interface{})) *eventQueue {
	q := &eventQueue{
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(event interface{}) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, event)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// stop drops undelivered events. It does not wait for the event being
// delivered, so it is safe to call from a handler.
func (q *eventQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.events = nil
	close(q.done)
}

func (q *eventQueue) pop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped || len(q.events) == 0 {
		return nil, false
	}
	event := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return event, true
}

func (q *eventQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		for event, ok := q.pop(); ok; event, ok = q.pop() {
			q.deliver(event)
		}
	}
}

// RouteLogs sends discordgo's own log output to log. It affects every
// session in the process.
func RouteLogs(log *zap.Logger) {
	sugar := log.Named("discordgo").Sugar()
	discordgo.Logger = func(level, _ int, format string, a ...interface{}) {
		switch level {
		case discordgo.LogError:
			sugar.Errorf(format, a...)
		case discordgo.LogWarning:
			sugar.Warnf(format, a...)
		case discordgo.LogInformational:
			sugar.Debugf(format, a...)
		}
	}
}
