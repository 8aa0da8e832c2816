package bot

import "github.com/pkg/errors"

// Loader starts and stops bots.
type Loader struct {
	log logger
}

// NewLoader returns a Loader logging to log.
func NewLoader(log logger) *Loader {
	return &Loader{log: log}
}

// StartBot starts b in the background. It reports whether the connection
// was scheduled.
func (l *Loader) StartBot(b *Bot) bool {
	if b == nil {
		panic("bot: StartBot called with a nil bot")
	}
	_, err := b.Start()
	switch {
	case err == nil:
		l.log.Infow("Starting bot", "bot", b.Name())
		return true
	case errors.Is(err, ErrNotOffline):
		l.log.Warnw("Bot is already running", "bot", b.Name(), "status", b.Status())
	case !errors.Is(err, ErrDisabled):
		l.log.Errorw("Unable to start bot", "bot", b.Name(), "error", err)
	}
	return false
}

// ShutdownBot shuts b down. force is accepted for symmetry with StartBot;
// the shutdown sequence is the same either way.
func (l *Loader) ShutdownBot(b *Bot, force bool) {
	if b == nil {
		panic("bot: ShutdownBot called with a nil bot")
	}
	_ = force
	b.Shutdown()
}
