// Package notifier keeps the presence of the ready bots in sync with the
// player count of the server.
package notifier

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/bot"
	"github.com/lunemec/spicord/pkg/scheduler"
	"github.com/lunemec/spicord/pkg/server"
)

type botSource interface {
	Bots() []*bot.Bot
}

// Notifier periodically sets "Playing with N/M players" on every ready bot.
type Notifier struct {
	log      *zap.Logger
	sched    scheduler.Scheduler
	bots     botSource
	srv      server.Server
	interval time.Duration

	last map[string]string
}

// New returns a Notifier updating presences every interval.
func New(
	log *zap.Logger,
	sched scheduler.Scheduler,
	bots botSource,
	srv server.Server,
	interval time.Duration,
) *Notifier {
	return &Notifier{
		log:      log,
		sched:    sched,
		bots:     bots,
		srv:      srv,
		interval: interval,
		last:     make(map[string]string),
	}
}

// Start schedules the updates. Cancel the returned task to stop them.
func (n *Notifier) Start() *scheduler.Task {
	return n.sched.RunAsyncLaterRepeating(func() (interface{}, error) {
		n.tick()
		// Errors are logged; returning one would stop the updates.
		return nil, nil
	}, n.interval, n.interval)
}

// tick is called every interval. Runs never overlap.
func (n *Notifier) tick() {
	activity := fmt.Sprintf("with %d/%d players", n.srv.OnlineCount(), n.srv.PlayerLimit())
	for _, b := range n.bots.Bots() {
		if !b.IsReady() {
			delete(n.last, b.Name())
			continue
		}
		if n.last[b.Name()] == activity {
			continue
		}
		if err := b.Presence().SetPlaying(activity); err != nil {
			n.log.Error("Error updating presence",
				zap.String("bot", b.Name()),
				zap.Error(err),
			)
			continue
		}
		n.last[b.Name()] = activity
	}
}
