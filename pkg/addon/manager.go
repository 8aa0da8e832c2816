// Package addon keeps the registry of addons bots can load.
package addon

import (
	"strings"
	"sync"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/bot"
)

var (
	// ErrInvalidAddon is returned when registering a nil addon or an addon
	// without id.
	ErrInvalidAddon = errors.New("invalid addon")
	// ErrNameConflict is returned when an addon id is already registered.
	ErrNameConflict = errors.New("addon id already registered")
)

// suggestThreshold is the minimum similarity for an id to be suggested as a
// replacement of an unknown one.
const suggestThreshold = 0.5

// Manager holds the registered addons by id.
type Manager struct {
	log *zap.Logger

	mu     sync.RWMutex
	addons map[string]bot.Addon
	order  []string
}

// NewManager returns an empty Manager.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		log:    log,
		addons: make(map[string]bot.Addon),
	}
}

// Register adds a. The id of a must not be registered yet.
func (m *Manager) Register(a bot.Addon) error {
	if a == nil {
		return errors.Wrap(ErrInvalidAddon, "the addon cannot be nil")
	}
	info := a.Info()
	if strings.TrimSpace(info.ID) == "" {
		return errors.Wrapf(ErrInvalidAddon, "the addon %q has no id", info.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.addons[info.ID]; ok {
		m.log.Warn("Cannot register addon, the id is already taken",
			zap.String("addon", info.ID),
			zap.String("name", info.Name),
		)
		return errors.Wrap(ErrNameConflict, info.ID)
	}
	m.addons[info.ID] = a
	m.order = append(m.order, info.ID)
	m.log.Debug("Registered addon",
		zap.String("addon", info.ID),
		zap.String("name", info.Name),
		zap.String("version", info.Version),
	)
	return nil
}

// Unregister removes the addon registered under id. It reports whether it
// was registered. Bots that already loaded it keep it until they stop.
func (m *Manager) Unregister(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.addons[id]; !ok {
		return false
	}
	delete(m.addons, id)
	for i, registered := range m.order {
		if registered == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the addon registered under id.
func (m *Manager) Get(id string) (bot.Addon, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addons[id]
	return a, ok
}

// IsRegistered reports whether an addon with id is registered.
func (m *Manager) IsRegistered(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Addons returns the registered addons in registration order.
func (m *Manager) Addons() []bot.Addon {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]bot.Addon, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.addons[id])
	}
	return out
}

// Clear removes every addon.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addons = make(map[string]bot.Addon)
	m.order = nil
}

// Resolve returns the registered addons configured for b, in configuration
// order. Unknown ids are logged and skipped.
func (m *Manager) Resolve(b *bot.Bot) []bot.Addon {
	var out []bot.Addon
	for _, id := range b.AddonIDs() {
		if a, ok := m.Get(id); ok {
			out = append(out, a)
			continue
		}
		fields := []zap.Field{
			zap.String("bot", b.Name()),
			zap.String("addon", id),
		}
		if suggestion := m.closest(id); suggestion != "" {
			fields = append(fields, zap.String("did_you_mean", suggestion))
		}
		m.log.Warn("Unknown addon", fields...)
	}
	return out
}

// closest returns the registered id most similar to id, or "" when none is
// similar enough.
func (m *Manager) closest(id string) string {
	metric := metrics.NewJaccard()
	metric.CaseSensitive = false

	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best      string
		bestScore float64
	)
	for _, candidate := range m.order {
		score := strutil.Similarity(id, candidate, metric)
		if score >= suggestThreshold && score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}
