// Package server is the view of the host game server available to addons.
package server

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrUnknownPlayer is returned when a player is not online.
var ErrUnknownPlayer = errors.New("unknown player")

// Player is an online player.
type Player struct {
	ID     uuid.UUID
	Name   string
	Server string
}

// Server is the host game server.
type Server interface {
	// Type names the host implementation, e.g. "standalone".
	Type() string
	Version() string
	OnlineCount() int
	PlayerLimit() int
	OnlinePlayers() []Player
	// ServersAndPlayers groups online player names by backend server.
	ServersAndPlayers() map[string][]string
	Plugins() []string
	Player(id uuid.UUID) (Player, bool)
	// DispatchCommand runs a console command and reports whether it exists.
	DispatchCommand(command string) bool
	Broadcast(message string)
}

// CommandFunc handles a console command.
type CommandFunc func(args []string)

// Standalone is an in-memory server used when Spicord runs on its own.
type Standalone struct {
	log     *zap.Logger
	version string
	limit   int
	plugins []string

	mu       sync.Mutex
	players  map[uuid.UUID]Player
	commands map[string]CommandFunc
}

// NewStandalone returns an empty standalone server.
func NewStandalone(log *zap.Logger, version string, limit int, plugins ...string) *Standalone {
	return &Standalone{
		log:      log,
		version:  version,
		limit:    limit,
		plugins:  plugins,
		players:  make(map[uuid.UUID]Player),
		commands: make(map[string]CommandFunc),
	}
}

func (s *Standalone) Type() string     { return "standalone" }
func (s *Standalone) Version() string  { return s.version }
func (s *Standalone) PlayerLimit() int { return s.limit }

func (s *Standalone) Plugins() []string {
	return append([]string(nil), s.plugins...)
}

func (s *Standalone) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// OnlinePlayers returns the online players sorted by name.
func (s *Standalone) OnlinePlayers() []Player {
	s.mu.Lock()
	players := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.mu.Unlock()

	sort.Slice(players, func(i, j int) bool {
		return players[i].Name < players[j].Name
	})
	return players
}

func (s *Standalone) ServersAndPlayers() map[string][]string {
	out := make(map[string][]string)
	for _, p := range s.OnlinePlayers() {
		out[p.Server] = append(out[p.Server], p.Name)
	}
	return out
}

func (s *Standalone) Player(id uuid.UUID) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	return p, ok
}

// PlayerByName returns the online player called name, ignoring case.
func (s *Standalone) PlayerByName(name string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Player{}, false
}

// Join adds an online player.
func (s *Standalone) Join(name string) (Player, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return Player{}, errors.Wrap(err, "unable to generate player id")
	}
	p := Player{ID: id, Name: name, Server: s.Type()}

	s.mu.Lock()
	s.players[id] = p
	s.mu.Unlock()

	s.log.Info("Player joined", zap.String("player", name), zap.Stringer("id", id))
	return p, nil
}

// Leave removes the online player called name.
func (s *Standalone) Leave(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.players {
		if strings.EqualFold(p.Name, name) {
			delete(s.players, id)
			s.log.Info("Player left", zap.String("player", p.Name))
			return nil
		}
	}
	return errors.Wrap(ErrUnknownPlayer, name)
}

// HandleCommand registers a console command.
func (s *Standalone) HandleCommand(name string, fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[strings.ToLower(name)] = fn
}

func (s *Standalone) DispatchCommand(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	s.mu.Lock()
	fn, ok := s.commands[strings.ToLower(fields[0])]
	s.mu.Unlock()
	if !ok {
		return false
	}
	fn(fields[1:])
	return true
}

func (s *Standalone) Broadcast(message string) {
	s.log.Info("Broadcast", zap.String("message", message))
}

// RunConsole dispatches every line read from r until r is exhausted or ctx
// is done. Unknown commands are logged.
func (s *Standalone) RunConsole(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return errors.Wrap(err, "unable to read console")
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !s.DispatchCommand(line) {
				s.log.Warn("Unknown command", zap.String("command", line))
			}
		}
	}
}
