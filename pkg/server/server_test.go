package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStandalonePlayers(t *testing.T) {
	s := NewStandalone(zap.NewNop(), "1.20.4", 20, "Spicord")

	steve, err := s.Join("Steve")
	require.NoError(t, err)
	_, err = s.Join("Alex")
	require.NoError(t, err)

	assert.Equal(t, 2, s.OnlineCount())
	assert.Equal(t, 20, s.PlayerLimit())
	names := []string{}
	for _, p := range s.OnlinePlayers() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Alex", "Steve"}, names)
	assert.Equal(t, map[string][]string{"standalone": {"Alex", "Steve"}}, s.ServersAndPlayers())

	p, ok := s.Player(steve.ID)
	require.True(t, ok)
	assert.Equal(t, "Steve", p.Name)
	p, ok = s.PlayerByName("STEVE")
	require.True(t, ok)
	assert.Equal(t, steve.ID, p.ID)

	require.NoError(t, s.Leave("steve"))
	_, ok = s.Player(steve.ID)
	assert.False(t, ok)
	assert.True(t, errors.Is(s.Leave("Herobrine"), ErrUnknownPlayer))
}

func TestDispatchCommand(t *testing.T) {
	s := NewStandalone(zap.NewNop(), "1.20.4", 20)

	var got []string
	s.HandleCommand("Say", func(args []string) { got = args })

	assert.True(t, s.DispatchCommand("say hello  world"))
	assert.Equal(t, []string{"hello", "world"}, got)
	assert.False(t, s.DispatchCommand("unknown"))
	assert.False(t, s.DispatchCommand("   "))
}

func TestRunConsole(t *testing.T) {
	s := NewStandalone(zap.NewNop(), "1.20.4", 20)
	var joined []string
	s.HandleCommand("join", func(args []string) {
		for _, name := range args {
			_, err := s.Join(name)
			assert.NoError(t, err)
			joined = append(joined, name)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.RunConsole(ctx, strings.NewReader("join Steve\n\nnope\njoin Alex\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Steve", "Alex"}, joined)
	assert.Equal(t, 2, s.OnlineCount())
}
