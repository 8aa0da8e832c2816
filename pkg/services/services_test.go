package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type plainService struct{}

func (plainService) ID() string { return "plain" }

func openLinking(t *testing.T) BoltLinkingService {
	t.Helper()
	svc, err := NewBoltLinkingService(zap.NewNop(), filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = svc.Close()
	})
	return svc
}

func TestManager(t *testing.T) {
	m := NewManager()
	svc := openLinking(t)

	assert.False(t, m.Register(Linking, nil))
	assert.False(t, m.Register(Linking, plainService{}))
	assert.True(t, m.Register(Linking, svc))
	assert.False(t, m.Register(Linking, svc))
	assert.True(t, m.IsRegistered(Linking))

	got, ok := m.Get(Linking)
	require.True(t, ok)
	assert.Equal(t, svc, got)
	got, ok = m.GetByID("bbolt_linking")
	require.True(t, ok)
	assert.Equal(t, svc, got)
	_, ok = m.GetByID("plain")
	assert.False(t, ok)

	linking, ok := m.Linking()
	require.True(t, ok)
	assert.Equal(t, svc, linking)

	assert.True(t, m.Unregister(Linking))
	assert.False(t, m.Unregister(Linking))
	assert.False(t, m.IsRegistered(Linking))

	require.True(t, m.Register(Linking, svc))
	assert.True(t, m.UnregisterService(svc))
	assert.False(t, m.UnregisterService(svc))
	_, ok = m.Linking()
	assert.False(t, ok)
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "linking", Linking.String())
	assert.Equal(t, "unknown", Tag(0).String())
}

func TestLinking(t *testing.T) {
	svc := openLinking(t)
	steve := uuid.Must(uuid.NewV4())
	alex := uuid.Must(uuid.NewV4())
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.AddPending(PendingLink{PlayerID: steve, Name: "Steve", CreatedAt: now.Add(time.Minute)}))
	require.NoError(t, svc.AddPending(PendingLink{PlayerID: alex, Name: "Alex", CreatedAt: now}))

	pending, err := svc.IsPending(steve)
	require.NoError(t, err)
	assert.True(t, pending)

	all, err := svc.Pending()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alex", all[0].Name)
	assert.Equal(t, "Steve", all[1].Name)

	link, err := svc.CompleteLink(steve, "1234")
	require.NoError(t, err)
	assert.Equal(t, LinkData{DiscordID: "1234", Name: "Steve", PlayerID: steve}, link)

	pending, err = svc.IsPending(steve)
	require.NoError(t, err)
	assert.False(t, pending)
	linked, err := svc.IsLinked(steve)
	require.NoError(t, err)
	assert.True(t, linked)

	byDiscord, err := svc.ByDiscord("1234")
	require.NoError(t, err)
	assert.Equal(t, link, byDiscord)

	// The Discord account is taken.
	_, err = svc.CompleteLink(alex, "1234")
	assert.True(t, errors.Is(err, ErrAlreadyLinked))
	// A linked player cannot request again.
	err = svc.AddPending(PendingLink{PlayerID: steve, Name: "Steve"})
	assert.True(t, errors.Is(err, ErrAlreadyLinked))

	_, err = svc.CompleteLink(alex, "5678")
	require.NoError(t, err)
	links, err := svc.Links()
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "Alex", links[0].Name)

	require.NoError(t, svc.Unlink(steve))
	_, err = svc.ByPlayer(steve)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.ByDiscord("1234")
	assert.True(t, errors.Is(err, ErrNotFound))
	linked, err = svc.IsLinked(steve)
	require.NoError(t, err)
	assert.False(t, linked)

	err = svc.Unlink(steve)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemovePending(t *testing.T) {
	svc := openLinking(t)
	id := uuid.Must(uuid.NewV4())

	err := svc.RemovePending(id)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.CompleteLink(id, "1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, svc.AddPending(PendingLink{PlayerID: id, Name: "Steve"}))
	require.NoError(t, svc.RemovePending(id))
	pending, err := svc.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLinksSurviveReopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "links.db")
	id := uuid.Must(uuid.NewV4())

	svc, err := NewBoltLinkingService(zap.NewNop(), file)
	require.NoError(t, err)
	require.NoError(t, svc.AddPending(PendingLink{PlayerID: id, Name: "Steve"}))
	_, err = svc.CompleteLink(id, "42")
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	svc, err = NewBoltLinkingService(zap.NewNop(), file)
	require.NoError(t, err)
	defer svc.Close()
	link, err := svc.ByDiscord("42")
	require.NoError(t, err)
	assert.Equal(t, id, link.PlayerID)
}
