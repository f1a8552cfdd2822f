package poller_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-echo/internal/api"
	"github.com/npezzotti/go-echo/internal/chat"
	"github.com/npezzotti/go-echo/internal/config"
	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/signal"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/internal/sweeper"
	"github.com/npezzotti/go-echo/internal/testutil"
	"github.com/npezzotti/go-echo/pkg/client"
	"github.com/npezzotti/go-echo/pkg/poller"
	"github.com/npezzotti/go-echo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	return newServerWithClock(t, time.Now)
}

func newServerWithClock(t *testing.T, now func() time.Time) *httptest.Server {
	logger := testutil.TestLogger(t)
	repo := database.NewMemoryRepository()
	svc := chat.NewService(repo, logger, stats.NoopStats{}).WithClock(now)
	sw := sweeper.New(repo, logger, stats.NoopStats{}).WithClock(now)
	hub := signal.NewHub(logger, stats.NoopStats{})

	app := api.NewEchoApp(http.NewServeMux(), logger, svc, sw, hub, stats.NoopStats{}, &config.Config{ServerAddr: ":0"})
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return srv
}

func TestSessionsAgainstServer(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice := poller.NewSession(client.New(srv.URL, ""), testutil.TestLogger(t), poller.Config{RoomCode: "abc123", UserId: "u1", Username: "alice"})
	bob := poller.NewSession(client.New(srv.URL, ""), testutil.TestLogger(t), poller.Config{RoomCode: "ABC123", UserId: "u2", Username: "bob"})

	_, err := alice.Join(ctx)
	require.NoError(t, err)
	joined, err := bob.Join(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", joined.Room.Code)

	sent, err := alice.SendMessage(ctx, "hello bob", types.MessageTypeText)
	require.NoError(t, err)

	require.NoError(t, bob.Poll(ctx))
	st := bob.Snapshot()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "hello bob", st.Messages[0].Content)
	assert.Equal(t, sent.Id, st.LastMessageId)
	assert.Len(t, st.OnlineUsers, 2)

	_, err = alice.EditMessage(ctx, sent.Id, "hello, bob")
	require.NoError(t, err)
	require.NoError(t, bob.ReactToMessage(ctx, sent.Id, "👋"))

	require.NoError(t, bob.Poll(ctx))
	st = bob.Snapshot()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "hello, bob", st.Messages[0].Content, "edits arrive through since")
	assert.Equal(t, []string{"u2"}, st.Messages[0].Reactions["👋"])

	require.NoError(t, alice.DeleteMessage(ctx, sent.Id))
	require.NoError(t, bob.Poll(ctx))
	assert.Empty(t, bob.Snapshot().Messages)

	require.NoError(t, alice.Close(ctx))
	require.NoError(t, bob.Poll(ctx))
	assert.Len(t, bob.Snapshot().OnlineUsers, 1)
	require.NoError(t, bob.Close(ctx))
}

// unreachableReactions fails every reaction toggle as if the network dropped.
type unreachableReactions struct {
	*client.Client
}

func (unreachableReactions) ToggleReaction(ctx context.Context, req types.ReactionRequest) (*types.ReactionResponse, error) {
	return nil, errors.New("network is unreachable")
}

func TestResyncDropsMessagesDeletedMeanwhile(t *testing.T) {
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Millisecond))
	srv := newServerWithClock(t, clock.Now)
	ctx := context.Background()

	alice := poller.NewSession(client.New(srv.URL, ""), testutil.TestLogger(t), poller.Config{RoomCode: "ROOM1", UserId: "u1", Username: "alice"}).WithClock(clock.Now)
	bob := poller.NewSession(unreachableReactions{client.New(srv.URL, "")}, testutil.TestLogger(t), poller.Config{RoomCode: "ROOM1", UserId: "u2", Username: "bob"}).WithClock(clock.Now)
	t.Cleanup(func() {
		alice.Close(ctx)
		bob.Close(ctx)
	})

	sent, err := alice.SendMessage(ctx, "soon gone", types.MessageTypeText)
	require.NoError(t, err)
	_, err = alice.SendMessage(ctx, "stays", types.MessageTypeText)
	require.NoError(t, err)

	require.NoError(t, bob.Poll(ctx))
	require.Len(t, bob.Snapshot().Messages, 2)

	require.Error(t, bob.ReactToMessage(ctx, sent.Id, "x"))

	clock.Advance(5 * time.Second)
	require.NoError(t, alice.DeleteMessage(ctx, sent.Id))

	require.NoError(t, bob.Poll(ctx))
	require.NoError(t, bob.Poll(ctx))
	clock.Advance(2 * time.Second)
	require.NoError(t, bob.Poll(ctx))

	st := bob.Snapshot()
	require.Len(t, st.Messages, 1, "the deleted message is gone after the resync")
	assert.Equal(t, "stays", st.Messages[0].Content)
	assert.Empty(t, st.Messages[0].Reactions)
}
