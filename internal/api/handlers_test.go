package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-echo/internal/chat"
	"github.com/npezzotti/go-echo/internal/config"
	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/signal"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/internal/sweeper"
	"github.com/npezzotti/go-echo/internal/testutil"
	"github.com/npezzotti/go-echo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testApp struct {
	*EchoApp
	repo  *database.MemoryRepository
	clock *testutil.Clock
}

func newTestApp(t *testing.T, cfg *config.Config) *testApp {
	repo := database.NewMemoryRepository()
	clock := testutil.NewClock(t0)
	logger := testutil.TestLogger(t)
	svc := chat.NewService(repo, logger, stats.NoopStats{}).WithClock(clock.Now)
	sw := sweeper.New(repo, logger, stats.NoopStats{}).WithClock(clock.Now)
	hub := signal.NewHub(logger, stats.NoopStats{})

	if cfg == nil {
		cfg = &config.Config{ServerAddr: ":0"}
	}
	app := NewEchoApp(http.NewServeMux(), logger, svc, sw, hub, stats.NoopStats{}, cfg)
	t.Cleanup(func() {
		hub.Shutdown()
		if app.limiter != nil {
			app.limiter.Stop()
		}
	})

	return &testApp{EchoApp: app, repo: repo, clock: clock}
}

func (a *testApp) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.mux.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func (a *testApp) send(t *testing.T, roomCode, userId, content string) types.Message {
	rr := a.do(t, http.MethodPost, "/api/messages", types.SendMessageRequest{
		RoomCode: roomCode,
		UserId:   userId,
		Username: "user-" + userId,
		Content:  content,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[types.Message](t, rr)
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping", mock.Anything).Return(tc.mockErr).Once()

			logger := testutil.TestLogger(t)
			svc := chat.NewService(mockRepo, logger, stats.NoopStats{})
			app := NewEchoApp(http.NewServeMux(), logger, svc, nil, nil, stats.NoopStats{}, &config.Config{})

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
				assert.Contains(t, rr.Body.String(), "db error")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateRoomHandler(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/rooms", types.CreateRoomRequest{Code: "lobby", CreatedBy: "u1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[types.Room](t, rr)
	assert.Equal(t, "LOBBY", created.Code)
	assert.Equal(t, "u1", created.CreatedBy)
	assert.Equal(t, created.CreatedAt.Add(chat.RoomTTL), created.ExpiresAt)

	rr = app.do(t, http.MethodPost, "/api/rooms", types.CreateRoomRequest{Code: "LOBBY"})
	require.Equal(t, http.StatusOK, rr.Code, "existing code joins the live room")
	assert.Equal(t, created.Id, decode[types.Room](t, rr).Id)

	rr = app.do(t, http.MethodPost, "/api/rooms", types.CreateRoomRequest{})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Len(t, decode[types.Room](t, rr).Code, 6)

	tcases := []struct {
		name   string
		body   any
		status int
	}{
		{name: "invalid json body", body: "invalid json", status: http.StatusBadRequest},
		{name: "invalid code", body: types.CreateRoomRequest{Code: "no spaces"}, status: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodPost, "/api/rooms", tc.body)
			assert.Equal(t, tc.status, rr.Code)
			errResp := decode[ApiError](t, rr)
			assert.Equal(t, tc.status, errResp.StatusCode)
			assert.NotEmpty(t, errResp.Details)
		})
	}
}

func TestGetRoomHandler(t *testing.T) {
	app := newTestApp(t, nil)
	app.do(t, http.MethodPost, "/api/rooms", types.CreateRoomRequest{Code: "ABC"})

	tcases := []struct {
		name   string
		target string
		status int
	}{
		{name: "existing room", target: "/api/rooms?code=abc", status: http.StatusOK},
		{name: "unknown room", target: "/api/rooms?code=NOPE", status: http.StatusNotFound},
		{name: "missing code", target: "/api/rooms", status: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodGet, tc.target, nil)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}

	// a plain fetch never creates the room
	rr := app.do(t, http.MethodGet, "/api/rooms?code=NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestJoinLeaveAndPoll(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/join", types.JoinRoomRequest{RoomCode: "room1", UserId: "u1", Username: "alice"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	joined := decode[types.JoinResponse](t, rr)
	assert.Equal(t, "ROOM1", joined.Room.Code)
	assert.True(t, joined.User.IsOnline)

	first := app.send(t, "ROOM1", "u1", "hello")
	app.clock.Advance(time.Millisecond)
	second := app.send(t, "ROOM1", "u1", "world")

	rr = app.do(t, http.MethodGet, "/api/poll?roomCode=room1&userId=u1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	resp := decode[types.PollResponse](t, rr)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, first.Id, resp.Messages[0].Id)
	assert.Equal(t, second.Id, resp.Messages[1].Id)
	assert.Equal(t, t0.Add(time.Millisecond).UnixMilli(), resp.Timestamp)
	require.Len(t, resp.OnlineUsers, 1)
	assert.Equal(t, "u1", resp.OnlineUsers[0].UserId)

	rr = app.do(t, http.MethodGet, "/api/poll?roomCode=ROOM1&userId=u1&lastMessageId="+second.Id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[types.PollResponse](t, rr).Messages)

	rr = app.do(t, http.MethodPost, "/api/leave", types.LeaveRoomRequest{RoomCode: "ROOM1", UserId: "u1"})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = app.do(t, http.MethodGet, "/api/poll?roomCode=ROOM1&userId=u2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[types.PollResponse](t, rr).OnlineUsers)
}

func TestPollHandler_Errors(t *testing.T) {
	app := newTestApp(t, nil)

	tcases := []struct {
		name   string
		target string
		status int
	}{
		{name: "missing user", target: "/api/poll?roomCode=ABC", status: http.StatusBadRequest},
		{name: "missing room", target: "/api/poll?userId=u1", status: http.StatusBadRequest},
		{name: "bad since", target: "/api/poll?roomCode=ABC&userId=u1&since=yesterday", status: http.StatusBadRequest},
		{name: "negative since", target: "/api/poll?roomCode=ABC&userId=u1&since=-1", status: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodGet, tc.target, nil)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestPollHandler_DeliversEditsSince(t *testing.T) {
	app := newTestApp(t, nil)
	msg := app.send(t, "ROOM", "u1", "draft")

	rr := app.do(t, http.MethodGet, "/api/poll?roomCode=ROOM&userId=u1", nil)
	first := decode[types.PollResponse](t, rr)
	require.Len(t, first.Messages, 1)

	app.clock.Advance(3 * time.Second)
	rr = app.do(t, http.MethodPatch, "/api/messages", types.EditMessageRequest{MessageId: msg.Id, UserId: "u1", Content: "final"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	app.clock.Advance(time.Second)
	target := "/api/poll?roomCode=ROOM&userId=u1&lastMessageId=" + msg.Id + "&since=" + itoa(first.Timestamp)
	rr = app.do(t, http.MethodGet, target, nil)
	resp := decode[types.PollResponse](t, rr)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "final", resp.Messages[0].Content)
	assert.NotNil(t, resp.Messages[0].EditedAt)
}

func TestSendMessageHandler(t *testing.T) {
	app := newTestApp(t, nil)

	tcases := []struct {
		name    string
		body    any
		status  int
		details string
	}{
		{
			name:   "text message",
			body:   types.SendMessageRequest{RoomCode: "R1", UserId: "u1", Username: "alice", Content: "hi"},
			status: http.StatusCreated,
		},
		{
			name:   "gif message",
			body:   types.SendMessageRequest{RoomCode: "R1", UserId: "u1", Username: "alice", Content: "https://example.com/a.gif", Type: types.MessageTypeGif},
			status: http.StatusCreated,
		},
		{
			name:    "missing content",
			body:    types.SendMessageRequest{RoomCode: "R1", UserId: "u1", Username: "alice"},
			status:  http.StatusBadRequest,
			details: "content",
		},
		{
			name:    "missing user",
			body:    types.SendMessageRequest{RoomCode: "R1", Username: "alice", Content: "hi"},
			status:  http.StatusBadRequest,
			details: "userId",
		},
		{
			name:    "unknown type",
			body:    types.SendMessageRequest{RoomCode: "R1", UserId: "u1", Username: "alice", Content: "hi", Type: "video"},
			status:  http.StatusBadRequest,
			details: "type",
		},
		{
			name:    "invalid json",
			body:    "{",
			status:  http.StatusBadRequest,
			details: "invalid json body",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodPost, "/api/messages", tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			if tc.status != http.StatusCreated {
				assert.Contains(t, decode[ApiError](t, rr).Details, tc.details)
				return
			}

			msg := decode[types.Message](t, rr)
			assert.Equal(t, msg.CreatedAt.Add(chat.MessageTTL), msg.ExpiresAt)
		})
	}

	rr := app.do(t, http.MethodGet, "/api/messages?roomCode=r1&limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	msgs := decode[[]types.Message](t, rr)
	require.Len(t, msgs, 1)
	assert.Equal(t, types.MessageTypeGif, msgs[0].Type)

	rr = app.do(t, http.MethodGet, "/api/messages?roomCode=r1&limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(t, http.MethodGet, "/api/messages?roomCode=missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEditMessageHandler(t *testing.T) {
	app := newTestApp(t, nil)
	msg := app.send(t, "R1", "u1", "hello")

	tcases := []struct {
		name   string
		body   types.EditMessageRequest
		status int
	}{
		{name: "owner edits", body: types.EditMessageRequest{MessageId: msg.Id, UserId: "u1", Content: "hello!"}, status: http.StatusOK},
		{name: "other user", body: types.EditMessageRequest{MessageId: msg.Id, UserId: "u2", Content: "mine now"}, status: http.StatusForbidden},
		{name: "unknown message", body: types.EditMessageRequest{MessageId: "nope", UserId: "u1", Content: "x"}, status: http.StatusNotFound},
		{name: "empty content", body: types.EditMessageRequest{MessageId: msg.Id, UserId: "u1"}, status: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(t, http.MethodPatch, "/api/messages", tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestDeleteMessageHandler(t *testing.T) {
	app := newTestApp(t, nil)
	early := app.send(t, "R1", "u1", "oops")
	late := app.send(t, "R1", "u1", "too late")

	rr := app.do(t, http.MethodDelete, "/api/messages/delete", types.DeleteMessageRequest{MessageId: early.Id, UserId: "u2"})
	assert.Equal(t, http.StatusForbidden, rr.Code, "only the sender may delete")

	rr = app.do(t, http.MethodDelete, "/api/messages/delete", types.DeleteMessageRequest{MessageId: early.Id, UserId: "u1"})
	assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = app.do(t, http.MethodDelete, "/api/messages/delete", types.DeleteMessageRequest{MessageId: early.Id, UserId: "u1"})
	assert.Equal(t, http.StatusNotFound, rr.Code, "deleted messages are gone")

	app.clock.Advance(chat.DeleteWindow + time.Second)
	rr = app.do(t, http.MethodDelete, "/api/messages/delete", types.DeleteMessageRequest{MessageId: late.Id, UserId: "u1"})
	assert.Equal(t, http.StatusForbidden, rr.Code, "delete window elapsed")

	rr = app.do(t, http.MethodGet, "/api/messages?roomCode=R1", nil)
	msgs := decode[[]types.Message](t, rr)
	require.Len(t, msgs, 1)
	assert.Equal(t, late.Id, msgs[0].Id)
}

func TestTypingHandler(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/typing", types.TypingRequest{RoomCode: "R1", UserId: "u1", Username: "alice", IsTyping: true})
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = app.do(t, http.MethodGet, "/api/poll?roomCode=R1&userId=u2", nil)
	resp := decode[types.PollResponse](t, rr)
	require.Len(t, resp.TypingUsers, 1)
	assert.Equal(t, "alice", resp.TypingUsers[0].Username)

	rr = app.do(t, http.MethodPost, "/api/typing", types.TypingRequest{RoomCode: "R1", UserId: "u1", Username: "alice", IsTyping: false})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = app.do(t, http.MethodGet, "/api/poll?roomCode=R1&userId=u2", nil)
	assert.Empty(t, decode[types.PollResponse](t, rr).TypingUsers)

	rr = app.do(t, http.MethodPost, "/api/typing", types.TypingRequest{RoomCode: "R1", IsTyping: true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReactionHandlers(t *testing.T) {
	app := newTestApp(t, nil)
	msg := app.send(t, "R1", "u1", "react to me")
	other := app.send(t, "R1", "u1", "and me")

	rr := app.do(t, http.MethodPost, "/api/reactions", types.ReactionRequest{MessageId: msg.Id, UserId: "u2", Username: "bob", Emoji: "🔥"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[types.ReactionResponse](t, rr)
	assert.Equal(t, msg.Id, resp.MessageId)
	assert.Equal(t, []string{"u2"}, resp.Reactions["🔥"])
	assert.True(t, resp.UpdatedAt.Equal(app.clock.Now()), "toggle stamps the message")

	app.do(t, http.MethodPost, "/api/reactions", types.ReactionRequest{MessageId: other.Id, UserId: "u3", Username: "carol", Emoji: "👍"})

	rr = app.do(t, http.MethodGet, "/api/reactions?messageIds="+msg.Id+","+other.Id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	all := decode[map[string]types.Reactions](t, rr)
	assert.Equal(t, []string{"u2"}, all[msg.Id]["🔥"])
	assert.Equal(t, []string{"u3"}, all[other.Id]["👍"])

	rr = app.do(t, http.MethodPost, "/api/reactions", types.ReactionRequest{MessageId: msg.Id, UserId: "u2", Username: "bob", Emoji: "🔥"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[types.ReactionResponse](t, rr).Reactions, "second toggle removes the reaction")

	rr = app.do(t, http.MethodGet, "/api/reactions?messageIds=", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(t, http.MethodPost, "/api/reactions", types.ReactionRequest{MessageId: "missing", UserId: "u2", Emoji: "🔥"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDirectMessageHandlers(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/dm", types.DirectMessageRequest{
		FromUserId:   "u1",
		FromUsername: "alice",
		ToUserId:     "u2",
		ToUsername:   "bob",
		Content:      "psst",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	dm := decode[types.DirectMessage](t, rr)
	assert.Equal(t, dm.CreatedAt.Add(chat.DirectMessageTTL), dm.ExpiresAt)

	for _, userId := range []string{"u1", "u2"} {
		rr = app.do(t, http.MethodGet, "/api/dm?userId="+userId, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		dms := decode[[]types.DirectMessage](t, rr)
		require.Len(t, dms, 1)
		assert.Equal(t, "psst", dms[0].Content)
	}

	rr = app.do(t, http.MethodPost, "/api/dm", types.DirectMessageRequest{FromUserId: "u1", Content: "no recipient"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[ApiError](t, rr).Details, "toUserId")
}

func TestClipHandlers(t *testing.T) {
	app := newTestApp(t, nil)
	msg := app.send(t, "R1", "u1", "worth keeping")

	rr := app.do(t, http.MethodPost, "/api/clips", types.ClipRequest{UserId: "u2", MessageId: msg.Id, RoomCode: "r1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	clip := decode[types.Clip](t, rr)
	assert.Equal(t, "worth keeping", clip.MessageContent)
	assert.Equal(t, "R1", clip.RoomCode)

	rr = app.do(t, http.MethodGet, "/api/clips?userId=u2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]types.Clip](t, rr), 1)

	rr = app.do(t, http.MethodPost, "/api/clips", types.ClipRequest{UserId: "u2", MessageId: "missing", RoomCode: "R1"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCleanupHandler(t *testing.T) {
	app := newTestApp(t, nil)
	app.do(t, http.MethodPost, "/api/join", types.JoinRoomRequest{RoomCode: "OLD", UserId: "u1", Username: "alice"})
	app.send(t, "OLD", "u1", "bye")

	app.clock.Advance(chat.RoomTTL + time.Minute)

	rr := app.do(t, http.MethodPost, "/api/cleanup", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decode[types.CleanupResult](t, rr)
	assert.Equal(t, 1, result.InactiveRooms+result.ExpiredRooms)
	assert.Equal(t, int64(1), result.Messages)
	assert.Empty(t, result.Errors)

	rr = app.do(t, http.MethodGet, "/api/cleanup", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, decode[types.CleanupResult](t, rr).Total(), "second sweep finds nothing")

	rr = app.do(t, http.MethodPut, "/api/cleanup", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Contains(t, rr.Header().Get("Allow"), http.MethodPost)
	assert.Contains(t, rr.Header().Get("Allow"), http.MethodGet)
}

func TestStoreUnavailable(t *testing.T) {
	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetRoomByCode", mock.Anything, "ROOM", mock.Anything).
		Return(database.Room{}, errors.New("connection refused")).Once()

	buf := &bytes.Buffer{}
	logger := testutil.TestLogger(t)
	logger.SetOutput(buf)
	svc := chat.NewService(mockRepo, logger, stats.NoopStats{})
	app := &testApp{EchoApp: NewEchoApp(http.NewServeMux(), logger, svc, nil, nil, stats.NoopStats{}, &config.Config{})}

	rr := app.do(t, http.MethodGet, "/api/poll?roomCode=room&userId=u1", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	errResp := decode[ApiError](t, rr)
	assert.Contains(t, errResp.Details, "connection refused")
	assert.Contains(t, buf.String(), "request failed")
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
