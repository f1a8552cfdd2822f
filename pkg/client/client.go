// Package client is a typed HTTP client for the echo API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-echo/pkg/types"
)

// Client is the echo API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client. The token is only needed for cleanup runs.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PollParams selects what a poll returns. LastMessageId is the newest message
// id already held and Since the timestamp of the previous poll response.
type PollParams struct {
	RoomCode      string
	UserId        string
	LastMessageId string
	Since         int64
}

// Health checks that the server can reach its store.
func (c *Client) Health(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return fmt.Errorf("client.Health: %w", err)
	}
	return nil
}

// CreateRoom returns the live room for code, creating it when needed. An empty
// code asks the server for a random one.
func (c *Client) CreateRoom(ctx context.Context, code, createdBy string) (*types.Room, error) {
	var room types.Room
	if err := c.post(ctx, "/api/rooms", types.CreateRoomRequest{Code: code, CreatedBy: createdBy}, &room); err != nil {
		return nil, fmt.Errorf("client.CreateRoom: %w", err)
	}
	return &room, nil
}

// GetRoom fetches a live room by code without creating it.
func (c *Client) GetRoom(ctx context.Context, code string) (*types.Room, error) {
	params := url.Values{}
	params.Set("code", code)

	var room types.Room
	if err := c.get(ctx, "/api/rooms?"+params.Encode(), &room); err != nil {
		return nil, fmt.Errorf("client.GetRoom: %w", err)
	}
	return &room, nil
}

func (c *Client) Join(ctx context.Context, req types.JoinRoomRequest) (*types.JoinResponse, error) {
	var resp types.JoinResponse
	if err := c.post(ctx, "/api/join", req, &resp); err != nil {
		return nil, fmt.Errorf("client.Join: %w", err)
	}
	return &resp, nil
}

func (c *Client) Leave(ctx context.Context, roomCode, userId string) error {
	if err := c.post(ctx, "/api/leave", types.LeaveRoomRequest{RoomCode: roomCode, UserId: userId}, nil); err != nil {
		return fmt.Errorf("client.Leave: %w", err)
	}
	return nil
}

// Poll fetches new messages, deltas since the previous poll, typing and
// online users for a room.
func (c *Client) Poll(ctx context.Context, p PollParams) (*types.PollResponse, error) {
	params := url.Values{}
	params.Set("roomCode", p.RoomCode)
	params.Set("userId", p.UserId)
	if p.LastMessageId != "" {
		params.Set("lastMessageId", p.LastMessageId)
	}
	if p.Since > 0 {
		params.Set("since", strconv.FormatInt(p.Since, 10))
	}

	var resp types.PollResponse
	if err := c.get(ctx, "/api/poll?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("client.Poll: %w", err)
	}
	return &resp, nil
}

// ListMessages returns the most recent messages of an existing room, oldest first.
func (c *Client) ListMessages(ctx context.Context, roomCode string, limit int) ([]types.Message, error) {
	params := url.Values{}
	params.Set("roomCode", roomCode)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var msgs []types.Message
	if err := c.get(ctx, "/api/messages?"+params.Encode(), &msgs); err != nil {
		return nil, fmt.Errorf("client.ListMessages: %w", err)
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, req types.SendMessageRequest) (*types.Message, error) {
	var msg types.Message
	if err := c.post(ctx, "/api/messages", req, &msg); err != nil {
		return nil, fmt.Errorf("client.SendMessage: %w", err)
	}
	return &msg, nil
}

func (c *Client) EditMessage(ctx context.Context, req types.EditMessageRequest) (*types.Message, error) {
	var msg types.Message
	if err := c.doRequest(ctx, http.MethodPatch, "/api/messages", req, &msg); err != nil {
		return nil, fmt.Errorf("client.EditMessage: %w", err)
	}
	return &msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageId, userId string) error {
	req := types.DeleteMessageRequest{MessageId: messageId, UserId: userId}
	if err := c.doRequest(ctx, http.MethodDelete, "/api/messages/delete", req, nil); err != nil {
		return fmt.Errorf("client.DeleteMessage: %w", err)
	}
	return nil
}

func (c *Client) SetTyping(ctx context.Context, req types.TypingRequest) error {
	if err := c.post(ctx, "/api/typing", req, nil); err != nil {
		return fmt.Errorf("client.SetTyping: %w", err)
	}
	return nil
}

// ToggleReaction adds the reaction or removes it when already present.
func (c *Client) ToggleReaction(ctx context.Context, req types.ReactionRequest) (*types.ReactionResponse, error) {
	var resp types.ReactionResponse
	if err := c.post(ctx, "/api/reactions", req, &resp); err != nil {
		return nil, fmt.Errorf("client.ToggleReaction: %w", err)
	}
	return &resp, nil
}

// GetReactions returns the reactions of each message, keyed by message id.
func (c *Client) GetReactions(ctx context.Context, messageIds []string) (map[string]types.Reactions, error) {
	params := url.Values{}
	params.Set("messageIds", strings.Join(messageIds, ","))

	var resp map[string]types.Reactions
	if err := c.get(ctx, "/api/reactions?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("client.GetReactions: %w", err)
	}
	return resp, nil
}

func (c *Client) SendDirectMessage(ctx context.Context, req types.DirectMessageRequest) (*types.DirectMessage, error) {
	var dm types.DirectMessage
	if err := c.post(ctx, "/api/dm", req, &dm); err != nil {
		return nil, fmt.Errorf("client.SendDirectMessage: %w", err)
	}
	return &dm, nil
}

// ListDirectMessages returns direct messages sent or received by userId, newest first.
func (c *Client) ListDirectMessages(ctx context.Context, userId string) ([]types.DirectMessage, error) {
	params := url.Values{}
	params.Set("userId", userId)

	var dms []types.DirectMessage
	if err := c.get(ctx, "/api/dm?"+params.Encode(), &dms); err != nil {
		return nil, fmt.Errorf("client.ListDirectMessages: %w", err)
	}
	return dms, nil
}

func (c *Client) ClipMessage(ctx context.Context, req types.ClipRequest) (*types.Clip, error) {
	var clip types.Clip
	if err := c.post(ctx, "/api/clips", req, &clip); err != nil {
		return nil, fmt.Errorf("client.ClipMessage: %w", err)
	}
	return &clip, nil
}

func (c *Client) ListClips(ctx context.Context, userId string) ([]types.Clip, error) {
	params := url.Values{}
	params.Set("userId", userId)

	var clips []types.Clip
	if err := c.get(ctx, "/api/clips?"+params.Encode(), &clips); err != nil {
		return nil, fmt.Errorf("client.ListClips: %w", err)
	}
	return clips, nil
}

// Cleanup runs one server-side sweep and returns its counts.
func (c *Client) Cleanup(ctx context.Context) (*types.CleanupResult, error) {
	var result types.CleanupResult
	if err := c.post(ctx, "/api/cleanup", nil, &result); err != nil {
		return nil, fmt.Errorf("client.Cleanup: %w", err)
	}
	return &result, nil
}

// SignalPeers lists the signaling peers connected for a room.
func (c *Client) SignalPeers(ctx context.Context, roomCode string) (*types.PeersResponse, error) {
	params := url.Values{}
	params.Set("roomCode", roomCode)

	var resp types.PeersResponse
	if err := c.get(ctx, "/api/signal/peers?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("client.SignalPeers: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Message string `json:"message"`
			Details string `json:"details"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			msg := apiErr.Message
			if apiErr.Details != "" {
				msg = apiErr.Details
			}
			return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
