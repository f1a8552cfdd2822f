package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-echo/internal/chat"
	"github.com/npezzotti/go-echo/pkg/types"
)

const maxBodyBytes = 64 << 10

func (s *EchoApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// readJson decodes the request body into v, writing a 400 on failure.
func (s *EchoApp) readJson(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		errResp.Details = "invalid json body"
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}

	return true
}

func (s *EchoApp) writeServiceError(w http.ResponseWriter, err error) {
	errResp := serviceError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Printf("request failed: %v", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *EchoApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewStoreUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *EchoApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRoomRequest
	if !s.readJson(w, r, &req) {
		return
	}

	room, created, err := s.svc.CreateRoom(r.Context(), chat.CreateRoomParams{
		Code:      req.Code,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJson(w, status, room)
}

func (s *EchoApp) getRoom(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errResp := NewValidationError(&chat.ValidationError{Field: "code", Message: "is required"})
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.svc.GetRoom(r.Context(), code)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *EchoApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req types.JoinRoomRequest
	if !s.readJson(w, r, &req) {
		return
	}

	resp, err := s.svc.Join(r.Context(), chat.JoinParams{
		RoomCode: req.RoomCode,
		UserId:   req.UserId,
		Username: req.Username,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *EchoApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	var req types.LeaveRoomRequest
	if !s.readJson(w, r, &req) {
		return
	}

	if err := s.svc.Leave(r.Context(), req.RoomCode, req.UserId); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *EchoApp) poll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := chat.PollParams{
		RoomCode:      q.Get("roomCode"),
		UserId:        q.Get("userId"),
		LastMessageId: q.Get("lastMessageId"),
	}

	if sinceStr := q.Get("since"); sinceStr != "" {
		since, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || since < 0 {
			errResp := NewValidationError(&chat.ValidationError{Field: "since", Message: "must be a unix timestamp in milliseconds"})
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if since > 0 {
			params.Since = time.UnixMilli(since).UTC()
		}
	}

	resp, err := s.svc.Poll(r.Context(), params)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	s.writeJson(w, http.StatusOK, resp)
}

func (s *EchoApp) getMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var limit int
	if limitStr := q.Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewValidationError(&chat.ValidationError{Field: "limit", Message: "must be an integer"})
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	msgs, err := s.svc.ListMessages(r.Context(), q.Get("roomCode"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *EchoApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req types.SendMessageRequest
	if !s.readJson(w, r, &req) {
		return
	}

	msg, err := s.svc.SendMessage(r.Context(), chat.SendMessageParams{
		RoomCode: req.RoomCode,
		UserId:   req.UserId,
		Username: req.Username,
		Content:  req.Content,
		Type:     req.Type,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *EchoApp) editMessage(w http.ResponseWriter, r *http.Request) {
	var req types.EditMessageRequest
	if !s.readJson(w, r, &req) {
		return
	}

	msg, err := s.svc.EditMessage(r.Context(), chat.EditMessageParams{
		MessageId: req.MessageId,
		UserId:    req.UserId,
		Content:   req.Content,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *EchoApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	var req types.DeleteMessageRequest
	if !s.readJson(w, r, &req) {
		return
	}

	if err := s.svc.DeleteMessage(r.Context(), req.MessageId, req.UserId); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *EchoApp) setTyping(w http.ResponseWriter, r *http.Request) {
	var req types.TypingRequest
	if !s.readJson(w, r, &req) {
		return
	}

	err := s.svc.SetTyping(r.Context(), chat.TypingParams{
		RoomCode: req.RoomCode,
		UserId:   req.UserId,
		Username: req.Username,
		IsTyping: req.IsTyping,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *EchoApp) toggleReaction(w http.ResponseWriter, r *http.Request) {
	var req types.ReactionRequest
	if !s.readJson(w, r, &req) {
		return
	}

	resp, err := s.svc.ToggleReaction(r.Context(), chat.ReactionParams{
		MessageId: req.MessageId,
		UserId:    req.UserId,
		Username:  req.Username,
		Emoji:     req.Emoji,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *EchoApp) getReactions(w http.ResponseWriter, r *http.Request) {
	var messageIds []string
	for _, id := range strings.Split(r.URL.Query().Get("messageIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			messageIds = append(messageIds, id)
		}
	}

	if len(messageIds) == 0 {
		errResp := NewValidationError(&chat.ValidationError{Field: "messageIds", Message: "is required"})
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	reactions, err := s.svc.GetReactions(r.Context(), messageIds)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, reactions)
}

func (s *EchoApp) sendDirectMessage(w http.ResponseWriter, r *http.Request) {
	var req types.DirectMessageRequest
	if !s.readJson(w, r, &req) {
		return
	}

	dm, err := s.svc.SendDirectMessage(r.Context(), chat.DirectMessageParams{
		FromUserId:   req.FromUserId,
		FromUsername: req.FromUsername,
		ToUserId:     req.ToUserId,
		ToUsername:   req.ToUsername,
		Content:      req.Content,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, dm)
}

func (s *EchoApp) getDirectMessages(w http.ResponseWriter, r *http.Request) {
	dms, err := s.svc.ListDirectMessages(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, dms)
}

func (s *EchoApp) clipMessage(w http.ResponseWriter, r *http.Request) {
	var req types.ClipRequest
	if !s.readJson(w, r, &req) {
		return
	}

	clip, err := s.svc.ClipMessage(r.Context(), chat.ClipParams{
		UserId:    req.UserId,
		MessageId: req.MessageId,
		RoomCode:  req.RoomCode,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, clip)
}

func (s *EchoApp) getClips(w http.ResponseWriter, r *http.Request) {
	clips, err := s.svc.ListClips(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, clips)
}

// cleanup runs one sweep. Failed steps are reported in the result but do not
// fail the request.
func (s *EchoApp) cleanup(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		errResp := NewInternalServerError(errors.New("cleanup is not configured"))
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	result := s.sweeper.Sweep(r.Context())
	s.writeJson(w, http.StatusOK, result)
}
