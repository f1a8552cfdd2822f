package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/ids"
	"github.com/npezzotti/go-echo/pkg/types"
)

// NormalizeRoomCode trims and upper-cases code and checks that it is made of
// ASCII letters and digits only.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", required("roomCode")
	}
	if len(code) > MaxRoomCodeLength {
		return "", invalid("roomCode", "must be at most 32 characters")
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", invalid("roomCode", "must contain only letters and digits")
		}
	}
	return code, nil
}

type CreateRoomParams struct {
	Code      string
	CreatedBy string
}

// CreateRoom returns the live room holding the code, creating it first when
// there is none. An empty code gets a random one.
func (s *Service) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, bool, error) {
	code := params.Code
	if strings.TrimSpace(code) == "" {
		generated, err := ids.NewRoomCode()
		if err != nil {
			return types.Room{}, false, err
		}
		code = generated
	}

	code, err := NormalizeRoomCode(code)
	if err != nil {
		return types.Room{}, false, err
	}

	room, created, err := s.createRoom(ctx, code, params.CreatedBy)
	if err != nil {
		return types.Room{}, false, err
	}

	if created {
		s.logger.Printf("created room %s", room.Code)
	}

	return toRoom(room), created, nil
}

func (s *Service) createRoom(ctx context.Context, code, createdBy string) (database.Room, bool, error) {
	id, err := ids.NewId()
	if err != nil {
		return database.Room{}, false, err
	}

	if createdBy == "" {
		createdBy = DefaultRoomCreator
	}

	now := s.now()
	room, created, err := s.repo.CreateRoom(ctx, database.CreateRoomParams{
		Id:        id,
		Code:      code,
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(RoomTTL),
	})
	if err != nil {
		return database.Room{}, false, storeErr("create room", err)
	}

	return room, created, nil
}

func (s *Service) GetRoom(ctx context.Context, code string) (types.Room, error) {
	code, err := NormalizeRoomCode(code)
	if err != nil {
		return types.Room{}, err
	}

	room, err := s.repo.GetRoomByCode(ctx, code, s.now())
	if err != nil {
		return types.Room{}, storeErr("get room", err)
	}

	return toRoom(room), nil
}

// resolveRoom looks up the live room for code and creates it when absent.
// Join, poll, send and typing all go through here.
func (s *Service) resolveRoom(ctx context.Context, code string) (database.Room, error) {
	code, err := NormalizeRoomCode(code)
	if err != nil {
		return database.Room{}, err
	}

	room, err := s.repo.GetRoomByCode(ctx, code, s.now())
	if err == nil {
		return room, nil
	}
	if err = storeErr("get room", err); !errors.Is(err, ErrNotFound) {
		return database.Room{}, err
	}

	room, created, err := s.createRoom(ctx, code, "")
	if err != nil {
		return database.Room{}, err
	}
	if created {
		s.logger.Printf("auto-created room %s", room.Code)
	}

	return room, nil
}

type JoinParams struct {
	RoomCode string
	UserId   string
	Username string
}

func (s *Service) Join(ctx context.Context, params JoinParams) (types.JoinResponse, error) {
	if params.UserId == "" {
		return types.JoinResponse{}, required("userId")
	}
	if strings.TrimSpace(params.Username) == "" {
		return types.JoinResponse{}, required("username")
	}

	room, err := s.resolveRoom(ctx, params.RoomCode)
	if err != nil {
		return types.JoinResponse{}, err
	}

	user, err := s.heartbeat(ctx, room.Id, params.UserId, params.Username)
	if err != nil {
		return types.JoinResponse{}, err
	}

	return types.JoinResponse{Room: toRoom(room), User: toUser(user)}, nil
}

// Leave marks the user offline and clears their typing indicator. Leaving a
// room that no longer exists is not an error.
func (s *Service) Leave(ctx context.Context, roomCode, userId string) error {
	if userId == "" {
		return required("userId")
	}

	code, err := NormalizeRoomCode(roomCode)
	if err != nil {
		return err
	}

	room, err := s.repo.GetRoomByCode(ctx, code, s.now())
	if err != nil {
		if err = storeErr("get room", err); errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.repo.SetRoomUserOffline(ctx, room.Id, userId); err != nil {
		return storeErr("leave room", err)
	}
	if err := s.repo.DeleteTyping(ctx, room.Id, userId); err != nil {
		return storeErr("clear typing", err)
	}

	return nil
}

// heartbeat upserts the caller's presence row as online.
func (s *Service) heartbeat(ctx context.Context, roomId, userId, username string) (database.RoomUser, error) {
	id, err := ids.NewId()
	if err != nil {
		return database.RoomUser{}, err
	}

	user, err := s.repo.UpsertRoomUser(ctx, database.UpsertRoomUserParams{
		Id:       id,
		RoomId:   roomId,
		UserId:   userId,
		Username: username,
		Now:      s.now(),
	})
	if err != nil {
		return database.RoomUser{}, storeErr("upsert presence", err)
	}

	return user, nil
}

// touch refreshes an existing presence row without creating one.
func (s *Service) touch(ctx context.Context, roomId, userId string) error {
	if err := s.repo.TouchRoomUser(ctx, roomId, userId, s.now()); err != nil {
		return storeErr("refresh presence", err)
	}
	return nil
}
