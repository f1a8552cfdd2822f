package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	roomColumns     = "id, code, created_by, created_at, expires_at"
	roomUserColumns = "id, room_id, user_id, username, joined_at, last_seen, is_online"
	messageColumns  = "id, room_id, user_id, username, content, type, created_at, expires_at, edited_at, updated_at, is_deleted"
	dmColumns       = "id, from_user_id, from_username, to_user_id, to_username, content, created_at, expires_at"
	clipColumns     = "id, user_id, message_id, message_content, original_username, room_code, message_created_at, clipped_at"

	// An existing row is only overwritten once it has expired, so a code is
	// held by at most one live room.
	upsertRoomQuery = "INSERT INTO rooms (" + roomColumns + ") VALUES ($1, $2, $3, $4, $5) " +
		"ON CONFLICT (code) DO UPDATE SET id = EXCLUDED.id, created_by = EXCLUDED.created_by, " +
		"created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at " +
		"WHERE rooms.expires_at <= EXCLUDED.created_at RETURNING " + roomColumns

	createRoomAttempts = 3
)

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (Room, error) {
	var r Room
	err := row.Scan(&r.Id, &r.Code, &r.CreatedBy, &r.CreatedAt, &r.ExpiresAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return r, err
}

func scanRoomUser(row scanner) (RoomUser, error) {
	var u RoomUser
	err := row.Scan(&u.Id, &u.RoomId, &u.UserId, &u.Username, &u.JoinedAt, &u.LastSeen, &u.IsOnline)
	u.JoinedAt = u.JoinedAt.UTC()
	u.LastSeen = u.LastSeen.UTC()
	return u, err
}

func scanMessage(row scanner) (Message, error) {
	var (
		m        Message
		editedAt sql.NullTime
	)
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.UserId,
		&m.Username,
		&m.Content,
		&m.Type,
		&m.CreatedAt,
		&m.ExpiresAt,
		&editedAt,
		&m.UpdatedAt,
		&m.IsDeleted,
	)
	if editedAt.Valid {
		t := editedAt.Time.UTC()
		m.EditedAt = &t
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.ExpiresAt = m.ExpiresAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, err
}

func (db *PgRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, bool, error) {
	for attempt := 0; attempt < createRoomAttempts; attempt++ {
		room, err := scanRoom(db.conn.QueryRowContext(ctx, upsertRoomQuery,
			params.Id,
			params.Code,
			params.CreatedBy,
			params.CreatedAt,
			params.ExpiresAt,
		))
		if err == nil {
			return room, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Room{}, false, err
		}

		// A live room holds the code. It can expire and be swept between the
		// two statements, in which case the insert is retried.
		room, err = db.GetRoomByCode(ctx, params.Code, params.CreatedAt)
		if err == nil {
			return room, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Room{}, false, err
		}
	}

	return Room{}, false, fmt.Errorf("create room %q: conflicting writers", params.Code)
}

func (db *PgRepository) GetRoomByCode(ctx context.Context, code string, now time.Time) (Room, error) {
	return scanRoom(db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE code = $1 AND expires_at > $2 LIMIT 1",
		code,
		now,
	))
}

func (db *PgRepository) UpsertRoomUser(ctx context.Context, params UpsertRoomUserParams) (RoomUser, error) {
	return scanRoomUser(db.conn.QueryRowContext(ctx,
		"INSERT INTO room_users ("+roomUserColumns+") VALUES ($1, $2, $3, $4, $5, $5, TRUE) "+
			"ON CONFLICT (room_id, user_id) DO UPDATE SET username = EXCLUDED.username, "+
			"last_seen = EXCLUDED.last_seen, is_online = TRUE RETURNING "+roomUserColumns,
		params.Id,
		params.RoomId,
		params.UserId,
		params.Username,
		params.Now,
	))
}

func (db *PgRepository) TouchRoomUser(ctx context.Context, roomId, userId string, now time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE room_users SET last_seen = $3, is_online = TRUE WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
		now,
	)
	return err
}

func (db *PgRepository) SetRoomUserOffline(ctx context.Context, roomId, userId string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE room_users SET is_online = FALSE WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	)
	return err
}

func (db *PgRepository) ListOnlineRoomUsers(ctx context.Context, roomId string, activeSince time.Time) ([]RoomUser, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+roomUserColumns+" FROM room_users "+
			"WHERE room_id = $1 AND is_online = TRUE AND last_seen >= $2 ORDER BY joined_at, user_id",
		roomId,
		activeSince,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]RoomUser, 0)
	for rows.Next() {
		u, err := scanRoomUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgRepository) CreateMessage(ctx context.Context, msg Message) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		msg.Id,
		msg.RoomId,
		msg.UserId,
		msg.Username,
		msg.Content,
		msg.Type,
		msg.CreatedAt,
		msg.ExpiresAt,
		msg.EditedAt,
		msg.UpdatedAt,
		msg.IsDeleted,
	)
	return err
}

func (db *PgRepository) GetMessage(ctx context.Context, id string, now time.Time) (Message, error) {
	return scanMessage(db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE id = $1 AND is_deleted = FALSE AND expires_at > $2 LIMIT 1",
		id,
		now,
	))
}

func (db *PgRepository) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgRepository) ListRecentMessages(ctx context.Context, roomId string, now time.Time, limit int) ([]Message, error) {
	return db.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM ("+
			"SELECT "+messageColumns+" FROM messages "+
			"WHERE room_id = $1 AND is_deleted = FALSE AND expires_at > $2 ORDER BY id DESC LIMIT $3"+
			") recent ORDER BY id ASC",
		roomId,
		now,
		limit,
	)
}

func (db *PgRepository) ListMessagesAfter(ctx context.Context, roomId, afterId string, now time.Time, limit int) ([]Message, error) {
	return db.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE room_id = $1 AND id > $2 AND is_deleted = FALSE AND expires_at > $3 ORDER BY id ASC LIMIT $4",
		roomId,
		afterId,
		now,
		limit,
	)
}

func (db *PgRepository) ListUpdatedMessages(ctx context.Context, roomId string, since, now time.Time, limit int) ([]Message, error) {
	return db.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE room_id = $1 AND updated_at > $2 AND is_deleted = FALSE AND expires_at > $3 "+
			"ORDER BY updated_at DESC LIMIT $4",
		roomId,
		since,
		now,
		limit,
	)
}

func (db *PgRepository) ListDeletedMessageIds(ctx context.Context, roomId string, since time.Time) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id FROM messages WHERE room_id = $1 AND is_deleted = TRUE AND updated_at > $2 ORDER BY id",
		roomId,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *PgRepository) UpdateMessageContent(ctx context.Context, params EditMessageParams) (Message, error) {
	return scanMessage(db.conn.QueryRowContext(ctx,
		"UPDATE messages SET content = $3, edited_at = $4, updated_at = $4 "+
			"WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE AND expires_at > $4 "+
			"RETURNING "+messageColumns,
		params.MessageId,
		params.UserId,
		params.Content,
		params.Now,
	))
}

func (db *PgRepository) SoftDeleteMessage(ctx context.Context, params SoftDeleteMessageParams) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET is_deleted = TRUE, updated_at = $4 "+
			"WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE AND created_at > $3 AND expires_at > $4",
		params.MessageId,
		params.UserId,
		params.CreatedAfter,
		params.Now,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgRepository) ToggleReaction(ctx context.Context, r Reaction) (added bool, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3",
		r.MessageId,
		r.UserId,
		r.Emoji,
	)
	if err != nil {
		return false, err
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if removed == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO reactions (message_id, user_id, username, emoji, created_at) "+
				"VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING",
			r.MessageId,
			r.UserId,
			r.Username,
			r.Emoji,
			r.CreatedAt,
		)
		if err != nil {
			return false, err
		}
	}

	// Pollers pick up reaction changes through the message's updated_at.
	_, err = tx.ExecContext(ctx,
		"UPDATE messages SET updated_at = $2 WHERE id = $1",
		r.MessageId,
		r.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return removed == 0, nil
}

func (db *PgRepository) ListReactions(ctx context.Context, messageIds []string) ([]Reaction, error) {
	reactions := make([]Reaction, 0)
	if len(messageIds) == 0 {
		return reactions, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT message_id, user_id, username, emoji, created_at FROM reactions "+
			"WHERE message_id = ANY($1) ORDER BY created_at, user_id",
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MessageId, &r.UserId, &r.Username, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		reactions = append(reactions, r)
	}

	return reactions, rows.Err()
}

func (db *PgRepository) UpsertTyping(ctx context.Context, t TypingIndicator) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO typing_indicators (room_id, user_id, username, started_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (room_id, user_id) DO UPDATE SET username = EXCLUDED.username, started_at = EXCLUDED.started_at",
		t.RoomId,
		t.UserId,
		t.Username,
		t.StartedAt,
	)
	return err
}

func (db *PgRepository) DeleteTyping(ctx context.Context, roomId, userId string) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM typing_indicators WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	)
	return err
}

func (db *PgRepository) ListTyping(ctx context.Context, roomId string, since time.Time) ([]TypingIndicator, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT room_id, user_id, username, started_at FROM typing_indicators "+
			"WHERE room_id = $1 AND started_at >= $2 ORDER BY started_at, user_id",
		roomId,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	typing := make([]TypingIndicator, 0)
	for rows.Next() {
		var t TypingIndicator
		if err := rows.Scan(&t.RoomId, &t.UserId, &t.Username, &t.StartedAt); err != nil {
			return nil, fmt.Errorf("scan typing indicator: %w", err)
		}
		t.StartedAt = t.StartedAt.UTC()
		typing = append(typing, t)
	}

	return typing, rows.Err()
}

func (db *PgRepository) CreateDirectMessage(ctx context.Context, dm DirectMessage) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO direct_messages ("+dmColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		dm.Id,
		dm.FromUserId,
		dm.FromUsername,
		dm.ToUserId,
		dm.ToUsername,
		dm.Content,
		dm.CreatedAt,
		dm.ExpiresAt,
	)
	return err
}

// ListDirectMessages returns the user's sent and received direct messages,
// newest first.
func (db *PgRepository) ListDirectMessages(ctx context.Context, userId string, now time.Time, limit int) ([]DirectMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+dmColumns+" FROM direct_messages "+
			"WHERE (to_user_id = $1 OR from_user_id = $1) AND expires_at > $2 "+
			"ORDER BY created_at DESC, id DESC LIMIT $3",
		userId,
		now,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dms := make([]DirectMessage, 0)
	for rows.Next() {
		var dm DirectMessage
		err := rows.Scan(
			&dm.Id,
			&dm.FromUserId,
			&dm.FromUsername,
			&dm.ToUserId,
			&dm.ToUsername,
			&dm.Content,
			&dm.CreatedAt,
			&dm.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		dm.CreatedAt = dm.CreatedAt.UTC()
		dm.ExpiresAt = dm.ExpiresAt.UTC()
		dms = append(dms, dm)
	}

	return dms, rows.Err()
}

func (db *PgRepository) CreateClip(ctx context.Context, c Clip) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO clips ("+clipColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		c.Id,
		c.UserId,
		c.MessageId,
		c.MessageContent,
		c.OriginalUsername,
		c.RoomCode,
		c.MessageCreatedAt,
		c.ClippedAt,
	)
	return err
}

func (db *PgRepository) ListClips(ctx context.Context, userId string) ([]Clip, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+clipColumns+" FROM clips WHERE user_id = $1 ORDER BY clipped_at DESC, id DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clips := make([]Clip, 0)
	for rows.Next() {
		var c Clip
		err := rows.Scan(
			&c.Id,
			&c.UserId,
			&c.MessageId,
			&c.MessageContent,
			&c.OriginalUsername,
			&c.RoomCode,
			&c.MessageCreatedAt,
			&c.ClippedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		c.MessageCreatedAt = c.MessageCreatedAt.UTC()
		c.ClippedAt = c.ClippedAt.UTC()
		clips = append(clips, c)
	}

	return clips, rows.Err()
}
