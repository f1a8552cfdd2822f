package database

import (
	"context"
	"fmt"
	"time"
)

func (db *PgRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *PgRepository) listRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

// ListAbandonedRooms returns rooms created before createdBefore that have no
// online member seen since activeSince.
func (db *PgRepository) ListAbandonedRooms(ctx context.Context, activeSince, createdBefore time.Time) ([]Room, error) {
	return db.listRooms(ctx,
		"SELECT "+roomColumns+" FROM rooms r WHERE r.created_at < $2 AND NOT EXISTS ("+
			"SELECT 1 FROM room_users u WHERE u.room_id = r.id AND u.is_online = TRUE AND u.last_seen >= $1)",
		activeSince,
		createdBefore,
	)
}

func (db *PgRepository) ListExpiredRooms(ctx context.Context, now time.Time) ([]Room, error) {
	return db.listRooms(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE expires_at <= $1",
		now,
	)
}

func (db *PgRepository) DeleteRoomReactions(ctx context.Context, roomId string) (int64, error) {
	return db.exec(ctx,
		"DELETE FROM reactions WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)",
		roomId,
	)
}

func (db *PgRepository) DeleteRoomMessages(ctx context.Context, roomId string) (int64, error) {
	return db.exec(ctx, "DELETE FROM messages WHERE room_id = $1", roomId)
}

func (db *PgRepository) DeleteRoomUsers(ctx context.Context, roomId string) (int64, error) {
	return db.exec(ctx, "DELETE FROM room_users WHERE room_id = $1", roomId)
}

func (db *PgRepository) DeleteRoomTyping(ctx context.Context, roomId string) (int64, error) {
	return db.exec(ctx, "DELETE FROM typing_indicators WHERE room_id = $1", roomId)
}

func (db *PgRepository) DeleteRoom(ctx context.Context, roomId string) (int64, error) {
	return db.exec(ctx, "DELETE FROM rooms WHERE id = $1", roomId)
}

func (db *PgRepository) DeleteClipsByRoomCode(ctx context.Context, code string) (int64, error) {
	return db.exec(ctx, "DELETE FROM clips WHERE room_code = $1", code)
}

func (db *PgRepository) DeleteExpiredReactions(ctx context.Context, now time.Time) (int64, error) {
	return db.exec(ctx,
		"DELETE FROM reactions WHERE message_id IN (SELECT id FROM messages WHERE expires_at <= $1)",
		now,
	)
}

func (db *PgRepository) DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	return db.exec(ctx, "DELETE FROM messages WHERE expires_at <= $1", now)
}

func (db *PgRepository) DeleteExpiredDirectMessages(ctx context.Context, now time.Time) (int64, error) {
	return db.exec(ctx, "DELETE FROM direct_messages WHERE expires_at <= $1", now)
}

func (db *PgRepository) DeleteStaleTyping(ctx context.Context, before time.Time) (int64, error) {
	return db.exec(ctx, "DELETE FROM typing_indicators WHERE started_at < $1", before)
}

func (db *PgRepository) MarkStaleRoomUsersOffline(ctx context.Context, before time.Time) (int64, error) {
	return db.exec(ctx,
		"UPDATE room_users SET is_online = FALSE WHERE is_online = TRUE AND last_seen < $1",
		before,
	)
}

// DeleteOrphans removes children whose parent row no longer exists. Messages
// go first so that their reactions are caught by the following statement.
func (db *PgRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	queries := []string{
		"DELETE FROM messages m WHERE NOT EXISTS (SELECT 1 FROM rooms r WHERE r.id = m.room_id)",
		"DELETE FROM reactions x WHERE NOT EXISTS (SELECT 1 FROM messages m WHERE m.id = x.message_id)",
		"DELETE FROM room_users u WHERE NOT EXISTS (SELECT 1 FROM rooms r WHERE r.id = u.room_id)",
		"DELETE FROM typing_indicators t WHERE NOT EXISTS (SELECT 1 FROM rooms r WHERE r.id = t.room_id)",
	}

	var total int64
	for _, q := range queries {
		n, err := db.exec(ctx, q)
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}
