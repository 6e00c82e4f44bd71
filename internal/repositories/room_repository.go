package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-gateway/internal/models"
)

// supportLockSpace namespaces the advisory locks that serialize support
// room allocation per user.
const supportLockSpace = 7301

const supportRoomAttempts = 3

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetRoom returns a room with its participants.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, type, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, err
	}
	if err := r.db.SelectContext(ctx, &room.Participants, `SELECT user_id FROM room_participants WHERE room_id=$1 ORDER BY user_id`, roomID); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// ListRoomIDsForUser returns the ids of every room the user participates in.
func (r *RoomRepo) ListRoomIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT room_id FROM room_participants WHERE user_id=$1 ORDER BY room_id`, userID)
	return ids, err
}

// CountRooms counts the rooms matching filter.
func (r *RoomRepo) CountRooms(ctx context.Context, filter RoomFilter) (int, error) {
	var count int
	if filter.ParticipantID == 0 {
		err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM rooms`)
		return count, err
	}
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM room_participants WHERE user_id=$1`, filter.ParticipantID)
	return count, err
}

// ListRooms returns one window of rooms ordered by latest activity, rooms
// without messages last.
func (r *RoomRepo) ListRooms(ctx context.Context, filter RoomFilter, viewerID, offset, limit int) ([]models.RoomSummary, error) {
	query := `SELECT r.id, r.type, r.created_at
        FROM rooms r
        LEFT JOIN LATERAL (
            SELECT MAX(m.created_at) AS last_at FROM messages m WHERE m.room_id = r.id
        ) lm ON TRUE
        WHERE $1 = 0 OR EXISTS (
            SELECT 1 FROM room_participants rp WHERE rp.room_id = r.id AND rp.user_id = $1
        )
        ORDER BY lm.last_at DESC NULLS LAST, r.id ASC
        OFFSET $2 LIMIT $3`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, filter.ParticipantID, offset, limit); err != nil {
		return nil, err
	}
	return r.annotate(ctx, rooms, viewerID)
}

// GetRoomSummary returns a single room annotated for viewerID.
func (r *RoomRepo) GetRoomSummary(ctx context.Context, roomID, viewerID int) (models.RoomSummary, error) {
	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return models.RoomSummary{}, err
	}
	summaries, err := r.annotate(ctx, []models.Room{room}, viewerID)
	if err != nil {
		return models.RoomSummary{}, err
	}
	return summaries[0], nil
}

// GetOrCreateSupportRoom returns the user's support room, creating it when
// missing. Concurrent callers for the same user are serialized by an
// advisory lock so at most one room is ever created.
func (r *RoomRepo) GetOrCreateSupportRoom(ctx context.Context, userID int) (models.RoomSummary, bool, error) {
	roomID, created, err := retryAllocation(supportRoomAttempts, func() (int, bool, error) {
		return r.allocateSupportRoom(ctx, userID)
	})
	if err != nil {
		return models.RoomSummary{}, false, err
	}

	summary, err := r.GetRoomSummary(ctx, roomID, userID)
	return summary, created, err
}

// retryAllocation runs allocate until it succeeds, fails with a
// non-retryable error, or runs out of attempts. Exhausted retries are
// reported as ErrSupportRoomConflict.
func retryAllocation(attempts int, allocate func() (int, bool, error)) (int, bool, error) {
	var (
		roomID  int
		created bool
		err     error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		roomID, created, err = allocate()
		if err == nil || !isRetryable(err) {
			break
		}
	}
	if err != nil {
		if isRetryable(err) {
			return 0, false, fmt.Errorf("%w: %v", ErrSupportRoomConflict, err)
		}
		return 0, false, err
	}
	return roomID, created, nil
}

func (r *RoomRepo) allocateSupportRoom(ctx context.Context, userID int) (int, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, supportLockSpace, userID); err != nil {
		return 0, false, err
	}

	var roomID int
	err = tx.GetContext(ctx, &roomID, `SELECT r.id FROM rooms r
        JOIN room_participants rp ON rp.room_id = r.id
        WHERE r.type = $1 AND rp.user_id = $2
        ORDER BY r.id LIMIT 1`, models.RoomTypeSupport, userID)
	if err == nil {
		return roomID, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	if err := tx.GetContext(ctx, &roomID, `INSERT INTO rooms (type) VALUES ($1) RETURNING id`, models.RoomTypeSupport); err != nil {
		return 0, false, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`, roomID, userID); err != nil {
		return 0, false, err
	}
	return roomID, true, tx.Commit()
}

// DeleteEmptyRooms removes rooms that have no participants left.
func (r *RoomRepo) DeleteEmptyRooms(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms r
        WHERE NOT EXISTS (SELECT 1 FROM room_participants rp WHERE rp.room_id = r.id)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type interlocutorRow struct {
	RoomID    int            `db:"room_id"`
	UserID    int            `db:"user_id"`
	Fullname  string         `db:"fullname"`
	IsStaff   bool           `db:"is_staff"`
	BrandID   sql.NullInt64  `db:"brand_id"`
	BrandName sql.NullString `db:"brand_name"`
}

// annotate attaches last messages, interlocutors and the favorite flag.
func (r *RoomRepo) annotate(ctx context.Context, rooms []models.Room, viewerID int) ([]models.RoomSummary, error) {
	summaries := make([]models.RoomSummary, len(rooms))
	if len(rooms) == 0 {
		return summaries, nil
	}

	ids := make([]int, len(rooms))
	index := make(map[int]int, len(rooms))
	for i, room := range rooms {
		ids[i] = room.ID
		index[room.ID] = i
		summaries[i] = models.RoomSummary{
			ID:            room.ID,
			Type:          room.Type,
			Interlocutors: []models.Interlocutor{},
		}
	}

	var last []models.Message
	err := r.db.SelectContext(ctx, &last, `SELECT DISTINCT ON (room_id) id, room_id, user_id, text, created_at
        FROM messages
        WHERE room_id = ANY($1)
        ORDER BY room_id, created_at DESC, id ASC`, int64Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load last messages: %w", err)
	}
	if err := loadAttachments(ctx, r.db, last); err != nil {
		return nil, err
	}
	for i := range last {
		msg := last[i]
		summaries[index[msg.RoomID]].LastMessage = &msg
	}

	var people []interlocutorRow
	err = r.db.SelectContext(ctx, &people, `SELECT rp.room_id, u.id AS user_id, u.fullname, u.is_staff,
            b.id AS brand_id, b.name AS brand_name
        FROM room_participants rp
        JOIN users u ON u.id = rp.user_id
        LEFT JOIN brands b ON b.user_id = u.id
        WHERE rp.room_id = ANY($1) AND rp.user_id <> $2
        ORDER BY rp.room_id, u.id`, int64Array(ids), viewerID)
	if err != nil {
		return nil, fmt.Errorf("load interlocutors: %w", err)
	}
	for _, p := range people {
		person := models.Interlocutor{ID: p.UserID, Fullname: p.Fullname, IsStaff: p.IsStaff}
		if p.BrandID.Valid {
			person.Brand = &models.Brand{ID: int(p.BrandID.Int64), Name: p.BrandName.String}
		}
		i := index[p.RoomID]
		summaries[i].Interlocutors = append(summaries[i].Interlocutors, person)
	}

	var favorites []int
	err = r.db.SelectContext(ctx, &favorites, `SELECT room_id FROM room_favorites WHERE user_id=$1 AND room_id = ANY($2)`, viewerID, int64Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	for _, roomID := range favorites {
		summaries[index[roomID]].IsFavorite = true
	}
	return summaries, nil
}
