package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-gateway/internal/models"
)

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CountRoomMessages counts the messages of a room.
func (r *MessageRepo) CountRoomMessages(ctx context.Context, roomID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE room_id=$1`, roomID)
	return count, err
}

// ListRoomMessages returns one window of a room's messages, newest first.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID, offset, limit int) ([]models.Message, error) {
	query := `SELECT id, room_id, user_id, text, created_at
        FROM messages
        WHERE room_id=$1
        ORDER BY created_at DESC, id ASC
        OFFSET $2 LIMIT $3`
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, query, roomID, offset, limit); err != nil {
		return nil, err
	}
	if err := loadAttachments(ctx, r.db, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateMessage stores a message and links the given dangling attachments
// to it in one transaction. If any attachment is not dangling the whole
// operation is rolled back with a *MissingError.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (room_id, user_id, text) VALUES ($1, $2, $3)
        RETURNING id, room_id, user_id, text, created_at`, in.RoomID, in.UserID, in.Text).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	msg.Attachments = []models.Attachment{}
	if ids := UniqueIDs(in.AttachmentIDs); len(ids) > 0 {
		err = tx.SelectContext(ctx, &msg.Attachments, `UPDATE message_attachments SET message_id=$1
            WHERE id = ANY($2) AND message_id IS NULL
            RETURNING id, message_id, file, size, mime_type, created_at`, msg.ID, int64Array(ids))
		if err != nil {
			return models.Message{}, fmt.Errorf("link attachments: %w", err)
		}
		if len(msg.Attachments) != len(ids) {
			linked := make([]int, len(msg.Attachments))
			for i, a := range msg.Attachments {
				linked[i] = a.ID
			}
			return models.Message{}, &MissingError{Kind: "attachments", IDs: MissingIDs(ids, linked)}
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// EditMessage replaces the text of a message written by authorID in roomID.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID, authorID, roomID int, text string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET text=$1
        WHERE id=$2 AND user_id=$3 AND room_id=$4
        RETURNING id, room_id, user_id, text, created_at`, text, messageID, authorID, roomID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// DeleteMessages deletes all of messageIDs or none of them. Every id must
// name a message written by authorID in roomID.
func (r *MessageRepo) DeleteMessages(ctx context.Context, messageIDs []int, authorID, roomID int) ([]int, error) {
	ids := UniqueIDs(messageIDs)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var owned []int
	err = tx.SelectContext(ctx, &owned, `SELECT id FROM messages
        WHERE id = ANY($1) AND user_id=$2 AND room_id=$3
        FOR UPDATE`, int64Array(ids), authorID, roomID)
	if err != nil {
		return nil, err
	}
	if missing := MissingIDs(ids, owned); len(missing) > 0 {
		return nil, &MissingError{Kind: "messages", IDs: missing}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ANY($1)`, int64Array(ids)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// loadAttachments fills the Attachments of msgs in place.
func loadAttachments(ctx context.Context, q sqlx.QueryerContext, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int, len(msgs))
	index := make(map[int]int, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		index[msgs[i].ID] = i
		msgs[i].Attachments = []models.Attachment{}
	}

	var attachments []models.Attachment
	err := sqlx.SelectContext(ctx, q, &attachments, `SELECT id, message_id, file, size, mime_type, created_at
        FROM message_attachments
        WHERE message_id = ANY($1)
        ORDER BY id`, int64Array(ids))
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}
	for _, a := range attachments {
		if a.MessageID == nil {
			continue
		}
		i := index[*a.MessageID]
		msgs[i].Attachments = append(msgs[i].Attachments, a)
	}
	return nil
}
