package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-gateway/internal/models"
)

// AttachmentRepo is a sqlx implementation of AttachmentRepository.
type AttachmentRepo struct {
	db *sqlx.DB
}

// NewAttachmentRepo constructs an AttachmentRepo.
func NewAttachmentRepo(db *sqlx.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

// GetDanglingAttachments returns the attachments among ids that are not yet
// linked to a message.
func (r *AttachmentRepo) GetDanglingAttachments(ctx context.Context, ids []int) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	if len(ids) == 0 {
		return attachments, nil
	}
	err := r.db.SelectContext(ctx, &attachments, `SELECT id, message_id, file, size, mime_type, created_at
        FROM message_attachments
        WHERE id = ANY($1) AND message_id IS NULL
        ORDER BY id`, int64Array(ids))
	return attachments, err
}

// DeleteDanglingAttachments removes unlinked attachments created before olderThan.
func (r *AttachmentRepo) DeleteDanglingAttachments(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_attachments WHERE message_id IS NULL AND created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
