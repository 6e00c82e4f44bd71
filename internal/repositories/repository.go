package repositories

import (
	"context"
	"time"

	"chat-gateway/internal/models"
)

// RoomFilter narrows room listings. A zero ParticipantID lists every room.
type RoomFilter struct {
	ParticipantID int
}

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	ListRoomIDsForUser(ctx context.Context, userID int) ([]int, error)
	CountRooms(ctx context.Context, filter RoomFilter) (int, error)
	ListRooms(ctx context.Context, filter RoomFilter, viewerID, offset, limit int) ([]models.RoomSummary, error)
	GetRoomSummary(ctx context.Context, roomID, viewerID int) (models.RoomSummary, error)
	GetOrCreateSupportRoom(ctx context.Context, userID int) (models.RoomSummary, bool, error)
	DeleteEmptyRooms(ctx context.Context) (int64, error)
}

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CountRoomMessages(ctx context.Context, roomID int) (int, error)
	ListRoomMessages(ctx context.Context, roomID, offset, limit int) ([]models.Message, error)
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	EditMessage(ctx context.Context, messageID, authorID, roomID int, text string) (models.Message, error)
	DeleteMessages(ctx context.Context, messageIDs []int, authorID, roomID int) ([]int, error)
}

// AttachmentRepository covers dangling attachment lookup and cleanup.
type AttachmentRepository interface {
	GetDanglingAttachments(ctx context.Context, ids []int) ([]models.Attachment, error)
	DeleteDanglingAttachments(ctx context.Context, olderThan time.Time) (int64, error)
}

// FavoriteRepository stores per-user favorite rooms.
type FavoriteRepository interface {
	AddFavorite(ctx context.Context, userID, roomID int) (models.Favorite, error)
	RemoveFavorite(ctx context.Context, userID, roomID int) error
}

// UserRepository resolves identities and streams their lifecycle events.
type UserRepository interface {
	GetIdentity(ctx context.Context, userID int) (models.Identity, error)
	ListStaffIDs(ctx context.Context) ([]int, error)
	WatchIdentities(ctx context.Context) (<-chan models.IdentityEvent, error)
}
