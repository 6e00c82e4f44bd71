package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomIDsForUser(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) CountRooms(ctx context.Context, filter repositories.RoomFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *RoomRepositoryMock) ListRooms(ctx context.Context, filter repositories.RoomFilter, viewerID, offset, limit int) ([]models.RoomSummary, error) {
	args := m.Called(ctx, filter, viewerID, offset, limit)
	var list []models.RoomSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.RoomSummary)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoomSummary(ctx context.Context, roomID, viewerID int) (models.RoomSummary, error) {
	args := m.Called(ctx, roomID, viewerID)
	var summary models.RoomSummary
	if val := args.Get(0); val != nil {
		summary = val.(models.RoomSummary)
	}
	return summary, args.Error(1)
}

func (m *RoomRepositoryMock) GetOrCreateSupportRoom(ctx context.Context, userID int) (models.RoomSummary, bool, error) {
	args := m.Called(ctx, userID)
	var summary models.RoomSummary
	if val := args.Get(0); val != nil {
		summary = val.(models.RoomSummary)
	}
	return summary, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) DeleteEmptyRooms(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CountRoomMessages(ctx context.Context, roomID int) (int, error) {
	args := m.Called(ctx, roomID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListRoomMessages(ctx context.Context, roomID, offset, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, offset, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID, authorID, roomID int, text string) (models.Message, error) {
	args := m.Called(ctx, messageID, authorID, roomID, text)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessages(ctx context.Context, messageIDs []int, authorID, roomID int) ([]int, error) {
	args := m.Called(ctx, messageIDs, authorID, roomID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

type AttachmentRepositoryMock struct {
	mock.Mock
}

func (m *AttachmentRepositoryMock) GetDanglingAttachments(ctx context.Context, ids []int) ([]models.Attachment, error) {
	args := m.Called(ctx, ids)
	var list []models.Attachment
	if val := args.Get(0); val != nil {
		list = val.([]models.Attachment)
	}
	return list, args.Error(1)
}

func (m *AttachmentRepositoryMock) DeleteDanglingAttachments(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetIdentity(ctx context.Context, userID int) (models.Identity, error) {
	args := m.Called(ctx, userID)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

func (m *UserRepositoryMock) ListStaffIDs(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *UserRepositoryMock) WatchIdentities(ctx context.Context) (<-chan models.IdentityEvent, error) {
	args := m.Called(ctx)
	var ch <-chan models.IdentityEvent
	if val := args.Get(0); val != nil {
		ch = val.(<-chan models.IdentityEvent)
	}
	return ch, args.Error(1)
}

var (
	_ repositories.RoomRepository       = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository    = (*MessageRepositoryMock)(nil)
	_ repositories.AttachmentRepository = (*AttachmentRepositoryMock)(nil)
	_ repositories.UserRepository       = (*UserRepositoryMock)(nil)
)
