package session

import (
	"context"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
)

type roomDataset struct {
	rooms  repositories.RoomRepository
	filter repositories.RoomFilter
	viewer int
}

func (d roomDataset) Count(ctx context.Context) (int, error) {
	return d.rooms.CountRooms(ctx, d.filter)
}

func (d roomDataset) Slice(ctx context.Context, offset, limit int) ([]models.RoomSummary, error) {
	return d.rooms.ListRooms(ctx, d.filter, d.viewer, offset, limit)
}

type messageDataset struct {
	messages repositories.MessageRepository
	roomID   int
}

func (d messageDataset) Count(ctx context.Context) (int, error) {
	return d.messages.CountRoomMessages(ctx, d.roomID)
}

func (d messageDataset) Slice(ctx context.Context, offset, limit int) ([]models.Message, error) {
	return d.messages.ListRoomMessages(ctx, d.roomID, offset, limit)
}
