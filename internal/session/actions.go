package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chat-gateway/internal/models"
	"chat-gateway/internal/pagination"
	"chat-gateway/internal/repositories"
)

func (s *Session) getRooms(ctx context.Context, req *request) (*reply, error) {
	page, err := pagination.ParsePageNumber(req.Fields["page"])
	if err != nil {
		return nil, err
	}

	filter := repositories.RoomFilter{ParticipantID: s.identity.ID}
	if s.profile.allRooms {
		filter = repositories.RoomFilter{}
	}
	data := roomDataset{rooms: s.deps.Rooms, filter: filter, viewer: s.identity.ID}
	cur := pagination.CursorFor[models.RoomSummary](s.cursors, ActionGetRooms, data, s.deps.PageSize)

	result, err := cur.Page(ctx, page)
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusOK, data: result}, nil
}

func (s *Session) joinRoom(ctx context.Context, req *request) (*reply, error) {
	roomID, err := req.intArg("room_pk")
	if err != nil {
		return nil, err
	}
	room, err := s.deps.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	summary, err := s.deps.Rooms.GetRoomSummary(ctx, roomID, s.identity.ID)
	if err != nil {
		return nil, err
	}

	if prev, ok := s.CurrentRoom(); ok {
		s.deps.Bus.Leave(models.RoomGroup(prev.ID), s.conn)
	}
	s.deps.Bus.Join(models.RoomGroup(room.ID), s.conn)
	s.cursors.Drop(ActionGetRoomMessages)
	s.room = inRoom{room: room}

	s.log.Debug("joined room", zap.Int("room_id", room.ID), zap.String("type", string(room.Type)))
	return &reply{status: http.StatusOK, data: summary}, nil
}

func (s *Session) leaveRoom(ctx context.Context, req *request) (*reply, error) {
	room, ok := s.CurrentRoom()
	if !ok {
		return nil, forbidden()
	}
	s.deps.Bus.Leave(models.RoomGroup(room.ID), s.conn)
	s.cursors.Drop(ActionGetRoomMessages)
	s.room = noRoom{}

	return &reply{
		status: http.StatusOK,
		data:   map[string]string{"response": fmt.Sprintf("Left room %d successfully!", room.ID)},
	}, nil
}

func (s *Session) getRoomMessages(ctx context.Context, req *request) (*reply, error) {
	room, ok := s.CurrentRoom()
	if !ok {
		return nil, forbidden()
	}
	page, err := pagination.ParsePageNumber(req.Fields["page"])
	if err != nil {
		return nil, err
	}

	data := messageDataset{messages: s.deps.Messages, roomID: room.ID}
	cur := pagination.CursorFor[models.Message](s.cursors, ActionGetRoomMessages, data, s.deps.PageSize)

	result, err := cur.Page(ctx, page)
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusOK, data: result}, nil
}

func (s *Session) createMessage(ctx context.Context, req *request) (*reply, error) {
	room, ok := s.CurrentRoom()
	if !ok {
		return nil, forbidden()
	}
	text, err := req.stringArg("msg_text")
	if err != nil {
		return nil, err
	}
	attachmentIDs, err := req.intsArg("attachments")
	if err != nil {
		return nil, err
	}
	attachmentIDs = repositories.UniqueIDs(attachmentIDs)
	if strings.TrimSpace(text) == "" && len(attachmentIDs) == 0 {
		return nil, badRequest("msg_text must not be empty!")
	}

	if len(attachmentIDs) > 0 {
		if err := s.checkAttachments(ctx, attachmentIDs); err != nil {
			return nil, err
		}
	}

	msg, err := s.deps.Messages.CreateMessage(ctx, models.NewMessage{
		RoomID:        room.ID,
		UserID:        s.identity.ID,
		Text:          text,
		AttachmentIDs: attachmentIDs,
	})
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusCreated, data: msg, groups: s.recipients(room)}, nil
}

// checkAttachments verifies every id names a valid dangling attachment.
func (s *Session) checkAttachments(ctx context.Context, ids []int) error {
	found, err := s.deps.Attachments.GetDanglingAttachments(ctx, ids)
	if err != nil {
		return err
	}
	have := make([]int, len(found))
	for i, a := range found {
		have[i] = a.ID
	}
	if missing := repositories.MissingIDs(ids, have); len(missing) > 0 {
		return &repositories.MissingError{Kind: "attachments", IDs: missing}
	}
	if s.deps.Validator == nil {
		return nil
	}
	for _, a := range found {
		if err := s.deps.Validator.Validate(a); err != nil {
			return badRequest("%s", err.Error())
		}
	}
	return nil
}

func (s *Session) editMessage(ctx context.Context, req *request) (*reply, error) {
	room, ok := s.CurrentRoom()
	if !ok {
		return nil, forbidden()
	}
	msgID, err := req.intArg("msg_id")
	if err != nil {
		return nil, err
	}
	text, err := req.stringArg("edited_msg_text")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, badRequest("edited_msg_text must not be empty!")
	}

	msg, err := s.deps.Messages.EditMessage(ctx, msgID, s.identity.ID, room.ID, text)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil, notFound("Message with id %d not found!", msgID)
	}
	if err != nil {
		return nil, err
	}
	return &reply{
		status: http.StatusOK,
		data:   models.EditedMessage{ID: msg.ID, RoomID: msg.RoomID, Text: msg.Text},
		groups: s.recipients(room),
	}, nil
}

func (s *Session) deleteMessages(ctx context.Context, req *request) (*reply, error) {
	room, ok := s.CurrentRoom()
	if !ok {
		return nil, forbidden()
	}
	ids, err := req.intsArg("msg_id_list")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, badRequest("msg_id_list must not be empty!")
	}

	deleted, err := s.deps.Messages.DeleteMessages(ctx, ids, s.identity.ID, room.ID)
	if err != nil {
		return nil, err
	}
	return &reply{
		status: http.StatusOK,
		data:   models.DeletedMessages{MessageIDs: deleted, RoomID: room.ID},
		groups: s.recipients(room),
	}, nil
}

func (s *Session) getSupportRoom(ctx context.Context, req *request) (*reply, error) {
	summary, created, err := s.deps.Rooms.GetOrCreateSupportRoom(ctx, s.identity.ID)
	if err != nil {
		return nil, err
	}
	s.memberships[summary.ID] = struct{}{}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.log.Info("support room created", zap.Int("room_id", summary.ID))
	}
	return &reply{status: status, data: summary}, nil
}

func (s *Session) addFavorite(ctx context.Context, req *request) (*reply, error) {
	roomID, err := req.intArg("room_pk")
	if err != nil {
		return nil, err
	}
	fav, err := s.deps.Favorites.AddFavorite(ctx, s.identity.ID, roomID)
	if err != nil {
		return nil, err
	}
	return &reply{status: http.StatusCreated, data: fav}, nil
}

func (s *Session) removeFavorite(ctx context.Context, req *request) (*reply, error) {
	roomID, err := req.intArg("room_pk")
	if err != nil {
		return nil, err
	}
	if err := s.deps.Favorites.RemoveFavorite(ctx, s.identity.ID, roomID); err != nil {
		return nil, err
	}
	return &reply{status: http.StatusOK, data: map[string]int{"room_id": roomID}}, nil
}
