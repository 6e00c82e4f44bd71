package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
)

// MemoryStore is an in-memory implementation of every repository, used by
// tests that exercise whole conversations.
type MemoryStore struct {
	mu          sync.Mutex
	nextID      int
	users       map[int]models.Identity
	brands      map[int]models.Brand
	rooms       map[int]*models.Room
	messages    map[int]*models.Message
	attachments map[int]*models.Attachment
	favorites   map[[2]int]models.Favorite
	watchers    []chan models.IdentityEvent
	clock       time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int]models.Identity),
		brands:      make(map[int]models.Brand),
		rooms:       make(map[int]*models.Room),
		messages:    make(map[int]*models.Message),
		attachments: make(map[int]*models.Attachment),
		favorites:   make(map[[2]int]models.Favorite),
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *MemoryStore) id() int {
	s.nextID++
	return s.nextID
}

// tick returns strictly increasing timestamps.
func (s *MemoryStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// AddUser stores identity, assigning an id when zero. A non-empty brand
// name creates a brand profile.
func (s *MemoryStore) AddUser(identity models.Identity, brand string) models.Identity {
	s.mu.Lock()
	if identity.ID == 0 {
		identity.ID = s.id()
	}
	if brand != "" {
		s.brands[identity.ID] = models.Brand{ID: s.id(), Name: brand}
		identity.HasBrand = true
	}
	s.users[identity.ID] = identity
	s.mu.Unlock()

	s.emit(models.IdentityEvent{Kind: models.IdentityCreated, UserID: identity.ID, IsStaff: identity.IsStaff && identity.IsActive})
	return identity
}

// SetStaff changes the staff flag of a user and emits the matching event.
func (s *MemoryStore) SetStaff(userID int, staff bool) {
	s.mu.Lock()
	identity := s.users[userID]
	identity.IsStaff = staff
	s.users[userID] = identity
	s.mu.Unlock()

	s.emit(models.IdentityEvent{Kind: models.IdentityUpdated, UserID: userID, IsStaff: staff && identity.IsActive})
}

// AddRoom creates a room with the given participants.
func (s *MemoryStore) AddRoom(typ models.RoomType, participants ...int) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := &models.Room{ID: s.id(), Type: typ, CreatedAt: s.tick(), Participants: append([]int(nil), participants...)}
	sort.Ints(room.Participants)
	s.rooms[room.ID] = room
	return cloneRoom(room)
}

// RemoveParticipant drops userID from a room.
func (s *MemoryStore) RemoveParticipant(roomID, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	kept := room.Participants[:0]
	for _, id := range room.Participants {
		if id != userID {
			kept = append(kept, id)
		}
	}
	room.Participants = kept
}

// AddMessage stores a message directly.
func (s *MemoryStore) AddMessage(roomID, userID int, text string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	author := userID
	msg := &models.Message{ID: s.id(), RoomID: roomID, UserID: &author, Text: text, CreatedAt: s.tick()}
	s.messages[msg.ID] = msg
	return s.withAttachments(*msg)
}

// AddAttachment stores a dangling attachment.
func (s *MemoryStore) AddAttachment(file string, size int64, mimeType string, createdAt time.Time) models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Attachment{ID: s.id(), File: file, Size: size, MimeType: mimeType, CreatedAt: createdAt}
	s.attachments[a.ID] = a
	return *a
}

// Message returns a stored message.
func (s *MemoryStore) Message(id int) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return models.Message{}, false
	}
	return s.withAttachments(*msg), true
}

// RoomCount returns how many rooms of typ exist.
func (s *MemoryStore) RoomCount(typ models.RoomType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, room := range s.rooms {
		if room.Type == typ {
			n++
		}
	}
	return n
}

// AttachmentCount returns how many attachments are stored.
func (s *MemoryStore) AttachmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attachments)
}

func (s *MemoryStore) emit(ev models.IdentityEvent) {
	s.mu.Lock()
	watchers := append([]chan models.IdentityEvent(nil), s.watchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		select {
		case w <- ev:
		default:
		}
	}
}

func cloneRoom(room *models.Room) models.Room {
	out := *room
	out.Participants = append([]int(nil), room.Participants...)
	return out
}

func (s *MemoryStore) withAttachments(msg models.Message) models.Message {
	msg.Attachments = []models.Attachment{}
	ids := make([]int, 0)
	for id, a := range s.attachments {
		if a.MessageID != nil && *a.MessageID == msg.ID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		msg.Attachments = append(msg.Attachments, *s.attachments[id])
	}
	return msg
}

// GetRoom implements repositories.RoomRepository.
func (s *MemoryStore) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (s *MemoryStore) ListRoomIDsForUser(ctx context.Context, userID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, room := range s.rooms {
		if room.HasParticipant(userID) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *MemoryStore) filterRooms(filter repositories.RoomFilter) []*models.Room {
	var out []*models.Room
	for _, room := range s.rooms {
		if filter.ParticipantID == 0 || room.HasParticipant(filter.ParticipantID) {
			out = append(out, room)
		}
	}
	return out
}

func (s *MemoryStore) CountRooms(ctx context.Context, filter repositories.RoomFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filterRooms(filter)), nil
}

func (s *MemoryStore) lastMessage(roomID int) *models.Message {
	var last *models.Message
	for _, msg := range s.messages {
		if msg.RoomID != roomID {
			continue
		}
		if last == nil || msg.CreatedAt.After(last.CreatedAt) || (msg.CreatedAt.Equal(last.CreatedAt) && msg.ID < last.ID) {
			last = msg
		}
	}
	return last
}

func (s *MemoryStore) ListRooms(ctx context.Context, filter repositories.RoomFilter, viewerID, offset, limit int) ([]models.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := s.filterRooms(filter)
	sort.Slice(rooms, func(i, j int) bool {
		li, lj := s.lastMessage(rooms[i].ID), s.lastMessage(rooms[j].ID)
		switch {
		case li != nil && lj != nil && !li.CreatedAt.Equal(lj.CreatedAt):
			return li.CreatedAt.After(lj.CreatedAt)
		case li != nil && lj == nil:
			return true
		case li == nil && lj != nil:
			return false
		}
		return rooms[i].ID < rooms[j].ID
	})

	out := []models.RoomSummary{}
	for i := offset; i < len(rooms) && i < offset+limit; i++ {
		out = append(out, s.summary(rooms[i], viewerID))
	}
	return out, nil
}

func (s *MemoryStore) summary(room *models.Room, viewerID int) models.RoomSummary {
	summary := models.RoomSummary{ID: room.ID, Type: room.Type, Interlocutors: []models.Interlocutor{}}
	if last := s.lastMessage(room.ID); last != nil {
		msg := s.withAttachments(*last)
		summary.LastMessage = &msg
	}
	for _, id := range room.Participants {
		if id == viewerID {
			continue
		}
		user := s.users[id]
		person := models.Interlocutor{ID: id, Fullname: user.Fullname, IsStaff: user.IsStaff}
		if brand, ok := s.brands[id]; ok {
			b := brand
			person.Brand = &b
		}
		summary.Interlocutors = append(summary.Interlocutors, person)
	}
	_, summary.IsFavorite = s.favorites[[2]int{viewerID, room.ID}]
	return summary
}

func (s *MemoryStore) GetRoomSummary(ctx context.Context, roomID, viewerID int) (models.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.RoomSummary{}, repositories.ErrRoomNotFound
	}
	return s.summary(room, viewerID), nil
}

func (s *MemoryStore) GetOrCreateSupportRoom(ctx context.Context, userID int) (models.RoomSummary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Room
	for _, room := range s.rooms {
		if room.IsSupport() && room.HasParticipant(userID) && (found == nil || room.ID < found.ID) {
			found = room
		}
	}
	if found != nil {
		return s.summary(found, userID), false, nil
	}
	room := &models.Room{ID: s.id(), Type: models.RoomTypeSupport, CreatedAt: s.tick(), Participants: []int{userID}}
	s.rooms[room.ID] = room
	return s.summary(room, userID), true, nil
}

func (s *MemoryStore) DeleteEmptyRooms(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, room := range s.rooms {
		if len(room.Participants) > 0 {
			continue
		}
		delete(s.rooms, id)
		for mid, msg := range s.messages {
			if msg.RoomID == id {
				delete(s.messages, mid)
			}
		}
		n++
	}
	return n, nil
}

// CountRoomMessages implements repositories.MessageRepository.
func (s *MemoryStore) CountRoomMessages(ctx context.Context, roomID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msg := range s.messages {
		if msg.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListRoomMessages(ctx context.Context, roomID, offset, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []*models.Message
	for _, msg := range s.messages {
		if msg.RoomID == roomID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	out := []models.Message{}
	for i := offset; i < len(msgs) && i < offset+limit; i++ {
		out = append(out, s.withAttachments(*msgs[i]))
	}
	return out, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[in.RoomID]; !ok {
		return models.Message{}, repositories.ErrRoomNotFound
	}
	ids := repositories.UniqueIDs(in.AttachmentIDs)
	var dangling []int
	for _, id := range ids {
		if a, ok := s.attachments[id]; ok && a.MessageID == nil {
			dangling = append(dangling, id)
		}
	}
	if missing := repositories.MissingIDs(ids, dangling); len(missing) > 0 {
		return models.Message{}, &repositories.MissingError{Kind: "attachments", IDs: missing}
	}

	author := in.UserID
	msg := &models.Message{ID: s.id(), RoomID: in.RoomID, UserID: &author, Text: in.Text, CreatedAt: s.tick()}
	s.messages[msg.ID] = msg
	for _, id := range ids {
		messageID := msg.ID
		s.attachments[id].MessageID = &messageID
	}
	return s.withAttachments(*msg), nil
}

func (s *MemoryStore) EditMessage(ctx context.Context, messageID, authorID, roomID int, text string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.RoomID != roomID || !msg.AuthoredBy(authorID) {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	msg.Text = text
	return s.withAttachments(*msg), nil
}

func (s *MemoryStore) DeleteMessages(ctx context.Context, messageIDs []int, authorID, roomID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := repositories.UniqueIDs(messageIDs)
	var owned []int
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok && msg.RoomID == roomID && msg.AuthoredBy(authorID) {
			owned = append(owned, id)
		}
	}
	if missing := repositories.MissingIDs(ids, owned); len(missing) > 0 {
		return nil, &repositories.MissingError{Kind: "messages", IDs: missing}
	}
	for _, id := range ids {
		delete(s.messages, id)
		for aid, a := range s.attachments {
			if a.MessageID != nil && *a.MessageID == id {
				delete(s.attachments, aid)
			}
		}
	}
	return ids, nil
}

// GetDanglingAttachments implements repositories.AttachmentRepository.
func (s *MemoryStore) GetDanglingAttachments(ctx context.Context, ids []int) ([]models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Attachment{}
	for _, id := range repositories.UniqueIDs(ids) {
		if a, ok := s.attachments[id]; ok && a.MessageID == nil {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteDanglingAttachments(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.attachments {
		if a.MessageID == nil && a.CreatedAt.Before(olderThan) {
			delete(s.attachments, id)
			n++
		}
	}
	return n, nil
}

// AddFavorite implements repositories.FavoriteRepository.
func (s *MemoryStore) AddFavorite(ctx context.Context, userID, roomID int) (models.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return models.Favorite{}, repositories.ErrRoomNotFound
	}
	key := [2]int{userID, roomID}
	if _, ok := s.favorites[key]; ok {
		return models.Favorite{}, repositories.ErrFavoriteExists
	}
	fav := models.Favorite{ID: s.id(), UserID: userID, RoomID: roomID}
	s.favorites[key] = fav
	return fav, nil
}

func (s *MemoryStore) RemoveFavorite(ctx context.Context, userID, roomID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int{userID, roomID}
	if _, ok := s.favorites[key]; !ok {
		return repositories.ErrFavoriteNotFound
	}
	delete(s.favorites, key)
	return nil
}

// GetIdentity implements repositories.UserRepository.
func (s *MemoryStore) GetIdentity(ctx context.Context, userID int) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.users[userID]
	if !ok {
		return models.Identity{}, repositories.ErrUserNotFound
	}
	return identity, nil
}

func (s *MemoryStore) ListStaffIDs(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, u := range s.users {
		if u.IsStaff && u.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// WatchIdentities returns a buffered stream of identity events. Events
// beyond the buffer are dropped for that watcher.
func (s *MemoryStore) WatchIdentities(ctx context.Context) (<-chan models.IdentityEvent, error) {
	ch := make(chan models.IdentityEvent, 64)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch, nil
}

var (
	_ repositories.RoomRepository       = (*MemoryStore)(nil)
	_ repositories.MessageRepository    = (*MemoryStore)(nil)
	_ repositories.AttachmentRepository = (*MemoryStore)(nil)
	_ repositories.FavoriteRepository   = (*MemoryStore)(nil)
	_ repositories.UserRepository       = (*MemoryStore)(nil)
)
