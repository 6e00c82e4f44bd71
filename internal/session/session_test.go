package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-gateway/internal/attachments"
	"chat-gateway/internal/bus"
	"chat-gateway/internal/mocks"
	"chat-gateway/internal/models"
	"chat-gateway/internal/pagination"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/staff"
	"chat-gateway/internal/telemetry"
)

type frame struct {
	Errors         []string        `json:"errors"`
	Data           json.RawMessage `json:"data"`
	Action         string          `json:"action"`
	ResponseStatus int             `json:"response_status"`
	RequestID      *int64          `json:"request_id"`
}

type testConn struct {
	id     string
	mu     sync.Mutex
	frames []frame
}

func (c *testConn) ID() string { return c.id }

func (c *testConn) Deliver(payload []byte) bool {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return true
}

func (c *testConn) drain() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type harness struct {
	t     *testing.T
	store *mocks.MemoryStore
	bus   *bus.Local
	staff *staff.Registry
	deps  Deps
	conns int
}

func newHarness(t *testing.T) *harness {
	store := mocks.NewMemoryStore()
	b := bus.NewLocal(zap.NewNop())
	registry := staff.NewRegistry(zap.NewNop())
	return &harness{
		t:     t,
		store: store,
		bus:   b,
		staff: registry,
		deps: Deps{
			Rooms:       store,
			Messages:    store,
			Attachments: store,
			Favorites:   store,
			Bus:         b,
			Staff:       registry,
			Validator:   attachments.NewValidator(1024, []string{"image/png"}),
			Log:         zap.NewNop(),
			PageSize:    100,
		},
	}
}

func (h *harness) brandUser(name string) models.Identity {
	return h.store.AddUser(models.Identity{Fullname: name, IsActive: true}, name+" brand")
}

func (h *harness) admin() models.Identity {
	id := h.store.AddUser(models.Identity{Fullname: "admin", IsActive: true, IsStaff: true}, "")
	h.staff.Apply(models.IdentityEvent{Kind: models.IdentityCreated, UserID: id.ID, IsStaff: true})
	return id
}

type client struct {
	s    *Session
	conn *testConn
}

func (h *harness) connect(identity models.Identity, profile *Profile) *client {
	h.conns++
	conn := &testConn{id: fmt.Sprintf("conn-%d", h.conns)}
	s := New(conn, identity, profile, h.deps, "req")
	require.NoError(h.t, s.Open(context.Background()))
	h.t.Cleanup(s.Close)
	return &client{s: s, conn: conn}
}

var nextRequestID int64

// call sends one action and returns the single frame the caller received.
func (c *client) call(t *testing.T, action string, fields map[string]any) frame {
	t.Helper()
	nextRequestID++
	msg := map[string]any{"action": action, "request_id": nextRequestID}
	for k, v := range fields {
		msg[k] = v
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	c.conn.drain()
	c.s.Handle(context.Background(), raw)
	frames := c.conn.drain()
	require.Len(t, frames, 1, "action %s", action)
	require.NotNil(t, frames[0].RequestID)
	assert.Equal(t, nextRequestID, *frames[0].RequestID)
	assert.Equal(t, action, frames[0].Action)
	return frames[0]
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(f.Data, &out))
	return out
}

func requireStatus(t *testing.T, f frame, status int) {
	t.Helper()
	require.Equal(t, status, f.ResponseStatus, "errors: %v", f.Errors)
	if status < 300 {
		assert.Empty(t, f.Errors)
		assert.NotNil(t, f.Errors)
	} else {
		assert.NotEmpty(t, f.Errors)
		assert.Equal(t, "null", string(f.Data))
	}
}

func TestOpenJoinsPersonalGroupAndCloseReleasesIt(t *testing.T) {
	h := newHarness(t)
	user := h.brandUser("alice")
	room := h.store.AddRoom(models.RoomTypeMatch, user.ID)

	c := h.connect(user, UserProfile())
	assert.Equal(t, 1, h.bus.GroupSize(models.PersonalGroup(user.ID)))

	requireStatus(t, c.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)
	requireStatus(t, c.call(t, ActionGetRoomMessages, nil), http.StatusOK)
	assert.Equal(t, 1, h.bus.GroupSize(models.RoomGroup(room.ID)))

	c.s.Close()
	c.s.Close()
	assert.Equal(t, 0, h.bus.GroupSize(models.PersonalGroup(user.ID)))
	assert.Equal(t, 0, h.bus.GroupSize(models.RoomGroup(room.ID)))
	assert.Equal(t, 0, c.s.cursors.Len())
	_, inRoom := c.s.CurrentRoom()
	assert.False(t, inRoom)
}

func TestProfileAccept(t *testing.T) {
	ctx := context.Background()
	brand := models.Identity{ID: 1, IsActive: true, HasBrand: true}
	admin := models.Identity{ID: 2, IsActive: true, IsStaff: true}

	proto, ok := UserProfile().Accept(ctx, brand, []string{"chat", "token"})
	assert.True(t, ok)
	assert.Equal(t, "chat", proto)

	_, ok = UserProfile().Accept(ctx, brand, []string{"admin-chat", "token"})
	assert.False(t, ok)
	_, ok = UserProfile().Accept(ctx, models.Identity{}, []string{"chat"})
	assert.False(t, ok)
	_, ok = UserProfile().Accept(ctx, admin, []string{"chat"})
	assert.False(t, ok)

	proto, ok = AdminProfile().Accept(ctx, admin, []string{"admin-chat", "token"})
	assert.True(t, ok)
	assert.Equal(t, "admin-chat", proto)
	_, ok = AdminProfile().Accept(ctx, brand, []string{"admin-chat"})
	assert.False(t, ok)
}

func TestRoomActionsRequireJoinedRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	msg := h.store.AddMessage(room.ID, alice.ID, "hello")

	a := h.connect(alice, UserProfile())
	b := h.connect(bob, UserProfile())
	requireStatus(t, b.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)

	cases := []struct {
		action string
		fields map[string]any
	}{
		{ActionLeaveRoom, nil},
		{ActionGetRoomMessages, nil},
		{ActionCreateMessage, map[string]any{"msg_text": "hi"}},
		{ActionEditMessage, map[string]any{"msg_id": msg.ID, "edited_msg_text": "changed"}},
		{ActionDeleteMessages, map[string]any{"msg_id_list": []int{msg.ID}}},
	}
	for _, tc := range cases {
		requireStatus(t, a.call(t, tc.action, tc.fields), http.StatusForbidden)
	}

	assert.Empty(t, b.conn.drain())
	stored, ok := h.store.Message(msg.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", stored.Text)
}

func TestJoinRoomMembership(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	foreign := h.store.AddRoom(models.RoomTypeMatch, bob.ID)

	a := h.connect(alice, UserProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": foreign.ID}), http.StatusForbidden)
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": 9999}), http.StatusForbidden)
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": "abc"}), http.StatusBadRequest)

	later := h.store.AddRoom(models.RoomTypeInstant, alice.ID, bob.ID)
	f := a.call(t, ActionJoinRoom, map[string]any{"room_pk": later.ID})
	requireStatus(t, f, http.StatusOK)
	summary := decode[models.RoomSummary](t, f)
	assert.Equal(t, later.ID, summary.ID)
	require.Len(t, summary.Interlocutors, 1)
	assert.Equal(t, bob.ID, summary.Interlocutors[0].ID)
	require.NotNil(t, summary.Interlocutors[0].Brand)
}

func TestJoinRoomSwitchesGroups(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	first := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	second := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)

	a := h.connect(alice, UserProfile())
	b := h.connect(bob, UserProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": first.ID}), http.StatusOK)
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": second.ID}), http.StatusOK)
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": second.ID}), http.StatusOK)
	assert.Equal(t, 0, h.bus.GroupSize(models.RoomGroup(first.ID)))
	assert.Equal(t, 1, h.bus.GroupSize(models.RoomGroup(second.ID)))

	requireStatus(t, b.call(t, ActionJoinRoom, map[string]any{"room_pk": first.ID}), http.StatusOK)
	requireStatus(t, b.call(t, ActionCreateMessage, map[string]any{"msg_text": "anyone?"}), http.StatusCreated)
	assert.Empty(t, a.conn.drain())
}

func TestCreateMessageBroadcastsToRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	carol := h.brandUser("carol")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	h.store.AddRoom(models.RoomTypeMatch, alice.ID, carol.ID)

	a := h.connect(alice, UserProfile())
	b := h.connect(bob, UserProfile())
	c := h.connect(carol, UserProfile())
	adm := h.connect(h.admin(), AdminProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)
	requireStatus(t, b.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)

	f := a.call(t, ActionCreateMessage, map[string]any{"msg_text": "hi bob"})
	requireStatus(t, f, http.StatusCreated)
	msg := decode[models.Message](t, f)
	assert.Equal(t, "hi bob", msg.Text)
	assert.Equal(t, room.ID, msg.RoomID)
	require.NotNil(t, msg.UserID)
	assert.Equal(t, alice.ID, *msg.UserID)
	assert.NotNil(t, msg.Attachments)

	got := b.conn.drain()
	require.Len(t, got, 1)
	assert.Equal(t, http.StatusCreated, got[0].ResponseStatus)
	assert.Equal(t, ActionCreateMessage, got[0].Action)
	assert.Empty(t, c.conn.drain())
	assert.Empty(t, adm.conn.drain())
}

func TestSupportRoomBroadcastReachesStaffOnce(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	admin := h.admin()

	a := h.connect(alice, UserProfile())
	adm1 := h.connect(admin, AdminProfile())
	adm2 := h.connect(admin, AdminProfile())

	f := a.call(t, ActionGetSupportRoom, nil)
	requireStatus(t, f, http.StatusCreated)
	support := decode[models.RoomSummary](t, f)
	assert.Equal(t, models.RoomTypeSupport, support.Type)
	assert.Empty(t, support.Interlocutors)

	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": support.ID}), http.StatusOK)
	requireStatus(t, adm1.call(t, ActionJoinRoom, map[string]any{"room_pk": support.ID}), http.StatusOK)

	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "help"}), http.StatusCreated)
	assert.Len(t, adm1.conn.drain(), 1)
	assert.Len(t, adm2.conn.drain(), 1)
}

func TestSupportBroadcastFollowsStaffChanges(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	helper := h.store.AddUser(models.Identity{Fullname: "helper", IsActive: true}, "")

	a := h.connect(alice, UserProfile())
	watcher := h.connect(helper, UserProfile())

	support := decode[models.RoomSummary](t, a.call(t, ActionGetSupportRoom, nil))
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": support.ID}), http.StatusOK)

	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "one"}), http.StatusCreated)
	assert.Empty(t, watcher.conn.drain())

	h.staff.Apply(models.IdentityEvent{Kind: models.IdentityUpdated, UserID: helper.ID, IsStaff: true})
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "two"}), http.StatusCreated)
	assert.Len(t, watcher.conn.drain(), 1)

	h.staff.Apply(models.IdentityEvent{Kind: models.IdentityUpdated, UserID: helper.ID, IsStaff: false})
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "three"}), http.StatusCreated)
	assert.Empty(t, watcher.conn.drain())
}

func TestAdminWritesOnlyInSupportRooms(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	match := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	support := h.store.AddRoom(models.RoomTypeSupport, alice.ID)

	a := h.connect(alice, UserProfile())
	adm := h.connect(h.admin(), AdminProfile())

	requireStatus(t, adm.call(t, ActionJoinRoom, map[string]any{"room_pk": match.ID}), http.StatusOK)
	requireStatus(t, adm.call(t, ActionGetRoomMessages, nil), http.StatusOK)
	requireStatus(t, adm.call(t, ActionCreateMessage, map[string]any{"msg_text": "nope"}), http.StatusForbidden)
	requireStatus(t, adm.call(t, ActionJoinRoom, map[string]any{"room_pk": 424242}), http.StatusNotFound)

	requireStatus(t, adm.call(t, ActionJoinRoom, map[string]any{"room_pk": support.ID}), http.StatusOK)
	requireStatus(t, adm.call(t, ActionCreateMessage, map[string]any{"msg_text": "how can I help?"}), http.StatusCreated)

	got := a.conn.drain()
	require.Len(t, got, 1)
	assert.Equal(t, http.StatusCreated, got[0].ResponseStatus)
}

func TestAdminGetRoomsListsEveryRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	h.store.AddRoom(models.RoomTypeSupport, alice.ID)
	h.store.AddRoom(models.RoomTypeHelp, bob.ID)

	adm := h.connect(h.admin(), AdminProfile())
	page := decode[pagination.Page[models.RoomSummary]](t, adm.call(t, ActionGetRooms, map[string]any{"page": 1}))
	assert.Equal(t, 3, page.Count)

	a := h.connect(alice, UserProfile())
	page = decode[pagination.Page[models.RoomSummary]](t, a.call(t, ActionGetRooms, nil))
	assert.Equal(t, 2, page.Count)
}

func TestEditMessage(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	other := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	own := h.store.AddMessage(room.ID, alice.ID, "draft")
	foreign := h.store.AddMessage(room.ID, bob.ID, "bob's")
	elsewhere := h.store.AddMessage(other.ID, alice.ID, "elsewhere")

	a := h.connect(alice, UserProfile())
	b := h.connect(bob, UserProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)
	requireStatus(t, b.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)

	f := a.call(t, ActionEditMessage, map[string]any{"msg_id": own.ID, "edited_msg_text": "final"})
	requireStatus(t, f, http.StatusOK)
	edited := decode[models.EditedMessage](t, f)
	assert.Equal(t, models.EditedMessage{ID: own.ID, RoomID: room.ID, Text: "final"}, edited)
	assert.Len(t, b.conn.drain(), 1)

	requireStatus(t, a.call(t, ActionEditMessage, map[string]any{"msg_id": foreign.ID, "edited_msg_text": "hacked"}), http.StatusNotFound)
	requireStatus(t, a.call(t, ActionEditMessage, map[string]any{"msg_id": elsewhere.ID, "edited_msg_text": "moved"}), http.StatusNotFound)
	requireStatus(t, a.call(t, ActionEditMessage, map[string]any{"msg_id": own.ID, "edited_msg_text": " "}), http.StatusBadRequest)
	assert.Empty(t, b.conn.drain())

	stored, _ := h.store.Message(foreign.ID)
	assert.Equal(t, "bob's", stored.Text)
}

func TestDeleteMessagesAllOrNothing(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	first := h.store.AddMessage(room.ID, alice.ID, "one")
	second := h.store.AddMessage(room.ID, alice.ID, "two")
	foreign := h.store.AddMessage(room.ID, bob.ID, "bob")

	a := h.connect(alice, UserProfile())
	b := h.connect(bob, UserProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)
	requireStatus(t, b.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)

	f := a.call(t, ActionDeleteMessages, map[string]any{"msg_id_list": []int{first.ID, foreign.ID}})
	requireStatus(t, f, http.StatusNotFound)
	assert.Contains(t, f.Errors[0], fmt.Sprint(foreign.ID))
	_, ok := h.store.Message(first.ID)
	assert.True(t, ok)
	assert.Empty(t, b.conn.drain())

	requireStatus(t, a.call(t, ActionDeleteMessages, map[string]any{"msg_id_list": []int{}}), http.StatusBadRequest)

	f = a.call(t, ActionDeleteMessages, map[string]any{"msg_id_list": []int{first.ID, second.ID, first.ID}})
	requireStatus(t, f, http.StatusOK)
	deleted := decode[models.DeletedMessages](t, f)
	assert.Equal(t, []int{first.ID, second.ID}, deleted.MessageIDs)
	assert.Equal(t, room.ID, deleted.RoomID)
	assert.Len(t, b.conn.drain(), 1)

	_, ok = h.store.Message(second.ID)
	assert.False(t, ok)
}

func TestGetRoomsPagination(t *testing.T) {
	h := newHarness(t)
	h.deps.PageSize = 2
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	quiet := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	older := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	newer := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	h.store.AddMessage(older.ID, bob.ID, "old")
	h.store.AddMessage(newer.ID, bob.ID, "new")

	a := h.connect(alice, UserProfile())

	first := decode[pagination.Page[models.RoomSummary]](t, a.call(t, ActionGetRooms, map[string]any{"page": 1}))
	assert.Equal(t, 3, first.Count)
	require.Len(t, first.Results, 2)
	assert.Equal(t, newer.ID, first.Results[0].ID)
	assert.Equal(t, older.ID, first.Results[1].ID)
	require.NotNil(t, first.Results[0].LastMessage)
	assert.Equal(t, "new", first.Results[0].LastMessage.Text)
	require.NotNil(t, first.Next)
	assert.Equal(t, 2, *first.Next)

	second := decode[pagination.Page[models.RoomSummary]](t, a.call(t, ActionGetRooms, map[string]any{"page": 2}))
	require.Len(t, second.Results, 1)
	assert.Equal(t, quiet.ID, second.Results[0].ID)
	assert.Nil(t, second.Results[0].LastMessage)
	assert.Nil(t, second.Next)

	f := a.call(t, ActionGetRooms, map[string]any{"page": "abc"})
	requireStatus(t, f, http.StatusBadRequest)
	assert.Equal(t, []string{"Page number must be an integer!"}, f.Errors)

	f = a.call(t, ActionGetRooms, map[string]any{"page": 3})
	requireStatus(t, f, http.StatusBadRequest)
	assert.Equal(t, []string{"Page 3 does not exist!"}, f.Errors)
}

func TestGetRoomsEmpty(t *testing.T) {
	h := newHarness(t)
	a := h.connect(h.brandUser("alice"), UserProfile())

	f := a.call(t, ActionGetRooms, map[string]any{"page": 1})
	requireStatus(t, f, http.StatusOK)
	assert.JSONEq(t, `{"count":0,"results":[],"next":null}`, string(f.Data))
}

func TestGetRoomsCountsOncePerSession(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	rooms := new(mocks.RoomRepositoryMock)
	h.deps.Rooms = rooms

	filter := repositories.RoomFilter{ParticipantID: alice.ID}
	rooms.On("ListRoomIDsForUser", mock.Anything, alice.ID).Return([]int{}, nil)
	rooms.On("CountRooms", mock.Anything, filter).Return(250, nil).Once()
	rooms.On("ListRooms", mock.Anything, filter, alice.ID, 0, 100).Return([]models.RoomSummary{{ID: 1}}, nil).Twice()
	rooms.On("ListRooms", mock.Anything, filter, alice.ID, 200, 50).Return([]models.RoomSummary{{ID: 2}}, nil).Once()

	a := h.connect(alice, UserProfile())
	requireStatus(t, a.call(t, ActionGetRooms, map[string]any{"page": 1}), http.StatusOK)
	requireStatus(t, a.call(t, ActionGetRooms, map[string]any{"page": 1}), http.StatusOK)
	last := decode[pagination.Page[models.RoomSummary]](t, a.call(t, ActionGetRooms, map[string]any{"page": 3}))
	assert.Equal(t, 250, last.Count)
	assert.Nil(t, last.Next)

	rooms.AssertExpectations(t)
}

func TestRoomMessagesCursorResetsOnJoin(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	first := h.store.AddMessage(room.ID, bob.ID, "first")
	second := h.store.AddMessage(room.ID, bob.ID, "second")

	a := h.connect(alice, UserProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)

	page := decode[pagination.Page[models.Message]](t, a.call(t, ActionGetRoomMessages, nil))
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Results, 2)
	assert.Equal(t, second.ID, page.Results[0].ID)
	assert.Equal(t, first.ID, page.Results[1].ID)

	h.store.AddMessage(room.ID, bob.ID, "third")
	page = decode[pagination.Page[models.Message]](t, a.call(t, ActionGetRoomMessages, map[string]any{"page": 1}))
	assert.Equal(t, 2, page.Count)

	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)
	page = decode[pagination.Page[models.Message]](t, a.call(t, ActionGetRoomMessages, nil))
	assert.Equal(t, 3, page.Count)
}

func TestGetSupportRoomIsIdempotent(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	first := h.connect(alice, UserProfile())
	second := h.connect(alice, UserProfile())

	created := first.call(t, ActionGetSupportRoom, nil)
	requireStatus(t, created, http.StatusCreated)
	existing := second.call(t, ActionGetSupportRoom, nil)
	requireStatus(t, existing, http.StatusOK)

	assert.Equal(t, decode[models.RoomSummary](t, created).ID, decode[models.RoomSummary](t, existing).ID)
	assert.Equal(t, 1, h.store.RoomCount(models.RoomTypeSupport))

	adm := h.connect(h.admin(), AdminProfile())
	requireStatus(t, adm.call(t, ActionGetSupportRoom, nil), http.StatusCreated)
	assert.Equal(t, 2, h.store.RoomCount(models.RoomTypeSupport))
}

func TestConcurrentGetSupportRoomCreatesOneRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	clients := make([]*client, 8)
	for i := range clients {
		clients[i] = h.connect(alice, UserProfile())
	}

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(c *client, id int) {
			defer wg.Done()
			c.s.Handle(context.Background(), []byte(fmt.Sprintf(`{"action":%q,"request_id":%d}`, ActionGetSupportRoom, id)))
		}(c, i+1)
	}
	wg.Wait()

	assert.Equal(t, 1, h.store.RoomCount(models.RoomTypeSupport))
	created := 0
	roomIDs := map[int]struct{}{}
	for _, c := range clients {
		frames := c.conn.drain()
		require.Len(t, frames, 1)
		if frames[0].ResponseStatus == http.StatusCreated {
			created++
		} else {
			requireStatus(t, frames[0], http.StatusOK)
		}
		roomIDs[decode[models.RoomSummary](t, frames[0]).ID] = struct{}{}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, roomIDs, 1)
}

func TestRepeatedPageIsIdentical(t *testing.T) {
	h := newHarness(t)
	h.deps.PageSize = 2
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	h.store.AddRoom(models.RoomTypeMatch, alice.ID)
	h.store.AddRoom(models.RoomTypeInstant, alice.ID, bob.ID)
	for i := 0; i < 5; i++ {
		h.store.AddMessage(room.ID, bob.ID, fmt.Sprintf("msg %d", i))
	}

	a := h.connect(alice, UserProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)

	first := a.call(t, ActionGetRoomMessages, map[string]any{"page": 1})
	requireStatus(t, first, http.StatusOK)
	again := a.call(t, ActionGetRoomMessages, map[string]any{"page": 1})
	requireStatus(t, again, http.StatusOK)
	assert.JSONEq(t, string(first.Data), string(again.Data))
	require.NotNil(t, decode[pagination.Page[models.Message]](t, again).Next)

	first = a.call(t, ActionGetRooms, map[string]any{"page": 2})
	requireStatus(t, first, http.StatusOK)
	again = a.call(t, ActionGetRooms, map[string]any{"page": 2})
	requireStatus(t, again, http.StatusOK)
	assert.JSONEq(t, string(first.Data), string(again.Data))
}

func TestRoomArgumentIsRequired(t *testing.T) {
	h := newHarness(t)
	a := h.connect(h.brandUser("alice"), UserProfile())
	adm := h.connect(h.admin(), AdminProfile())

	for _, c := range []*client{a, adm} {
		for _, action := range []string{ActionJoinRoom, ActionAddFavorite, ActionRemoveFavorite} {
			f := c.call(t, action, nil)
			requireStatus(t, f, http.StatusBadRequest)
			assert.Equal(t, []string{"room_pk is required!"}, f.Errors)

			f = c.call(t, action, map[string]any{"room_pk": "lobby"})
			requireStatus(t, f, http.StatusBadRequest)
			assert.Equal(t, []string{"room_pk must be an integer!"}, f.Errors)
		}
	}
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID)
	a := h.connect(alice, UserProfile())

	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)
	f := a.call(t, ActionLeaveRoom, nil)
	requireStatus(t, f, http.StatusOK)
	assert.JSONEq(t, fmt.Sprintf(`{"response":"Left room %d successfully!"}`, room.ID), string(f.Data))
	assert.Equal(t, 0, h.bus.GroupSize(models.RoomGroup(room.ID)))

	requireStatus(t, a.call(t, ActionLeaveRoom, nil), http.StatusForbidden)
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "late"}), http.StatusForbidden)
}

func TestCreateMessageWithAttachments(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID)
	a := h.connect(alice, UserProfile())
	requireStatus(t, a.call(t, ActionJoinRoom, map[string]any{"room_pk": room.ID}), http.StatusOK)

	now := h.store.AddMessage(room.ID, alice.ID, "clock").CreatedAt
	photo := h.store.AddAttachment("photo.png", 512, "image/png", now)
	huge := h.store.AddAttachment("huge.png", 4096, "image/png", now)
	script := h.store.AddAttachment("run.exe", 10, "application/x-msdownload", now)

	f := a.call(t, ActionCreateMessage, map[string]any{"msg_text": "", "attachments": []int{photo.ID}})
	requireStatus(t, f, http.StatusCreated)
	msg := decode[models.Message](t, f)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, photo.ID, msg.Attachments[0].ID)

	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "again", "attachments": []int{photo.ID}}), http.StatusNotFound)
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "big", "attachments": []int{huge.ID}}), http.StatusBadRequest)
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "exe", "attachments": []int{script.ID}}), http.StatusBadRequest)
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "  "}), http.StatusBadRequest)
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": 5}), http.StatusBadRequest)
}

func TestMalformedFrames(t *testing.T) {
	h := newHarness(t)
	a := h.connect(h.brandUser("alice"), UserProfile())

	a.s.Handle(context.Background(), []byte(`{not json`))
	frames := a.conn.drain()
	require.Len(t, frames, 1)
	assert.Equal(t, http.StatusBadRequest, frames[0].ResponseStatus)
	assert.Equal(t, "", frames[0].Action)
	assert.Nil(t, frames[0].RequestID)

	a.s.Handle(context.Background(), []byte(`{"request_id": 7}`))
	frames = a.conn.drain()
	require.Len(t, frames, 1)
	assert.Equal(t, http.StatusBadRequest, frames[0].ResponseStatus)
	require.NotNil(t, frames[0].RequestID)
	assert.Equal(t, int64(7), *frames[0].RequestID)

	requireStatus(t, a.call(t, "drop_tables", nil), http.StatusBadRequest)
}

func TestActionsAreRateLimited(t *testing.T) {
	h := newHarness(t)
	h.deps.ActionRate = rate.Limit(0.001)
	h.deps.ActionBurst = 1
	a := h.connect(h.brandUser("alice"), UserProfile())

	requireStatus(t, a.call(t, ActionGetRooms, nil), http.StatusOK)
	requireStatus(t, a.call(t, ActionGetRooms, nil), http.StatusTooManyRequests)
}

func TestFavorites(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	bob := h.brandUser("bob")
	room := h.store.AddRoom(models.RoomTypeMatch, alice.ID, bob.ID)
	foreign := h.store.AddRoom(models.RoomTypeMatch, bob.ID)
	a := h.connect(alice, UserProfile())

	requireStatus(t, a.call(t, ActionAddFavorite, map[string]any{"room_pk": room.ID}), http.StatusCreated)
	requireStatus(t, a.call(t, ActionAddFavorite, map[string]any{"room_pk": room.ID}), http.StatusBadRequest)
	requireStatus(t, a.call(t, ActionAddFavorite, map[string]any{"room_pk": foreign.ID}), http.StatusForbidden)

	page := decode[pagination.Page[models.RoomSummary]](t, a.call(t, ActionGetRooms, nil))
	require.Len(t, page.Results, 1)
	assert.True(t, page.Results[0].IsFavorite)

	requireStatus(t, a.call(t, ActionRemoveFavorite, map[string]any{"room_pk": room.ID}), http.StatusOK)
	requireStatus(t, a.call(t, ActionRemoveFavorite, map[string]any{"room_pk": room.ID}), http.StatusNotFound)
}

func TestDeniedActionsAreAudited(t *testing.T) {
	h := newHarness(t)
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(ev telemetry.AuditEnvelope) bool {
		return ev.Payload.Action == ActionCreateMessage && ev.EventType == "audit_log"
	}), mock.Anything).Return(nil).Once()
	h.deps.Audit = telemetry.NewAuditEmitter(pub, "audit.chat", "chat-gateway", "test", zap.NewNop())

	a := h.connect(h.brandUser("alice"), UserProfile())
	requireStatus(t, a.call(t, ActionCreateMessage, map[string]any{"msg_text": "hi"}), http.StatusForbidden)

	pub.AssertExpectations(t)
}

func TestFailedActionsAreAudited(t *testing.T) {
	h := newHarness(t)
	alice := h.brandUser("alice")
	rooms := new(mocks.RoomRepositoryMock)
	rooms.On("ListRoomIDsForUser", mock.Anything, alice.ID).Return([]int{}, nil)
	rooms.On("GetOrCreateSupportRoom", mock.Anything, alice.ID).Return(nil, false, assert.AnError).Once()
	h.deps.Rooms = rooms

	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(ev telemetry.AuditEnvelope) bool {
		return ev.Payload.Level == "ERROR" && ev.Payload.Action == ActionGetSupportRoom
	}), mock.Anything).Return(nil).Once()
	h.deps.Audit = telemetry.NewAuditEmitter(pub, "audit.chat", "chat-gateway", "test", zap.NewNop())

	a := h.connect(alice, UserProfile())
	f := a.call(t, ActionGetSupportRoom, nil)
	requireStatus(t, f, http.StatusInternalServerError)
	assert.Equal(t, []string{"Internal server error."}, f.Errors)

	rooms.AssertExpectations(t)
	pub.AssertExpectations(t)
}
