package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/models"
)

type fakeState struct {
	identity models.Identity
	room     *models.Room
	members  map[int]bool
	err      error
}

func (s fakeState) Identity() models.Identity { return s.identity }

func (s fakeState) CurrentRoom() (models.Room, bool) {
	if s.room == nil {
		return models.Room{}, false
	}
	return *s.room, true
}

func (s fakeState) IsMember(ctx context.Context, roomID int) (bool, error) {
	return s.members[roomID], s.err
}

var (
	brandUser = models.Identity{ID: 1, IsActive: true, HasBrand: true}
	plainUser = models.Identity{ID: 2, IsActive: true}
	staffUser = models.Identity{ID: 3, IsActive: true, IsStaff: true}
	inactive  = models.Identity{ID: 4, HasBrand: true}
)

func TestConnectRules(t *testing.T) {
	ctx := context.Background()

	assert.False(t, IsAuthenticated{}.CanConnect(ctx, models.Identity{}))
	assert.False(t, IsAuthenticated{}.CanConnect(ctx, inactive))
	assert.True(t, IsAuthenticated{}.CanConnect(ctx, plainUser))

	assert.True(t, IsBrand{}.CanConnect(ctx, brandUser))
	assert.False(t, IsBrand{}.CanConnect(ctx, plainUser))
	assert.False(t, IsBrand{}.CanConnect(ctx, inactive))

	assert.True(t, IsStaff{}.CanConnect(ctx, staffUser))
	assert.False(t, IsStaff{}.CanConnect(ctx, brandUser))

	assert.True(t, InRoom{}.CanConnect(ctx, models.Identity{}))
}

func TestRoomRules(t *testing.T) {
	ctx := context.Background()
	support := models.Room{ID: 9, Type: models.RoomTypeSupport}
	match := models.Room{ID: 8, Type: models.RoomTypeMatch}

	ok, err := InRoom{}.HasPermission(ctx, fakeState{identity: brandUser}, "leave_room", Args{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = InRoom{}.HasPermission(ctx, fakeState{identity: brandUser, room: &match}, "leave_room", Args{})
	assert.True(t, ok)

	ok, _ = SupportRoomOnly{}.HasPermission(ctx, fakeState{identity: staffUser, room: &match}, "create_message", Args{})
	assert.False(t, ok)
	ok, _ = SupportRoomOnly{}.HasPermission(ctx, fakeState{identity: staffUser, room: &support}, "create_message", Args{})
	assert.True(t, ok)
}

func TestCanJoinRoom(t *testing.T) {
	ctx := context.Background()
	st := fakeState{identity: brandUser, members: map[int]bool{5: true}}

	ok, err := CanJoinRoom{}.HasPermission(ctx, st, "join_room", Args{RoomID: 5})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = CanJoinRoom{}.HasPermission(ctx, st, "join_room", Args{RoomID: 6})
	assert.False(t, ok)

	ok, _ = CanJoinRoom{}.HasPermission(ctx, st, "join_room", Args{})
	assert.False(t, ok)
}

func TestAllShortCircuits(t *testing.T) {
	ctx := context.Background()
	failing := fakeState{identity: brandUser, err: errors.New("store down")}

	perm := All(IsBrand{}, CanJoinRoom{})
	ok, err := perm.HasPermission(ctx, failing, "join_room", Args{RoomID: 1})
	assert.Error(t, err)
	assert.False(t, ok)

	perm = All(IsStaff{}, CanJoinRoom{})
	ok, err = perm.HasPermission(ctx, failing, "join_room", Args{RoomID: 1})
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, All(IsBrand{}, InRoom{}).CanConnect(ctx, brandUser))
	assert.False(t, All(IsBrand{}, IsStaff{}).CanConnect(ctx, brandUser))
	assert.True(t, All().CanConnect(ctx, models.Identity{}))
}
