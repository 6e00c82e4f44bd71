package policy

import (
	"context"

	"chat-gateway/internal/models"
)

// State is the part of a connection that permissions inspect.
type State interface {
	Identity() models.Identity
	// CurrentRoom returns the joined room, if any.
	CurrentRoom() (models.Room, bool)
	// IsMember reports whether the identity participates in roomID.
	IsMember(ctx context.Context, roomID int) (bool, error)
}

// Args carries action arguments that permissions need.
type Args struct {
	RoomID int
}

// Permission gates connection establishment and individual actions.
type Permission interface {
	CanConnect(ctx context.Context, identity models.Identity) bool
	HasPermission(ctx context.Context, st State, action string, args Args) (bool, error)
}

// All grants only when every permission grants. Evaluation stops at the
// first denial or error.
func All(perms ...Permission) Permission {
	return allOf(perms)
}

type allOf []Permission

func (a allOf) CanConnect(ctx context.Context, identity models.Identity) bool {
	for _, p := range a {
		if !p.CanConnect(ctx, identity) {
			return false
		}
	}
	return true
}

func (a allOf) HasPermission(ctx context.Context, st State, action string, args Args) (bool, error) {
	for _, p := range a {
		ok, err := p.HasPermission(ctx, st, action, args)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// IsAuthenticated requires an active, known identity.
type IsAuthenticated struct{}

func (IsAuthenticated) CanConnect(ctx context.Context, identity models.Identity) bool {
	return identity.IsAuthenticated()
}

func (IsAuthenticated) HasPermission(ctx context.Context, st State, action string, args Args) (bool, error) {
	return st.Identity().IsAuthenticated(), nil
}

// IsBrand requires an authenticated identity with a brand profile.
type IsBrand struct{}

func (IsBrand) CanConnect(ctx context.Context, identity models.Identity) bool {
	return identity.IsAuthenticated() && identity.HasBrand
}

func (IsBrand) HasPermission(ctx context.Context, st State, action string, args Args) (bool, error) {
	id := st.Identity()
	return id.IsAuthenticated() && id.HasBrand, nil
}

// IsStaff requires an authenticated staff identity.
type IsStaff struct{}

func (IsStaff) CanConnect(ctx context.Context, identity models.Identity) bool {
	return identity.IsAuthenticated() && identity.IsStaff
}

func (IsStaff) HasPermission(ctx context.Context, st State, action string, args Args) (bool, error) {
	id := st.Identity()
	return id.IsAuthenticated() && id.IsStaff, nil
}

// InRoom requires a joined room. It never blocks connecting.
type InRoom struct{}

func (InRoom) CanConnect(ctx context.Context, identity models.Identity) bool {
	return true
}

func (InRoom) HasPermission(ctx context.Context, st State, action string, args Args) (bool, error) {
	_, ok := st.CurrentRoom()
	return ok, nil
}

// CanJoinRoom requires the identity to participate in args.RoomID.
type CanJoinRoom struct{}

func (CanJoinRoom) CanConnect(ctx context.Context, identity models.Identity) bool {
	return true
}

func (CanJoinRoom) HasPermission(ctx context.Context, st State, action string, args Args) (bool, error) {
	if args.RoomID == 0 {
		return false, nil
	}
	return st.IsMember(ctx, args.RoomID)
}

// SupportRoomOnly requires the joined room to be a support room.
type SupportRoomOnly struct{}

func (SupportRoomOnly) CanConnect(ctx context.Context, identity models.Identity) bool {
	return true
}

func (SupportRoomOnly) HasPermission(ctx context.Context, st State, action string, args Args) (bool, error) {
	room, ok := st.CurrentRoom()
	return ok && room.IsSupport(), nil
}
