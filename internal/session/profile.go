package session

import (
	"context"

	"chat-gateway/internal/models"
	"chat-gateway/internal/policy"
)

// Action names understood by the gateway.
const (
	ActionGetRooms        = "get_rooms"
	ActionJoinRoom        = "join_room"
	ActionLeaveRoom       = "leave_room"
	ActionGetRoomMessages = "get_room_messages"
	ActionCreateMessage   = "create_message"
	ActionEditMessage     = "edit_message"
	ActionDeleteMessages  = "delete_messages"
	ActionGetSupportRoom  = "get_support_room"
	ActionAddFavorite     = "add_favorite"
	ActionRemoveFavorite  = "remove_favorite"
)

// Sub-protocols negotiated during the websocket handshake.
const (
	ProtocolUser  = "chat"
	ProtocolAdmin = "admin-chat"
)

type handlerFunc func(s *Session, ctx context.Context, req *request) (*reply, error)

// actionSpec binds an action to its permission and handler. Arguments in
// required are checked before the permission runs.
type actionSpec struct {
	perm     policy.Permission
	handle   handlerFunc
	required []string
}

var roomArg = []string{"room_pk"}

// Profile is a session variant: its sub-protocol, connect rule and action
// table.
type Profile struct {
	Protocol string
	Connect  policy.Permission
	actions  map[string]actionSpec
	// allRooms lists every room on get_rooms instead of the caller's own.
	allRooms bool
}

// Negotiate picks the profile's sub-protocol from the offered list.
func (p *Profile) Negotiate(offered []string) (string, bool) {
	for _, proto := range offered {
		if proto == p.Protocol {
			return proto, true
		}
	}
	return "", false
}

// Accept reports whether a connection may be established.
func (p *Profile) Accept(ctx context.Context, identity models.Identity, offered []string) (string, bool) {
	proto, ok := p.Negotiate(offered)
	if !ok || !p.Connect.CanConnect(ctx, identity) {
		return "", false
	}
	return proto, true
}

// Actions lists the action names the profile serves.
func (p *Profile) Actions() []string {
	out := make([]string, 0, len(p.actions))
	for name := range p.actions {
		out = append(out, name)
	}
	return out
}

// UserProfile serves brand users on the "chat" sub-protocol.
func UserProfile() *Profile {
	member := policy.All(policy.IsBrand{}, policy.InRoom{})
	return &Profile{
		Protocol: ProtocolUser,
		Connect:  policy.IsBrand{},
		actions: map[string]actionSpec{
			ActionGetRooms:        {perm: policy.IsBrand{}, handle: (*Session).getRooms},
			ActionJoinRoom:        {perm: policy.All(policy.IsBrand{}, policy.CanJoinRoom{}), handle: (*Session).joinRoom, required: roomArg},
			ActionLeaveRoom:       {perm: policy.All(policy.IsAuthenticated{}, policy.InRoom{}), handle: (*Session).leaveRoom},
			ActionGetRoomMessages: {perm: member, handle: (*Session).getRoomMessages},
			ActionCreateMessage:   {perm: member, handle: (*Session).createMessage},
			ActionEditMessage:     {perm: member, handle: (*Session).editMessage},
			ActionDeleteMessages:  {perm: member, handle: (*Session).deleteMessages},
			ActionGetSupportRoom:  {perm: policy.IsBrand{}, handle: (*Session).getSupportRoom},
			ActionAddFavorite:     {perm: policy.All(policy.IsBrand{}, policy.CanJoinRoom{}), handle: (*Session).addFavorite, required: roomArg},
			ActionRemoveFavorite:  {perm: policy.IsBrand{}, handle: (*Session).removeFavorite, required: roomArg},
		},
	}
}

// AdminProfile serves staff on the "admin-chat" sub-protocol. Staff may
// read and join any room but only write in support rooms.
func AdminProfile() *Profile {
	reader := policy.All(policy.IsStaff{}, policy.InRoom{})
	writer := policy.All(policy.IsStaff{}, policy.InRoom{}, policy.SupportRoomOnly{})
	return &Profile{
		Protocol: ProtocolAdmin,
		Connect:  policy.IsStaff{},
		allRooms: true,
		actions: map[string]actionSpec{
			ActionGetRooms:        {perm: policy.IsStaff{}, handle: (*Session).getRooms},
			ActionJoinRoom:        {perm: policy.IsStaff{}, handle: (*Session).joinRoom, required: roomArg},
			ActionLeaveRoom:       {perm: reader, handle: (*Session).leaveRoom},
			ActionGetRoomMessages: {perm: reader, handle: (*Session).getRoomMessages},
			ActionCreateMessage:   {perm: writer, handle: (*Session).createMessage},
			ActionEditMessage:     {perm: writer, handle: (*Session).editMessage},
			ActionDeleteMessages:  {perm: writer, handle: (*Session).deleteMessages},
			ActionGetSupportRoom:  {perm: policy.IsStaff{}, handle: (*Session).getSupportRoom},
			ActionAddFavorite:     {perm: policy.IsStaff{}, handle: (*Session).addFavorite, required: roomArg},
			ActionRemoveFavorite:  {perm: policy.IsStaff{}, handle: (*Session).removeFavorite, required: roomArg},
		},
	}
}
