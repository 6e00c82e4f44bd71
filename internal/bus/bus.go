package bus

import "context"

// Member is a delivery target, normally one websocket connection.
type Member interface {
	// ID identifies the member across groups.
	ID() string
	// Deliver queues payload without blocking and reports whether it was
	// accepted.
	Deliver(payload []byte) bool
}

// Bus is a named-group publish/subscribe fabric. A broadcast to several
// groups reaches every member at most once, however many of the target
// groups it belongs to.
type Bus interface {
	Join(group string, m Member)
	Leave(group string, m Member)
	LeaveAll(m Member)
	Broadcast(ctx context.Context, payload []byte, groups ...string) error
}
