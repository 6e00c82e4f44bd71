package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chat-gateway/internal/observability"
)

// Local is an in-process Bus.
type Local struct {
	groups      map[string]map[string]Member
	memberships map[string]map[string]struct{}
	mu          sync.RWMutex
	log         *zap.Logger
}

// NewLocal creates an empty bus.
func NewLocal(log *zap.Logger) *Local {
	return &Local{
		groups:      make(map[string]map[string]Member),
		memberships: make(map[string]map[string]struct{}),
		log:         log,
	}
}

// Join adds m to group. Joining twice is a no-op.
func (b *Local) Join(group string, m Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.groups[group]; !ok {
		b.groups[group] = make(map[string]Member)
	}
	b.groups[group][m.ID()] = m
	if _, ok := b.memberships[m.ID()]; !ok {
		b.memberships[m.ID()] = make(map[string]struct{})
	}
	b.memberships[m.ID()][group] = struct{}{}
}

// Leave removes m from group.
func (b *Local) Leave(group string, m Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(group, m.ID())
}

// LeaveAll removes m from every group it joined.
func (b *Local) LeaveAll(m Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for group := range b.memberships[m.ID()] {
		b.leaveLocked(group, m.ID())
	}
}

func (b *Local) leaveLocked(group, memberID string) {
	if members, ok := b.groups[group]; ok {
		delete(members, memberID)
		if len(members) == 0 {
			delete(b.groups, group)
		}
	}
	if groups, ok := b.memberships[memberID]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(b.memberships, memberID)
		}
	}
}

// Broadcast delivers payload once to every member of the union of groups.
func (b *Local) Broadcast(ctx context.Context, payload []byte, groups ...string) error {
	for _, m := range b.recipients(groups) {
		if !m.Deliver(payload) {
			observability.IncBusDropped()
			b.log.Warn("dropped broadcast delivery", zap.String("member", m.ID()))
		}
	}
	return nil
}

func (b *Local) recipients(groups []string) []Member {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []Member
	for _, group := range groups {
		for id, m := range b.groups[group] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// GroupSize returns the number of members in group.
func (b *Local) GroupSize(group string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[group])
}

// Groups returns the groups m currently belongs to.
func (b *Local) Groups(m Member) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.memberships[m.ID()]))
	for group := range b.memberships[m.ID()] {
		out = append(out, group)
	}
	return out
}
