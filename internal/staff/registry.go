package staff

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
)

// Source provides the initial staff set and the identity event stream.
type Source interface {
	ListStaffIDs(ctx context.Context) ([]int, error)
	WatchIdentities(ctx context.Context) (<-chan models.IdentityEvent, error)
}

// Registry is the live set of staff identities that receive support room
// broadcasts.
type Registry struct {
	mu  sync.RWMutex
	ids map[int]struct{}
	log *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{ids: make(map[int]struct{}), log: log}
}

// Run subscribes to identity events, loads the current staff set and then
// applies events until ctx is done or the stream ends.
func (r *Registry) Run(ctx context.Context, src Source) error {
	events, err := src.WatchIdentities(ctx)
	if err != nil {
		return fmt.Errorf("watch identities: %w", err)
	}
	if err := r.Reload(ctx, src); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == models.IdentityResync {
				if err := r.Reload(ctx, src); err != nil {
					r.log.Warn("staff resync failed", zap.Error(err))
				}
				continue
			}
			r.Apply(ev)
		}
	}
}

// Reload replaces the set with the staff ids currently stored.
func (r *Registry) Reload(ctx context.Context, src Source) error {
	ids, err := src.ListStaffIDs(ctx)
	if err != nil {
		return fmt.Errorf("list staff: %w", err)
	}
	next := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	r.mu.Lock()
	r.ids = next
	r.mu.Unlock()

	observability.SetStaffKnown(len(next))
	r.log.Info("staff set loaded", zap.Int("count", len(next)))
	return nil
}

// Apply folds one identity event into the set.
func (r *Registry) Apply(ev models.IdentityEvent) {
	r.mu.Lock()
	switch {
	case ev.Kind == models.IdentityDeleted, !ev.IsStaff:
		delete(r.ids, ev.UserID)
	default:
		r.ids[ev.UserID] = struct{}{}
	}
	n := len(r.ids)
	r.mu.Unlock()

	observability.SetStaffKnown(n)
}

// IDs returns the staff ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	out := make([]int, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Ints(out)
	return out
}

// Contains reports whether id is a known staff identity.
func (r *Registry) Contains(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}
