package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"chat-gateway/internal/models"
)

// IdentityChannel is the NOTIFY channel fed by the users table trigger.
const IdentityChannel = "identity_events"

const listenerPingInterval = 90 * time.Second

// UserRepo is a sqlx implementation of UserRepository. Identity events are
// received over a dedicated LISTEN connection opened from dsn.
type UserRepo struct {
	db  *sqlx.DB
	dsn string
	log *zap.Logger
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB, dsn string, log *zap.Logger) *UserRepo {
	return &UserRepo{db: db, dsn: dsn, log: log}
}

// GetIdentity loads a user together with the brand profile flag.
func (r *UserRepo) GetIdentity(ctx context.Context, userID int) (models.Identity, error) {
	var identity models.Identity
	err := r.db.GetContext(ctx, &identity, `SELECT u.id, u.email, u.fullname, u.is_staff, u.is_active,
            EXISTS (SELECT 1 FROM brands b WHERE b.user_id = u.id) AS has_brand
        FROM users u WHERE u.id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, ErrUserNotFound
	}
	return identity, err
}

// ListStaffIDs returns the ids of all active staff accounts.
func (r *UserRepo) ListStaffIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE is_staff AND is_active ORDER BY id`)
	return ids, err
}

// WatchIdentities streams identity lifecycle events until ctx is done.
// After the listener reconnects an IdentityResync event is emitted since
// notifications may have been lost in between.
func (r *UserRepo) WatchIdentities(ctx context.Context) (<-chan models.IdentityEvent, error) {
	listener := pq.NewListener(r.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			r.log.Warn("identity listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(IdentityChannel); err != nil {
		_ = listener.Close()
		return nil, err
	}

	out := make(chan models.IdentityEvent, 64)
	go func() {
		defer close(out)
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				ev := models.IdentityEvent{Kind: models.IdentityResync}
				if n != nil {
					if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
						r.log.Warn("malformed identity event", zap.String("payload", n.Extra), zap.Error(err))
						continue
					}
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-time.After(listenerPingInterval):
				go func() {
					_ = listener.Ping()
				}()
			}
		}
	}()
	return out, nil
}
