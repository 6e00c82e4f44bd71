package models

// Identity is the authenticated principal behind a connection. The zero
// value is the anonymous identity.
type Identity struct {
	ID       int    `db:"id" json:"id"`
	Email    string `db:"email" json:"email"`
	Fullname string `db:"fullname" json:"fullname"`
	IsStaff  bool   `db:"is_staff" json:"is_staff"`
	IsActive bool   `db:"is_active" json:"is_active"`
	HasBrand bool   `db:"has_brand" json:"has_brand"`
}

// IsAuthenticated reports whether the identity belongs to an active account.
func (i Identity) IsAuthenticated() bool {
	return i.ID != 0 && i.IsActive
}

// IdentityEventKind names an identity lifecycle transition.
type IdentityEventKind string

const (
	IdentityCreated IdentityEventKind = "created"
	IdentityUpdated IdentityEventKind = "updated"
	IdentityDeleted IdentityEventKind = "deleted"
	// IdentityResync asks consumers to reload state, e.g. after the event
	// stream reconnected and may have missed notifications.
	IdentityResync IdentityEventKind = "resync"
)

// IdentityEvent is emitted by the store whenever a user row changes.
type IdentityEvent struct {
	Kind    IdentityEventKind `json:"kind"`
	UserID  int               `json:"user_id"`
	IsStaff bool              `json:"is_staff"`
}
