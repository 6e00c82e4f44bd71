package repositories

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrFavoriteExists      = errors.New("favorite already exists")
	ErrFavoriteNotFound    = errors.New("favorite not found")
	ErrSupportRoomConflict = errors.New("support room could not be allocated")
)

// MissingError lists the requested ids that do not exist or are not
// accessible to the caller. Nothing was changed when it is returned.
type MissingError struct {
	Kind string
	IDs  []int
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Kind, e.IDs)
}

const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isRetryable(err error) bool {
	switch pqCode(err) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

// UniqueIDs drops duplicates while keeping the first occurrence order.
func UniqueIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MissingIDs returns the ids of want that are absent from have.
func MissingIDs(want, have []int) []int {
	present := make(map[int]struct{}, len(have))
	for _, id := range have {
		present[id] = struct{}{}
	}
	var missing []int
	for _, id := range want {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func int64Array(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
