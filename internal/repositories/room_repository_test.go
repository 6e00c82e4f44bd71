package repositories

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAllocationRetriesSerializationFailures(t *testing.T) {
	calls := 0
	roomID, created, err := retryAllocation(3, func() (int, bool, error) {
		calls++
		if calls < 2 {
			return 0, false, &pq.Error{Code: pqSerializationFailure}
		}
		return 42, true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 42, roomID)
	assert.True(t, created)
}

func TestRetryAllocationReportsConflictWhenExhausted(t *testing.T) {
	calls := 0
	_, _, err := retryAllocation(3, func() (int, bool, error) {
		calls++
		return 0, false, &pq.Error{Code: pqDeadlockDetected}
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrSupportRoomConflict)
}

func TestRetryAllocationStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0
	_, _, err := retryAllocation(3, func() (int, bool, error) {
		calls++
		return 0, false, boom
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSupportRoomConflict)
}
