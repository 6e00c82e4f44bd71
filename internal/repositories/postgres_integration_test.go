//go:build integration

package repositories

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-gateway/internal/db"
	"chat-gateway/internal/models"
)

// Run with: CHAT_TEST_DB_DSN=postgres://... go test -tags integration ./internal/repositories/
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("CHAT_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("CHAT_TEST_DB_DSN not set")
	}
	conn, err := db.Connect(dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func insertUser(t *testing.T, conn *sqlx.DB) int {
	t.Helper()
	var id int
	err := conn.Get(&id, `INSERT INTO users (email, fullname) VALUES ($1, 'test') RETURNING id`, uuid.NewString()+"@test.local")
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = conn.Exec(`DELETE FROM users WHERE id=$1`, id) })
	return id
}

func TestSupportRoomIsCreatedOnceUnderConcurrency(t *testing.T) {
	conn := openTestDB(t)
	rooms := NewRoomRepo(conn)
	userID := insertUser(t, conn)

	type result struct {
		roomID  int
		created bool
		err     error
	}
	results := make(chan result, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, created, err := rooms.GetOrCreateSupportRoom(context.Background(), userID)
			results <- result{roomID: summary.ID, created: created, err: err}
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	roomIDs := map[int]struct{}{}
	for r := range results {
		require.NoError(t, r.err)
		if r.created {
			created++
		}
		roomIDs[r.roomID] = struct{}{}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, roomIDs, 1)

	var count int
	require.NoError(t, conn.Get(&count, `SELECT COUNT(*) FROM rooms r
        JOIN room_participants rp ON rp.room_id = r.id
        WHERE r.type = $1 AND rp.user_id = $2`, models.RoomTypeSupport, userID))
	assert.Equal(t, 1, count)
}

func TestDeleteMessagesIsAllOrNothing(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	rooms := NewRoomRepo(conn)
	messages := NewMessageRepo(conn)
	userID := insertUser(t, conn)

	room, _, err := rooms.GetOrCreateSupportRoom(ctx, userID)
	require.NoError(t, err)
	first, err := messages.CreateMessage(ctx, models.NewMessage{RoomID: room.ID, UserID: userID, Text: "first"})
	require.NoError(t, err)
	second, err := messages.CreateMessage(ctx, models.NewMessage{RoomID: room.ID, UserID: userID, Text: "second"})
	require.NoError(t, err)

	_, err = messages.DeleteMessages(ctx, []int{first.ID, 2147483000}, userID, room.ID)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []int{2147483000}, missing.IDs)

	count, err := messages.CountRoomMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	deleted, err := messages.DeleteMessages(ctx, []int{second.ID, first.ID, second.ID}, userID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{second.ID, first.ID}, deleted)

	count, err = messages.CountRoomMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
