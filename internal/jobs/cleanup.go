package jobs

import (
	"context"
	"time"
)

type EmptyRoomCleaner interface {
	DeleteEmptyRooms(ctx context.Context) (int64, error)
}

type DanglingAttachmentCleaner interface {
	DeleteDanglingAttachments(ctx context.Context, olderThan time.Time) (int64, error)
}

// CleanupJobs returns the jobs that remove rooms without participants and
// attachments left unlinked for longer than ttl.
func CleanupJobs(rooms EmptyRoomCleaner, attachments DanglingAttachmentCleaner, ttl time.Duration, now func() time.Time) []Job {
	return []Job{
		{
			Name: "empty_rooms",
			Run:  rooms.DeleteEmptyRooms,
		},
		{
			Name: "dangling_attachments",
			Run: func(ctx context.Context) (int64, error) {
				return attachments.DeleteDanglingAttachments(ctx, now().Add(-ttl))
			},
		},
	}
}
