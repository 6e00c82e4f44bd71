package models

import "time"

// Message represents a chat message. UserID is nil once the author account
// has been removed.
type Message struct {
	ID          int          `db:"id" json:"id"`
	RoomID      int          `db:"room_id" json:"room"`
	UserID      *int         `db:"user_id" json:"user"`
	Text        string       `db:"text" json:"text"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	Attachments []Attachment `db:"-" json:"attachments"`
}

// AuthoredBy reports whether userID wrote the message.
func (m Message) AuthoredBy(userID int) bool {
	return m.UserID != nil && *m.UserID == userID
}

// Attachment is an uploaded file. MessageID is nil while the attachment is
// dangling, i.e. uploaded but not yet linked to a message.
type Attachment struct {
	ID        int       `db:"id" json:"id"`
	MessageID *int      `db:"message_id" json:"-"`
	File      string    `db:"file" json:"file"`
	Size      int64     `db:"size" json:"size"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewMessage carries the fields needed to create a message.
type NewMessage struct {
	RoomID        int
	UserID        int
	Text          string
	AttachmentIDs []int
}

// EditedMessage is broadcast after a successful edit.
type EditedMessage struct {
	ID     int    `json:"id"`
	RoomID int    `json:"room"`
	Text   string `json:"text"`
}

// DeletedMessages is broadcast after a successful bulk delete.
type DeletedMessages struct {
	MessageIDs []int `json:"messages_ids"`
	RoomID     int   `json:"room_id"`
}
