package models

import (
	"strconv"
	"time"
)

// RoomType is the single letter room kind stored with every room.
type RoomType string

const (
	RoomTypeMatch   RoomType = "M"
	RoomTypeInstant RoomType = "I"
	RoomTypeHelp    RoomType = "H"
	RoomTypeSupport RoomType = "S"
)

// Room is a conversation container with a set of participants.
type Room struct {
	ID           int       `db:"id" json:"id"`
	Type         RoomType  `db:"type" json:"type"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	Participants []int     `db:"-" json:"-"`
}

// IsSupport reports whether the room is a support room.
func (r Room) IsSupport() bool {
	return r.Type == RoomTypeSupport
}

// HasParticipant reports whether userID is a persisted participant.
func (r Room) HasParticipant(userID int) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Brand is the public part of a brand profile.
type Brand struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Interlocutor is another participant of a room as seen by the viewer.
type Interlocutor struct {
	ID       int    `json:"id"`
	Fullname string `json:"fullname"`
	IsStaff  bool   `json:"is_staff"`
	Brand    *Brand `json:"brand"`
}

// RoomSummary is a room annotated for a specific viewer.
type RoomSummary struct {
	ID            int            `json:"id"`
	Type          RoomType       `json:"type"`
	LastMessage   *Message       `json:"last_message"`
	Interlocutors []Interlocutor `json:"interlocutors"`
	IsFavorite    bool           `json:"is_favorite"`
}

// Favorite marks a room as favorite for one user.
type Favorite struct {
	ID     int `db:"id" json:"id"`
	UserID int `db:"user_id" json:"user"`
	RoomID int `db:"room_id" json:"room"`
}

// PersonalGroup is the bus group every connection of a user joins.
func PersonalGroup(userID int) string {
	return "user_" + strconv.Itoa(userID)
}

// RoomGroup is the bus group of connections that joined a room.
func RoomGroup(roomID int) string {
	return "room_" + strconv.Itoa(roomID)
}
