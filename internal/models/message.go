package models

import "time"

// ChatMessage is a persisted chat message row. ExternalID is the
// client-assigned event id used for de-duplication; the serial primary key
// never leaves the database layer.
type ChatMessage struct {
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	PhotoURL   string    `json:"photoUrl"`
	Text       string    `json:"text"`
	ImageData  *string   `json:"imageData,omitempty"`
	IsDeleted  bool      `json:"isDeleted"`
	Timestamp  time.Time `json:"timestamp"`
}
