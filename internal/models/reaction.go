package models

import "time"

type ReactorType string

const (
	ReactorContact ReactorType = "contact"
	ReactorUser    ReactorType = "user"
)

// Reaction is unique per (message, reactor type, reactor id).
type Reaction struct {
	ID          string      `db:"id" json:"id"`
	MessageID   string      `db:"message_id" json:"message_id"`
	ReactorType ReactorType `db:"reactor_type" json:"reactor_type"`
	ReactorID   string      `db:"reactor_id" json:"reactor_id"`
	Emoji       string      `db:"emoji" json:"emoji"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}
