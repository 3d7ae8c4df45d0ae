package models

import (
	"time"

	"github.com/google/uuid"
)

type ScriptStatus string

const (
	ScriptPending   ScriptStatus = "PENDING"
	ScriptGenerated ScriptStatus = "GENERATED"
	ScriptFailed    ScriptStatus = "FAILED"
)

const (
	MinScriptLengthSeconds = 30
	MaxScriptLengthSeconds = 1800
)

// Script is the narration text a video is built from.
type Script struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	UserID    uuid.UUID    `json:"userId" db:"user_id"`
	Title     string       `json:"title" db:"title"`
	Content   string       `json:"content" db:"content"`
	Niche     string       `json:"niche" db:"niche"`
	Keywords  []string     `json:"keywords" db:"keywords"`
	Length    int          `json:"length" db:"length"`
	Status    ScriptStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
}

// DefaultScriptTitle is used when the requester supplies no title.
func DefaultScriptTitle(niche string) string {
	return "Amazing " + niche + " Content - Must Watch!"
}
