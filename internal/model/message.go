package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat session. The log is append-only.
type Message struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	SessionID       string                      `gorm:"size:128;not null;index" json:"session_id"`
	UserID          string                      `gorm:"size:128;not null;index" json:"user_id"`
	Role            string                      `gorm:"size:16;not null" json:"role"`
	Content         string                      `gorm:"type:text;not null" json:"content"`
	Citations       datatypes.JSONSlice[string] `gorm:"type:json" json:"citations,omitempty"`
	DocumentID      string                      `gorm:"size:36" json:"document_id,omitempty"`
	ChunksRetrieved int                         `json:"chunks_retrieved,omitempty"`
	CreatedAt       time.Time                   `gorm:"index" json:"created_at"`
}
