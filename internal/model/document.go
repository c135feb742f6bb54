package model

import (
	"time"

	"gorm.io/gorm"
)

// Document is an uploaded file owned by a user within a session.
// Rows are immutable after ingestion; deletion is soft.
type Document struct {
	ID          string         `gorm:"primaryKey;size:36" json:"document_id"`
	UserID      string         `gorm:"size:128;not null;index" json:"user_id"`
	SessionID   string         `gorm:"size:128;index" json:"session_id"`
	Filename    string         `gorm:"size:256;not null" json:"filename"`
	FileType    string         `gorm:"size:16;not null" json:"file_type"`
	ContentType string         `gorm:"size:128" json:"content_type"`
	StoragePath string         `gorm:"size:1024" json:"storage_path"`
	TextLength  int            `json:"text_length"`
	NumChunks   int            `json:"num_chunks"`
	NumPages    int            `json:"num_pages"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
