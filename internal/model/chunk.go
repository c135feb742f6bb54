package model

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Chunk is a contiguous span of a document's extracted text.
// Index is the dense position within the document and doubles as insertion order.
// Start and End are byte offsets of Content in the extracted text.
// Embedding is persisted so an in-process vector index can be rebuilt on startup.
type Chunk struct {
	ID         string                       `gorm:"primaryKey;size:36" json:"chunk_id"`
	DocumentID string                       `gorm:"size:36;not null;index:idx_chunk_doc_index,priority:1" json:"document_id"`
	UserID     string                       `gorm:"size:128;not null;index" json:"user_id"`
	SessionID  string                       `gorm:"size:128" json:"session_id"`
	Filename   string                       `gorm:"size:256" json:"filename"`
	Index      int                          `gorm:"column:chunk_index;not null;index:idx_chunk_doc_index,priority:2" json:"chunk_index"`
	Content    string                       `gorm:"type:text;not null" json:"text"`
	Size       int                          `json:"chunk_size"`
	Start      int                          `gorm:"column:span_start" json:"start"`
	End        int                          `gorm:"column:span_end" json:"end"`
	Embedding  datatypes.JSONSlice[float32] `gorm:"type:json" json:"-"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// Citation renders the chunk reference used in answers, e.g. "lease.pdf:chunk_3".
func (c *Chunk) Citation() string {
	filename := c.Filename
	if filename == "" {
		filename = "unknown"
	}
	return filename + ":chunk_" + strconv.Itoa(c.Index)
}
