package model

import "time"

// Document records a file ingested into a session's vector collection.
// Its lifetime is bound to the session: hard-deleting the session removes
// the document rows and their chunks.
type Document struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   uint      `gorm:"not null;index" json:"session_id"`
	FileName    string    `gorm:"size:256;not null" json:"file_name"`
	FileSize    int64     `gorm:"not null" json:"file_size"`
	FileType    string    `gorm:"size:32;not null" json:"file_type"`
	ChunkCount  int       `gorm:"not null;default:0" json:"chunk_count"`
	StoragePath string    `gorm:"size:512" json:"storage_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
