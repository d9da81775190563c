package store

import "time"

// UploadRecord is a file that was uploaded successfully. Path is the
// canonical local path and is unique.
type UploadRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Path       string    `gorm:"uniqueIndex;not null" json:"path"`
	Name       string    `gorm:"not null" json:"name"`
	RemoteID   string    `json:"remote_id"`
	RemoteLink string    `gorm:"type:text" json:"remote_link"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `gorm:"index" json:"uploaded_at"`
}

// Setting is a persisted key/value preference.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
