package models

import "time"

// SessionInfo describes one browser session and the batch it currently shows.
type SessionInfo struct {
	ID           string    `json:"id"`
	Epoch        uint64    `json:"epoch"`
	UploadCount  int       `json:"uploadCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}
