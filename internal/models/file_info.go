package models

import "time"

// FileInfo represents metadata about a staged selection file.
type FileInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	StagedAt time.Time `json:"stagedAt"`
}
