// Package models contains domain types for the file table.
package models

// Upload is one decoded file: the display name and its UTF-8 content.
// Values are never mutated after construction.
type Upload struct {
	Name    string `json:"name" yaml:"name" msgpack:"name"`
	Content string `json:"content" yaml:"content" msgpack:"content"`
}

// NewUpload creates an Upload.
func NewUpload(name, content string) Upload {
	return Upload{Name: name, Content: content}
}
