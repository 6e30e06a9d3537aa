// Package view projects the upload store into display rows and renders them.
package view

import "github.com/filetable/backend/internal/models"

// Row is one line of the results table.
type Row struct {
	Name    string `json:"name" yaml:"name" msgpack:"name"`
	Content string `json:"content" yaml:"content" msgpack:"content"`
}

// Project maps a store snapshot to table rows, preserving order.
// It has no side effects; the same snapshot always yields the same rows.
func Project(uploads []models.Upload) []Row {
	rows := make([]Row, len(uploads))
	for i, u := range uploads {
		rows[i] = Row{Name: u.Name, Content: u.Content}
	}
	return rows
}
