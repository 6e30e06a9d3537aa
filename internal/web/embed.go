// Package web provides the embedded picker page.
package web

import (
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*
var templateFiles embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFiles, "templates/index.html"))

// PageData is what the index template renders.
type PageData struct {
	// Rows is the pre-rendered <tbody> content for the current batch.
	Rows template.HTML
}

// Renderer adapts the embedded templates to echo's Renderer interface.
type Renderer struct{}

// Render implements echo.Renderer. name is the template file name, e.g. "index.html".
func (Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return pageTemplate.ExecuteTemplate(w, name, data)
}

// RenderIndex writes the picker page.
func RenderIndex(c echo.Context, data PageData) error {
	return c.Render(http.StatusOK, "index.html", data)
}
