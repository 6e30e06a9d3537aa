// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import "github.com/labstack/echo/v4"

// SelectionHandler handles the picker page and the list mutations
type SelectionHandler interface {
	HandleIndex(c echo.Context) error
	HandleSelection(c echo.Context) error
	HandleClear(c echo.Context) error
}

// ResultsHandler serves the current batch in several encodings
type ResultsHandler interface {
	HandleUploads(c echo.Context) error
	HandleUploadsMsgpack(c echo.Context) error
	HandleUploadsHTML(c echo.Context) error
}

// TaskHandler exposes read task and session diagnostics
type TaskHandler interface {
	HandleTasks(c echo.Context) error
	HandleTask(c echo.Context) error
	HandleSession(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
