// routes.go - Route registration helpers
package api

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/filetable/backend/internal/session"
	"github.com/filetable/backend/internal/storage"
	"github.com/filetable/backend/internal/web"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	// BaseContext bounds every read task; it is cancelled on shutdown.
	BaseContext context.Context
	Sessions    *session.Manager
	Staging     storage.Store
	MaxFileSize int64
	// WSReadLimit caps incoming websocket frames in bytes.
	WSReadLimit int64
	Version     string
	Logger      *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Selection SelectionHandler
	Results   ResultsHandler
	Tasks     TaskHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := NewHandler(deps.BaseContext, deps.Sessions, deps.Staging, deps.MaxFileSize, deps.Logger)
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions.Len),
		Selection: h,
		Results:   h,
		Tasks:     h,
		WebSocket: NewWebSocketHandler(deps.Sessions, deps.WSReadLimit, deps.Logger),
	}
}

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.Renderer = web.Renderer{}

	e.GET("/", handlers.Selection.HandleIndex)

	g := e.Group("/api")
	g.GET("/health", handlers.Health.HandleHealth)

	g.POST("/selection", handlers.Selection.HandleSelection)
	g.POST("/clear", handlers.Selection.HandleClear)

	g.GET("/uploads", handlers.Results.HandleUploads)
	g.GET("/uploads/msgpack", handlers.Results.HandleUploadsMsgpack)
	g.GET("/uploads/html", handlers.Results.HandleUploadsHTML)

	g.GET("/tasks", handlers.Tasks.HandleTasks)
	g.GET("/tasks/:id", handlers.Tasks.HandleTask)
	g.GET("/session", handlers.Tasks.HandleSession)

	g.GET("/ws", handlers.WebSocket.HandleWebSocket)
}

// MiddlewareConfig selects the optional middleware.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	RequestLogging bool
	// BodyLimit uses echo's size syntax, e.g. "256M". Empty disables the limit.
	BodyLimit string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.RequestLogging && cfg.Logger != nil {
		log := cfg.Logger
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				p := c.Request().URL.Path
				return p == "/api/health" || strings.HasPrefix(p, "/api/ws")
			},
			LogMethod:   true,
			LogURI:      true,
			LogStatus:   true,
			LogLatency:  true,
			LogError:    true,
			HandleError: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				attrs := []slog.Attr{
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Duration("latency", v.Latency),
				}
				if v.Error != nil {
					attrs = append(attrs, slog.String("err", v.Error.Error()))
					log.LogAttrs(context.Background(), slog.LevelWarn, "request failed", attrs...)
					return nil
				}
				log.LogAttrs(context.Background(), slog.LevelInfo, "request", attrs...)
				return nil
			},
		}))
	}
}
