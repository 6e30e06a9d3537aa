package api

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filetable/backend/internal/session"
	"github.com/filetable/backend/internal/source"
	"github.com/filetable/backend/internal/storage"
	"github.com/filetable/backend/internal/view"
	"github.com/filetable/backend/internal/web"
)

// SessionCookie names the cookie carrying the browser session ID.
const SessionCookie = "filetable_session"

// FormField is the multipart field holding the selected files.
const FormField = "files"

// Handler serves the picker page, selection and results endpoints.
type Handler struct {
	sessions    *session.Manager
	staging     storage.Store
	maxFileSize int64
	logger      *slog.Logger

	// baseCtx outlives requests; tasks started by a selection run under it.
	baseCtx context.Context
}

// NewHandler creates a new API handler. Reads are bound to baseCtx, not to the
// request that started them.
func NewHandler(baseCtx context.Context, sessions *session.Manager, staging storage.Store, maxFileSize int64, logger *slog.Logger) *Handler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:    sessions,
		staging:     staging,
		maxFileSize: maxFileSize,
		logger:      logger,
		baseCtx:     baseCtx,
	}
}

// SelectionResponse is returned when a selection has been dispatched.
type SelectionResponse struct {
	Epoch uint64   `json:"epoch"`
	Tasks []string `json:"tasks"`
}

// UploadsResponse is the JSON view of the current batch.
type UploadsResponse struct {
	Epoch uint64     `json:"epoch"`
	Count int        `json:"count"`
	Rows  []view.Row `json:"rows"`
}

// HandleIndex renders the picker page with the current rows.
func (h *Handler) HandleIndex(c echo.Context) error {
	state := h.sessionFor(c)

	rows, err := view.HTML{}.Fragment(view.Project(state.Store.Snapshot()))
	if err != nil {
		return NewInternalError("failed to render rows", err)
	}
	return web.RenderIndex(c, web.PageData{Rows: rows})
}

// HandleSelection stages the submitted files and dispatches one read per file.
// It responds before any read completes.
func (h *Handler) HandleSelection(c echo.Context) error {
	state := h.sessionFor(c)

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError(fmt.Sprintf("expected a multipart form with field %q", FormField), err)
	}

	headers := form.File[FormField]
	sources := make([]source.Readable, 0, len(headers))
	for _, fh := range headers {
		sources = append(sources, h.stage(fh))
	}

	batch := state.Dispatcher.Dispatch(h.baseCtx, sources)
	return c.JSON(http.StatusAccepted, SelectionResponse{
		Epoch: batch.Epoch,
		Tasks: batch.TaskIDs,
	})
}

// stage copies an uploaded part into the staging store. Files that cannot be
// staged still get a task so the failure is reported like any other read error.
func (h *Handler) stage(fh *multipart.FileHeader) source.Readable {
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return source.NewRejected(fh.Filename, fmt.Errorf("file is %d bytes, limit is %d", fh.Size, h.maxFileSize))
	}

	f, err := fh.Open()
	if err != nil {
		return source.NewRejected(fh.Filename, fmt.Errorf("opening upload: %w", err))
	}
	defer f.Close()

	info, err := h.staging.Save(fh.Filename, f)
	if err != nil {
		return source.NewRejected(fh.Filename, fmt.Errorf("staging upload: %w", err))
	}
	return source.NewStaged(h.staging, info.ID, fh.Filename, h.logger)
}

// HandleClear empties the list. In-flight reads of the previous batch are discarded.
func (h *Handler) HandleClear(c echo.Context) error {
	state := h.sessionFor(c)
	epoch := state.Dispatcher.Clear()
	return c.JSON(http.StatusOK, map[string]uint64{"epoch": epoch})
}

// HandleUploads returns the current rows as JSON.
func (h *Handler) HandleUploads(c echo.Context) error {
	state := h.sessionFor(c)
	rows := view.Project(state.Store.Snapshot())
	return c.JSON(http.StatusOK, UploadsResponse{
		Epoch: state.Store.Epoch(),
		Count: len(rows),
		Rows:  rows,
	})
}

// HandleUploadsMsgpack returns the current rows msgpack-encoded.
func (h *Handler) HandleUploadsMsgpack(c echo.Context) error {
	return h.renderRows(c, view.MsgPack{})
}

// HandleUploadsHTML returns the <tbody> fragment for the current rows.
func (h *Handler) HandleUploadsHTML(c echo.Context) error {
	return h.renderRows(c, view.HTML{})
}

func (h *Handler) renderRows(c echo.Context, r view.Renderer) error {
	state := h.sessionFor(c)

	var buf bytes.Buffer
	if err := r.Render(&buf, view.Project(state.Store.Snapshot())); err != nil {
		return NewInternalError("failed to render rows", err)
	}
	return c.Blob(http.StatusOK, r.ContentType(), buf.Bytes())
}

// HandleTasks lists the session's read tasks, newest first.
func (h *Handler) HandleTasks(c echo.Context) error {
	state := h.sessionFor(c)
	return c.JSON(http.StatusOK, state.Dispatcher.Tasks())
}

// HandleTask returns one read task.
func (h *Handler) HandleTask(c echo.Context) error {
	state := h.sessionFor(c)

	id := c.Param("id")
	info, ok := state.Dispatcher.Task(id)
	if !ok {
		return NewNotFoundError("task", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleSession describes the caller's own session.
func (h *Handler) HandleSession(c echo.Context) error {
	state := h.sessionFor(c)

	info, ok := h.sessions.Info(state.ID)
	if !ok {
		return NewNotFoundError("session", state.ID)
	}
	return c.JSON(http.StatusOK, info)
}

// sessionFor resolves the request's session, creating one and setting the cookie
// when the request has none.
func (h *Handler) sessionFor(c echo.Context) *session.State {
	state, cookie := resolveSession(h.sessions, c)
	if cookie != nil {
		c.SetCookie(cookie)
	}
	return state
}

// resolveSession returns the session for the request cookie. The returned
// cookie is non-nil when a new session was created and must be sent back.
func resolveSession(sessions *session.Manager, c echo.Context) (*session.State, *http.Cookie) {
	var id string
	if ck, err := c.Cookie(SessionCookie); err == nil {
		id = ck.Value
	}

	state, created := sessions.GetOrCreate(id)
	if !created {
		return state, nil
	}
	return state, &http.Cookie{
		Name:     SessionCookie,
		Value:    state.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
