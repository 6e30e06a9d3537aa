package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/filetable/backend/internal/models"
	"github.com/filetable/backend/internal/session"
	"github.com/filetable/backend/internal/view"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing  = "ping"
	MsgTypeClear = "clear"

	// Server -> Client messages
	MsgTypeRender = "render"
	MsgTypePong   = "pong"
	MsgTypeError  = "error"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// RenderPayload carries the re-rendered results table.
type RenderPayload struct {
	Epoch uint64 `json:"epoch"`
	Count int    `json:"count"`
	HTML  string `json:"html"`
}

// WSErrorResponse is the payload of an error frame.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes a fresh render of the results table to the browser
// after every change to the session's upload store.
type WebSocketHandler struct {
	sessions  *session.Manager
	upgrader  websocket.Upgrader
	readLimit int64
	logger    *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. readLimit caps incoming
// frames in bytes; zero leaves gorilla's default.
func NewWebSocketHandler(sessions *session.Manager, readLimit int64, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		readLimit: readLimit,
		logger:    logger,
	}
}

// HandleWebSocket upgrades the connection and streams render messages until
// the client goes away.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	state, cookie := resolveSession(wsh.sessions, c)

	var header http.Header
	if cookie != nil {
		header = http.Header{}
		header.Add("Set-Cookie", cookie.String())
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), header)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return nil
	}
	defer ws.Close()
	if wsh.readLimit > 0 {
		ws.SetReadLimit(wsh.readLimit)
	}

	log := wsh.logger.With(slog.String("session", shortSession(state.ID)))
	log.Debug("websocket connected")

	// Latest snapshot wins. Store notifications are serialized, so there is a
	// single producer at a time and the drain-then-send below cannot lose the
	// newest value.
	updates := make(chan renderUpdate, 1)
	unsubscribe := state.Store.Subscribe(func(epoch uint64, snapshot []models.Upload) {
		u := renderUpdate{epoch: epoch, snapshot: snapshot}
		select {
		case updates <- u:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- u:
			default:
			}
		}
	})
	defer unsubscribe()

	// Only this goroutine writes to ws. The reader hands requests over.
	pings := make(chan string, 8)
	closed := make(chan struct{})
	go wsh.readLoop(ws, state, pings, closed, log)

	// A mutation racing this read is also queued in updates and rendered next.
	epoch, snapshot := state.Store.Current()
	if err := wsh.sendRender(ws, epoch, snapshot); err != nil {
		log.Debug("initial render failed", slog.String("err", err.Error()))
		return nil
	}

	for {
		select {
		case u := <-updates:
			if err := wsh.sendRender(ws, u.epoch, u.snapshot); err != nil {
				log.Debug("render push failed", slog.String("err", err.Error()))
				return nil
			}
		case id := <-pings:
			if err := wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, ID: id, Timestamp: time.Now().UnixMilli()}); err != nil {
				return nil
			}
		case <-closed:
			log.Debug("websocket disconnected")
			return nil
		}
	}
}

func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, state *session.State, pings chan<- string, closed chan<- struct{}, log *slog.Logger) {
	defer close(closed)

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", slog.String("err", err.Error()))
			}
			return
		}

		wsh.sessions.Touch(state.ID)

		switch msg.Type {
		case MsgTypePing:
			select {
			case pings <- msg.ID:
			default:
			}
		case MsgTypeClear:
			state.Dispatcher.Clear()
		default:
			log.Debug("unknown websocket message", slog.String("type", msg.Type))
		}
	}
}

// renderUpdate is a store snapshot paired with the epoch it was taken in.
type renderUpdate struct {
	epoch    uint64
	snapshot []models.Upload
}

func (wsh *WebSocketHandler) sendRender(ws *websocket.Conn, epoch uint64, snapshot []models.Upload) error {
	html, err := view.HTML{}.Fragment(view.Project(snapshot))
	if err != nil {
		return wsh.sendMessage(ws, WSMessage{
			Type:      MsgTypeError,
			Timestamp: time.Now().UnixMilli(),
			Payload:   mustJSON(WSErrorResponse{Message: err.Error(), Code: "RENDER_ERROR"}),
		})
	}

	return wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeRender,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(RenderPayload{
			Epoch: epoch,
			Count: len(snapshot),
			HTML:  string(html),
		}),
	})
}

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteJSON(msg)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
