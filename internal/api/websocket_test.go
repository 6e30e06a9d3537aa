package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filetable/backend/internal/models"
	"github.com/filetable/backend/internal/session"
	"github.com/filetable/backend/internal/testutil"
	"github.com/filetable/backend/internal/upload"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()
	logger, _ := testutil.NewLogger()
	sessions := session.NewManager(4, logger, upload.WithLogger(logger))

	e := echo.New()
	SetupMiddleware(e, MiddlewareConfig{Logger: logger, RequestLogging: true, BodyLimit: "1M"})
	RegisterRoutes(e, NewHandlers(&Dependencies{
		BaseContext: context.Background(),
		Sessions:    sessions,
		Staging:     testutil.NewMockStorage(),
		WSReadLimit: 4096,
		Version:     "test",
		Logger:      logger,
	}))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, sessions
}

func dialResults(t *testing.T, srv *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var id string
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookie {
			id = ck.Value
		}
	}
	require.NotEmpty(t, id, "handshake should set the session cookie")
	return ws, id
}

// readUntil reads frames until match accepts one or the deadline passes.
func readUntil(t *testing.T, ws *websocket.Conn, match func(WSMessage) bool) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func renderWithCount(n int) func(WSMessage) bool {
	return func(msg WSMessage) bool {
		if msg.Type != MsgTypeRender {
			return false
		}
		var p RenderPayload
		return json.Unmarshal(msg.Payload, &p) == nil && p.Count == n
	}
}

func decodeRender(t *testing.T, msg WSMessage) RenderPayload {
	t.Helper()
	var p RenderPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func TestWebSocket_InitialRender(t *testing.T) {
	srv, _ := newTestServer(t)
	ws, _ := dialResults(t, srv)

	msg := readUntil(t, ws, func(m WSMessage) bool { return true })
	assert.Equal(t, MsgTypeRender, msg.Type)
	p := decodeRender(t, msg)
	assert.Equal(t, 0, p.Count)
	assert.Empty(t, p.HTML)
}

func TestWebSocket_RendersAfterSelection(t *testing.T) {
	srv, _ := newTestServer(t)
	ws, id := dialResults(t, srv)
	readUntil(t, ws, renderWithCount(0))

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for name, content := range map[string]string{"a.txt": "hello", "b.txt": "world"} {
		part, err := writer.CreateFormFile(FormField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/selection", body)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	p := decodeRender(t, readUntil(t, ws, renderWithCount(2)))
	assert.Contains(t, p.HTML, "<td>a.txt</td>")
	assert.Contains(t, p.HTML, "<td>b.txt</td>")
	assert.Equal(t, uint64(1), p.Epoch)
}

func TestWebSocket_PingPong(t *testing.T) {
	srv, _ := newTestServer(t)
	ws, _ := dialResults(t, srv)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1", Timestamp: time.Now().UnixMilli()}))

	msg := readUntil(t, ws, func(m WSMessage) bool { return m.Type == MsgTypePong })
	assert.Equal(t, "p1", msg.ID)
}

func TestWebSocket_ClearMessage(t *testing.T) {
	srv, sessions := newTestServer(t)
	ws, id := dialResults(t, srv)
	readUntil(t, ws, renderWithCount(0))

	state, ok := sessions.Get(id)
	require.True(t, ok)
	state.Store.Append(models.NewUpload("a.txt", "hello"))
	readUntil(t, ws, renderWithCount(1))

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeClear}))
	readUntil(t, ws, renderWithCount(0))
	assert.Equal(t, 0, state.Store.Len())
}

func TestWebSocket_LastRenderIsLatest(t *testing.T) {
	srv, sessions := newTestServer(t)
	ws, id := dialResults(t, srv)
	readUntil(t, ws, renderWithCount(0))

	state, _ := sessions.Get(id)
	for i := 0; i < 50; i++ {
		state.Store.Append(models.NewUpload("f.txt", "x"))
	}

	p := decodeRender(t, readUntil(t, ws, renderWithCount(50)))
	assert.Equal(t, 50, strings.Count(p.HTML, "<tr>"))
}

func TestWebSocket_RenderCarriesSnapshotEpoch(t *testing.T) {
	srv, sessions := newTestServer(t)
	ws, id := dialResults(t, srv)
	readUntil(t, ws, renderWithCount(0))

	state, _ := sessions.Get(id)
	before := state.Store.Epoch()
	state.Store.Append(models.NewUpload("a.txt", "hello"))
	after := state.Store.Clear()

	msg := readUntil(t, ws, func(m WSMessage) bool {
		if m.Type != MsgTypeRender {
			return false
		}
		p := decodeRender(t, m)
		if p.Count == 1 {
			assert.Equal(t, before, p.Epoch, "a row from the old batch must be labelled with its own epoch")
			return false
		}
		return p.Epoch == after
	})
	assert.Equal(t, 0, decodeRender(t, msg).Count)
}
