package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// LogCapture collects JSON log records for assertions.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// NewLogger returns a debug-level JSON logger writing into a new capture.
func NewLogger() (*slog.Logger, *LogCapture) {
	c := &LogCapture{}
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}

// Records returns the decoded records at or above level.
func (c *LogCapture) Records(level slog.Level) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		var lvl slog.Level
		if s, ok := rec["level"].(string); ok && lvl.UnmarshalText([]byte(s)) == nil && lvl >= level {
			out = append(out, rec)
		}
	}
	return out
}

// Errors returns the error-level records.
func (c *LogCapture) Errors() []map[string]any {
	return c.Records(slog.LevelError)
}
