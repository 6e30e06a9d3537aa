package testutil

import (
	"context"
	"errors"
)

// GatedSource is a source.Readable whose Read blocks until Release or Fail is
// called, letting tests choose the order in which reads complete.
type GatedSource struct {
	name    string
	data    []byte
	started chan struct{}
	gate    chan error
}

// NewGatedSource creates a gated source that yields data once released.
func NewGatedSource(name string, data []byte) *GatedSource {
	return &GatedSource{
		name:    name,
		data:    data,
		started: make(chan struct{}),
		gate:    make(chan error, 1),
	}
}

// Name implements source.Readable.
func (g *GatedSource) Name() string { return g.name }

// Read implements source.Readable.
func (g *GatedSource) Read(ctx context.Context) ([]byte, error) {
	close(g.started)
	select {
	case err := <-g.gate:
		if err != nil {
			return nil, err
		}
		return g.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Started is closed when Read has been entered.
func (g *GatedSource) Started() <-chan struct{} { return g.started }

// Release lets Read return the data.
func (g *GatedSource) Release() { g.gate <- nil }

// Fail makes Read return err.
func (g *GatedSource) Fail(err error) {
	if err == nil {
		err = errors.New("read failed")
	}
	g.gate <- err
}
