package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/filetable/backend/internal/storage"
)

// Staged reads a file previously saved in a staging store. The staged copy is
// removed once it has been read, successfully or not, or when it is discarded.
type Staged struct {
	store  storage.Store
	id     string
	name   string
	logger *slog.Logger
}

// NewStaged creates a source for the staged file id.
func NewStaged(store storage.Store, id, name string, logger *slog.Logger) *Staged {
	if logger == nil {
		logger = slog.Default()
	}
	return &Staged{store: store, id: id, name: name, logger: logger}
}

// ID returns the staging ID.
func (s *Staged) ID() string { return s.id }

// Name implements Readable.
func (s *Staged) Name() string { return s.name }

// Read implements Readable.
func (s *Staged) Read(ctx context.Context) ([]byte, error) {
	defer s.release()

	rc, err := s.store.Open(s.id)
	if err != nil {
		return nil, fmt.Errorf("opening staged %s: %w", s.name, err)
	}
	defer rc.Close()

	return readAll(ctx, rc)
}

// Discard implements Discarder. It removes the staged copy of a file that will
// not be read.
func (s *Staged) Discard() error {
	if err := s.store.Delete(s.id); err != nil {
		return fmt.Errorf("discarding staged %s: %w", s.name, err)
	}
	return nil
}

func (s *Staged) release() {
	if err := s.Discard(); err != nil {
		s.logger.Debug("staged file already gone", slog.String("id", s.id), slog.String("err", err.Error()))
	}
}
