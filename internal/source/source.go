// Package source defines where selected file bytes come from.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Readable is anything that can asynchronously yield the full bytes of one named file.
type Readable interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
}

// Discarder is implemented by sources holding a resource that must be released
// when the source is dropped without being read.
type Discarder interface {
	Discard() error
}

// File reads a path on the local filesystem.
type File struct {
	Path string
	// MaxSize rejects files larger than this many bytes. Zero means no limit.
	MaxSize int64
}

// NewFile creates a File source for path.
func NewFile(path string, maxSize int64) *File {
	return &File{Path: path, MaxSize: maxSize}
}

// Name returns the base name of the path.
func (f *File) Name() string {
	return filepath.Base(f.Path)
}

// Read implements Readable.
func (f *File) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer fh.Close()

	stat, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", f.Path)
	}
	if f.MaxSize > 0 && stat.Size() > f.MaxSize {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", stat.Size(), f.MaxSize)
	}

	return readAll(ctx, fh)
}

// Bytes is an in-memory source.
type Bytes struct {
	name string
	data []byte
}

// NewBytes creates a Bytes source. data is not copied.
func NewBytes(name string, data []byte) *Bytes {
	return &Bytes{name: name, data: data}
}

// Name implements Readable.
func (b *Bytes) Name() string { return b.name }

// Read implements Readable.
func (b *Bytes) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return bytes.Clone(b.data), nil
}

// readAll copies r into memory, checking ctx between chunks.
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
	}
}

// Rejected is a selection entry that was refused before it could be read, e.g.
// an upload over the size limit. Reading it always fails with the stored error.
type Rejected struct {
	name string
	err  error
}

// NewRejected creates a source whose Read returns err.
func NewRejected(name string, err error) *Rejected {
	return &Rejected{name: name, err: err}
}

// Name implements Readable.
func (r *Rejected) Name() string { return r.name }

// Read implements Readable.
func (r *Rejected) Read(context.Context) ([]byte, error) {
	return nil, r.err
}
