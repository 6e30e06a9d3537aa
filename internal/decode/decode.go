// Package decode turns file bytes into text.
package decode

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// ErrInvalidUTF8 is returned by Strict when the input is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// Decoder converts raw bytes into a string.
type Decoder interface {
	Decode(data []byte) (string, error)
}

// Mode selects a decoder by name.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeLenient Mode = "lenient"
)

// Strict accepts only valid UTF-8. With StripBOM a leading byte order mark is dropped.
type Strict struct {
	StripBOM bool
}

// Decode implements Decoder.
func (s Strict) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w at byte %d", ErrInvalidUTF8, firstInvalid(data))
	}
	if !s.StripBOM {
		return string(data), nil
	}
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("stripping byte order mark: %w", err)
	}
	return string(out), nil
}

// Lenient never fails: ill-formed sequences become U+FFFD.
type Lenient struct {
	StripBOM bool
}

// Decode implements Decoder.
func (l Lenient) Decode(data []byte) (string, error) {
	enc := unicode.UTF8
	if l.StripBOM {
		enc = unicode.UTF8BOM
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding text: %w", err)
	}
	return string(out), nil
}

// New returns the decoder for mode. Unknown modes are an error.
func New(mode Mode, stripBOM bool) (Decoder, error) {
	switch mode {
	case ModeStrict, "":
		return Strict{StripBOM: stripBOM}, nil
	case ModeLenient:
		return Lenient{StripBOM: stripBOM}, nil
	default:
		return nil, fmt.Errorf("unknown decode mode %q", mode)
	}
}

func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}
