package jsonl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4"
)

// Open opens a JSONL source for sequential reading.
//
// Paths ending in ".lz4" are decompressed transparently; anything else is
// read as plain text. The caller must Close the returned reader.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".lz4") {
		return f, nil
	}
	return &lz4File{Reader: lz4.NewReader(f), f: f}, nil
}

type lz4File struct {
	*lz4.Reader
	f *os.File
}

func (l *lz4File) Close() error { return l.f.Close() }
