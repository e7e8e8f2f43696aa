// Package compression picks and opens the decompressor for an archive based on its file
// name.
package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Kind is a compression format.
type Kind int

const (
	None Kind = iota
	Gzip
	Bzip2
	// Xz covers both the xz container and the legacy lzma ("lzma alone") format.
	Xz
)

// xzMagic starts every stream in the xz container format.
var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Gzip:
		return "gz"
	case Bzip2:
		return "bz2"
	case Xz:
		return "xz"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FromPath returns the compression implied by the extension of path. Unknown or missing
// extensions mean None, even if the file turns out to be compressed.
func FromPath(path string) Kind {
	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case "tgz", "gz":
		return Gzip
	case "bzip2", "bz2":
		return Bzip2
	case "lzma", "xz":
		return Xz
	}
	return None
}

// Reader returns a reader that decompresses r. Closing it releases the decompressor but not
// r.
//
// Xz input is decoded into memory in full before Reader returns, so its memory use grows with
// the uncompressed size of the archive.
func (k Kind) Reader(r io.Reader) (io.ReadCloser, error) {
	switch k {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return zr, nil
	case Bzip2:
		zr, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create bzip2 reader: %w", err)
		}
		return zr, nil
	case Xz:
		return readXz(r)
	}
	return nil, fmt.Errorf("unsupported compression: %s", k)
}

func readXz(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read xz header: %w", err)
	}

	var zr io.Reader
	if bytes.Equal(magic, xzMagic) {
		zr, err = xz.NewReader(br)
	} else {
		zr, err = lzma.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("failed to decompress xz stream: %w", err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}
