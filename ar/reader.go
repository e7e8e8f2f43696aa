/*
Copyright (c) 2013 Blake Smith <blakesmith0@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package ar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Reader provides sequential read access to a System V ar archive.
// Each call to Next decodes one member, data included.
//
// Example:
//
//	reader, err := ar.Open("package.deb")
//	if err != nil {
//		return err
//	}
//	defer reader.Close()
//	for entry, err := range reader.All() {
//		if err != nil {
//			return err
//		}
//		fmt.Println(entry.Name, len(entry.Data))
//	}
type Reader struct {
	// r is the underlying archive file.
	r *bufio.Reader

	// closer releases the archive file. It is nil when the caller owns the stream.
	closer io.Closer

	// path is the archive's file name, used in error messages.
	path string

	// size is the total size of the archive in bytes.
	size int64

	// off is the number of bytes consumed from the start of the archive.
	off int64

	// err is returned by every call to Next once iteration has ended, either io.EOF or the
	// error that stopped it.
	err error

	logger *zap.Logger
}

// Open opens the named archive and validates its global header. The caller must Close the
// returned Reader; Walk does this automatically.
func Open(path string, opts ...Option) (*Reader, error) {
	o := newOptions(opts)
	f, err := o.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ar: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ar: %w", err)
	}
	rd, err := newReader(f, info.Size(), path, o)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.closer = f
	return rd, nil
}

// NewReader creates a new reader reading an archive of size bytes from r. It returns an
// error if the global archive header is missing or malformed.
func NewReader(r io.Reader, size int64, opts ...Option) (*Reader, error) {
	return newReader(r, size, "", newOptions(opts))
}

func newReader(r io.Reader, size int64, path string, o *options) (*Reader, error) {
	rd := &Reader{
		r:      bufio.NewReader(r),
		path:   path,
		size:   size,
		logger: o.logger,
	}
	// Ensure the global archive header is valid.
	hdr := make([]byte, len(GLOBAL_HEADER))
	if _, err := io.ReadFull(rd.r, hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, rd.formatError(0, ErrMissingGlobalHeader)
		}
		return nil, fmt.Errorf("ar: %w", err)
	}
	if string(hdr) != GLOBAL_HEADER {
		return nil, rd.formatError(0, ErrInvalidGlobalHeader)
	}
	rd.off = int64(len(GLOBAL_HEADER))
	rd.logger.Debug("opened ar archive", zap.String("path", path), zap.Int64("size", size))
	return rd, nil
}

func (rd *Reader) formatError(off int64, err error) error {
	return &FormatError{Path: rd.path, Offset: off, Err: err}
}

func (rd *Reader) string(b []byte) string {
	// File names in the System V variant end with "/".
	return strings.TrimSuffix(strings.TrimSpace(string(b)), "/")
}

func (rd *Reader) numeric(field string, b []byte, base int) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), base, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Value: string(b), Err: err}
	}
	return n, nil
}

// fail ends iteration; every later call to Next returns err.
func (rd *Reader) fail(err error) (*Entry, error) {
	rd.err = err
	return nil, err
}

// Next reads the next member of the archive. io.EOF is returned at the end of the input,
// and on every call after that.
//
// Fewer than HEADER_BYTE_SIZE bytes left after the current member are treated as trailing
// garbage rather than as a truncated header.
func (rd *Reader) Next() (*Entry, error) {
	if rd.err != nil {
		return nil, rd.err
	}

	// Data sections are aligned to an even offset with a trailing newline.
	if rd.off%2 == 1 {
		if _, err := rd.r.Discard(1); err != nil {
			if errors.Is(err, io.EOF) {
				return rd.fail(io.EOF)
			}
			return rd.fail(fmt.Errorf("ar: %w", err))
		}
		rd.off++
	}

	if rd.off > rd.size-HEADER_BYTE_SIZE {
		if rd.off < rd.size {
			rd.logger.Debug("ignoring trailing bytes in ar archive",
				zap.String("path", rd.path), zap.Int64("offset", rd.off), zap.Int64("bytes", rd.size-rd.off))
		}
		return rd.fail(io.EOF)
	}

	start := rd.off
	headerBuf := make([]byte, HEADER_BYTE_SIZE)
	n, err := io.ReadFull(rd.r, headerBuf)
	rd.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return rd.fail(rd.formatError(start, ErrTruncatedEntry))
		}
		return rd.fail(fmt.Errorf("ar: %w", err))
	}

	header, err := rd.parseHeader(headerBuf)
	if err != nil {
		return rd.fail(rd.formatError(start, err))
	}
	if header.Size > rd.size-rd.off {
		return rd.fail(rd.formatError(start, ErrTruncatedEntry))
	}

	data := make([]byte, header.Size)
	n, err = io.ReadFull(rd.r, data)
	rd.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return rd.fail(rd.formatError(start, ErrTruncatedEntry))
		}
		return rd.fail(fmt.Errorf("ar: %w", err))
	}

	return &Entry{Header: *header, Data: data}, nil
}

func (rd *Reader) parseHeader(headerBuf []byte) (*Header, error) {
	s := slicer(headerBuf)
	header := &Header{}
	header.Name = rd.string(s.next(nameWidth))

	mtime, err := rd.numeric("mtime", s.next(mtimeWidth), 10)
	if err != nil {
		return nil, err
	}
	header.ModTime = time.Unix(mtime, 0)

	uid, err := rd.numeric("uid", s.next(uidWidth), 10)
	if err != nil {
		return nil, err
	}
	header.Uid = int(uid)

	gid, err := rd.numeric("gid", s.next(gidWidth), 10)
	if err != nil {
		return nil, err
	}
	header.Gid = int(gid)

	if header.Mode, err = rd.numeric("mode", s.next(modeWidth), 8); err != nil {
		return nil, err
	}

	sizeField := s.next(sizeWidth)
	if header.Size, err = rd.numeric("size", sizeField, 10); err != nil {
		return nil, err
	}
	if header.Size < 0 {
		return nil, &FieldError{Field: "size", Value: string(sizeField), Err: errors.New("negative size")}
	}

	if string(s.next(termWidth)) != HEADER_TERMINATOR {
		return nil, ErrInvalidTerminator
	}
	return header, nil
}

// All returns an iterator over the remaining members of the archive. Iteration stops after
// the first error, which is yielded with a nil entry. The sequence cannot be restarted:
// members consumed by All or Next are not seen again.
func (rd *Reader) All() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for {
			entry, err := rd.Next()
			if err == io.EOF {
				return
			}
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the archive file if the Reader opened it. Further calls to Next return
// io.EOF.
func (rd *Reader) Close() error {
	if rd.err == nil {
		rd.err = io.EOF
	}
	if rd.closer == nil {
		return nil
	}
	c := rd.closer
	rd.closer = nil
	if err := c.Close(); err != nil {
		return fmt.Errorf("ar: %w", err)
	}
	return nil
}

// Walk opens the named archive and calls fn for each member in order. The archive is
// closed before Walk returns, whether iteration finished, failed, or fn returned ErrStop.
func Walk(path string, fn func(*Entry) error, opts ...Option) (err error) {
	rd, err := Open(path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	for entry, err := range rd.All() {
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
