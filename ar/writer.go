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
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	ErrWriteTooLong = errors.New("ar: write too long")
	ErrWriterClosed = errors.New("ar: write to closed writer")
)

// Writer provides sequential writing of a System V ar archive, the variant Reader decodes.
// An ar archive is sequence of header file pairs
// Call WriteHeader to begin writing a new file, then call Write to supply the file's data
//
// Example:
//
//	archive := ar.NewWriter(writer)
//	header := new(ar.Header)
//	header.Size = 15 // bytes
//	if err := archive.WriteHeader(header); err != nil {
//		return err
//	}
//	io.Copy(archive, data)
type Writer struct {
	// w is the underlying io.Writer to which the archive file is written.
	w io.Writer

	// closed is true if Close has been called on this Writer, or false if it has not.
	closed bool

	// wroteHeader is true if the archive header has been written to the underlying io.Writer, or
	// false if it has not yet.
	wroteHeader bool

	// nb is the number of bytes that have not yet been written (via Write) since the most
	// recent call to WriteHeader.
	nb int64

	// pad is true if the current data section has an odd length and must be followed by a
	// newline once it has been written in full.
	pad bool
}

// NewWriter creates a new Writer that writes an ar archive to an underlying io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (aw *Writer) field(b []byte, name, s string) error {
	if len(s) > len(b) {
		return &FieldError{Field: name, Value: s, Err: fmt.Errorf("longer than %d bytes", len(b))}
	}
	for len(s) < len(b) {
		s = s + " "
	}
	copy(b, []byte(s))
	return nil
}

func (aw *Writer) numeric(b []byte, name string, x int64) error {
	return aw.field(b, name, strconv.FormatInt(x, 10))
}

func (aw *Writer) octal(b []byte, name string, x int64) error {
	return aw.field(b, name, strconv.FormatInt(x, 8))
}

func (aw *Writer) write(p []byte) (int, error) {
	if aw.closed {
		return 0, ErrWriterClosed
	}
	if err := aw.writeHeader(); err != nil {
		return 0, err
	}
	return aw.w.Write(p)
}

// Close finishes writing the archive, ensuring that a valid archive header has been written even if
// the archive contains no files. It does not close the underlying io.Writer.
func (aw *Writer) Close() error {
	if aw.closed {
		return errors.New("ar: writer closed twice")
	}
	if err := aw.writeHeader(); err != nil {
		return err
	}
	aw.closed = true
	return nil
}

// Writes to the current entry in the ar archive
// Returns ErrWriteTooLong if more than header.Size
// bytes are written after a call to WriteHeader
func (aw *Writer) Write(b []byte) (n int, err error) {
	if int64(len(b)) > aw.nb {
		b = b[0:aw.nb]
		err = ErrWriteTooLong
	}
	n, werr := aw.write(b)
	aw.nb -= int64(n)
	if werr != nil {
		return n, werr
	}

	if aw.nb == 0 && aw.pad { // data size must be aligned to an even byte
		aw.pad = false
		if _, err := aw.write([]byte{'\n'}); err != nil {
			// Return n although we actually wrote n+1 bytes.
			// This is to make io.Copy() to work correctly.
			return n, err
		}
	}

	return
}

// writeHeader writes the ar header to the underlying io.Writer. This must only happen once, and must
// be the first write operation on the io.Writer.
func (aw *Writer) writeHeader() error {
	if aw.wroteHeader {
		return nil
	}
	aw.wroteHeader = true
	if _, err := aw.w.Write([]byte(GLOBAL_HEADER)); err != nil {
		return fmt.Errorf("ar: write archive header: %w", err)
	}
	return nil
}

// Writes the header to the underlying writer and prepares
// to receive the file payload. Names are stored with the
// trailing "/" of the System V variant, so they may be at
// most 15 bytes long.
func (aw *Writer) WriteHeader(hdr *Header) error {
	if aw.nb > 0 {
		return fmt.Errorf("ar: %d bytes of previous entry not written", aw.nb)
	}
	if hdr.Size < 0 {
		return &FieldError{Field: "size", Value: strconv.FormatInt(hdr.Size, 10), Err: errors.New("negative size")}
	}
	header := make([]byte, HEADER_BYTE_SIZE)
	s := slicer(header)

	var mtime int64
	if !hdr.ModTime.IsZero() {
		mtime = hdr.ModTime.Unix()
	}
	for _, err := range []error{
		aw.field(s.next(nameWidth), "name", hdr.Name+"/"),
		aw.numeric(s.next(mtimeWidth), "mtime", mtime),
		aw.numeric(s.next(uidWidth), "uid", int64(hdr.Uid)),
		aw.numeric(s.next(gidWidth), "gid", int64(hdr.Gid)),
		aw.octal(s.next(modeWidth), "mode", hdr.Mode),
		aw.numeric(s.next(sizeWidth), "size", hdr.Size),
		aw.field(s.next(termWidth), "terminator", HEADER_TERMINATOR),
	} {
		if err != nil {
			return fmt.Errorf("ar: %w", err)
		}
	}

	if _, err := aw.write(header); err != nil {
		return err
	}
	aw.nb = hdr.Size
	aw.pad = hdr.Size%2 == 1
	return nil
}
