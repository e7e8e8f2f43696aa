// Package tarfile builds tar archives for image layers: synthetic entries are appended one by
// one and existing, possibly compressed, archives are merged in with their timestamps and
// ownership normalized.
package tarfile

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by every method of a Writer after Close.
	ErrClosed = errors.New("tarfile: writer is closed")

	// ErrAmbiguousContent is returned by AddEntry when both Content and File are set.
	ErrAmbiguousContent = errors.New("tarfile: entry has both Content and File")

	// ErrContentNotAllowed is returned by AddEntry when Content or File is set on an entry
	// whose kind has no data, such as a directory or a symlink.
	ErrContentNotAllowed = errors.New("tarfile: entry kind cannot carry content")
)

const (
	defaultFileMode  = 0644
	defaultOtherMode = 0755
)

// Entry describes a synthetic entry for AddEntry.
type Entry struct {
	// Name is the path inside the archive. See NormalizeName.
	Name string

	// Kind is a tar type flag such as tar.TypeDir or tar.TypeSymlink. The zero value means
	// tar.TypeReg.
	Kind byte

	// Content is stored as the entry's data. At most one of Content and File may be set;
	// an empty Content counts as unset.
	Content []byte

	// File names a file whose data is stored as the entry's data. Its size is taken when
	// AddEntry is called.
	File string

	// Link is the target of a symlink or hard link.
	Link string

	Uid   int
	Gid   int
	Uname string
	Gname string

	// ModTime defaults to the Unix epoch.
	ModTime time.Time

	// Mode defaults to 0644 for regular files and 0755 for everything else.
	Mode int64
}

// Writer appends entries to an uncompressed tar archive. It is not safe for concurrent use.
type Writer struct {
	tw *tar.Writer

	// file is the destination, if the Writer created it and must close it.
	file io.Closer

	fs     afero.Fs
	logger *zap.Logger
	closed bool
}

// Create creates or truncates the file at path and returns a Writer that writes a tar
// archive to it. Callers wanting a compressed archive should wrap a stream of their own with
// NewWriter instead.
func Create(path string, opts ...Option) (*Writer, error) {
	o := newOptions(opts)
	f, err := o.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	w := newWriter(f, o)
	w.file = f
	w.logger = w.logger.With(zap.String("archive", path))
	return w, nil
}

// NewWriter returns a Writer that writes a tar archive to w. Close does not close w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return newWriter(w, newOptions(opts))
}

func newWriter(w io.Writer, o *options) *Writer {
	return &Writer{
		tw:     tar.NewWriter(w),
		fs:     o.fs,
		logger: o.logger,
	}
}

// NormalizeName prefixes name with "./" unless it already starts with "." or "/".
func NormalizeName(name string) string {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
		return name
	}
	return "./" + name
}

// entryName is the name stored for an entry of the given kind: NormalizeName, plus the
// trailing "/" that marks a directory.
func entryName(name string, flag byte) string {
	name = NormalizeName(name)
	if flag == tar.TypeDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// headerOnly reports whether entries of the given kind never have data.
func headerOnly(flag byte) bool {
	switch flag {
	case tar.TypeLink, tar.TypeSymlink, tar.TypeChar, tar.TypeBlock, tar.TypeDir, tar.TypeFifo:
		return true
	}
	return false
}

// AddEntry appends one entry to the archive. Entries are never deduplicated: adding the same
// name twice stores it twice.
func (w *Writer) AddEntry(e Entry) error {
	if w.closed {
		return ErrClosed
	}
	if len(e.Content) > 0 && e.File != "" {
		return ErrAmbiguousContent
	}
	kind := e.Kind
	if kind == 0 {
		kind = tar.TypeReg
	}
	if headerOnly(kind) && (len(e.Content) > 0 || e.File != "") {
		return fmt.Errorf("%w: %s", ErrContentNotAllowed, e.Name)
	}

	hdr := &tar.Header{
		Typeflag: kind,
		Name:     entryName(e.Name, kind),
		Linkname: e.Link,
		Uid:      e.Uid,
		Gid:      e.Gid,
		Uname:    e.Uname,
		Gname:    e.Gname,
		ModTime:  e.ModTime,
		Mode:     e.Mode,
	}
	if hdr.ModTime.IsZero() {
		hdr.ModTime = time.Unix(0, 0)
	}
	if hdr.Mode == 0 {
		hdr.Mode = defaultOtherMode
		if hdr.Typeflag == tar.TypeReg {
			hdr.Mode = defaultFileMode
		}
	}

	var err error
	switch {
	case len(e.Content) > 0:
		hdr.Size = int64(len(e.Content))
		err = w.writeEntry(hdr, bytes.NewReader(e.Content))
	case e.File != "":
		err = w.addFile(hdr, e.File)
	default:
		err = w.writeEntry(hdr, nil)
	}
	if err != nil {
		return err
	}

	w.logger.Debug("added entry", zap.String("name", hdr.Name), zap.Int64("size", hdr.Size))
	return nil
}

func (w *Writer) addFile(hdr *tar.Header, path string) (err error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open entry content: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close entry content: %w", cerr)).ErrorOrNil()
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat entry content: %w", err)
	}
	hdr.Size = info.Size()
	return w.writeEntry(hdr, f)
}

// writeEntry writes hdr followed by exactly hdr.Size bytes from data.
func (w *Writer) writeEntry(hdr *tar.Header, data io.Reader) error {
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", hdr.Name, err)
	}
	if data == nil || hdr.Size == 0 {
		return nil
	}
	if _, err := io.CopyN(w.tw, data, hdr.Size); err != nil {
		return fmt.Errorf("failed to write tar content for %s: %w", hdr.Name, err)
	}
	return nil
}

// Close writes the end-of-archive marker and closes the destination file if Create opened
// it. The Writer cannot be used afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	var result *multierror.Error
	if err := w.tw.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close tar writer: %w", err))
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close archive: %w", err))
		}
	}
	return result.ErrorOrNil()
}
