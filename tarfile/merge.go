package tarfile

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/please-build/archive/internal/compression"
)

// MergeArchive appends the entries of the tar archive at src, in their original order.
//
// The archive is decompressed according to its extension: .gz and .tgz as gzip, .bz2 and
// .bzip2 as bzip2, .xz and .lzma as xz. Any other extension is read as an uncompressed tar,
// so a compressed archive with an unexpected name fails to merge. Xz archives are
// decompressed into memory in full.
//
// Every merged entry gets a modification time of zero and a "./" name prefix (see
// NormalizeName); ownership is rewritten according to opts. GNU sparse files are stored as
// regular files with their holes filled in.
func (w *Writer) MergeArchive(src string, opts ...MergeOption) (err error) {
	if w.closed {
		return ErrClosed
	}
	o := &mergeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	kind := compression.FromPath(src)
	logger := w.logger.With(zap.String("source", src), zap.Stringer("compression", kind))

	f, err := w.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close source archive: %w", cerr)).ErrorOrNil()
		}
	}()

	zr, err := kind.Reader(f)
	if err != nil {
		return fmt.Errorf("failed to open source archive %s: %w", src, err)
	}
	defer func() {
		if cerr := zr.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close decompressor: %w", cerr)).ErrorOrNil()
		}
	}()

	logger.Debug("merging archive")

	var merged, skipped int
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read source archive %s: %w", src, err)
		}

		// Global PAX headers describe the source archive, not a file in it.
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if o.filter != nil && !o.filter(filterName(hdr)) {
			skipped++
			continue
		}

		o.rewrite(hdr)

		var data io.Reader
		if isRegular(hdr.Typeflag) {
			data = tr
		} else {
			hdr.Size = 0
		}
		if err := w.writeEntry(hdr, data); err != nil {
			return err
		}
		merged++
	}

	logger.Debug("merged archive", zap.Int("merged", merged), zap.Int("skipped", skipped))
	return nil
}

// rewrite normalizes a header read from a merged archive.
func (o *mergeOptions) rewrite(hdr *tar.Header) {
	hdr.ModTime = time.Unix(0, 0)
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}

	if o.rootUID != nil && hdr.Uid == *o.rootUID {
		hdr.Uid = 0
		hdr.Uname = "root"
	}
	if o.rootGID != nil && hdr.Gid == *o.rootGID {
		hdr.Gid = 0
		hdr.Gname = "root"
	}
	if o.numeric {
		hdr.Uname = ""
		hdr.Gname = ""
	}

	// The tar reader has already expanded a GNU sparse file: Size is the logical size and
	// reads return the holes as zeros. archive/tar cannot write the sparse form back.
	if hdr.Typeflag == tar.TypeGNUSparse {
		hdr.Typeflag = tar.TypeReg
	}

	hdr.Name = entryName(hdr.Name, hdr.Typeflag)
	// The "./" prefix may push a name past what the source's format can hold.
	hdr.Format = tar.FormatUnknown
}

// filterName is the name a MergeOption filter sees: the stored name, without the trailing
// "/" of a directory.
func filterName(hdr *tar.Header) string {
	if hdr.Typeflag == tar.TypeDir {
		return strings.TrimRight(hdr.Name, "/")
	}
	return hdr.Name
}

func isRegular(flag byte) bool {
	return flag == tar.TypeReg || flag == tar.TypeCont
}
