package ar

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	HEADER_BYTE_SIZE = 60
	GLOBAL_HEADER    = "!<arch>\n"

	// HEADER_TERMINATOR closes every file header.
	HEADER_TERMINATOR = "`\n"
)

// Widths of the fixed fields of a System V file header, in order.
const (
	nameWidth  = 16
	mtimeWidth = 12
	uidWidth   = 6
	gidWidth   = 6
	modeWidth  = 8
	sizeWidth  = 10
	termWidth  = 2
)

// Header holds the metadata of one archive member.
type Header struct {
	Name    string
	ModTime time.Time
	Uid     int
	Gid     int
	Mode    int64
	Size    int64
}

// Entry is one decoded archive member. Data is read eagerly and always holds
// exactly Size bytes.
type Entry struct {
	Header
	Data []byte
}

type slicer []byte

func (sp *slicer) next(n int) (b []byte) {
	s := *sp
	b, *sp = s[0:n], s[n:]
	return
}

type options struct {
	fs     afero.Fs
	logger *zap.Logger
}

// Option configures Open, NewReader and Walk.
type Option func(*options)

// WithFs sets the filesystem archives are opened from. The default is the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithLogger sets the logger used for debug events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		fs:     afero.NewOsFs(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
