package tarfile

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type options struct {
	fs     afero.Fs
	logger *zap.Logger
}

// Option configures a Writer.
type Option func(*options)

// WithFs sets the filesystem used to create the destination and to read entry contents and
// merged archives. The default is the OS filesystem.
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

type mergeOptions struct {
	rootUID *int
	rootGID *int
	numeric bool
	filter  func(name string) bool
}

// MergeOption configures a single MergeArchive call.
type MergeOption func(*mergeOptions)

// WithRootUID makes entries owned by uid appear to be owned by root.
func WithRootUID(uid int) MergeOption {
	return func(o *mergeOptions) {
		o.rootUID = &uid
	}
}

// WithRootGID makes entries whose group is gid appear to belong to the root group.
func WithRootGID(gid int) MergeOption {
	return func(o *mergeOptions) {
		o.rootGID = &gid
	}
}

// WithNumericOwners drops user and group names, leaving only numeric ids.
func WithNumericOwners() MergeOption {
	return func(o *mergeOptions) {
		o.numeric = true
	}
}

// WithNameFilter only merges entries for which keep returns true. keep sees the name as
// stored in the source archive, before normalization, except that directories lose their
// trailing "/": a source entry "usr/" is passed to keep as "usr".
func WithNameFilter(keep func(name string) bool) MergeOption {
	return func(o *mergeOptions) {
		o.filter = keep
	}
}
