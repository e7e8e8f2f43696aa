package ar

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingGlobalHeader indicates that the archive file is invalid because its global
	// header is missing (i.e., because the file is shorter than 8 bytes).
	ErrMissingGlobalHeader = errors.New("missing global header")

	// ErrInvalidGlobalHeader indicates that the archive file is invalid because its global
	// header is malformed (i.e., not the string "!<arch>\n").
	ErrInvalidGlobalHeader = errors.New("not an ar file")

	// ErrInvalidTerminator indicates that a file header does not end with "`\n".
	ErrInvalidTerminator = errors.New("invalid file header terminator")

	// ErrTruncatedEntry indicates that the archive ends before the data section of a member
	// has been read in full.
	ErrTruncatedEntry = errors.New("data section shorter than declared size")

	// ErrStop can be returned by the function passed to Walk to stop iterating early. Walk
	// itself then returns nil.
	ErrStop = errors.New("ar: stop walking")
)

// FormatError reports an archive that does not follow the ar file format. Err is one of the
// sentinel errors above or a *FieldError.
type FormatError struct {
	// Path is the archive's file name, if it was opened by name.
	Path string

	// Offset is the byte offset of the header or data section that failed to decode.
	Offset int64

	Err error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("ar: offset %d: %s", e.Offset, e.Err)
	}
	return fmt.Sprintf("ar: %s: offset %d: %s", e.Path, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// FieldError indicates a fixed-width header field that could not be decoded or encoded.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s %q: %s", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
