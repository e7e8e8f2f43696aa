package tarfile

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type readEntry struct {
	Header  *tar.Header
	Content string
}

// readArchive returns the entries of the uncompressed tar archive at path, in order.
func readArchive(t *testing.T, fs afero.Fs, path string) []readEntry {
	t.Helper()
	data := lo.Must(afero.ReadFile(fs, path))
	tr := tar.NewReader(bytes.NewReader(data))
	var entries []readEntry
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries = append(entries, readEntry{Header: h, Content: string(content)})
	}
	return entries
}

func names(entries []readEntry) []string {
	return lo.Map(entries, func(e readEntry, _ int) string { return e.Header.Name })
}

func newTestWriter(t *testing.T) (*Writer, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	w, err := Create("/out/layer.tar", WithFs(fs), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return w, fs
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"hello.txt", "./hello.txt"},
		{"usr/bin/tool", "./usr/bin/tool"},
		{"./already", "./already"},
		{"/absolute", "/absolute"},
		{".hidden", ".hidden"},
		{"..", ".."},
		{"", "./"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.name))
		})
	}
}

func TestAddEntry_Content(t *testing.T) {
	w, fs := newTestWriter(t)
	require.NoError(t, w.AddEntry(Entry{Name: "hello.txt", Content: []byte("hello")}))
	require.NoError(t, w.Close())

	entries := readArchive(t, fs, "/out/layer.tar")
	require.Len(t, entries, 1)
	h := entries[0].Header
	assert.Equal(t, "./hello.txt", h.Name)
	assert.Equal(t, int64(5), h.Size)
	assert.Equal(t, "hello", entries[0].Content)
	assert.Equal(t, byte(tar.TypeReg), h.Typeflag)
	assert.Equal(t, int64(0644), h.Mode)
	assert.Equal(t, int64(0), h.ModTime.Unix())
	assert.Equal(t, 0, h.Uid)
	assert.Empty(t, h.Uname)
}

func TestAddEntry_File(t *testing.T) {
	w, fs := newTestWriter(t)
	payload := bytes.Repeat([]byte("0123456789"), 100)
	require.NoError(t, afero.WriteFile(fs, "/src/blob.bin", payload, 0600))

	require.NoError(t, w.AddEntry(Entry{
		Name:    "/opt/blob.bin",
		File:    "/src/blob.bin",
		Uid:     1000,
		Gid:     1000,
		Uname:   "builder",
		Gname:   "builders",
		ModTime: time.Unix(1700000000, 0),
		Mode:    0600,
	}))
	require.NoError(t, w.Close())

	entries := readArchive(t, fs, "/out/layer.tar")
	require.Len(t, entries, 1)
	h := entries[0].Header
	assert.Equal(t, "/opt/blob.bin", h.Name)
	assert.Equal(t, int64(len(payload)), h.Size)
	assert.Equal(t, string(payload), entries[0].Content)
	assert.Equal(t, int64(0600), h.Mode)
	assert.Equal(t, 1000, h.Uid)
	assert.Equal(t, "builder", h.Uname)
	assert.Equal(t, "builders", h.Gname)
	assert.Equal(t, int64(1700000000), h.ModTime.Unix())
}

func TestAddEntry_HeaderOnly(t *testing.T) {
	w, fs := newTestWriter(t)
	require.NoError(t, w.AddEntry(Entry{Name: "etc", Kind: tar.TypeDir}))
	require.NoError(t, w.AddEntry(Entry{Name: "etc/localtime", Kind: tar.TypeSymlink, Link: "/usr/share/zoneinfo/UTC"}))
	require.NoError(t, w.AddEntry(Entry{Name: "empty"}))
	require.NoError(t, w.AddEntry(Entry{Name: "var/", Kind: tar.TypeDir}))
	require.NoError(t, w.Close())

	entries := readArchive(t, fs, "/out/layer.tar")
	require.Len(t, entries, 4)

	assert.Equal(t, "./etc/", entries[0].Header.Name)
	assert.Equal(t, byte(tar.TypeDir), entries[0].Header.Typeflag)
	assert.Equal(t, int64(0755), entries[0].Header.Mode)

	assert.Equal(t, "./etc/localtime", entries[1].Header.Name)
	assert.Equal(t, byte(tar.TypeSymlink), entries[1].Header.Typeflag)
	assert.Equal(t, "/usr/share/zoneinfo/UTC", entries[1].Header.Linkname)
	assert.Equal(t, int64(0755), entries[1].Header.Mode)

	assert.Equal(t, "./empty", entries[2].Header.Name)
	assert.Equal(t, byte(tar.TypeReg), entries[2].Header.Typeflag)
	assert.Equal(t, int64(0), entries[2].Header.Size)
	assert.Equal(t, int64(0644), entries[2].Header.Mode)

	assert.Equal(t, "./var/", entries[3].Header.Name)
}

func TestAddEntry_Duplicates(t *testing.T) {
	w, fs := newTestWriter(t)
	require.NoError(t, w.AddEntry(Entry{Name: "a", Content: []byte("first")}))
	require.NoError(t, w.AddEntry(Entry{Name: "a", Content: []byte("second")}))
	require.NoError(t, w.Close())

	entries := readArchive(t, fs, "/out/layer.tar")
	assert.Equal(t, []string{"./a", "./a"}, names(entries))
	assert.Equal(t, "first", entries[0].Content)
	assert.Equal(t, "second", entries[1].Content)
}

func TestAddEntry_Errors(t *testing.T) {
	w, fs := newTestWriter(t)
	require.NoError(t, afero.WriteFile(fs, "/src/file", []byte("data"), 0644))

	err := w.AddEntry(Entry{Name: "both", Content: []byte("x"), File: "/src/file"})
	assert.ErrorIs(t, err, ErrAmbiguousContent)

	err = w.AddEntry(Entry{Name: "missing", File: "/src/missing"})
	assert.Error(t, err)

	err = w.AddEntry(Entry{Name: "etc", Kind: tar.TypeDir, Content: []byte("x")})
	assert.ErrorIs(t, err, ErrContentNotAllowed)

	err = w.AddEntry(Entry{Name: "link", Kind: tar.TypeSymlink, Link: "target", File: "/src/file"})
	assert.ErrorIs(t, err, ErrContentNotAllowed)

	// Failed calls leave nothing behind.
	require.NoError(t, w.Close())
	assert.Empty(t, readArchive(t, fs, "/out/layer.tar"))
}

func TestWriter_UseAfterClose(t *testing.T) {
	w, _ := newTestWriter(t)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Close(), ErrClosed)
	assert.ErrorIs(t, w.AddEntry(Entry{Name: "late", Content: []byte("x")}), ErrClosed)
	assert.ErrorIs(t, w.MergeArchive("/src/layer.tar"), ErrClosed)
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.AddEntry(Entry{Name: "hello.txt", Content: []byte("hello")}))
	require.NoError(t, w.Close())

	tr := tar.NewReader(&buf)
	h, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "./hello.txt", h.Name)
	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCreate_Error(t *testing.T) {
	_, err := Create("/out/layer.tar", WithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())))
	assert.Error(t, err)
}
