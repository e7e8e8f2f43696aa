/*
Copyright (c) 2017 Jerry Jacobs <jerry.jacobs@xor-gate.org>
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
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalHeaderWrite(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)
	err := writer.Close()
	require.NoError(t, err)
	assert.Equal(t, []byte("!<arch>\n"), buf.Bytes())

	assert.Error(t, writer.Close(), "second close should fail")
	_, err = writer.Write([]byte("x"))
	assert.Error(t, err)
}

func TestSimpleFile(t *testing.T) {
	hdr := new(Header)
	body := "Hello world!\n"
	hdr.ModTime = time.Unix(1361157466, 0)
	hdr.Name = "hello.txt"
	hdr.Size = int64(len(body))
	hdr.Mode = 0100644
	hdr.Uid = 501
	hdr.Gid = 20

	var buf bytes.Buffer
	writer := NewWriter(&buf)
	require.NoError(t, writer.WriteHeader(hdr))
	_, err := writer.Write([]byte(body))
	require.NoError(t, err)
	err = writer.Close()
	require.NoError(t, err)

	b, err := os.ReadFile("./testdata/hello.a")
	require.NoError(t, err)
	assert.Equal(t, b, buf.Bytes())
}

func TestPaddingAcrossWrites(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)
	require.NoError(t, writer.WriteHeader(&Header{Name: "odd", Size: 3}))
	_, err := writer.Write([]byte("a"))
	require.NoError(t, err)
	_, err = writer.Write([]byte("bc"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteHeader(&Header{Name: "even", Size: 2}))
	_, err = writer.Write([]byte("de"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	expected := len(GLOBAL_HEADER) + HEADER_BYTE_SIZE + 4 + HEADER_BYTE_SIZE + 2
	assert.Equal(t, expected, buf.Len())

	reader, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var got []string
	for entry, err := range reader.All() {
		require.NoError(t, err)
		got = append(got, entry.Name+"="+string(entry.Data))
	}
	assert.Equal(t, []string{"odd=abc", "even=de"}, got)
}

func TestWriteTooLong(t *testing.T) {
	body := "Hello world!\n"

	hdr := new(Header)
	hdr.Name = "short"
	hdr.Size = 1

	var buf bytes.Buffer
	writer := NewWriter(&buf)
	require.NoError(t, writer.WriteHeader(hdr))
	_, err := writer.Write([]byte(body))
	assert.ErrorIs(t, err, ErrWriteTooLong)
}

func TestWriteHeaderFieldOverflow(t *testing.T) {
	for _, tc := range []struct {
		Description string
		Header      Header
		Field       string
	}{
		{"name too long", Header{Name: "test_long_filename.txt"}, "name"},
		{"uid too wide", Header{Name: "a", Uid: 1234567}, "uid"},
		{"mode too wide", Header{Name: "a", Mode: 0777777777}, "mode"},
		{"negative size", Header{Name: "a", Size: -1}, "size"},
	} {
		t.Run(tc.Description, func(t *testing.T) {
			var buf bytes.Buffer
			writer := NewWriter(&buf)
			err := writer.WriteHeader(&tc.Header)
			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tc.Field, fieldErr.Field)
		})
	}
}
