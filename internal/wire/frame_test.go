package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"nil", nil},
		{"small", []byte("hello world")},
		{"exactly threshold", bytes.Repeat([]byte{'x'}, smallWriteThreshold)},
		{"above threshold", bytes.Repeat([]byte{'y'}, smallWriteThreshold+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tc.payload))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			if len(tc.payload) == 0 {
				assert.Len(t, got, 0)
			} else {
				assert.Equal(t, tc.payload, got)
			}
			assert.Equal(t, 0, buf.Len(), "reader should be fully drained")
		})
	}
}

func TestWriteFrame_AboveThresholdUsesSeparateWrites(t *testing.T) {
	payload := bytes.Repeat([]byte{'z'}, smallWriteThreshold+1)
	var rec recordingWriter
	require.NoError(t, WriteFrame(&rec, payload))
	// Header and payload must arrive as two distinct writes once above the
	// small-write threshold.
	require.Len(t, rec.writes, 2)
	assert.Len(t, rec.writes[0], 4)
	assert.Equal(t, payload, rec.writes[1])
}

func TestWriteFrame_SmallPayloadSingleWrite(t *testing.T) {
	payload := []byte("tiny")
	var rec recordingWriter
	require.NoError(t, WriteFrame(&rec, payload))
	require.Len(t, rec.writes, 1)
	assert.Equal(t, append([]byte{0, 0, 0, 4}, payload...), rec.writes[0])
}

func TestWriteFrame_ZeroLengthStillSendsHeader(t *testing.T) {
	var rec recordingWriter
	require.NoError(t, WriteFrame(&rec, nil))
	require.Len(t, rec.writes, 1)
	assert.Equal(t, []byte{0, 0, 0, 0}, rec.writes[0])
}

// TestReadFrame_ExtendedLengthHeader exercises the -1-sentinel decode path
// directly, without actually allocating a > 2^31 byte payload: ReadFrame
// treats any -1 header as "read the 8-byte extended length next",
// regardless of how large that length turns out to be.
func TestReadFrame_ExtendedLengthHeader(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	var extMarker int32 = -1
	binary.BigEndian.PutUint32(header[:], uint32(extMarker))
	buf.Write(header[:])
	var ext [8]byte
	binary.BigEndian.PutUint64(ext[:], 5)
	buf.Write(ext[:])
	buf.WriteString("abcde")

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), got)
}

func TestReadFrame_FramingEOF(t *testing.T) {
	t.Run("truncated header", func(t *testing.T) {
		r := bytes.NewReader([]byte{0, 0})
		_, err := ReadFrame(r)
		assert.ErrorIs(t, err, ErrFramingEOF)
	})
	t.Run("truncated payload", func(t *testing.T) {
		var buf bytes.Buffer
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 10)
		buf.Write(header[:])
		buf.WriteString("short")
		_, err := ReadFrame(&buf)
		assert.ErrorIs(t, err, ErrFramingEOF)
	})
	t.Run("immediate EOF", func(t *testing.T) {
		r := bytes.NewReader(nil)
		_, err := ReadFrame(r)
		assert.ErrorIs(t, err, ErrFramingEOF)
	})
}

func TestReadFrame_NonEOFReadError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := ReadFrame(errReader{err: wantErr})
	assert.ErrorIs(t, err, wantErr)
}

// recordingWriter records each individual Write call's bytes, to assert on
// how many writes WriteFrame issued and in what chunks.
type recordingWriter struct {
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	w.writes = append(w.writes, cp)
	return len(p), nil
}

// errReader always fails with a fixed non-EOF error, to exercise
// ReadFrame's "any other failure" passthrough branch.
type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

var _ io.Reader = errReader{}
