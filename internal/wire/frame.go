// Package wire implements the length-prefixed framing protocol
// carried over the host<->worker pipe pair, plus the single-byte wake
// rendezvous that stands in for a cross-process barrier. It has no
// knowledge of jobs, results, or codecs: it moves opaque byte messages, in
// order, without loss or duplication, over anything satisfying io.Reader or
// io.Writer.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// smallWriteThreshold is the payload size at or below which the header and
// payload are concatenated into a single Write call, to avoid small-write
// latency on buffered transports.
const smallWriteThreshold = 16384

// maxInt32Len is the largest length representable in the 4-byte header
// alone; larger payloads use the extended 8-byte length form.
const maxInt32Len = int64(1)<<31 - 1

// ErrFramingEOF indicates the peer closed the connection before a complete
// frame (header or payload) could be read. Callers treat this as "the other
// side died mid-message".
var ErrFramingEOF = errors.New("wire: framing EOF")

// WriteFrame writes payload as one length-prefixed message to w.
//
// Framing:
//   - n <= 2^31-1: a 4-byte big-endian signed header holding n, then n bytes.
//   - n >  2^31-1: a 4-byte header holding -1, an 8-byte big-endian unsigned
//     extended length holding n, then n bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	n := int64(len(payload))

	if n > maxInt32Len {
		var pre [4]byte
		var extMarker int32 = -1
		binary.BigEndian.PutUint32(pre[:], uint32(extMarker))
		if _, err := w.Write(pre[:]); err != nil {
			return err
		}
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		if _, err := w.Write(ext[:]); err != nil {
			return err
		}
		_, err := w.Write(payload)
		return err
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(int32(n)))

	if n <= smallWriteThreshold {
		// Concatenate to avoid a separate small write (and, on a zero-length
		// payload, to avoid sending an empty write that some transports
		// treat as a close signal).
		buf := make([]byte, 4+n)
		copy(buf, header[:])
		copy(buf[4:], payload)
		_, err := w.Write(buf)
		return err
	}

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed message from r.
//
// Any short read ending in EOF (zero bytes returned before the required
// count is satisfied, including io.EOF on the very first byte of a header)
// is reported as ErrFramingEOF: the caller's contract is that the peer is
// presumed dead, not that a zero-length message was sent. Any other read
// error is returned unchanged.
func ReadFrame(r io.Reader) ([]byte, error) {
	header, err := readExactly(r, 4)
	if err != nil {
		return nil, err
	}

	n := int64(int32(binary.BigEndian.Uint32(header)))
	if n == -1 {
		ext, err := readExactly(r, 8)
		if err != nil {
			return nil, err
		}
		n = int64(binary.BigEndian.Uint64(ext))
	}

	if n == 0 {
		return []byte{}, nil
	}
	return readExactly(r, n)
}

// readExactly reads exactly size bytes from r. It returns ErrFramingEOF if
// r runs dry first, or r's own error if a read fails with anything but EOF.
func readExactly(r io.Reader, size int64) ([]byte, error) {
	buf := make([]byte, size)
	off := int64(0)
	for off < size {
		n, err := r.Read(buf[off:])
		off += int64(n)
		if n == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrFramingEOF
			}
			return nil, err
		}
		if n == 0 {
			return nil, ErrFramingEOF
		}
	}
	return buf, nil
}
