// Package protocol implements the length-prefixed, self-describing wire
// format used between the coordinator and its workers/clients: a
// 4-byte little-endian length followed by exactly that many bytes of
// MessagePack-encoded payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTransport is returned when a frame cannot be read or written —
// a short read that never completes, a closed connection mid-frame, or
// an oversized length prefix. Callers must abandon the connection
// without attempting a response.
var ErrTransport = errors.New("protocol: transport error")

// ErrBadRequest is returned by Decode when a payload does not decode to
// a map; the dispatcher then drops the connection. A required field
// that is missing or mistyped is answered by the dispatcher's handlers
// with "invalid_request" directly, without this error.
var ErrBadRequest = errors.New("protocol: bad request")

// MaxFrameSize bounds the length prefix to guard against a corrupt or
// hostile peer claiming a multi-gigabyte payload. Scene bundles and
// frame images are expected up to a few hundred megabytes, so this is
// set comfortably above that.
const MaxFrameSize = 1 << 30 // 1 GiB

// maxReadAttempts bounds the short-read retry loop, giving up after
// 10000 attempts rather than looping forever on a stalled peer.
const maxReadAttempts = 10000

// ReadFrame reads one length-prefixed frame from r and returns its raw
// payload bytes. It loops on short reads until length bytes have been
// consumed, the stream closes, or the retry budget is exhausted.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, ErrTransport
	}

	payload := make([]byte, length)
	if err := readFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return ErrTransport
	}
	if _, err := w.Write(payload); err != nil {
		return ErrTransport
	}
	return nil
}

// readFull reads exactly len(buf) bytes, retrying on partial reads the
// way a blocking socket read can return fewer bytes than requested. A
// read returning (0, nil) repeatedly (a non-conformant reader) is bounded
// by maxReadAttempts so this can never spin forever.
func readFull(r io.Reader, buf []byte) error {
	read := 0
	attempts := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if err == io.EOF && read == len(buf) {
				break
			}
			return ErrTransport
		}
		attempts++
		if attempts > maxReadAttempts {
			return ErrTransport
		}
	}
	return nil
}
