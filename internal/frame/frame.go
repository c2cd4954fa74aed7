// Package frame implements the length-delimited wire framing shared by the
// daemon and its clients: a 4-byte big-endian length prefix followed by a
// payload whose first byte distinguishes a JSON message from a binary
// PTY-output frame.
package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayloadSize bounds a single frame's payload to guard against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const MaxPayloadSize = 16 << 20 // 16 MiB

// PTYMarker is the first payload byte of a binary PTY-output frame.
const PTYMarker = 0x01

// JSONMarker is the first payload byte of a JSON message frame.
const JSONMarker = '{'

var (
	// ErrTooLarge is returned when a frame's declared length exceeds MaxPayloadSize.
	ErrTooLarge = errors.New("frame: payload too large")
	// ErrShortPTYFrame is returned when a PTY frame payload is too short to
	// contain a marker byte and a prompt id.
	ErrShortPTYFrame = errors.New("frame: pty frame shorter than marker+prompt id")
)

// WriteJSON encodes payload (expected to begin with '{') as one frame.
func WriteJSON(w io.Writer, payload []byte) error {
	return writeFrame(w, payload)
}

// WritePTY encodes a binary PTY-output frame: marker byte, 4-byte
// big-endian prompt id, then raw bytes.
func WritePTY(w io.Writer, promptID int, data []byte) error {
	payload := make([]byte, 5+len(data))
	payload[0] = PTYMarker
	binary.BigEndian.PutUint32(payload[1:5], uint32(promptID))
	copy(payload[5:], data)
	return writeFrame(w, payload)
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return ErrTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("frame: writing length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("frame: writing payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame's payload from r.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxPayloadSize {
		return nil, ErrTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("frame: reading payload: %w", err)
	}
	return payload, nil
}

// IsPTYFrame reports whether a decoded payload is a binary PTY frame.
func IsPTYFrame(payload []byte) bool {
	return len(payload) > 0 && payload[0] == PTYMarker
}

// DecodePTY splits a PTY frame payload into its prompt id and raw bytes.
func DecodePTY(payload []byte) (promptID int, data []byte, err error) {
	if len(payload) < 5 {
		return 0, nil, ErrShortPTYFrame
	}
	promptID = int(binary.BigEndian.Uint32(payload[1:5]))
	data = payload[5:]
	return promptID, data, nil
}
