// Package proto implements the wire protocol shared by the chat and
// file channels: JSON payloads framed with a 4-byte big-endian length
// prefix, plus the exact message catalog exchanged over them.
package proto

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrConnectionClosed is returned when the peer closes the stream
	// before or during a frame read.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrMalformedFrame is returned when a frame payload cannot be
	// decoded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFrameTooLarge is returned when a frame exceeds the configured
	// maximum size.
	ErrFrameTooLarge = errors.New("frame too large")
)

const headerSize = 4

// Frame is one received message. Type is the wire tag; the payload is
// unmarshaled into the matching catalog struct via Unmarshal.
type Frame struct {
	Type    string
	payload []byte
}

// Unmarshal decodes the frame payload into v.
func (f *Frame) Unmarshal(v any) error {
	if err := json.Unmarshal(f.payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// Encode serializes v into a complete frame: length prefix plus JSON
// payload, ready to be written as a single buffer.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// Send writes v as one frame. The header and payload go out in a single
// Write call so a frame is never interleaved mid-message by the caller.
func Send(w io.Writer, v any) error {
	buf, err := Encode(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Receive reads exactly one frame from r. maxSize bounds the payload
// length; zero means unlimited. A peer close at any point during the
// read yields ErrConnectionClosed.
func Receive(r io.Reader, maxSize int64) (*Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, closedOr(err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if maxSize > 0 && int64(length) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, closedOr(err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &Frame{Type: probe.Type, payload: payload}, nil
}

func closedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("read frame: %w", err)
}
