// internal/protocol/protocol.go
//
// Package protocol implements the framed JSON envelope spoken on every peer
// link in the platform: client<->lobby, lobby<->store, and client<->room.
// A frame is a 4-byte unsigned big-endian length followed by exactly that
// many bytes of UTF-8 JSON.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderLen is the size of the length prefix in bytes.
	HeaderLen = 4

	// MaxFrameLen caps the declared body length. Frames above it are
	// rejected before any allocation happens.
	MaxFrameLen = 16 << 20
)

var (
	// ErrFrameTooLarge is returned when a peer declares a body length
	// beyond MaxFrameLen.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum length")

	// ErrBadJSON wraps a JSON decode failure on a frame that was read in
	// full. Servers answer one error frame for these instead of killing
	// the listener.
	ErrBadJSON = errors.New("protocol: invalid JSON frame")
)

// Status values carried by Response.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is the client-to-server envelope.
type Request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response is the server-to-client envelope. Data is any JSON-serialisable
// value; ErrorMsg is set only when Status is "error".
type Response struct {
	Status   string `json:"status"`
	Data     any    `json:"data,omitempty"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// RawResponse mirrors Response on the read side, keeping Data undecoded so
// callers can unmarshal it into a typed shape.
type RawResponse struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	ErrorMsg string          `json:"errorMsg,omitempty"`
}

// OK builds a success response around data.
func OK(data any) Response {
	return Response{Status: StatusSuccess, Data: data}
}

// Error builds an error response with a verbatim user-visible message.
func Error(msg string) Response {
	return Response{Status: StatusError, ErrorMsg: msg}
}

// Errorf builds an error response from a format string.
func Errorf(format string, args ...any) Response {
	return Error(fmt.Sprintf(format, args...))
}

// Err converts a RawResponse into an error when its status is not success.
func (r RawResponse) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	if r.ErrorMsg == "" {
		return errors.New("protocol: request failed")
	}
	return errors.New(r.ErrorMsg)
}

// WriteMessage marshals v and writes it as one frame. The header and body go
// out in a single Write so concurrent writers interleave at frame boundaries
// at worst.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: encode frame: %w", err)
	}
	if len(body) > MaxFrameLen {
		return ErrFrameTooLarge
	}
	buf := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(buf[:HeaderLen], uint32(len(body)))
	copy(buf[HeaderLen:], body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadRaw reads exactly one frame body. A clean close before the first header
// byte returns io.EOF; a close mid-frame returns io.ErrUnexpectedEOF. Both are
// terminal for the connection.
func ReadRaw(r io.Reader) ([]byte, error) {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// ReadMessage reads one frame and unmarshals it into v. Decode failures are
// reported as ErrBadJSON so callers can distinguish a malformed payload from
// a dead connection.
func ReadMessage(r io.Reader, v any) error {
	body, err := ReadRaw(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	return nil
}
