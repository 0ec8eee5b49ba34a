package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WebSocket frame opcodes
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

// Close status codes used by the server (RFC 6455 section 7.4.1)
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseProtocolError    = 1002
	CloseUnsupportedData  = 1003
	CloseNoStatus         = 1005
	CloseInvalidPayload   = 1007
	CloseMessageTooBig    = 1009
	CloseInternalError    = 1011
	maxControlPayloadSize = 125
)

// DefaultMaxPayload is the frame payload limit used when none is configured.
const DefaultMaxPayload = 64 * 1024

var (
	// ErrFrameTooLarge is returned when a frame announces a payload above the limit.
	ErrFrameTooLarge = errors.New("frame payload exceeds limit")

	// ErrProtocolViolation is returned for frames that break RFC 6455 framing rules.
	ErrProtocolViolation = errors.New("websocket protocol violation")

	// ErrInvalidUTF8 is returned for a text message that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("text message is not valid UTF-8")
)

// Frame represents a WebSocket frame
type Frame struct {
	FIN     bool
	RSV1    bool
	RSV2    bool
	RSV3    bool
	Opcode  byte
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	Payload []byte
}

// ReadFrame reads a WebSocket frame from the reader.
// A maxPayload of zero or less disables the size check.
func ReadFrame(r io.Reader, maxPayload int64) (*Frame, error) {
	frame := &Frame{}

	// Read first two bytes
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	// Parse first byte: FIN, RSV1-3, Opcode
	frame.FIN = (header[0] & 0x80) != 0
	frame.RSV1 = (header[0] & 0x40) != 0
	frame.RSV2 = (header[0] & 0x20) != 0
	frame.RSV3 = (header[0] & 0x10) != 0
	frame.Opcode = header[0] & 0x0F

	// Parse second byte: Mask, Payload length
	frame.Masked = (header[1] & 0x80) != 0
	payloadLen := uint64(header[1] & 0x7F)

	// Extended payload length
	switch payloadLen {
	case 126:
		extLen := make([]byte, 2)
		if _, err := io.ReadFull(r, extLen); err != nil {
			return nil, fmt.Errorf("failed to read extended length: %w", err)
		}
		frame.Length = uint64(binary.BigEndian.Uint16(extLen))
	case 127:
		extLen := make([]byte, 8)
		if _, err := io.ReadFull(r, extLen); err != nil {
			return nil, fmt.Errorf("failed to read extended length: %w", err)
		}
		frame.Length = binary.BigEndian.Uint64(extLen)
		if frame.Length>>63 != 0 {
			return nil, fmt.Errorf("%w: most significant length bit set", ErrProtocolViolation)
		}
	default:
		frame.Length = payloadLen
	}

	if frame.IsControl() {
		if frame.Length > maxControlPayloadSize {
			return nil, fmt.Errorf("%w: control frame payload of %d bytes", ErrProtocolViolation, frame.Length)
		}
		if !frame.FIN {
			return nil, fmt.Errorf("%w: fragmented control frame", ErrProtocolViolation)
		}
	}

	if maxPayload > 0 && frame.Length > uint64(maxPayload) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, frame.Length, maxPayload)
	}

	// Read mask key if present (client-to-server frames must be masked)
	if frame.Masked {
		if _, err := io.ReadFull(r, frame.MaskKey[:]); err != nil {
			return nil, fmt.Errorf("failed to read mask key: %w", err)
		}
	}

	// Read payload
	if frame.Length > 0 {
		payload := make([]byte, frame.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}

		// Unmask in place
		if frame.Masked {
			maskBytes(payload, frame.MaskKey)
		}
		frame.Payload = payload
	}

	return frame, nil
}

// maskBytes applies the XOR mask to data in place. Masking and unmasking are
// the same operation.
func maskBytes(data []byte, maskKey [4]byte) {
	for i := range data {
		data[i] ^= maskKey[i%4]
	}
}

// IsControl reports whether the frame carries a control opcode.
func (f *Frame) IsControl() bool {
	return f.Opcode&0x8 != 0
}

// OpcodeString returns a human-readable opcode name
func (f *Frame) OpcodeString() string {
	return OpcodeName(f.Opcode)
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{FIN=%v, Opcode=%s, Masked=%v, Length=%d}",
		f.FIN, f.OpcodeString(), f.Masked, f.Length)
}

// OpcodeName returns a human-readable name for a frame opcode.
func OpcodeName(opcode byte) string {
	switch opcode {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", opcode)
	}
}

// AppendFrameHeader appends a FIN frame header for a payload of the given
// length. If maskKey is non-nil the mask bit is set and the key appended.
func AppendFrameHeader(dst []byte, opcode byte, payloadLen int, maskKey *[4]byte) []byte {
	// Byte 1: FIN (1) + RSV (0,0,0) + Opcode
	dst = append(dst, 0x80|(opcode&0x0F))

	var maskBit byte
	if maskKey != nil {
		maskBit = 0x80
	}

	// Byte 2: MASK + Payload length
	switch {
	case payloadLen < 126:
		dst = append(dst, maskBit|byte(payloadLen))
	case payloadLen < 65536:
		dst = append(dst, maskBit|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(payloadLen))
	default:
		dst = append(dst, maskBit|127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(payloadLen))
	}

	if maskKey != nil {
		dst = append(dst, maskKey[:]...)
	}
	return dst
}

// BuildFrame wraps payload in a single unmasked server-to-client frame.
func BuildFrame(opcode byte, payload []byte) []byte {
	frame := AppendFrameHeader(make([]byte, 0, len(payload)+10), opcode, len(payload), nil)
	return append(frame, payload...)
}

// BuildMaskedFrame wraps payload in a single masked client-to-server frame.
// The payload slice is not modified.
func BuildMaskedFrame(opcode byte, payload []byte, maskKey [4]byte) []byte {
	frame := AppendFrameHeader(make([]byte, 0, len(payload)+14), opcode, len(payload), &maskKey)
	start := len(frame)
	frame = append(frame, payload...)
	maskBytes(frame[start:], maskKey)
	return frame
}

// WriteFrame writes a single unmasked frame to w.
func WriteFrame(w io.Writer, opcode byte, payload []byte) error {
	if _, err := w.Write(BuildFrame(opcode, payload)); err != nil {
		return fmt.Errorf("write %s frame: %w", OpcodeName(opcode), err)
	}
	return nil
}

// WriteMaskedFrame writes a single masked frame to w, as a client would.
func WriteMaskedFrame(w io.Writer, opcode byte, payload []byte, maskKey [4]byte) error {
	if _, err := w.Write(BuildMaskedFrame(opcode, payload, maskKey)); err != nil {
		return fmt.Errorf("write masked %s frame: %w", OpcodeName(opcode), err)
	}
	return nil
}

// ClosePayload builds the body of a close frame.
func ClosePayload(code int, reason string) []byte {
	if code == CloseNoStatus {
		return nil
	}
	if len(reason) > maxControlPayloadSize-2 {
		reason = reason[:maxControlPayloadSize-2]
	}
	payload := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), uint16(code))
	return append(payload, reason...)
}

// ParseClosePayload extracts the status code and reason from a close frame body.
// An empty body yields CloseNoStatus.
func ParseClosePayload(payload []byte) (int, string) {
	if len(payload) < 2 {
		return CloseNoStatus, ""
	}
	return int(binary.BigEndian.Uint16(payload[:2])), string(payload[2:])
}
