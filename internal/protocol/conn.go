package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Frame directions reported to a FrameObserver
const (
	DirectionInbound  = "client->server"
	DirectionOutbound = "server->client"
)

// FrameObserver is notified of every data and control frame that passes
// through a Conn. It must not retain payload.
type FrameObserver func(direction string, opcode byte, payload []byte)

// CloseError is returned by ReadMessage when the peer sent a close frame.
// The close has already been answered.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("websocket closed by peer: %d (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("websocket closed by peer: %d", e.Code)
}

// IsCloseError reports whether err is (or wraps) a peer close.
func IsCloseError(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce)
}

// ConnOptions tunes a Conn. The zero value is usable.
type ConnOptions struct {
	// MaxPayload bounds a single frame and a reassembled message.
	// Zero means DefaultMaxPayload.
	MaxPayload int64

	// WriteTimeout bounds each frame write. Zero disables the deadline.
	WriteTimeout time.Duration

	// Observer, when set, sees every frame in both directions.
	Observer FrameObserver
}

// Conn is the server side of an upgraded WebSocket connection. Reads must be
// performed by a single goroutine; writes are safe from any goroutine.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	opts ConnOptions

	writeMu   sync.Mutex
	closeSent atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps a raw connection whose HTTP upgrade has completed. br must be
// the reader the upgrade request was parsed from, since it may already hold
// the first frames.
func NewConn(conn net.Conn, br *bufio.Reader, opts ConnOptions) *Conn {
	if br == nil {
		br = bufio.NewReader(conn)
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	return &Conn{conn: conn, br: br, opts: opts}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// SetReadDeadline sets the deadline for the next frame read.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// ReadMessage returns the next complete text or binary message, reassembling
// fragments. Ping frames are answered with pong, and a close frame is echoed
// before a *CloseError is returned.
func (c *Conn) ReadMessage() (byte, []byte, error) {
	var (
		opcode     byte
		message    []byte
		fragmented bool
	)

	for {
		frame, err := ReadFrame(c.br, c.opts.MaxPayload)
		if err != nil {
			switch {
			case errors.Is(err, ErrFrameTooLarge):
				_ = c.WriteClose(CloseMessageTooBig, "message too big")
			case errors.Is(err, ErrProtocolViolation):
				_ = c.WriteClose(CloseProtocolError, "protocol error")
			}
			return 0, nil, err
		}

		if !frame.Masked {
			_ = c.WriteClose(CloseProtocolError, "client frames must be masked")
			return 0, nil, fmt.Errorf("%w: unmasked client frame", ErrProtocolViolation)
		}
		if frame.RSV1 || frame.RSV2 || frame.RSV3 {
			_ = c.WriteClose(CloseProtocolError, "no extensions negotiated")
			return 0, nil, fmt.Errorf("%w: reserved bits set", ErrProtocolViolation)
		}

		c.observe(DirectionInbound, frame.Opcode, frame.Payload)

		switch frame.Opcode {
		case OpcodePing:
			if err := c.WriteMessage(OpcodePong, frame.Payload); err != nil {
				return 0, nil, err
			}

		case OpcodePong:
			// Unsolicited pongs are allowed and ignored.

		case OpcodeClose:
			code, reason := ParseClosePayload(frame.Payload)
			reply := code
			if code == CloseNoStatus {
				reply = CloseNormal
			}
			_ = c.WriteClose(reply, "")
			return 0, nil, &CloseError{Code: code, Reason: reason}

		case OpcodeText, OpcodeBinary:
			if fragmented {
				_ = c.WriteClose(CloseProtocolError, "expected continuation frame")
				return 0, nil, fmt.Errorf("%w: new message inside fragmented message", ErrProtocolViolation)
			}
			if frame.FIN {
				return c.complete(frame.Opcode, frame.Payload)
			}
			opcode = frame.Opcode
			message = frame.Payload
			fragmented = true

		case OpcodeContinuation:
			if !fragmented {
				_ = c.WriteClose(CloseProtocolError, "unexpected continuation frame")
				return 0, nil, fmt.Errorf("%w: continuation without start", ErrProtocolViolation)
			}
			if int64(len(message))+int64(len(frame.Payload)) > c.opts.MaxPayload {
				_ = c.WriteClose(CloseMessageTooBig, "message too big")
				return 0, nil, fmt.Errorf("%w: reassembled message", ErrFrameTooLarge)
			}
			message = append(message, frame.Payload...)
			if frame.FIN {
				return c.complete(opcode, message)
			}

		default:
			_ = c.WriteClose(CloseProtocolError, "unknown opcode")
			return 0, nil, fmt.Errorf("%w: opcode 0x%X", ErrProtocolViolation, frame.Opcode)
		}
	}
}

// complete checks a finished data message before handing it out.
func (c *Conn) complete(opcode byte, payload []byte) (byte, []byte, error) {
	if opcode == OpcodeText && !utf8.Valid(payload) {
		_ = c.WriteClose(CloseInvalidPayload, "invalid utf-8")
		return 0, nil, ErrInvalidUTF8
	}
	return opcode, payload, nil
}

// WriteMessage writes payload as a single unfragmented frame.
func (c *Conn) WriteMessage(opcode byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := WriteFrame(c.conn, opcode, payload); err != nil {
		return err
	}
	c.observe(DirectionOutbound, opcode, payload)
	return nil
}

// WriteText writes a UTF-8 text message.
func (c *Conn) WriteText(payload []byte) error {
	return c.WriteMessage(OpcodeText, payload)
}

// WriteClose sends a close frame. Only the first call sends anything.
func (c *Conn) WriteClose(code int, reason string) error {
	if !c.closeSent.CompareAndSwap(false, true) {
		return nil
	}
	return c.WriteMessage(OpcodeClose, ClosePayload(code, reason))
}

// Close closes the underlying connection. It is safe to call more than once
// and from any goroutine; a blocked ReadMessage returns with an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) observe(direction string, opcode byte, payload []byte) {
	if c.opts.Observer != nil {
		c.opts.Observer(direction, opcode, payload)
	}
}
