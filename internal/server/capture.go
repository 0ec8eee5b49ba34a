package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fieldsync/internal/logging"
	"github.com/muurk/fieldsync/internal/protocol"
)

// CaptureRecord is one captured WebSocket frame, written as a JSON line.
type CaptureRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	MessageNum   int64     `json:"message_num"`
	RemoteAddr   string    `json:"remote_addr"`
	Direction    string    `json:"direction"`
	FrameType    string    `json:"frame_type"`
	Opcode       byte      `json:"opcode"`
	PayloadLen   int       `json:"payload_length"`
	PayloadText  string    `json:"payload_text,omitempty"`
	PayloadHex   string    `json:"payload_hex,omitempty"`
	PayloadASCII string    `json:"payload_ascii,omitempty"`
}

// Capture appends every frame of every session to a JSONL file for offline
// analysis. It is safe for concurrent use.
type Capture struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
	seq int64
}

// NewCapture creates dir if needed and opens a new capture file in it.
func NewCapture(dir string) (*Capture, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	return &Capture{path: filename, f: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the capture file name.
func (c *Capture) Path() string {
	return c.path
}

// Record appends one frame.
func (c *Capture) Record(remoteAddr, direction string, opcode byte, payload []byte) error {
	rec := CaptureRecord{
		Timestamp:  time.Now(),
		RemoteAddr: remoteAddr,
		Direction:  direction,
		FrameType:  protocol.OpcodeName(opcode),
		Opcode:     opcode,
		PayloadLen: len(payload),
	}
	if opcode == protocol.OpcodeText {
		rec.PayloadText = string(payload)
	} else if len(payload) > 0 {
		rec.PayloadHex = hex.EncodeToString(payload)
		rec.PayloadASCII = toASCII(payload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.f == nil {
		return os.ErrClosed
	}
	c.seq++
	rec.MessageNum = c.seq
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	return nil
}

// Observer returns a frame observer bound to one connection.
func (c *Capture) Observer(remoteAddr string) protocol.FrameObserver {
	return func(direction string, opcode byte, payload []byte) {
		if err := c.Record(remoteAddr, direction, opcode, payload); err != nil {
			logging.Error("Failed to capture frame",
				zap.String("filename", c.path),
				zap.Error(err),
			)
		}
	}
}

// Close flushes and closes the capture file.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

// toASCII converts bytes to ASCII string (non-printable chars become '.')
func toASCII(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
