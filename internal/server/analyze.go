package server

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/muurk/fieldsync/internal/protocol"
)

// maxCaptureLine bounds a single JSONL record when reading a capture.
const maxCaptureLine = 64 * 1024 * 1024

// ReadCapture parses a JSONL capture written by Capture.
func ReadCapture(r io.Reader) ([]CaptureRecord, error) {
	var records []CaptureRecord

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCaptureLine)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec CaptureRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return records, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read capture: %w", err)
	}
	return records, nil
}

// ReadCaptureFile is ReadCapture on a named file.
func ReadCaptureFile(path string) ([]CaptureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return ReadCapture(f)
}

// Payload returns the raw frame payload of a record.
func (r CaptureRecord) Payload() ([]byte, error) {
	if r.PayloadText != "" {
		return []byte(r.PayloadText), nil
	}
	if r.PayloadHex == "" {
		return nil, nil
	}
	return hex.DecodeString(r.PayloadHex)
}

// MessageType decodes a text frame with the vocabulary of its direction and
// returns the message type. Control and binary frames yield their frame type
// in brackets.
func (r CaptureRecord) MessageType() (string, error) {
	if r.Opcode != protocol.OpcodeText {
		return "[" + r.FrameType + "]", nil
	}

	payload := []byte(r.PayloadText)
	switch r.Direction {
	case protocol.DirectionInbound:
		msg, err := protocol.DecodeClientMessage(payload)
		if err != nil {
			return "", err
		}
		return msg.Type(), nil
	case protocol.DirectionOutbound:
		msg, err := protocol.DecodeServerMessage(payload)
		if err != nil {
			return "", err
		}
		return msg.Type(), nil
	default:
		return "", fmt.Errorf("unknown direction %q", r.Direction)
	}
}

// CaptureSummary aggregates a capture.
type CaptureSummary struct {
	Frames        int
	Bytes         int
	Connections   []string       // remote addresses in order of first appearance
	ByDirection   map[string]int // direction -> frames
	ByMessageType map[string]int // "direction type" -> frames
	DecodeErrors  []DecodeFailure
}

// DecodeFailure is a text frame that did not decode.
type DecodeFailure struct {
	MessageNum int64
	Direction  string
	Err        error
}

// Summarize counts the frames of a capture by direction and message type.
func Summarize(records []CaptureRecord) CaptureSummary {
	sum := CaptureSummary{
		ByDirection:   make(map[string]int),
		ByMessageType: make(map[string]int),
	}
	seen := make(map[string]bool)

	for _, rec := range records {
		sum.Frames++
		sum.Bytes += rec.PayloadLen
		sum.ByDirection[rec.Direction]++

		if !seen[rec.RemoteAddr] {
			seen[rec.RemoteAddr] = true
			sum.Connections = append(sum.Connections, rec.RemoteAddr)
		}

		typ, err := rec.MessageType()
		if err != nil {
			sum.DecodeErrors = append(sum.DecodeErrors, DecodeFailure{
				MessageNum: rec.MessageNum,
				Direction:  rec.Direction,
				Err:        err,
			})
			continue
		}
		sum.ByMessageType[rec.Direction+" "+typ]++
	}
	return sum
}

// WriteTo prints the summary as plain text.
func (s CaptureSummary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Frames:      %d (%d payload bytes)\n", s.Frames, s.Bytes)
	fmt.Fprintf(&b, "Connections: %d\n", len(s.Connections))
	for _, addr := range s.Connections {
		fmt.Fprintf(&b, "  %s\n", addr)
	}

	b.WriteString("\nBy message type:\n")
	keys := make([]string, 0, len(s.ByMessageType))
	for k := range s.ByMessageType {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-40s %6d\n", k, s.ByMessageType[k])
	}

	if len(s.DecodeErrors) > 0 {
		fmt.Fprintf(&b, "\nUndecodable frames: %d\n", len(s.DecodeErrors))
		for _, f := range s.DecodeErrors {
			fmt.Fprintf(&b, "  #%d %s: %v\n", f.MessageNum, f.Direction, f.Err)
		}
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Describe renders one record as a single line.
func (r CaptureRecord) Describe() string {
	typ, err := r.MessageType()
	if err != nil {
		typ = "undecodable: " + err.Error()
	}

	detail := r.PayloadText
	if r.Opcode != protocol.OpcodeText {
		detail = r.PayloadASCII
	}
	if runes := []rune(detail); len(runes) > 80 {
		detail = string(runes[:77]) + "..."
	}

	return fmt.Sprintf("#%-5d %s %-21s %-14s %-24s %5dB %s",
		r.MessageNum,
		r.Timestamp.Format("15:04:05.000"),
		r.RemoteAddr,
		r.Direction,
		typ,
		r.PayloadLen,
		detail,
	)
}
