package server

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/muurk/fieldsync/internal/protocol"
)

func readCapture(t *testing.T, path string) []CaptureRecord {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()

	var records []CaptureRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec CaptureRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode capture line %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	return records
}

func TestCapture_Record(t *testing.T) {
	c, err := NewCapture(t.TempDir())
	if err != nil {
		t.Fatalf("NewCapture() error = %v", err)
	}

	observe := c.Observer("10.0.0.1:5000")
	observe(protocol.DirectionInbound, protocol.OpcodeText, []byte(`{"type":"Join"}`))
	observe(protocol.DirectionOutbound, protocol.OpcodePing, []byte{0x01, 'a'})
	observe(protocol.DirectionOutbound, protocol.OpcodeClose, nil)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	records := readCapture(t, c.Path())
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	text := records[0]
	if text.MessageNum != 1 || text.Direction != protocol.DirectionInbound || text.FrameType != "text" {
		t.Errorf("text record = %+v", text)
	}
	if text.PayloadText != `{"type":"Join"}` || text.PayloadHex != "" {
		t.Errorf("text payload = %q / %q", text.PayloadText, text.PayloadHex)
	}

	ping := records[1]
	if ping.MessageNum != 2 || ping.PayloadHex != "0161" || ping.PayloadASCII != ".a" {
		t.Errorf("ping record = %+v", ping)
	}

	closing := records[2]
	if closing.PayloadLen != 0 || closing.PayloadHex != "" || closing.RemoteAddr != "10.0.0.1:5000" {
		t.Errorf("close record = %+v", closing)
	}
}

func TestCapture_RecordAfterClose(t *testing.T) {
	c, err := NewCapture(t.TempDir())
	if err != nil {
		t.Fatalf("NewCapture() error = %v", err)
	}
	_ = c.Close()

	if err := c.Record("x", protocol.DirectionInbound, protocol.OpcodeText, []byte("late")); err == nil {
		t.Error("Record() after Close() error = nil")
	}
}
