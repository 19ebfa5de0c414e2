package testutils

import (
	"strings"
	"testing"
	"time"

	"github.com/saviobatista/ais-receiver/internal/types"
)

func TestFrame(t *testing.T) {
	got := Frame("AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0")
	if got != PositionReport {
		t.Errorf("Frame() = %q, want %q", got, PositionReport)
	}

	for _, s := range []string{StaticDataPart1, StaticDataPart2} {
		body := s[1:strings.IndexByte(s, '*')]
		if Frame(body) != s {
			t.Errorf("Frame(%q) = %q, want %q", body, Frame(body), s)
		}
	}
}

func TestMockDatagram(t *testing.T) {
	now := time.Now()
	d := MockDatagram(now, StaticDataPart1, StaticDataPart2)

	if !d.ReceiptTime.Equal(now) {
		t.Errorf("ReceiptTime = %v, want %v", d.ReceiptTime, now)
	}
	lines := strings.Split(strings.TrimSpace(string(d.Data)), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0] != StaticDataPart1 || lines[1] != StaticDataPart2 {
		t.Errorf("Unexpected datagram contents %q", d.Data)
	}
}

func TestMockMessage(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := MockMessage(123, at, map[string]any{"sog": 10.5})

	if mmsi, ok := msg.MMSI(); !ok || mmsi != 123 {
		t.Errorf("MMSI() = %d, %v; want 123", mmsi, ok)
	}
	if ts, ok := msg.Time(); !ok || ts != float64(at.Unix()) {
		t.Errorf("Time() = %f, %v; want %d", ts, ok, at.Unix())
	}
	if msg[types.FieldTimestamp] != "2024-01-02 03:04:05.000000" {
		t.Errorf("timestamp = %v", msg[types.FieldTimestamp])
	}
	if msg["sog"] != 10.5 {
		t.Errorf("sog = %v, want 10.5", msg["sog"])
	}
}

func TestWaitForCondition(t *testing.T) {
	start := time.Now()
	if err := WaitForCondition(func() bool { return time.Since(start) > 30*time.Millisecond }, time.Second); err != nil {
		t.Errorf("WaitForCondition() failed: %v", err)
	}
	if err := WaitForCondition(func() bool { return false }, 50*time.Millisecond); err == nil {
		t.Error("WaitForCondition() should time out")
	}
}
