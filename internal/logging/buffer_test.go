package logging

import (
	"strings"
	"testing"
	"time"
)

func entry(msg string) LogEntry {
	return LogEntry{Timestamp: time.Unix(0, 0).UTC(), Level: "info", Module: "test", Message: msg}
}

func TestRingBufferWrapsAround(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		rb.Write(entry(msg))
	}

	if rb.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", rb.Count())
	}

	got := rb.ReadAll()
	want := []string{"c", "d", "e"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Message, want[i])
		}
	}
}

func TestRingBufferTail(t *testing.T) {
	rb := NewRingBuffer(5)
	if rb.Tail(2) != nil {
		t.Fatal("empty buffer should return nil")
	}

	for _, msg := range []string{"a", "b", "c", "d", "e", "f"} {
		rb.Write(entry(msg))
	}

	got := rb.Tail(2)
	if len(got) != 2 || got[0].Message != "e" || got[1].Message != "f" {
		t.Errorf("Tail(2) = %+v", got)
	}

	if n := len(rb.Tail(100)); n != 5 {
		t.Errorf("Tail(100) returned %d entries, want 5", n)
	}
}

func TestRingBufferSequence(t *testing.T) {
	rb := NewRingBuffer(2)
	first := rb.Write(entry("a"))
	rb.Write(entry("b"))
	rb.Write(entry("c"))

	if first.Seq != 1 {
		t.Errorf("first Seq = %d, want 1", first.Seq)
	}
	got := rb.ReadAll()
	if got[0].Seq != 2 || got[1].Seq != 3 {
		t.Errorf("sequence not kept across wrap: %d, %d", got[0].Seq, got[1].Seq)
	}
}

func TestFormatLogLine(t *testing.T) {
	e := entry("Action disabled")
	e.Attributes = map[string]any{"action": "weather", "crashes": 3}

	line := FormatLogLine(e)
	if !strings.Contains(line, "[INFO] [test] Action disabled") {
		t.Errorf("unexpected line: %s", line)
	}
	if !strings.HasSuffix(line, "action=weather crashes=3") {
		t.Errorf("attributes not sorted into line: %s", line)
	}
}
