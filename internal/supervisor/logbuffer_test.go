package supervisor

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestLogBufferEvictsOldest(t *testing.T) {
	buf := NewLogBuffer(3)
	for i := 1; i <= 5; i++ {
		buf.Append(fmt.Sprintf("msg-%d", i))
	}

	got := buf.Messages()
	want := []string{"msg-3", "msg-4", "msg-5"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected len 3, got %d", buf.Len())
	}
}

func TestLogBufferNeverExceedsCap(t *testing.T) {
	buf := NewLogBuffer(10)
	for i := 0; i < 100; i++ {
		buf.Append(fmt.Sprintf("line %d", i))
		if buf.Len() > 10 {
			t.Fatalf("buffer grew past cap: %d", buf.Len())
		}
	}

	got := buf.Messages()
	if got[0] != "line 90" || got[9] != "line 99" {
		t.Fatalf("expected most recent entries in order, got %v", got)
	}
}

func TestLogBufferRenderWraps(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.Append("a very long line of text")

	lines := buf.Render(20)
	if len(lines) < 2 {
		t.Fatalf("expected wrapped output, got %v", lines)
	}

	for _, line := range lines {
		if len(line) > 20 {
			t.Errorf("line exceeds width 20: %q", line)
		}
	}

	// Re-joining must reproduce the original text with no word split.
	if joined := strings.Join(lines, " "); joined != "a very long line of text" {
		t.Fatalf("wrapping altered content: %q", joined)
	}
}

func TestLogBufferRenderCountsRunesNotBytes(t *testing.T) {
	buf := NewLogBuffer(10)
	// Three five-rune words (ten bytes each): 17 runes fit in width 20,
	// byte counting would wrap after the second word.
	msg := "ééééé ééééé ééééé"
	buf.Append(msg)

	lines := buf.Render(20)
	if len(lines) != 1 || lines[0] != msg {
		t.Fatalf("expected one line %q, got %v", msg, lines)
	}
}

func TestLogBufferRenderMinimumWidth(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.Append("short words only here")

	// A pathological width is raised to the enforced minimum of 20.
	narrow := buf.Render(1)
	floor := buf.Render(20)
	if !reflect.DeepEqual(narrow, floor) {
		t.Fatalf("width below minimum should render like width 20: %v vs %v", narrow, floor)
	}
}

func TestLogBufferRenderEmbeddedNewlines(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.Append("first\nsecond\n\nthird")

	lines := buf.Render(80)
	want := []string{"first", "second", "", "third"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("expected %v, got %v", want, lines)
	}
}

func TestLogBufferRenderEmptyMessage(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.Append("")

	lines := buf.Render(40)
	if len(lines) != 1 || lines[0] != "" {
		t.Fatalf("empty message should render one empty line, got %v", lines)
	}
}

func TestLogBufferRenderLongWordNotSplit(t *testing.T) {
	buf := NewLogBuffer(10)
	word := strings.Repeat("x", 50)
	buf.Append("prefix " + word)

	lines := buf.Render(20)
	found := false
	for _, line := range lines {
		if line == word {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized word should land on its own line intact, got %v", lines)
	}
}

func TestLogBufferClear(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.Append("one")
	buf.Append("two")
	buf.Clear()

	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d entries", buf.Len())
	}
	if lines := buf.Render(80); len(lines) != 0 {
		t.Fatalf("expected no rendered lines, got %v", lines)
	}
}
