package console

import (
	"os"
	"strings"
	"testing"
)

func TestLogWriterWritesLines(t *testing.T) {
	dir := t.TempDir()

	lw, err := NewLogWriter(nil, dir, "main")
	if err != nil {
		t.Fatalf("failed to create log writer: %v", err)
	}

	if err := lw.WriteLine("Server started (PID=123)."); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := lw.WriteLine("NO LOG FILE! - setting up server logging..."); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := lw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(lw.Path())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Server started (PID=123).") {
		t.Fatalf("expected first line in log file, got: %s", content)
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	// Every line carries a timestamp prefix
	for _, l := range lines {
		if !strings.HasPrefix(l, "[") {
			t.Fatalf("expected timestamp prefix on line: %s", l)
		}
	}
}

func TestLogWriterWriteAfterClose(t *testing.T) {
	lw, err := NewLogWriter(nil, t.TempDir(), "main")
	if err != nil {
		t.Fatalf("failed to create log writer: %v", err)
	}
	if err := lw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := lw.WriteLine("late"); err == nil {
		t.Fatalf("expected write after close to fail")
	}
	// Second close is a no-op
	if err := lw.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
