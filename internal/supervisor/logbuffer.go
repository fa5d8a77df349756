package supervisor

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// minRenderWidth is the narrowest column count Render will wrap at.
const minRenderWidth = 20

// LogBuffer keeps a bounded, insertion-ordered store of raw console messages
// and re-renders them into width-wrapped lines on demand. Messages may
// contain embedded newlines; wrapping happens per segment at render time so
// a resize never loses history.
type LogBuffer struct {
	mu          sync.RWMutex
	messages    []string
	maxMessages int
}

// NewLogBuffer creates a buffer holding at most maxMessages entries.
func NewLogBuffer(maxMessages int) *LogBuffer {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	return &LogBuffer{
		messages:    make([]string, 0, maxMessages),
		maxMessages: maxMessages,
	}
}

// Append stores a raw message, evicting the oldest entries once the buffer
// exceeds its cap. Safe to call from multiple goroutines.
func (b *LogBuffer) Append(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, message)
	if over := len(b.messages) - b.maxMessages; over > 0 {
		b.messages = append(b.messages[:0], b.messages[over:]...)
	}
}

// Len returns the number of stored messages.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Messages returns a copy of the stored raw messages in insertion order.
func (b *LogBuffer) Messages() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.messages))
	copy(out, b.messages)
	return out
}

// Render word-wraps every stored message at the given width. Widths below
// the minimum are raised to it; every message segment yields at least one
// line, so a pathological width never produces empty output.
func (b *LogBuffer) Render(width int) []string {
	if width < minRenderWidth {
		width = minRenderWidth
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var rendered []string
	for _, msg := range b.messages {
		for _, segment := range splitSegments(msg) {
			rendered = append(rendered, wrapText(segment, width)...)
		}
	}
	return rendered
}

// Clear empties the store.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = b.messages[:0]
}

// splitSegments splits a message on embedded newlines. An empty message
// still yields one empty segment.
func splitSegments(message string) []string {
	segments := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	if len(segments) == 0 {
		return []string{""}
	}
	return segments
}

// wrapText greedily wraps one segment into lines no longer than width,
// never splitting a word. A single word longer than width gets its own
// line rather than being broken.
func wrapText(segment string, width int) []string {
	words := strings.Fields(segment)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := words[0]
	currentLen := utf8.RuneCountInString(current)
	for _, word := range words[1:] {
		// Widths count runes, not bytes, so multibyte text wraps where it
		// visually overflows.
		wordLen := utf8.RuneCountInString(word)
		if currentLen+1+wordLen <= width {
			current += " " + word
			currentLen += 1 + wordLen
			continue
		}
		lines = append(lines, current)
		current = word
		currentLen = wordLen
	}
	return append(lines, current)
}
