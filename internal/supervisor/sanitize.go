package supervisor

import (
	"regexp"
	"strings"
)

// Matches CSI sequences emitted by the Bedrock server binary: ESC [ params
// final, where the final byte is one of m/K/H/F or missing entirely on a
// truncated line.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[mKHF]?`)

// SanitizeLine prepares one raw output line for display: invalid UTF-8 is
// replaced, trailing CR/LF stripped, and terminal escape sequences removed.
func SanitizeLine(line string) string {
	line = strings.ToValidUTF8(line, "�")
	line = strings.TrimRight(line, "\r\n")
	return ansiPattern.ReplaceAllString(line, "")
}
