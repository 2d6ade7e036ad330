package discord

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	fence           = "```"
	minSplitLength  = 16
	messageLimit    = 2000
	embedTextLimit  = 4096
	messageSplitLen = 1900
	embedSplitLen   = 3800
)

// Splitter breaks long text into message-sized chunks on line boundaries.
// A code block cut by a chunk boundary is closed and reopened so every
// chunk renders on its own.
type Splitter struct {
	MaxLength int
}

// NewSplitter creates a splitter. Limits below 16 are raised to 16.
func NewSplitter(maxLength int) *Splitter {
	if maxLength < minSplitLength {
		maxLength = minSplitLength
	}
	return &Splitter{MaxLength: maxLength}
}

// Split returns content in chunks no longer than MaxLength
func (s *Splitter) Split(content string) []string {
	if len(content) <= s.MaxLength {
		return []string{content}
	}

	// room to close a fence at the end of a chunk and reopen it at the start of the next
	limit := s.MaxLength - len(fence) - 1
	pieceLimit := limit - len(fence) - 1

	var (
		chunks  []string
		current strings.Builder
		inFence bool
	)

	flush := func() {
		text := current.String()
		if inFence {
			text += "\n" + fence
		}
		chunks = append(chunks, text)
		current.Reset()
		if inFence {
			current.WriteString(fence)
		}
	}

	for _, line := range strings.Split(content, "\n") {
		for _, piece := range wrapLine(line, pieceLimit) {
			if current.Len() > 0 && current.Len()+1+len(piece) > limit {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(piece)
		}
		if strings.HasPrefix(strings.TrimSpace(line), fence) {
			inFence = !inFence
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// SplitWithParts splits content and marks every chunk after the first with its part number
func (s *Splitter) SplitWithParts(content string) []string {
	chunks := s.Split(content)
	if len(chunks) <= 1 {
		return chunks
	}

	for i := 1; i < len(chunks); i++ {
		chunks[i] = fmt.Sprintf("(Part %d/%d)\n%s", i+1, len(chunks), chunks[i])
	}
	return chunks
}

// wrapLine cuts a line into pieces of at most n bytes without splitting a rune
func wrapLine(line string, n int) []string {
	if len(line) <= n {
		return []string{line}
	}

	var pieces []string
	for len(line) > n {
		cut := n
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = n
		}
		pieces = append(pieces, line[:cut])
		line = line[cut:]
	}
	if len(line) > 0 {
		pieces = append(pieces, line)
	}
	return pieces
}

// Truncate shortens content to maxLength bytes, ending with "..." when cut
func Truncate(content string, maxLength int) string {
	if len(content) <= maxLength {
		return content
	}
	if maxLength <= 0 {
		return ""
	}
	if maxLength <= 3 {
		return content[:maxLength]
	}
	return content[:maxLength-3] + "..."
}
