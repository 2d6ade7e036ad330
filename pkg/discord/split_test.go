package discord

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitter_Split(t *testing.T) {
	splitter := NewSplitter(50)

	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "short text",
			input:    "This is a short message",
			expected: 1,
		},
		{
			name:     "long text with newlines",
			input:    strings.Repeat("This is a long line that should be split.\n", 5),
			expected: 5,
		},
		{
			name:     "very long single line",
			input:    strings.Repeat("a", 200),
			expected: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := splitter.Split(tt.input)
			if len(chunks) != tt.expected {
				t.Errorf("Split() returned %d chunks, expected %d", len(chunks), tt.expected)
			}

			for i, chunk := range chunks {
				if len(chunk) > splitter.MaxLength {
					t.Errorf("Chunk %d has length %d, exceeds max length %d", i, len(chunk), splitter.MaxLength)
				}
			}

			if got := strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""); got != strings.ReplaceAll(tt.input, "\n", "") {
				t.Errorf("Expected content to be preserved, got %q", got)
			}
		})
	}
}

func TestSplitter_RebalancesCodeFences(t *testing.T) {
	splitter := NewSplitter(100)
	input := "**Top**\n```\n" + strings.Repeat(strings.Repeat("x", 30)+"\n", 10) + "```"

	chunks := splitter.Split(input)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if len(chunk) > splitter.MaxLength {
			t.Errorf("Chunk %d has length %d, exceeds max length %d", i, len(chunk), splitter.MaxLength)
		}
		if n := strings.Count(chunk, fence); n%2 != 0 {
			t.Errorf("Chunk %d has %d fences, expected a balanced code block:\n%s", i, n, chunk)
		}
	}
	if !strings.HasPrefix(chunks[1], fence) {
		t.Errorf("Expected continuation to reopen the code block, got %q", chunks[1])
	}
}

func TestSplitter_KeepsRunesWhole(t *testing.T) {
	splitter := NewSplitter(20)

	for i, chunk := range splitter.Split(strings.Repeat("é", 40)) {
		if !utf8.ValidString(chunk) {
			t.Errorf("Chunk %d is not valid UTF-8: %q", i, chunk)
		}
	}
}

func TestNewSplitter_MinimumLength(t *testing.T) {
	if got := NewSplitter(2).MaxLength; got != minSplitLength {
		t.Errorf("Expected limit to be raised to %d, got %d", minSplitLength, got)
	}
}

func TestSplitter_SplitWithParts(t *testing.T) {
	splitter := NewSplitter(30)
	input := "This is line 1\nThis is line 2\nThis is line 3\nThis is line 4"

	chunks := splitter.SplitWithParts(input)
	if len(chunks) != 4 {
		t.Fatalf("Expected 4 chunks, got %d", len(chunks))
	}

	if strings.HasPrefix(chunks[0], "(Part ") {
		t.Errorf("First chunk should not carry a part indicator, got %q", chunks[0])
	}
	for i := 1; i < len(chunks); i++ {
		if !strings.HasPrefix(chunks[i], "(Part ") {
			t.Errorf("Chunk %d should have part indicator, got: %s", i+1, chunks[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		expected  string
	}{
		{
			name:      "short text",
			input:     "short",
			maxLength: 10,
			expected:  "short",
		},
		{
			name:      "exact length",
			input:     "exactly10c",
			maxLength: 10,
			expected:  "exactly10c",
		},
		{
			name:      "needs truncation",
			input:     "this is too long",
			maxLength: 10,
			expected:  "this is...",
		},
		{
			name:      "very short limit",
			input:     "test",
			maxLength: 2,
			expected:  "te",
		},
		{
			name:      "zero limit",
			input:     "test",
			maxLength: 0,
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Truncate(tt.input, tt.maxLength)
			if result != tt.expected {
				t.Errorf("Truncate() = %q, expected %q", result, tt.expected)
			}
		})
	}
}
