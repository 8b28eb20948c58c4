package knowledge

import (
	"strings"
	"testing"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"What is your pricing?", "what is your pricing"},
		{"  HELLO!!  ", "hello"},
		{"do-you   ship\tabroad???", "do you ship abroad"},
		{"", ""},
		{"?!.,", ""},
	}
	for _, tt := range tests {
		if got := NormalizeQuestion(tt.in); got != tt.want {
			t.Errorf("NormalizeQuestion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTermsDropsStopwordsAndDuplicates(t *testing.T) {
	got := Terms("What is the refund policy for the refund?")
	want := []string{"refund", "policy"}
	if len(got) != len(want) {
		t.Fatalf("Terms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Terms = %v, want %v", got, want)
		}
	}
}

func TestSplitChunksOffsets(t *testing.T) {
	words := make([]string, 300)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := splitChunks(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want multiple for %d bytes", len(chunks), len(text))
	}
	for i, c := range chunks {
		if c.Ord != i {
			t.Errorf("chunk %d has ord %d", i, c.Ord)
		}
		if text[c.StartOffset:c.StartOffset+len(c.Body)] != c.Body {
			t.Errorf("chunk %d offset does not address its body", i)
		}
		if len(c.Body) > chunkSize+len("word") {
			t.Errorf("chunk %d is %d bytes, want about %d", i, len(c.Body), chunkSize)
		}
	}
}

func TestSplitChunksSmallInput(t *testing.T) {
	chunks := splitChunks("just a few words")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Body != "just a few words" || chunks[0].StartOffset != 0 {
		t.Errorf("chunk = %+v", chunks[0])
	}

	if got := splitChunks("   \n  "); got != nil {
		t.Errorf("whitespace input produced chunks: %+v", got)
	}
}
