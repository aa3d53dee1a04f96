package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNormalizeSubject(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	tests := []struct {
		in   string
		want string
	}{
		{"Re: Pricing question", "pricing question"},
		{"RE: RE: Pricing question", "pricing question"},
		{"Fwd: FW: Pricing question", "pricing question"},
		{"  Pricing   question  ", "pricing question"},
		{"PRICING QUESTION", "pricing question"},
		{"", ""},
		{"Re:", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tp.NormalizeSubject(tt.in), "subject %q", tt.in)
	}
}

func TestNormalizeBody(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	body := strings.Join([]string{
		"Sounds good, let's talk Thursday.",
		"",
		"On Tue, 12 Mar 2026, Bob Seller wrote:",
		"> Would you have time this week?",
		"> We have a new offer out.",
		"--",
		"Alice Example",
		"VP Procurement",
	}, "\n")

	assert.Equal(t, "sounds good, let's talk thursday.", tp.NormalizeBody(body))
}

func TestContentHashStableAcrossQuoting(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	plain := "Sounds good, let's talk Thursday."
	quoted := plain + "\n\nOn Tue, Bob wrote:\n> earlier text\n--\nsig"

	assert.Equal(t, tp.ContentHash(plain), tp.ContentHash(quoted))
	assert.NotEqual(t, tp.ContentHash(plain), tp.ContentHash("A different reply body."))
}

func TestTruncateText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "short", tp.TruncateText("short", 100))
	assert.Equal(t, "short", tp.TruncateText("short", 0))

	long := strings.Repeat("a", 50)
	got := tp.TruncateText(long, 10)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 10)))
	assert.Contains(t, got, "truncated")

	// Never splits a multi-byte rune
	got = tp.TruncateText("aaaa日本語", 5)
	assert.True(t, strings.HasPrefix(got, "aaaa"))
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "clean text", tp.SanitizeUTF8("clean text"))
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
}
