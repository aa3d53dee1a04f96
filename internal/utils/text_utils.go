package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

var (
	replyPrefixRe = regexp.MustCompile(`(?i)^(re|fwd?|fw)\s*:\s*`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// TextProcessor provides utilities for preparing email text for hashing,
// thread grouping and inference calls
type TextProcessor struct {
	logger *zap.Logger
	folder cases.Caser
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
		folder: cases.Fold(),
	}
}

// NormalizeSubject strips reply/forward prefixes, collapses whitespace and
// case-folds the subject so replies group into the same thread
func (tp *TextProcessor) NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := replyPrefixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(tp.folder.String(s))
}

// NormalizeBody reduces a message body to the content that identifies it:
// quoted-reply lines, reply attribution lines and the trailing signature
// block are removed, whitespace is collapsed and the result case-folded.
func (tp *TextProcessor) NormalizeBody(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		// Signature delimiter ends the content
		if trimmed == "--" || trimmed == "-- " {
			break
		}
		// Quoted reply boilerplate
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if isAttributionLine(trimmed) {
			continue
		}
		if trimmed == "" {
			continue
		}
		kept = append(kept, trimmed)
	}
	joined := whitespaceRe.ReplaceAllString(strings.Join(kept, " "), " ")
	return strings.TrimSpace(tp.folder.String(joined))
}

// isAttributionLine matches "On <date>, <someone> wrote:" style reply headers
func isAttributionLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "on ") && strings.HasSuffix(lower, "wrote:")
}

// ContentHash returns the hex sha256 of the normalized body
func (tp *TextProcessor) ContentHash(body string) string {
	sum := sha256.Sum256([]byte(tp.NormalizeBody(body)))
	return hex.EncodeToString(sum[:])
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// SanitizeUTF8 ensures the string contains only valid UTF-8 characters
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	return string(result)
}

// ProcessText truncates and sanitizes text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}
