package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// CleanText trims the input, collapses internal whitespace runs to a single
// space, strips non-printable control characters and truncates to maxLen.
// It never fails; garbage in yields an empty string.
func CleanText(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	inRun := false
	for _, r := range input {
		if unicode.IsSpace(r) {
			inRun = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if inRun && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inRun = false
		b.WriteRune(r)
	}
	return truncate(b.String(), maxLen)
}

// CleanIdentifier normalizes team/user identifiers that may embed email-like
// tokens: word characters, hyphen, '@' and '.' survive, everything else is
// dropped. The result is capped at 100 characters, which also keeps derived
// ids clear of the store's key-reserved characters ('/', '\', '#', '?').
func CleanIdentifier(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.TrimSpace(input) {
		switch {
		case r == '-' || r == '@' || r == '.' || r == '_':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return truncate(b.String(), 100)
}

// truncate cuts s to at most maxLen bytes without splitting a rune; the cut
// point backs up to the nearest rune boundary so the result stays valid UTF-8.
func truncate(s string, maxLen int) string {
	if maxLen < 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// deadlineFormats are the timestamp layouts accepted for deadlines.
var deadlineFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDeadline parses a deadline without any past-date policy. The empty
// string is the explicit no-deadline marker and round-trips as "".
func ParseDeadline(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", nil
	}
	for _, layout := range deadlineFormats {
		if t, err := time.Parse(layout, input); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", ErrInvalidDate
}

// ParseFutureDeadline parses a deadline and additionally rejects instants
// strictly before now. This policy applies at creation time only; the update
// path deliberately accepts past deadlines.
func ParseFutureDeadline(input string, now time.Time) (string, error) {
	normalized, err := ParseDeadline(input)
	if err != nil || normalized == "" {
		return normalized, err
	}
	t, err := time.Parse(time.RFC3339, normalized)
	if err != nil {
		return "", ErrInvalidDate
	}
	if t.Before(now) {
		return "", ErrPastDeadline
	}
	return normalized, nil
}
