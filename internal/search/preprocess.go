package search

import (
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
)

// snippetMaxRunes bounds how much body text a Result carries back to the UI.
const snippetMaxRunes = 160

// composeText flattens a draft into one normalized searchable string:
// subject, original body, and translated body joined by single spaces.
func composeText(d *domain.Draft) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{d.Subject, d.SourceBody, d.TranslatedBody} {
		if t := strings.TrimSpace(normalizeWhitespace(s)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// makeSnippet returns a short excerpt for the draft: the original body when
// present, otherwise the translated one, trimmed to snippetMaxRunes at a word
// boundary with an ellipsis.
func makeSnippet(d *domain.Draft) string {
	body := strings.TrimSpace(normalizeWhitespace(d.SourceBody))
	if body == "" {
		body = strings.TrimSpace(normalizeWhitespace(d.TranslatedBody))
	}
	if body == "" {
		return d.Subject
	}
	if utf8.RuneCountInString(body) <= snippetMaxRunes {
		return body
	}

	runes := []rune(body)
	cut := snippetMaxRunes
	// Back up to the previous word boundary, unless that would gut the snippet.
	for cut > snippetMaxRunes/2 && runes[cut-1] != ' ' {
		cut--
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}

// normalizeWhitespace collapses runs of spaces, tabs, CRs, and newlines into
// single spaces so snippets render on one line.
func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
