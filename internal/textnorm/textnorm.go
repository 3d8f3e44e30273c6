// Package textnorm canonicalizes report text before it is embedded or compared.
// Output is deterministic so re-embedding unchanged items is idempotent.
package textnorm

import (
	"strings"
	"unicode"
)

// Normalize trims, lower-cases and collapses whitespace runs to a single space.
func Normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// BuildItemText joins the non-empty report fields, one per line, labelling the
// filter fields, and normalizes the result.
func BuildItemText(title, description, category, city, governorate string) string {
	var lines []string

	if strings.TrimSpace(title) != "" {
		lines = append(lines, title)
	}
	if strings.TrimSpace(description) != "" {
		lines = append(lines, description)
	}
	if strings.TrimSpace(category) != "" {
		lines = append(lines, "category: "+category)
	}
	if strings.TrimSpace(city) != "" {
		lines = append(lines, "city: "+city)
	}
	if strings.TrimSpace(governorate) != "" {
		lines = append(lines, "governorate: "+governorate)
	}

	return Normalize(strings.Join(lines, "\n"))
}

// Tokens splits normalized text into distinct word tokens, dropping punctuation
// and single-character fragments. Order of first appearance is kept.
func Tokens(text string) []string {
	words := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// Jaccard returns |a ∩ b| / |a ∪ b| over two token sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}

	inter := 0
	union := len(set)
	seenB := make(map[string]bool, len(b))
	for _, t := range b {
		if seenB[t] {
			continue
		}
		seenB[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}

	return float64(inter) / float64(union)
}
