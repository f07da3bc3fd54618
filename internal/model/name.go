package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// CleanName trims surrounding whitespace, including Unicode spaces.
func CleanName(name string) string {
	return strings.TrimFunc(name, unicode.IsSpace)
}

// NameKey returns the uniqueness key for an item name: the trimmed name,
// Unicode case-folded. Inner whitespace is kept as is.
func NameKey(name string) string {
	return cases.Fold().String(CleanName(name))
}

// SearchKey folds case and collapses every run of whitespace (any Unicode
// space, including U+00A0) into a single U+0020. It is applied to both
// stored names and queries so that space variants match each other.
func SearchKey(s string) string {
	return cases.Fold().String(CollapseSpaces(s))
}

// CollapseSpaces trims s and replaces each whitespace run with one ASCII space.
func CollapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
