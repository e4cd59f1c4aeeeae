// Package naming normalizes declared identifiers into the three spellings the
// generators need: snake_case for wire names, PascalCase for exported Go
// identifiers and camelCase for parameters.
package naming

import (
	"go/token"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Words splits an identifier on separators and case boundaries.
//
//	Words("name_to_greet") == ["name", "to", "greet"]
//	Words("HTTPServer2")   == ["http", "server2"]
func Words(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.' || r == ':':
			flush()
			continue
		case unicode.IsUpper(r) && len(cur) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// Snake returns the snake_case spelling used on the wire.
func Snake(s string) string {
	return strings.Join(Words(s), "_")
}

// Pascal returns the exported Go spelling.
func Pascal(s string) string {
	var b strings.Builder
	for _, w := range Words(s) {
		b.WriteString(titleWord(w))
	}
	return b.String()
}

// Camel returns the unexported Go spelling. Results that collide with a Go
// keyword get an "Arg" suffix.
func Camel(s string) string {
	words := Words(s)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(words[0])
	for _, w := range words[1:] {
		b.WriteString(titleWord(w))
	}
	out := b.String()
	if token.IsKeyword(out) {
		out += "Arg"
	}
	return out
}

// titleWord upper-cases the first letter of w. Casers are stateful, so each
// call gets its own.
func titleWord(w string) string {
	return cases.Title(language.Und, cases.NoLower).String(w)
}

// IsExported reports whether s is a valid exported Go identifier.
func IsExported(s string) bool {
	return token.IsIdentifier(s) && token.IsExported(s)
}

// IsPackageName reports whether s is a lower-case Go package name.
func IsPackageName(s string) bool {
	if !token.IsIdentifier(s) || s == "_" {
		return false
	}
	for _, r := range s {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
