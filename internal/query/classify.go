// ABOUTME: Write/read classification of SQL statements by leading keyword
// ABOUTME: Skips whitespace and SQL comments before reading the first word

package query

import (
	"strings"
	"unicode"
)

var writeVerbs = map[string]bool{
	"insert":   true,
	"update":   true,
	"delete":   true,
	"replace":  true,
	"create":   true,
	"alter":    true,
	"drop":     true,
	"truncate": true,
	"pragma":   true,
}

// IsWrite reports whether statement mutates the engine.
func IsWrite(statement string) bool {
	return writeVerbs[leadingKeyword(statement)]
}

// leadingKeyword returns the lower-cased first word of s.
func leadingKeyword(s string) string {
	s = skipTrivia(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end == -1 {
		end = len(s)
	}
	return strings.ToLower(s[:end])
}

// skipTrivia drops leading whitespace, "--" line comments, and "/* */" blocks.
func skipTrivia(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl == -1 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s[2:], "*/")
			if end == -1 {
				return ""
			}
			s = s[2+end+2:]
		default:
			return s
		}
	}
}
