package utils

import (
	"strings"
	"unicode"
)

// NormalizeTerm trims and lower-cases a banned term.
func NormalizeTerm(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// ParseUserMention accepts "<@123>", "<@!123>" or a bare numeric ID.
func ParseUserMention(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimPrefix(s, "!")
	s = strings.TrimSuffix(s, ">")
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return "", false
		}
	}
	return s, true
}

func Mention(userID string) string {
	return "<@" + userID + ">"
}
