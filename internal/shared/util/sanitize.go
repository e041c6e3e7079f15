package util

import (
	"errors"
	"strings"
	"unicode"
)

const maxFileNameLen = 200

// ErrInvalidFileName is returned for names that are empty or try to traverse.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName removes path separators and control characters and rejects
// traversal patterns. Long names are truncated from the left so the extension survives.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if s == "" {
		return "", ErrInvalidFileName
	}
	if runes := []rune(s); len(runes) > maxFileNameLen {
		s = string(runes[len(runes)-maxFileNameLen:])
	}
	return s, nil
}
