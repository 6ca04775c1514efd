package service

import (
	"strings"
	"unicode/utf8"
)

// field trims s and checks it is non-empty and at most max runes.
func field(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > max {
		return s, false
	}
	return s, true
}

// identityKey trims a student_id that addresses an existing identity. An id
// longer than MaxStudentIDLen was never registrable, so it is not found.
func identityKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", ErrInvalidStudentID
	case utf8.RuneCountInString(s) > MaxStudentIDLen:
		return "", ErrIdentityNotFound
	}
	return s, nil
}
