// Package domain contains entity rules without transport logic.
package domain

import (
	"errors"
	"regexp"
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 36
)

var (
	ErrInvalidIdentity = errors.New("invalid username")
	ErrIdentityTaken   = errors.New("username already taken")
)

// usernamePattern admits letters, digits, dots, dashes and underscores.
// The token separator (newline) can never appear in a valid username,
// which keeps token derivation unambiguous.
var usernamePattern = regexp.MustCompile(`^[0-9A-Za-z._-]{3,36}$`)

// ValidUsername reports whether name may occupy the room.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// CheckUsername is a tiny helper to avoid ad-hoc pattern checks in adapters.
func CheckUsername(name string) error {
	if !ValidUsername(name) {
		return ErrInvalidIdentity
	}
	return nil
}
