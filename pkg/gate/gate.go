// Package gate implements the passcode check that guards the inbox scan.
package gate

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasscode is used when no passcode or hash is configured.
const DefaultPasscode = "9398"

// Gate verifies a passcode against a plaintext secret or a bcrypt hash.
type Gate struct {
	secret []byte
	hash   []byte
}

// New returns a gate for a plaintext secret. An empty secret selects DefaultPasscode.
func New(secret string) *Gate {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		secret = DefaultPasscode
	}
	return &Gate{secret: []byte(secret)}
}

// NewHashed returns a gate for a bcrypt hash.
func NewHashed(hash string) (*Gate, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parsing passcode hash: %w", err)
	}
	return &Gate{hash: []byte(hash)}, nil
}

// FromConfig prefers hash over secret when both are set.
func FromConfig(secret, hash string) (*Gate, error) {
	if strings.TrimSpace(hash) != "" {
		return NewHashed(hash)
	}
	return New(secret), nil
}

// Check reports whether input, with surrounding whitespace trimmed, matches.
func (g *Gate) Check(input string) bool {
	candidate := []byte(strings.TrimSpace(input))

	if g.hash != nil {
		err := bcrypt.CompareHashAndPassword(g.hash, candidate)
		return err == nil
	}
	return subtle.ConstantTimeCompare(g.secret, candidate) == 1
}

// Hash returns a bcrypt hash of passcode for use as SMSLEDGER_PASSCODE_HASH.
func Hash(passcode string) (string, error) {
	passcode = strings.TrimSpace(passcode)
	if passcode == "" {
		return "", errors.New("passcode is empty")
	}

	b, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing passcode: %w", err)
	}
	return string(b), nil
}
