package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

// PINChecker verifies the librarian PIN presented at the boundary against a bcrypt hash.
// An empty hash disables the check.
type PINChecker struct {
	hash []byte
}

// NewPINChecker constructs a checker from a bcrypt hash.
func NewPINChecker(hash string) *PINChecker {
	return &PINChecker{hash: []byte(hash)}
}

// Enabled reports whether a PIN is required.
func (c *PINChecker) Enabled() bool {
	return c != nil && len(c.hash) > 0
}

// Check returns INVALID_CAPABILITY unless pin matches.
func (c *PINChecker) Check(_ context.Context, pin string) error {
	if !c.Enabled() {
		return nil
	}
	if pin == "" {
		return appErrors.Clone(appErrors.ErrInvalidCapability, "librarian pin required")
	}
	if err := bcrypt.CompareHashAndPassword(c.hash, []byte(pin)); err != nil {
		return appErrors.ErrInvalidCapability
	}
	return nil
}
