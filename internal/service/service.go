// Package service holds the business rules of the API.
//
//	Handler (HTTP) → Service (rules) → Repository (storage)
//
// Services accept plain values, never HTTP types, and return apperror kinds
// for domain outcomes. Anything else they return is an infrastructure
// failure.
package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sakif/contacts-api/internal/apperror"
)

const (
	MaxUsernameLength = 50
	MinPasswordLength = 8
	MaxPasswordLength = 72
	MaxNameLength     = 50
	MaxEmailLength    = 100
	MaxPhoneLength    = 20
	DefaultListLimit  = 20
	MaxListLimit      = 100
)

// validateEmail accepts a bare address ("a@x.com"), not one with a display
// name. The address is compared exactly as given.
func validateEmail(field, email string) error {
	if email == "" {
		return apperror.ValidationFailed(field, "email is required")
	}
	if len(email) > MaxEmailLength {
		return apperror.ValidationFailed(field, "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed(field, "email is not a valid address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password", "password must be at least 8 characters")
	}
	if len(password) > MaxPasswordLength {
		return apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}
	return nil
}

// requireText trims s and checks it holds 1..max characters.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(s) > max {
		return "", apperror.ValidationFailed(field, field+" is too long")
	}
	return s, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
