package goShield

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/goShield/password"
)

const (
	minNameLength  = 2
	maxNameLength  = 100
	maxEmailLength = 255
)

var (
	namePattern  = regexp.MustCompile(`^[\p{L}\s]+$`)
	phonePattern = regexp.MustCompile(`^[0-9]{10,11}$`)
)

// memberPolicy applies to passwords set by an owner or admin for a new member, who is
// expected to change it on first use.
var memberPolicy = password.Policy{MinLength: 6, MaxLength: 128}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "required")
	}
	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return "", invalid("name", "must be between 2 and 100 characters")
	}
	if !namePattern.MatchString(name) {
		return "", invalid("name", "may contain letters and spaces only")
	}
	return name, nil
}

func validateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", invalid("email", "required")
	}
	if len(email) > maxEmailLength {
		return "", invalid("email", "too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@'):], ".") {
		return "", invalid("email", "invalid address")
	}
	return email, nil
}

func validatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	if !phonePattern.MatchString(phone) {
		return invalid("phone", "must be 10 or 11 digits")
	}
	return nil
}
