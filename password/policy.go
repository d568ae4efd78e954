package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrWeakPassword is returned by Policy.Check. The wrapped message names the failed rule.
var ErrWeakPassword = errors.New("password does not meet the strength policy")

// Symbols is the set that satisfies the symbol rule.
const Symbols = "!@#$%^&*"

// Policy is the strength rule applied to new passwords at registration and reset.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireMixed  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires 8 to 128 characters with lower and upper case, a digit and a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     128,
		RequireMixed:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

type policyError struct {
	rule string
}

func (e *policyError) Error() string { return "password " + e.rule }
func (e *policyError) Is(target error) bool {
	return target == ErrWeakPassword
}

// Check returns nil when pw satisfies the policy. Length counts runes.
func (p Policy) Check(pw string) error {
	n := utf8.RuneCountInString(pw)
	if p.MinLength > 0 && n < p.MinLength {
		return &policyError{rule: "is too short"}
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return &policyError{rule: "is too long"}
	}

	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}
	if p.RequireMixed && !(lower && upper) {
		return &policyError{rule: "needs upper and lower case letters"}
	}
	if p.RequireDigit && !digit {
		return &policyError{rule: "needs a digit"}
	}
	if p.RequireSymbol && !symbol {
		return &policyError{rule: "needs a symbol from " + Symbols}
	}
	return nil
}
