package ratelimit

import "time"

// Class names an operation family with its own budget.
type Class string

const (
	ClassLogin         Class = "login"
	ClassRegister      Class = "register"
	ClassPasswordReset Class = "password-reset"
	ClassGeneric       Class = "generic"
	ClassSensitive     Class = "sensitive"
	ClassFinancial     Class = "financial"
	ClassUpload        Class = "upload"
)

// Classes lists the built-in classes in a stable order.
func Classes() []Class {
	return []Class{ClassLogin, ClassRegister, ClassPasswordReset, ClassGeneric, ClassSensitive, ClassFinancial, ClassUpload}
}

// Rule is the budget of one class.
type Rule struct {
	Limit  int
	Window time.Duration
	// Code and Message are surfaced to clients on denial.
	Code    string
	Message string
	// SkipSuccessful makes successful operations give their hit back via Limiter.Release,
	// so only failures count.
	SkipSuccessful bool
}

// DefaultRules returns the stock budgets.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassLogin: {
			Limit: 5, Window: 15 * time.Minute, SkipSuccessful: true,
			Code: "TOO_MANY_LOGIN_ATTEMPTS", Message: "Too many login attempts. Try again later.",
		},
		ClassRegister: {
			Limit: 3, Window: time.Hour,
			Code: "TOO_MANY_REGISTER_ATTEMPTS", Message: "Too many registration attempts. Try again later.",
		},
		ClassPasswordReset: {
			Limit: 3, Window: time.Hour,
			Code: "TOO_MANY_PASSWORD_RESET_ATTEMPTS", Message: "Too many password reset attempts. Try again later.",
		},
		ClassGeneric: {
			Limit: 100, Window: 15 * time.Minute,
			Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests. Try again later.",
		},
		ClassSensitive: {
			Limit: 30, Window: time.Minute,
			Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests to a sensitive endpoint.",
		},
		ClassFinancial: {
			Limit: 20, Window: time.Minute,
			Code: "FINANCIAL_RATE_LIMIT_EXCEEDED", Message: "Too many financial operations. Try again later.",
		},
		ClassUpload: {
			Limit: 10, Window: time.Hour,
			Code: "UPLOAD_RATE_LIMIT_EXCEEDED", Message: "Too many uploads. Try again later.",
		},
	}
}
