package security

import (
	"sort"
	"time"
)

// PasswordReport mirrors the argon2id cost parameters.
type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RateRule is one class budget as reported.
type RateRule struct {
	Class          string
	Limit          int
	Window         time.Duration
	SkipSuccessful bool
}

// Report is the security posture of a configured engine.
type Report struct {
	ProductionMode      bool
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	CSRFTTL             time.Duration
	Argon2              PasswordReport
	StateBackend        string
	AbuseBlocking       bool
	RateRules           []RateRule
	LoginThrottled      bool
	VerificationEnforce bool
	ResetTokenTTL       time.Duration
	AuditEnabled        bool
	MetricsEnabled      bool
	Warnings            []string
}

// ReportInput is the raw configuration a Report is derived from.
type ReportInput struct {
	ProductionMode      bool
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	CSRFTTL             time.Duration
	Password            PasswordReport
	StateBackend        string
	AbuseMode           string
	RateRules           []RateRule
	VerificationEnforce bool
	ResetTokenTTL       time.Duration
	AuditEnabled        bool
	MetricsEnabled      bool
}

// BuildReport derives a Report and flags combinations that weaken the deployment.
func BuildReport(input ReportInput) Report {
	rules := append([]RateRule(nil), input.RateRules...)
	sort.Slice(rules, func(i, j int) bool { return rules[i].Class < rules[j].Class })

	loginThrottled := false
	for _, r := range rules {
		if r.Class == "login" && r.Limit > 0 {
			loginThrottled = true
		}
	}

	var warnings []string
	if input.ProductionMode && input.StateBackend == "memory" {
		warnings = append(warnings, "in-memory state is not shared between replicas")
	}
	if input.AbuseMode != "block" {
		warnings = append(warnings, "abuse detector only logs matches")
	}
	if !loginThrottled {
		warnings = append(warnings, "login attempts are not rate limited")
	}
	if input.ProductionMode && !input.AuditEnabled {
		warnings = append(warnings, "audit trail disabled")
	}

	return Report{
		ProductionMode:      input.ProductionMode,
		SigningAlgorithm:    input.SigningAlgorithm,
		AccessTTL:           input.AccessTTL,
		RefreshTTL:          input.RefreshTTL,
		CSRFTTL:             input.CSRFTTL,
		Argon2:              input.Password,
		StateBackend:        input.StateBackend,
		AbuseBlocking:       input.AbuseMode == "block",
		RateRules:           rules,
		LoginThrottled:      loginThrottled,
		VerificationEnforce: input.VerificationEnforce,
		ResetTokenTTL:       input.ResetTokenTTL,
		AuditEnabled:        input.AuditEnabled,
		MetricsEnabled:      input.MetricsEnabled,
		Warnings:            warnings,
	}
}
