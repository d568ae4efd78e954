package goShield

import (
	"github.com/MrEthical07/goShield/internal/security"
	"github.com/MrEthical07/goShield/ratelimit"
)

// SecurityReport summarizes the security posture of an engine.
type SecurityReport = security.Report

// SecurityReport derives the posture report from the active configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	rules := make([]security.RateRule, 0, 8)
	for _, class := range ratelimit.Classes() {
		rule, ok := e.limiter.Rule(class)
		if !ok {
			continue
		}
		rules = append(rules, security.RateRule{
			Class:          string(class),
			Limit:          rule.Limit,
			Window:         rule.Window,
			SkipSuccessful: rule.SkipSuccessful,
		})
	}

	return security.BuildReport(security.ReportInput{
		ProductionMode:   e.config.HTTP.Production,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.Refresh.TTL,
		CSRFTTL:          e.config.CSRF.TTL,
		Password: security.PasswordReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		StateBackend:        e.backend,
		AbuseMode:           string(e.detector.Mode()),
		RateRules:           rules,
		VerificationEnforce: e.config.Verification.RequireForLogin,
		ResetTokenTTL:       e.config.Reset.TokenTTL,
		AuditEnabled:        e.audit != nil,
		MetricsEnabled:      e.metrics.Enabled(),
	})
}
