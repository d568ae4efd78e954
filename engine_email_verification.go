package goShield

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goShield/internal"
	"github.com/MrEthical07/goShield/internal/stores"
)

const linkSecretBytes = 32

// VerifyEmail redeems a verification token. Tokens are single use; unknown, used and expired
// tokens all return ErrInvalidVerificationToken.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrVerificationTokenRequired
	}

	c, err := e.verifications.Consume(ctx, stores.PurposeVerifyEmail, internal.HashString(token), e.now())
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", "", ErrInvalidVerificationToken, nil)
			return ErrInvalidVerificationToken
		}
		return err
	}

	now := e.now()
	user, err := e.users.UpdateUser(ctx, c.UserID, func(u *User) error {
		u.EmailVerified = true
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidVerificationToken
		}
		return err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, user.ID, user.AccountID, nil, nil)
	return nil
}

// ResendVerification issues a fresh verification link, invalidating earlier ones. Unlike
// registration, a delivery failure is reported as ErrEmailDelivery.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}
	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}
	if err := e.sendVerification(ctx, user); err != nil {
		return err
	}
	e.settleRate(ctx)
	return nil
}

func (e *Engine) sendVerification(ctx context.Context, u *User) error {
	token, err := internal.NewHexSecret(linkSecretBytes)
	if err != nil {
		return err
	}
	if err := e.verifications.DeleteForUser(ctx, stores.PurposeVerifyEmail, u.ID); err != nil {
		return err
	}
	err = e.verifications.Save(ctx, stores.PurposeVerifyEmail, internal.HashString(token), stores.Challenge{
		UserID:    u.ID,
		ExpiresAt: e.now().Add(e.config.Verification.TokenTTL),
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, u.ID, u.AccountID, nil, nil)

	if err := e.mailer.SendVerification(ctx, u.Email, u.Name, token); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	return nil
}
