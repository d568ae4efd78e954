package goShield

import (
	"context"
	"errors"

	"github.com/MrEthical07/goShield/internal"
	"github.com/MrEthical07/goShield/internal/stores"
)

// ForgotPassword emails a single-use reset link when email belongs to a user. The result is
// the same whether or not the address is known; only a malformed address is rejected.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.Error("goShield: reset lookup failed", "error", err)
		}
		return nil
	}

	token, err := internal.NewHexSecret(linkSecretBytes)
	if err != nil {
		e.logger.Error("goShield: reset token generation failed", "error", err)
		return nil
	}
	if err := e.resets.DeleteForUser(ctx, stores.PurposePasswordReset, user.ID); err != nil {
		e.logger.Error("goShield: reset cleanup failed", "user_id", user.ID, "error", err)
		return nil
	}
	err = e.resets.Save(ctx, stores.PurposePasswordReset, internal.HashString(token), stores.Challenge{
		UserID:    user.ID,
		ExpiresAt: e.now().Add(e.config.Reset.TokenTTL),
	})
	if err != nil {
		e.logger.Error("goShield: reset token not stored", "user_id", user.ID, "error", err)
		return nil
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, user.AccountID, nil, nil)

	if err := e.mailer.SendPasswordReset(ctx, user.Email, user.Name, token); err != nil {
		e.logger.Warn("goShield: reset email not sent", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token and revokes every refresh record
// and CSRF token of the user. The new password is checked before the token is spent.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := e.config.Password.Policy.Check(newPassword); err != nil {
		return err
	}

	c, err := e.resets.Consume(ctx, stores.PurposePasswordReset, internal.HashString(token), e.now())
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", ErrInvalidResetToken, nil)
			return ErrInvalidResetToken
		}
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	now := e.now()
	user, err := e.users.UpdateUser(ctx, c.UserID, func(u *User) error {
		u.PasswordHash = hash
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	if _, err := e.tokens.RevokeAll(ctx, user.ID); err != nil {
		return err
	}
	if _, err := e.csrf.RevokeUser(ctx, user.ID); err != nil {
		e.logger.Warn("goShield: csrf revoke failed", "user_id", user.ID, "error", err)
	}
	if err := e.resets.DeleteForUser(ctx, stores.PurposePasswordReset, user.ID); err != nil {
		e.logger.Warn("goShield: reset cleanup failed", "user_id", user.ID, "error", err)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, user.AccountID, nil, nil)
	return nil
}
