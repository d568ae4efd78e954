package goShield

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/permission"
	"github.com/google/uuid"
)

// Register creates a user, opens a trial account owned by them and starts a session. A
// verification email is sent; a delivery failure is logged and does not fail registration.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePhone(in.Phone); err != nil {
		return nil, err
	}
	if err := e.config.Password.Policy.Check(in.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	user := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         membership.RoleOwner,
		Status:       UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegister, false, "", "", err, nil)
		}
		return nil, err
	}

	accountName := strings.TrimSpace(in.AccountName)
	if accountName == "" {
		accountName = name
	}
	acct, err := e.authority.CreateAccount(ctx, accountName, user.ID, e.config.Membership.DefaultPlan)
	if err != nil {
		e.discardUser(ctx, user.ID)
		return nil, err
	}

	user, err = e.users.UpdateUser(ctx, user.ID, func(u *User) error {
		u.AccountID = acct.ID
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.sendVerification(ctx, user); err != nil {
		e.logger.Warn("goShield: verification email not sent", "user_id", user.ID, "error", err)
	}

	sess, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.settleRate(ctx)
	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, user.ID, acct.ID, nil, nil)
	return sess, nil
}

// Account returns the principal's account.
func (e *Engine) Account(ctx context.Context, p *Principal) (*membership.Account, error) {
	if p == nil || p.User == nil {
		return nil, ErrNotAuthenticated
	}
	if p.User.AccountID == "" {
		return nil, ErrAccountRequired
	}
	return e.authority.Get(ctx, p.User.AccountID)
}

// AddMember creates a user inside the principal's account with the requested role.
//
// Owners may add admins and auxiliaries; admins may add auxiliaries only. Capacity and role
// cardinality are enforced atomically by the account store; when they reject the member the
// freshly created user is removed again. Permission flags in the input can only narrow the
// role defaults.
func (e *Engine) AddMember(ctx context.Context, p *Principal, in MemberInput) (*User, *membership.Account, error) {
	acct, err := e.Account(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if !e.authority.IsActive(acct) {
		return nil, nil, membership.ErrAccountInactive
	}
	if !in.Role.Valid() {
		return nil, nil, invalid("role", "must be owner, admin or auxiliary")
	}
	if err := e.authority.CanManage(acct, p.User.ID, in.Role); err != nil {
		e.metricInc(MetricMemberRejected)
		return nil, nil, err
	}

	name, err := validateName(in.Name)
	if err != nil {
		return nil, nil, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, nil, err
	}
	if err := memberPolicy.Check(in.Password); err != nil {
		return nil, nil, err
	}
	for perm := range in.Permissions {
		if _, ok := permission.Bit(perm); !ok {
			return nil, nil, invalid("permissions", "unknown permission "+string(perm))
		}
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, err
	}

	now := e.now()
	user := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		AccountID:    acct.ID,
		Role:         in.Role,
		Status:       UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	acct, err = e.authority.AddMember(ctx, acct.ID, user.ID, in.Role, p.User.ID)
	if err != nil {
		e.discardUser(ctx, user.ID)
		e.metricInc(MetricMemberRejected)
		e.emitAudit(ctx, auditEventMemberAdded, false, p.User.ID, p.User.AccountID, err, func() map[string]string {
			return map[string]string{"role": string(in.Role)}
		})
		return nil, nil, err
	}

	if len(in.Permissions) > 0 {
		acct, err = e.authority.SetOverrides(ctx, acct.ID, user.ID, in.Permissions)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := e.sendVerification(ctx, user); err != nil {
		e.logger.Warn("goShield: verification email not sent", "user_id", user.ID, "error", err)
	}

	e.metricInc(MetricMemberAdded)
	e.emitAudit(ctx, auditEventMemberAdded, true, p.User.ID, acct.ID, nil, func() map[string]string {
		return map[string]string{"member_id": user.ID, "role": string(in.Role)}
	})
	return user, acct, nil
}

// RemoveMember takes userID out of the principal's account, deactivates the user and revokes
// their credentials. The owner can never be removed.
func (e *Engine) RemoveMember(ctx context.Context, p *Principal, userID string) (*membership.Account, error) {
	acct, err := e.Account(ctx, p)
	if err != nil {
		return nil, err
	}
	target, ok := acct.Member(userID)
	if !ok {
		return nil, membership.ErrMemberNotFound
	}
	if target.Role == membership.RoleOwner {
		return nil, membership.ErrCannotRemoveOwner
	}
	if err := e.authority.CanManage(acct, p.User.ID, target.Role); err != nil {
		e.metricInc(MetricMemberRejected)
		return nil, err
	}

	acct, err = e.authority.RemoveMember(ctx, acct.ID, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if _, err := e.users.UpdateUser(ctx, userID, func(u *User) error {
		u.AccountID = ""
		u.Role = ""
		u.Status = UserInactive
		u.UpdatedAt = now
		return nil
	}); err != nil && !errors.Is(err, ErrUserNotFound) {
		e.logger.Warn("goShield: removed member not deactivated", "user_id", userID, "error", err)
	}
	if _, err := e.tokens.RevokeAll(ctx, userID); err != nil {
		e.logger.Warn("goShield: removed member tokens not revoked", "user_id", userID, "error", err)
	}
	if _, err := e.csrf.RevokeUser(ctx, userID); err != nil {
		e.logger.Warn("goShield: removed member csrf not revoked", "user_id", userID, "error", err)
	}

	e.metricInc(MetricMemberRemoved)
	e.emitAudit(ctx, auditEventMemberRemoved, true, p.User.ID, acct.ID, nil, func() map[string]string {
		return map[string]string{"member_id": userID, "role": string(target.Role)}
	})
	return acct, nil
}

func (e *Engine) discardUser(ctx context.Context, userID string) {
	if err := e.users.DeleteUser(ctx, userID); err != nil && !errors.Is(err, ErrUserNotFound) {
		e.logger.Error("goShield: could not roll back user", "user_id", userID, "error", err)
	}
}
