package goShield

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/password"
	"github.com/MrEthical07/goShield/permission"
)

func TestRegisterCreatesTrialAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := registerUser(t, env.engine, "Alice@Example.com")

	if sess.User.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", sess.User.Email)
	}
	if sess.User.Role != membership.RoleOwner || sess.User.AccountID == "" {
		t.Fatalf("expected owner with account, got role=%q account=%q", sess.User.Role, sess.User.AccountID)
	}
	if sess.User.EmailVerified {
		t.Fatal("expected email unverified after registration")
	}

	p := principalOf(t, env.engine, sess)
	acct, err := env.engine.Account(context.Background(), p)
	if err != nil {
		t.Fatalf("account lookup failed: %v", err)
	}
	if acct.Status != membership.StatusTrial || acct.Plan != membership.PlanBasic {
		t.Fatalf("expected basic trial account, got status=%q plan=%q", acct.Status, acct.Plan)
	}
	if want := env.clock.Now().Add(membership.TrialPeriod); !acct.ExpiresAt.Equal(want) {
		t.Fatalf("expected trial to end at %v, got %v", want, acct.ExpiresAt)
	}
	if acct.OwnerID != sess.User.ID || len(acct.Members) != 1 {
		t.Fatalf("expected owner as sole member, got %+v", acct.Members)
	}

	env.mailer.last(t, "verify", "alice@example.com")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerUser(t, engine, "alice@example.com")

	_, err := engine.Register(context.Background(), RegisterInput{
		Name:     "Alice Again",
		Email:    "ALICE@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Fatalf("expected MetricRegisterDuplicate=1, got %d", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		name  string
		in    RegisterInput
		field string
		weak  bool
	}{
		{name: "short name", in: RegisterInput{Name: "A", Email: "a@example.com", Password: testPassword}, field: "name"},
		{name: "digits in name", in: RegisterInput{Name: "R2 D2", Email: "a@example.com", Password: testPassword}, field: "name"},
		{name: "bad email", in: RegisterInput{Name: "Alice", Email: "not-an-email", Password: testPassword}, field: "email"},
		{name: "email without dot", in: RegisterInput{Name: "Alice", Email: "a@localhost", Password: testPassword}, field: "email"},
		{name: "long email", in: RegisterInput{Name: "Alice", Email: strings.Repeat("a", 250) + "@example.com", Password: testPassword}, field: "email"},
		{name: "bad phone", in: RegisterInput{Name: "Alice", Email: "a@example.com", Password: testPassword, Phone: "12-34"}, field: "phone"},
		{name: "weak password", in: RegisterInput{Name: "Alice", Email: "a@example.com", Password: "password"}, weak: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Register(context.Background(), tc.in)
			if tc.weak {
				if !errors.Is(err, password.ErrWeakPassword) {
					t.Fatalf("expected ErrWeakPassword, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			if ProblemFor(err).Status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", ProblemFor(err).Status)
			}
		})
	}
}

func TestRegisterSucceedsWhenMailerFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mailer.setFail(true)

	if _, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: testPassword,
		Phone:    "5551234567",
	}); err != nil {
		t.Fatalf("expected registration to survive mail failure, got %v", err)
	}
}

func TestAddMemberCardinality(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := principalOf(t, env.engine, registerUser(t, env.engine, "owner@example.com"))

	admin := addMember(t, env.engine, owner, "admin@example.com", membership.RoleAdmin)
	if admin.AccountID != owner.User.AccountID || admin.Role != membership.RoleAdmin {
		t.Fatalf("unexpected admin %+v", admin)
	}

	_, _, err := env.engine.AddMember(context.Background(), owner, MemberInput{
		Name:     "Second Admin",
		Email:    "admin2@example.com",
		Password: testMemberPassword,
		Role:     membership.RoleAdmin,
	})
	if !errors.Is(err, membership.ErrRoleConflict) {
		t.Fatalf("expected ErrRoleConflict, got %v", err)
	}
	if p := ProblemFor(err); p.Code != CodeRoleConflict || p.Status != http.StatusBadRequest {
		t.Fatalf("unexpected problem %+v", p)
	}
	if _, err := env.users.GetUserByEmail(context.Background(), "admin2@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected rejected member's user to be rolled back, got %v", err)
	}

	addMember(t, env.engine, owner, "aux1@example.com", membership.RoleAuxiliary)

	_, _, err = env.engine.AddMember(context.Background(), owner, MemberInput{
		Name:     "Extra Helper",
		Email:    "aux2@example.com",
		Password: testMemberPassword,
		Role:     membership.RoleAuxiliary,
	})
	if !errors.Is(err, membership.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricMemberRejected]; got != 2 {
		t.Fatalf("expected MetricMemberRejected=2, got %d", got)
	}
}

func TestAddMemberManagementRules(t *testing.T) {
	engine, _ := newTestEngine(t)
	owner := principalOf(t, engine, registerUser(t, engine, "owner@example.com"))
	addMember(t, engine, owner, "admin@example.com", membership.RoleAdmin)

	adminSess, err := engine.Login(context.Background(), "admin@example.com", testMemberPassword)
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	admin := principalOf(t, engine, adminSess)

	_, _, err = engine.AddMember(context.Background(), admin, MemberInput{
		Name: "Another Owner", Email: "o2@example.com", Password: testMemberPassword, Role: membership.RoleOwner,
	})
	if !errors.Is(err, membership.ErrOwnershipRequired) {
		t.Fatalf("expected admin unable to add an owner, got %v", err)
	}

	aux := addMember(t, engine, admin, "aux@example.com", membership.RoleAuxiliary)
	auxSess, err := engine.Login(context.Background(), "aux@example.com", testMemberPassword)
	if err != nil {
		t.Fatalf("auxiliary login failed: %v", err)
	}

	if _, err := engine.RemoveMember(context.Background(), principalOf(t, engine, auxSess), aux.ID); err == nil {
		t.Fatal("expected auxiliary unable to manage members")
	}

	_, _, err = engine.AddMember(context.Background(), owner, MemberInput{
		Name: "Bad Role", Email: "r@example.com", Password: testMemberPassword, Role: "superuser",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown role, got %v", err)
	}

	_, _, err = engine.AddMember(context.Background(), owner, MemberInput{
		Name: "Short Pass", Email: "s@example.com", Password: "abc", Role: membership.RoleAuxiliary,
	})
	if !errors.Is(err, password.ErrWeakPassword) {
		t.Fatalf("expected short member password rejected, got %v", err)
	}
}

func TestAddMemberOverridesOnlyNarrow(t *testing.T) {
	engine, _ := newTestEngine(t)
	owner := principalOf(t, engine, registerUser(t, engine, "owner@example.com"))

	_, _, err := engine.AddMember(context.Background(), owner, MemberInput{
		Name:        "Bad Flag",
		Email:       "flag@example.com",
		Password:    testMemberPassword,
		Role:        membership.RoleAuxiliary,
		Permissions: map[permission.Name]bool{"root": true},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown permission rejected, got %v", err)
	}

	_, _, err = engine.AddMember(context.Background(), owner, MemberInput{
		Name:     "Narrow Admin",
		Email:    "admin@example.com",
		Password: testMemberPassword,
		Role:     membership.RoleAdmin,
		Permissions: map[permission.Name]bool{
			permission.Financial: false,
		},
	})
	if err != nil {
		t.Fatalf("add admin failed: %v", err)
	}
	_, _, err = engine.AddMember(context.Background(), owner, MemberInput{
		Name:     "Greedy Helper",
		Email:    "aux@example.com",
		Password: testMemberPassword,
		Role:     membership.RoleAuxiliary,
		Permissions: map[permission.Name]bool{
			permission.Financial: true,
		},
	})
	if err != nil {
		t.Fatalf("add auxiliary failed: %v", err)
	}

	adminSess, err := engine.Login(context.Background(), "admin@example.com", testMemberPassword)
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	admin := principalOf(t, engine, adminSess)
	if _, err := engine.Authorize(context.Background(), admin, permission.Financial); !errors.Is(err, membership.ErrInsufficientPermissions) {
		t.Fatalf("expected narrowed admin denied financial, got %v", err)
	}
	if _, err := engine.Authorize(context.Background(), admin, permission.Reports); err != nil {
		t.Fatalf("expected admin to keep reports, got %v", err)
	}

	auxSess, err := engine.Login(context.Background(), "aux@example.com", testMemberPassword)
	if err != nil {
		t.Fatalf("auxiliary login failed: %v", err)
	}
	aux := principalOf(t, engine, auxSess)
	if _, err := engine.Authorize(context.Background(), aux, permission.Financial); !errors.Is(err, membership.ErrInsufficientPermissions) {
		t.Fatalf("expected override unable to grant financial, got %v", err)
	}

	profile, err := engine.Me(context.Background(), aux)
	if err != nil {
		t.Fatalf("me failed: %v", err)
	}
	if profile.Permissions[permission.Financial] || !profile.Permissions[permission.Monitoring] {
		t.Fatalf("unexpected auxiliary flags %+v", profile.Permissions)
	}
	if len(profile.Permissions) != len(permission.All()) {
		t.Fatalf("expected a flag for every permission, got %d", len(profile.Permissions))
	}
}

func TestRemoveMember(t *testing.T) {
	engine, _ := newTestEngine(t)
	ownerSess := registerUser(t, engine, "owner@example.com")
	owner := principalOf(t, engine, ownerSess)
	addMember(t, engine, owner, "admin@example.com", membership.RoleAdmin)
	aux := addMember(t, engine, owner, "aux@example.com", membership.RoleAuxiliary)

	auxSess, err := engine.Login(context.Background(), "aux@example.com", testMemberPassword)
	if err != nil {
		t.Fatalf("auxiliary login failed: %v", err)
	}
	adminSess, err := engine.Login(context.Background(), "admin@example.com", testMemberPassword)
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	admin := principalOf(t, engine, adminSess)

	if _, err := engine.RemoveMember(context.Background(), admin, ownerSess.User.ID); !errors.Is(err, membership.ErrCannotRemoveOwner) {
		t.Fatalf("expected ErrCannotRemoveOwner, got %v", err)
	}
	if _, err := engine.RemoveMember(context.Background(), admin, "missing"); !errors.Is(err, membership.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	acct, err := engine.RemoveMember(context.Background(), admin, aux.ID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok := acct.Member(aux.ID); ok {
		t.Fatal("expected auxiliary gone from account")
	}

	if _, err := engine.Authenticate(context.Background(), auxSess.AccessToken); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected removed member inactive, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), auxSess.RefreshToken); err == nil {
		t.Fatal("expected removed member refresh tokens revoked")
	}

	// The freed slot can be reused.
	addMember(t, engine, owner, "aux2@example.com", membership.RoleAuxiliary)
}

func TestAuthorize(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := principalOf(t, env.engine, registerUser(t, env.engine, "owner@example.com"))
	addMember(t, env.engine, owner, "aux@example.com", membership.RoleAuxiliary)

	if _, err := env.engine.Authorize(context.Background(), owner, permission.Financial); err != nil {
		t.Fatalf("expected owner allowed, got %v", err)
	}

	auxSess, err := env.engine.Login(context.Background(), "aux@example.com", testMemberPassword)
	if err != nil {
		t.Fatalf("auxiliary login failed: %v", err)
	}
	aux := principalOf(t, env.engine, auxSess)

	_, err = env.engine.Authorize(context.Background(), aux, permission.Values)
	var denied *membership.DeniedError
	if !errors.As(err, &denied) || denied.Permission != permission.Values || denied.Role != membership.RoleAuxiliary {
		t.Fatalf("expected DeniedError for values, got %v", err)
	}
	problem := ProblemFor(err)
	if problem.Status != http.StatusForbidden || problem.Code != CodeInsufficientPerms {
		t.Fatalf("unexpected problem %+v", problem)
	}
	if problem.Extra["requiredPermission"] != permission.Values || problem.Extra["userRole"] != membership.RoleAuxiliary {
		t.Fatalf("unexpected problem extras %+v", problem.Extra)
	}

	if _, err := env.engine.Authorize(context.Background(), nil, permission.Values); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	orphan := &Principal{User: &User{ID: "orphan", Status: UserActive}}
	if _, err := env.engine.Authorize(context.Background(), orphan, permission.Values); !errors.Is(err, ErrAccountRequired) {
		t.Fatalf("expected ErrAccountRequired, got %v", err)
	}

	env.clock.Advance(membership.TrialPeriod + 1)
	if _, err := env.engine.Authorize(context.Background(), owner, permission.Financial); !errors.Is(err, membership.ErrAccountInactive) {
		t.Fatalf("expected expired trial to deny, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAuthorizationDenied]; got != 2 {
		t.Fatalf("expected MetricAuthorizationDenied=2, got %d", got)
	}
}
