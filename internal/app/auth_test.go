package app

import (
	"context"
	"testing"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequiresExplicitRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	base := domain.RegisterRequest{Name: "Asha", Email: "asha@example.com", Password: "correct-horse"}

	tests := []struct {
		name    string
		role    domain.Role
		wantErr error
	}{
		{name: "missing role", role: "", wantErr: ErrRoleRequired},
		{name: "admin is not self-assignable", role: domain.RoleAdmin, wantErr: ErrInvalidRole},
		{name: "wrong case", role: "Vendor", wantErr: ErrInvalidRole},
		{name: "unknown role", role: "founder", wantErr: ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			req.Role = tt.role
			_, err := env.svc.Register(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	req := base
	req.Role = domain.RoleVendor
	session, err := env.svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewVendorDashboard, session.View)
	assert.Equal(t, domain.RoleVendor, session.User.Role)
	assert.NotEmpty(t, session.Token)
	assert.NotEqual(t, "correct-horse", session.User.PasswordHash)
	assert.Contains(t, env.publisher.published(), domain.EventSessionStarted)

	_, err = env.svc.Register(ctx, req)
	assert.ErrorIs(t, err, store.ErrEmailTaken)
}

func TestRegisterValidatesInput(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.Register(ctx, domain.RegisterRequest{Name: " ", Email: "a@example.com", Password: "longenough", Role: domain.RoleInvestor})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.Register(ctx, domain.RegisterRequest{Name: "A", Email: "not-an-email", Password: "longenough", Role: domain.RoleInvestor})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.Register(ctx, domain.RegisterRequest{Name: "A", Email: "a@example.com", Password: "short", Role: domain.RoleInvestor})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoginAuthenticateLogout(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.Register(ctx, domain.RegisterRequest{Name: "Ravi", Email: "Ravi@Example.com", Password: "correct-horse", Role: domain.RoleInvestor})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, domain.LoginRequest{Email: "ravi@example.com", Password: "wrong-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := env.svc.Login(ctx, domain.LoginRequest{Email: " RAVI@example.com ", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, domain.ViewInvestorDashboard, session.View)
	require.NotNil(t, session.User.LastActiveAt)

	user, claims, err := env.svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, user.ID)
	assert.Equal(t, string(domain.RoleInvestor), claims.Role)

	require.NoError(t, env.svc.Logout(ctx, claims))
	_, _, err = env.svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Contains(t, env.publisher.published(), domain.EventSessionEnded)
}

func TestParseTokenRejectsBadTokens(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.repo.addUser("Asha", domain.RoleVendor)

	token, _, err := env.svc.issueToken(user)
	require.NoError(t, err)

	_, err = env.svc.ParseToken(ctx, token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Signed with another secret.
	other := newTestEnv(func(d *Dependencies) { d.Config.JWTSecret = "another-secret" })
	_, err = other.svc.ParseToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	env.svc.now = func() time.Time { return env.repo.now().Add(2 * time.Hour) }
	_, err = env.svc.ParseToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Unsigned.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": user.ID.String()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = env.svc.ParseToken(ctx, unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateUsesStoredRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	legacy := env.repo.addUser("Legacy", "")

	token, _, err := env.svc.issueToken(legacy)
	require.NoError(t, err)

	user, _, err := env.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewInvalidRole, domain.RouteForRole(user.Role))
	assert.ErrorIs(t, RequireRole(user, domain.RoleInvestor), ErrRoleRequired)

	_, err = env.svc.AssignOwnRole(ctx, legacy.ID, domain.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidRole)

	session, err := env.svc.AssignOwnRole(ctx, legacy.ID, domain.RoleInvestor)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewInvestorDashboard, session.View)

	_, err = env.svc.AssignOwnRole(ctx, legacy.ID, domain.RoleVendor)
	assert.ErrorIs(t, err, store.ErrRoleAlreadyAssigned)

	// The same token now resolves to the new role.
	user, _, err = env.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInvestor, user.Role)
}

func TestGrantRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.repo.addUser("Meera", domain.RoleInvestor)

	user, err := env.svc.GrantRole(ctx, "meera@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)

	_, err = env.svc.GrantRole(ctx, "meera@example.com", "superuser")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.GrantRole(ctx, "ghost@example.com", domain.RoleAdmin)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestUpdateProfileValidatesInvestmentRange(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)

	bad := "lots"
	_, err := env.svc.UpdateProfile(ctx, investor.ID, domain.UpdateProfileRequest{InvestmentRange: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	empty := "  "
	_, err = env.svc.UpdateProfile(ctx, investor.ID, domain.UpdateProfileRequest{Name: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
