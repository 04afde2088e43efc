package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Claims are the session token claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type revokedToken struct {
	UserID    uuid.UUID `json:"user_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Register creates an account. The role is required and must be vendor or
// investor; admins are granted by operators.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Session, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, invalidInput("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalidInput("a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalidInput("password must be at least %d characters", minPasswordLength)
	}
	if req.Role == "" {
		return nil, ErrRoleRequired
	}
	if !req.Role.SelfAssignable() {
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         req.Role,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)

	return s.startSession(ctx, user)
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.consumeRateLimit(ctx, "login", email, s.config.LoginRateLimitPerMinute); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.TouchLastActive(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record last activity", "user_id", user.ID, "error", err)
	} else {
		user.LastActiveAt = &now
	}
	return s.startSession(ctx, user)
}

func (s *Service) startSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	token, claims, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventSessionStarted, domain.SessionEvent{
		UserID:     user.ID,
		TokenID:    claims.ID,
		OccurredAt: claims.IssuedAt.Time,
	})
	return &domain.Session{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
		View:      domain.RouteForRole(user.Role),
	}, nil
}

func (s *Service) issueToken(user *domain.User) (string, *Claims, error) {
	now := s.now()
	ttl := time.Duration(s.config.JWTTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := &Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims, nil
}

// ParseToken validates a session token and rejects revoked ones.
func (s *Service) ParseToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken
	}

	_, err = s.revoked.Get(ctx, claims.ID)
	switch {
	case err == nil:
		return nil, ErrInvalidToken
	case !errors.Is(err, kvstore.ErrNotFound):
		s.logger.Warn("failed to check token revocation", "token_id", claims.ID, "error", err)
	}
	return claims, nil
}

// Authenticate resolves a token to its user. The role comes from the
// directory, not the token, so role changes apply without a new login.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*domain.User, *Claims, error) {
	claims, err := s.ParseToken(ctx, tokenString)
	if err != nil {
		return nil, nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	return user, claims, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	now := s.now()
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Time.Sub(now); remaining > 0 {
			ttl = remaining
		}
	}
	userID, _ := uuid.Parse(claims.Subject)
	if err := s.revoked.Put(ctx, revokedToken{UserID: userID, RevokedAt: now}, ttl, claims.ID); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.publish(ctx, domain.EventSessionEnded, domain.SessionEvent{UserID: userID, TokenID: claims.ID, OccurredAt: now})
	return nil
}

// GetUser returns the directory entry for userID.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// UpdateProfile edits the caller's profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest) (*domain.User, error) {
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, invalidInput("name cannot be empty")
		}
		req.Name = &trimmed
	}
	if req.InvestmentRange != nil && strings.TrimSpace(*req.InvestmentRange) != "" {
		if _, _, ok := parseInvestmentRange(*req.InvestmentRange); !ok {
			return nil, invalidInput("investment_range must look like 10000-50000")
		}
	}
	return s.repo.UpdateUserProfile(ctx, userID, req)
}

// AssignOwnRole lets a user without a role pick vendor or investor once.
func (s *Service) AssignOwnRole(ctx context.Context, userID uuid.UUID, role domain.Role) (*domain.Session, error) {
	if !role.SelfAssignable() {
		return nil, ErrInvalidRole
	}
	if err := s.repo.AssignRole(ctx, userID, role, true); err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("role assigned", "user_id", userID, "role", role)
	return &domain.Session{User: user, View: domain.RouteForRole(user.Role)}, nil
}

// GrantRole sets any valid role on the user with email. Operator only.
func (s *Service) GrantRole(ctx context.Context, email string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, invalidInput("unknown role %q", role)
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AssignRole(ctx, user.ID, role, false); err != nil {
		return nil, err
	}
	user.Role = role
	s.logger.Info("role granted", "user_id", user.ID, "role", role)
	return user, nil
}

// RequireRole checks that user holds one of roles. A user with no valid
// role gets ErrRoleRequired so clients can send them to role selection.
func RequireRole(user *domain.User, roles ...domain.Role) error {
	if user == nil || !user.Role.Valid() {
		return ErrRoleRequired
	}
	for _, role := range roles {
		if user.Role == role {
			return nil
		}
	}
	return ErrForbidden
}
