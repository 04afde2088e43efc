package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered identity in the directory.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Role            Role       `json:"role"`
	Industry        string     `json:"industry,omitempty"`
	InvestmentRange string     `json:"investment_range,omitempty"`
	Bio             string     `json:"bio,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastActiveAt    *time.Time `json:"last_active_at,omitempty"`
}

// RegisterRequest is the payload accepted by the registration endpoint.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest is the payload accepted by the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	Name            *string `json:"name,omitempty"`
	Industry        *string `json:"industry,omitempty"`
	InvestmentRange *string `json:"investment_range,omitempty"`
	Bio             *string `json:"bio,omitempty"`
}

// Session is returned after a successful register or login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
	View      View      `json:"view"`
}
