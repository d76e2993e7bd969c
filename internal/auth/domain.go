package auth

import "time"

// User represents an authenticated backend user.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	CompanyID    int64     `json:"company_id"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResponse returns the bearer token and resolved tenant.
type LoginResponse struct {
	Token     string `json:"token"`
	UserID    int64  `json:"userId"`
	CompanyID int64  `json:"companyId"`
}
