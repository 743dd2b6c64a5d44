package auth

import "time"

// User is the domain representation of a registered user.
// It mirrors the users table and carries no JSON annotations: PasswordHash must
// never reach a presentation layer, so callers map to their own response types.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string
	Password string
}
