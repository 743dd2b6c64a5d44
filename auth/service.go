package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be between 8 and 72 bytes")
	// ErrInvalidInput signals missing registration fields.
	ErrInvalidInput = errors.New("auth: name, email and password are required")
)

// Service handles authentication business logic.
type Service struct {
	repo   Repository
	hasher *Hasher
	tokens *TokenService
}

// LoginResult bundles the token and domain user returned after a successful
// registration or login. User.PasswordHash is always empty.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new authentication service.
func NewService(repo Repository, hasher *Hasher, tokens *TokenService) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register creates a new user account and signs the caller in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (LoginResult, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return LoginResult{}, ErrInvalidInput
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		return LoginResult{}, ErrWeakPassword
	}

	passwordHash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return LoginResult{}, err
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	})
	if err != nil {
		return LoginResult{}, err
	}

	return s.session(user)
}

// Login authenticates a user and returns a session token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.Verify(ctx, req.Email, req.Password)
	if err != nil {
		return LoginResult{}, err
	}
	return s.session(user)
}

// Verify checks a credential pair and returns the matching user.
func (s *Service) Verify(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.CompareDummy(ctx, password)
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := s.hasher.Compare(ctx, user.PasswordHash, password); err != nil {
		return User{}, err
	}

	return sanitize(user), nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user = sanitize(user)
	return &user, nil
}

// VerifyToken validates a session token and returns its claims.
func (s *Service) VerifyToken(token string) (Claims, error) {
	return s.tokens.Verify(token)
}

func (s *Service) session(user User) (LoginResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email, user.Name)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token: token,
		User:  sanitize(user),
	}, nil
}

func sanitize(user User) User {
	user.PasswordHash = ""
	return user
}
