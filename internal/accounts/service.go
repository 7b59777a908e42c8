package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Validation failures surfaced by Register and ResetPassword.
var (
	ErrInvalidEmail  = errors.New("accounts: invalid email address")
	ErrWeakPassword  = errors.New("accounts: password must be at least 8 characters")
	ErrBadToken      = errors.New("accounts: invalid or expired token")
	ErrNotVerified   = errors.New("accounts: email address not verified")
	ErrBadCredential = errors.New("accounts: invalid email or password")
)

// Service encapsulates account business logic: registration, credential
// checks, and the email verification / password reset token flows.
type Service struct {
	repo Repository

	mu          sync.Mutex
	verifyToks  map[string]string // token -> account ID
	resetToks   map[string]string
	requireMail bool
}

// NewService builds a Service. When requireVerified is true, Authenticate
// rejects accounts that have not confirmed their email.
func NewService(r Repository, requireVerified bool) *Service {
	return &Service{
		repo:        r,
		verifyToks:  map[string]string{},
		resetToks:   map[string]string{},
		requireMail: requireVerified,
	}
}

// Register validates the input and creates the account. The returned
// verification token would be emailed in a real deployment; the stub hands
// it back so tests and local flows can complete verification.
func (s *Service) Register(ctx context.Context, email, password, name string) (*Account, string, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") || len(email) < 3 {
		return nil, "", ErrInvalidEmail
	}
	if len(password) < 8 {
		return nil, "", ErrWeakPassword
	}
	a := &Account{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hashPassword(password),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, "", err
	}
	tok, err := s.issueVerification(a.ID)
	if err != nil {
		return nil, "", err
	}
	return a, tok, nil
}

// Authenticate checks the credentials and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil || subtle.ConstantTimeCompare([]byte(a.PasswordHash), []byte(hashPassword(password))) != 1 {
		return nil, ErrBadCredential
	}
	if s.requireMail && !a.EmailVerified {
		return nil, ErrNotVerified
	}
	return a, nil
}

// GetByID looks up an account by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	s.mu.Lock()
	id, ok := s.verifyToks[token]
	if ok {
		delete(s.verifyToks, token)
	}
	s.mu.Unlock()
	if !ok {
		return ErrBadToken
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil || a == nil {
		return ErrBadToken
	}
	a.EmailVerified = true
	return s.repo.Update(ctx, a)
}

// ResendVerification issues a fresh verification token for an unverified
// account. Unknown or already-verified emails return an empty token with no
// error so callers cannot probe which addresses exist.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if a == nil || a.EmailVerified {
		return "", nil
	}
	return s.issueVerification(a.ID)
}

// StartPasswordReset issues a reset token. Unknown emails return an empty
// token with no error.
func (s *Service) StartPasswordReset(ctx context.Context, email string) (string, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", nil
	}
	tok, err := randomToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.resetToks[tok] = a.ID
	s.mu.Unlock()
	return tok, nil
}

// CompletePasswordReset consumes a reset token and sets the new password.
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	s.mu.Lock()
	id, ok := s.resetToks[token]
	if ok {
		delete(s.resetToks, token)
	}
	s.mu.Unlock()
	if !ok {
		return ErrBadToken
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil || a == nil {
		return ErrBadToken
	}
	a.PasswordHash = hashPassword(newPassword)
	return s.repo.Update(ctx, a)
}

func (s *Service) issueVerification(id string) (string, error) {
	tok, err := randomToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.verifyToks[tok] = id
	s.mu.Unlock()
	return tok, nil
}

func hashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func newID(seq int) string {
	return fmt.Sprintf("acct-%06d", seq)
}
