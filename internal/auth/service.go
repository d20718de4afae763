package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/campusmarket/campusmarket/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps registration and authentication rules.
type Service struct {
	repo     Repository
	verifier CredentialVerifier
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a new Service. audit and logger may be nil.
func NewService(repo Repository, verifier CredentialVerifier, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, verifier: verifier, audit: audit, logger: logger, now: time.Now}
}

// Register creates an account for an unused email.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	existing, err := s.repo.FindByEmail(ctx, input.Email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrDuplicateEmail
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("auth: lookup email: %w", err)
	}

	hash, err := s.verifier.Derive(input.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.Create(ctx, NewUser{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  user.ID,
			Action:   shared.AuditUserRegistered,
			Entity:   "user",
			EntityID: strconv.FormatInt(user.ID, 10),
		})
		if err != nil {
			s.logger.Warn("audit record", slog.String("action", shared.AuditUserRegistered), slog.Int64("user_id", user.ID), slog.Any("error", err))
		}
	}
	return user, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("auth: lookup email: %w", err)
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !s.verifier.Verify(password, user.PasswordHash) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Lookup returns the user with the given id.
func (s *Service) Lookup(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}
