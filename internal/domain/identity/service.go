package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medcenter/medcenter/internal/platform/auth"
)

var (
	ErrInvalid            = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNoToken            = errors.New("request carries no revocable token")
)

const minPasswordLength = 8

type Service struct {
	users       UserRepository
	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
	logger      zerolog.Logger
	bcryptCost  int
	now         func() time.Time
}

// NewService wires the user store with token issuing. revocations may be nil,
// in which case logout only discards the token client-side.
func NewService(users UserRepository, tokens *auth.TokenIssuer, revocations auth.RevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		logger:      logger.With().Str("component", "identity").Logger(),
		bcryptCost:  bcrypt.DefaultCost,
		now:         time.Now,
	}
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	*auth.IssuedToken
	User *User `json:"user"`
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.Active || !u.CheckPassword(password) {
		s.logger.Warn().Str("username", username).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	tok, err := s.tokens.Issue(u.ID.String(), u.Username, []string{u.Role})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("failed to record login time")
	} else {
		u.LastLoginAt = &now
	}
	return &LoginResult{IssuedToken: tok, User: u}, nil
}

// Logout revokes the token identified by jti until it would have expired.
func (s *Service) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return ErrNoToken
	}
	if s.revocations == nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, jti, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.users.GetByID(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalid)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}
	if !auth.ValidRole(in.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, in.Role)
	}

	u := &User{
		Username:    in.Username,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Role:        in.Role,
		HospitalID:  in.HospitalID,
		Active:      true,
	}
	if err := u.SetPassword(in.Password, s.bcryptCost); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}
