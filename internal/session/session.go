// Package session implements sign-up, sign-in and bearer-token sessions.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/docstore"
	"github.com/starford/monteerly/internal/models"
)

// Auth failure reasons, surfaced verbatim to users.
const (
	ReasonInvalidEmail      = "invalid-email"
	ReasonWeakPassword      = "weak-password"
	ReasonEmailInUse        = "email-already-in-use"
	ReasonInvalidCredential = "invalid-credential"
	ReasonFederatedFailed   = "federated-failed"
	ReasonFederatedDisabled = "federated-disabled"
)

// Providers.
const (
	ProviderPassword = "password"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// dummyHash is compared against when an email is unknown so that sign-in
// costs the same whether or not the account exists.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("monteerly-no-such-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("session: dummy hash: %v", err))
	}
	return hash
})

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 30 * 24 * time.Hour

const schemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS account_links (
	provider   TEXT NOT NULL,
	subject    TEXT NOT NULL,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	PRIMARY KEY (provider, subject)
);

CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	provider   TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// Identity is the signed-in principal.
type Identity struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
}

// Session is an issued bearer token.
type Session struct {
	Token     string    `json:"token"`
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileWriter upserts profile documents.
type ProfileWriter interface {
	SetMissing(ctx context.Context, collection, id string, fields map[string]any) error
}

// Service issues and resolves sessions.
type Service struct {
	db        *sql.DB
	profiles  ProfileWriter
	ttl       time.Duration
	now       func() time.Time
	newToken  func() string
	federated *Federated
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFederated enables federated sign-in.
func WithFederated(f *Federated) Option {
	return func(s *Service) { s.federated = f }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService applies the account schema to db and returns a Service.
func NewService(db *sql.DB, profiles ProfileWriter, opts ...Option) (*Service, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("session: apply schema: %w", err)
	}
	s := &Service{
		db:       db,
		profiles: profiles,
		ttl:      DefaultTTL,
		now:      time.Now,
		newToken: uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return apperr.NewAuthError(ReasonInvalidEmail, nil)
	}
	if err := validation.Validate(password,
		validation.Required,
		validation.RuneLength(MinPasswordLength, 0),
		validation.By(maxPasswordBytes),
	); err != nil {
		return apperr.NewAuthError(ReasonWeakPassword, nil)
	}
	return nil
}

func maxPasswordBytes(value any) error {
	if password, _ := value.(string); len(password) > MaxPasswordBytes {
		return fmt.Errorf("password longer than %d bytes", MaxPasswordBytes)
	}
	return nil
}

// SignUp creates a password account, writes its profile and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return Session{}, apperr.NewAuthError(ReasonWeakPassword, err)
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, provider, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, string(hash), ProviderPassword, s.now().UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, apperr.NewAuthError(ReasonEmailInUse, nil)
		}
		return Session{}, fmt.Errorf("session: insert account: %w", err)
	}

	identity := Identity{UserID: id, Email: email, Provider: ProviderPassword}
	if err := s.upsertProfile(ctx, identity); err != nil {
		return Session{}, err
	}

	s.logger.Info("account created", slog.String("user_id", id))
	return s.issue(ctx, identity)
}

// SignIn checks a password and issues a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return Session{}, apperr.NewAuthError(ReasonInvalidEmail, nil)
	}

	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM accounts WHERE email = ?`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return Session{}, apperr.NewAuthError(ReasonInvalidCredential, nil)
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: lookup account: %w", err)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, apperr.NewAuthError(ReasonInvalidCredential, nil)
	}

	return s.issue(ctx, Identity{UserID: id, Email: email, Provider: ProviderPassword})
}

// SignOut revokes token. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// Resolve maps a bearer token to its identity. Unknown and expired tokens
// yield ErrNotAuthenticated.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.ErrNotAuthenticated
	}

	var (
		identity  Identity
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email, s.provider, s.expires_at
		FROM sessions s JOIN accounts a ON a.id = s.account_id
		WHERE s.token = ?`, token).Scan(&identity.UserID, &identity.Email, &identity.Provider, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, apperr.ErrNotAuthenticated
	}
	if err != nil {
		return Identity{}, fmt.Errorf("session: resolve: %w", err)
	}

	if s.now().UnixMilli() >= expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
			s.logger.Warn("failed to drop expired session", slog.String("error", err.Error()))
		}
		return Identity{}, apperr.ErrNotAuthenticated
	}
	return identity, nil
}

func (s *Service) issue(ctx context.Context, identity Identity) (Session, error) {
	sess := Session{
		Token:     s.newToken(),
		Identity:  identity,
		ExpiresAt: s.now().Add(s.ttl),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, account_id, provider, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, identity.UserID, identity.Provider, sess.ExpiresAt.UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("session: insert session: %w", err)
	}
	return sess, nil
}

func (s *Service) upsertProfile(ctx context.Context, identity Identity) error {
	err := s.profiles.SetMissing(ctx, models.CollectionUsers, identity.UserID, map[string]any{
		models.FieldEmail:     identity.Email,
		models.FieldCreatedAt: docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("session: upsert profile: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
