package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/starford/monteerly/internal/apperr"
)

// Federated is an OAuth2 identity provider.
type Federated struct {
	// Provider names the identity provider, e.g. "google".
	Provider    string
	OAuth       *oauth2.Config
	UserInfoURL string
}

// UserInfo is the subset of the provider's userinfo response we use.
type UserInfo struct {
	Subject string `json:"sub"`
	ID      string `json:"id"`
	Email   string `json:"email"`
}

func (u UserInfo) subject() string {
	if u.Subject != "" {
		return u.Subject
	}
	return u.ID
}

// FederatedURL returns the provider consent URL carrying state.
func (s *Service) FederatedURL(state string) (string, error) {
	if s.federated == nil {
		return "", apperr.NewAuthError(ReasonFederatedDisabled, nil)
	}
	return s.federated.OAuth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// SignInFederated exchanges an authorization code, fetches the provider
// identity and signs it in. The first sign-in creates the account, or links
// the provider to an existing account with the same email.
func (s *Service) SignInFederated(ctx context.Context, code string) (Session, error) {
	f := s.federated
	if f == nil {
		return Session{}, apperr.NewAuthError(ReasonFederatedDisabled, nil)
	}

	token, err := f.OAuth.Exchange(ctx, code)
	if err != nil {
		return Session{}, apperr.NewAuthError(ReasonFederatedFailed, err)
	}

	info, err := fetchUserInfo(ctx, f.OAuth.Client(ctx, token), f.UserInfoURL)
	if err != nil {
		return Session{}, apperr.NewAuthError(ReasonFederatedFailed, err)
	}
	email := normalizeEmail(info.Email)
	if info.subject() == "" || email == "" {
		return Session{}, apperr.NewAuthError(ReasonFederatedFailed, errors.New("userinfo missing subject or email"))
	}

	id, err := s.linkAccount(ctx, f.Provider, info.subject(), email)
	if err != nil {
		return Session{}, err
	}

	identity := Identity{UserID: id, Email: email, Provider: f.Provider}
	if err := s.upsertProfile(ctx, identity); err != nil {
		return Session{}, err
	}
	return s.issue(ctx, identity)
}

func (s *Service) linkAccount(ctx context.Context, provider, subject, email string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id FROM account_links WHERE provider = ? AND subject = ?`,
		provider, subject).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("session: lookup link: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE email = ?`, email).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, email, provider, created_at) VALUES (?, ?, ?, ?)`,
			id, email, provider, s.now().UnixMilli()); err != nil {
			return "", fmt.Errorf("session: insert account: %w", err)
		}
		s.logger.Info("account created", slog.String("user_id", id), slog.String("provider", provider))
	case err != nil:
		return "", fmt.Errorf("session: lookup account: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account_links (provider, subject, account_id) VALUES (?, ?, ?)`,
		provider, subject, id); err != nil {
		return "", fmt.Errorf("session: link account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("session: commit: %w", err)
	}
	return id, nil
}

func fetchUserInfo(ctx context.Context, client *http.Client, url string) (UserInfo, error) {
	var info UserInfo
	resp, err := resty.NewWithClient(client).R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&info).
		Get(url)
	if err != nil {
		return UserInfo{}, fmt.Errorf("userinfo: %w", err)
	}
	if resp.IsError() {
		return UserInfo{}, fmt.Errorf("userinfo: %s", resp.Status())
	}
	return info, nil
}
