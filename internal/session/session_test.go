package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/session"
	"github.com/starford/monteerly/internal/testutil"
)

func authReason(t *testing.T, err error) string {
	t.Helper()
	var ae *apperr.AuthError
	require.True(t, errors.As(err, &ae), "want AuthError, got %v", err)
	return ae.Reason
}

func TestSignUpWritesProfileAndResolves(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	svc := testutil.TestSessions(t, store)

	sess, err := svc.SignUp(ctx, " Ada@Example.com ", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.Equal(t, "ada@example.com", sess.Identity.Email)

	identity, err := svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.Identity, identity)

	profile, err := store.Get(ctx, models.CollectionUsers, identity.UserID)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", profile.Fields[models.FieldEmail])
	require.NotEmpty(t, profile.Fields[models.FieldCreatedAt])
}

func TestSignUpRejections(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	svc := testutil.TestSessions(t, store)

	_, err := svc.SignUp(ctx, "not-an-email", "s3cret-pass")
	require.Equal(t, session.ReasonInvalidEmail, authReason(t, err))

	_, err = svc.SignUp(ctx, "ada@example.com", "123")
	require.Equal(t, session.ReasonWeakPassword, authReason(t, err))

	_, err = svc.SignUp(ctx, "ada@example.com", strings.Repeat("x", session.MaxPasswordBytes+8))
	require.Equal(t, session.ReasonWeakPassword, authReason(t, err))

	// Multi-byte runes count by byte against bcrypt's limit.
	_, err = svc.SignUp(ctx, "ada@example.com", strings.Repeat("é", 40))
	require.Equal(t, session.ReasonWeakPassword, authReason(t, err))

	_, err = svc.SignUp(ctx, "ada@example.com", "s3cret-pass")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "ADA@example.com", "other-pass")
	require.Equal(t, session.ReasonEmailInUse, authReason(t, err))
}

func TestSignInAndSignOut(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	svc := testutil.TestSessions(t, store)
	created := testutil.SignedUp(t, svc, "ada@example.com")

	_, err := svc.SignIn(ctx, "ada@example.com", "wrong-pass")
	require.Equal(t, session.ReasonInvalidCredential, authReason(t, err))
	_, err = svc.SignIn(ctx, "nobody@example.com", "correct-horse")
	require.Equal(t, session.ReasonInvalidCredential, authReason(t, err))

	sess, err := svc.SignIn(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, created.Identity.UserID, sess.Identity.UserID)
	require.NotEqual(t, created.Token, sess.Token)

	require.NoError(t, svc.SignOut(ctx, sess.Token))
	_, err = svc.Resolve(ctx, sess.Token)
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	// The other session is untouched.
	_, err = svc.Resolve(ctx, created.Token)
	require.NoError(t, err)
}

func TestResolveExpiredToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := testutil.TestStore(t)
	svc := testutil.TestSessions(t, store, session.WithClock(clock), session.WithTTL(time.Hour))
	sess := testutil.SignedUp(t, svc, "ada@example.com")

	_, err := svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = svc.Resolve(ctx, sess.Token)
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	_, err = svc.Resolve(ctx, "")
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

// fakeProvider is a minimal OAuth2 authorization server with a userinfo endpoint.
func fakeProvider(t *testing.T, sub, email string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"sub": sub, "email": email})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func federatedFor(srv *httptest.Server) *session.Federated {
	return &session.Federated{
		Provider: "google",
		OAuth: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/api/auth/federated/callback",
			Scopes:       []string{"openid", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  srv.URL + "/auth",
				TokenURL: srv.URL + "/token",
			},
		},
		UserInfoURL: srv.URL + "/userinfo",
	}
}

func TestFederatedSignIn(t *testing.T) {
	ctx := context.Background()
	srv := fakeProvider(t, "google-42", "Grace@Example.com")
	store := testutil.TestStore(t)
	svc := testutil.TestSessions(t, store, session.WithFederated(federatedFor(srv)))

	consent, err := svc.FederatedURL("state-xyz")
	require.NoError(t, err)
	u, err := url.Parse(consent)
	require.NoError(t, err)
	require.Equal(t, "state-xyz", u.Query().Get("state"))

	first, err := svc.SignInFederated(ctx, "good-code")
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", first.Identity.Email)
	require.Equal(t, "google", first.Identity.Provider)

	second, err := svc.SignInFederated(ctx, "good-code")
	require.NoError(t, err)
	require.Equal(t, first.Identity.UserID, second.Identity.UserID)

	profile, err := store.Get(ctx, models.CollectionUsers, first.Identity.UserID)
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", profile.Fields[models.FieldEmail])

	_, err = svc.SignInFederated(ctx, "bad-code")
	require.Equal(t, session.ReasonFederatedFailed, authReason(t, err))
}

func TestFederatedLinksExistingPasswordAccount(t *testing.T) {
	ctx := context.Background()
	srv := fakeProvider(t, "google-7", "ada@example.com")
	store := testutil.TestStore(t)
	svc := testutil.TestSessions(t, store, session.WithFederated(federatedFor(srv)))
	created := testutil.SignedUp(t, svc, "ada@example.com")

	sess, err := svc.SignInFederated(ctx, "good-code")
	require.NoError(t, err)
	require.Equal(t, created.Identity.UserID, sess.Identity.UserID)
}

func TestFederatedDisabled(t *testing.T) {
	store := testutil.TestStore(t)
	svc := testutil.TestSessions(t, store)

	_, err := svc.FederatedURL("s")
	require.Equal(t, session.ReasonFederatedDisabled, authReason(t, err))
	_, err = svc.SignInFederated(context.Background(), "code")
	require.Equal(t, session.ReasonFederatedDisabled, authReason(t, err))
}

type recorder struct {
	mu     sync.Mutex
	events []*session.Identity
}

func (r *recorder) observe(id *session.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, id)
}

func (r *recorder) snapshot() []*session.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*session.Identity(nil), r.events...)
}

func TestClientSignUpThenObserveYieldsOneIdentity(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	client := session.NewClient(testutil.TestSessions(t, store))

	require.NoError(t, client.SignUp(ctx, "ada@example.com", "s3cret-pass"))

	var rec recorder
	unsubscribe := client.Observe(rec.observe)
	defer unsubscribe()

	events := rec.snapshot()
	require.Len(t, events, 1)
	require.NotNil(t, events[0])
	require.Equal(t, "ada@example.com", events[0].Email)
}

func TestClientNotifiesOnChange(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	client := session.NewClient(testutil.TestSessions(t, store))

	var rec recorder
	unsubscribe := client.Observe(rec.observe)

	require.NoError(t, client.SignUp(ctx, "ada@example.com", "s3cret-pass"))
	require.NotEmpty(t, client.Token())
	require.NoError(t, client.SignOut(ctx))
	require.Nil(t, client.Current())

	err := client.SignIn(ctx, "ada@example.com", "wrong")
	require.Error(t, err)

	unsubscribe()
	require.NoError(t, client.SignIn(ctx, "ada@example.com", "s3cret-pass"))

	events := rec.snapshot()
	require.Len(t, events, 3)
	require.Nil(t, events[0])
	require.Equal(t, "ada@example.com", events[1].Email)
	require.Nil(t, events[2])
}
