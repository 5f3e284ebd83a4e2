package session

import (
	"context"
	"sync"
)

// Authenticator is the subset of Service a Client drives.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignInFederated(ctx context.Context, code string) (Session, error)
	SignOut(ctx context.Context, token string) error
}

var _ Authenticator = (*Service)(nil)

// Client holds one caller's session and notifies observers when it changes.
// Each mount (an MCP process, a test) creates its own Client.
type Client struct {
	auth Authenticator

	// notifyMu orders identity changes with their notifications, so every
	// observer sees changes in the order they happened.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   *Session
	observers map[uint64]func(*Identity)
	seq       uint64
}

// NewClient returns a signed-out Client.
func NewClient(auth Authenticator) *Client {
	return &Client{
		auth:      auth,
		observers: make(map[uint64]func(*Identity)),
	}
}

// Observe calls fn with the current identity (nil when signed out) right
// away and again on every change. fn must not call the Client's sign-in or
// sign-out methods.
func (c *Client) Observe(fn func(*Identity)) (unsubscribe func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.seq++
	id := c.seq
	c.observers[id] = fn
	current := c.identityLocked()
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Current returns the signed-in identity, or nil.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identityLocked()
}

// Token returns the bearer token of the current session, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.Token
}

// SignUp creates a password account and makes its session current.
// Observers are notified on success only.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	sess, err := c.auth.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	c.set(&sess)
	return nil
}

// SignIn checks the password and makes the new session current.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	sess, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	c.set(&sess)
	return nil
}

// SignInFederated completes an OAuth2 sign-in with the provider's
// authorization code and makes the new session current.
func (c *Client) SignInFederated(ctx context.Context, code string) error {
	sess, err := c.auth.SignInFederated(ctx, code)
	if err != nil {
		return err
	}
	c.set(&sess)
	return nil
}

// SignOut revokes the current session. Signing out while signed out is a no-op.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return nil
	}
	if err := c.auth.SignOut(ctx, token); err != nil {
		return err
	}
	c.set(nil)
	return nil
}

func (c *Client) identityLocked() *Identity {
	if c.current == nil {
		return nil
	}
	identity := c.current.Identity
	return &identity
}

func (c *Client) set(sess *Session) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.current = sess
	current := c.identityLocked()
	fns := make([]func(*Identity), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(current)
	}
}
