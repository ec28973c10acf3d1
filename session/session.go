// Package session owns the authentication lifecycle: login, registration,
// restore from a persisted token and logout. A live session is a bound store
// set plus a realtime feed; logout tears both down and clears every snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/models"
	"github.com/Frodemaneskold/greenup/stores"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a live session.
	ErrNotAuthenticated = errors.New("session: not signed in")
	// ErrAlreadyAuthenticated is returned by Login and Register during a live
	// session; log out first.
	ErrAlreadyAuthenticated = errors.New("session: already signed in")
	// ErrInvalidCredentials is returned when the backend rejects the email
	// and password pair.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
)

// Feed is the realtime side of a session. One feed is created per login and
// closed on logout, so subscriptions never outlive the session they belong
// to.
type Feed interface {
	gateway.ChangeFeed
	Close() error
}

// Config wires a Manager. Gateway, Tokens and NewFeed are required.
type Config struct {
	// Gateway is the unauthenticated client; per-session clients derive from
	// it via WithToken.
	Gateway *gateway.Client
	// Tokens persists the access token between launches.
	Tokens TokenStore
	// NewFeed creates the realtime feed for a session's access token.
	NewFeed func(accessToken string) Feed
	// Logger receives lifecycle logging.
	Logger *logrus.Logger
}

// Manager drives the session lifecycle and owns the active store set.
type Manager struct {
	gw      *gateway.Client
	tokens  TokenStore
	newFeed func(string) Feed
	log     *logrus.Logger

	mu    sync.Mutex
	set   *stores.Set
	feed  Feed
	user  *gateway.User
	token string
}

// NewManager creates a session manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("session: Gateway is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("session: Tokens is required")
	}
	if cfg.NewFeed == nil {
		return nil, fmt.Errorf("session: NewFeed is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		gw:      cfg.Gateway,
		tokens:  cfg.Tokens,
		newFeed: cfg.NewFeed,
		log:     log,
	}, nil
}

// Login exchanges credentials for a session and binds the store set.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if m.Authenticated() {
		return ErrAlreadyAuthenticated
	}
	if !models.ValidEmail(email) {
		return fmt.Errorf("session: invalid email %q", email)
	}

	sess, err := m.gw.Auth().SignIn(ctx, email, password)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && (apiErr.IsUnauthorized() || apiErr.StatusCode == 400) {
			return ErrInvalidCredentials
		}
		return err
	}
	return m.start(ctx, sess.AccessToken, sess.User)
}

// Register creates an account, forwarding the chosen username so the backend
// seeds the profile row, then signs in.
func (m *Manager) Register(ctx context.Context, email, password, username string) error {
	if m.Authenticated() {
		return ErrAlreadyAuthenticated
	}
	if !models.ValidEmail(email) {
		return fmt.Errorf("session: invalid email %q", email)
	}
	if !models.ValidUsername(username) {
		return fmt.Errorf("session: invalid username %q", username)
	}

	_, err := m.gw.Auth().SignUp(ctx, email, password, map[string]any{
		"username": username,
	})
	if err != nil {
		return err
	}
	return m.Login(ctx, email, password)
}

// Restore resumes a session from the persisted token. It returns false with
// no error when no token is stored or the token is rejected; either way the
// caller ends up unauthenticated, not failed.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	if m.Authenticated() {
		return true, nil
	}

	token, err := m.tokens.Load()
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}

	user, err := m.gw.Auth().GetUser(ctx, token)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			if clearErr := m.tokens.Clear(); clearErr != nil {
				m.log.WithError(clearErr).Warn("clear rejected token failed")
			}
			return false, nil
		}
		return false, err
	}
	if err := m.start(ctx, token, user); err != nil {
		return false, err
	}
	return true, nil
}

// Logout revokes the session, clears the persisted token and resets every
// store. After Logout no store retains data and no realtime handler fires.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	set, feed, token := m.set, m.feed, m.token
	m.set, m.feed, m.user, m.token = nil, nil, nil, ""
	m.mu.Unlock()

	if set == nil {
		return ErrNotAuthenticated
	}

	if err := m.gw.Auth().SignOut(ctx, token); err != nil {
		m.log.WithError(err).Warn("remote sign-out failed")
	}
	if err := m.tokens.Clear(); err != nil {
		m.log.WithError(err).Warn("clear token failed")
	}
	set.Reset()
	if err := feed.Close(); err != nil {
		m.log.WithError(err).Warn("close realtime feed failed")
	}
	return nil
}

// Stores returns the bound store set, or nil when not signed in.
func (m *Manager) Stores() *stores.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

// User returns the authenticated identity, or nil when not signed in.
func (m *Manager) User() *gateway.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Authenticated reports whether a session is live.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set != nil
}

func (m *Manager) start(ctx context.Context, token string, user *gateway.User) error {
	if user == nil {
		return fmt.Errorf("session: auth response carried no user")
	}
	if err := m.tokens.Save(token); err != nil {
		return err
	}

	authed := m.gw.WithToken(token)
	feed := m.newFeed(token)
	set := stores.NewSet(authed, user.ID, m.log)
	if err := set.Bind(ctx, feed); err != nil {
		if closeErr := feed.Close(); closeErr != nil {
			m.log.WithError(closeErr).Warn("close realtime feed failed")
		}
		return err
	}

	m.mu.Lock()
	m.set, m.feed, m.user, m.token = set, feed, user, token
	m.mu.Unlock()

	m.log.WithField("user", user.ID).Info("session started")
	return nil
}
