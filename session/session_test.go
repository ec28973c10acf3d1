package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/stores"
)

// fakeAuthBackend serves the auth endpoints plus empty read-model tables.
type fakeAuthBackend struct {
	mu       sync.Mutex
	token    string
	signouts int
}

func (b *fakeAuthBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/auth/v1/token"):
			w.Write([]byte(`{"access_token":"` + b.token + `","token_type":"bearer","user":{"id":"me","email":"me@example.com"}}`))
		case r.URL.Path == "/auth/v1/signup":
			w.Write([]byte(`{"user":{"id":"me","email":"me@example.com"}}`))
		case r.URL.Path == "/auth/v1/user":
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+b.token {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"invalid token"}`))
				return
			}
			w.Write([]byte(`{"id":"me","email":"me@example.com"}`))
		case r.URL.Path == "/auth/v1/logout":
			b.mu.Lock()
			b.signouts++
			b.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
			if strings.Contains(r.Header.Get("Accept"), "pgrst.object") {
				w.Write([]byte(`{"id":"me","username":"me_user"}`))
				return
			}
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type recordingFeed struct {
	mu     sync.Mutex
	subs   int
	closed bool
}

func (f *recordingFeed) Subscribe(ctx context.Context, cfg gateway.ChangeConfig, fn gateway.ChangeHandler) (func(), error) {
	f.mu.Lock()
	f.subs++
	f.mu.Unlock()
	return func() {}, nil
}

func (f *recordingFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeAuthBackend, *recordingFeed, TokenStore) {
	t.Helper()
	backend := &fakeAuthBackend{token: "tok-123"}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	gw, err := gateway.New(gateway.Config{URL: srv.URL, APIKey: "anon", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("gateway.New() error: %v", err)
	}

	feed := &recordingFeed{}
	tokens := NewFileTokenStore(filepath.Join(t.TempDir(), "token"))
	mgr, err := NewManager(Config{
		Gateway: gw,
		Tokens:  tokens,
		NewFeed: func(accessToken string) Feed { return feed },
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return mgr, backend, feed, tokens
}

func TestLoginBindsStores(t *testing.T) {
	mgr, _, feed, tokens := newTestManager(t)

	if err := mgr.Login(context.Background(), "me@example.com", "pw"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if !mgr.Authenticated() {
		t.Fatal("Authenticated() = false after login")
	}
	if mgr.Stores() == nil {
		t.Fatal("Stores() = nil after login")
	}
	if mgr.Stores().Users.State() != stores.StateReady {
		t.Errorf("users state = %v, want ready", mgr.Stores().Users.State())
	}
	if feed.subs == 0 {
		t.Error("no realtime subscriptions after login")
	}

	saved, err := tokens.Load()
	if err != nil || saved != "tok-123" {
		t.Errorf("persisted token = %q, %v", saved, err)
	}
}

func TestLoginRejectsInvalidEmail(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	if err := mgr.Login(context.Background(), "not-an-email", "pw"); err == nil {
		t.Fatal("invalid email accepted")
	}
}

func TestDoubleLoginRejected(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	if err := mgr.Login(context.Background(), "me@example.com", "pw"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := mgr.Login(context.Background(), "me@example.com", "pw"); !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Fatalf("second Login() error = %v, want ErrAlreadyAuthenticated", err)
	}
}

func TestLogoutTearsEverythingDown(t *testing.T) {
	mgr, backend, feed, tokens := newTestManager(t)

	if err := mgr.Login(context.Background(), "me@example.com", "pw"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	set := mgr.Stores()

	if err := mgr.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if mgr.Authenticated() {
		t.Error("Authenticated() = true after logout")
	}
	if mgr.Stores() != nil {
		t.Error("Stores() != nil after logout")
	}
	if set.Users.State() != stores.StateIdle {
		t.Errorf("users state = %v, want idle after logout", set.Users.State())
	}
	if !feed.closed {
		t.Error("feed not closed on logout")
	}
	if backend.signouts != 1 {
		t.Errorf("signouts = %d, want 1", backend.signouts)
	}
	if saved, _ := tokens.Load(); saved != "" {
		t.Errorf("token survived logout: %q", saved)
	}

	if err := mgr.Logout(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("second Logout() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestRestoreWithNoToken(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	ok, err := mgr.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if ok {
		t.Error("Restore() = true with no stored token")
	}
}

func TestRestoreWithValidToken(t *testing.T) {
	mgr, _, _, tokens := newTestManager(t)
	if err := tokens.Save("tok-123"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	ok, err := mgr.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if !ok || !mgr.Authenticated() {
		t.Error("Restore() did not resume the session")
	}
}

func TestRestoreWithRejectedTokenClearsIt(t *testing.T) {
	mgr, _, _, tokens := newTestManager(t)
	if err := tokens.Save("expired"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	ok, err := mgr.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if ok {
		t.Error("Restore() = true with rejected token")
	}
	if saved, _ := tokens.Load(); saved != "" {
		t.Errorf("rejected token not cleared: %q", saved)
	}
}
