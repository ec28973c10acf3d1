package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Frodemaneskold/greenup/gateway"
)

// Set is the full read model for one signed-in session: every domain store,
// sharing one gateway client and one change feed.
type Set struct {
	Users         *UserStore
	Requests      *FriendRequestStore
	Competitions  *CompetitionStore
	Invites       *InviteStore
	Notifications *NotificationStore
	Actions       *ActionStore

	log *logrus.Logger

	mu      sync.Mutex
	cancels []func()
}

// NewSet builds the stores for a signed-in user. Bind must be called before
// the stores receive realtime updates.
func NewSet(gw *gateway.Client, userID string, log *logrus.Logger) *Set {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Set{
		Users:         NewUserStore(gw, userID),
		Requests:      NewFriendRequestStore(gw, userID),
		Competitions:  NewCompetitionStore(gw, userID),
		Invites:       NewInviteStore(gw, userID),
		Notifications: NewNotificationStore(gw, userID),
		Actions:       NewActionStore(gw, userID),
		log:           log,
	}
	// Accepting an invite changes competition membership, which lives in a
	// different snapshot.
	s.Invites.onAccepted = func(ctx context.Context) {
		if err := s.Competitions.Refresh(ctx); err != nil {
			log.WithError(err).Warn("competition refresh after invite accept failed")
		}
	}
	return s
}

// Bind performs the initial refresh of every store and subscribes them to the
// change feed. Change handlers trigger full refetches in the background; a
// failed refetch keeps the prior snapshot.
func (s *Set) Bind(ctx context.Context, feed gateway.ChangeFeed) error {
	type bindable interface {
		Refresh(ctx context.Context) error
	}

	refreshers := []struct {
		name    string
		store   bindable
		binder  func(context.Context, gateway.ChangeFeed, func()) ([]func(), error)
		refresh func()
	}{
		{"users", s.Users, s.Users.bind, s.refreshAsync("users", s.Users.Refresh)},
		{"requests", s.Requests, s.Requests.bind, s.refreshAsync("requests", s.Requests.Refresh)},
		{"competitions", s.Competitions, s.Competitions.bind, s.refreshAsync("competitions", s.Competitions.Refresh)},
		{"invites", s.Invites, s.Invites.bind, s.refreshAsync("invites", s.Invites.Refresh)},
		{"notifications", s.Notifications, s.Notifications.bind, s.refreshAsync("notifications", s.Notifications.Refresh)},
		{"actions", s.Actions, s.Actions.bind, s.refreshAsync("actions", s.Actions.Refresh)},
	}

	for _, r := range refreshers {
		if err := r.store.Refresh(ctx); err != nil {
			s.Close()
			return fmt.Errorf("stores: initial %s refresh: %w", r.name, err)
		}
	}
	for _, r := range refreshers {
		cancels, err := r.binder(ctx, feed, r.refresh)
		if err != nil {
			s.Close()
			return fmt.Errorf("stores: bind %s: %w", r.name, err)
		}
		s.mu.Lock()
		s.cancels = append(s.cancels, cancels...)
		s.mu.Unlock()
	}
	return nil
}

func (s *Set) refreshAsync(name string, refresh func(context.Context) error) func() {
	return func() {
		go func() {
			if err := refresh(context.Background()); err != nil {
				s.log.WithError(err).WithField("store", name).Warn("change-triggered refresh failed")
			}
		}()
	}
}

// Close cancels every realtime subscription. Stores keep their snapshots;
// use Reset to clear them.
func (s *Set) Close() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Reset returns every store to Idle with zero snapshots. Called on logout so
// no per-user data survives into the next session.
func (s *Set) Reset() {
	s.Close()
	s.Users.reset()
	s.Requests.reset()
	s.Competitions.reset()
	s.Invites.reset()
	s.Notifications.reset()
	s.Actions.reset()
}
