package stores

import (
	"context"
	"errors"
	"testing"
)

func TestStoreLifecycle(t *testing.T) {
	fetchResult := []string{"a"}
	var fetchErr error
	s := newStore(func(ctx context.Context) ([]string, error) {
		return fetchResult, fetchErr
	})

	if s.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", s.State())
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("state after refresh = %v, want ready", s.State())
	}
	if got := s.Get(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Get() = %v", got)
	}
}

func TestStoreFirstFetchFailure(t *testing.T) {
	wantErr := errors.New("network down")
	s := newStore(func(ctx context.Context) ([]string, error) {
		return nil, wantErr
	})

	if err := s.Refresh(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Refresh() error = %v, want %v", err, wantErr)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %v, want failed", s.State())
	}
	if !errors.Is(s.Err(), wantErr) {
		t.Errorf("Err() = %v", s.Err())
	}
}

func TestFailedRefreshKeepsPriorSnapshot(t *testing.T) {
	var fail bool
	s := newStore(func(ctx context.Context) ([]string, error) {
		if fail {
			return nil, errors.New("transient")
		}
		return []string{"a", "b"}, nil
	})

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	fail = true
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if s.State() != StateReady {
		t.Errorf("state = %v, want ready (stale but consistent)", s.State())
	}
	if got := s.Get(); len(got) != 2 {
		t.Errorf("snapshot lost on failed refresh: %v", got)
	}
}

func TestIdempotentRefreshNotifiesOnce(t *testing.T) {
	s := newStore(func(ctx context.Context) ([]string, error) {
		return []string{"same"}, nil
	})

	var notifications int
	s.Subscribe(func([]string) { notifications++ })

	for i := 0; i < 3; i++ {
		if err := s.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() error: %v", err)
		}
	}
	if notifications != 1 {
		t.Errorf("notifications = %d, want 1 (unchanged snapshots are silent)", notifications)
	}
}

func TestSubscribeDeliversCurrentSnapshot(t *testing.T) {
	s := newStore(func(ctx context.Context) ([]string, error) {
		return []string{"a"}, nil
	})
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	var got []string
	cancel := s.Subscribe(func(v []string) { got = v })
	if len(got) != 1 {
		t.Errorf("subscriber not seeded with current snapshot: %v", got)
	}

	cancel()
	cancel() // idempotent
}

func TestUnsubscribedListenerDoesNotFire(t *testing.T) {
	value := []string{"v1"}
	s := newStore(func(ctx context.Context) ([]string, error) {
		return value, nil
	})

	var fired int
	cancel := s.Subscribe(func([]string) { fired++ })
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	cancel()

	value = []string{"v2"}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestOptimisticPatchThenSettle(t *testing.T) {
	authoritative := []string{"server"}
	s := newStore(func(ctx context.Context) ([]string, error) {
		return authoritative, nil
	})
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	s.applyLocal(func(v []string) []string {
		return append(v, "optimistic")
	})
	if s.PendingMutations() != 1 {
		t.Errorf("PendingMutations() = %d, want 1", s.PendingMutations())
	}
	if got := s.Get(); len(got) != 2 {
		t.Errorf("optimistic patch not applied: %v", got)
	}

	if err := s.settle(context.Background()); err != nil {
		t.Fatalf("settle() error: %v", err)
	}
	if s.PendingMutations() != 0 {
		t.Errorf("PendingMutations() = %d, want 0", s.PendingMutations())
	}
	if got := s.Get(); len(got) != 1 || got[0] != "server" {
		t.Errorf("settle did not restore authoritative snapshot: %v", got)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := newStore(func(ctx context.Context) ([]string, error) {
		return []string{"a"}, nil
	})
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	var fired int
	s.Subscribe(func([]string) { fired++ })
	fired = 0

	s.reset()
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if got := s.Get(); got != nil {
		t.Errorf("snapshot = %v, want zero value", got)
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if fired != 0 {
		t.Errorf("stale listener fired %d times after reset", fired)
	}
}
