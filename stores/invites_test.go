package stores

import (
	"context"
	"testing"
)

func invitesBackend(t *testing.T) (*fakeBackend, *InviteStore) {
	t.Helper()
	b := newFakeBackend()
	b.tables["competition_invites"] = `[
		{"id":"i1","competition_id":"c1","invited_user_id":"me","invited_by_user_id":"owner","status":"pending","created_at":"2026-03-01T10:00:00Z"},
		{"id":"i2","competition_id":"c2","invited_user_id":"me","invited_by_user_id":"owner","status":"declined","created_at":"2026-02-01T10:00:00Z"}
	]`

	store := NewInviteStore(b.client(t), "me")
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	return b, store
}

func TestPendingInvites(t *testing.T) {
	_, store := invitesBackend(t)
	pending := store.Pending()
	if len(pending) != 1 || pending[0].ID != "i1" {
		t.Errorf("Pending() = %v", pending)
	}
}

func TestAcceptInviteIsSingleRPC(t *testing.T) {
	b, store := invitesBackend(t)

	var refreshed bool
	store.onAccepted = func(ctx context.Context) { refreshed = true }

	if err := store.Accept(context.Background(), "i1"); err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	calls := b.rpcCalls()
	if len(calls) != 1 || calls[0].Name != "accept_competition_invite" {
		t.Fatalf("rpc calls = %v, want one accept_competition_invite", calls)
	}
	if calls[0].Params["invite_id"] != "i1" {
		t.Errorf("params = %v", calls[0].Params)
	}
	if len(b.writeCalls()) != 0 {
		t.Errorf("accept performed raw table writes: %v", b.writeCalls())
	}
	if !refreshed {
		t.Error("competition snapshot not refreshed after accept")
	}
}

func TestDeclineInviteUpdatesRow(t *testing.T) {
	b, store := invitesBackend(t)

	if err := store.Decline(context.Background(), "i1"); err != nil {
		t.Fatalf("Decline() error: %v", err)
	}
	writes := b.writeCalls()
	if len(writes) != 1 || writes[0] != "PATCH competition_invites" {
		t.Errorf("writes = %v", writes)
	}
	if len(b.rpcCalls()) != 0 {
		t.Errorf("decline used an RPC: %v", b.rpcCalls())
	}
}

func TestInviteUserCallsRPC(t *testing.T) {
	b, store := invitesBackend(t)

	if err := store.InviteUser(context.Background(), "c1", "friend"); err != nil {
		t.Fatalf("InviteUser() error: %v", err)
	}
	calls := b.rpcCalls()
	if len(calls) != 1 || calls[0].Name != "invite_to_competition" {
		t.Fatalf("rpc calls = %v", calls)
	}
}
