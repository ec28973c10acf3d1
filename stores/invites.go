package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/models"
)

// InviteData is the snapshot of competition invites addressed to the user,
// newest first.
type InviteData struct {
	Invites []models.CompetitionInvite
}

// InviteStore holds inbound competition invites. Invite permission checks
// (owner-only vs all-members) live server-side; the store only initiates.
type InviteStore struct {
	gw     *gateway.Client
	userID string
	*store[InviteData]

	// onAccepted lets the owning set refresh the competition store after an
	// accept lands, since accepting changes membership in another snapshot.
	onAccepted func(ctx context.Context)
}

// NewInviteStore creates the store for the given signed-in user id.
func NewInviteStore(gw *gateway.Client, userID string) *InviteStore {
	s := &InviteStore{gw: gw, userID: userID}
	s.store = newStore(s.fetchAll)
	return s
}

func (s *InviteStore) fetchAll(ctx context.Context) (InviteData, error) {
	var invites []models.CompetitionInvite
	err := s.gw.From(models.CompetitionInvitesTable).
		Select("*").
		Eq("invited_user_id", s.userID).
		Order("created_at", false).
		ExecuteInto(ctx, &invites)
	if err != nil {
		return InviteData{}, fmt.Errorf("fetch invites: %w", err)
	}
	if invites == nil {
		invites = []models.CompetitionInvite{}
	}
	return InviteData{Invites: invites}, nil
}

// Pending returns the invites still awaiting a response.
func (s *InviteStore) Pending() []models.CompetitionInvite {
	var out []models.CompetitionInvite
	for _, inv := range s.Get().Invites {
		if inv.Pending() {
			out = append(out, inv)
		}
	}
	return out
}

// InviteUser invites another user to a competition. The backend checks the
// invite policy and duplicate membership.
func (s *InviteStore) InviteUser(ctx context.Context, competitionID, userID string) error {
	_, err := s.gw.RPC(ctx, "invite_to_competition", map[string]any{
		"competition_id": competitionID,
		"invited_user":   userID,
	})
	return err
}

// Accept joins the competition behind the invite. Marking the invite accepted
// and inserting the participant row happen in one server-side transaction, so
// a half-applied accept cannot be observed.
func (s *InviteStore) Accept(ctx context.Context, inviteID string) error {
	s.markLocal(inviteID, models.StatusAccepted)

	_, err := s.gw.RPC(ctx, "accept_competition_invite", map[string]any{
		"invite_id": inviteID,
	})
	if refreshErr := s.settle(ctx); err == nil {
		err = refreshErr
	}
	if err == nil && s.onAccepted != nil {
		s.onAccepted(ctx)
	}
	return err
}

// Decline marks the invite declined. No membership changes, so a plain row
// update suffices.
func (s *InviteStore) Decline(ctx context.Context, inviteID string) error {
	s.markLocal(inviteID, models.StatusDeclined)

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.gw.From(models.CompetitionInvitesTable).
		Eq("id", inviteID).
		Eq("invited_user_id", s.userID).
		Eq("status", models.StatusPending).
		ExecuteUpdate(ctx, map[string]any{
			"status":       models.StatusDeclined,
			"responded_at": now,
		})
	if refreshErr := s.settle(ctx); err == nil {
		err = refreshErr
	}
	return err
}

func (s *InviteStore) markLocal(inviteID, status string) {
	s.applyLocal(func(data InviteData) InviteData {
		invites := make([]models.CompetitionInvite, len(data.Invites))
		copy(invites, data.Invites)
		now := time.Now()
		for i := range invites {
			if invites[i].ID == inviteID {
				invites[i].Status = status
				invites[i].RespondedAt = &now
			}
		}
		data.Invites = invites
		return data
	})
}

func (s *InviteStore) bind(ctx context.Context, feed gateway.ChangeFeed, refresh func()) ([]func(), error) {
	configs := []gateway.ChangeConfig{
		{Table: models.CompetitionInvitesTable, Filter: "invited_user_id=eq." + s.userID},
	}
	return subscribeAll(ctx, feed, configs, refresh)
}
