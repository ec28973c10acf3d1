package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/models"
)

// RequestData is the snapshot of friend requests involving the user, both
// directions merged, newest first.
type RequestData struct {
	Requests []models.FriendRequest
}

// FriendRequestStore holds inbound and outbound friend requests.
type FriendRequestStore struct {
	*store[RequestData]
	gw     *gateway.Client
	userID string
}

// NewFriendRequestStore creates the store for the given signed-in user id.
func NewFriendRequestStore(gw *gateway.Client, userID string) *FriendRequestStore {
	s := &FriendRequestStore{gw: gw, userID: userID}
	s.store = newStore(s.fetchAll)
	return s
}

func (s *FriendRequestStore) fetchAll(ctx context.Context) (RequestData, error) {
	var requests []models.FriendRequest
	err := s.gw.From(models.FriendRequestsTable).
		Select("*").
		Or(
			fmt.Sprintf("from_user_id.eq.%s", s.userID),
			fmt.Sprintf("to_user_id.eq.%s", s.userID),
		).
		Order("created_at", false).
		ExecuteInto(ctx, &requests)
	if err != nil {
		return RequestData{}, fmt.Errorf("fetch friend requests: %w", err)
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	return RequestData{Requests: requests}, nil
}

// InboundPending returns pending requests addressed to the user.
func (s *FriendRequestStore) InboundPending() []models.FriendRequest {
	var out []models.FriendRequest
	for _, r := range s.Get().Requests {
		if r.Pending() && r.ToUserID == s.userID {
			out = append(out, r)
		}
	}
	return out
}

// OutboundPending returns pending requests the user has sent.
func (s *FriendRequestStore) OutboundPending() []models.FriendRequest {
	var out []models.FriendRequest
	for _, r := range s.Get().Requests {
		if r.Pending() && r.FromUserID == s.userID {
			out = append(out, r)
		}
	}
	return out
}

// HasPendingWith reports whether a pending request already connects the user
// with other, in either direction.
func (s *FriendRequestStore) HasPendingWith(other string) bool {
	for _, r := range s.Get().Requests {
		if r.Pending() && r.Involves(s.userID, other) {
			return true
		}
	}
	return false
}

// Send creates a friend request to the given user. Self-addressed and
// locally-known duplicate requests are rejected before any network call;
// duplicates only the backend can see surface as ErrDuplicateRequest too.
func (s *FriendRequestStore) Send(ctx context.Context, toUserID string) error {
	if toUserID == s.userID {
		return ErrSelfRequest
	}
	if s.HasPendingWith(toUserID) {
		return ErrDuplicateRequest
	}

	_, err := s.gw.RPC(ctx, "send_friend_request", map[string]any{
		"to_user": toUserID,
	})
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.IsUniqueViolation() {
			err = ErrDuplicateRequest
		}
		s.Refresh(ctx)
		return err
	}
	return s.Refresh(ctx)
}

// Accept answers an inbound request positively. The backend creates the
// friendship row in the same transaction.
func (s *FriendRequestStore) Accept(ctx context.Context, requestID string) error {
	return s.respond(ctx, requestID, true)
}

// Decline answers an inbound request negatively.
func (s *FriendRequestStore) Decline(ctx context.Context, requestID string) error {
	return s.respond(ctx, requestID, false)
}

func (s *FriendRequestStore) respond(ctx context.Context, requestID string, accept bool) error {
	status := models.StatusDeclined
	if accept {
		status = models.StatusAccepted
	}

	s.applyLocal(func(data RequestData) RequestData {
		requests := make([]models.FriendRequest, len(data.Requests))
		copy(requests, data.Requests)
		now := time.Now()
		for i := range requests {
			if requests[i].ID == requestID {
				requests[i].Status = status
				requests[i].RespondedAt = &now
			}
		}
		data.Requests = requests
		return data
	})

	_, err := s.gw.RPC(ctx, "respond_friend_request", map[string]any{
		"request_id": requestID,
		"accept":     accept,
	})
	if refreshErr := s.settle(ctx); err == nil {
		err = refreshErr
	}
	return err
}

func (s *FriendRequestStore) bind(ctx context.Context, feed gateway.ChangeFeed, refresh func()) ([]func(), error) {
	configs := []gateway.ChangeConfig{
		{Table: models.FriendRequestsTable, Filter: "to_user_id=eq." + s.userID},
		{Table: models.FriendRequestsTable, Filter: "from_user_id=eq." + s.userID},
	}
	return subscribeAll(ctx, feed, configs, refresh)
}
