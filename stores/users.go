package stores

import (
	"context"
	"fmt"
	"sort"

	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/models"
)

// UserData is the snapshot of the signed-in user and their friends.
type UserData struct {
	Me      models.Profile
	Friends []models.Profile
}

// UserStore holds the current user's profile and resolved friend list.
type UserStore struct {
	*store[UserData]
	gw     *gateway.Client
	userID string
}

// NewUserStore creates the store for the given signed-in user id.
func NewUserStore(gw *gateway.Client, userID string) *UserStore {
	s := &UserStore{gw: gw, userID: userID}
	s.store = newStore(s.fetchAll)
	return s
}

func (s *UserStore) fetchAll(ctx context.Context) (UserData, error) {
	var data UserData

	err := s.gw.From(models.ProfilesTable).
		Select("*").
		Eq("id", s.userID).
		Single().
		ExecuteInto(ctx, &data.Me)
	if err != nil {
		return data, fmt.Errorf("fetch profile: %w", err)
	}

	var friendships []models.Friendship
	err = s.gw.From(models.FriendshipsTable).
		Select("*").
		Or(
			fmt.Sprintf("user_low.eq.%s", s.userID),
			fmt.Sprintf("user_high.eq.%s", s.userID),
		).
		ExecuteInto(ctx, &friendships)
	if err != nil {
		return data, fmt.Errorf("fetch friendships: %w", err)
	}

	if len(friendships) == 0 {
		data.Friends = []models.Profile{}
		return data, nil
	}

	ids := make([]string, 0, len(friendships))
	for _, f := range friendships {
		ids = append(ids, f.Other(s.userID))
	}

	var friends []models.Profile
	err = s.gw.From(models.ProfilesTable).
		Select("*").
		In("id", ids).
		ExecuteInto(ctx, &friends)
	if err != nil {
		return data, fmt.Errorf("fetch friend profiles: %w", err)
	}

	sort.Slice(friends, func(i, j int) bool {
		a, b := friends[i].DisplayName(), friends[j].DisplayName()
		if a != b {
			return a < b
		}
		return friends[i].ID < friends[j].ID
	})
	data.Friends = friends
	return data, nil
}

// UserID returns the signed-in user's id.
func (s *UserStore) UserID() string {
	return s.userID
}

// IsFriend reports whether the given user is in the friend list.
func (s *UserStore) IsFriend(userID string) bool {
	data := s.Get()
	for _, f := range data.Friends {
		if f.ID == userID {
			return true
		}
	}
	return false
}

// ProfileUpdate carries the fields a user may change on their own profile.
type ProfileUpdate struct {
	FullName      *string `json:"full_name,omitempty"`
	Username      *string `json:"username,omitempty"`
	BackgroundKey *string `json:"background_key,omitempty"`
}

// UpdateProfile patches the user's own profile. The snapshot is updated
// optimistically and then replaced by an authoritative refetch.
func (s *UserStore) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	if update.Username != nil && !models.ValidUsername(*update.Username) {
		return fmt.Errorf("stores: invalid username %q", *update.Username)
	}

	s.applyLocal(func(data UserData) UserData {
		if update.FullName != nil {
			data.Me.FullName = *update.FullName
		}
		if update.Username != nil {
			data.Me.Username = *update.Username
		}
		if update.BackgroundKey != nil {
			data.Me.BackgroundKey = *update.BackgroundKey
		}
		return data
	})

	_, err := s.gw.From(models.ProfilesTable).
		Eq("id", s.userID).
		ExecuteUpdate(ctx, update)
	if refreshErr := s.settle(ctx); err == nil {
		err = refreshErr
	}
	return err
}

// bind subscribes the store to the row changes that affect its snapshot.
func (s *UserStore) bind(ctx context.Context, feed gateway.ChangeFeed, refresh func()) ([]func(), error) {
	configs := []gateway.ChangeConfig{
		{Table: models.ProfilesTable, Filter: "id=eq." + s.userID},
		{Table: models.FriendshipsTable, Filter: "user_low=eq." + s.userID},
		{Table: models.FriendshipsTable, Filter: "user_high=eq." + s.userID},
	}
	return subscribeAll(ctx, feed, configs, refresh)
}

// subscribeAll registers one handler across several channels, unwinding the
// earlier subscriptions if a later one fails.
func subscribeAll(ctx context.Context, feed gateway.ChangeFeed, configs []gateway.ChangeConfig, refresh func()) ([]func(), error) {
	cancels := make([]func(), 0, len(configs))
	for _, cfg := range configs {
		cancel, err := feed.Subscribe(ctx, cfg, func(gateway.ChangeEvent) { refresh() })
		if err != nil {
			for _, c := range cancels {
				c()
			}
			return nil, err
		}
		cancels = append(cancels, cancel)
	}
	return cancels, nil
}
