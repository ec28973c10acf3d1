package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Frodemaneskold/greenup/aggregate"
	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/models"
)

// ParticipantView is one competition member with their scoped CO2 total.
type ParticipantView struct {
	UserID   string
	Name     string
	TotalKg  float64
	JoinedAt time.Time
}

// CompetitionView is one competition the user stands in, with active members
// ranked by their totals.
type CompetitionView struct {
	Competition  models.Competition
	Participants []ParticipantView
	Leaderboard  []aggregate.LeaderboardEntry
	MyTotalKg    float64
	GoalProgress float64
}

// CompetitionData is the snapshot of every competition the user currently
// stands in.
type CompetitionData struct {
	Competitions []CompetitionView
}

// CompetitionStore holds the user's competitions and their leaderboards.
// Leaderboard totals are derived from action rows on every refetch, scoped to
// each competition's start date.
type CompetitionStore struct {
	*store[CompetitionData]
	gw     *gateway.Client
	userID string

	// dynamic channels track the current competition set; rebound after every
	// refresh so joins and leaves adjust the subscriptions.
	dynMu       sync.Mutex
	dynCtx      context.Context
	dynFeed     gateway.ChangeFeed
	dynRefresh  func()
	dynChannels map[string]func()
}

// NewCompetitionStore creates the store for the given signed-in user id.
func NewCompetitionStore(gw *gateway.Client, userID string) *CompetitionStore {
	s := &CompetitionStore{
		gw:          gw,
		userID:      userID,
		dynChannels: make(map[string]func()),
	}
	s.store = newStore(s.fetchAll)
	return s
}

func (s *CompetitionStore) fetchAll(ctx context.Context) (CompetitionData, error) {
	var mine []models.Participant
	err := s.gw.From(models.CompetitionParticipantsTable).
		Select("*").
		Eq("user_id", s.userID).
		Is("left_at", "null").
		ExecuteInto(ctx, &mine)
	if err != nil {
		return CompetitionData{}, fmt.Errorf("fetch memberships: %w", err)
	}
	if len(mine) == 0 {
		return CompetitionData{Competitions: []CompetitionView{}}, nil
	}

	compIDs := make([]string, 0, len(mine))
	for _, p := range mine {
		compIDs = append(compIDs, p.CompetitionID)
	}

	var competitions []models.Competition
	err = s.gw.From(models.CompetitionsTable).
		Select("*").
		In("id", compIDs).
		ExecuteInto(ctx, &competitions)
	if err != nil {
		return CompetitionData{}, fmt.Errorf("fetch competitions: %w", err)
	}

	var participants []models.Participant
	err = s.gw.From(models.CompetitionParticipantsTable).
		Select("*").
		In("competition_id", compIDs).
		Is("left_at", "null").
		ExecuteInto(ctx, &participants)
	if err != nil {
		return CompetitionData{}, fmt.Errorf("fetch participants: %w", err)
	}

	userIDs := uniqueUserIDs(participants)

	var profiles []models.Profile
	err = s.gw.From(models.ProfilesTable).
		Select("id,username,full_name").
		In("id", userIDs).
		ExecuteInto(ctx, &profiles)
	if err != nil {
		return CompetitionData{}, fmt.Errorf("fetch participant profiles: %w", err)
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.DisplayName()
	}

	var actions []models.UserAction
	err = s.gw.From(models.UserActionsTable).
		Select("user_id,mission_id,co2_saved_kg,created_at").
		In("user_id", userIDs).
		ExecuteInto(ctx, &actions)
	if err != nil {
		return CompetitionData{}, fmt.Errorf("fetch participant actions: %w", err)
	}
	actionsByUser := make(map[string][]models.UserAction)
	for _, a := range actions {
		actionsByUser[a.UserID] = append(actionsByUser[a.UserID], a)
	}

	byComp := make(map[string][]models.Participant)
	for _, p := range participants {
		byComp[p.CompetitionID] = append(byComp[p.CompetitionID], p)
	}

	views := make([]CompetitionView, 0, len(competitions))
	for _, comp := range competitions {
		view := CompetitionView{Competition: comp}

		var since time.Time
		if comp.StartDate != nil {
			since = *comp.StartDate
		}

		standings := make([]aggregate.Standing, 0, len(byComp[comp.ID]))
		for _, p := range byComp[comp.ID] {
			total := aggregate.CO2Since(actionsByUser[p.UserID], since)
			view.Participants = append(view.Participants, ParticipantView{
				UserID:   p.UserID,
				Name:     names[p.UserID],
				TotalKg:  total,
				JoinedAt: p.JoinedAt,
			})
			standings = append(standings, aggregate.Standing{
				UserID:  p.UserID,
				Name:    names[p.UserID],
				TotalKg: total,
			})
			if p.UserID == s.userID {
				view.MyTotalKg = total
			}
		}
		view.Leaderboard = aggregate.Leaderboard(standings)
		sort.Slice(view.Participants, func(i, j int) bool {
			return view.Participants[i].UserID < view.Participants[j].UserID
		})
		view.GoalProgress = aggregate.GoalProgress(view.MyTotalKg, comp.GoalKg)
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		a, b := views[i].Competition, views[j].Competition
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return CompetitionData{Competitions: views}, nil
}

// Find returns the view for one competition, if the user stands in it.
func (s *CompetitionStore) Find(competitionID string) (CompetitionView, bool) {
	for _, v := range s.Get().Competitions {
		if v.Competition.ID == competitionID {
			return v, true
		}
	}
	return CompetitionView{}, false
}

// CreateParams are the inputs for creating a competition.
type CreateParams struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	InvitePolicy string     `json:"invite_policy"`
	GoalKg       float64    `json:"goal_kg,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

// Create makes a new competition with the user as owner and sole active
// participant, in one server-side transaction.
func (s *CompetitionStore) Create(ctx context.Context, params CreateParams) error {
	if params.Name == "" {
		return fmt.Errorf("stores: competition name is required")
	}
	if params.InvitePolicy == "" {
		params.InvitePolicy = models.InvitePolicyOwnerOnly
	}
	if params.InvitePolicy != models.InvitePolicyOwnerOnly && params.InvitePolicy != models.InvitePolicyAllMembers {
		return fmt.Errorf("stores: unknown invite policy %q", params.InvitePolicy)
	}

	if _, err := s.gw.RPC(ctx, "create_competition", params); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Leave removes the user from a competition by stamping left_at. The row
// stays so past standings remain derivable.
func (s *CompetitionStore) Leave(ctx context.Context, competitionID string) error {
	s.applyLocal(func(data CompetitionData) CompetitionData {
		views := make([]CompetitionView, 0, len(data.Competitions))
		for _, v := range data.Competitions {
			if v.Competition.ID != competitionID {
				views = append(views, v)
			}
		}
		data.Competitions = views
		return data
	})

	_, err := s.gw.From(models.CompetitionParticipantsTable).
		Eq("competition_id", competitionID).
		Eq("user_id", s.userID).
		Is("left_at", "null").
		ExecuteUpdate(ctx, map[string]any{
			"left_at": time.Now().UTC().Format(time.RFC3339),
		})
	if refreshErr := s.settle(ctx); err == nil {
		err = refreshErr
	}
	return err
}

// Refresh refetches and then reconciles the per-competition realtime
// channels with the new competition set.
func (s *CompetitionStore) Refresh(ctx context.Context) error {
	err := s.store.Refresh(ctx)
	if err == nil {
		s.syncDynamicChannels()
	}
	return err
}

func (s *CompetitionStore) bind(ctx context.Context, feed gateway.ChangeFeed, refresh func()) ([]func(), error) {
	s.dynMu.Lock()
	s.dynCtx = ctx
	s.dynFeed = feed
	s.dynRefresh = refresh
	s.dynMu.Unlock()

	cancels, err := subscribeAll(ctx, feed, []gateway.ChangeConfig{
		{Table: models.CompetitionParticipantsTable, Filter: "user_id=eq." + s.userID},
	}, refresh)
	if err != nil {
		return nil, err
	}
	s.syncDynamicChannels()
	return append(cancels, s.dropDynamicChannels), nil
}

// syncDynamicChannels keeps one participants channel and one actions channel
// per current competition member. The feed's reference counting makes the
// repeated subscribes across refreshes cheap.
func (s *CompetitionStore) syncDynamicChannels() {
	s.dynMu.Lock()
	defer s.dynMu.Unlock()
	if s.dynFeed == nil {
		return
	}

	want := make(map[string]gateway.ChangeConfig)
	for _, view := range s.Get().Competitions {
		cfg := gateway.ChangeConfig{
			Table:  models.CompetitionParticipantsTable,
			Filter: "competition_id=eq." + view.Competition.ID,
		}
		want["p:"+view.Competition.ID] = cfg
		for _, p := range view.Participants {
			if p.UserID == s.userID {
				continue
			}
			want["a:"+p.UserID] = gateway.ChangeConfig{
				Table:  models.UserActionsTable,
				Filter: "user_id=eq." + p.UserID,
			}
		}
	}

	for key, cancel := range s.dynChannels {
		if _, ok := want[key]; !ok {
			cancel()
			delete(s.dynChannels, key)
		}
	}
	for key, cfg := range want {
		if _, ok := s.dynChannels[key]; ok {
			continue
		}
		cancel, err := s.dynFeed.Subscribe(s.dynCtx, cfg, func(gateway.ChangeEvent) { s.dynRefresh() })
		if err != nil {
			continue
		}
		s.dynChannels[key] = cancel
	}
}

func (s *CompetitionStore) dropDynamicChannels() {
	s.dynMu.Lock()
	defer s.dynMu.Unlock()
	for key, cancel := range s.dynChannels {
		cancel()
		delete(s.dynChannels, key)
	}
	s.dynFeed = nil
}

func uniqueUserIDs(participants []models.Participant) []string {
	seen := make(map[string]bool, len(participants))
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			ids = append(ids, p.UserID)
		}
	}
	sort.Strings(ids)
	return ids
}
