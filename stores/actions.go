package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Frodemaneskold/greenup/aggregate"
	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/models"
)

// ActionsData is the snapshot of the mission catalog and the user's logged
// actions. TodayCounts and TotalKg are derived from the action rows on every
// refetch; the backend never stores them.
type ActionsData struct {
	Missions    []models.Mission
	Actions     []models.UserAction
	TodayCounts map[string]int
	TotalKg     float64
}

// ActionStore holds the mission catalog, the user's action history and the
// derived daily counters. At local midnight the counters roll over without a
// network call.
type ActionStore struct {
	*store[ActionsData]
	gw     *gateway.Client
	userID string

	rolloverMu   sync.Mutex
	rolloverStop chan struct{}
}

// NewActionStore creates the store for the given signed-in user id.
func NewActionStore(gw *gateway.Client, userID string) *ActionStore {
	s := &ActionStore{gw: gw, userID: userID}
	s.store = newStore(s.fetchAll)
	return s
}

func (s *ActionStore) fetchAll(ctx context.Context) (ActionsData, error) {
	var data ActionsData

	err := s.gw.From(models.MissionsTable).
		Select("*").
		Order("title", true).
		ExecuteInto(ctx, &data.Missions)
	if err != nil {
		return data, fmt.Errorf("fetch missions: %w", err)
	}

	err = s.gw.From(models.UserActionsTable).
		Select("*").
		Eq("user_id", s.userID).
		Order("created_at", false).
		ExecuteInto(ctx, &data.Actions)
	if err != nil {
		return data, fmt.Errorf("fetch actions: %w", err)
	}
	if data.Actions == nil {
		data.Actions = []models.UserAction{}
	}

	data.TodayCounts = aggregate.DailyCounts(data.Actions, aggregate.StartOfDay(time.Now()))
	data.TotalKg = aggregate.TotalCO2(data.Actions)
	return data, nil
}

// Mission returns a catalog entry by id.
func (s *ActionStore) Mission(missionID string) (models.Mission, bool) {
	for _, m := range s.Get().Missions {
		if m.ID == missionID {
			return m, true
		}
	}
	return models.Mission{}, false
}

// Log records one completion of a flat mission.
func (s *ActionStore) Log(ctx context.Context, missionID string) error {
	return s.log(ctx, missionID, 1)
}

// LogQuantity records one completion of a quantity-based mission, e.g.
// kilometers biked.
func (s *ActionStore) LogQuantity(ctx context.Context, missionID string, quantity float64) error {
	if quantity <= 0 {
		return fmt.Errorf("stores: quantity must be positive")
	}
	return s.log(ctx, missionID, quantity)
}

// log checks the daily cap against the local snapshot before any network
// call, so a capped mission fails fast and the append-only table never sees
// the excess row.
func (s *ActionStore) log(ctx context.Context, missionID string, quantity float64) error {
	mission, ok := s.Mission(missionID)
	if !ok {
		return ErrUnknownMission
	}
	data := s.Get()
	if mission.MaxPerDay > 0 && data.TodayCounts[missionID] >= mission.MaxPerDay {
		return ErrDailyLimitReached
	}

	credit := mission.CreditFor(quantity)
	s.applyLocal(func(data ActionsData) ActionsData {
		counts := make(map[string]int, len(data.TodayCounts)+1)
		for k, v := range data.TodayCounts {
			counts[k] = v
		}
		counts[missionID]++
		data.TodayCounts = counts
		data.TotalKg += credit
		return data
	})

	_, err := s.gw.From(models.UserActionsTable).
		ExecuteInsert(ctx, models.UserAction{
			UserID:     s.userID,
			MissionID:  missionID,
			CO2SavedKg: credit,
		})
	if refreshErr := s.settle(ctx); err == nil {
		err = refreshErr
	}
	return err
}

// CommunityTotal fetches the sum of CO2 saved across all users. It is a
// point-in-time read, not a cached snapshot.
func (s *ActionStore) CommunityTotal(ctx context.Context) (float64, error) {
	resp, err := s.gw.RPC(ctx, "community_total", nil)
	if err != nil {
		return 0, err
	}
	var total float64
	if err := resp.JSON(&total); err != nil {
		return 0, fmt.Errorf("stores: unmarshal community total: %w", err)
	}
	return total, nil
}

func (s *ActionStore) bind(ctx context.Context, feed gateway.ChangeFeed, refresh func()) ([]func(), error) {
	cancels, err := subscribeAll(ctx, feed, []gateway.ChangeConfig{
		{Table: models.UserActionsTable, Filter: "user_id=eq." + s.userID},
	}, refresh)
	if err != nil {
		return nil, err
	}
	s.startRollover()
	return append(cancels, s.stopRollover), nil
}

// startRollover recomputes the daily counters at every local midnight. The
// action rows are already in the snapshot, so no network call is needed.
func (s *ActionStore) startRollover() {
	s.rolloverMu.Lock()
	defer s.rolloverMu.Unlock()
	if s.rolloverStop != nil {
		return
	}
	stop := make(chan struct{})
	s.rolloverStop = stop

	go func() {
		for {
			now := time.Now()
			next := aggregate.StartOfDay(now).Add(24 * time.Hour)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
				s.recomputeDay()
			}
		}
	}()
}

func (s *ActionStore) stopRollover() {
	s.rolloverMu.Lock()
	defer s.rolloverMu.Unlock()
	if s.rolloverStop != nil {
		close(s.rolloverStop)
		s.rolloverStop = nil
	}
}

func (s *ActionStore) recomputeDay() {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.snapshot.TodayCounts = aggregate.DailyCounts(s.snapshot.Actions, aggregate.StartOfDay(time.Now()))
	snap := s.snapshot
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
