// Package aggregate holds the pure derivations shared by the stores: daily
// action counts, CO2 totals, leaderboard ranking and goal progress. All inputs
// come from already-fetched rows; nothing here performs I/O.
package aggregate

import (
	"sort"
	"time"

	"github.com/Frodemaneskold/greenup/models"
)

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DailyCounts returns how many times each mission was logged at or after
// since, keyed by mission id. Missions without actions are absent from the
// map.
func DailyCounts(actions []models.UserAction, since time.Time) map[string]int {
	counts := make(map[string]int)
	for _, a := range actions {
		if a.CreatedAt.Before(since) {
			continue
		}
		counts[a.MissionID]++
	}
	return counts
}

// TotalCO2 sums the saved kilograms over all actions. Totals are always
// derived from action rows, never read from a stored counter.
func TotalCO2(actions []models.UserAction) float64 {
	var total float64
	for _, a := range actions {
		total += a.CO2SavedKg
	}
	return total
}

// CO2Since sums the saved kilograms over actions logged at or after since.
func CO2Since(actions []models.UserAction, since time.Time) float64 {
	var total float64
	for _, a := range actions {
		if a.CreatedAt.Before(since) {
			continue
		}
		total += a.CO2SavedKg
	}
	return total
}

// Standing is one participant's total before ranking.
type Standing struct {
	UserID  string
	Name    string
	TotalKg float64
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank    int
	UserID  string
	Name    string
	TotalKg float64
}

// Leaderboard ranks standings by total descending. Equal totals are broken by
// user id ascending, so the ordering is deterministic across refetches.
func Leaderboard(standings []Standing) []LeaderboardEntry {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalKg != sorted[j].TotalKg {
			return sorted[i].TotalKg > sorted[j].TotalKg
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	entries := make([]LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		entries[i] = LeaderboardEntry{
			Rank:    i + 1,
			UserID:  s.UserID,
			Name:    s.Name,
			TotalKg: s.TotalKg,
		}
	}
	return entries
}

// GoalProgress returns total/goal clamped to [0, 1]. Goals that are zero or
// negative report zero progress rather than dividing by them.
func GoalProgress(totalKg, goalKg float64) float64 {
	if goalKg <= 0 {
		return 0
	}
	progress := totalKg / goalKg
	if progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}
	return progress
}
