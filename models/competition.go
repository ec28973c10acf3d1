package models

import "time"

// Competition is a friend-based leaderboard. The owner creates it and invites
// participants under the configured invite policy.
type Competition struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	OwnerID      string     `json:"owner_id"`
	InvitePolicy string     `json:"invite_policy"`
	GoalKg       float64    `json:"goal_kg,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
}

// Participant links a user to a competition. Leaving is a soft delete: the
// row stays and LeftAt is stamped, so current membership means the row exists
// and LeftAt is null.
type Participant struct {
	CompetitionID string     `json:"competition_id"`
	UserID        string     `json:"user_id"`
	JoinedAt      time.Time  `json:"joined_at,omitempty"`
	LeftAt        *time.Time `json:"left_at,omitempty"`
}

// Active reports whether the participant currently stands in the competition.
func (p Participant) Active() bool {
	return p.LeftAt == nil
}

// CompetitionInvite asks a user to join a competition. Only the invited user
// may respond.
type CompetitionInvite struct {
	ID              string     `json:"id"`
	CompetitionID   string     `json:"competition_id"`
	InvitedUserID   string     `json:"invited_user_id"`
	InvitedByUserID string     `json:"invited_by_user_id"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
}

// Pending reports whether the invite still awaits a response.
func (i CompetitionInvite) Pending() bool {
	return i.Status == StatusPending
}
