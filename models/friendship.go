package models

import "time"

// Friendship is the symmetric relation between two users. Rows are normalized
// with the lexicographically lower id in UserLow so a pair can never appear
// twice in opposite directions.
type Friendship struct {
	UserLow   string    `json:"user_low"`
	UserHigh  string    `json:"user_high"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Other returns the friend's id from the perspective of userID.
func (f Friendship) Other(userID string) string {
	if f.UserLow == userID {
		return f.UserHigh
	}
	return f.UserLow
}

// NormalizePair orders two user ids into the (low, high) form used by
// friendship rows.
func NormalizePair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// FriendRequest is a directed relation created by the sender and answered by
// the recipient. Pending requests are mutually exclusive per unordered pair,
// enforced remotely.
type FriendRequest struct {
	ID          string     `json:"id"`
	FromUserID  string     `json:"from_user_id"`
	ToUserID    string     `json:"to_user_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// Pending reports whether the request still awaits a response.
func (r FriendRequest) Pending() bool {
	return r.Status == StatusPending
}

// Involves reports whether the request connects users a and b in either
// direction.
func (r FriendRequest) Involves(a, b string) bool {
	return (r.FromUserID == a && r.ToUserID == b) || (r.FromUserID == b && r.ToUserID == a)
}
