package models

import "time"

// Notification is created server-side as a side effect of other mutations
// (friend requests, invites). The recipient may mark it read; rows are never
// deleted.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// Read reports whether the recipient has marked the notification read.
func (n Notification) Read() bool {
	return n.ReadAt != nil
}
