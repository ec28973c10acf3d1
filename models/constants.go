package models

// Remote table names as exposed through the gateway.
const (
	ProfilesTable                = "profiles"
	FriendshipsTable             = "friendships"
	FriendRequestsTable          = "friend_requests"
	CompetitionsTable            = "competitions"
	CompetitionParticipantsTable = "competition_participants"
	CompetitionInvitesTable      = "competition_invites"
	MissionsTable                = "missions"
	UserActionsTable             = "user_actions"
	NotificationsTable           = "notifications"
)

// Statuses shared by friend requests and competition invites.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

// Competition invite policies.
const (
	InvitePolicyOwnerOnly  = "owner_only"
	InvitePolicyAllMembers = "all_members"
)

// Notification types created server-side as side effects of other mutations.
const (
	NotificationCompetitionInvite     = "competition_invite"
	NotificationFriendRequest         = "friend_request"
	NotificationFriendRequestAccepted = "friend_request_accepted"
)
