package models

// ChatRoomStatus is the lifecycle state of a room.
type ChatRoomStatus string

const (
	RoomOpen   ChatRoomStatus = "open"
	RoomClosed ChatRoomStatus = "closed"
)

// ChatRoom is a chat session between two wallet addresses, stored as a
// ledger entity with a 7-day TTL.
type ChatRoom struct {
	RoomKey      string         `json:"roomKey"`
	ParticipantA string         `json:"participantA"`
	ParticipantB string         `json:"participantB"`
	Status       ChatRoomStatus `json:"status"`
}

// ChatInviteStatus is the lifecycle state of an invite.
type ChatInviteStatus string

const (
	InvitePending  ChatInviteStatus = "pending"
	InviteAccepted ChatInviteStatus = "accepted"
	InviteRejected ChatInviteStatus = "rejected"
)

// ChatInvite is a discoverable pointer inviting `To` into a room.
// EntityKey is the ledger key the recipient uses to dismiss it.
type ChatInvite struct {
	EntityKey string           `json:"entityKey"`
	RoomKey   string           `json:"roomKey"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Status    ChatInviteStatus `json:"status"`
	Note      string           `json:"note,omitempty"`
	CreatedAt int64            `json:"createdAt,omitempty"` // epoch ms
}

// ChatMessage is a single room message. ID derives from roomKey and
// sentAt; two messages in the same room with the same sentAt collide.
type ChatMessage struct {
	ID      string `json:"id"`
	RoomKey string `json:"roomKey"`
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Text    string `json:"text"`
	SentAt  int64  `json:"sentAt"` // epoch ms
}
