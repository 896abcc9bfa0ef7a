package sidesync

import "context"

// TeamService fetches the teams of the authenticated user.
type TeamService interface {
	ListTeams(ctx context.Context) ([]*Team, error)
	TeamNotifications(ctx context.Context) ([]*TeamNotification, error)
}

// ConversationService fetches conversations. ReconnectConversations
// receives the last known change of every local conversation and answers
// with what changed or disappeared since.
type ConversationService interface {
	ListConversations(ctx context.Context, teamID int64) ([]*Conversation, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	ReconnectConversations(ctx context.Context, teamID int64, stamps []Stamp) (*ConversationDelta, error)
}

// MessageService creates, edits and lists messages.
type MessageService interface {
	ListMessages(ctx context.Context, q MessageQuery) (*MessagePage, error)
	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	UpdateMessage(ctx context.Context, m *Message) (*Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	ReconnectMessages(ctx context.Context, stamps []Stamp) (*MessageDelta, error)
}

// ThreadService fetches threads and marks them read.
type ThreadService interface {
	GetThread(ctx context.Context, messageID int64) (*ThreadDetail, error)
	ListThreads(ctx context.Context, teamID int64) ([]*ThreadDetail, error)
	ThreadNotification(ctx context.Context, teamID int64) (*ThreadNotification, error)
	MarkThreadRead(ctx context.Context, threadID, messageID int64) (*ThreadNotification, error)
}

// NotificationService fetches read state and marks conversations read.
type NotificationService interface {
	Summary(ctx context.Context) (*Summary, error)
	ReconnectNotifications(ctx context.Context, stamps []Stamp) ([]*ChannelNotification, error)
	MarkChannelRead(ctx context.Context, channelID, messageID int64) (*ChannelNotification, error)
	MarkDMGRead(ctx context.Context, channelID, messageID int64) (*ChannelNotification, error)
}

// UserService fetches presence and registers push devices.
type UserService interface {
	Presence(ctx context.Context, userIDs []int64) ([]*Presence, error)
	RegisterDevice(ctx context.Context, token string) error
}

// Credentials supplies the authenticated user and the header every request
// carries. Refreshing the token is the provider's job.
type Credentials interface {
	UserID() int64
	AuthHeader() string
}

// Network receives the degraded-connectivity indicator.
type Network interface {
	SetDegraded(degraded bool)
}
