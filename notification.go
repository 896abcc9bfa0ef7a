package sidesync

// ChannelNotification is the read state of one conversation.
type ChannelNotification struct {
	ChannelID    int64 `json:"channel_id"`
	IsRead       bool  `json:"is_read"`
	MentionCount int   `json:"mention_count"`
}

// TeamNotification aggregates the read state of a team's channels.
type TeamNotification struct {
	TeamID        int64 `json:"team_id"`
	IsRead        bool  `json:"is_read"`
	MentionCount  int   `json:"mention_count"`
	UnreadThreads int   `json:"unread_threads"`
}

// ThreadNotification is the thread read state of a team. NewThreads counts
// threads that appeared since the thread list was last opened.
type ThreadNotification struct {
	TeamID        int64 `json:"team_id"`
	UnreadThreads int   `json:"unread_threads"`
	MentionCount  int   `json:"mention_count"`
	NewThreads    int   `json:"new_threads"`
}

// Summary is the notification state of the authenticated user.
type Summary struct {
	UnreadDMGs    int `json:"unread_dmgs"`
	MentionCount  int `json:"mention_count"`
	UnreadThreads int `json:"unread_threads"`
}
