package sidesync

// PrimaryView is what the main pane shows.
type PrimaryView int

// primary views
const (
	ConversationPlaceholder PrimaryView = iota
	ConversationDetail
	CreateConversation
)

// SecondaryView is what the side pane shows.
type SecondaryView int

// secondary views
const (
	SecondaryNone SecondaryView = iota
	ConversationInfo
	ThreadList
	ThreadDetailView
	SavedMessageList
)

// View is the process-wide navigation state. Transitions replace it.
type View struct {
	Primary                PrimaryView
	Secondary              SecondaryView
	SelectedTeam           int64
	SelectedConversationID int64
	SelectedThread         int64
}
