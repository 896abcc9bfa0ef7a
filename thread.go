package sidesync

// ThreadDetail is a message that was replied to and its replies, oldest
// reply first.
type ThreadDetail struct {
	Root         *Message   `json:"root"`
	Replies      []*Message `json:"replies"`
	Participants []int64    `json:"participants"`
	Unread       int        `json:"unread"`
}
