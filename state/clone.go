package state

import "github.com/tmitchel/sidesync"

func cloneTeam(t *sidesync.Team) *sidesync.Team {
	c := *t
	c.Admins = copyIDs(t.Admins)
	c.Members = copyIDs(t.Members)
	return &c
}

func cloneConversation(in *sidesync.Conversation) *sidesync.Conversation {
	c := *in
	c.Members = copyIDs(in.Members)
	c.Admins = copyIDs(in.Admins)
	if in.IsRead != nil {
		c.IsRead = sidesync.Bool(*in.IsRead)
	}
	if in.MentionCount != nil {
		c.MentionCount = sidesync.Int(*in.MentionCount)
	}
	return &c
}

func cloneMessage(m *sidesync.Message) *sidesync.Message {
	c := *m
	c.Mentions = copyIDs(m.Mentions)
	if m.Reactions != nil {
		c.Reactions = make([]sidesync.Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			r.Users = copyIDs(r.Users)
			c.Reactions[i] = r
		}
	}
	return &c
}

func cloneThread(d *sidesync.ThreadDetail) *sidesync.ThreadDetail {
	c := *d
	if d.Root != nil {
		c.Root = cloneMessage(d.Root)
	}
	c.Replies = make([]*sidesync.Message, len(d.Replies))
	for i, r := range d.Replies {
		c.Replies[i] = cloneMessage(r)
	}
	c.Participants = copyIDs(d.Participants)
	return &c
}
