package mocks_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/mocks"
)

func TestBackendServesSeededTeamNotes(t *testing.T) {
	b := mocks.NewBackend()
	b.TeamNotes[1] = &sidesync.TeamNotification{TeamID: 1, MentionCount: 2}

	notes, err := b.TeamNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, 2, notes[0].MentionCount)

	// callers get copies
	notes[0].MentionCount = 5
	assert.Equal(t, 2, b.TeamNotes[1].MentionCount)
	assert.Len(t, b.Calls("TeamNotifications"), 1)
}
