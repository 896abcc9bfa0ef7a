package realtime_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmitchel/sidesync/realtime"
)

func fragments(id string, parts ...string) []realtime.Chunk {
	chunks := make([]realtime.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = realtime.Chunk{ID: id, Index: i, Chunk: p}
	}
	return chunks
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			next := make([]int, 0, n)
			next = append(next, p[:i]...)
			next = append(next, n-1)
			next = append(next, p[i:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestReassembleAnyOrder(t *testing.T) {
	parts := []string{`{"id":4`, `2,"chan`, `nel":7,`, `"content":"hi"}`}

	for _, order := range permutations(len(parts)) {
		r := realtime.NewReassembler(time.Minute, nil)
		chunks := fragments("group", parts...)

		var (
			completions int
			payload     []byte
		)
		for n, i := range order {
			c := chunks[i]
			c.Final = n == len(order)-1
			out, done, err := r.Add(c)
			require.NoError(t, err)
			if done {
				completions++
				payload = out
			}
		}

		assert.Equal(t, 1, completions, "order %v", order)
		assert.JSONEq(t, `{"id":42,"channel":7,"content":"hi"}`, string(payload), "order %v", order)
		assert.Equal(t, 0, r.Pending())
	}
}

func TestReassembleKeepsGroupsApart(t *testing.T) {
	r := realtime.NewReassembler(time.Minute, nil)

	_, done, err := r.Add(realtime.Chunk{ID: "a", Index: 0, Chunk: "[1,"})
	require.NoError(t, err)
	assert.False(t, done)
	_, done, err = r.Add(realtime.Chunk{ID: "b", Index: 1, Chunk: "3]", Final: true})
	require.NoError(t, err)
	assert.False(t, done)

	out, done, err := r.Add(realtime.Chunk{ID: "a", Index: 1, Chunk: "2]", Final: true})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "[1,2]", string(out))
	assert.Equal(t, 1, r.Pending())
}

func TestReassembleRejectsBadChunks(t *testing.T) {
	r := realtime.NewReassembler(time.Minute, nil)

	_, _, err := r.Add(realtime.Chunk{Index: 0, Chunk: "x", Final: true})
	assert.Error(t, err)
	_, _, err = r.Add(realtime.Chunk{ID: "a", Index: -1, Chunk: "x"})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Pending())
}

func TestReassemblerExpiresIncompleteGroups(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := realtime.NewReassembler(10*time.Millisecond, logger)

	_, done, err := r.Add(realtime.Chunk{ID: "lost", Index: 0, Chunk: "{"})
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 1, r.Pending())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 0, r.Pending())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "chunk_group_expired", entry.Data["event"])
	assert.Equal(t, "lost", entry.Data["group"])
}
