package realtime

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultChunkTTL bounds how long an incomplete chunk group is kept.
const DefaultChunkTTL = 30 * time.Second

type chunkGroup struct {
	parts    map[int]string
	final    bool
	maxIndex int
	started  time.Time
}

// Reassembler buffers chunk fragments by group until every fragment of a
// group has arrived. Groups that stay incomplete longer than the TTL are
// dropped.
type Reassembler struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	groups map[string]*chunkGroup
	log    logrus.FieldLogger
}

// NewReassembler returns a Reassembler that drops incomplete groups after
// ttl. A zero ttl uses DefaultChunkTTL.
func NewReassembler(ttl time.Duration, log logrus.FieldLogger) *Reassembler {
	if ttl <= 0 {
		ttl = DefaultChunkTTL
	}
	if log == nil {
		log = logrus.WithField("component", "reassembler")
	}
	return &Reassembler{
		ttl:    ttl,
		now:    time.Now,
		groups: make(map[string]*chunkGroup),
		log:    log,
	}
}

// Add buffers one fragment. When the group is complete it returns the
// fragments joined in index order and forgets the group.
func (r *Reassembler) Add(c Chunk) ([]byte, bool, error) {
	if c.ID == "" {
		return nil, false, errors.New("chunk without group id")
	}
	if c.Index < 0 {
		return nil, false, errors.Errorf("chunk %s has negative index %d", c.ID, c.Index)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	g, ok := r.groups[c.ID]
	if !ok {
		g = &chunkGroup{parts: make(map[int]string), started: now}
		r.groups[c.ID] = g
	}
	g.parts[c.Index] = c.Chunk
	if c.Index > g.maxIndex {
		g.maxIndex = c.Index
	}
	if c.Final {
		g.final = true
	}

	if !g.final || len(g.parts) != g.maxIndex+1 {
		return nil, false, nil
	}

	delete(r.groups, c.ID)
	indexes := make([]int, 0, len(g.parts))
	for i := range g.parts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var b strings.Builder
	for _, i := range indexes {
		b.WriteString(g.parts[i])
	}
	return []byte(b.String()), true, nil
}

// Drop forgets a group, used when its payload turned out to be malformed.
func (r *Reassembler) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
}

// Sweep drops every group older than the TTL and returns how many were
// dropped.
func (r *Reassembler) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweep(r.now())
}

// Pending returns the number of incomplete groups.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func (r *Reassembler) sweep(now time.Time) int {
	var dropped int
	for id, g := range r.groups {
		if now.Sub(g.started) < r.ttl {
			continue
		}
		delete(r.groups, id)
		dropped++
		r.log.WithFields(logrus.Fields{
			"event":    "chunk_group_expired",
			"group":    id,
			"received": len(g.parts),
			"final":    g.final,
		}).Warn("dropping incomplete chunk group")
	}
	return dropped
}
