package realtime

import (
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Handler receives decoded events in arrival order.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }

// Dispatcher turns wire envelopes into typed events. Whole and chunked
// variants of the same event reach the handler the same way.
type Dispatcher struct {
	handler     Handler
	reassembler *Reassembler
	log         logrus.FieldLogger
}

// NewDispatcher returns a Dispatcher delivering to h.
func NewDispatcher(h Handler, r *Reassembler, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.WithField("component", "dispatcher")
	}
	if r == nil {
		r = NewReassembler(DefaultChunkTTL, log)
	}
	return &Dispatcher{handler: h, reassembler: r, log: log}
}

// Deliver processes one envelope. Malformed or unknown events are logged
// and dropped.
func (d *Dispatcher) Deliver(env Envelope) {
	if name, chunked := IsChunked(env.Event); chunked {
		d.deliverChunk(name, env)
		return
	}
	d.deliver(env.Event, env.Channel, env.Data)
}

// Sweep drops expired chunk groups.
func (d *Dispatcher) Sweep() int {
	return d.reassembler.Sweep()
}

func (d *Dispatcher) deliverChunk(name string, env Envelope) {
	var c Chunk
	if err := json.Unmarshal(env.Data, &c); err != nil {
		d.log.WithError(err).WithField("event", name).Error("malformed chunk")
		return
	}

	payload, complete, err := d.reassembler.Add(c)
	if err != nil {
		d.log.WithError(err).WithField("event", name).Error("rejected chunk")
		return
	}
	if !complete {
		return
	}
	if !json.Valid(payload) {
		d.log.WithFields(logrus.Fields{"event": name, "group": c.ID}).Error("chunk group does not hold valid json")
		return
	}
	d.deliver(name, env.Channel, payload)
}

func (d *Dispatcher) deliver(name, channel string, data []byte) {
	kind, ok := ParseKind(name)
	if !ok {
		d.log.WithField("event", name).Debug("ignoring unknown event")
		return
	}

	ev, err := Decode(kind, channel, data)
	if err != nil {
		d.log.WithError(err).WithField("event", name).Error("dropping malformed event")
		return
	}
	d.handler.HandleEvent(ev)
}
