package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/state"
)

// SendMessage shows draft immediately as a temporary message and asks the
// backend to create it. On success the temporary message is swapped for
// the confirmed one. On failure it stays in the store flagged with an error
// so it can be resent.
func (e *Engine) SendMessage(ctx context.Context, draft *sidesync.Message) (*sidesync.Message, error) {
	m := *draft
	m.ID = 0
	if m.TempID == "" {
		m.TempID = uuid.New().String()
	}
	m.Creator = e.creds.UserID()
	m.Mentions = sidesync.ExtractMentions(m.Content)
	if m.Created.IsZero() {
		m.Created = e.cfg.Now()
	}

	e.store.Update(func(tx *state.Tx) { tx.InsertTemporary(&m) })
	return e.create(ctx, &m)
}

// ErrSendInProgress is returned when a resend is asked for a message whose
// first attempt has not failed yet.
var ErrSendInProgress = errors.New("message is still being sent")

// ResendMessage retries a message whose creation failed. Only a message
// flagged with an error can be resent, so one message is never created
// twice.
func (e *Engine) ResendMessage(ctx context.Context, tempID string) (*sidesync.Message, error) {
	var (
		m        *sidesync.Message
		known    bool
		inFlight bool
	)
	e.store.Update(func(tx *state.Tx) {
		p, ok := tx.Pending(tempID)
		if !ok {
			return
		}
		known = true
		if !p.HasError {
			inFlight = true
			return
		}
		p.HasError = false
		tx.InsertTemporary(p)
		m = p
	})

	switch {
	case !known:
		return nil, errors.Wrapf(sidesync.ErrUnknownMessage, "resending %s", tempID)
	case inFlight:
		return nil, errors.Wrapf(ErrSendInProgress, "resending %s", tempID)
	}
	return e.create(ctx, m)
}

func (e *Engine) create(ctx context.Context, m *sidesync.Message) (*sidesync.Message, error) {
	confirmed, err := e.svc.Messages.CreateMessage(ctx, m)
	if err != nil {
		e.store.Update(func(tx *state.Tx) { tx.FailTemporary(m.TempID) })
		e.log.WithError(err).WithField("temp_id", m.TempID).Error("sending message")
		return nil, errors.Wrap(err, "sending message")
	}
	if confirmed.TempID == "" {
		confirmed.TempID = m.TempID
	}

	e.store.Update(func(tx *state.Tx) { tx.ConfirmTemporary(m.TempID, confirmed) })
	return confirmed, nil
}

// EditMessage shows the new content at once and replaces it with the
// backend's version. If the backend refuses the edit the previous content
// is restored.
func (e *Engine) EditMessage(ctx context.Context, id int64, content string) (*sidesync.Message, error) {
	prev, ok := e.store.Message(id)
	if !ok {
		return nil, errors.Wrapf(sidesync.ErrUnknownMessage, "editing %d", id)
	}

	overlay := *prev
	overlay.Content = content
	overlay.Mentions = sidesync.ExtractMentions(content)
	e.store.Update(func(tx *state.Tx) { tx.OverlayMessage(&overlay) })

	updated, err := e.svc.Messages.UpdateMessage(ctx, &overlay)
	if err != nil {
		e.store.Update(func(tx *state.Tx) { tx.UpsertMessage(prev) })
		return nil, errors.Wrapf(err, "editing message %d", id)
	}

	e.store.Update(func(tx *state.Tx) { tx.UpsertMessage(updated) })
	return updated, nil
}

// DeleteMessage deletes a message on the backend, then locally.
func (e *Engine) DeleteMessage(ctx context.Context, id int64) error {
	if err := e.svc.Messages.DeleteMessage(ctx, id); err != nil {
		return errors.Wrapf(err, "deleting message %d", id)
	}
	e.store.Update(func(tx *state.Tx) { tx.DeleteMessage(id) })
	return nil
}

// SignalRead reports that m was seen in a conversation of type ct.
func (e *Engine) SignalRead(m *sidesync.Message, ct sidesync.ConversationType) {
	e.reads.Signal(m, ct)
}
