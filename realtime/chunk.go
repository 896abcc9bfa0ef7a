package realtime

import (
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Split breaks an envelope whose data is larger than max bytes into chunked
// envelopes sharing one group id. Envelopes that fit are returned as is.
func Split(env Envelope, max int) ([]Envelope, error) {
	if max <= 0 || len(env.Data) <= max {
		return []Envelope{env}, nil
	}

	group := uuid.New().String()
	payload := string(env.Data)
	var out []Envelope
	for index := 0; len(payload) > 0; index++ {
		n := max
		if n > len(payload) {
			n = len(payload)
		}
		for n < len(payload) && n > 1 && !utf8.RuneStart(payload[n]) {
			n--
		}
		part := Chunk{
			ID:    group,
			Index: index,
			Chunk: payload[:n],
			Final: n == len(payload),
		}
		payload = payload[n:]

		data, err := json.Marshal(part)
		if err != nil {
			return nil, errors.Wrap(err, "encoding chunk")
		}
		out = append(out, Envelope{
			Event:   ChunkedPrefix + env.Event,
			Channel: env.Channel,
			Data:    data,
		})
	}
	return out, nil
}
