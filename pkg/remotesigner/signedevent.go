package remotesigner

import (
	"encoding/json"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// signedEventJSON mirrors the full signed event a sign_event response
// carries as its result string.
type signedEventJSON struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func decodeSignedEventJSON(raw string) (api.Event, error) {
	var w signedEventJSON
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return api.Event{}, err
	}
	tags := make(api.Tags, len(w.Tags))
	for i, t := range w.Tags {
		tags[i] = api.Tag(t)
	}
	return api.Event{
		ID:        w.ID,
		PubKey:    w.PubKey,
		CreatedAt: w.CreatedAt,
		Kind:      api.EventKind(w.Kind),
		Tags:      tags,
		Content:   w.Content,
		Sig:       w.Sig,
	}, nil
}
