// Package relay multiplexes WebSocket connections to the Nostr relays a
// session talks to: one connection per relay URL, REQ/CLOSE/EVENT
// outbound, EVENT/EOSE/OK/NOTICE inbound ("Wire — relays").
//
// Built on github.com/gorilla/websocket for the transport.
// Subscription ids use github.com/google/uuid.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// Filter is a Nostr REQ filter.
type Filter struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Since   *int64              `json:"since,omitempty"`
	Until   *int64              `json:"until,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Tags    map[string][]string `json:"-"`
}

// MarshalJSON flattens Tags into the relay convention of "#x": [...] keys
// alongside the named fields.
func (f Filter) MarshalJSON() ([]byte, error) {
	raw := map[string]any{}
	if len(f.IDs) > 0 {
		raw["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		raw["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		raw["kinds"] = f.Kinds
	}
	if f.Since != nil {
		raw["since"] = *f.Since
	}
	if f.Until != nil {
		raw["until"] = *f.Until
	}
	if f.Limit > 0 {
		raw["limit"] = f.Limit
	}
	for k, v := range f.Tags {
		raw["#"+k] = v
	}
	return json.Marshal(raw)
}

// wireEvent is the JSON-over-the-wire shape of api.Event; api.Event
// itself stays free of json tags since pkg/event's canonical encoder is
// the source of truth for id computation.
type wireEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func toWire(ev api.Event) wireEvent {
	tags := make([][]string, len(ev.Tags))
	for i, t := range ev.Tags {
		tags[i] = []string(t)
	}
	return wireEvent{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: ev.CreatedAt,
		Kind:      int(ev.Kind),
		Tags:      tags,
		Content:   ev.Content,
		Sig:       ev.Sig,
	}
}

func fromWire(w wireEvent) api.Event {
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
	}
}

// encodeREQ builds ["REQ", sub_id, filter...].
func encodeREQ(subID string, filters []Filter) ([]byte, error) {
	arr := make([]any, 0, len(filters)+2)
	arr = append(arr, "REQ", subID)
	for _, f := range filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

// encodeCLOSE builds ["CLOSE", sub_id].
func encodeCLOSE(subID string) ([]byte, error) {
	return json.Marshal([]any{"CLOSE", subID})
}

// encodeEVENT builds ["EVENT", event].
func encodeEVENT(ev api.Event) ([]byte, error) {
	return json.Marshal([]any{"EVENT", toWire(ev)})
}

// InboundKind classifies a decoded relay->client message.
type InboundKind int

const (
	InboundEvent InboundKind = iota
	InboundEOSE
	InboundOK
	InboundNotice
	InboundUnknown
)

// Inbound is a decoded relay->client message.
type Inbound struct {
	Kind     InboundKind
	SubID    string
	Event    api.Event
	OKEventID string
	Accepted bool
	Message  string
}

// decodeInbound parses one JSON array frame from a relay.
func decodeInbound(raw []byte) (Inbound, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
		return Inbound{}, fmt.Errorf("relay: malformed frame: %w", err)
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return Inbound{}, fmt.Errorf("relay: malformed frame label: %w", err)
	}
	switch label {
	case "EVENT":
		if len(frame) != 3 {
			return Inbound{}, fmt.Errorf("relay: EVENT frame wants 3 elements, got %d", len(frame))
		}
		var subID string
		var w wireEvent
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return Inbound{}, err
		}
		if err := json.Unmarshal(frame[2], &w); err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: InboundEvent, SubID: subID, Event: fromWire(w)}, nil
	case "EOSE":
		if len(frame) != 2 {
			return Inbound{}, fmt.Errorf("relay: EOSE frame wants 2 elements, got %d", len(frame))
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: InboundEOSE, SubID: subID}, nil
	case "OK":
		if len(frame) != 4 {
			return Inbound{}, fmt.Errorf("relay: OK frame wants 4 elements, got %d", len(frame))
		}
		var id, msg string
		var accepted bool
		if err := json.Unmarshal(frame[1], &id); err != nil {
			return Inbound{}, err
		}
		if err := json.Unmarshal(frame[2], &accepted); err != nil {
			return Inbound{}, err
		}
		if err := json.Unmarshal(frame[3], &msg); err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: InboundOK, OKEventID: id, Accepted: accepted, Message: msg}, nil
	case "NOTICE":
		if len(frame) != 2 {
			return Inbound{}, fmt.Errorf("relay: NOTICE frame wants 2 elements, got %d", len(frame))
		}
		var msg string
		if err := json.Unmarshal(frame[1], &msg); err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: InboundNotice, Message: msg}, nil
	default:
		return Inbound{Kind: InboundUnknown}, nil
	}
}
