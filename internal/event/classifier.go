// Package event classifies inbound CRM webhook payloads into the events the
// relay acts on. A payload is an ordered JSON array of descriptors; each
// descriptor is matched against a fixed per-route rule table and either
// yields an Event or is silently skipped.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ObjectType identifies the kind of CRM object an event refers to.
type ObjectType string

const (
	ObjectDeal         ObjectType = "deal"
	ObjectConversation ObjectType = "conversation"
)

// Route identifies the inbound webhook route a payload arrived on.
type Route string

const (
	RouteDealCreated Route = "deal-created"
	RouteEmailReply  Route = "email-reply"
)

// ErrInvalidPayload is returned when the body is absent, not an array, or empty.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Event is one matched webhook event. Transient; lives for one dispatch cycle.
type Event struct {
	ObjectType ObjectType
	Kind       string
	ObjectID   string
}

// descriptor mirrors the fields of a HubSpot webhook event descriptor the
// rule table consults. ObjectID and EventID arrive as numbers or strings
// depending on the subscription version.
type descriptor struct {
	SubscriptionType string     `json:"subscriptionType"`
	ObjectType       string     `json:"objectType"`
	Object           string     `json:"object"`
	EventID          flexString `json:"eventId"`
	ObjectID         flexString `json:"objectId"`
}

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// rule is one row of the classification table.
type rule struct {
	route   Route
	match   func(d *descriptor) bool
	produce func(d *descriptor) Event
}

var rules = []rule{
	{
		route: RouteDealCreated,
		match: func(d *descriptor) bool {
			return d.SubscriptionType == "deal.creation"
		},
		produce: func(d *descriptor) Event {
			return Event{ObjectType: ObjectDeal, Kind: "creation", ObjectID: string(d.ObjectID)}
		},
	},
	{
		route: RouteEmailReply,
		match: func(d *descriptor) bool {
			obj := d.Object
			if obj == "" {
				obj = d.ObjectType
			}
			return obj == "conversation" && string(d.EventID) == "created"
		},
		produce: func(d *descriptor) Event {
			return Event{ObjectType: ObjectConversation, Kind: "created", ObjectID: string(d.ObjectID)}
		},
	},
}

// Classify validates the body and returns the matched events in payload
// order. Both routes enforce the same contract: the body must be a non-empty
// JSON array. Descriptors that do not match the route's rule (or do not
// decode) are skipped, not errors.
func Classify(route Route, body []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ErrInvalidPayload
	}
	if len(raw) == 0 {
		return nil, ErrInvalidPayload
	}

	var events []Event
	for _, item := range raw {
		var d descriptor
		if err := json.Unmarshal(item, &d); err != nil {
			continue
		}
		for _, r := range rules {
			if r.route != route || !r.match(&d) {
				continue
			}
			ev := r.produce(&d)
			if ev.ObjectID == "" {
				break
			}
			events = append(events, ev)
			break
		}
	}
	return events, nil
}
