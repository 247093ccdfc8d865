// Package crm is the HubSpot REST client: authenticated reads (records,
// thread messages, associations) and the one write the relay performs
// (note creation). Reads degrade gracefully where the data is enrichment;
// the note write never swallows failure.
package crm

import "strings"

// Deal properties requested on every deal fetch.
var DealProperties = []string{
	"dealname",
	"amount",
	"dealstage",
	"closedate",
	"pipeline",
	"dealtype",
	"description",
}

// AssociationConversationToDeal is the relation type linking a conversation
// to its deals; the reply pipeline acts only on these.
const AssociationConversationToDeal = "conversation_to_deal"

// Record is a read-only snapshot of a CRM object. Fetched per pipeline run,
// never cached.
type Record struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Association is a typed link from one CRM record to another.
type Association struct {
	Type string
	ID   string
}

// Message is one message in a conversation thread.
type Message struct {
	Type      string `json:"type"`
	Direction string `json:"direction"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
}

// Inbound reports whether the message came from the customer side.
func (m *Message) Inbound() bool {
	switch strings.ToLower(m.Direction) {
	case "incoming", "visitor":
		return true
	}
	return false
}

// Thread is the message list of a conversation, newest first as returned by
// the conversations API.
type Thread struct {
	ConversationID string
	Messages       []Message
}

// LatestMessage returns the most recent real message of the thread, skipping
// comments and system entries. Returns nil when the thread has none.
func (t *Thread) LatestMessage() *Message {
	for i := range t.Messages {
		if t.Messages[i].Type == "MESSAGE" {
			return &t.Messages[i]
		}
	}
	return nil
}

// NotePayload is the single write the relay performs: an AI-drafted note
// attached to one or more records. Constructed, sent once, discarded.
type NotePayload struct {
	Body            string
	DealIDs         []string
	ConversationIDs []string
}
