package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient("test-token", ts.URL)
}

func TestFetchDeal_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/deals/123", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.RawQuery, "dealname")
		assert.Contains(t, r.URL.RawQuery, "closedate")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Record{
			ID:         "123",
			Properties: map[string]string{"dealname": "Acme", "amount": "500"},
		})
	})

	rec, err := client.FetchDeal(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", rec.ID)
	assert.Equal(t, "Acme", rec.Properties["dealname"])
}

func TestFetchDeal_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchDeal(context.Background(), "999")
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "deal", fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchConversation_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/v3/conversations/threads/555/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []Message{
				{Type: "COMMENT", Text: "internal note"},
				{Type: "MESSAGE", Direction: "INCOMING", Subject: "Pricing", Text: "How much?"},
				{Type: "MESSAGE", Direction: "OUTGOING", Text: "Earlier reply"},
			},
		})
	})

	thread, err := client.FetchConversation(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, "555", thread.ConversationID)
	require.Len(t, thread.Messages, 3)

	latest := thread.LatestMessage()
	require.NotNil(t, latest)
	assert.Equal(t, "Pricing", latest.Subject)
	assert.True(t, latest.Inbound())
}

func TestFetchConversation_TransportError(t *testing.T) {
	client := NewClient("tok", "http://127.0.0.1:0")
	_, err := client.FetchConversation(context.Background(), "1")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "conversation", fe.Kind)
	assert.Zero(t, fe.StatusCode)
}

func TestFetchAssociations_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v4/objects/conversation/555/associations/deal", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"toObjectId":111,"associationTypes":[{"label":"conversation_to_deal"}]},
			{"toObjectId":222,"associationTypes":[{"label":"conversation_to_ticket"}]},
			{"toObjectId":333}
		]}`))
	})

	assocs := client.FetchAssociations(context.Background(), "555")
	require.Len(t, assocs, 3)
	assert.Equal(t, Association{Type: "conversation_to_deal", ID: "111"}, assocs[0])
	assert.Equal(t, "conversation_to_ticket", assocs[1].Type)
	// Missing label defaults to the deal relation.
	assert.Equal(t, Association{Type: "conversation_to_deal", ID: "333"}, assocs[2])
}

func TestFetchAssociations_FailureDegradesToEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.Empty(t, client.FetchAssociations(context.Background(), "555"))
}

func TestCreateNote_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/engagements/v1/engagements", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req engagementRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "NOTE", req.Engagement.Type)
		assert.Equal(t, "Drafted follow-up", req.Metadata.Body)
		assert.Equal(t, []int64{111}, req.Associations.DealIDs)
		assert.Equal(t, []int64{555}, req.Associations.EmailIDs)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"engagement":{"id":9001}}`))
	})

	id, err := client.CreateNote(context.Background(), &NotePayload{
		Body:            "Drafted follow-up",
		DealIDs:         []string{"111"},
		ConversationIDs: []string{"555"},
	})
	require.NoError(t, err)
	assert.Equal(t, "9001", id)
}

func TestCreateNote_Failure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateNote(context.Background(), &NotePayload{Body: "x", DealIDs: []string{"1"}})
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, http.StatusBadGateway, we.StatusCode)
}

func TestThread_LatestMessage_Empty(t *testing.T) {
	thread := &Thread{ConversationID: "1"}
	assert.Nil(t, thread.LatestMessage())

	thread.Messages = []Message{{Type: "COMMENT"}}
	assert.Nil(t, thread.LatestMessage())
}

func TestMessage_Inbound(t *testing.T) {
	assert.True(t, (&Message{Direction: "INCOMING"}).Inbound())
	assert.True(t, (&Message{Direction: "visitor"}).Inbound())
	assert.False(t, (&Message{Direction: "OUTGOING"}).Inbound())
	assert.False(t, (&Message{Direction: "SYSTEM"}).Inbound())
	assert.False(t, (&Message{}).Inbound())
}
