package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/scribe/internal/activity"
	"github.com/dativo-io/scribe/internal/crm"
	"github.com/dativo-io/scribe/internal/event"
	"github.com/dativo-io/scribe/internal/llm"
)

// fakeCRM records calls in order and is safe for concurrent use.
type fakeCRM struct {
	mu    sync.Mutex
	calls []string

	deal      *crm.Record
	dealErr   error
	thread    *crm.Thread
	threadErr error
	assocs    []crm.Association
	notes     []*crm.NotePayload
	noteErr   map[string]error // deal id -> error
}

func (f *fakeCRM) FetchDeal(ctx context.Context, id string) (*crm.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "fetch_deal:"+id)
	if f.dealErr != nil {
		return nil, f.dealErr
	}
	return f.deal, nil
}

func (f *fakeCRM) FetchConversation(ctx context.Context, id string) (*crm.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "fetch_conversation:"+id)
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return f.thread, nil
}

func (f *fakeCRM) FetchAssociations(ctx context.Context, conversationID string) []crm.Association {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "fetch_associations:"+conversationID)
	return f.assocs
}

func (f *fakeCRM) CreateNote(ctx context.Context, payload *crm.NotePayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create_note")
	if len(payload.DealIDs) == 1 {
		if err, ok := f.noteErr[payload.DealIDs[0]]; ok {
			return "", err
		}
	}
	f.notes = append(f.notes, payload)
	return fmt.Sprintf("note-%d", len(f.notes)), nil
}

// countingProvider returns a distinct body per call.
type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.calls++
	return &llm.Response{Content: fmt.Sprintf("draft-%d", c.calls)}, nil
}

func newPipeline(t *testing.T, fc *fakeCRM, p llm.Provider) (*Pipeline, *activity.Log) {
	t.Helper()
	logStore := activity.NewLog()
	return New(Config{
		CRM:      fc,
		Provider: p,
		Activity: logStore,
		Model:    "test-model",
		Workers:  2,
	}), logStore
}

func dealEvent(id string) event.Event {
	return event.Event{ObjectType: event.ObjectDeal, Kind: "creation", ObjectID: id}
}

func convEvent(id string) event.Event {
	return event.Event{ObjectType: event.ObjectConversation, Kind: "created", ObjectID: id}
}

func TestDealCreated_HappyPath(t *testing.T) {
	fc := &fakeCRM{deal: &crm.Record{ID: "42", Properties: map[string]string{"dealname": "Acme"}}}
	provider := &countingProvider{}
	p, _ := newPipeline(t, fc, provider)

	require.NoError(t, p.Handle(context.Background(), dealEvent("42")))

	assert.Equal(t, []string{"fetch_deal:42", "create_note"}, fc.calls)
	assert.Equal(t, 1, provider.calls)
	require.Len(t, fc.notes, 1)
	assert.Equal(t, "draft-1", fc.notes[0].Body)
	assert.Equal(t, []string{"42"}, fc.notes[0].DealIDs)
	assert.Empty(t, fc.notes[0].ConversationIDs)
}

func TestDealCreated_FetchErrorAborts(t *testing.T) {
	fc := &fakeCRM{dealErr: &crm.FetchError{Kind: "deal", ID: "42", StatusCode: 500}}
	provider := &countingProvider{}
	p, logStore := newPipeline(t, fc, provider)

	err := p.Handle(context.Background(), dealEvent("42"))
	require.Error(t, err)
	assert.Equal(t, 0, provider.calls)
	assert.Empty(t, fc.notes)

	tail := logStore.Tail()
	require.NotEmpty(t, tail)
	assert.Equal(t, "deal fetch failed", tail[len(tail)-1].Message)
}

func TestDealCreated_GenerationErrorAborts(t *testing.T) {
	fc := &fakeCRM{deal: &crm.Record{ID: "42", Properties: map[string]string{}}}
	provider := &countingProvider{err: llm.ErrEmptyCompletion}
	p, _ := newPipeline(t, fc, provider)

	err := p.Handle(context.Background(), dealEvent("42"))
	require.ErrorIs(t, err, llm.ErrEmptyCompletion)
	assert.NotContains(t, fc.calls, "create_note")
}

func TestDealCreated_WriteErrorSurfacesWithActivity(t *testing.T) {
	fc := &fakeCRM{
		deal:    &crm.Record{ID: "42", Properties: map[string]string{}},
		noteErr: map[string]error{"42": &crm.WriteError{StatusCode: 502}},
	}
	provider := &countingProvider{}
	p, logStore := newPipeline(t, fc, provider)

	err := p.Handle(context.Background(), dealEvent("42"))
	var we *crm.WriteError
	require.True(t, errors.As(err, &we))

	tail := logStore.Tail()
	require.NotEmpty(t, tail)
	assert.Equal(t, "note write failed", tail[len(tail)-1].Message)
}

func TestDealCreated_DuplicateSuppressed(t *testing.T) {
	fc := &fakeCRM{deal: &crm.Record{ID: "42", Properties: map[string]string{"dealname": "Acme"}}}
	provider := &countingProvider{}
	p, _ := newPipeline(t, fc, provider)

	require.NoError(t, p.Handle(context.Background(), dealEvent("42")))
	require.NoError(t, p.Handle(context.Background(), dealEvent("42")))

	assert.Len(t, fc.notes, 1)
	assert.Equal(t, 1, provider.calls)
}

func TestConversation_OutgoingIsNoOp(t *testing.T) {
	fc := &fakeCRM{thread: &crm.Thread{
		ConversationID: "555",
		Messages:       []crm.Message{{Type: "MESSAGE", Direction: "OUTGOING", Text: "our reply"}},
	}}
	provider := &countingProvider{}
	p, _ := newPipeline(t, fc, provider)

	require.NoError(t, p.Handle(context.Background(), convEvent("555")))
	assert.Equal(t, 0, provider.calls)
	assert.Empty(t, fc.notes)
	assert.NotContains(t, fc.calls, "fetch_associations:555")
}

func TestConversation_EmptyThreadIsNoOp(t *testing.T) {
	fc := &fakeCRM{thread: &crm.Thread{ConversationID: "555"}}
	provider := &countingProvider{}
	p, _ := newPipeline(t, fc, provider)

	require.NoError(t, p.Handle(context.Background(), convEvent("555")))
	assert.Empty(t, fc.notes)
}

func TestConversation_NoAssociatedDealsIsNoOp(t *testing.T) {
	fc := &fakeCRM{
		thread: &crm.Thread{
			ConversationID: "555",
			Messages:       []crm.Message{{Type: "MESSAGE", Direction: "INCOMING", Text: "hi"}},
		},
		assocs: []crm.Association{{Type: "conversation_to_ticket", ID: "9"}},
	}
	provider := &countingProvider{}
	p, _ := newPipeline(t, fc, provider)

	require.NoError(t, p.Handle(context.Background(), convEvent("555")))
	assert.Equal(t, 0, provider.calls)
	assert.Empty(t, fc.notes)
}

func TestConversation_TwoDealsTwoDistinctNotes(t *testing.T) {
	fc := &fakeCRM{
		thread: &crm.Thread{
			ConversationID: "555",
			Messages: []crm.Message{{
				Type: "MESSAGE", Direction: "INCOMING",
				Subject: "Pricing", Text: "How much for 50 seats?",
			}},
		},
		assocs: []crm.Association{
			{Type: crm.AssociationConversationToDeal, ID: "111"},
			{Type: crm.AssociationConversationToDeal, ID: "222"},
		},
	}
	provider := &countingProvider{}
	p, _ := newPipeline(t, fc, provider)

	require.NoError(t, p.Handle(context.Background(), convEvent("555")))

	assert.Equal(t, 2, provider.calls)
	require.Len(t, fc.notes, 2)
	assert.NotEqual(t, fc.notes[0].Body, fc.notes[1].Body)

	seen := map[string]bool{}
	for _, n := range fc.notes {
		require.Len(t, n.DealIDs, 1)
		seen[n.DealIDs[0]] = true
		assert.Equal(t, []string{"555"}, n.ConversationIDs)
	}
	assert.True(t, seen["111"])
	assert.True(t, seen["222"])
}

func TestConversation_OneDealFailureDoesNotBlockOther(t *testing.T) {
	fc := &fakeCRM{
		thread: &crm.Thread{
			ConversationID: "555",
			Messages:       []crm.Message{{Type: "MESSAGE", Direction: "INCOMING", Text: "hi"}},
		},
		assocs: []crm.Association{
			{Type: crm.AssociationConversationToDeal, ID: "111"},
			{Type: crm.AssociationConversationToDeal, ID: "222"},
		},
		noteErr: map[string]error{"111": &crm.WriteError{StatusCode: 500}},
	}
	provider := &countingProvider{}
	p, _ := newPipeline(t, fc, provider)

	err := p.Handle(context.Background(), convEvent("555"))
	require.Error(t, err)

	// Deal 222's note still landed.
	require.Len(t, fc.notes, 1)
	assert.Equal(t, []string{"222"}, fc.notes[0].DealIDs)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("42", "creation", "prompt")
	b := Fingerprint("42", "creation", "prompt")
	c := Fingerprint("42", "creation", "other")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, Fingerprint("1", "ab", "c"), Fingerprint("1a", "b", "c"))
}

func TestDedupe_SeenAfterMark(t *testing.T) {
	d := NewDedupe()
	fp := Fingerprint("1", "creation", "p")
	assert.False(t, d.Seen(fp))
	d.Mark(fp)
	assert.True(t, d.Seen(fp))
}
