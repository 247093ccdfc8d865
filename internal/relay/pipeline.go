// Package relay runs the reply pipeline: for each classified webhook event,
// fetch the CRM record, draft a reply or follow-up with the text generator,
// and write the draft back as a note. Two variants share the shape: deal
// creation and inbound conversation messages.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/scribe/internal/activity"
	"github.com/dativo-io/scribe/internal/crm"
	"github.com/dativo-io/scribe/internal/event"
	"github.com/dativo-io/scribe/internal/llm"
	scribeotel "github.com/dativo-io/scribe/internal/otel"
	"github.com/dativo-io/scribe/internal/prompt"
)

var tracer = scribeotel.Tracer("github.com/dativo-io/scribe/internal/relay")

// CRM is the subset of the HubSpot client the pipeline needs.
type CRM interface {
	FetchDeal(ctx context.Context, id string) (*crm.Record, error)
	FetchConversation(ctx context.Context, id string) (*crm.Thread, error)
	FetchAssociations(ctx context.Context, conversationID string) []crm.Association
	CreateNote(ctx context.Context, payload *crm.NotePayload) (string, error)
}

// Config holds the pipeline's collaborators and knobs.
type Config struct {
	CRM      CRM
	Provider llm.Provider
	Prompts  *prompt.Library
	Activity *activity.Log
	Model    string
	// Workers bounds the per-deal fan-out in the conversation variant.
	Workers int
}

// Pipeline orchestrates one pipeline run per matched event. It holds no
// per-run state; the dedupe index and activity log are the only fields
// mutated across runs.
type Pipeline struct {
	crm      CRM
	provider llm.Provider
	prompts  *prompt.Library
	activity *activity.Log
	dedupe   *Dedupe
	model    string
	workers  int
}

// New builds a pipeline. Workers defaults to 1 when unset.
func New(cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = prompt.Default()
	}
	return &Pipeline{
		crm:      cfg.CRM,
		provider: cfg.Provider,
		prompts:  prompts,
		activity: cfg.Activity,
		dedupe:   NewDedupe(),
		model:    cfg.Model,
		workers:  workers,
	}
}

// Handle runs the pipeline variant matching the event. A nil return covers
// both success and the intentional no-op outcomes (outbound message, no
// messages, no associated deals, suppressed duplicate).
func (p *Pipeline) Handle(ctx context.Context, ev event.Event) error {
	ctx, span := tracer.Start(ctx, "relay.handle",
		trace.WithAttributes(
			attribute.String("event.object_type", string(ev.ObjectType)),
			attribute.String("event.object_id", ev.ObjectID),
		))
	defer span.End()

	var err error
	switch ev.ObjectType {
	case event.ObjectDeal:
		err = p.handleDealCreated(ctx, ev)
	case event.ObjectConversation:
		err = p.handleConversationCreated(ctx, ev)
	default:
		err = fmt.Errorf("unhandled object type %q", ev.ObjectType)
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// handleDealCreated: fetch deal -> draft follow-up -> write note.
func (p *Pipeline) handleDealCreated(ctx context.Context, ev event.Event) error {
	rec, err := p.crm.FetchDeal(ctx, ev.ObjectID)
	if err != nil {
		p.record(ctx, "deal fetch failed", map[string]interface{}{"deal_id": ev.ObjectID, "error": err.Error()})
		return err
	}

	promptText, err := p.prompts.DealFollowUp(rec.Properties)
	if err != nil {
		return err
	}

	fp := Fingerprint(ev.ObjectID, ev.Kind, promptText)
	if p.dedupe.Seen(fp) {
		p.record(ctx, "duplicate deal event suppressed", map[string]interface{}{"deal_id": ev.ObjectID})
		return nil
	}

	draft, err := p.generate(ctx, promptText)
	if err != nil {
		p.record(ctx, "draft generation failed", map[string]interface{}{"deal_id": ev.ObjectID, "error": err.Error()})
		return err
	}

	noteID, err := p.crm.CreateNote(ctx, &crm.NotePayload{
		Body:    draft,
		DealIDs: []string{ev.ObjectID},
	})
	if err != nil {
		p.record(ctx, "note write failed", map[string]interface{}{"deal_id": ev.ObjectID, "error": err.Error()})
		return err
	}
	p.dedupe.Mark(fp)

	p.record(ctx, "follow-up note created", map[string]interface{}{"deal_id": ev.ObjectID, "note_id": noteID})
	log.Info().
		Str("deal_id", ev.ObjectID).
		Str("note_id", noteID).
		Func(scribeotel.LogTraceFields(ctx)).
		Msg("deal_follow_up_created")
	return nil
}

// handleConversationCreated: fetch thread -> filter direction -> fan out one
// independently drafted note per associated deal.
func (p *Pipeline) handleConversationCreated(ctx context.Context, ev event.Event) error {
	thread, err := p.crm.FetchConversation(ctx, ev.ObjectID)
	if err != nil {
		p.record(ctx, "conversation fetch failed", map[string]interface{}{"conversation_id": ev.ObjectID, "error": err.Error()})
		return err
	}

	msg := thread.LatestMessage()
	if msg == nil {
		p.record(ctx, "conversation has no messages", map[string]interface{}{"conversation_id": ev.ObjectID})
		return nil
	}
	if !msg.Inbound() {
		p.record(ctx, "latest message not inbound, skipping", map[string]interface{}{
			"conversation_id": ev.ObjectID,
			"direction":       msg.Direction,
		})
		return nil
	}

	var dealIDs []string
	for _, assoc := range p.crm.FetchAssociations(ctx, ev.ObjectID) {
		if assoc.Type == crm.AssociationConversationToDeal {
			dealIDs = append(dealIDs, assoc.ID)
		}
	}
	if len(dealIDs) == 0 {
		p.record(ctx, "conversation has no associated deals", map[string]interface{}{"conversation_id": ev.ObjectID})
		return nil
	}

	return p.fanOut(ctx, ev, msg, dealIDs)
}

// fanOut drafts and writes one note per deal id under the worker bound.
// The branches share no mutable state; one deal's failure neither blocks
// nor rolls back another's.
func (p *Pipeline) fanOut(ctx context.Context, ev event.Event, msg *crm.Message, dealIDs []string) error {
	sem := make(chan struct{}, p.workers)
	errs := make([]error, len(dealIDs))
	var wg sync.WaitGroup

	for i, dealID := range dealIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, dealID string) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = p.replyForDeal(ctx, ev, msg, dealID)
		}(i, dealID)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (p *Pipeline) replyForDeal(ctx context.Context, ev event.Event, msg *crm.Message, dealID string) error {
	promptText, err := p.prompts.CustomerReply(msg.Subject, msg.Text)
	if err != nil {
		return err
	}

	fp := Fingerprint(ev.ObjectID, ev.Kind, promptText+"\x00"+dealID)
	if p.dedupe.Seen(fp) {
		p.record(ctx, "duplicate conversation event suppressed", map[string]interface{}{
			"conversation_id": ev.ObjectID,
			"deal_id":         dealID,
		})
		return nil
	}

	draft, err := p.generate(ctx, promptText)
	if err != nil {
		p.record(ctx, "draft generation failed", map[string]interface{}{
			"conversation_id": ev.ObjectID,
			"deal_id":         dealID,
			"error":           err.Error(),
		})
		return err
	}

	noteID, err := p.crm.CreateNote(ctx, &crm.NotePayload{
		Body:            draft,
		DealIDs:         []string{dealID},
		ConversationIDs: []string{ev.ObjectID},
	})
	if err != nil {
		p.record(ctx, "note write failed", map[string]interface{}{
			"conversation_id": ev.ObjectID,
			"deal_id":         dealID,
			"error":           err.Error(),
		})
		return err
	}
	p.dedupe.Mark(fp)

	p.record(ctx, "reply note created", map[string]interface{}{
		"conversation_id": ev.ObjectID,
		"deal_id":         dealID,
		"note_id":         noteID,
	})
	log.Info().
		Str("conversation_id", ev.ObjectID).
		Str("deal_id", dealID).
		Str("note_id", noteID).
		Func(scribeotel.LogTraceFields(ctx)).
		Msg("reply_note_created")
	return nil
}

func (p *Pipeline) generate(ctx context.Context, promptText string) (string, error) {
	resp, err := p.provider.Generate(ctx, &llm.Request{
		Model:  p.model,
		Prompt: promptText,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// record appends to the activity log when one is configured.
func (p *Pipeline) record(ctx context.Context, message string, data map[string]interface{}) {
	if p.activity == nil {
		return
	}
	p.activity.Append(message, data)
	log.Debug().Fields(data).Func(scribeotel.LogTraceFields(ctx)).Msg(message)
}
