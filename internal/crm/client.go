package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	scribeotel "github.com/dativo-io/scribe/internal/otel"
)

var tracer = scribeotel.Tracer("github.com/dativo-io/scribe/internal/crm")

const defaultBaseURL = "https://api.hubapi.com"

// Client issues authenticated calls against the HubSpot REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client with the given private-app token. If baseURL is
// empty the public API host is used; tests point it at a httptest server.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchDeal fetches a deal record with the relay's property list.
// Non-2xx or transport failure returns a *FetchError; never retried.
func (c *Client) FetchDeal(ctx context.Context, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "crm.request",
		trace.WithAttributes(
			attribute.String("crm.operation", "fetch_deal"),
			attribute.String("crm.object_id", id),
		))
	defer span.End()

	u := fmt.Sprintf("%s/crm/v3/objects/deals/%s?properties=%s",
		c.baseURL, url.PathEscape(id), strings.Join(DealProperties, ","))

	var rec Record
	if err := c.getJSON(ctx, u, &rec); err != nil {
		span.RecordError(err)
		return nil, wrapFetch("deal", id, err)
	}
	if rec.Properties == nil {
		rec.Properties = map[string]string{}
	}
	return &rec, nil
}

// FetchConversation fetches the message thread of a conversation.
// Non-2xx or transport failure returns a *FetchError; never retried.
func (c *Client) FetchConversation(ctx context.Context, id string) (*Thread, error) {
	ctx, span := tracer.Start(ctx, "crm.request",
		trace.WithAttributes(
			attribute.String("crm.operation", "fetch_conversation"),
			attribute.String("crm.object_id", id),
		))
	defer span.End()

	u := fmt.Sprintf("%s/conversations/v3/conversations/threads/%s/messages",
		c.baseURL, url.PathEscape(id))

	var out struct {
		Results []Message `json:"results"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		span.RecordError(err)
		return nil, wrapFetch("conversation", id, err)
	}
	return &Thread{ConversationID: id, Messages: out.Results}, nil
}

// FetchAssociations fetches the deals associated with a conversation.
// Associations are best-effort enrichment: any failure returns an empty
// slice instead of propagating, which narrows the note's associations.
func (c *Client) FetchAssociations(ctx context.Context, conversationID string) []Association {
	ctx, span := tracer.Start(ctx, "crm.request",
		trace.WithAttributes(
			attribute.String("crm.operation", "fetch_associations"),
			attribute.String("crm.object_id", conversationID),
		))
	defer span.End()

	u := fmt.Sprintf("%s/crm/v4/objects/conversation/%s/associations/deal",
		c.baseURL, url.PathEscape(conversationID))

	var out struct {
		Results []struct {
			ToObjectID       json.Number `json:"toObjectId"`
			AssociationTypes []struct {
				Label string `json:"label"`
			} `json:"associationTypes"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		span.RecordError(err)
		log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Func(scribeotel.LogTraceFields(ctx)).
			Msg("association_fetch_failed")
		return nil
	}

	var assocs []Association
	for _, r := range out.Results {
		relType := AssociationConversationToDeal
		if len(r.AssociationTypes) > 0 && r.AssociationTypes[0].Label != "" {
			relType = r.AssociationTypes[0].Label
		}
		assocs = append(assocs, Association{Type: relType, ID: r.ToObjectID.String()})
	}
	return assocs
}

// engagement wire types (engagements v1 API).
type engagementRequest struct {
	Engagement   engagementHeader       `json:"engagement"`
	Associations engagementAssociations `json:"associations"`
	Metadata     engagementMetadata     `json:"metadata"`
}

type engagementHeader struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type engagementAssociations struct {
	DealIDs  []int64 `json:"dealIds"`
	EmailIDs []int64 `json:"emailIds,omitempty"`
}

type engagementMetadata struct {
	Body string `json:"body"`
}

type engagementResponse struct {
	Engagement struct {
		ID json.Number `json:"id"`
	} `json:"engagement"`
}

// CreateNote writes the drafted text back as a NOTE engagement attached to
// the payload's records, and returns the new note id. Non-2xx returns a
// *WriteError; this failure always propagates to the caller.
func (c *Client) CreateNote(ctx context.Context, payload *NotePayload) (string, error) {
	ctx, span := tracer.Start(ctx, "crm.request",
		trace.WithAttributes(
			attribute.String("crm.operation", "create_note"),
			attribute.Int("crm.deal_count", len(payload.DealIDs)),
		))
	defer span.End()

	req := engagementRequest{
		Engagement: engagementHeader{
			Type:      "NOTE",
			Timestamp: time.Now().UnixMilli(),
		},
		Associations: engagementAssociations{
			DealIDs:  numericIDs(payload.DealIDs),
			EmailIDs: numericIDs(payload.ConversationIDs),
		},
		Metadata: engagementMetadata{Body: payload.Body},
	}
	if req.Associations.DealIDs == nil {
		req.Associations.DealIDs = []int64{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &WriteError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/engagements/v1/engagements", bytes.NewReader(body))
	if err != nil {
		return "", &WriteError{Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return "", &WriteError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &WriteError{StatusCode: resp.StatusCode}
		span.RecordError(err)
		return "", err
	}

	var out engagementResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &WriteError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	return out.Engagement.ID.String(), nil
}

// getJSON issues an authenticated GET and decodes a 2xx body into v.
func (c *Client) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

// statusError carries a non-2xx status through getJSON so wrapFetch can
// classify it.
type statusError int

func (s statusError) Error() string { return fmt.Sprintf("status %d", int(s)) }

func wrapFetch(kind, id string, err error) *FetchError {
	if s, ok := err.(statusError); ok {
		return &FetchError{Kind: kind, ID: id, StatusCode: int(s)}
	}
	return &FetchError{Kind: kind, ID: id, Err: err}
}

// numericIDs converts string ids to the numeric form the engagements API
// expects, skipping (and logging) any non-numeric id.
func numericIDs(ids []string) []int64 {
	var out []int64
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			log.Warn().Str("object_id", id).Msg("skipping non-numeric association id")
			continue
		}
		out = append(out, n)
	}
	return out
}
