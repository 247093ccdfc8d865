package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/scribe/internal/event"
	"github.com/dativo-io/scribe/internal/otel"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "HubSpot AI relay is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleTest reports configuration presence. Booleans only; secret values
// are never echoed.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "Configuration check",
		"hasHubSpotToken":  s.cfg.HasHubSpotToken(),
		"hasGeminiKey":     s.cfg.HasGeminiKey(),
		"hasWebhookSecret": s.cfg.HasWebhookSecret(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleActivityLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Recent activity",
		"activities": s.activity.Tail(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleWebhook is the inbound dispatcher: validate payload shape, classify,
// run the pipeline per matched event in payload order. Per-event errors are
// caught and logged individually; any failure yields a single generic 500
// and earlier successful notes stay applied.
func (s *Server) handleWebhook(route event.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid webhook data")
			return
		}

		events, err := event.Classify(route, body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid webhook data")
			return
		}

		s.activity.Append("webhook received", map[string]interface{}{
			"route":   string(route),
			"matched": len(events),
		})

		s.dispatch(w, r, route, events)
	}
}

// manualTriggerRequest is the body of the /test-* endpoints.
type manualTriggerRequest struct {
	ObjectID string `json:"objectId"`
}

// handleManualTrigger injects one synthetic event for the route, exercising
// the same downstream path as the corresponding webhook.
func (s *Server) handleManualTrigger(route event.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req manualTriggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ObjectID == "" {
			writeError(w, http.StatusBadRequest, "objectId is required")
			return
		}

		ev := event.Event{ObjectType: event.ObjectDeal, Kind: "creation", ObjectID: req.ObjectID}
		if route == event.RouteEmailReply {
			ev = event.Event{ObjectType: event.ObjectConversation, Kind: "created", ObjectID: req.ObjectID}
		}

		s.activity.Append("manual trigger", map[string]interface{}{
			"route":     string(route),
			"object_id": req.ObjectID,
		})

		s.dispatch(w, r, route, []event.Event{ev})
	}
}

// dispatch runs the pipeline for each event strictly in order and maps the
// outcome to a response.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, route event.Route, events []event.Event) {
	ctx := r.Context()
	failed := 0
	for _, ev := range events {
		if err := s.pipeline.Handle(ctx, ev); err != nil {
			failed++
			log.Error().Err(err).
				Str("route", string(route)).
				Str("object_id", ev.ObjectID).
				Func(otel.LogTraceFields(ctx)).
				Msg("pipeline_run_failed")
		}
	}

	if failed > 0 {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Webhook processed",
		"processed": len(events),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
