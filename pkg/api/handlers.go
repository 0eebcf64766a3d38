package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/evaluation"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/impact"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/observability"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

// handleEvaluations handles POST /v1/evaluations: run one evaluation and
// record the decision. The evaluation is NOT idempotent per decision_ref;
// a 503 means nothing was recorded and the caller should resubmit.
func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req evaluation.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	ctx, done := s.obs.TrackOperation(r.Context(), "evaluation.run",
		observability.EvaluationAttrs(req.ModelID, req.EngineType)...)
	result, err := s.evaluations.Run(ctx, req)
	if err != nil {
		done(err)
		s.writeRunError(w, r, err)
		return
	}
	s.obs.RecordAppend(ctx, result.Record.ChainID)
	s.obs.RecordVerdict(ctx, result.Result.Verdict)
	observability.AddSpanEvent(ctx, "decision.recorded",
		observability.AttrChainID.String(result.Record.ChainID),
		observability.AttrDecisionRef.String(result.Record.DecisionRef))
	done(nil)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// writeRunError maps evaluation failures onto the HTTP surface.
func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *scoring.ValidationError
	switch {
	case errors.As(err, &validation):
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", validation.Error())
	case errors.Is(err, ledger.ErrChainContended):
		// Transient: the append never landed, resubmitting is safe.
		WriteUnavailable(w, 1, "Decision chain is contended. Resubmit the evaluation.")
	case errors.Is(err, context.Canceled):
		// Client went away; there is nobody left to answer.
	default:
		WriteInternal(w, err)
	}
}

// handleRecords handles GET /v1/ledger/records: filtered, read-only
// queries over committed decision records.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	filter := ledger.QueryFilter{
		ChainID:       q.Get("chain_id"),
		DecisionRef:   q.Get("decision_ref"),
		ModelID:       q.Get("model_id"),
		SupersedesRef: q.Get("supersedes_ref"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteBadRequest(w, "until must be an RFC 3339 timestamp")
			return
		}
		filter.Until = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.MaxResults = n
	}

	records, err := s.ledger.Query(r.Context(), filter)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if records == nil {
		records = []*ledger.DecisionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// handleVerify handles GET /v1/ledger/verify: recompute the hash chain
// over a window. An integrity failure is a result, not a transport
// error, so a broken chain still answers 200 with valid:false.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	chainID := q.Get("chain_id")
	if chainID == "" {
		WriteBadRequest(w, "chain_id is required")
		return
	}

	ctx, done := s.obs.TrackOperation(r.Context(), "chain.verify",
		observability.ChainAttrs(chainID)...)
	report, err := s.ledger.VerifyChain(ctx, chainID, q.Get("from_ref"), q.Get("to_ref"))
	done(err)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			WriteNotFound(w, "from_ref or to_ref does not name a record in this chain")
			return
		}
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// handleImpact handles GET /v1/impact: per-group outcome rates and
// disparate impact alerts over a resolved window.
func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	chainID := q.Get("chain_id")
	attributeName := q.Get("attribute")

	ctx, done := s.obs.TrackOperation(r.Context(), "impact.scan",
		observability.ImpactAttrs(chainID, attributeName)...)
	report, err := s.impact.ComputeImpact(ctx, chainID, attributeName, q.Get("from_ref"), q.Get("to_ref"))
	done(err)
	if err != nil {
		switch {
		case errors.Is(err, impact.ErrChainRequired), errors.Is(err, impact.ErrAttributeRequired):
			WriteBadRequest(w, err.Error())
		case errors.Is(err, ledger.ErrNotFound):
			WriteNotFound(w, "from_ref or to_ref does not name a record in this chain")
		default:
			WriteInternal(w, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// handleChains routes /v1/chains/{chain_id}/head and
// /v1/chains/{chain_id}/checkpoint.
func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/chains/")
	chainID, op, ok := strings.Cut(rest, "/")
	if !ok || chainID == "" {
		WriteNotFound(w, "expected /v1/chains/{chain_id}/head or /v1/chains/{chain_id}/checkpoint")
		return
	}

	switch op {
	case "head":
		head, err := s.ledger.Head(r.Context(), chainID)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(head)

	case "checkpoint":
		if s.signer == nil {
			WriteError(w, http.StatusNotImplemented, "Not Implemented", "Checkpoint signing is not configured")
			return
		}
		cp, err := s.ledger.Checkpoint(r.Context(), chainID, s.signer)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cp)

	default:
		WriteNotFound(w, "expected /v1/chains/{chain_id}/head or /v1/chains/{chain_id}/checkpoint")
	}
}

// handleHealth reports liveness and the configured engine domains.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"engines": s.evaluations.Engines(),
	})
}
