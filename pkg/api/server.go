package api

import (
	"log/slog"
	"net/http"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/evaluation"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/impact"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/observability"
)

// Server wires the evaluation service, the decision ledger, and the
// impact aggregator behind the HTTP surface. Reads hit the ledger
// directly; the only write path is POST /v1/evaluations.
type Server struct {
	evaluations *evaluation.Service
	ledger      *ledger.Ledger
	impact      *impact.Aggregator
	signer      *ledger.CheckpointSigner
	limiter     func(http.Handler) http.Handler
	idempotency IdempotencyStorer
	obs         *observability.Provider
	logger      *slog.Logger
}

// NewServer creates a server over the three core services.
func NewServer(evaluations *evaluation.Service, led *ledger.Ledger, agg *impact.Aggregator) *Server {
	return &Server{
		evaluations: evaluations,
		ledger:      led,
		impact:      agg,
		obs:         observability.Disabled(),
		logger:      slog.Default(),
	}
}

// WithCheckpointSigner enables GET /v1/chains/{chain_id}/checkpoint.
func (s *Server) WithCheckpointSigner(signer *ledger.CheckpointSigner) *Server {
	s.signer = signer
	return s
}

// WithRateLimiter installs a rate limiting middleware, typically
// (*GlobalRateLimiter).Middleware or (*RedisRateLimiter).Middleware.
func (s *Server) WithRateLimiter(mw func(http.Handler) http.Handler) *Server {
	s.limiter = mw
	return s
}

// WithIdempotencyStore enables Idempotency-Key replay on mutating requests.
func (s *Server) WithIdempotencyStore(store IdempotencyStorer) *Server {
	s.idempotency = store
	return s
}

// WithObservability attaches a telemetry provider. Handlers track
// evaluation runs, chain verifications, and impact scans through it.
func (s *Server) WithObservability(p *observability.Provider) *Server {
	s.obs = p
	return s
}

// WithLogger replaces the server's logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// Routes builds the handler tree with the middleware chain applied:
// request ID, then rate limiting, then idempotent replay, then routing.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/evaluations", s.handleEvaluations)
	mux.HandleFunc("/v1/ledger/records", s.handleRecords)
	mux.HandleFunc("/v1/ledger/verify", s.handleVerify)
	mux.HandleFunc("/v1/impact", s.handleImpact)
	mux.HandleFunc("/v1/chains/", s.handleChains)
	mux.HandleFunc("/health", s.handleHealth)

	var h http.Handler = mux
	if s.idempotency != nil {
		h = IdempotencyMiddleware(s.idempotency)(h)
	}
	if s.limiter != nil {
		h = s.limiter(h)
	}
	return RequestID(h)
}
