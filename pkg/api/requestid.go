package api

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation ID. Error responses
// echo it back as trace_id so a client report can be matched to logs.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a correlation ID unless the caller
// already supplied one. The ID is set on the response header before the
// handler runs so WriteErrorR can pick it up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
