package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ownerIDHeader carries the verified owner identity. It is set by the identity
// collaborator in front of this service; the engine only compares the value,
// it never authenticates.
const ownerIDHeader = "X-Owner-ID"

type ctxKeyOwnerID struct{}

// ownerIdentity extracts the verified owner id into the request context.
// A missing or malformed header means an anonymous caller.
func ownerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(ownerIDHeader); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				ctx := context.WithValue(r.Context(), ctxKeyOwnerID{}, id)
				r = r.WithContext(ctx)
			}
		}

		next.ServeHTTP(w, r)
	})
}

// ownerFromContext returns the caller's owner id, or nil for anonymous callers.
func ownerFromContext(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(ctxKeyOwnerID{}).(uuid.UUID); ok {
		return &id
	}
	return nil
}
