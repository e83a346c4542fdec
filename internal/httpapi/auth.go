package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/garl-network/trust-ledger/internal/apierr"
)

type ctxKey int

const ctxKeyAPIKeyHash ctxKey = iota

func setAPIKeyHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, ctxKeyAPIKeyHash, hash)
}

func apiKeyHashFrom(ctx context.Context) string {
	hash, _ := ctx.Value(ctxKeyAPIKeyHash).(string)
	return hash
}

// withAPIKeyAuth requires a non-empty X-Api-Key header, hashes it with
// SHA-256, and stashes the hash in the request context for the handler to
// compare against agents.api_key_hash -- the comparison itself happens
// inside the service layer (e.g. pipeline.Service.Submit), not here, since
// only the service knows which agent the hash should resolve to. This
// middleware only rejects requests that never attempted a key or that the
// rate limiter refuses for that key; the actual
// hash comparison uses crypto/subtle.ConstantTimeCompare to avoid timing
// leaks.
func (h *Handler) withAPIKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Api-Key")
		if key == "" {
			writeError(w, apierr.Unauthorized("X-Api-Key header is required"))
			return
		}
		if h.limiter != nil && !h.limiter.Allow(key) {
			writeError(w, apierr.RateLimited("rate limit exceeded"))
			return
		}
		sum := sha256.Sum256([]byte(key))
		hash := hex.EncodeToString(sum[:])
		next.ServeHTTP(w, r.WithContext(setAPIKeyHash(r.Context(), hash)))
	}
}

// withRegistrationRateLimit applies the per-client-address write limit to
// unauthenticated registration endpoints.
func (h *Handler) withRegistrationRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow(clientAddress(r)) {
			writeError(w, apierr.RateLimited("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	}
}

func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// withReadAuth requires a valid X-Api-Key (resolving to a known, non-deleted
// agent) on read routes, when READ_AUTH_ENABLED is set. It is a no-op
// passthrough otherwise.
func (h *Handler) withReadAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.readAuth {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-Api-Key")
		if key == "" {
			writeError(w, apierr.Unauthorized("X-Api-Key header is required"))
			return
		}
		sum := sha256.Sum256([]byte(key))
		hash := hex.EncodeToString(sum[:])
		if _, err := h.agents.GetAgentByAPIKeyHash(r.Context(), hash); err != nil {
			writeError(w, apierr.Unauthorized("invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	}
}

// hashesMatch reports whether the authenticated caller's API-key hash
// matches the owning agent's api_key_hash, using a constant-time
// comparison so response timing does not leak how much of the hash
// matched.
func hashesMatch(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
