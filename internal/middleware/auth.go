package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/response"
)

// APIKeyHeader carries the shared secret on tool-invocation requests.
const APIKeyHeader = "x-api-key"

// ReasonBadCredential is reported for every denied request.
const ReasonBadCredential = "missing or invalid credential"

// Decision is the outcome of the credential check for one request.
type Decision struct {
	Allowed bool
	Reason  string
	// Missing is set when the header was absent rather than wrong.
	Missing bool
}

// Err returns an apperr.ErrAuth error for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Auth("api key", "%s", d.Reason)
}

// Decide is the pure credential check: OPTIONS pre-flight requests always pass
// since browsers never attach custom headers to them; otherwise x-api-key must
// equal secret exactly. An empty secret disables the check.
func Decide(method string, headers http.Header, secret string) Decision {
	if method == http.MethodOptions {
		return Decision{Allowed: true}
	}
	if secret == "" {
		return Decision{Allowed: true}
	}

	provided := headers.Get(APIKeyHeader)
	if provided == "" {
		return Decision{Reason: ReasonBadCredential, Missing: true}
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		return Decision{Reason: ReasonBadCredential}
	}
	return Decision{Allowed: true}
}

// Exemptions lists paths that skip the gate. Entries ending in "/" match as
// prefixes; all others must match exactly.
type Exemptions []string

// DefaultExemptions covers the health check, generated media and API docs.
var DefaultExemptions = Exemptions{"/health", "/static/", "/swagger/"}

// Match reports whether path is exempt.
func (e Exemptions) Match(path string) bool {
	for _, p := range e {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// RequireAPIKey returns middleware that rejects requests failing Decide before
// they reach the next handler: 401 when the header is missing, 403 when it is
// wrong. observe, when non-nil, is told every decision the gate makes.
func RequireAPIKey(secret string, exempt Exemptions, observe func(Decision)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt.Match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			d := Decide(r.Method, r.Header, secret)
			if observe != nil {
				observe(d)
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			log.Printf("[auth] denied %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, d.Err())
			if d.Missing {
				response.Unauthorized(w, "missing x-api-key header")
				return
			}
			response.Forbidden(w, "invalid API key")
		})
	}
}
