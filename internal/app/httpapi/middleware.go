package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// WrapWithAuth guards state-changing endpoints with bearer-token
// authentication and records mutations on the audit trail. Read endpoints,
// health and metrics stay open. A nil or empty token list disables the
// guard; a nil audit trail disables recording.
func WrapWithAuth(next http.Handler, tokens []string, audit *AuditTrail) http.Handler {
	allowed := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if t := strings.TrimSpace(token); t != "" {
			allowed = append(allowed, t)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		if len(allowed) > 0 && !tokenAllowed(r, allowed) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="oracle"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		rec := &auditRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if audit != nil {
			audit.add(auditEntry{
				Time:       time.Now().UTC(),
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     rec.status,
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
			})
		}
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func tokenAllowed(r *http.Request, allowed []string) bool {
	header := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	presented = strings.TrimSpace(presented)
	for _, token := range allowed {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

type auditRecorder struct {
	http.ResponseWriter
	status int
}

func (r *auditRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
