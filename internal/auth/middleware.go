package auth

import (
	"net/http"
	"strings"

	"github.com/moneymint/moneymint/internal/platform/httpx"
	"github.com/moneymint/moneymint/internal/shared"
)

// DefaultOwnerHeader is the header the fronting identity proxy sets after
// verifying the caller. The service never sees credentials, only the
// resolved owner id.
const DefaultOwnerHeader = "X-Owner-ID"

// OwnerIdentity extracts the verified owner id from the configured header
// and stores it in the request context. Requests without it are rejected
// before reaching any handler.
func OwnerIdentity(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultOwnerHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := strings.TrimSpace(r.Header.Get(header))
			if ownerID == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing owner identity")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithOwner(r.Context(), ownerID)))
		})
	}
}
