package billing

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrymomot/paywall/core"
)

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.NewHTTPError(http.StatusBadRequest, "invalid_json")
	}
	return nil
}

// requestBaseURL reconstructs the externally visible origin of a request
// so redirect URLs land on the same host the client came from. Behind a
// proxy the forwarded proto header wins over the connection scheme.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
