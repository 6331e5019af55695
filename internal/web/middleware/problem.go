package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const contentTypeProblemJSON = "application/problem+json"

// writeProblem writes an RFC 7807 compliant error response.
// Every rejection originated by the pipeline (429, 301 is a redirect and not
// handled here) goes through this single writer so bodies stay uniform.
func writeProblem(w http.ResponseWriter, r *http.Request, statusCode int, detail, requestID string) error {
	var title string

	switch statusCode {
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusForbidden:
		title = "Forbidden"
	default:
		title = http.StatusText(statusCode)
	}

	problem := map[string]interface{}{
		"type":      fmt.Sprintf("https://bindery.io/problems/%d", statusCode),
		"title":     title,
		"status":    statusCode,
		"detail":    detail,
		"instance":  r.URL.Path,
		"requestId": requestID,
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
