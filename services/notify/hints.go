package notify

import (
	"net/http"
	"strings"
)

// ClassifyOutcome turns an HTTP status and response body into a
// human-readable hint about the likely cause of a webhook failure.
func ClassifyOutcome(status int, body string) string {
	lower := strings.ToLower(body)

	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status == http.StatusNotFound:
		if strings.Contains(lower, "not registered") || strings.Contains(lower, "webhook") {
			return "webhook not armed (activate the workflow on the automation side)"
		}
		return "target path not found"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "unauthorized (check webhook credentials)"
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return "service unavailable"
	case status >= 400 && status < 500:
		return "request rejected by target"
	case status >= 500:
		return "target server error"
	}
	return "unexpected response"
}
