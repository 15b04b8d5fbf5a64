package vikunja

import (
	"fmt"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a response body is kept on an APIError.
const maxErrorBody = 2048

// APIError is a non-2xx response from the Vikunja API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s for %s %s", e.StatusCode, http.StatusText(e.StatusCode), e.Method, e.URL)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// IsNotFound reports whether the API answered 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func newAPIError(method, url string, status int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &APIError{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Body:       string(body),
	}
}
