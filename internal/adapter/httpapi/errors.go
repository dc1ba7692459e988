package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/guillermoBallester/tabula/internal/core/domain"
)

// APIError is a non-2xx answer of the dataset API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dataset api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("dataset api: %d: %s", e.StatusCode, e.Detail)
}

// Is maps 404 answers onto domain.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// newAPIError reads the {"detail": ...} body the API returns on failure.
// A detail that is not a string (validation errors carry a list) is kept
// as compact JSON.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			apiErr.Detail = s
			return apiErr
		}
		var buf bytes.Buffer
		if json.Compact(&buf, payload.Detail) == nil {
			apiErr.Detail = buf.String()
			return apiErr
		}
	}

	apiErr.Detail = strings.TrimSpace(string(body))
	if len(apiErr.Detail) > 512 {
		apiErr.Detail = apiErr.Detail[:512]
	}
	return apiErr
}
