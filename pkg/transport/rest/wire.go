package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// Header names understood by the backend.
const (
	HeaderAppID        = "X-Parse-Application-Id"
	HeaderRESTKey      = "X-Parse-REST-API-Key"
	HeaderSessionToken = "X-Parse-Session-Token"
)

// Error codes carried in {"code": n, "error": "..."} bodies.
const (
	CodeInternal           = 1
	CodeObjectNotFound     = 101
	CodeInvalidClassName   = 103
	CodeInvalidKeyName     = 105
	CodeInvalidJSON        = 107
	CodeIncorrectType      = 111
	CodeOperationForbidden = 119
)

// ErrNotFound matches an [APIError] for a missing object.
var ErrNotFound = errors.New("object not found")

// APIError is an error body returned by the backend, either for a whole
// request or for one item of a batch. Status is 0 for batch items.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%d %s (code %d): %s", e.Status, http.StatusText(e.Status), e.Code, e.Message)
	}
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// Is matches [ErrNotFound] for missing objects.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && (e.Code == CodeObjectNotFound || e.Status == http.StatusNotFound)
}

// BatchOp is one sub-request of POST /batch. Path is the full request path
// including any mount prefix, e.g. /parse/classes/Post.
type BatchOp struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Body   map[string]any `json:"body,omitempty"`
}

// BatchRequest is the body of POST /batch.
type BatchRequest struct {
	Requests []BatchOp `json:"requests"`
}

// BatchItem is one entry of the /batch response, in request order.
type BatchItem struct {
	Success *SaveResponse `json:"success,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
}

// SaveResponse is returned by create and update.
type SaveResponse struct {
	ObjectID  string `json:"objectId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}
