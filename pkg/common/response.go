package common

// APIResponse wraps every successful API payload with the request's trace id.
type APIResponse struct {
	TraceID string `json:"traceId"`
	Data    any    `json:"data"`
}
