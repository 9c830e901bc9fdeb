package model

// ListResponse is the standard envelope for list endpoints, wrapping results
// in a "resource" array.
type ListResponse[T any] struct {
	Resource []T          `json:"resource"`
	Meta     ResponseMeta `json:"meta"`
}

// ResponseMeta describes a list response.
type ResponseMeta struct {
	Count int `json:"count"`
}

// NewListResponse wraps items, never encoding a null resource array.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Resource: items, Meta: ResponseMeta{Count: len(items)}}
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
// Code is the HTTP status.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}
