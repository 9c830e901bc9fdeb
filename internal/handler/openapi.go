package handler

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/agrivia/accounts/internal/openapi"
)

// OpenAPIHandler serves the JSON API description. The document is static
// for the life of the process, so it is built once.
type OpenAPIHandler struct {
	doc func() *openapi3.T
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(baseURL, version string) *OpenAPIHandler {
	return &OpenAPIHandler{
		doc: sync.OnceValue(func() *openapi3.T {
			return openapi.GenerateSpec(baseURL, version)
		}),
	}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.doc())
}
