package main

import (
	"net/http"

	"github.com/genforge/backend/internal/handlers"
)

// RegisterV1Routes adds the /v1 generation API endpoints to the given mux.
// Middleware chain: UserAuth -> handler. The model catalog is public.
func RegisterV1Routes(mux *http.ServeMux, gh *handlers.GenerationHandler, auth func(http.Handler) http.Handler) {
	// POST /v1/generations: Auth -> Submit
	mux.Handle("POST /v1/generations", auth(http.HandlerFunc(gh.Submit)))

	// GET /v1/generations/{taskId}: Auth -> Poll
	mux.Handle("GET /v1/generations/{taskId}", auth(http.HandlerFunc(gh.Poll)))

	// GET /v1/models: public catalog
	mux.HandleFunc("GET /v1/models", gh.ListModels)
}
