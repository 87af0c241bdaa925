package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/ppopeskul/wa-ingest/internal/api"
	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/middleware"
)

func setupRouter(handler api.ServerInterface, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		render.Status(req, http.StatusMethodNotAllowed)
		render.JSON(w, req, api.ErrorResponse{
			Error:   middleware.ErrorCodeMethodNotAllowed,
			Message: middleware.ErrorMessageMethodNotAllowed,
		})
	})

	// Serve OpenAPI spec
	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, "api/openapi.yaml")
	})

	// Objects written by the local storage driver.
	if cfg.Storage.Driver == config.StorageDriverLocal {
		r.Get("/media/*", func(w http.ResponseWriter, req *http.Request) {
			http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.Storage.LocalDir))).ServeHTTP(w, req)
		})
	}

	return api.HandlerWithOptions(handler, api.ChiServerOptions{
		BaseRouter:  r,
		Middlewares: []api.MiddlewareFunc{middleware.ServiceAuth(cfg.Security.InternalToken)},
		ErrorHandlerFunc: func(w http.ResponseWriter, req *http.Request, err error) {
			render.Status(req, http.StatusBadRequest)
			render.JSON(w, req, api.ErrorResponse{
				Error:   middleware.ErrorCodeInvalidRequest,
				Message: err.Error(),
			})
		},
	})
}
