package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(),
	)

	// Templates
	mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))
	mux.Handle("POST /api/v1/templates", chain(http.HandlerFunc(h.SaveTemplate)))
	mux.Handle("GET /api/v1/templates/{name}", chain(http.HandlerFunc(h.GetTemplate)))
	mux.Handle("GET /api/v1/templates/{name}/source", chain(http.HandlerFunc(h.GetTemplateSource)))
	mux.Handle("DELETE /api/v1/templates/{name}", chain(http.HandlerFunc(h.DeleteTemplate)))
	mux.Handle("PUT /api/v1/fragments/{name}", chain(http.HandlerFunc(h.SaveFragment)))

	// Builds
	mux.Handle("GET /api/v1/builds", chain(http.HandlerFunc(h.ListBuilds)))
	mux.Handle("POST /api/v1/builds", chain(http.HandlerFunc(h.CreateBuild)))
	mux.Handle("POST /api/v1/builds/check", chain(http.HandlerFunc(h.CheckBuild)))
	mux.Handle("GET /api/v1/builds/{id}", chain(http.HandlerFunc(h.GetBuild)))
	mux.Handle("GET /api/v1/builds/{id}/script", chain(http.HandlerFunc(h.GetBuildScript)))
}
