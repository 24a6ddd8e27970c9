package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-article/pkg/simplearticle"
	"github.com/tendant/simple-article/pkg/simplearticle/admin"
)

// RedirectHandler exposes redirect resolution, batch creation and the
// admin redirect and catalog operations
type RedirectHandler struct {
	service simplearticle.Service
	admin   admin.AdminService
	logger  *slog.Logger
}

// NewRedirectHandler creates a new redirect handler. adminSvc may be nil,
// in which case the admin routes are not mounted.
func NewRedirectHandler(service simplearticle.Service, adminSvc admin.AdminService, logger *slog.Logger) *RedirectHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedirectHandler{service: service, admin: adminSvc, logger: logger}
}

// Routes returns the routes for redirects
func (h *RedirectHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/resolve", h.Resolve)
	r.Post("/batch", h.CreateBatch)

	if h.admin != nil {
		r.Get("/", h.List)
		r.Get("/audit", h.Audit)
		r.Post("/catalog/rebuild", h.RebuildCatalog)
	}

	return r
}

// ResolveResponse is the body returned by Resolve
type ResolveResponse struct {
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
	Found  bool   `json:"found"`
}

// CreateBatchRequest is the request body for CreateBatch
type CreateBatchRequest struct {
	ActorID string                     `json:"actor_id"`
	Changes []simplearticle.SlugChange `json:"changes"`
}

// Resolve returns the final destination for ?path=
func (h *RedirectHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	target, found, err := h.service.ResolveRedirect(r.Context(), path)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, ResolveResponse{Path: path, Target: target, Found: found})
}

// CreateBatch writes redirects for a list of slug changes. A partial
// failure answers 207 with the per-item result.
func (h *RedirectHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	actor, ok := parseAuthor(req.ActorID)
	if !ok {
		badRequest(w, r, "invalid actor ID")
		return
	}

	result := h.service.CreateRedirectsForSlugChanges(r.Context(), req.Changes, actor)
	if !result.AllSucceeded() {
		render.Status(r, http.StatusMultiStatus)
	}
	render.JSON(w, r, result)
}

// List pages through redirect stubs. Query: limit, offset.
func (h *RedirectHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	resp, err := h.admin.ListRedirects(r.Context(), admin.ListRedirectsRequest{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, resp)
}

// Audit reports redirect chains and dangling stubs
func (h *RedirectHandler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.AuditRedirects(r.Context(), admin.AuditRequest{})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, report)
}

// RebuildCatalog recomputes every catalog entry
func (h *RedirectHandler) RebuildCatalog(w http.ResponseWriter, r *http.Request) {
	result, err := h.admin.RebuildCatalog(r.Context(), admin.RebuildRequest{
		DryRun: r.URL.Query().Get("dry_run") == "true",
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, result)
}
