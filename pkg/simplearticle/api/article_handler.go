package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-article/pkg/simplearticle"
)

// ArticleHandler handles editorial HTTP requests for articles
type ArticleHandler struct {
	service simplearticle.Service
	logger  *slog.Logger
}

// NewArticleHandler creates a new article handler
func NewArticleHandler(service simplearticle.Service, logger *slog.Logger) *ArticleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleHandler{service: service, logger: logger}
}

// Routes returns the routes for articles
func (h *ArticleHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateArticle)
	r.Get("/", h.ListCatalog)

	r.Route("/{number}", func(r chi.Router) {
		r.Get("/", h.GetArticle)
		r.Put("/", h.SaveArticle)
		r.Delete("/", h.DeleteArticle)
		r.Get("/versions", h.ListVersions)
		r.Post("/publish", h.PublishArticle)
		r.Post("/unpublish", h.UnpublishArticle)
		r.Post("/restore", h.RestoreArticle)
	})

	return r
}

// CreateArticleRequest is the request body for creating an article
type CreateArticleRequest struct {
	Title      string `json:"title"`
	AuthorID   string `json:"author_id"`
	TemplateID string `json:"template_id,omitempty"`
	ParentPath string `json:"parent_path,omitempty"`
}

// SaveArticleRequest is the request body for saving a new version
type SaveArticleRequest struct {
	Title           string                     `json:"title"`
	Body            string                     `json:"body"`
	AuthorID        string                     `json:"author_id"`
	PublishAt       *time.Time                 `json:"publish_at,omitempty"`
	ExpectedVersion int                        `json:"expected_version,omitempty"`
	CascadeChanges  []simplearticle.SlugChange `json:"cascade_changes,omitempty"`
}

// PublishRequest is the optional request body for publishing
type PublishRequest struct {
	Version     int        `json:"version,omitempty"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
}

func parseNumber(r *http.Request) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	return n, err == nil && n > 0
}

func parseAuthor(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	return id, err == nil
}

// CreateArticle creates a new article
func (h *ArticleHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var req CreateArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	authorID, ok := parseAuthor(req.AuthorID)
	if !ok {
		badRequest(w, r, "invalid author ID")
		return
	}

	view, err := h.service.CreateContent(r.Context(), simplearticle.CreateArticleRequest{
		Title:      req.Title,
		AuthorID:   authorID,
		TemplateID: req.TemplateID,
		ParentPath: req.ParentPath,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, view)
}

// SaveArticle appends a new version
func (h *ArticleHandler) SaveArticle(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(r)
	if !ok {
		badRequest(w, r, "invalid article number")
		return
	}
	var req SaveArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	authorID, ok := parseAuthor(req.AuthorID)
	if !ok {
		badRequest(w, r, "invalid author ID")
		return
	}

	view, err := h.service.SaveContent(r.Context(), simplearticle.SaveArticleRequest{
		Number:          number,
		Title:           req.Title,
		Body:            req.Body,
		AuthorID:        authorID,
		PublishAt:       req.PublishAt,
		ExpectedVersion: req.ExpectedVersion,
		CascadeChanges:  req.CascadeChanges,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, view)
}

// GetArticle returns the latest version of an article
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(r)
	if !ok {
		badRequest(w, r, "invalid article number")
		return
	}
	view, err := h.service.GetContent(r.Context(), number)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, view)
}

// ListVersions returns every version, newest first
func (h *ArticleHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(r)
	if !ok {
		badRequest(w, r, "invalid article number")
		return
	}
	versions, err := h.service.ListVersions(r.Context(), number)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, versions)
}

// ListCatalog lists catalog entries. Query: published, limit, offset.
func (h *ArticleHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := simplearticle.CatalogFilter{PublishedOnly: q.Get("published") == "true"}
	for _, p := range []struct {
		name string
		dst  **int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(w, r, "invalid "+p.name)
			return
		}
		*p.dst = &v
	}

	entries, err := h.service.ListCatalog(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, entries)
}

// PublishArticle publishes a version (latest when omitted)
func (h *ArticleHandler) PublishArticle(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(r)
	if !ok {
		badRequest(w, r, "invalid article number")
		return
	}
	var req PublishRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, r, "invalid JSON body")
			return
		}
	}
	var effectiveAt time.Time
	if req.EffectiveAt != nil {
		effectiveAt = *req.EffectiveAt
	}

	view, err := h.service.PublishContent(r.Context(), simplearticle.ArticleID{Number: number, Version: req.Version}, effectiveAt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, view)
}

// UnpublishArticle removes the published snapshot
func (h *ArticleHandler) UnpublishArticle(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.UnpublishContent)
}

// DeleteArticle soft-deletes every version
func (h *ArticleHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.DeleteContent)
}

// RestoreArticle undeletes an article
func (h *ArticleHandler) RestoreArticle(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(r)
	if !ok {
		badRequest(w, r, "invalid article number")
		return
	}
	view, err := h.service.RestoreContent(r.Context(), number)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, view)
}

func (h *ArticleHandler) command(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, number int64) error) {
	number, ok := parseNumber(r)
	if !ok {
		badRequest(w, r, "invalid article number")
		return
	}
	if err := fn(r.Context(), number); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
