package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/tendant/simple-article/pkg/simplearticle"
)

// PublicHandler serves published articles by URL path and follows redirect
// stubs for paths no article owns.
type PublicHandler struct {
	service simplearticle.Service
	logger  *slog.Logger
}

// NewPublicHandler creates a new public read handler
func NewPublicHandler(service simplearticle.Service, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{service: service, logger: logger}
}

// ServeHTTP answers GET requests for any path. The root path serves the
// bootstrap article.
func (h *PublicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	slug := strings.Trim(r.URL.Path, "/")

	var view *simplearticle.ArticleView
	var err error
	if slug == simplearticle.RootSlug {
		// The site root serves the bootstrap article under its own slug.
		view, err = h.service.GetContent(ctx, simplearticle.BootstrapArticleNumber)
	} else {
		view, err = h.service.GetContentBySlug(ctx, slug)
	}
	switch {
	case err == nil && view.IsPublished:
		article, err := h.publishedVersion(r, view)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		render.JSON(w, r, article)
		return
	case err == nil:
		// Drafts stay hidden; fall through to redirects.
	case !errors.Is(err, simplearticle.ErrNotFound):
		writeError(w, r, h.logger, err)
		return
	}

	target, found, err := h.service.ResolveRedirect(ctx, slug)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !found {
		writeError(w, r, h.logger, &simplearticle.NotFoundError{Resource: "page", ID: "/" + slug, Err: simplearticle.ErrNotFound})
		return
	}
	http.Redirect(w, r, "/"+target, http.StatusMovedPermanently)
}

// publishedVersion returns the version readers see, which may be older than
// the latest draft.
func (h *PublicHandler) publishedVersion(r *http.Request, view *simplearticle.ArticleView) (*simplearticle.Article, error) {
	if view.Version == view.PublishedVersion {
		return &view.Article, nil
	}
	versions, err := h.service.ListVersions(r.Context(), view.Number)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == view.PublishedVersion {
			return v, nil
		}
	}
	return nil, &simplearticle.NotFoundError{Resource: "published version", ID: "/" + view.URLPath, Err: simplearticle.ErrNotFound}
}
