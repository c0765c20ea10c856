package category

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/lekimminhquan/Online-Vina-BE/internal/httputil"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, categories)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "category not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load category")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body categoryRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	c, err := h.repo.Create(r.Context(), CategoryInput{
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		ImageURL:    strings.TrimSpace(body.ImageURL),
	})
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create category")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var body categoryRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	c, err := h.repo.Update(r.Context(), r.PathValue("id"), CategoryInput{
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		ImageURL:    strings.TrimSpace(body.ImageURL),
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "category not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update category")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "category not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
