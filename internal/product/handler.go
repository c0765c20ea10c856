package product

import (
	"errors"
	"net/http"
	"strconv"
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

type createProductRequest struct {
	Title       string           `json:"title" validate:"required,max=300"`
	Description string           `json:"description"`
	PriceOld    float64          `json:"price_old" validate:"gte=0"`
	PriceNew    *float64         `json:"price_new" validate:"omitempty,gte=0"`
	ImageURL    string           `json:"image_url"`
	Images      []string         `json:"images"`
	Unit        string           `json:"unit"`
	CategoryID  *string          `json:"category_id"`
	Variants    []variantRequest `json:"variants" validate:"required,min=1,dive"`
}

type updateProductRequest struct {
	Title       string   `json:"title" validate:"required,max=300"`
	Description string   `json:"description"`
	PriceOld    float64  `json:"price_old" validate:"gte=0"`
	PriceNew    *float64 `json:"price_new" validate:"omitempty,gte=0"`
	ImageURL    string   `json:"image_url"`
	Images      []string `json:"images"`
	Unit        string   `json:"unit"`
	CategoryID  *string  `json:"category_id"`
}

type variantRequest struct {
	Value string  `json:"value" validate:"required"`
	Price float64 `json:"price" validate:"gt=0"`
}

type variantPatchRequest struct {
	ID    string  `json:"id"`
	Value string  `json:"value" validate:"required"`
	Price float64 `json:"price" validate:"gt=0"`
}

type updateVariantsRequest struct {
	Variants []variantPatchRequest `json:"variants" validate:"required,min=1,dive"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := ListQuery{
		Q:          strings.TrimSpace(r.URL.Query().Get("q")),
		CategoryID: strings.TrimSpace(r.URL.Query().Get("category_id")),
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "page_size", 20),
	}

	page, err := h.repo.List(r.Context(), query)
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load product")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createProductRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	input := ProductInput{
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		PriceOld:    body.PriceOld,
		PriceNew:    body.PriceNew,
		ImageURL:    strings.TrimSpace(body.ImageURL),
		Images:      body.Images,
		Unit:        strings.TrimSpace(body.Unit),
		CategoryID:  body.CategoryID,
	}
	for _, variant := range body.Variants {
		input.Variants = append(input.Variants, VariantInput{
			Value: strings.TrimSpace(variant.Value),
			Price: variant.Price,
		})
	}

	p, err := h.repo.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrVariantRequired) {
			httputil.WriteError(w, http.StatusBadRequest, "product requires at least one variant")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var body updateProductRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	input := ProductInput{
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		PriceOld:    body.PriceOld,
		PriceNew:    body.PriceNew,
		ImageURL:    strings.TrimSpace(body.ImageURL),
		Images:      body.Images,
		Unit:        strings.TrimSpace(body.Unit),
		CategoryID:  body.CategoryID,
	}

	p, err := h.repo.Update(r.Context(), r.PathValue("id"), input)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update product")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, p)
}

// UpdateVariants replaces a product's variant set wholesale: the payload
// is the full desired set, and variants left out of it are retired.
func (h *Handler) UpdateVariants(w http.ResponseWriter, r *http.Request) {
	var body updateVariantsRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	patches := make([]VariantPatch, 0, len(body.Variants))
	for _, variant := range body.Variants {
		patches = append(patches, VariantPatch{
			ID:    strings.TrimSpace(variant.ID),
			Value: strings.TrimSpace(variant.Value),
			Price: variant.Price,
		})
	}

	variants, err := h.repo.UpdateVariants(r.Context(), r.PathValue("id"), patches)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httputil.WriteError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, ErrVariantNotFound):
			httputil.WriteError(w, http.StatusNotFound, "product variant not found")
		case errors.Is(err, ErrVariantRequired):
			httputil.WriteError(w, http.StatusBadRequest, "product requires at least one variant")
		default:
			sentry.CaptureException(err)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to update product variants")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"variants": variants})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
