package order

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

type createOrderRequest struct {
	UserID   string             `json:"user_id" validate:"required"`
	Products []orderItemRequest `json:"products" validate:"required,min=1,dive"`
}

type orderItemRequest struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipped completed cancelled"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createOrderRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	input := CreateOrderInput{UserID: strings.TrimSpace(body.UserID)}
	for _, item := range body.Products {
		input.Items = append(input.Items, CreateOrderItem{
			ProductID: strings.TrimSpace(item.ID),
			Quantity:  item.Quantity,
		})
	}

	created, err := h.repo.Create(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			httputil.WriteError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, ErrProductNotFound):
			httputil.WriteError(w, http.StatusNotFound, "one or more products not found")
		default:
			sentry.CaptureException(err)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to create order")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := ListQuery{
		UserID:   strings.TrimSpace(r.URL.Query().Get("user_id")),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}

	page, err := h.repo.List(r.Context(), query)
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "order not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load order")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body updateStatusRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	o, err := h.repo.UpdateStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "order not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update order")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, o)
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
