package landing

import (
	"encoding/json"
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

type upsertRequest struct {
	Metadata    metadataRequest `json:"metadata" validate:"required"`
	SelectCards []cardRequest   `json:"selectCards" validate:"dive"`
}

type metadataRequest struct {
	Title           string `json:"title" validate:"required,max=300"`
	Description     string `json:"description"`
	BackgroundImage string `json:"backgroundImage"`
	BackgroundColor string `json:"backgroundColor"`
}

type cardRequest struct {
	ID              string          `json:"id"`
	Title           string          `json:"title" validate:"required,max=300"`
	Description     string          `json:"description"`
	Icon            string          `json:"icon"`
	Content         json.RawMessage `json:"content"`
	Image           string          `json:"image"`
	BackgroundColor string          `json:"backgroundColor"`
	NumericalOrder  int             `json:"numericalOrder" validate:"gte=0"`
}

func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	pages, err := h.repo.GetAll(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load landing page content")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pages)
}

func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	content, err := h.repo.GetPage(r.Context(), r.PathValue("page"))
	if err != nil {
		if errors.Is(err, ErrPageNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "page not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load landing page content")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, content)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var body upsertRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	page := strings.TrimSpace(r.PathValue("page"))
	if page == "" {
		httputil.WriteError(w, http.StatusBadRequest, "page is required")
		return
	}

	input := UpsertInput{
		Metadata: MetadataInput{
			Title:           strings.TrimSpace(body.Metadata.Title),
			Description:     body.Metadata.Description,
			BackgroundImage: body.Metadata.BackgroundImage,
			BackgroundColor: body.Metadata.BackgroundColor,
		},
	}
	for _, card := range body.SelectCards {
		input.Cards = append(input.Cards, CardInput{
			ID:              strings.TrimSpace(card.ID),
			Title:           strings.TrimSpace(card.Title),
			Description:     card.Description,
			Icon:            card.Icon,
			Content:         card.Content,
			Image:           card.Image,
			BackgroundColor: card.BackgroundColor,
			NumericalOrder:  card.NumericalOrder,
		})
	}

	content, err := h.repo.Upsert(r.Context(), page, input)
	if err != nil {
		if errors.Is(err, ErrCardLimit) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update landing page content")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, content)
}
