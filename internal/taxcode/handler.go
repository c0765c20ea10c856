package taxcode

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/lekimminhquan/Online-Vina-BE/internal/httputil"
)

type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// Info handles GET /tax-code/info?mst=... and returns the registration
// record behind the given tax identifier.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	mst := strings.TrimSpace(r.URL.Query().Get("mst"))
	if mst == "" {
		httputil.WriteError(w, http.StatusBadRequest, "mst is required")
		return
	}

	info, err := h.client.Lookup(r.Context(), mst)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "tax code not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusBadGateway, "tax code lookup failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, info)
}
