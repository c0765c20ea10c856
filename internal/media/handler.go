package media

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/lekimminhquan/Online-Vina-BE/internal/httputil"
)

type UploadHandler struct {
	client *Cloudinary
}

func NewUploadHandler(client *Cloudinary) *UploadHandler {
	return &UploadHandler{client: client}
}

type uploadRequest struct {
	// Image accepts a data URI, a remote URL or a raw base64 payload.
	Image string `json:"image" validate:"required"`
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var body uploadRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	source := strings.TrimSpace(body.Image)
	if !strings.HasPrefix(source, "data:") && !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		// Raw base64 without a data URI wrapper; default to PNG.
		source = "data:image/png;base64," + source
	}

	result, err := h.client.UploadImage(r.Context(), source)
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusBadGateway, "image upload failed")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}
