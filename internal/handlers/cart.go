package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stellare-shop/builder/internal/platform/httpx"
	"github.com/stellare-shop/builder/internal/services"
)

// CartHandlers exposes read access to the shop cart.
type CartHandlers struct {
	submissions services.SubmissionService
}

// NewCartHandlers constructs handlers over the submission service.
func NewCartHandlers(submissions services.SubmissionService) *CartHandlers {
	return &CartHandlers{submissions: submissions}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/count", h.count)
}

type cartCountResponse struct {
	Count int `json:"count"`
}

func (h *CartHandlers) count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.submissions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	count, err := h.submissions.CartCount(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unreachable", "shop cart is unreachable", http.StatusBadGateway))
		return
	}
	writeJSONResponse(w, http.StatusOK, cartCountResponse{Count: count})
}
