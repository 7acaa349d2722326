package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/stellare-shop/builder/internal/domain"
	"github.com/stellare-shop/builder/internal/gesture"
	"github.com/stellare-shop/builder/internal/platform/httpx"
	"github.com/stellare-shop/builder/internal/platform/pagination"
	"github.com/stellare-shop/builder/internal/services"
)

// writeServiceError translates service and domain errors into the shared
// error envelope. Unrecognised errors become an opaque 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var confirmErr *services.ConfirmationRequiredError
	if errors.As(err, &confirmErr) {
		httpErr := httpx.NewError("confirmation_required", err.Error(), http.StatusConflict).
			WithDetails(map[string]any{"wouldDiscard": confirmErr.WouldDiscard})
		httpx.WriteError(ctx, w, httpErr)
		return
	}

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrConfirmationRequired):
		httpx.WriteError(ctx, w, httpx.NewError("confirmation_required", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrSubmitInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("submit_in_flight", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCompositionFull):
		httpx.WriteError(ctx, w, httpx.NewError("composition_full", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCapacityExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("capacity_exceeded", err.Error(), http.StatusConflict))
	case errors.Is(err, domain.ErrSlotOccupied):
		httpx.WriteError(ctx, w, httpx.NewError("slot_occupied", err.Error(), http.StatusConflict))
	case errors.Is(err, domain.ErrEmptySlot):
		httpx.WriteError(ctx, w, httpx.NewError("empty_slot", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrNoBaseSelected):
		httpx.WriteError(ctx, w, httpx.NewError("no_base_selected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrNoCharmsSelected):
		httpx.WriteError(ctx, w, httpx.NewError("no_charms_selected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, domain.ErrIndexOutOfRange):
		httpx.WriteError(ctx, w, httpx.NewError("index_out_of_range", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrBuilderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, gesture.ErrInvalidPayload), errors.Is(err, gesture.ErrNoActiveGesture):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_gesture", err.Error(), http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidPageSize), errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", err.Error(), http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrSubmissionFailed):
		httpx.WriteError(ctx, w, httpx.NewError("submission_failed", err.Error(), http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
