package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stellare-shop/builder/internal/gesture"
	"github.com/stellare-shop/builder/internal/platform/httpx"
	"github.com/stellare-shop/builder/internal/services"
)

// SessionHandlers exposes the builder session lifecycle and every
// composition operation, including the gesture endpoints.
type SessionHandlers struct {
	builder     services.BuilderService
	submissions services.SubmissionService
	gestures    *gesture.Resolver

	submitMiddlewares []func(http.Handler) http.Handler
}

// SessionOption customises the session handlers before route registration.
type SessionOption func(*SessionHandlers)

// WithSubmitMiddlewares applies middleware to the submit endpoint only.
// The other session endpoints stay unguarded; replaying a cached response
// would stall the gesture state machine and the engine operations are
// already safe to repeat.
func WithSubmitMiddlewares(mw ...func(http.Handler) http.Handler) SessionOption {
	return func(h *SessionHandlers) {
		h.submitMiddlewares = append(h.submitMiddlewares, mw...)
	}
}

// NewSessionHandlers constructs handlers over the builder, submission and
// gesture services.
func NewSessionHandlers(builder services.BuilderService, submissions services.SubmissionService, gestures *gesture.Resolver, opts ...SessionOption) *SessionHandlers {
	h := &SessionHandlers{
		builder:     builder,
		submissions: submissions,
		gestures:    gestures,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /sessions endpoints onto the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createSession)
	r.Route("/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.getSession)
		sr.Delete("/", h.deleteSession)
		sr.Put("/base", h.selectBase)
		sr.Post("/charms", h.assign)
		sr.Delete("/slots/{index}", h.removeAt)
		sr.Delete("/placements/{placementID}", h.removePlacement)
		sr.Post("/relocate", h.relocate)
		sr.Put("/capacity", h.resize)
		sr.Post("/clear", h.clear)
		sr.Get("/summary", h.summary)
		sr.Get("/line-items", h.lineItems)
		sr.With(h.submitMiddlewares...).Post("/submit", h.submit)
		sr.Route("/gestures", func(gr chi.Router) {
			gr.Post("/touch-start", h.touchStart)
			gr.Post("/touch-move", h.touchMove)
			gr.Post("/touch-end", h.touchEnd)
			gr.Post("/pointer-drop", h.pointerDrop)
			gr.Get("/state", h.gestureState)
		})
	})
}

type createSessionRequest struct {
	Capacity int `json:"capacity"`
}

type selectBaseRequest struct {
	BraceletID int64 `json:"braceletId"`
}

type assignRequest struct {
	CharmID int64 `json:"charmId"`
	Slot    *int  `json:"slot"`
}

type relocateRequest struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

type resizeRequest struct {
	Capacity  int  `json:"capacity"`
	Confirmed bool `json:"confirmed"`
}

type clearRequest struct {
	Confirmed bool `json:"confirmed"`
}

type relocateResponse struct {
	Outcome string               `json:"outcome"`
	Session services.SessionView `json:"session"`
}

type lineItemsResponse struct {
	Items []lineItemPayload `json:"items"`
}

type lineItemPayload struct {
	VariantID  int64             `json:"variantId"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

type submitResponse struct {
	ItemCount       int    `json:"itemCount"`
	CartCount       int    `json:"cartCount"`
	RedirectURL     string `json:"redirectUrl"`
	RedirectDelayMs int64  `json:"redirectDelayMs"`
}

type touchStartRequest struct {
	Payload gesture.Payload `json:"payload"`
	Origin  gesture.Point   `json:"origin"`
}

type touchMoveRequest struct {
	Point gesture.Point `json:"point"`
}

type touchEndRequest struct {
	Point  gesture.Point  `json:"point"`
	Layout gesture.Region `json:"layout"`
}

type pointerDropRequest struct {
	Payload gesture.Payload `json:"payload"`
	Slot    *int            `json:"slot"`
}

type gestureStateResponse struct {
	Dragging bool `json:"dragging"`
}

func (h *SessionHandlers) builderReady(w http.ResponseWriter, r *http.Request) bool {
	if h.builder == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("builder_service_unavailable", "builder service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *SessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}

	var req createSessionRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	view, err := h.builder.CreateSession(ctx, services.CreateSessionCommand{Capacity: req.Capacity})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, view)
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	view, err := h.builder.GetSession(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SessionHandlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.builder.DeleteSession(ctx, sessionID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if h.gestures != nil {
		h.gestures.Forget(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandlers) selectBase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	var req selectBaseRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	view, err := h.builder.SelectBase(ctx, services.SelectBaseCommand{
		SessionID:  chi.URLParam(r, "sessionID"),
		BraceletID: req.BraceletID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// assign places a charm, either into the first empty slot or, when the
// request names one, into an explicit slot.
func (h *SessionHandlers) assign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	var req assignRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	var (
		view services.SessionView
		err  error
	)
	if req.Slot != nil {
		view, err = h.builder.AssignAt(ctx, services.AssignAtCommand{
			SessionID: sessionID,
			CharmID:   req.CharmID,
			Slot:      *req.Slot,
		})
	} else {
		view, err = h.builder.Assign(ctx, services.AssignCommand{
			SessionID: sessionID,
			CharmID:   req.CharmID,
		})
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SessionHandlers) removeAt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	index, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "index")))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "slot index must be an integer", http.StatusBadRequest))
		return
	}

	view, err := h.builder.RemoveAt(ctx, services.RemoveAtCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		Slot:      index,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SessionHandlers) removePlacement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	view, err := h.builder.RemovePlacement(ctx, services.RemovePlacementCommand{
		SessionID:   chi.URLParam(r, "sessionID"),
		PlacementID: chi.URLParam(r, "placementID"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SessionHandlers) relocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	var req relocateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.builder.Relocate(ctx, services.RelocateCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		Source:    req.Source,
		Target:    req.Target,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, relocateResponse{
		Outcome: string(result.Outcome),
		Session: result.Session,
	})
}

func (h *SessionHandlers) resize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	var req resizeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	view, err := h.builder.Resize(ctx, services.ResizeCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		Capacity:  req.Capacity,
		Confirmed: req.Confirmed,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SessionHandlers) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	var req clearRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	view, err := h.builder.Clear(ctx, services.ClearCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		Confirmed: req.Confirmed,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SessionHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	summary, err := h.builder.Summary(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, summary)
}

func (h *SessionHandlers) lineItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.builderReady(w, r) {
		return
	}
	items, err := h.builder.LineItems(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := lineItemsResponse{Items: make([]lineItemPayload, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, lineItemPayload{
			VariantID:  item.VariantID,
			Quantity:   item.Quantity,
			Properties: item.Properties,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *SessionHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.submissions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("submission_service_unavailable", "submission service is unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.submissions.Submit(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, submitResponse{
		ItemCount:       result.ItemCount,
		CartCount:       result.CartCount,
		RedirectURL:     result.RedirectURL,
		RedirectDelayMs: int64(result.RedirectDelay / time.Millisecond),
	})
}

func (h *SessionHandlers) touchStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gestures == nil {
		httpx.WriteError(ctx, w, httpx.NewError("gesture_service_unavailable", "gesture resolver is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req touchStartRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := h.gestures.TouchStart(chi.URLParam(r, "sessionID"), req.Payload, req.Origin); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandlers) touchMove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gestures == nil {
		httpx.WriteError(ctx, w, httpx.NewError("gesture_service_unavailable", "gesture resolver is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req touchMoveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	dragging, err := h.gestures.TouchMove(chi.URLParam(r, "sessionID"), req.Point)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, gestureStateResponse{Dragging: dragging})
}

func (h *SessionHandlers) touchEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gestures == nil {
		httpx.WriteError(ctx, w, httpx.NewError("gesture_service_unavailable", "gesture resolver is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req touchEndRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	outcome, err := h.gestures.TouchEnd(ctx, chi.URLParam(r, "sessionID"), req.Point, req.Layout)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, outcome)
}

func (h *SessionHandlers) pointerDrop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gestures == nil {
		httpx.WriteError(ctx, w, httpx.NewError("gesture_service_unavailable", "gesture resolver is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req pointerDropRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	var (
		outcome gesture.Outcome
		err     error
	)
	if req.Slot != nil {
		outcome, err = h.gestures.PointerDrop(ctx, sessionID, req.Payload, *req.Slot)
	} else {
		outcome, err = h.gestures.PointerDropOutside(sessionID, req.Payload)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, outcome)
}

func (h *SessionHandlers) gestureState(w http.ResponseWriter, r *http.Request) {
	if h.gestures == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("gesture_service_unavailable", "gesture resolver is unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, gestureStateResponse{
		Dragging: h.gestures.IsDragging(chi.URLParam(r, "sessionID")),
	})
}
