package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/core/service"
)

type HTTPHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

type CreateOrderHTTPRequest struct {
	ItemID      string `json:"item_id"`
	SellerID    string `json:"seller_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type TransitionHTTPRequest struct {
	RequestID string `json:"request_id"`
	Phase     string `json:"phase"`
}

type AmountHTTPRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type CreateProposalHTTPRequest struct {
	ItemID     string `json:"item_id"`
	SellerID   string `json:"seller_id"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Message    string `json:"message"`
}

type DecisionHTTPRequest struct {
	Status string `json:"status"`
}

type OrderHTTPResponse struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id"`
	BuyerID        string    `json:"buyer_id"`
	SellerID       string    `json:"seller_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	Phase          string    `json:"phase"`
	NextPhases     []string  `json:"next_phases"`
	CreatedAt      time.Time `json:"created_at"`
	PhaseChangedAt time.Time `json:"phase_changed_at"`
}

type ProposalHTTPResponse struct {
	ID         string     `json:"id"`
	ItemID     string     `json:"item_id"`
	ProposerID string     `json:"proposer_id"`
	SellerID   string     `json:"seller_id"`
	PriceCents int64      `json:"price_cents"`
	Currency   string     `json:"currency"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

type DecisionHTTPResponse struct {
	Proposal ProposalHTTPResponse `json:"proposal"`
	Order    *OrderHTTPResponse   `json:"order,omitempty"`
}

type ErrorHTTPResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(orderService *service.OrderService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{orderService: orderService, logger: logger}
}

// Routes mounts the API behind auth. /health stays public.
func (h *HTTPHandler) Routes(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/transition", h.TransitionOrder)
		r.Put("/orders/{id}/amount", h.UpdateAmount)

		r.Post("/proposals", h.CreateProposal)
		r.Get("/proposals/{id}", h.GetProposal)
		r.Post("/proposals/{id}/decision", h.DecideProposal)
	})

	return r
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), domain.CreateOrderInput{
		ItemID:      req.ItemID,
		BuyerID:     UserIDFromContext(r.Context()),
		SellerID:    req.SellerID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListOrders(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]OrderHTTPResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req TransitionHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orderService.TransitionOrder(r.Context(), service.TransitionInput{
		RequestID: req.RequestID,
		ActorID:   UserIDFromContext(r.Context()),
		OrderID:   chi.URLParam(r, "id"),
		Phase:     req.Phase,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	var req AmountHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orderService.UpdateOrderAmount(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.AmountCents)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	var req CreateProposalHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.orderService.CreateProposal(r.Context(), domain.CreateProposalInput{
		ItemID:     req.ItemID,
		ProposerID: UserIDFromContext(r.Context()),
		SellerID:   req.SellerID,
		PriceCents: req.PriceCents,
		Currency:   req.Currency,
		Message:    req.Message,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProposalResponse(p))
}

func (h *HTTPHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.orderService.GetProposal(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func (h *HTTPHandler) DecideProposal(w http.ResponseWriter, r *http.Request) {
	var req DecisionHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.orderService.DecideProposal(r.Context(), service.DecideInput{
		ActorID:    UserIDFromContext(r.Context()),
		ProposalID: chi.URLParam(r, "id"),
		Status:     req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := DecisionHTTPResponse{Proposal: toProposalResponse(res.Proposal)}
	if res.Order != nil {
		o := toOrderResponse(res.Order)
		out.Order = &o
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps service errors onto HTTP statuses.
func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		message = "internal error"
	}
	writeError(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownPhase),
		errors.Is(err, service.ErrMissingRequestID),
		isValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, service.ErrConcurrentTransition),
		errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, domain.ErrAmountLocked):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		domain.ErrEmptyItemID,
		domain.ErrEmptyBuyerID,
		domain.ErrEmptySellerID,
		domain.ErrEmptyProposerID,
		domain.ErrInvalidAmount,
		domain.ErrSelfPurchase,
		domain.ErrMessageTooLong,
		domain.ErrInvalidCurrency,
		domain.ErrIDTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func toOrderResponse(o *domain.Order) OrderHTTPResponse {
	next := make([]string, 0, 2)
	for _, p := range o.Phase.Successors() {
		next = append(next, p.String())
	}
	return OrderHTTPResponse{
		ID:             o.ID,
		ItemID:         o.ItemID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		AmountCents:    o.AmountCents,
		Currency:       o.Currency,
		Phase:          o.Phase.String(),
		NextPhases:     next,
		CreatedAt:      o.CreatedAt,
		PhaseChangedAt: o.PhaseChangedAt,
	}
}

func toProposalResponse(p *domain.Proposal) ProposalHTTPResponse {
	return ProposalHTTPResponse{
		ID:         p.ID,
		ItemID:     p.ItemID,
		ProposerID: p.ProposerID,
		SellerID:   p.SellerID,
		PriceCents: p.PriceCents,
		Currency:   p.Currency,
		Message:    p.Message,
		Status:     p.Status.String(),
		CreatedAt:  p.CreatedAt,
		DecidedAt:  p.DecidedAt,
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorHTTPResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
