package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"paygate/internal/common/api"
	"paygate/internal/common/database"
	"paygate/internal/common/middleware"
	"paygate/internal/payment"
	"paygate/internal/payment/domain"
)

// OrderRegistry registers store orders the gateway will be asked to pay and
// exposes their audit trail.
type OrderRegistry interface {
	Create(ctx context.Context, order *domain.Order) error
	Notes(ctx context.Context, id string) ([]string, error)
}

// CardLister lists a customer's saved cards.
type CardLister interface {
	ListCards(ctx context.Context, customerID string) ([]domain.SavedCard, error)
}

// Handler exposes the payment entry points over HTTP.
type Handler struct {
	orchestrator *payment.Orchestrator
	orders       OrderRegistry
	cards        CardLister
	limiter      middleware.RateLimiter
	adminKey     string
	logger       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimiter throttles the customer-facing callbacks per client IP.
func WithRateLimiter(l middleware.RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithAdminKey sets the API key required by the capture and refund routes.
func WithAdminKey(key string) Option {
	return func(h *Handler) { h.adminKey = key }
}

// WithOrders enables order registration and the notes route.
func WithOrders(o OrderRegistry) Option {
	return func(h *Handler) { h.orders = o }
}

// WithCards enables the saved cards route.
func WithCards(c CardLister) Option {
	return func(h *Handler) { h.cards = c }
}

// NewHandler creates a new payment handler
func NewHandler(orchestrator *payment.Orchestrator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{orchestrator: orchestrator, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Browser-facing callbacks
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(middleware.RateLimit(h.limiter, middleware.RemoteIP, h.logger))
		}
		r.Get("/session/{orderID}", h.CreateSession)
		r.Get("/checkout-session/{orderID}", h.CreateCheckoutSession)
		r.Post("/save-payment/{orderID}", h.SavePayment)
		r.Get("/return", h.Return)
		r.Post("/return", h.Return)
		r.Get("/webhook", h.Webhook)
	})

	// Store and merchant admin routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(h.adminKey))
		if h.orders != nil {
			r.Post("/orders", h.CreateOrder)
			r.Get("/orders/{orderID}/notes", h.ListNotes)
		}
		if h.cards != nil {
			r.Get("/customers/{customerID}/cards", h.ListCards)
		}
		r.Post("/orders/{orderID}/pay", h.ProcessPayment)
		r.Post("/orders/{orderID}/capture", h.Capture)
		r.Post("/orders/{orderID}/refund", h.Refund)
	})

	return r
}

// CreateSession handles GET /session/{orderID}
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.orchestrator.OnCreateSessionRequest(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, info)
}

// CreateCheckoutSession handles GET /checkout-session/{orderID}
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.orchestrator.OnCreateCheckoutSessionRequest(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, info)
}

// SavePayment handles POST /save-payment/{orderID}, posted by the card form
// once the session holds the card details.
func (h *Handler) SavePayment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.BadRequest(w, "malformed form body")
		return
	}

	form := payment.SavePaymentForm{
		SessionID:         strings.TrimSpace(r.PostForm.Get("session_id")),
		SessionVersion:    strings.TrimSpace(r.PostForm.Get("session_version")),
		Check3DS:          formFlag(r.PostForm.Get("check_3ds_enrollment")),
		SaveCard:          formFlag(r.PostForm.Get("save_new_card")),
		AuthTransactionID: strings.TrimSpace(r.PostForm.Get("authentication_transaction_id")),
	}
	if err := api.Validate.Struct(form); err != nil {
		api.ValidationError(w, err)
		return
	}

	out, err := h.orchestrator.OnSavePaymentRequest(r.Context(), chi.URLParam(r, "orderID"), form)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOutcome(w, r, out)
}

// Return handles GET and POST /return. The ACS posts the PARes here; hosted
// checkout redirects here with the result indicator in the query.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.BadRequest(w, "malformed callback")
		return
	}

	out, err := h.orchestrator.OnReturn(r.Context(), payment.ParseReturnParams(r.Form))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOutcome(w, r, out)
}

// Webhook handles GET /webhook. Gateway notifications are acknowledged and
// otherwise ignored; the return callback is authoritative.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("webhook received", "correlation_id", middleware.GetCorrelationID(r.Context()))
	w.WriteHeader(http.StatusOK)
}

// AddressRequest is a postal address in an order request
type AddressRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Company   string `json:"company" validate:"max=100"`
	Address1  string `json:"address_1" validate:"max=255"`
	Address2  string `json:"address_2" validate:"max=255"`
	City      string `json:"city" validate:"max=100"`
	State     string `json:"state" validate:"max=100"`
	Postcode  string `json:"postcode" validate:"max=20"`
	Country   string `json:"country" validate:"omitempty,len=2"`
	Phone     string `json:"phone" validate:"max=50"`
}

func (a AddressRequest) toDomain() domain.Address {
	return domain.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Company:   a.Company,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		State:     a.State,
		Postcode:  a.Postcode,
		Country:   strings.ToUpper(a.Country),
		Phone:     a.Phone,
	}
}

// CreateOrderRequest is the API request for registering a store order
type CreateOrderRequest struct {
	ID         string         `json:"id" validate:"required,max=64"`
	CustomerID string         `json:"customer_id" validate:"max=64"`
	Email      string         `json:"email" validate:"required,email"`
	Total      string         `json:"total" validate:"required,numeric"`
	Currency   string         `json:"currency" validate:"required,len=3"`
	Billing    AddressRequest `json:"billing"`
	Shipping   AddressRequest `json:"shipping"`
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	order := &domain.Order{
		ID:         req.ID,
		CustomerID: req.CustomerID,
		Email:      req.Email,
		Total:      req.Total,
		Currency:   strings.ToUpper(req.Currency),
		Status:     domain.StatusPending,
		Billing:    req.Billing.toDomain(),
		Shipping:   req.Shipping.toDomain(),
		Metadata:   domain.Metadata{},
	}
	if _, err := order.Amount(); err != nil {
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, err.Error())
		return
	}

	if err := h.orders.Create(r.Context(), order); err != nil {
		if errors.Is(err, database.ErrConflict) {
			api.Conflict(w, "order with this id already exists")
			return
		}
		h.writeError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusCreated, order)
}

// ListNotes handles GET /orders/{orderID}/notes
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.orders.Notes(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, notes)
}

// ListCards handles GET /customers/{customerID}/cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.ListCards(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, cards)
}

// ProcessPayment handles POST /orders/{orderID}/pay
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.orchestrator.OnProcessPayment(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, map[string]string{"result": "success", "redirect": redirect})
}

// Capture handles POST /orders/{orderID}/capture
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	res, err := h.orchestrator.OnCaptureRequest(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, res)
}

// RefundRequest is the API request for a refund
type RefundRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Reason string `json:"reason" validate:"max=255"`
}

// Refund handles POST /orders/{orderID}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	res, err := h.orchestrator.OnRefundRequest(r.Context(), chi.URLParam(r, "orderID"), req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, res)
}

func formFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

var acsTemplate = template.Must(template.New("acs").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Card authentication</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.ACSUrl}}">
<input type="hidden" name="PaReq" value="{{.PaReq}}">
<input type="hidden" name="TermUrl" value="{{.TermURL}}">
<input type="hidden" name="MD" value="">
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// writeOutcome sends the browser on: an ACS challenge renders a self-posting
// form, everything else is a redirect.
func (h *Handler) writeOutcome(w http.ResponseWriter, r *http.Request, out payment.Outcome) {
	if out.Kind == payment.Challenge && out.Challenge != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if err := acsTemplate.Execute(w, out.Challenge); err != nil {
			h.logger.Error("failed to render ACS form", "order_id", out.OrderID, "error", err)
		}
		return
	}
	if out.RedirectURL == "" {
		h.logger.Error("outcome without redirect", "order_id", out.OrderID, "kind", out.Kind.String())
		api.InternalError(w, "payment outcome has no destination")
		return
	}
	http.Redirect(w, r, out.RedirectURL, http.StatusSeeOther)
}

var conflictErrors = []error{
	domain.ErrAlreadyPaid,
	payment.ErrAlreadyCaptured,
	payment.ErrWrongOrderStatus,
	payment.ErrNotPaid,
	payment.ErrWrongFlow,
	payment.ErrPaymentInProgress,
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		declined  *payment.DeclinedError
		gwErr     *domain.GatewayError
		integrity *payment.IntegrityError
		invalid   *payment.ValidationError
	)

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		api.NotFound(w, "order not found")
		return
	case errors.As(err, &declined):
		api.WriteError(w, http.StatusPaymentRequired, api.ErrCodePaymentDeclined, declined.Reason)
		return
	case errors.As(err, &gwErr):
		api.WriteError(w, http.StatusPaymentRequired, api.ErrCodePaymentDeclined, gwErr.Error())
		return
	case errors.Is(err, domain.ErrTransport), errors.As(err, &integrity):
		h.logger.Error("gateway unavailable", "path", r.URL.Path, "error", err,
			"correlation_id", middleware.GetCorrelationID(r.Context()))
		api.BadGateway(w, "payment gateway unavailable")
		return
	}

	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			api.Conflict(w, err.Error())
			return
		}
	}
	if errors.As(err, &invalid) {
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, invalid.Reason)
		return
	}

	h.logger.Error("payment request failed", "path", r.URL.Path, "error", err,
		"correlation_id", middleware.GetCorrelationID(r.Context()))
	api.InternalError(w, "failed to process payment request")
}
