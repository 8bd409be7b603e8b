package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
)

// SignatureHeader carries the hex HMAC-SHA256 of a webhook body.
const SignatureHeader = "X-Signature"

type QuoteRequest struct {
	Method   string          `json:"method" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
}

type InitPaymentRequest struct {
	OrderID  uuid.UUID        `json:"order_id" validate:"required"`
	Method   string           `json:"method,omitempty"`
	Currency string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	Details  *payment.Details `json:"details,omitempty"`
}

type ProcessPaymentRequest struct {
	Details payment.Details `json:"details"`
}

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type VerifyTransferRequest struct {
	Verified *bool  `json:"verified" validate:"required"`
	Notes    string `json:"notes" validate:"max=500"`
}

type FeeResponse struct {
	Currency   string          `json:"currency"`
	Fixed      decimal.Decimal `json:"fixed_fee"`
	Percentage decimal.Decimal `json:"percentage_fee"`
}

type MethodResponse struct {
	Method      order.PaymentMethod `json:"method"`
	DisplayName string              `json:"display_name"`
	MinAmount   decimal.Decimal     `json:"min_amount"`
	MaxAmount   *decimal.Decimal    `json:"max_amount,omitempty"`
	Currencies  []string            `json:"currencies"`
	Active      bool                `json:"active"`
	Fees        []FeeResponse       `json:"fees"`
}

type PaymentHandler struct {
	service  payment.Service
	validate *validator.Validate
}

func NewPaymentHandler(service payment.Service) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Get("/payments/methods", h.handleListMethods)
	router.Post("/payments/quote", h.handleQuote)
	router.Post("/payments", h.handleInitialize)
	router.Get("/payments/{id}", h.handleGetPayment)
	router.Post("/payments/{id}/process", h.handleProcess)
	router.Post("/payments/{id}/capture", h.handleCapture)
	router.Post("/payments/{id}/refunds", h.handleRefund)
	router.Post("/payments/{id}/verify", h.handleVerifyTransfer)
	router.Get("/orders/{id}/payments", h.handleListForOrder)
	router.Post("/webhooks/{provider}", h.handleWebhook)
}

func (h *PaymentHandler) handleListMethods(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.ListMethods(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "list payment methods")
		return
	}

	response := make([]MethodResponse, 0, len(configs))
	for _, cfg := range configs {
		m := MethodResponse{
			Method:      cfg.Method,
			DisplayName: cfg.DisplayName,
			MinAmount:   cfg.MinAmount,
			Currencies:  cfg.Currencies,
			Active:      cfg.Active,
			Fees:        make([]FeeResponse, 0, len(cfg.Fees)),
		}
		if cfg.MaxAmount.IsPositive() {
			limit := cfg.MaxAmount
			m.MaxAmount = &limit
		}
		for _, currency := range cfg.Currencies {
			if fee, ok := cfg.Fees[currency]; ok {
				m.Fees = append(m.Fees, FeeResponse{Currency: currency, Fixed: fee.Fixed, Percentage: fee.Percentage})
			}
		}
		response = append(response, m)
	}

	respondWithJSON(w, http.StatusOK, response)
}

func (h *PaymentHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var requestPayload QuoteRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	quote, err := h.service.Quote(r.Context(), payment.QuoteRequest{
		Method:   requestPayload.Method,
		Amount:   requestPayload.Amount,
		Currency: requestPayload.Currency,
	})
	if err != nil {
		respondWithServiceError(w, err, "quote payment")
		return
	}

	respondWithJSON(w, http.StatusOK, quote)
}

func (h *PaymentHandler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var requestPayload InitPaymentRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	result, err := h.service.InitializePayment(r.Context(), payment.InitRequest{
		OrderID:  requestPayload.OrderID,
		Method:   requestPayload.Method,
		Currency: requestPayload.Currency,
		Details:  requestPayload.Details,
	})
	if err != nil {
		respondWithServiceError(w, err, "initialize payment")
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

func (h *PaymentHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetPayment(r.Context(), paymentID)
	if err != nil {
		respondWithServiceError(w, err, "get payment")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *PaymentHandler) handleListForOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.service.ListForOrder(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err, "list payments")
		return
	}

	respondWithJSON(w, http.StatusOK, payments)
}

func (h *PaymentHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var requestPayload ProcessPaymentRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	result, err := h.service.ProcessPayment(r.Context(), paymentID, requestPayload.Details)
	if err != nil {
		respondWithServiceError(w, err, "process payment")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) handleCapture(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.Capture(r.Context(), paymentID)
	if err != nil {
		respondWithServiceError(w, err, "capture payment")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) handleRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	paymentID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var requestPayload RefundRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	refund, err := h.service.ProcessRefund(r.Context(), payment.RefundRequest{
		PaymentID: paymentID,
		Amount:    requestPayload.Amount,
		Reason:    requestPayload.Reason,
		ActorID:   actor,
	})
	if err != nil {
		if refund != nil && errors.Is(err, payment.ErrProcessorFailure) {
			log.Warn().Err(err).Stringer("refund_id", refund.ID).Msg("Refund failed at the processor")
			respondWithJSON(w, http.StatusBadGateway, refund)
			return
		}
		respondWithServiceError(w, err, "refund payment")
		return
	}

	respondWithJSON(w, http.StatusCreated, refund)
}

func (h *PaymentHandler) handleVerifyTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	paymentID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var requestPayload VerifyTransferRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	verified, err := h.service.VerifyBankTransfer(r.Context(), payment.VerifyRequest{
		PaymentID: paymentID,
		Verified:  *requestPayload.Verified,
		Notes:     requestPayload.Notes,
		ActorID:   actor,
	})
	if err != nil {
		respondWithServiceError(w, err, "verify bank transfer")
		return
	}

	respondWithJSON(w, http.StatusOK, verified)
}

// handleWebhook checks the signature over the raw body before anything is decoded.
func (h *PaymentHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.service.VerifyWebhookSignature(provider, body, r.Header.Get(SignatureHeader)); err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			respondWithJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid signature", Code: "INVALID_SIGNATURE"})
			return
		}
		respondWithServiceError(w, err, "verify webhook")
		return
	}

	var notification payment.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to decode webhook body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	notification.Provider = provider

	result, err := h.service.HandleWebhook(r.Context(), notification)
	if err != nil {
		respondWithServiceError(w, err, "handle webhook")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
