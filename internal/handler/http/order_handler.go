package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

type OrderItemRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CreateOrderRequest leaves item checks to the order validator so every bad line is reported at once.
type CreateOrderRequest struct {
	Items         []OrderItemRequest `json:"items" validate:"required,min=1,max=100"`
	Customer      order.CustomerInfo `json:"customer_info"`
	PaymentMethod string             `json:"payment_method" validate:"required,oneof=card mobile_wallet cash_on_delivery paypal bank_transfer"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=order payment"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/number/{number}", h.handleGetOrderByNumber)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Post("/orders/{id}/cancel", h.handleCancelOrder)
	router.Delete("/orders/{id}", h.handleDeleteOrder)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	items := make([]order.ItemRequest, 0, len(requestPayload.Items))
	for _, item := range requestPayload.Items {
		items = append(items, order.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	created, err := h.service.CreateOrder(r.Context(), order.CreateOrderInput{
		Items:         items,
		Customer:      requestPayload.Customer,
		PaymentMethod: requestPayload.PaymentMethod,
	})
	if err != nil {
		respondWithServiceError(w, err, "create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err, "get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if number == "" {
		respondWithError(w, http.StatusBadRequest, "Order number cannot be empty")
		return
	}

	found, err := h.service.GetOrderByNumber(r.Context(), number)
	if err != nil {
		respondWithServiceError(w, err, "get order by number")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter order.ListFilter

	if v := query.Get("status"); v != "" {
		status, err := order.ParseStatus(v)
		if err != nil {
			respondWithServiceError(w, err, "list orders")
			return
		}
		filter.Status = status
	}
	if v := query.Get("payment_status"); v != "" {
		status, err := order.ParsePaymentStatus(v)
		if err != nil {
			respondWithServiceError(w, err, "list orders")
			return
		}
		filter.PaymentStatus = status
	}
	for param, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := query.Get(param)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid "+param+" parameter")
			return
		}
		*dst = n
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err, "list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}
	statusType := order.StatusTypeOrder
	if requestPayload.Type != "" {
		statusType = order.StatusType(requestPayload.Type)
	}

	updated, err := h.service.UpdateStatus(r.Context(), orderID, requestPayload.Status, statusType)
	if err != nil {
		respondWithServiceError(w, err, "update order status")
		return
	}

	log.Info().Stringer("order_id", orderID).Str("actor_id", actor).Str("status", requestPayload.Status).Str("type", string(statusType)).Msg("Order status updated")
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	cancelled, err := h.service.Cancel(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err, "cancel order")
		return
	}

	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), orderID); err != nil {
		respondWithServiceError(w, err, "delete order")
		return
	}

	log.Info().Stringer("order_id", orderID).Str("actor_id", actor).Msg("Order deleted")
	w.WriteHeader(http.StatusNoContent)
}
