package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
)

const maxCreateAttempts = 3

type CreateOrderInput struct {
	Items         []ItemRequest
	Customer      CustomerInfo
	PaymentMethod string
}

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string, statusType StatusType) (*Order, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Order, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ApplyPaymentStatus mirrors a payment outcome onto the order. It joins the caller's transaction.
	ApplyPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) (*Order, error)
}

// Catalog is the part of the product catalog the order lifecycle reads and writes.
type Catalog interface {
	ProductReader
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error
}

type service struct {
	orderRepo Repository
	catalog   Catalog
	tx        db.Transactor
	validator *Validator
	numbers   *NumberGenerator
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(orderRepo Repository, catalog Catalog, tx db.Transactor) Service {
	return &service{
		orderRepo: orderRepo,
		catalog:   catalog,
		tx:        tx,
		validator: NewValidator(catalog),
		numbers:   NewNumberGenerator(orderRepo),
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		log.Warn().Msg("service: attempt to create order with no items")
		return nil, ErrEmptyOrder
	}

	if err := s.validate.Struct(input.Customer); err != nil {
		return nil, ErrInvalidCustomer.Wrap(err)
	}

	method, err := ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	verrs, products, err := s.validator.check(ctx, input.Items)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to validate order items")
		return nil, fmt.Errorf("service: failed to validate order items: %w", err)
	}
	if len(verrs) > 0 {
		log.Info().Int("errors", len(verrs)).Msg("service: order items rejected")
		return nil, verrs
	}

	order := &Order{
		Items:         make([]Item, 0, len(input.Items)),
		Customer:      input.Customer,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: method,
	}
	for _, req := range input.Items {
		p := products[req.ProductID]
		order.Items = append(order.Items, Item{
			ProductID: req.ProductID,
			Name:      LocalizedName{En: p.NameEn, Ar: p.NameAr},
			Quantity:  req.Quantity,
			Price:     p.Price,
		})
	}
	order.Total = order.CalculateTotal()

	for attempt := 1; ; attempt++ {
		number, err := s.numbers.Next(ctx)
		if err != nil {
			log.Error().Err(err).Msg("service: failed to generate order number")
			return nil, err
		}
		order.ID = uuid.Nil
		order.OrderNumber = number

		err = s.orderRepo.Create(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateOrderNumber) && attempt < maxCreateAttempts {
			log.Warn().Str("order_number", number).Int("attempt", attempt).Msg("service: order number taken at insert, retrying")
			continue
		}
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", order.ID).Str("order_number", order.OrderNumber).Str("total", order.Total.StringFixed(2)).Msg("service: order created successfully")

	return order, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return order, nil
}

func (s *service) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	order, err := s.orderRepo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Str("order_number", number).Msg("service: order not found by number")
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order by number: %w", err)
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Status != "" {
		if _, err := ParseStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	if filter.PaymentStatus != "" {
		if _, err := ParsePaymentStatus(string(filter.PaymentStatus)); err != nil {
			return nil, err
		}
	}

	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string, statusType StatusType) (*Order, error) {
	return s.transition(ctx, id, func(o *Order) error {
		return o.UpdateStatus(newStatus, statusType, s.now())
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, func(o *Order) error {
		if o.Status == StatusCancelled {
			return nil
		}
		if !o.CanBeCancelled() {
			return ErrNotCancellable.Withf("order %s cannot be cancelled in status %s", o.ID, o.Status)
		}
		return o.UpdateStatus(string(StatusCancelled), StatusTypeOrder, s.now())
	})
}

func (s *service) ApplyPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) (*Order, error) {
	return s.transition(ctx, id, func(o *Order) error {
		return o.UpdateStatus(string(status), StatusTypePayment, s.now())
	})
}

// transition loads the order, applies change and persists the result with a compare-and-swap
// on the statuses it was loaded with. Stock moves with the order in the same transaction.
func (s *service) transition(ctx context.Context, id uuid.UUID, change func(o *Order) error) (*Order, error) {
	var updated *Order

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orderRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		prevStatus, prevPayment := order.Status, order.PaymentStatus
		if err := change(order); err != nil {
			return err
		}
		if order.Status == prevStatus && order.PaymentStatus == prevPayment {
			updated = order
			return nil
		}

		if err := s.moveStock(ctx, order, prevStatus); err != nil {
			return err
		}

		if err := s.orderRepo.UpdateStatuses(ctx, order, prevStatus, prevPayment); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found, cannot update status")
		} else {
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: order status update rejected")
		}
		return nil, err
	}

	log.Info().Stringer("order_id", id).Stringer("order_status", updated.Status).Stringer("payment_status", updated.PaymentStatus).Msg("service: order statuses updated")
	return updated, nil
}

func (s *service) moveStock(ctx context.Context, order *Order, prevStatus Status) error {
	switch {
	case prevStatus == StatusPending && order.Status == StatusConfirmed:
		for _, item := range order.Items {
			if err := s.catalog.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("service: failed to reserve stock for order %s: %w", order.ID, err)
			}
		}
	case prevStatus == StatusConfirmed && order.Status == StatusCancelled:
		for _, item := range order.Items {
			if err := s.catalog.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("service: failed to restock for order %s: %w", order.ID, err)
			}
		}
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !order.CanBeDeleted() {
		log.Warn().Stringer("order_id", id).Stringer("payment_status", order.PaymentStatus).Msg("service: refusing to delete paid order")
		return ErrOrderPaid.Withf("order %s has payment status %s and cannot be deleted", id, order.PaymentStatus)
	}

	if err := s.orderRepo.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Stringer("order_id", id).Msg("service: order deleted")
	return nil
}
