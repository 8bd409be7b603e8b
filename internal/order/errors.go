package order

import (
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/apperr"
)

var (
	ErrOrderNotFound = apperr.New(apperr.KindNotFound, "ORDER_NOT_FOUND", "order not found")

	ErrEmptyOrder           = apperr.New(apperr.KindValidation, "EMPTY_ORDER", "order must contain at least one item")
	ErrInvalidCustomer      = apperr.New(apperr.KindValidation, "INVALID_CUSTOMER_INFO", "invalid customer info")
	ErrInvalidStatus        = apperr.New(apperr.KindValidation, "INVALID_STATUS", "invalid status")
	ErrInvalidStatusType    = apperr.New(apperr.KindValidation, "INVALID_STATUS_TYPE", "invalid status type")
	ErrInvalidPaymentMethod = apperr.New(apperr.KindValidation, "INVALID_PAYMENT_METHOD", "invalid payment method")
	ErrTotalMismatch        = apperr.New(apperr.KindValidation, "TOTAL_MISMATCH", "order total does not match its items")

	ErrInvalidTransition = apperr.New(apperr.KindRuleViolation, "INVALID_STATUS_TRANSITION", "invalid status transition")
	ErrNotCancellable    = apperr.New(apperr.KindRuleViolation, "ORDER_NOT_CANCELLABLE", "order cannot be cancelled")
	ErrOrderPaid         = apperr.New(apperr.KindRuleViolation, "ORDER_ALREADY_PAID", "paid orders cannot be deleted")

	ErrConcurrentUpdate     = apperr.New(apperr.KindConflict, "ORDER_CONCURRENT_UPDATE", "order was modified concurrently")
	ErrDuplicateOrderNumber = apperr.New(apperr.KindConflict, "DUPLICATE_ORDER_NUMBER", "order number already exists")
	ErrOrderNumberExhausted = apperr.New(apperr.KindInternal, "ORDER_NUMBER_EXHAUSTED", "could not generate a unique order number")
)
