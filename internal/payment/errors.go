package payment

import (
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/apperr"
)

var (
	ErrPaymentNotFound = apperr.New(apperr.KindNotFound, "PAYMENT_NOT_FOUND", "payment not found")
	ErrUnknownProvider = apperr.New(apperr.KindNotFound, "UNKNOWN_PROVIDER", "unknown webhook provider")

	ErrInvalidDetails      = apperr.New(apperr.KindValidation, "INVALID_PAYMENT_DETAILS", "invalid payment details")
	ErrInvalidAmount       = apperr.New(apperr.KindValidation, "INVALID_AMOUNT", "amount must be positive")
	ErrInvalidCurrency     = apperr.New(apperr.KindValidation, "INVALID_CURRENCY", "invalid currency")
	ErrActorRequired       = apperr.New(apperr.KindValidation, "ACTOR_REQUIRED", "an actor id is required")
	ErrInvalidSignature    = apperr.New(apperr.KindValidation, "INVALID_SIGNATURE", "webhook signature does not match")
	ErrInvalidNotification = apperr.New(apperr.KindValidation, "INVALID_NOTIFICATION", "invalid webhook notification")

	ErrMethodUnavailable      = apperr.New(apperr.KindRuleViolation, "METHOD_UNAVAILABLE", "payment method is not available")
	ErrCurrencyNotSupported   = apperr.New(apperr.KindRuleViolation, "CURRENCY_NOT_SUPPORTED", "currency not supported by payment method")
	ErrFeeNotConfigured       = apperr.New(apperr.KindRuleViolation, "FEE_NOT_CONFIGURED", "no fee schedule for method and currency")
	ErrAmountOutOfRange       = apperr.New(apperr.KindRuleViolation, "AMOUNT_OUT_OF_RANGE", "amount outside the method limits")
	ErrOrderNotPayable        = apperr.New(apperr.KindRuleViolation, "ORDER_NOT_PAYABLE", "order cannot accept a payment")
	ErrPaymentExpired         = apperr.New(apperr.KindRuleViolation, "PAYMENT_EXPIRED", "payment has expired")
	ErrInvalidPaymentState    = apperr.New(apperr.KindRuleViolation, "INVALID_PAYMENT_STATE", "payment is not in a state that allows this action")
	ErrNotBankTransfer        = apperr.New(apperr.KindRuleViolation, "NOT_BANK_TRANSFER", "payment was not made by bank transfer")
	ErrNotCapturable          = apperr.New(apperr.KindRuleViolation, "NOT_CAPTURABLE", "payment method does not support capture")
	ErrRefundNotAllowed       = apperr.New(apperr.KindRuleViolation, "REFUND_NOT_ALLOWED", "order is not eligible for a refund")
	ErrRefundExceedsRemaining = apperr.New(apperr.KindRuleViolation, "REFUND_EXCEEDS_REMAINING", "refund exceeds the remaining refundable amount")

	ErrProcessorFailure = apperr.New(apperr.KindProcessor, "PROCESSOR_FAILURE", "payment processor failure")

	ErrPaymentConflict = apperr.New(apperr.KindConflict, "PAYMENT_CONCURRENT_UPDATE", "payment was modified concurrently")
)
