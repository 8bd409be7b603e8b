package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped: true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// failed payments may be retried with a new attempt, which moves the order back to pending
// or straight to completed when a late confirmation arrives.
var allowedPaymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending: {
		PaymentCompleted: true,
		PaymentFailed:    true,
	},
	PaymentFailed: {
		PaymentPending:   true,
		PaymentCompleted: true,
	},
	PaymentCompleted: {
		PaymentRefunded: true,
	},
	PaymentRefunded: {},
}

var (
	cancellableStatuses = map[Status]bool{StatusPending: true, StatusConfirmed: true}
	refundableStatuses  = map[Status]bool{StatusConfirmed: true, StatusProcessing: true}
	deletablePayments   = map[PaymentStatus]bool{PaymentPending: true, PaymentFailed: true}
)

func ParseStatus(value string) (Status, error) {
	s := Status(strings.TrimSpace(value))
	if _, ok := allowedTransitions[s]; !ok {
		return "", ErrInvalidStatus.Withf("invalid order status %q", value)
	}
	return s, nil
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	s := PaymentStatus(strings.TrimSpace(value))
	if _, ok := allowedPaymentTransitions[s]; !ok {
		return "", ErrInvalidStatus.Withf("invalid payment status %q", value)
	}
	return s, nil
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	m := PaymentMethod(strings.TrimSpace(value))
	for _, known := range PaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", ErrInvalidPaymentMethod.Withf("invalid payment method %q", value)
}

// UpdateStatus is the only way order and payment statuses change. On any error the
// order is left untouched. Setting the current value again is a no-op.
func (o *Order) UpdateStatus(newStatus string, statusType StatusType, now time.Time) error {
	switch statusType {
	case StatusTypeOrder:
		target, err := ParseStatus(newStatus)
		if err != nil {
			return err
		}
		if target == o.Status {
			return nil
		}
		if !allowedTransitions[o.Status][target] {
			return ErrInvalidTransition.Withf("invalid order status transition from %s to %s", o.Status, target)
		}
		o.Status = target
		o.stampStatus(target, now)
	case StatusTypePayment:
		target, err := ParsePaymentStatus(newStatus)
		if err != nil {
			return err
		}
		if target == o.PaymentStatus {
			return nil
		}
		if !allowedPaymentTransitions[o.PaymentStatus][target] {
			return ErrInvalidTransition.Withf("invalid payment status transition from %s to %s", o.PaymentStatus, target)
		}
		o.PaymentStatus = target
	default:
		return ErrInvalidStatusType.Withf("invalid status type %q", statusType)
	}
	o.UpdatedAt = now
	return nil
}

func (o *Order) stampStatus(s Status, now time.Time) {
	t := now
	switch s {
	case StatusShipped:
		o.ShippedAt = &t
	case StatusDelivered:
		o.DeliveredAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	}
}

func (o *Order) CanBeCancelled() bool {
	return cancellableStatuses[o.Status]
}

// CanBeRefunded excludes delivered orders; returns after delivery need a separate manual path.
func (o *Order) CanBeRefunded() bool {
	return o.PaymentStatus == PaymentCompleted && refundableStatuses[o.Status]
}

// CanBeDeleted holds while the order has never been paid for.
func (o *Order) CanBeDeleted() bool {
	return deletablePayments[o.PaymentStatus]
}

func (o *Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (o *Order) ValidateTotal() error {
	expected := o.CalculateTotal()
	if !o.Total.Equal(expected) {
		return ErrTotalMismatch.Withf("order total %s does not match items total %s", o.Total.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}
