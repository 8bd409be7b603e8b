package payment

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

type Status string

const (
	StatusInitialized       Status = "initialized"
	StatusPending           Status = "pending"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusExpired           Status = "expired"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

func (s Status) String() string {
	return string(s)
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusInitialized: {
		StatusPending:   true,
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusPending: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {
		StatusRefunded:          true,
		StatusPartiallyRefunded: true,
	},
	StatusPartiallyRefunded: {
		StatusPartiallyRefunded: true,
		StatusRefunded:          true,
	},
	StatusFailed:   {},
	StatusRefunded: {},
}

func canTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

type Fees struct {
	Fixed      decimal.Decimal `json:"fixed"`
	Percentage decimal.Decimal `json:"percentage"`
	Total      decimal.Decimal `json:"total"`
}

type Payment struct {
	ID             uuid.UUID           `json:"id"`
	PaymentRef     string              `json:"payment_ref"`
	OrderID        uuid.UUID           `json:"order_id"`
	Method         order.PaymentMethod `json:"method"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       string              `json:"currency"`
	Fees           Fees                `json:"fees"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	Status         Status              `json:"status"`
	ProcessorRef   string              `json:"processor_ref,omitempty"`
	BankReference  string              `json:"bank_reference,omitempty"`
	RedirectURL    string              `json:"redirect_url,omitempty"`
	Instructions   string              `json:"instructions,omitempty"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	IsCurrent      bool                `json:"is_current"`
	ExpiresAt      time.Time           `json:"expires_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Refunds        []Refund            `json:"refunds,omitempty"`
}

// EffectiveStatus is the status callers must act on: an unsettled payment past its
// expiry reads as expired whatever is stored.
func (p *Payment) EffectiveStatus(now time.Time) Status {
	if (p.Status == StatusInitialized || p.Status == StatusPending) && !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt) {
		return StatusExpired
	}
	return p.Status
}

// RemainingRefundable is what can still be refunded, counting refunds in flight.
func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.TotalAmount.Sub(p.RefundedAmount)
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

type Refund struct {
	ID            uuid.UUID       `json:"id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Status        RefundStatus    `json:"status"`
	ActorID       string          `json:"actor_id"`
	ProcessorRef  string          `json:"processor_ref,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CardDetails struct {
	Number      string `json:"number" validate:"required,numeric,min=12,max=19"`
	Holder      string `json:"holder" validate:"required,min=2"`
	ExpiryMonth int    `json:"expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" validate:"required,min=2000,max=2100"`
	CVV         string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

// Details carries the method specific input a processor needs.
type Details struct {
	Card          *CardDetails `json:"card,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	BankReference string       `json:"bank_reference,omitempty"`
	ReturnURL     string       `json:"return_url,omitempty" validate:"omitempty,url"`
	CancelURL     string       `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

// NextStep tells the client what has to happen after a payment call.
type NextStep string

const (
	StepEnterCardDetails NextStep = "enter_card_details"
	StepConfirmOnPhone   NextStep = "confirm_on_phone"
	StepRedirect         NextStep = "redirect"
	StepPayOnDelivery    NextStep = "pay_on_delivery"
	StepTransferFunds    NextStep = "transfer_funds"
	StepNone             NextStep = "none"
)

type Quote struct {
	Method   order.PaymentMethod `json:"method"`
	Amount   decimal.Decimal     `json:"amount"`
	Currency string              `json:"currency"`
	Fees     Fees                `json:"fees"`
	Total    decimal.Decimal     `json:"total"`
}
