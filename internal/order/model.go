package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// Statuses lists every order status in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string {
	return string(s)
}

var PaymentStatuses = []PaymentStatus{PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded}

type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodMobileWallet   PaymentMethod = "mobile_wallet"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	MethodPayPal         PaymentMethod = "paypal"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) String() string {
	return string(m)
}

var PaymentMethods = []PaymentMethod{MethodCard, MethodMobileWallet, MethodCashOnDelivery, MethodPayPal, MethodBankTransfer}

// StatusType selects which of the two state machines UpdateStatus drives.
type StatusType string

const (
	StatusTypeOrder   StatusType = "order"
	StatusTypePayment StatusType = "payment"
)

type LocalizedName struct {
	En string `json:"en"`
	Ar string `json:"ar"`
}

// CustomerInfo is used for fulfilment and display only; it is not an identity.
type CustomerInfo struct {
	Name       string `json:"name" validate:"required,min=2,max=120"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,min=7,max=20"`
	Address    string `json:"address" validate:"required,min=5"`
	City       string `json:"city" validate:"required"`
	Country    string `json:"country" validate:"required"`
	PostalCode string `json:"postal_code,omitempty" validate:"omitempty,max=16"`
	Notes      string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type Item struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      LocalizedName   `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Items         []Item          `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Customer      CustomerInfo    `json:"customer_info"`
	Status        Status          `json:"order_status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	ShippedAt     *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ListFilter narrows ListOrders. Zero values mean "any".
type ListFilter struct {
	Status        Status
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}
