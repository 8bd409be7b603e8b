// Package gateway is the boundary to external payment processors. Wire formats of real
// processors live behind Gateway; this package ships only the sandbox implementation.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

var (
	ErrUnknownReference = errors.New("gateway: unknown processor reference")
	ErrUnavailable      = errors.New("gateway: processor unavailable")
)

type Card struct {
	Number      string
	Holder      string
	CVV         string
	ExpiryMonth int
	ExpiryYear  int
}

// Request is what a processor needs to take money. Amount already includes fees.
type Request struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Card      *Card
	Phone     string
	ReturnURL string
	CancelURL string
}

type Result struct {
	Status       Status
	ProcessorRef string
	RedirectURL  string
	Reason       string
}

type Gateway interface {
	Submit(ctx context.Context, req Request) (Result, error)
	Capture(ctx context.Context, processorRef string) (Result, error)
	Refund(ctx context.Context, processorRef string, amount decimal.Decimal, currency string) (Result, error)
}
