package payment

import (
	"context"
	"fmt"

	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

// codProcessor defers collection to delivery. Capture records that the courier collected the cash.
type codProcessor struct{}

func NewCashOnDeliveryProcessor() Processor {
	return codProcessor{}
}

func (codProcessor) Method() order.PaymentMethod { return order.MethodCashOnDelivery }
func (codProcessor) RequiresInput() bool         { return false }
func (codProcessor) NextStep() NextStep          { return StepPayOnDelivery }

func (codProcessor) Validate(Details) error { return nil }

func (codProcessor) Process(ctx context.Context, p *Payment, _ Details) (Outcome, error) {
	return Outcome{
		Kind:         OutcomePending,
		NextStep:     StepPayOnDelivery,
		Instructions: fmt.Sprintf("Pay %s %s in cash on delivery", p.TotalAmount.StringFixed(2), p.Currency),
	}, nil
}

func (codProcessor) Capture(ctx context.Context, p *Payment) (Outcome, error) {
	return Outcome{Kind: OutcomeSucceeded, NextStep: StepNone}, nil
}
