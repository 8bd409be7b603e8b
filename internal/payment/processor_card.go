package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment/gateway"
)

type cardProcessor struct {
	gw gateway.Gateway
}

func NewCardProcessor(gw gateway.Gateway) Processor {
	return &cardProcessor{gw: gw}
}

func (c *cardProcessor) Method() order.PaymentMethod { return order.MethodCard }
func (c *cardProcessor) RequiresInput() bool         { return true }
func (c *cardProcessor) NextStep() NextStep          { return StepEnterCardDetails }

func (c *cardProcessor) Validate(details Details) error {
	if details.Card == nil {
		return ErrInvalidDetails.Withf("card details are required")
	}
	if err := validate.Struct(details.Card); err != nil {
		return validationFailed(err)
	}
	return nil
}

func (c *cardProcessor) Process(ctx context.Context, p *Payment, details Details) (Outcome, error) {
	req := gatewayRequest(p)
	req.Card = &gateway.Card{
		Number:      details.Card.Number,
		Holder:      details.Card.Holder,
		CVV:         details.Card.CVV,
		ExpiryMonth: details.Card.ExpiryMonth,
		ExpiryYear:  details.Card.ExpiryYear,
	}

	res, err := c.gw.Submit(ctx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("processor: card submit for %s failed: %w", p.PaymentRef, err)
	}
	out := fromGateway(res)
	if out.Kind == OutcomePending {
		// issuer authentication still outstanding
		out.NextStep = StepRedirect
	}
	return out, nil
}

func (c *cardProcessor) Capture(ctx context.Context, p *Payment) (Outcome, error) {
	return gatewayCapture(ctx, c.gw, p)
}

func (c *cardProcessor) Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (Outcome, error) {
	return gatewayRefund(ctx, c.gw, p, amount)
}
