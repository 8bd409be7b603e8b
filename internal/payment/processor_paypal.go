package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment/gateway"
)

type payPalProcessor struct {
	gw gateway.Gateway
}

func NewPayPalProcessor(gw gateway.Gateway) Processor {
	return &payPalProcessor{gw: gw}
}

func (pp *payPalProcessor) Method() order.PaymentMethod { return order.MethodPayPal }
func (pp *payPalProcessor) RequiresInput() bool         { return false }
func (pp *payPalProcessor) NextStep() NextStep          { return StepRedirect }

func (pp *payPalProcessor) Validate(details Details) error {
	if err := validate.Struct(details); err != nil {
		return validationFailed(err)
	}
	return nil
}

func (pp *payPalProcessor) Process(ctx context.Context, p *Payment, details Details) (Outcome, error) {
	req := gatewayRequest(p)
	req.ReturnURL = details.ReturnURL
	req.CancelURL = details.CancelURL

	res, err := pp.gw.Submit(ctx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("processor: paypal order for %s failed: %w", p.PaymentRef, err)
	}
	out := fromGateway(res)
	if out.Kind == OutcomePending {
		if out.RedirectURL == "" {
			return Outcome{}, fmt.Errorf("processor: paypal returned no approval url for %s", p.PaymentRef)
		}
		out.NextStep = StepRedirect
	}
	return out, nil
}

func (pp *payPalProcessor) Capture(ctx context.Context, p *Payment) (Outcome, error) {
	return gatewayCapture(ctx, pp.gw, p)
}

func (pp *payPalProcessor) Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (Outcome, error) {
	return gatewayRefund(ctx, pp.gw, p, amount)
}
