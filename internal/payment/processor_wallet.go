package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment/gateway"
)

// walletProcessor pushes a payment request to the customer's mobile wallet. The customer
// approves it on the phone and the processor confirms by webhook.
type walletProcessor struct {
	gw gateway.Gateway
}

func NewWalletProcessor(gw gateway.Gateway) Processor {
	return &walletProcessor{gw: gw}
}

func (w *walletProcessor) Method() order.PaymentMethod { return order.MethodMobileWallet }
func (w *walletProcessor) RequiresInput() bool         { return true }
func (w *walletProcessor) NextStep() NextStep          { return StepConfirmOnPhone }

func (w *walletProcessor) Validate(details Details) error {
	if err := validate.Var(details.Phone, "required,e164"); err != nil {
		return ErrInvalidDetails.Withf("a phone number in international format is required")
	}
	return nil
}

func (w *walletProcessor) Process(ctx context.Context, p *Payment, details Details) (Outcome, error) {
	req := gatewayRequest(p)
	req.Phone = details.Phone

	res, err := w.gw.Submit(ctx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("processor: wallet push for %s failed: %w", p.PaymentRef, err)
	}
	out := fromGateway(res)
	if out.Kind == OutcomePending {
		out.NextStep = StepConfirmOnPhone
		out.Instructions = fmt.Sprintf("Approve the payment of %s %s on %s", p.TotalAmount.StringFixed(2), p.Currency, details.Phone)
	}
	return out, nil
}

func (w *walletProcessor) Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (Outcome, error) {
	return gatewayRefund(ctx, w.gw, p, amount)
}
