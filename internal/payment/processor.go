package payment

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment/gateway"
)

type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomePending   OutcomeKind = "pending"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the normalized answer of a processor call.
type Outcome struct {
	Kind          OutcomeKind
	ProcessorRef  string
	// BankReference is the customer's own transfer reference. It is never matched against webhooks.
	BankReference string
	RedirectURL   string
	Instructions  string
	FailureReason string
	NextStep      NextStep
}

// Processor is one payment method. Adding a method means adding one Processor.
type Processor interface {
	Method() order.PaymentMethod
	// RequiresInput reports whether Process needs details from the customer.
	RequiresInput() bool
	// NextStep is what the customer has to do before Process can run.
	NextStep() NextStep
	Validate(details Details) error
	Process(ctx context.Context, p *Payment, details Details) (Outcome, error)
}

// Capturer is implemented by processors whose pending payments are settled by a second call.
type Capturer interface {
	Capture(ctx context.Context, p *Payment) (Outcome, error)
}

// Refunder is implemented by processors that can return money through the processor.
// Refunds for other methods are settled outside the system and recorded directly.
type Refunder interface {
	Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (Outcome, error)
}

type Registry struct {
	processors map[order.PaymentMethod]Processor
}

func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[order.PaymentMethod]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.Method()] = p
	}
	return r
}

func (r *Registry) Get(method order.PaymentMethod) (Processor, error) {
	p, ok := r.processors[method]
	if !ok {
		return nil, ErrMethodUnavailable.Withf("no processor for payment method %s", method)
	}
	return p, nil
}

var validate = validator.New()

func validationFailed(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return ErrInvalidDetails.Withf("field %s failed on %s", fe.Namespace(), fe.Tag())
	}
	return ErrInvalidDetails.Wrap(err)
}

func fromGateway(res gateway.Result) Outcome {
	out := Outcome{ProcessorRef: res.ProcessorRef, RedirectURL: res.RedirectURL}
	switch res.Status {
	case gateway.StatusSucceeded:
		out.Kind = OutcomeSucceeded
		out.NextStep = StepNone
	case gateway.StatusPending:
		out.Kind = OutcomePending
	default:
		out.Kind = OutcomeFailed
		out.FailureReason = res.Reason
		if out.FailureReason == "" {
			out.FailureReason = "declined by processor"
		}
		out.NextStep = StepNone
	}
	return out
}

func gatewayRequest(p *Payment) gateway.Request {
	return gateway.Request{
		Reference: p.PaymentRef,
		Amount:    p.TotalAmount,
		Currency:  p.Currency,
	}
}

func gatewayRefund(ctx context.Context, gw gateway.Gateway, p *Payment, amount decimal.Decimal) (Outcome, error) {
	if p.ProcessorRef == "" {
		return Outcome{}, ErrInvalidPaymentState.Withf("payment %s has no processor reference to refund", p.PaymentRef)
	}
	res, err := gw.Refund(ctx, p.ProcessorRef, amount, p.Currency)
	if err != nil {
		return Outcome{}, fmt.Errorf("processor: refund for %s failed: %w", p.PaymentRef, err)
	}
	return fromGateway(res), nil
}

func gatewayCapture(ctx context.Context, gw gateway.Gateway, p *Payment) (Outcome, error) {
	if p.ProcessorRef == "" {
		return Outcome{}, ErrInvalidPaymentState.Withf("payment %s has nothing to capture", p.PaymentRef)
	}
	res, err := gw.Capture(ctx, p.ProcessorRef)
	if err != nil {
		return Outcome{}, fmt.Errorf("processor: capture for %s failed: %w", p.PaymentRef, err)
	}
	return fromGateway(res), nil
}
