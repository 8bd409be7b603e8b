package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

type InitRequest struct {
	OrderID  uuid.UUID
	Method   string
	Currency string
	// Details, when present, are processed right away.
	Details *Details
}

type QuoteRequest struct {
	Method   string
	Amount   decimal.Decimal
	Currency string
}

type RefundRequest struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
	ActorID   string
}

type VerifyRequest struct {
	PaymentID uuid.UUID
	Verified  bool
	Notes     string
	ActorID   string
}

type Result struct {
	Payment  *Payment `json:"payment"`
	Quote    *Quote   `json:"quote,omitempty"`
	NextStep NextStep `json:"next_step"`
}

type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	ListMethods(ctx context.Context) ([]MethodConfig, error)
	InitializePayment(ctx context.Context, req InitRequest) (*Result, error)
	ProcessPayment(ctx context.Context, id uuid.UUID, details Details) (*Result, error)
	Capture(ctx context.Context, id uuid.UUID) (*Result, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
	ProcessRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	VerifyBankTransfer(ctx context.Context, req VerifyRequest) (*Payment, error)
	VerifyWebhookSignature(provider string, payload []byte, signature string) error
	HandleWebhook(ctx context.Context, n Notification) (*WebhookResult, error)
}

// Orders is what the payment workflow needs from the order lifecycle.
type Orders interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ApplyPaymentStatus(ctx context.Context, id uuid.UUID, status order.PaymentStatus) (*order.Order, error)
}

type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	repo       Repository
	orders     Orders
	methods    MethodConfigReader
	fees       *FeeCalculator
	processors *Registry
	tx         db.Transactor
	cfg        config.PaymentConfig
	now        func() time.Time
}

func NewService(repo Repository, orders Orders, methods MethodConfigReader, processors *Registry, tx db.Transactor, cfg config.PaymentConfig, opts ...Option) Service {
	s := &service{
		repo:       repo,
		orders:     orders,
		methods:    methods,
		fees:       NewFeeCalculator(methods),
		processors: processors,
		tx:         tx,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) currency(requested string) string {
	if strings.TrimSpace(requested) == "" {
		return s.cfg.DefaultCurrency
	}
	return requested
}

func (s *service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	method, err := order.ParsePaymentMethod(req.Method)
	if err != nil {
		return Quote{}, err
	}
	return s.fees.Calculate(ctx, method, req.Amount, s.currency(req.Currency))
}

func (s *service) ListMethods(ctx context.Context) ([]MethodConfig, error) {
	configs, err := s.methods.ListMethodConfigs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list payment methods")
		return nil, fmt.Errorf("service: failed to list payment methods: %w", err)
	}
	// methods without a registered processor cannot be paid with
	available := make([]MethodConfig, 0, len(configs))
	for _, c := range configs {
		if _, err := s.processors.Get(c.Method); err == nil {
			available = append(available, c)
		}
	}
	return available, nil
}

func (s *service) InitializePayment(ctx context.Context, req InitRequest) (*Result, error) {
	o, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusCancelled {
		return nil, ErrOrderNotPayable.Withf("order %s is cancelled", o.OrderNumber)
	}
	if o.PaymentStatus == order.PaymentCompleted || o.PaymentStatus == order.PaymentRefunded {
		return nil, ErrOrderNotPayable.Withf("order %s is already %s", o.OrderNumber, o.PaymentStatus)
	}

	method := o.PaymentMethod
	if req.Method != "" {
		if method, err = order.ParsePaymentMethod(req.Method); err != nil {
			return nil, err
		}
	}
	proc, err := s.processors.Get(method)
	if err != nil {
		return nil, err
	}
	if req.Details != nil {
		if err := proc.Validate(*req.Details); err != nil {
			return nil, err
		}
	}

	cfg, quote, err := s.fees.quote(ctx, method, o.Total, s.currency(req.Currency))
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckAmount(o.Total); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Payment{
		ID:             uuid.Must(uuid.NewV4()),
		PaymentRef:     newPaymentRef(now),
		OrderID:        o.ID,
		Method:         method,
		Amount:         quote.Amount,
		Currency:       quote.Currency,
		Fees:           quote.Fees,
		TotalAmount:    quote.Total,
		Status:         StatusInitialized,
		RefundedAmount: decimal.Zero,
		IsCurrent:      true,
		ExpiresAt:      now.Add(s.cfg.PaymentTTL(string(method))),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		if o.PaymentStatus == order.PaymentFailed {
			if _, err := s.orders.ApplyPaymentStatus(ctx, o.ID, order.PaymentPending); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to create payment")
		return nil, fmt.Errorf("service: failed to create payment: %w", err)
	}

	log.Info().Stringer("payment_id", p.ID).Str("payment_ref", p.PaymentRef).Stringer("order_id", o.ID).Str("method", string(method)).Str("total", p.TotalAmount.StringFixed(2)).Msg("service: payment initialized")

	if req.Details == nil && proc.RequiresInput() {
		return &Result{Payment: p, Quote: &quote, NextStep: proc.NextStep()}, nil
	}

	var details Details
	if req.Details != nil {
		details = *req.Details
	}
	res, err := s.ProcessPayment(ctx, p.ID, details)
	if err != nil {
		return nil, err
	}
	res.Quote = &quote
	return res, nil
}

func (s *service) ProcessPayment(ctx context.Context, id uuid.UUID, details Details) (*Result, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	proc, err := s.processors.Get(p.Method)
	if err != nil {
		return nil, err
	}

	switch p.EffectiveStatus(s.now()) {
	case StatusCompleted, StatusPartiallyRefunded, StatusRefunded:
		log.Info().Stringer("payment_id", id).Stringer("status", p.Status).Msg("service: payment already settled, nothing to process")
		return &Result{Payment: p, NextStep: StepNone}, nil
	case StatusPending:
		return &Result{Payment: p, NextStep: proc.NextStep()}, nil
	case StatusExpired:
		return nil, ErrPaymentExpired.Withf("payment %s expired at %s", p.PaymentRef, p.ExpiresAt.Format(time.RFC3339))
	case StatusFailed:
		return nil, ErrInvalidPaymentState.Withf("payment %s failed; start a new payment", p.PaymentRef)
	}

	if !p.IsCurrent {
		return nil, ErrInvalidPaymentState.Withf("payment %s was superseded by a newer attempt", p.PaymentRef)
	}
	if err := proc.Validate(details); err != nil {
		return nil, err
	}

	// claim the attempt so no other request submits it to the processor again
	p.Status = StatusPending
	p.UpdatedAt = s.now()
	if err := s.repo.UpdateState(ctx, p, StatusInitialized); err != nil {
		if errors.Is(err, ErrPaymentConflict) {
			return s.current(ctx, id, proc)
		}
		return nil, err
	}

	outcome, procErr := proc.Process(ctx, p, details)
	if procErr != nil {
		log.Warn().Err(procErr).Stringer("payment_id", id).Msg("service: processor call failed, marking payment failed")
		outcome = Outcome{Kind: OutcomeFailed, FailureReason: procErr.Error(), NextStep: StepNone}
	}

	return s.settle(ctx, p, proc, outcome)
}

func (s *service) Capture(ctx context.Context, id uuid.UUID) (*Result, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	proc, err := s.processors.Get(p.Method)
	if err != nil {
		return nil, err
	}
	capturer, ok := proc.(Capturer)
	if !ok {
		return nil, ErrNotCapturable.Withf("%s payments are not captured", p.Method)
	}

	switch p.EffectiveStatus(s.now()) {
	case StatusCompleted, StatusPartiallyRefunded, StatusRefunded:
		log.Info().Stringer("payment_id", id).Msg("service: payment already captured")
		return &Result{Payment: p, NextStep: StepNone}, nil
	case StatusExpired:
		return nil, ErrPaymentExpired.Withf("payment %s expired at %s", p.PaymentRef, p.ExpiresAt.Format(time.RFC3339))
	case StatusInitialized:
		return nil, ErrInvalidPaymentState.Withf("payment %s has not been processed yet", p.PaymentRef)
	case StatusFailed:
		return nil, ErrInvalidPaymentState.Withf("payment %s failed and cannot be captured", p.PaymentRef)
	}
	if !p.IsCurrent {
		return nil, ErrInvalidPaymentState.Withf("payment %s was superseded by a newer attempt", p.PaymentRef)
	}

	outcome, procErr := capturer.Capture(ctx, p)
	if procErr != nil {
		log.Warn().Err(procErr).Stringer("payment_id", id).Msg("service: capture failed, marking payment failed")
		outcome = Outcome{Kind: OutcomeFailed, FailureReason: procErr.Error(), NextStep: StepNone}
	}
	return s.settle(ctx, p, proc, outcome)
}

// settle writes a processor outcome onto a pending payment and mirrors it to the order.
// Losing the compare-and-swap means another request or a webhook settled it first.
func (s *service) settle(ctx context.Context, p *Payment, proc Processor, outcome Outcome) (*Result, error) {
	now := s.now()
	if outcome.ProcessorRef != "" {
		p.ProcessorRef = outcome.ProcessorRef
	}
	if outcome.BankReference != "" {
		p.BankReference = outcome.BankReference
	}
	if outcome.RedirectURL != "" {
		p.RedirectURL = outcome.RedirectURL
	}
	if outcome.Instructions != "" {
		p.Instructions = outcome.Instructions
	}

	var mirror order.PaymentStatus
	switch outcome.Kind {
	case OutcomeSucceeded:
		p.Status = StatusCompleted
		p.CompletedAt = &now
		mirror = order.PaymentCompleted
	case OutcomeFailed:
		p.Status = StatusFailed
		p.FailureReason = outcome.FailureReason
		mirror = order.PaymentFailed
	default:
		p.Status = StatusPending
	}
	p.UpdatedAt = now

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// a newer attempt may have been started while the processor was called
		locked, err := s.repo.GetForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		p.IsCurrent = locked.IsCurrent
		if err := s.repo.UpdateState(ctx, p, StatusPending); err != nil {
			return err
		}
		// a superseded attempt failing late says nothing about the order
		if mirror == order.PaymentFailed && !p.IsCurrent {
			mirror = ""
		}
		if mirror != "" {
			if _, err := s.orders.ApplyPaymentStatus(ctx, p.OrderID, mirror); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentConflict) {
			return s.current(ctx, p.ID, proc)
		}
		log.Error().Err(err).Stringer("payment_id", p.ID).Msg("service: failed to record payment outcome")
		return nil, fmt.Errorf("service: failed to record payment outcome: %w", err)
	}

	log.Info().Stringer("payment_id", p.ID).Stringer("status", p.Status).Str("processor_ref", p.ProcessorRef).Msg("service: payment outcome recorded")

	next := outcome.NextStep
	if next == "" {
		next = proc.NextStep()
	}
	return &Result{Payment: p, NextStep: next}, nil
}

func (s *service) current(ctx context.Context, id uuid.UUID, proc Processor) (*Result, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case StatusCompleted, StatusPartiallyRefunded, StatusRefunded, StatusFailed:
		return &Result{Payment: p, NextStep: StepNone}, nil
	case StatusPending:
		return &Result{Payment: p, NextStep: proc.NextStep()}, nil
	}
	return nil, ErrPaymentConflict.Withf("payment %s changed concurrently", p.PaymentRef)
}

func (s *service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrPaymentNotFound) {
			log.Error().Err(err).Stringer("payment_id", id).Msg("service: failed to fetch payment")
		}
		return nil, err
	}
	refunds, err := s.repo.ListRefunds(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch refunds: %w", err)
	}
	p.Refunds = refunds
	p.Status = p.EffectiveStatus(s.now())
	return p, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list payments: %w", err)
	}
	now := s.now()
	for i := range payments {
		payments[i].Status = payments[i].EffectiveStatus(now)
	}
	return payments, nil
}

func (s *service) VerifyBankTransfer(ctx context.Context, req VerifyRequest) (*Payment, error) {
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, ErrActorRequired
	}

	var verified *Payment
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if p.Method != order.MethodBankTransfer {
			return ErrNotBankTransfer.Withf("payment %s was made by %s", p.PaymentRef, p.Method)
		}
		now := s.now()
		switch st := p.EffectiveStatus(now); st {
		case StatusPending:
		case StatusExpired:
			return ErrPaymentExpired.Withf("payment %s expired at %s", p.PaymentRef, p.ExpiresAt.Format(time.RFC3339))
		default:
			return ErrInvalidPaymentState.Withf("payment %s is %s, not pending", p.PaymentRef, st)
		}

		mirror := order.PaymentFailed
		if req.Verified {
			p.Status = StatusCompleted
			p.CompletedAt = &now
			mirror = order.PaymentCompleted
		} else {
			p.Status = StatusFailed
			p.FailureReason = "bank transfer rejected"
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				p.FailureReason += ": " + notes
			}
		}
		p.UpdatedAt = now

		if err := s.repo.UpdateState(ctx, p, StatusPending); err != nil {
			return err
		}
		if _, err := s.orders.ApplyPaymentStatus(ctx, p.OrderID, mirror); err != nil {
			return err
		}
		verified = p
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Stringer("payment_id", req.PaymentID).Str("actor_id", req.ActorID).Msg("service: bank transfer verification rejected")
		return nil, err
	}

	log.Info().Stringer("payment_id", verified.ID).Bool("verified", req.Verified).Str("actor_id", req.ActorID).Str("notes", req.Notes).Msg("service: bank transfer verified")
	return verified, nil
}

func newPaymentRef(now time.Time) string {
	id := strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	return "PAY-" + now.Format("060102") + "-" + strings.ToUpper(id[:10])
}
