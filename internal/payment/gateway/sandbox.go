package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Mode selects how the sandbox answers a submission.
type Mode int

const (
	// ModeSync settles immediately.
	ModeSync Mode = iota
	// ModeAsync leaves the charge pending until a webhook or capture confirms it.
	ModeAsync
	// ModeRedirect returns an approval URL and waits for Capture.
	ModeRedirect
)

type SandboxOptions struct {
	DeclineCardSuffix string
	RedirectBaseURL   string
}

type charge struct {
	amount   decimal.Decimal
	currency string
	status   Status
	refunded decimal.Decimal
}

// Sandbox is an in-memory processor used for local runs and tests.
type Sandbox struct {
	mu         sync.Mutex
	name       string
	mode       Mode
	opts       SandboxOptions
	charges    map[string]*charge
	shouldFail bool
	calls      int
}

func NewSandbox(name string, mode Mode, opts SandboxOptions) *Sandbox {
	return &Sandbox{
		name:    name,
		mode:    mode,
		opts:    opts,
		charges: make(map[string]*charge),
	}
}

// SetShouldFail makes every following call return ErrUnavailable.
func (s *Sandbox) SetShouldFail(shouldFail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFail = shouldFail
}

// Calls reports how many requests reached the sandbox.
func (s *Sandbox) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Sandbox) Submit(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if s.shouldFail {
		return Result{}, fmt.Errorf("%w: %s", ErrUnavailable, s.name)
	}

	ref := s.name + "_" + uuid.Must(uuid.NewV4()).String()
	c := &charge{amount: req.Amount, currency: req.Currency, refunded: decimal.Zero}
	s.charges[ref] = c

	if req.Card != nil && s.opts.DeclineCardSuffix != "" && strings.HasSuffix(req.Card.Number, s.opts.DeclineCardSuffix) {
		c.status = StatusFailed
		log.Info().Str("gateway", s.name).Str("processor_ref", ref).Msg("sandbox: card declined")
		return Result{Status: StatusFailed, ProcessorRef: ref, Reason: "card declined"}, nil
	}

	switch s.mode {
	case ModeAsync:
		c.status = StatusPending
		return Result{Status: StatusPending, ProcessorRef: ref}, nil
	case ModeRedirect:
		c.status = StatusPending
		redirect := strings.TrimRight(s.opts.RedirectBaseURL, "/") + "/approve/" + ref
		return Result{Status: StatusPending, ProcessorRef: ref, RedirectURL: redirect}, nil
	default:
		c.status = StatusSucceeded
		return Result{Status: StatusSucceeded, ProcessorRef: ref}, nil
	}
}

// Capture settles a pending charge. Capturing a settled charge returns the same result again.
func (s *Sandbox) Capture(ctx context.Context, processorRef string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if s.shouldFail {
		return Result{}, fmt.Errorf("%w: %s", ErrUnavailable, s.name)
	}

	c, ok := s.charges[processorRef]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownReference, processorRef)
	}
	if c.status == StatusFailed {
		return Result{Status: StatusFailed, ProcessorRef: processorRef, Reason: "charge was declined"}, nil
	}
	c.status = StatusSucceeded
	return Result{Status: StatusSucceeded, ProcessorRef: processorRef}, nil
}

func (s *Sandbox) Refund(ctx context.Context, processorRef string, amount decimal.Decimal, currency string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if s.shouldFail {
		return Result{}, fmt.Errorf("%w: %s", ErrUnavailable, s.name)
	}

	c, ok := s.charges[processorRef]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownReference, processorRef)
	}
	refundRef := processorRef + "_rf_" + uuid.Must(uuid.NewV4()).String()[:8]

	switch {
	case c.status != StatusSucceeded:
		return Result{Status: StatusFailed, ProcessorRef: refundRef, Reason: "charge is not settled"}, nil
	case currency != c.currency:
		return Result{Status: StatusFailed, ProcessorRef: refundRef, Reason: "currency mismatch"}, nil
	case c.refunded.Add(amount).GreaterThan(c.amount):
		return Result{Status: StatusFailed, ProcessorRef: refundRef, Reason: "refund exceeds charge"}, nil
	}

	c.refunded = c.refunded.Add(amount)
	return Result{Status: StatusSucceeded, ProcessorRef: refundRef}, nil
}
