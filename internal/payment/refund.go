package payment

import (
	"context"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

// ProcessRefund runs in three steps: reserve the amount under a row lock, call the processor
// with no lock held, then settle the refund and the payment status.
func (s *service) ProcessRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, ErrActorRequired
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount.Withf("refund amount must be positive, got %s", req.Amount.String())
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, ErrInvalidAmount.Withf("refund amount %s has more than two decimals", req.Amount.String())
	}

	var (
		p      *Payment
		refund *Refund
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.GetForUpdate(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if p.Status != StatusCompleted && p.Status != StatusPartiallyRefunded {
			return ErrInvalidPaymentState.Withf("payment %s is %s and cannot be refunded", p.PaymentRef, p.Status)
		}

		o, err := s.orders.GetOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if !o.CanBeRefunded() {
			return ErrRefundNotAllowed.Withf("order %s is %s with payment %s", o.OrderNumber, o.Status, o.PaymentStatus)
		}

		if remaining := p.RemainingRefundable(); req.Amount.GreaterThan(remaining) {
			return ErrRefundExceedsRemaining.Withf("refund of %s exceeds remaining %s", req.Amount.StringFixed(2), remaining.StringFixed(2))
		}

		now := s.now()
		refund = &Refund{
			ID:        uuid.Must(uuid.NewV4()),
			PaymentID: p.ID,
			Amount:    req.Amount,
			Reason:    req.Reason,
			Status:    RefundPending,
			ActorID:   req.ActorID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateRefund(ctx, refund); err != nil {
			return err
		}

		p.RefundedAmount = p.RefundedAmount.Add(req.Amount)
		p.UpdatedAt = now
		return s.repo.UpdateState(ctx, p, p.Status)
	})
	if err != nil {
		log.Warn().Err(err).Stringer("payment_id", req.PaymentID).Str("actor_id", req.ActorID).Msg("service: refund rejected")
		return nil, err
	}

	outcome := Outcome{Kind: OutcomeSucceeded}
	if proc, perr := s.processors.Get(p.Method); perr == nil {
		if refunder, ok := proc.(Refunder); ok {
			var rerr error
			outcome, rerr = refunder.Refund(ctx, p, req.Amount)
			if rerr != nil {
				log.Warn().Err(rerr).Stringer("refund_id", refund.ID).Msg("service: processor refund failed")
				outcome = Outcome{Kind: OutcomeFailed, FailureReason: rerr.Error()}
			}
		}
	}

	return s.settleRefund(ctx, refund, outcome)
}

func (s *service) settleRefund(ctx context.Context, refund *Refund, outcome Outcome) (*Refund, error) {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, refund.PaymentID)
		if err != nil {
			return err
		}

		now := s.now()
		refund.ProcessorRef = outcome.ProcessorRef
		refund.UpdatedAt = now
		prev := p.Status

		// a pending processor refund has been accepted and is counted as done
		if outcome.Kind == OutcomeFailed {
			refund.Status = RefundFailed
			refund.FailureReason = outcome.FailureReason
			p.RefundedAmount = p.RefundedAmount.Sub(refund.Amount)
		} else {
			refund.Status = RefundCompleted
		}
		if err := s.repo.UpdateRefund(ctx, refund); err != nil {
			return err
		}

		if refund.Status == RefundCompleted {
			refunds, err := s.repo.ListRefunds(ctx, p.ID)
			if err != nil {
				return err
			}
			settled := decimal.Zero
			for _, rf := range refunds {
				if rf.Status == RefundCompleted {
					settled = settled.Add(rf.Amount)
				}
			}
			if settled.GreaterThanOrEqual(p.TotalAmount) {
				p.Status = StatusRefunded
			} else {
				p.Status = StatusPartiallyRefunded
			}
			if !canTransition(prev, p.Status) {
				return ErrInvalidPaymentState.Withf("payment %s cannot move from %s to %s", p.PaymentRef, prev, p.Status)
			}
		}
		p.UpdatedAt = now

		if err := s.repo.UpdateState(ctx, p, prev); err != nil {
			return err
		}
		if p.Status == StatusRefunded {
			if _, err := s.orders.ApplyPaymentStatus(ctx, p.OrderID, order.PaymentRefunded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Stringer("refund_id", refund.ID).Msg("service: failed to settle refund")
		return nil, err
	}

	if refund.Status == RefundFailed {
		return refund, ErrProcessorFailure.Withf("refund %s failed: %s", refund.ID, refund.FailureReason)
	}

	log.Info().Stringer("refund_id", refund.ID).Stringer("payment_id", refund.PaymentID).Str("amount", refund.Amount.StringFixed(2)).Str("actor_id", refund.ActorID).Msg("service: refund completed")
	return refund, nil
}
