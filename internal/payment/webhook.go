package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

// Notification is an out-of-band status report from a processor.
type Notification struct {
	Provider     string `json:"-"`
	EventID      string `json:"event_id"`
	ProcessorRef string `json:"processor_ref"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

type WebhookEvent struct {
	Provider     string
	EventID      string
	ProcessorRef string
	Status       string
	ReceivedAt   time.Time
	ProcessedAt  *time.Time
}

type WebhookResult struct {
	Duplicate bool     `json:"duplicate"`
	Applied   bool     `json:"applied"`
	Payment   *Payment `json:"payment,omitempty"`
}

// Sign returns the hex HMAC-SHA256 of payload under secret, as processors send it.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *service) VerifyWebhookSignature(provider string, payload []byte, signature string) error {
	secret, ok := s.cfg.WebhookSecrets[strings.ToLower(provider)]
	if !ok || secret == "" {
		return ErrUnknownProvider.Withf("no webhook secret configured for %q", provider)
	}
	expected := Sign(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		log.Warn().Str("provider", provider).Msg("service: webhook signature mismatch")
		return ErrInvalidSignature
	}
	return nil
}

// providerMethods lists the payment methods each processor may report on. Bank transfers are
// settled by an operator only, so no provider can reach them.
var providerMethods = map[string][]order.PaymentMethod{
	"card":    {order.MethodCard},
	"wallet":  {order.MethodMobileWallet},
	"paypal":  {order.MethodPayPal},
	"sandbox": {order.MethodCard, order.MethodMobileWallet, order.MethodPayPal},
}

func webhookTarget(status string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded", "success", "completed", "paid":
		return StatusCompleted, true
	case "failed", "declined", "cancelled", "canceled":
		return StatusFailed, true
	}
	return "", false
}

// HandleWebhook applies a processor notification at most once per provider event id.
// Notifications for payments that already settled are recorded and ignored.
func (s *service) HandleWebhook(ctx context.Context, n Notification) (*WebhookResult, error) {
	n.Provider = strings.ToLower(strings.TrimSpace(n.Provider))
	if n.Provider == "" || n.EventID == "" || n.ProcessorRef == "" {
		return nil, ErrInvalidNotification.Withf("provider, event_id and processor_ref are required")
	}
	target, ok := webhookTarget(n.Status)
	if !ok {
		return nil, ErrInvalidNotification.Withf("unsupported status %q", n.Status)
	}
	methods, ok := providerMethods[n.Provider]
	if !ok {
		return nil, ErrUnknownProvider.Withf("provider %q does not settle payments", n.Provider)
	}

	result := &WebhookResult{}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now()
		inserted, err := s.repo.RecordWebhookEvent(ctx, &WebhookEvent{
			Provider:     n.Provider,
			EventID:      n.EventID,
			ProcessorRef: n.ProcessorRef,
			Status:       n.Status,
			ReceivedAt:   now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.Duplicate = true
			return nil
		}

		found, err := s.repo.GetByProcessorRef(ctx, n.ProcessorRef, methods)
		if err != nil {
			return err
		}
		p, err := s.repo.GetForUpdate(ctx, found.ID)
		if err != nil {
			return err
		}
		if p.Method == order.MethodBankTransfer {
			return ErrInvalidNotification.Withf("payment %s is a bank transfer and needs operator verification", p.PaymentRef)
		}
		result.Payment = p

		if p.Status == StatusInitialized || p.Status == StatusPending {
			prev := p.Status
			p.Status = target
			p.UpdatedAt = now
			mirror := order.PaymentFailed
			if target == StatusCompleted {
				p.CompletedAt = &now
				mirror = order.PaymentCompleted
			} else {
				p.FailureReason = n.Reason
				if p.FailureReason == "" {
					p.FailureReason = "reported failed by " + n.Provider
				}
			}
			if err := s.repo.UpdateState(ctx, p, prev); err != nil {
				return err
			}
			// a superseded attempt failing late says nothing about the order
			if mirror == order.PaymentCompleted || p.IsCurrent {
				if _, err := s.orders.ApplyPaymentStatus(ctx, p.OrderID, mirror); err != nil {
					return err
				}
			}
			result.Applied = true
		}

		return s.repo.MarkWebhookProcessed(ctx, n.Provider, n.EventID, now)
	})
	if err != nil {
		log.Warn().Err(err).Str("provider", n.Provider).Str("event_id", n.EventID).Msg("service: webhook not applied")
		return nil, err
	}

	log.Info().Str("provider", n.Provider).Str("event_id", n.EventID).Bool("duplicate", result.Duplicate).Bool("applied", result.Applied).Msg("service: webhook handled")
	return result, nil
}
