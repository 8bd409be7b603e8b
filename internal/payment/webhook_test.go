package payment_test

import (
	"strings"
	"time"

	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
)

func (s *PaymentServiceSuite) pendingWallet() (order.Order, *payment.Payment) {
	o := s.newOrder("199.98", order.MethodMobileWallet)
	res, err := s.svc.InitializePayment(s.ctx, payment.InitRequest{OrderID: o.ID, Details: &payment.Details{Phone: "+201001234567"}})
	s.Require().NoError(err)
	s.Require().Equal(payment.StatusPending, res.Payment.Status)
	return o, res.Payment
}

func (s *PaymentServiceSuite) TestVerifyWebhookSignature() {
	payload := []byte(`{"event_id":"evt_1","processor_ref":"wallet_1","status":"succeeded"}`)
	signature := payment.Sign(walletSecret, payload)

	s.NoError(s.svc.VerifyWebhookSignature("wallet", payload, signature))
	s.NoError(s.svc.VerifyWebhookSignature("WALLET", payload, strings.ToUpper(signature)))

	tampered := []byte(strings.Replace(string(payload), "succeeded", "failed", 1))
	s.ErrorIs(s.svc.VerifyWebhookSignature("wallet", tampered, signature), payment.ErrInvalidSignature)
	s.ErrorIs(s.svc.VerifyWebhookSignature("wallet", payload, payment.Sign("other-secret", payload)), payment.ErrInvalidSignature)
	s.ErrorIs(s.svc.VerifyWebhookSignature("stripe", payload, signature), payment.ErrUnknownProvider)
}

func (s *PaymentServiceSuite) TestHandleWebhook_AppliesOnceAndIgnoresReplay() {
	o, p := s.pendingWallet()
	n := payment.Notification{Provider: "wallet", EventID: "evt_1", ProcessorRef: p.ProcessorRef, Status: "succeeded"}

	first, err := s.svc.HandleWebhook(s.ctx, n)
	s.Require().NoError(err)
	s.False(first.Duplicate)
	s.True(first.Applied)
	s.Equal(payment.StatusCompleted, first.Payment.Status)
	s.Equal(payment.StatusCompleted, s.stored(p.ID).Status)
	s.Equal(order.PaymentCompleted, s.orders.get(o.ID).PaymentStatus)

	event, ok := s.repo.event("wallet", "evt_1")
	s.Require().True(ok)
	s.NotNil(event.ProcessedAt)

	replay, err := s.svc.HandleWebhook(s.ctx, n)
	s.Require().NoError(err)
	s.True(replay.Duplicate)
	s.False(replay.Applied)

	late, err := s.svc.HandleWebhook(s.ctx, payment.Notification{Provider: "wallet", EventID: "evt_2", ProcessorRef: p.ProcessorRef, Status: "failed"})
	s.Require().NoError(err)
	s.False(late.Duplicate)
	s.False(late.Applied)
	s.Equal(payment.StatusCompleted, s.stored(p.ID).Status)
	s.Equal(order.PaymentCompleted, s.orders.get(o.ID).PaymentStatus)
}

func (s *PaymentServiceSuite) TestHandleWebhook_FailureNotice() {
	o, p := s.pendingWallet()

	res, err := s.svc.HandleWebhook(s.ctx, payment.Notification{Provider: "wallet", EventID: "evt_9", ProcessorRef: p.ProcessorRef, Status: "declined", Reason: "insufficient balance"})
	s.Require().NoError(err)
	s.True(res.Applied)

	got := s.stored(p.ID)
	s.Equal(payment.StatusFailed, got.Status)
	s.Equal("insufficient balance", got.FailureReason)
	s.Equal(order.PaymentFailed, s.orders.get(o.ID).PaymentStatus)
}

func (s *PaymentServiceSuite) TestHandleWebhook_AppliedAfterExpiry() {
	o, p := s.pendingWallet()
	s.clock.advance(2 * time.Hour)

	res, err := s.svc.HandleWebhook(s.ctx, payment.Notification{Provider: "wallet", EventID: "evt_late", ProcessorRef: p.ProcessorRef, Status: "succeeded"})
	s.Require().NoError(err)
	s.True(res.Applied)
	s.Equal(payment.StatusCompleted, s.stored(p.ID).Status)
	s.Equal(order.PaymentCompleted, s.orders.get(o.ID).PaymentStatus)
}

func (s *PaymentServiceSuite) TestHandleWebhook_SupersededFailureLeavesOrderAlone() {
	o, first := s.pendingWallet()
	second, err := s.svc.InitializePayment(s.ctx, payment.InitRequest{OrderID: o.ID, Details: &payment.Details{Card: validCard}, Method: "card"})
	s.Require().NoError(err)
	s.Require().Equal(payment.StatusCompleted, second.Payment.Status)

	res, err := s.svc.HandleWebhook(s.ctx, payment.Notification{Provider: "wallet", EventID: "evt_old", ProcessorRef: first.ProcessorRef, Status: "failed"})
	s.Require().NoError(err)
	s.True(res.Applied)
	s.Equal(payment.StatusFailed, s.stored(first.ID).Status)
	s.Equal(order.PaymentCompleted, s.orders.get(o.ID).PaymentStatus)
}

func (s *PaymentServiceSuite) TestHandleWebhook_BankReferenceCannotBorrowWalletSettlement() {
	walletOrder, wallet := s.pendingWallet()

	// the customer copies the wallet's processor reference into a large bank transfer
	bankOrder := s.newOrder("5000.00", order.MethodBankTransfer)
	bank, err := s.svc.InitializePayment(s.ctx, payment.InitRequest{OrderID: bankOrder.ID, Details: &payment.Details{BankReference: wallet.ProcessorRef}})
	s.Require().NoError(err)
	s.Require().Equal(payment.StatusPending, bank.Payment.Status)
	s.Equal(wallet.ProcessorRef, bank.Payment.BankReference)
	s.Empty(bank.Payment.ProcessorRef)

	payload := []byte(`{"event_id":"evt_shared","processor_ref":"` + wallet.ProcessorRef + `","status":"succeeded"}`)
	s.Require().NoError(s.svc.VerifyWebhookSignature("wallet", payload, payment.Sign(walletSecret, payload)))

	res, err := s.svc.HandleWebhook(s.ctx, payment.Notification{Provider: "wallet", EventID: "evt_shared", ProcessorRef: wallet.ProcessorRef, Status: "succeeded"})
	s.Require().NoError(err)
	s.True(res.Applied)
	s.Equal(wallet.ID, res.Payment.ID)

	s.Equal(payment.StatusCompleted, s.stored(wallet.ID).Status)
	s.Equal(order.PaymentCompleted, s.orders.get(walletOrder.ID).PaymentStatus)
	s.Equal(payment.StatusPending, s.stored(bank.Payment.ID).Status)
	s.Equal(order.PaymentPending, s.orders.get(bankOrder.ID).PaymentStatus)
}

func (s *PaymentServiceSuite) TestHandleWebhook_ScopedToProviderMethods() {
	_, paid := s.paidByCard("199.98")
	o, wallet := s.pendingWallet()

	// a wallet notification carrying a card reference matches nothing
	_, err := s.svc.HandleWebhook(s.ctx, payment.Notification{Provider: "wallet", EventID: "evt_card", ProcessorRef: paid.ProcessorRef, Status: "failed"})
	s.ErrorIs(err, payment.ErrPaymentNotFound)
	s.Equal(payment.StatusCompleted, s.stored(paid.ID).Status)

	res, err := s.svc.HandleWebhook(s.ctx, payment.Notification{Provider: "sandbox", EventID: "evt_sb", ProcessorRef: wallet.ProcessorRef, Status: "succeeded"})
	s.Require().NoError(err)
	s.True(res.Applied)
	s.Equal(order.PaymentCompleted, s.orders.get(o.ID).PaymentStatus)
}

func (s *PaymentServiceSuite) TestHandleWebhook_Rejections() {
	_, p := s.pendingWallet()

	testCases := []struct {
		name    string
		n       payment.Notification
		wantErr error
	}{
		{"missing event id", payment.Notification{Provider: "wallet", ProcessorRef: p.ProcessorRef, Status: "succeeded"}, payment.ErrInvalidNotification},
		{"unsupported status", payment.Notification{Provider: "wallet", EventID: "evt_a", ProcessorRef: p.ProcessorRef, Status: "on_hold"}, payment.ErrInvalidNotification},
		{"unknown reference", payment.Notification{Provider: "wallet", EventID: "evt_b", ProcessorRef: "wallet_missing", Status: "succeeded"}, payment.ErrPaymentNotFound},
		{"unknown provider", payment.Notification{Provider: "stripe", EventID: "evt_c", ProcessorRef: p.ProcessorRef, Status: "succeeded"}, payment.ErrUnknownProvider},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.svc.HandleWebhook(s.ctx, tc.n)
			s.ErrorIs(err, tc.wantErr)
		})
	}

	// a notification that could not be matched is not remembered, so the processor may retry it
	_, recorded := s.repo.event("wallet", "evt_b")
	s.False(recorded)
	s.Equal(payment.StatusPending, s.stored(p.ID).Status)
}
