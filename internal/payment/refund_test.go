package payment_test

import (
	"errors"
	"sync"

	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
)

func (s *PaymentServiceSuite) refund(p *payment.Payment, amount string) (*payment.Refund, error) {
	return s.svc.ProcessRefund(s.ctx, payment.RefundRequest{
		PaymentID: p.ID,
		Amount:    dec(amount),
		Reason:    "customer request",
		ActorID:   "admin-7",
	})
}

func (s *PaymentServiceSuite) TestRefund_PartialThenFull() {
	o, p := s.paidByCard("199.98")

	first, err := s.refund(p, "100.00")
	s.Require().NoError(err)
	s.Equal(payment.RefundCompleted, first.Status)
	s.NotEmpty(first.ProcessorRef)
	s.Equal("admin-7", first.ActorID)

	afterFirst := s.stored(p.ID)
	s.Equal(payment.StatusPartiallyRefunded, afterFirst.Status)
	s.Equal("100.00", afterFirst.RefundedAmount.StringFixed(2))
	s.Equal("108.28", afterFirst.RemainingRefundable().StringFixed(2))
	s.Equal(order.PaymentCompleted, s.orders.get(o.ID).PaymentStatus)

	_, err = s.refund(p, "108.28")
	s.Require().NoError(err)

	afterSecond := s.stored(p.ID)
	s.Equal(payment.StatusRefunded, afterSecond.Status)
	s.True(afterSecond.RemainingRefundable().IsZero())
	s.Equal(order.PaymentRefunded, s.orders.get(o.ID).PaymentStatus)

	_, err = s.refund(p, "0.01")
	s.ErrorIs(err, payment.ErrInvalidPaymentState)
}

func (s *PaymentServiceSuite) TestRefund_FullAmountAtOnce() {
	o, p := s.paidByCard("199.98")

	_, err := s.refund(p, "208.28")
	s.Require().NoError(err)
	s.Equal(payment.StatusRefunded, s.stored(p.ID).Status)
	s.Equal(order.PaymentRefunded, s.orders.get(o.ID).PaymentStatus)
}

func (s *PaymentServiceSuite) TestRefund_ExceedingRemainingChangesNothing() {
	_, p := s.paidByCard("199.98")
	calls := s.card.Calls()

	_, err := s.refund(p, "208.29")
	s.ErrorIs(err, payment.ErrRefundExceedsRemaining)

	got := s.stored(p.ID)
	s.Equal(payment.StatusCompleted, got.Status)
	s.True(got.RefundedAmount.IsZero())
	refunds, err := s.repo.ListRefunds(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Empty(refunds)
	s.Equal(calls, s.card.Calls())
}

func (s *PaymentServiceSuite) TestRefund_ConcurrentRequestsNeverOverRefund() {
	_, p := s.paidByCard("199.98")

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exceeded  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.refund(p, "50.00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, payment.ErrRefundExceedsRemaining):
				exceeded++
			}
		}()
	}
	wg.Wait()

	s.Equal(4, succeeded)
	s.Equal(workers-4, exceeded)

	got := s.stored(p.ID)
	s.Equal("200.00", got.RefundedAmount.StringFixed(2))
	s.Equal(payment.StatusPartiallyRefunded, got.Status)
}

func (s *PaymentServiceSuite) TestRefund_ProcessorFailureReleasesReservation() {
	_, p := s.paidByCard("199.98")
	s.card.SetShouldFail(true)

	rf, err := s.refund(p, "50.00")
	s.ErrorIs(err, payment.ErrProcessorFailure)
	s.Require().NotNil(rf)
	s.Equal(payment.RefundFailed, rf.Status)
	s.NotEmpty(rf.FailureReason)

	got := s.stored(p.ID)
	s.Equal(payment.StatusCompleted, got.Status)
	s.True(got.RefundedAmount.IsZero())

	s.card.SetShouldFail(false)
	_, err = s.refund(p, "208.28")
	s.Require().NoError(err)
	s.Equal(payment.StatusRefunded, s.stored(p.ID).Status)

	refunds, err := s.repo.ListRefunds(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(refunds, 2)
	s.Equal(payment.RefundFailed, refunds[0].Status)
	s.Equal(payment.RefundCompleted, refunds[1].Status)
}

func (s *PaymentServiceSuite) TestRefund_CashOnDeliveryRecordedDirectly() {
	o := s.newOrder("199.98", order.MethodCashOnDelivery)
	res, err := s.svc.InitializePayment(s.ctx, payment.InitRequest{OrderID: o.ID})
	s.Require().NoError(err)
	_, err = s.svc.Capture(s.ctx, res.Payment.ID)
	s.Require().NoError(err)

	rf, err := s.refund(res.Payment, "50.00")
	s.Require().NoError(err)
	s.Equal(payment.RefundCompleted, rf.Status)
	s.Empty(rf.ProcessorRef)
	s.Equal(payment.StatusPartiallyRefunded, s.stored(res.Payment.ID).Status)
}

func (s *PaymentServiceSuite) TestRefund_Rejections() {
	o, p := s.paidByCard("199.98")

	pendingOrder := s.newOrder("1500.00", order.MethodBankTransfer)
	pending, err := s.svc.InitializePayment(s.ctx, payment.InitRequest{OrderID: pendingOrder.ID})
	s.Require().NoError(err)

	testCases := []struct {
		name    string
		req     payment.RefundRequest
		wantErr error
	}{
		{"missing actor", payment.RefundRequest{PaymentID: p.ID, Amount: dec("10")}, payment.ErrActorRequired},
		{"zero amount", payment.RefundRequest{PaymentID: p.ID, Amount: dec("0"), ActorID: "admin-7"}, payment.ErrInvalidAmount},
		{"negative amount", payment.RefundRequest{PaymentID: p.ID, Amount: dec("-5"), ActorID: "admin-7"}, payment.ErrInvalidAmount},
		{"sub-cent amount", payment.RefundRequest{PaymentID: p.ID, Amount: dec("10.005"), ActorID: "admin-7"}, payment.ErrInvalidAmount},
		{"payment not settled", payment.RefundRequest{PaymentID: pending.Payment.ID, Amount: dec("10"), ActorID: "admin-7"}, payment.ErrInvalidPaymentState},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.svc.ProcessRefund(s.ctx, tc.req)
			s.ErrorIs(err, tc.wantErr)
		})
	}

	delivered := s.orders.get(o.ID)
	delivered.Status = order.StatusDelivered
	s.orders.put(delivered)

	_, err = s.refund(p, "10.00")
	s.ErrorIs(err, payment.ErrRefundNotAllowed)
	s.True(s.stored(p.ID).RefundedAmount.IsZero())
}
