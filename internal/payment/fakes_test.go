package payment_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeRepoState struct {
	payments map[uuid.UUID]payment.Payment
	seq      map[uuid.UUID]int
	refunds  map[uuid.UUID][]payment.Refund
	events   map[string]payment.WebhookEvent
}

func (st fakeRepoState) clone() fakeRepoState {
	c := fakeRepoState{
		payments: make(map[uuid.UUID]payment.Payment, len(st.payments)),
		seq:      make(map[uuid.UUID]int, len(st.seq)),
		refunds:  make(map[uuid.UUID][]payment.Refund, len(st.refunds)),
		events:   make(map[string]payment.WebhookEvent, len(st.events)),
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.seq {
		c.seq[k] = v
	}
	for k, v := range st.refunds {
		c.refunds[k] = append([]payment.Refund(nil), v...)
	}
	for k, v := range st.events {
		c.events[k] = v
	}
	return c
}

type fakeRepository struct {
	mu      sync.Mutex
	state   fakeRepoState
	nextSeq int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{state: fakeRepoState{}.clone()}
}

func (r *fakeRepository) snapshot() fakeRepoState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *fakeRepository) restore(st fakeRepoState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st
}

func (r *fakeRepository) Create(ctx context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.state.payments {
		if existing.OrderID == p.OrderID && existing.IsCurrent {
			existing.IsCurrent = false
			r.state.payments[id] = existing
		}
	}
	p.IsCurrent = true
	r.nextSeq++
	r.state.seq[p.ID] = r.nextSeq
	stored := *p
	stored.Refunds = nil
	r.state.payments[p.ID] = stored
	return nil
}

func (r *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *fakeRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if ctx.Value(heldKey{}) == nil {
		return nil, errors.New("fake: GetForUpdate called outside a transaction")
	}
	return r.GetByID(ctx, id)
}

func (r *fakeRepository) GetByProcessorRef(ctx context.Context, processorRef string, methods []order.PaymentMethod) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		found *payment.Payment
		best  int
	)
	for id, p := range r.state.payments {
		if p.ProcessorRef != processorRef || p.ProcessorRef == "" || !slices.Contains(methods, p.Method) {
			continue
		}
		if seq := r.state.seq[id]; found == nil || seq > best {
			c := p
			found, best = &c, seq
		}
	}
	if found == nil {
		return nil, payment.ErrPaymentNotFound
	}
	return found, nil
}

func (r *fakeRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]payment.Payment, 0)
	for _, p := range r.state.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepository) UpdateState(ctx context.Context, p *payment.Payment, prev payment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.state.payments[p.ID]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if stored.Status != prev {
		return payment.ErrPaymentConflict
	}
	stored.Status = p.Status
	stored.ProcessorRef = p.ProcessorRef
	stored.BankReference = p.BankReference
	stored.RedirectURL = p.RedirectURL
	stored.Instructions = p.Instructions
	stored.RefundedAmount = p.RefundedAmount
	stored.FailureReason = p.FailureReason
	stored.CompletedAt = p.CompletedAt
	stored.UpdatedAt = p.UpdatedAt
	r.state.payments[p.ID] = stored
	return nil
}

func (r *fakeRepository) CreateRefund(ctx context.Context, rf *payment.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.refunds[rf.PaymentID] = append(r.state.refunds[rf.PaymentID], *rf)
	return nil
}

func (r *fakeRepository) UpdateRefund(ctx context.Context, rf *payment.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	refunds := r.state.refunds[rf.PaymentID]
	for i := range refunds {
		if refunds[i].ID == rf.ID {
			refunds[i] = *rf
			return nil
		}
	}
	return errors.New("fake: refund not found")
}

func (r *fakeRepository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]payment.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]payment.Refund{}, r.state.refunds[paymentID]...), nil
}

func (r *fakeRepository) RecordWebhookEvent(ctx context.Context, e *payment.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.Provider + "/" + e.EventID
	if _, ok := r.state.events[key]; ok {
		return false, nil
	}
	r.state.events[key] = *e
	return true, nil
}

func (r *fakeRepository) MarkWebhookProcessed(ctx context.Context, provider, eventID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := provider + "/" + eventID
	e, ok := r.state.events[key]
	if !ok {
		return errors.New("fake: webhook event not recorded")
	}
	e.ProcessedAt = &at
	r.state.events[key] = e
	return nil
}

func (r *fakeRepository) event(provider, eventID string) (payment.WebhookEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.events[provider+"/"+eventID]
	return e, ok
}

func (r *fakeRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.payments)
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]order.Order
	now    func() time.Time
}

func newFakeOrders(now func() time.Time) *fakeOrders {
	return &fakeOrders{orders: make(map[uuid.UUID]order.Order), now: now}
}

func (f *fakeOrders) put(o order.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeOrders) get(id uuid.UUID) order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeOrders) snapshot() map[uuid.UUID]order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := make(map[uuid.UUID]order.Order, len(f.orders))
	for k, v := range f.orders {
		c[k] = v
	}
	return c
}

func (f *fakeOrders) restore(orders map[uuid.UUID]order.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = orders
}

func (f *fakeOrders) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (f *fakeOrders) ApplyPaymentStatus(ctx context.Context, id uuid.UUID, status order.PaymentStatus) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	if err := o.UpdateStatus(string(status), order.StatusTypePayment, f.now()); err != nil {
		return nil, err
	}
	f.orders[id] = o
	return &o, nil
}

type fakeMethods struct {
	mu      sync.Mutex
	configs map[order.PaymentMethod]payment.MethodConfig
}

func (m *fakeMethods) GetMethodConfig(ctx context.Context, method order.PaymentMethod) (*payment.MethodConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[method]
	if !ok {
		return nil, payment.ErrMethodUnavailable
	}
	return &cfg, nil
}

func (m *fakeMethods) ListMethodConfigs(ctx context.Context) ([]payment.MethodConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payment.MethodConfig, 0, len(m.configs))
	for _, method := range order.PaymentMethods {
		if cfg, ok := m.configs[method]; ok {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *fakeMethods) update(method order.PaymentMethod, fn func(cfg *payment.MethodConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.configs[method]
	fn(&cfg)
	m.configs[method] = cfg
}

func newFakeMethods() *fakeMethods {
	egp := func(fixed, pct string) map[string]payment.FeeSchedule {
		return map[string]payment.FeeSchedule{"EGP": {Currency: "EGP", Fixed: dec(fixed), Percentage: dec(pct)}}
	}
	return &fakeMethods{configs: map[order.PaymentMethod]payment.MethodConfig{
		order.MethodCard: {
			Method: order.MethodCard, DisplayName: "Card", MinAmount: dec("1"), Active: true,
			Currencies: []string{"EGP", "USD"},
			Fees:       egp("2.50", "2.9"),
		},
		order.MethodMobileWallet: {
			Method: order.MethodMobileWallet, DisplayName: "Mobile wallet", MinAmount: dec("1"), MaxAmount: dec("30000"), Active: true,
			Currencies: []string{"EGP"},
			Fees:       egp("0", "1.5"),
		},
		order.MethodCashOnDelivery: {
			Method: order.MethodCashOnDelivery, DisplayName: "Cash on delivery", MinAmount: dec("1"), MaxAmount: dec("5000"), Active: true,
			Currencies: []string{"EGP"},
			Fees:       egp("10", "0"),
		},
		order.MethodPayPal: {
			Method: order.MethodPayPal, DisplayName: "PayPal", MinAmount: dec("1"), Active: true,
			Currencies: []string{"EGP", "USD"},
			Fees:       egp("0", "3.4"),
		},
		order.MethodBankTransfer: {
			Method: order.MethodBankTransfer, DisplayName: "Bank transfer", MinAmount: dec("100"), Active: true,
			Currencies: []string{"EGP"},
			Fees:       egp("0", "0"),
		},
	}}
}

type heldKey struct{}

// lockingTx serializes units of work and rolls the fakes back when one fails,
// which is what row locks and a real transaction give the service.
type lockingTx struct {
	mu     sync.Mutex
	repo   *fakeRepository
	orders *fakeOrders
}

func (t *lockingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(heldKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	repoState := t.repo.snapshot()
	orderState := t.orders.snapshot()
	if err := fn(context.WithValue(ctx, heldKey{}, true)); err != nil {
		t.repo.restore(repoState)
		t.orders.restore(orderState)
		return err
	}
	return nil
}
