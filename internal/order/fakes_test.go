package order_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]catalog.Product
	readErr  error
}

func newFakeCatalog(products ...catalog.Product) *fakeCatalog {
	c := &fakeCatalog{products: make(map[uuid.UUID]catalog.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	out := make(map[uuid.UUID]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *fakeCatalog) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	if p.Stock < quantity {
		return catalog.ErrStockConflict
	}
	p.Stock -= quantity
	c.products[id] = p
	return nil
}

func (c *fakeCatalog) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.Stock += quantity
	c.products[id] = p
	return nil
}

func (c *fakeCatalog) stock(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products[id].Stock
}

type fakeOrderRepository struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]order.Order
	createErr error
}

func newFakeOrderRepository() *fakeOrderRepository {
	return &fakeOrderRepository{orders: make(map[uuid.UUID]order.Order)}
}

func cloneOrder(o order.Order) order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return o
}

func (r *fakeOrderRepository) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return err
	}
	for _, existing := range r.orders {
		if existing.OrderNumber == o.OrderNumber {
			return order.ErrDuplicateOrderNumber
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.Must(uuid.NewV4())
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.Must(uuid.NewV4())
		}
	}
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *fakeOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

func (r *fakeOrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			c := cloneOrder(o)
			return &c, nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (r *fakeOrderRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.Order, 0)
	for _, o := range r.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

func (r *fakeOrderRepository) UpdateStatuses(ctx context.Context, o *order.Order, prevStatus order.Status, prevPayment order.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok {
		return order.ErrOrderNotFound
	}
	if stored.Status != prevStatus || stored.PaymentStatus != prevPayment {
		return order.ErrConcurrentUpdate
	}
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *fakeOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.PaymentStatus != order.PaymentPending && o.PaymentStatus != order.PaymentFailed {
		return order.ErrOrderPaid
	}
	delete(r.orders, id)
	return nil
}

func (r *fakeOrderRepository) put(o order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
}

var errCatalogDown = errors.New("catalog unavailable")

func product(stock int, price string) catalog.Product {
	return catalog.Product{
		ID:      uuid.Must(uuid.NewV4()),
		SKU:     "SKU-" + price,
		NameEn:  "Oud Oil",
		NameAr:  "زيت العود",
		Price:   decimal.RequireFromString(price),
		Stock:   stock,
		InStock: true,
	}
}

// snapshotTx restores the fakes when fn fails, standing in for a database rollback.
type snapshotTx struct {
	catalog *fakeCatalog
	orders  *fakeOrderRepository
}

func (t snapshotTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.catalog.mu.Lock()
	products := make(map[uuid.UUID]catalog.Product, len(t.catalog.products))
	for k, v := range t.catalog.products {
		products[k] = v
	}
	t.catalog.mu.Unlock()

	t.orders.mu.Lock()
	orders := make(map[uuid.UUID]order.Order, len(t.orders.orders))
	for k, v := range t.orders.orders {
		orders[k] = cloneOrder(v)
	}
	t.orders.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.catalog.mu.Lock()
		t.catalog.products = products
		t.catalog.mu.Unlock()
		t.orders.mu.Lock()
		t.orders.orders = orders
		t.orders.mu.Unlock()
		return err
	}
	return nil
}
