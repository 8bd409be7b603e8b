package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	// UpdateStatuses persists both statuses and the lifecycle timestamps only if the stored
	// statuses still equal prevStatus and prevPayment.
	UpdateStatuses(ctx context.Context, order *Order, prevStatus Status, prevPayment PaymentStatus) error
	// Delete removes the order only while its payment status still allows deletion.
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
	tx   db.Transactor
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool, tx: db.NewTransactor(pool)}
}

const orderColumns = `id, order_number, total, customer_info, order_status, payment_status, payment_method,
	shipped_at, delivered_at, cancelled_at, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, order *Order) error {
	if order.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		order.ID = id
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	return r.tx.RunInTx(ctx, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)

		queryOrder := `
			INSERT INTO orders (id, order_number, total, customer_info, order_status, payment_status, payment_method, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := conn.Exec(ctx, queryOrder,
			order.ID,
			order.OrderNumber,
			order.Total,
			order.Customer,
			string(order.Status),
			string(order.PaymentStatus),
			string(order.PaymentMethod),
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrDuplicateOrderNumber.Withf("order number %s already exists", order.OrderNumber)
			}
			return fmt.Errorf("repository: failed to insert order: %w", err)
		}

		queryItem := `
			INSERT INTO order_items (id, order_id, product_id, name_en, name_ar, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		for i := range order.Items {
			item := &order.Items[i]
			if item.ID == uuid.Nil {
				itemID, genErr := uuid.NewV4()
				if genErr != nil {
					return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
				}
				item.ID = itemID
			}
			_, err = conn.Exec(ctx, queryItem, item.ID, order.ID, item.ProductID, item.Name.En, item.Name.Ar, item.Quantity, item.Price)
			if err != nil {
				return fmt.Errorf("repository: failed to insert order item for order %s: %w", order.ID, err)
			}
		}
		return nil
	})
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status, paymentStatus, method string
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.Total,
		&o.Customer,
		&status,
		&paymentStatus,
		&method,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.CancelledAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	o.PaymentMethod = PaymentMethod(method)
	return &o, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *postgresRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	return r.getOne(ctx, query, number)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg any) (*Order, error) {
	conn := db.Conn(ctx, r.pool)

	order, err := scanOrder(conn.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %v: %w", arg, err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, product_id, name_en, name_ar, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name.En, &item.Name.Ar, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %s: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating items for order %s: %w", orderID, err)
	}
	return items, nil
}

func (r *postgresRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check order number %s: %w", number, err)
	}
	return exists, nil
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("order_status = $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, string(filter.PaymentStatus))
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *postgresRepository) UpdateStatuses(ctx context.Context, order *Order, prevStatus Status, prevPayment PaymentStatus) error {
	query := `
		UPDATE orders
		SET order_status = $1, payment_status = $2, shipped_at = $3, delivered_at = $4, cancelled_at = $5, updated_at = $6
		WHERE id = $7 AND order_status = $8 AND payment_status = $9
	`
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		string(order.Status),
		string(order.PaymentStatus),
		order.ShippedAt,
		order.DeliveredAt,
		order.CancelledAt,
		order.UpdatedAt,
		order.ID,
		string(prevStatus),
		string(prevPayment),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update statuses for order %s: %w", order.ID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, order.ID); err != nil {
			return err
		}
		log.Warn().Stringer("order_id", order.ID).Stringer("expected_status", prevStatus).Stringer("expected_payment_status", prevPayment).Msg("repository: order status compare-and-swap lost")
		return ErrConcurrentUpdate.Withf("order %s was modified concurrently", order.ID)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM orders WHERE id = $1 AND payment_status IN ('pending', 'failed')`

	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return ErrOrderPaid.Withf("order %s has payment status %s and cannot be deleted", id, existing.PaymentStatus)
	}
	return nil
}
