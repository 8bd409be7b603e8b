package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

type Repository interface {
	// Create stores p as the current attempt of its order and demotes earlier attempts.
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	// GetForUpdate locks the payment row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)
	// GetByProcessorRef returns the newest payment made with one of methods that carries processorRef.
	GetByProcessorRef(ctx context.Context, processorRef string, methods []order.PaymentMethod) (*Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
	// UpdateState writes the mutable fields of p only if the stored status still equals prev.
	UpdateState(ctx context.Context, p *Payment, prev Status) error

	CreateRefund(ctx context.Context, r *Refund) error
	UpdateRefund(ctx context.Context, r *Refund) error
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]Refund, error)

	// RecordWebhookEvent reports false when the event was already recorded.
	RecordWebhookEvent(ctx context.Context, e *WebhookEvent) (bool, error)
	MarkWebhookProcessed(ctx context.Context, provider, eventID string, at time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
	tx   db.Transactor
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool, tx: db.NewTransactor(pool)}
}

// currentPaymentConstraint is the partial unique index allowing one current attempt per order.
const currentPaymentConstraint = "uq_payments_current_per_order"

const paymentColumns = `id, payment_ref, order_id, method, amount, currency, fixed_fee, percentage_fee, fee_total,
	total_amount, status, processor_ref, bank_reference, redirect_url, instructions, refunded_amount, failure_reason,
	is_current, expires_at, completed_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var method, status string
	err := row.Scan(
		&p.ID,
		&p.PaymentRef,
		&p.OrderID,
		&method,
		&p.Amount,
		&p.Currency,
		&p.Fees.Fixed,
		&p.Fees.Percentage,
		&p.Fees.Total,
		&p.TotalAmount,
		&status,
		&p.ProcessorRef,
		&p.BankReference,
		&p.RedirectURL,
		&p.Instructions,
		&p.RefundedAmount,
		&p.FailureReason,
		&p.IsCurrent,
		&p.ExpiresAt,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Method = order.PaymentMethod(method)
	p.Status = Status(status)
	return &p, nil
}

func (r *postgresRepository) Create(ctx context.Context, p *Payment) error {
	return r.tx.RunInTx(ctx, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)

		if _, err := conn.Exec(ctx, `UPDATE payments SET is_current = false, updated_at = $2 WHERE order_id = $1 AND is_current`, p.OrderID, p.CreatedAt); err != nil {
			return fmt.Errorf("repository: failed to demote earlier payments of order %s: %w", p.OrderID, err)
		}

		query := `
			INSERT INTO payments (` + paymentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		`
		_, err := conn.Exec(ctx, query,
			p.ID,
			p.PaymentRef,
			p.OrderID,
			string(p.Method),
			p.Amount,
			p.Currency,
			p.Fees.Fixed,
			p.Fees.Percentage,
			p.Fees.Total,
			p.TotalAmount,
			string(p.Status),
			p.ProcessorRef,
			p.BankReference,
			p.RedirectURL,
			p.Instructions,
			p.RefundedAmount,
			p.FailureReason,
			true,
			p.ExpiresAt,
			p.CompletedAt,
			p.CreatedAt,
			p.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == currentPaymentConstraint {
				log.Warn().Stringer("order_id", p.OrderID).Str("constraint", pgErr.ConstraintName).Msg("repository: concurrent payment attempt lost")
				return ErrPaymentConflict.Withf("another payment for order %s was started concurrently", p.OrderID)
			}
			return fmt.Errorf("repository: failed to insert payment for order %s: %w", p.OrderID, err)
		}
		p.IsCurrent = true
		return nil
	})
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error) {
	if !db.InTx(ctx) {
		return nil, errors.New("repository: GetForUpdate called outside a transaction")
	}
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresRepository) GetByProcessorRef(ctx context.Context, processorRef string, methods []order.PaymentMethod) (*Payment, error) {
	if processorRef == "" || len(methods) == 0 {
		return nil, ErrPaymentNotFound
	}
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE processor_ref = $1 AND method = ANY($2) ORDER BY created_at DESC LIMIT 1`
	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, query, processorRef, names))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment by processor ref %s: %w", processorRef, err)
	}
	return p, nil
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg any) (*Payment, error) {
	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment %v: %w", arg, err)
	}
	return p, nil
}

func (r *postgresRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query payments for order %s: %w", orderID, err)
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating payments: %w", err)
	}
	return payments, nil
}

func (r *postgresRepository) UpdateState(ctx context.Context, p *Payment, prev Status) error {
	query := `
		UPDATE payments
		SET status = $1, processor_ref = $2, redirect_url = $3, instructions = $4, refunded_amount = $5,
			failure_reason = $6, completed_at = $7, updated_at = $8, bank_reference = $11
		WHERE id = $9 AND status = $10
	`
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		string(p.Status),
		p.ProcessorRef,
		p.RedirectURL,
		p.Instructions,
		p.RefundedAmount,
		p.FailureReason,
		p.CompletedAt,
		p.UpdatedAt,
		p.ID,
		string(prev),
		p.BankReference,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update payment %s: %w", p.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, p.ID); err != nil {
			return err
		}
		log.Warn().Stringer("payment_id", p.ID).Stringer("expected_status", prev).Msg("repository: payment compare-and-swap lost")
		return ErrPaymentConflict.Withf("payment %s is no longer %s", p.ID, prev)
	}
	return nil
}

func (r *postgresRepository) CreateRefund(ctx context.Context, rf *Refund) error {
	query := `
		INSERT INTO refunds (id, payment_id, amount, reason, status, actor_id, processor_ref, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		rf.ID, rf.PaymentID, rf.Amount, rf.Reason, string(rf.Status), rf.ActorID, rf.ProcessorRef, rf.FailureReason, rf.CreatedAt, rf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert refund for payment %s: %w", rf.PaymentID, err)
	}
	return nil
}

func (r *postgresRepository) UpdateRefund(ctx context.Context, rf *Refund) error {
	query := `UPDATE refunds SET status = $1, processor_ref = $2, failure_reason = $3, updated_at = $4 WHERE id = $5`

	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query, string(rf.Status), rf.ProcessorRef, rf.FailureReason, rf.UpdatedAt, rf.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to update refund %s: %w", rf.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("repository: refund %s not found", rf.ID)
	}
	return nil
}

func (r *postgresRepository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]Refund, error) {
	query := `
		SELECT id, payment_id, amount, reason, status, actor_id, processor_ref, failure_reason, created_at, updated_at
		FROM refunds
		WHERE payment_id = $1
		ORDER BY created_at
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query refunds for payment %s: %w", paymentID, err)
	}
	defer rows.Close()

	refunds := make([]Refund, 0)
	for rows.Next() {
		var rf Refund
		var status string
		if err := rows.Scan(&rf.ID, &rf.PaymentID, &rf.Amount, &rf.Reason, &status, &rf.ActorID, &rf.ProcessorRef, &rf.FailureReason, &rf.CreatedAt, &rf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan refund: %w", err)
		}
		rf.Status = RefundStatus(status)
		refunds = append(refunds, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating refunds: %w", err)
	}
	return refunds, nil
}

func (r *postgresRepository) RecordWebhookEvent(ctx context.Context, e *WebhookEvent) (bool, error) {
	query := `
		INSERT INTO payment_webhook_events (provider, event_id, processor_ref, status, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, event_id) DO NOTHING
	`
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query, e.Provider, e.EventID, e.ProcessorRef, e.Status, e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("repository: failed to record webhook event %s/%s: %w", e.Provider, e.EventID, err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *postgresRepository) MarkWebhookProcessed(ctx context.Context, provider, eventID string, at time.Time) error {
	query := `UPDATE payment_webhook_events SET processed_at = $3 WHERE provider = $1 AND event_id = $2`
	if _, err := db.Conn(ctx, r.pool).Exec(ctx, query, provider, eventID, at); err != nil {
		return fmt.Errorf("repository: failed to mark webhook event %s/%s processed: %w", provider, eventID, err)
	}
	return nil
}
