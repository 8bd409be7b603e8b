package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

type methodRepository struct {
	db *sqlx.DB
}

// NewMethodRepository reads payment method reference data. It is read-mostly and lives
// outside the transactional core, so it goes through database/sql.
func NewMethodRepository(db *sqlx.DB) MethodConfigReader {
	return &methodRepository{db: db}
}

func (r *methodRepository) GetMethodConfig(ctx context.Context, method order.PaymentMethod) (*MethodConfig, error) {
	var cfg MethodConfig
	query := `SELECT method, display_name, min_amount, max_amount, currencies, active FROM payment_methods WHERE method = $1`

	if err := r.db.GetContext(ctx, &cfg, query, string(method)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMethodUnavailable.Withf("payment method %s is not configured", method)
		}
		return nil, fmt.Errorf("repository: failed to get payment method %s: %w", method, err)
	}

	fees, err := r.feesFor(ctx, []string{string(method)})
	if err != nil {
		return nil, err
	}
	cfg.Fees = fees[method]
	if cfg.Fees == nil {
		cfg.Fees = map[string]FeeSchedule{}
	}
	return &cfg, nil
}

func (r *methodRepository) ListMethodConfigs(ctx context.Context) ([]MethodConfig, error) {
	configs := []MethodConfig{}
	query := `SELECT method, display_name, min_amount, max_amount, currencies, active FROM payment_methods ORDER BY method`

	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("repository: failed to list payment methods: %w", err)
	}
	if len(configs) == 0 {
		return configs, nil
	}

	methods := make([]string, 0, len(configs))
	for _, c := range configs {
		methods = append(methods, string(c.Method))
	}
	fees, err := r.feesFor(ctx, methods)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		configs[i].Fees = fees[configs[i].Method]
		if configs[i].Fees == nil {
			configs[i].Fees = map[string]FeeSchedule{}
		}
	}
	return configs, nil
}

type feeRow struct {
	Method string `db:"method"`
	FeeSchedule
}

func (r *methodRepository) feesFor(ctx context.Context, methods []string) (map[order.PaymentMethod]map[string]FeeSchedule, error) {
	query, args, err := sqlx.In(`SELECT method, currency, fixed_fee, percentage_fee FROM payment_method_fees WHERE method IN (?)`, methods)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to build fee query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []feeRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("repository: failed to load fees for %s: %w", strings.Join(methods, ","), err)
	}

	out := make(map[order.PaymentMethod]map[string]FeeSchedule)
	for _, row := range rows {
		m := order.PaymentMethod(row.Method)
		if out[m] == nil {
			out[m] = make(map[string]FeeSchedule)
		}
		out[m][strings.ToUpper(row.Currency)] = row.FeeSchedule
	}
	return out, nil
}
