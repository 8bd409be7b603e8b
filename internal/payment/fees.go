package payment

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

var hundred = decimal.NewFromInt(100)

type FeeSchedule struct {
	Currency   string          `db:"currency"`
	Fixed      decimal.Decimal `db:"fixed_fee"`
	Percentage decimal.Decimal `db:"percentage_fee"`
}

// MethodConfig is the reference data for one payment method. A zero MaxAmount means no upper limit.
type MethodConfig struct {
	Method      order.PaymentMethod    `db:"method"`
	DisplayName string                 `db:"display_name"`
	MinAmount   decimal.Decimal        `db:"min_amount"`
	MaxAmount   decimal.Decimal        `db:"max_amount"`
	Currencies  pq.StringArray         `db:"currencies"`
	Active      bool                   `db:"active"`
	Fees        map[string]FeeSchedule `db:"-"`
}

func (c *MethodConfig) SupportsCurrency(currency string) bool {
	for _, cur := range c.Currencies {
		if strings.EqualFold(cur, currency) {
			return true
		}
	}
	return false
}

func (c *MethodConfig) CheckAmount(amount decimal.Decimal) error {
	if amount.LessThan(c.MinAmount) {
		return ErrAmountOutOfRange.Withf("%s requires at least %s", c.Method, c.MinAmount.StringFixed(2))
	}
	if c.MaxAmount.IsPositive() && amount.GreaterThan(c.MaxAmount) {
		return ErrAmountOutOfRange.Withf("%s allows at most %s", c.Method, c.MaxAmount.StringFixed(2))
	}
	return nil
}

type MethodConfigReader interface {
	GetMethodConfig(ctx context.Context, method order.PaymentMethod) (*MethodConfig, error)
	ListMethodConfigs(ctx context.Context) ([]MethodConfig, error)
}

// ComputeFees applies a schedule to amount: fixed + amount * percentage / 100, each part rounded
// half up to two decimals.
func ComputeFees(schedule FeeSchedule, amount decimal.Decimal) Fees {
	fixed := schedule.Fixed.Round(2)
	pct := amount.Mul(schedule.Percentage).Div(hundred).Round(2)
	return Fees{
		Fixed:      fixed,
		Percentage: pct,
		Total:      fixed.Add(pct),
	}
}

type FeeCalculator struct {
	configs MethodConfigReader
}

func NewFeeCalculator(configs MethodConfigReader) *FeeCalculator {
	return &FeeCalculator{configs: configs}
}

// Calculate quotes the fees for paying amount in currency with method. It never writes anything.
// Methods without a fee schedule for the currency are rejected rather than quoted at zero.
func (f *FeeCalculator) Calculate(ctx context.Context, method order.PaymentMethod, amount decimal.Decimal, currency string) (Quote, error) {
	_, quote, err := f.quote(ctx, method, amount, currency)
	return quote, err
}

func (f *FeeCalculator) quote(ctx context.Context, method order.PaymentMethod, amount decimal.Decimal, currency string) (*MethodConfig, Quote, error) {
	if !amount.IsPositive() {
		return nil, Quote{}, ErrInvalidAmount.Withf("amount must be positive, got %s", amount.String())
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, Quote{}, ErrInvalidCurrency.Withf("invalid currency %q", currency)
	}

	cfg, err := f.configs.GetMethodConfig(ctx, method)
	if err != nil {
		return nil, Quote{}, err
	}
	if !cfg.Active {
		return nil, Quote{}, ErrMethodUnavailable.Withf("payment method %s is disabled", method)
	}
	if !cfg.SupportsCurrency(currency) {
		return nil, Quote{}, ErrCurrencyNotSupported.Withf("payment method %s does not accept %s", method, currency)
	}
	schedule, ok := cfg.Fees[currency]
	if !ok {
		return nil, Quote{}, ErrFeeNotConfigured.Withf("no fee schedule for %s in %s", method, currency)
	}

	fees := ComputeFees(schedule, amount)
	return cfg, Quote{
		Method:   method,
		Amount:   amount,
		Currency: currency,
		Fees:     fees,
		Total:    amount.Add(fees.Total),
	}, nil
}
