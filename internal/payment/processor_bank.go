package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
)

// bankProcessor leaves the payment pending until an administrator verifies the transfer.
type bankProcessor struct {
	account config.BankAccountConfig
}

func NewBankTransferProcessor(account config.BankAccountConfig) Processor {
	return &bankProcessor{account: account}
}

func (b *bankProcessor) Method() order.PaymentMethod { return order.MethodBankTransfer }
func (b *bankProcessor) RequiresInput() bool         { return false }
func (b *bankProcessor) NextStep() NextStep          { return StepTransferFunds }

func (b *bankProcessor) Validate(details Details) error {
	if len(details.BankReference) > 64 {
		return ErrInvalidDetails.Withf("bank reference must be at most 64 characters")
	}
	return nil
}

func (b *bankProcessor) Process(ctx context.Context, p *Payment, details Details) (Outcome, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transfer %s %s to %s", p.TotalAmount.StringFixed(2), p.Currency, b.account.AccountName)
	if b.account.BankName != "" {
		fmt.Fprintf(&sb, " at %s", b.account.BankName)
	}
	if b.account.IBAN != "" {
		fmt.Fprintf(&sb, ", IBAN %s", b.account.IBAN)
	}
	if b.account.SwiftCode != "" {
		fmt.Fprintf(&sb, ", SWIFT %s", b.account.SwiftCode)
	}
	fmt.Fprintf(&sb, ". Use %s as the transfer reference.", p.PaymentRef)

	return Outcome{
		Kind:          OutcomePending,
		BankReference: details.BankReference,
		NextStep:      StepTransferFunds,
		Instructions:  sb.String(),
	}, nil
}
