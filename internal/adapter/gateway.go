package adapter

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentGateway defines the Anti-Corruption Layer interface for the card processor.
// This abstraction decouples the domain from the external payment API.
type PaymentGateway interface {
	// Charge collects amount from the member and returns the processor transaction id.
	Charge(ctx context.Context, amount decimal.Decimal, currency, reference string) (transactionID string, err error)

	// Refund returns amount of a previous charge.
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
}

// MockGateway is a development/testing implementation of PaymentGateway.
// It simulates a processor without requiring a merchant account.
type MockGateway struct {
	logger *zap.Logger
}

// NewMockGateway creates a new mock gateway for development.
func NewMockGateway(logger *zap.Logger) *MockGateway {
	return &MockGateway{logger: logger}
}

// Charge simulates a successful card charge.
func (m *MockGateway) Charge(ctx context.Context, amount decimal.Decimal, currency, reference string) (string, error) {
	transactionID := "ch_mock_" + NewTransactionSuffix()

	m.logger.Info("[MOCK GATEWAY] charge created",
		zap.String("transaction_id", transactionID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", currency),
		zap.String("reference", reference),
	)

	return transactionID, nil
}

// Refund simulates refunding a charge.
func (m *MockGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	m.logger.Info("[MOCK GATEWAY] refund created",
		zap.String("transaction_id", transactionID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return nil
}

// NewTransactionSuffix returns a lexicographically sortable unique id.
func NewTransactionSuffix() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
