package adapter

import "context"

// TransactionState is the provider-agnostic category of a payment's status.
type TransactionState string

const (
	TransactionStateCompleted TransactionState = "completed"
	TransactionStatePending   TransactionState = "pending"
	TransactionStateFailed    TransactionState = "failed"
)

// InitiationResult captures the outcome of an STK push request.
type InitiationResult struct {
	Success           bool
	MerchantRequestID string
	CheckoutRequestID string
	Message           string
	ErrorCode         string
}

// VerificationResult captures the outcome of a transaction status query.
// Success reports whether the provider gave a definitive answer; State
// classifies it. Inconclusive queries come back Success=false, State=pending.
type VerificationResult struct {
	Success       bool
	State         TransactionState
	ReceiptNumber string
	Message       string
	ErrorCode     string
}

// PaymentGateway is the hex port for the mobile-money provider.
type PaymentGateway interface {
	Name() string

	// InitiatePayment pushes a payment prompt to the given phone. Validation
	// failures and provider rejections are reported in the result, not as an
	// error; error is reserved for transport problems.
	InitiatePayment(ctx context.Context, phone string, amount float64, accountRef, description string) (InitiationResult, error)

	// VerifyTransaction queries the provider for the transaction's status.
	VerifyTransaction(ctx context.Context, checkoutRequestID string) (VerificationResult, error)

	// GetTransactionStatus retries VerifyTransaction with capped exponential
	// backoff until a definitive completed/failed result or maxAttempts is
	// exhausted; it always returns the last result observed.
	GetTransactionStatus(ctx context.Context, checkoutRequestID string, maxAttempts int) VerificationResult
}
