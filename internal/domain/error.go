package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateReference   = errors.New("reference already used")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrAlreadyProcessed     = errors.New("already processed")
	ErrReceiptMissing       = errors.New("receipt number missing")
	ErrMalformedPayload     = errors.New("malformed callback payload")
	ErrPendingRequestExists = errors.New("a pending access request already exists")

	// Infrastructure errors
	ErrOperationFailed = errors.New("operation failed")
	ErrReadDatabaseRow = errors.New("failed to read database row")
)
