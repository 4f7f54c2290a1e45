package model

import (
	"time"

	"telegram-subscription-bot/internal/domain"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction records one STK push attempt. Status moves one way:
// pending -> completed or pending -> failed. CompletedAt is set if and only
// if the status is completed.
type Transaction struct {
	ID                string
	AccountID         string
	CheckoutRequestID string // provider transaction reference, unique
	MerchantRequestID string
	ReceiptNumber     string // provider receipt, set on success only
	PhoneNumber       string
	Amount            float64
	Status            TransactionStatus
	Tier              PackageTier
	CreatedAt         time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

func NewTransaction(accountID, checkoutRequestID, merchantRequestID, phone string, amount float64, tier PackageTier) (*Transaction, error) {
	if accountID == "" || checkoutRequestID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount <= 0 || !tier.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if !ValidPhoneNumber(phone) {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		CheckoutRequestID: checkoutRequestID,
		MerchantRequestID: merchantRequestID,
		PhoneNumber:       NormalizePhoneNumber(phone),
		Amount:            amount,
		Status:            TransactionStatusPending,
		Tier:              tier,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (t *Transaction) IsPending() bool   { return t.Status == TransactionStatusPending }
func (t *Transaction) IsCompleted() bool { return t.Status == TransactionStatusCompleted }
func (t *Transaction) IsFailed() bool    { return t.Status == TransactionStatusFailed }

// Complete returns a completed copy stamped with the receipt and completion
// time. Terminal transactions cannot be completed again.
func (t *Transaction) Complete(receipt string) (*Transaction, error) {
	if !t.IsPending() {
		return nil, domain.ErrAlreadyProcessed
	}
	if receipt == "" {
		return nil, domain.ErrReceiptMissing
	}
	now := time.Now()
	cp := *t
	cp.Status = TransactionStatusCompleted
	cp.ReceiptNumber = receipt
	cp.CompletedAt = &now
	cp.UpdatedAt = now
	return &cp, nil
}

// Fail returns a failed copy. Completion timestamp stays unset.
func (t *Transaction) Fail() (*Transaction, error) {
	if !t.IsPending() {
		return nil, domain.ErrAlreadyProcessed
	}
	cp := *t
	cp.Status = TransactionStatusFailed
	cp.CompletedAt = nil
	cp.UpdatedAt = time.Now()
	return &cp, nil
}
