package model

import (
	"time"

	"telegram-subscription-bot/internal/domain"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// AccessRequest is the manual-approval path: an admin converts it into a
// subscription without going through the payment provider.
type AccessRequest struct {
	ID          string
	AccountID   string
	TelegramID  int64  // snapshot at request time
	Username    string // snapshot
	PhoneNumber string
	Tier        PackageTier
	Status      RequestStatus
	RequestedAt time.Time
	ProcessedAt *time.Time
	ProcessedBy int64 // admin telegram id
	Notes       string
}

func NewAccessRequest(accountID string, tgID int64, username, phone string, tier PackageTier) (*AccessRequest, error) {
	if accountID == "" || tgID <= 0 || !tier.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	return &AccessRequest{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		TelegramID:  tgID,
		Username:    username,
		PhoneNumber: NormalizePhoneNumber(phone),
		Tier:        tier,
		Status:      RequestStatusPending,
		RequestedAt: time.Now(),
	}, nil
}

func (r *AccessRequest) IsPending() bool { return r.Status == RequestStatusPending }

// Approve returns an approved copy stamped with the approver. Terminal
// requests cannot be processed again.
func (r *AccessRequest) Approve(adminID int64) (*AccessRequest, error) {
	if !r.IsPending() {
		return nil, domain.ErrAlreadyProcessed
	}
	now := time.Now()
	cp := *r
	cp.Status = RequestStatusApproved
	cp.ProcessedAt = &now
	cp.ProcessedBy = adminID
	return &cp, nil
}

// Reject returns a rejected copy, optionally annotated with a reason.
func (r *AccessRequest) Reject(adminID int64, reason string) (*AccessRequest, error) {
	if !r.IsPending() {
		return nil, domain.ErrAlreadyProcessed
	}
	now := time.Now()
	cp := *r
	cp.Status = RequestStatusRejected
	cp.ProcessedAt = &now
	cp.ProcessedBy = adminID
	if reason != "" {
		cp.Notes = reason
	}
	return &cp, nil
}
