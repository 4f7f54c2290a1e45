// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memAccountRepo is a small in-memory implementation used by unit tests.
type memAccountRepo struct {
	mu      sync.RWMutex
	store   map[int64]*model.Account // map by TelegramID
	saveErr error                    // used by tests to simulate save failures
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{store: make(map[int64]*model.Account)}
}

func (m *memAccountRepo) Save(ctx context.Context, a *model.Account) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.store[a.TelegramID] = &cp
	return nil
}

func (m *memAccountRepo) FindByTelegramID(ctx context.Context, tgID int64) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[tgID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.store {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *memAccountRepo) CountAccounts(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

// memSubRepo holds subscriptions keyed by ID and enforces payment_ref
// uniqueness the way the store does.
type memSubRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Subscription
	seq   int
	order map[string]int // insertion order, tie-break for "latest created"
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{store: make(map[string]*model.Subscription), order: make(map[string]int)}
}

func (m *memSubRepo) Save(ctx context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[sub.ID]; !exists {
		for _, other := range m.store {
			if other.PaymentRef == sub.PaymentRef {
				return domain.ErrDuplicateReference
			}
		}
		m.seq++
		m.order[sub.ID] = m.seq
	}
	cp := *sub
	m.store[sub.ID] = &cp
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubRepo) FindActiveByAccount(ctx context.Context, accountID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var best *model.Subscription
	for _, s := range m.store {
		if s.AccountID != accountID || s.Status != model.SubscriptionStatusActive || !s.EndDate.After(now) {
			continue
		}
		if best == nil || s.EndDate.After(best.EndDate) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memSubRepo) FindLatestByAccount(ctx context.Context, accountID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.Subscription
	for _, s := range m.store {
		if s.AccountID != accountID {
			continue
		}
		if best == nil || m.order[s.ID] > m.order[best.ID] {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memSubRepo) ListExpiringWithin(ctx context.Context, window time.Duration) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && s.EndDate.After(now) && !s.EndDate.After(now.Add(window)) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubRepo) ListOverdue(ctx context.Context) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && !s.EndDate.After(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubRepo) ExpirePastDue(ctx context.Context, accountID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var healed []*model.Subscription
	for _, s := range m.store {
		if s.AccountID == accountID && s.Status == model.SubscriptionStatusActive && !s.EndDate.After(now) {
			s.Status = model.SubscriptionStatusExpired
			cp := *s
			healed = append(healed, &cp)
		}
	}
	sort.Slice(healed, func(i, j int) bool { return healed[i].EndDate.After(healed[j].EndDate) })
	return healed, nil
}

func (m *memSubRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range m.store {
		out[s.Status]++
	}
	return out, nil
}

// memTxRepo holds transactions keyed by ID with checkout id uniqueness.
type memTxRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Transaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{store: make(map[string]*model.Transaction)}
}

func (m *memTxRepo) Save(ctx context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[t.ID]; !exists {
		for _, other := range m.store {
			if other.CheckoutRequestID == t.CheckoutRequestID {
				return domain.ErrDuplicateReference
			}
		}
	}
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *memTxRepo) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.CheckoutRequestID == checkoutRequestID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *memTxRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range m.store {
		if t.AccountID == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTxRepo) ListPendingCreatedBetween(ctx context.Context, from, to time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range m.store {
		if t.Status == model.TransactionStatusPending && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTxRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range m.store {
		if t.Status == model.TransactionStatusPending && t.CreatedAt.Before(cutoff) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memRequestRepo enforces the at-most-one-pending-per-identity rule the way
// the partial unique index does.
type memRequestRepo struct {
	mu    sync.RWMutex
	store map[string]*model.AccessRequest
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{store: make(map[string]*model.AccessRequest)}
}

func (m *memRequestRepo) Save(ctx context.Context, r *model.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[r.ID]; !exists && r.Status == model.RequestStatusPending {
		for _, other := range m.store {
			if other.TelegramID == r.TelegramID && other.Status == model.RequestStatusPending {
				return domain.ErrDuplicateReference
			}
		}
	}
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *memRequestRepo) FindByID(ctx context.Context, id string) (*model.AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRequestRepo) FindPendingByTelegramID(ctx context.Context, tgID int64) (*model.AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.store {
		if r.TelegramID == tgID && r.Status == model.RequestStatusPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRequestRepo) ListPending(ctx context.Context) ([]*model.AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.AccessRequest
	for _, r := range m.store {
		if r.Status == model.RequestStatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memJobRepo stores group jobs in memory.
type memJobRepo struct {
	mu    sync.RWMutex
	store map[string]*model.GroupJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.GroupJob)}
}

func (m *memJobRepo) Save(ctx context.Context, j *model.GroupJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.store[j.ID] = &cp
	return nil
}

func (m *memJobRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.GroupJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.GroupJob
	for _, j := range m.store {
		if j.DoneAt == nil && !j.DueAt.After(now) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) MarkDone(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.store[id]; ok && j.DoneAt == nil {
		now := time.Now()
		j.DoneAt = &now
	}
	return nil
}

func (m *memJobRepo) pending() []*model.GroupJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.GroupJob
	for _, j := range m.store {
		if j.DoneAt == nil {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out
}

// mockGroup implements adapter.GroupAdapter with overridable behavior.
type mockGroup struct {
	IsMemberFunc   func(ctx context.Context, tgID int64) (bool, error)
	InviteLinkFunc func(ctx context.Context, ttl time.Duration) (string, error)
	BanFunc        func(ctx context.Context, tgID int64, until time.Time) error
	UnbanFunc      func(ctx context.Context, tgID int64) error
	AdminFunc      func(ctx context.Context) (bool, error)

	mu       sync.Mutex
	banned   []int64
	unbanned []int64
}

func (m *mockGroup) IsMember(ctx context.Context, tgID int64) (bool, error) {
	if m.IsMemberFunc != nil {
		return m.IsMemberFunc(ctx, tgID)
	}
	return false, nil
}

func (m *mockGroup) CreateInviteLink(ctx context.Context, ttl time.Duration) (string, error) {
	if m.InviteLinkFunc != nil {
		return m.InviteLinkFunc(ctx, ttl)
	}
	return "https://t.me/+invite", nil
}

func (m *mockGroup) BanMember(ctx context.Context, tgID int64, until time.Time) error {
	if m.BanFunc != nil {
		return m.BanFunc(ctx, tgID, until)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned = append(m.banned, tgID)
	return nil
}

func (m *mockGroup) UnbanMember(ctx context.Context, tgID int64) error {
	if m.UnbanFunc != nil {
		return m.UnbanFunc(ctx, tgID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbanned = append(m.unbanned, tgID)
	return nil
}

func (m *mockGroup) BotIsAdmin(ctx context.Context) (bool, error) {
	if m.AdminFunc != nil {
		return m.AdminFunc(ctx)
	}
	return true, nil
}

// mockBot records outbound messages.
type mockBot struct {
	mu       sync.Mutex
	messages []string
	sendErr  error
}

func (m *mockBot) SendMessage(ctx context.Context, tgID int64, text string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return nil
}

func (m *mockBot) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, tgID, text)
}

func (m *mockBot) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}

// mockGateway implements adapter.PaymentGateway with overridable behavior.
type mockGateway struct {
	InitiateFunc func(ctx context.Context, phone string, amount float64, accountRef, description string) (adapter.InitiationResult, error)
	VerifyFunc   func(ctx context.Context, checkoutRequestID string) (adapter.VerificationResult, error)
	StatusFunc   func(ctx context.Context, checkoutRequestID string, maxAttempts int) adapter.VerificationResult
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) InitiatePayment(ctx context.Context, phone string, amount float64, accountRef, description string) (adapter.InitiationResult, error) {
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, phone, amount, accountRef, description)
	}
	return adapter.InitiationResult{
		Success:           true,
		MerchantRequestID: "mr-1",
		CheckoutRequestID: "ws_CO_1",
		Message:           "ok",
	}, nil
}

func (m *mockGateway) VerifyTransaction(ctx context.Context, checkoutRequestID string) (adapter.VerificationResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, checkoutRequestID)
	}
	return adapter.VerificationResult{Success: false, State: adapter.TransactionStatePending}, nil
}

func (m *mockGateway) GetTransactionStatus(ctx context.Context, checkoutRequestID string, maxAttempts int) adapter.VerificationResult {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, checkoutRequestID, maxAttempts)
	}
	return adapter.VerificationResult{Success: false, State: adapter.TransactionStatePending}
}
