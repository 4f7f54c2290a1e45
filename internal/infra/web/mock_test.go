package web

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

// In-memory repositories, just enough behavior for routing tests.

type memAccountRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{byID: make(map[string]*model.Account)}
}

func (m *memAccountRepo) Save(ctx context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAccountRepo) FindByTelegramID(ctx context.Context, tgID int64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.TelegramID == tgID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *memAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *memAccountRepo) CountAccounts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

type memTxRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Transaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{byID: make(map[string]*model.Transaction)}
}

func (m *memTxRepo) Save(ctx context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[t.ID]; !exists {
		for _, other := range m.byID {
			if other.CheckoutRequestID == t.CheckoutRequestID {
				return domain.ErrDuplicateReference
			}
		}
	}
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *memTxRepo) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byID {
		if t.CheckoutRequestID == checkoutRequestID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *memTxRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.byID {
		if t.AccountID == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTxRepo) ListPendingCreatedBetween(ctx context.Context, from, to time.Time, limit int) ([]*model.Transaction, error) {
	return nil, nil
}

func (m *memTxRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Transaction, error) {
	return nil, nil
}

type memSubRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Subscription
	seq  int
	ord  map[string]int
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{byID: make(map[string]*model.Subscription), ord: make(map[string]int)}
}

func (m *memSubRepo) Save(ctx context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[sub.ID]; !exists {
		for _, other := range m.byID {
			if other.PaymentRef == sub.PaymentRef {
				return domain.ErrDuplicateReference
			}
		}
		m.seq++
		m.ord[sub.ID] = m.seq
	}
	cp := *sub
	m.byID[sub.ID] = &cp
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) FindActiveByAccount(ctx context.Context, accountID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Subscription
	now := time.Now()
	for _, s := range m.byID {
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
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Subscription
	for _, s := range m.byID {
		if s.AccountID != accountID {
			continue
		}
		if best == nil || m.ord[s.ID] > m.ord[best.ID] {
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
	return nil, nil
}

func (m *memSubRepo) ListOverdue(ctx context.Context) ([]*model.Subscription, error) {
	return nil, nil
}

func (m *memSubRepo) ExpirePastDue(ctx context.Context, accountID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var healed []*model.Subscription
	now := time.Now()
	for _, s := range m.byID {
		if s.AccountID == accountID && s.Status == model.SubscriptionStatusActive && now.After(s.EndDate) {
			s.Status = model.SubscriptionStatusExpired
			cp := *s
			healed = append(healed, &cp)
		}
	}
	sort.Slice(healed, func(i, j int) bool { return healed[i].EndDate.After(healed[j].EndDate) })
	return healed, nil
}

func (m *memSubRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.SubscriptionStatus]int)
	for _, s := range m.byID {
		counts[s.Status]++
	}
	return counts, nil
}

type memRequestRepo struct {
	mu   sync.Mutex
	byID map[string]*model.AccessRequest
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{byID: make(map[string]*model.AccessRequest)}
}

func (m *memRequestRepo) Save(ctx context.Context, r *model.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[r.ID]; !exists && r.Status == model.RequestStatusPending {
		for _, other := range m.byID {
			if other.TelegramID == r.TelegramID && other.Status == model.RequestStatusPending {
				return domain.ErrDuplicateReference
			}
		}
	}
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memRequestRepo) FindByID(ctx context.Context, id string) (*model.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byID[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memRequestRepo) FindPendingByTelegramID(ctx context.Context, tgID int64) (*model.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.TelegramID == tgID && r.Status == model.RequestStatusPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRequestRepo) ListPending(ctx context.Context) ([]*model.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AccessRequest
	for _, r := range m.byID {
		if r.Status == model.RequestStatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs []*model.GroupJob
}

func (m *memJobRepo) Save(ctx context.Context, j *model.GroupJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs = append(m.jobs, &cp)
	return nil
}

func (m *memJobRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.GroupJob, error) {
	return nil, nil
}

func (m *memJobRepo) MarkDone(ctx context.Context, id string) error { return nil }

type mockBot struct {
	mu   sync.Mutex
	msgs []string
}

func (m *mockBot) SendMessage(ctx context.Context, tgID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, text)
	return nil
}

func (m *mockBot) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, tgID, text)
}

type mockGroup struct {
	mu       sync.Mutex
	banned   []int64
	unbanned []int64
}

func (m *mockGroup) IsMember(ctx context.Context, tgID int64) (bool, error) { return false, nil }

func (m *mockGroup) CreateInviteLink(ctx context.Context, ttl time.Duration) (string, error) {
	return "https://t.me/+invite", nil
}

func (m *mockGroup) BanMember(ctx context.Context, tgID int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned = append(m.banned, tgID)
	return nil
}

func (m *mockGroup) UnbanMember(ctx context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbanned = append(m.unbanned, tgID)
	return nil
}

func (m *mockGroup) BotIsAdmin(ctx context.Context) (bool, error) { return true, nil }
