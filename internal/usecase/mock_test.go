//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

// fixedClock returns a settable clock for use cases under test.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// captureLogger records log lines so tests can assert on warnings.
type captureLogger struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *captureLogger) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *captureLogger) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *captureLogger) Logger() *zerolog.Logger {
	l := zerolog.New(c)
	return &l
}

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// =============================
// Repositories
// =============================

// ---- Mock AccountRepo ----

type MockAccountRepo struct {
	mu    sync.Mutex
	store map[string]model.Account

	SaveFunc   func(ctx context.Context, tx repository.Tx, a *model.Account) error
	SaveCalls  int
	FindCalls  int
	CreateFunc func(ctx context.Context, tx repository.Tx, a *model.Account) error
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo() *MockAccountRepo {
	return &MockAccountRepo{store: make(map[string]model.Account)}
}

func (m *MockAccountRepo) seed(a *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[a.ID] = *a
}

func (m *MockAccountRepo) get(id string) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id]
}

func (m *MockAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCalls++
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (m *MockAccountRepo) Create(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.store[a.ID] = *a
	return nil
}

func (m *MockAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	m.mu.Lock()
	m.SaveCalls++
	fn := m.SaveFunc
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, tx, a); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != a.Version {
		return domain.ErrConflict
	}
	a.Version++
	m.store[a.ID] = *a
	return nil
}

func (m *MockAccountRepo) ListPaid(ctx context.Context, tx repository.Tx, afterID string, limit int) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, a := range m.store {
		if a.Tier.Paid() && a.ProviderSubscriptionID != "" && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*model.Account, 0, len(ids))
	for _, id := range ids {
		cp := m.store[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockAccountRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

// ---- Mock InvoiceRepo ----

type MockInvoiceRepo struct {
	mu    sync.Mutex
	items []model.Invoice

	// CreateFunc runs before the in-memory insert; returning an error aborts it.
	CreateFunc  func(ctx context.Context, tx repository.Tx, inv *model.Invoice) error
	CreateCalls int
}

var _ repository.InvoiceRepository = (*MockInvoiceRepo)(nil)

func NewMockInvoiceRepo() *MockInvoiceRepo { return &MockInvoiceRepo{} }

func (m *MockInvoiceRepo) all() []model.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Invoice(nil), m.items...)
}

func (m *MockInvoiceRepo) Create(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	m.mu.Lock()
	m.CreateCalls++
	fn := m.CreateFunc
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, tx, inv); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Number == inv.Number {
			return domain.ErrAlreadyExists
		}
	}
	m.items = append(m.items, *inv)
	return nil
}

func (m *MockInvoiceRepo) CountByNumberPrefix(ctx context.Context, tx repository.Tx, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if strings.HasPrefix(it.Number, prefix+"-") {
			n++
		}
	}
	return n, nil
}

func (m *MockInvoiceRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ProviderSubscriptionID == subscriptionID {
			cp := it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockInvoiceRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string) ([]*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Invoice
	for _, it := range m.items {
		if it.AccountID == accountID {
			cp := it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockInvoiceRepo) DeleteByAccount(ctx context.Context, tx repository.Tx, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	var n int64
	for _, it := range m.items {
		if it.AccountID == accountID {
			n++
			continue
		}
		kept = append(kept, it)
	}
	m.items = kept
	return n, nil
}

// ---- Mock TxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx runs fn immediately without a real transaction unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return fn(ctx, nil)
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu sync.Mutex

	CreateProductFunc      func(ctx context.Context, name, description string) (string, error)
	CreatePlanFunc         func(ctx context.Context, spec model.PlanSpec) (string, error)
	CreateSubscriptionFunc func(ctx context.Context, req model.SubscriptionRequest) (*model.CreatedSubscription, error)
	GetSubscriptionFunc    func(ctx context.Context, id string) (*model.GatewaySubscription, error)
	GetPlanFunc            func(ctx context.Context, id string) (*model.GatewayPlan, error)
	SuspendFunc            func(ctx context.Context, id, reason string) error
	ListTransactionsFunc   func(ctx context.Context, id string, from, to time.Time) ([]model.ProviderTransaction, error)

	Calls struct {
		CreateProduct      int
		CreatePlan         []model.PlanSpec
		CreateSubscription []model.SubscriptionRequest
		GetSubscription    []string
		GetPlan            []string
		Suspend            []string
		ListTransactions   []string
	}
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	m.mu.Lock()
	m.Calls.CreateProduct++
	n := m.Calls.CreateProduct
	m.mu.Unlock()
	if m.CreateProductFunc != nil {
		return m.CreateProductFunc(ctx, name, description)
	}
	return fmt.Sprintf("PROD-%d", n), nil
}

func (m *MockGateway) CreatePlan(ctx context.Context, spec model.PlanSpec) (string, error) {
	m.mu.Lock()
	m.Calls.CreatePlan = append(m.Calls.CreatePlan, spec)
	n := len(m.Calls.CreatePlan)
	m.mu.Unlock()
	if m.CreatePlanFunc != nil {
		return m.CreatePlanFunc(ctx, spec)
	}
	return fmt.Sprintf("P-%d", n), nil
}

func (m *MockGateway) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (*model.CreatedSubscription, error) {
	m.mu.Lock()
	m.Calls.CreateSubscription = append(m.Calls.CreateSubscription, req)
	n := len(m.Calls.CreateSubscription)
	m.mu.Unlock()
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, req)
	}
	id := fmt.Sprintf("I-SUB%d", n)
	return &model.CreatedSubscription{
		ID:          id,
		Status:      model.ProviderStatusApprovalPending,
		ApprovalURL: "https://paypal.test/approve/" + id,
	}, nil
}

func (m *MockGateway) GetSubscription(ctx context.Context, id string) (*model.GatewaySubscription, error) {
	m.mu.Lock()
	m.Calls.GetSubscription = append(m.Calls.GetSubscription, id)
	m.mu.Unlock()
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, id)
	}
	return &model.GatewaySubscription{ID: id, Status: model.ProviderStatusActive}, nil
}

func (m *MockGateway) GetPlan(ctx context.Context, id string) (*model.GatewayPlan, error) {
	m.mu.Lock()
	m.Calls.GetPlan = append(m.Calls.GetPlan, id)
	m.mu.Unlock()
	if m.GetPlanFunc != nil {
		return m.GetPlanFunc(ctx, id)
	}
	return nil, &domain.GatewayError{Op: "get plan", Status: 404, Name: "RESOURCE_NOT_FOUND"}
}

func (m *MockGateway) SuspendSubscription(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	m.Calls.Suspend = append(m.Calls.Suspend, id)
	m.mu.Unlock()
	if m.SuspendFunc != nil {
		return m.SuspendFunc(ctx, id, reason)
	}
	return nil
}

func (m *MockGateway) ListTransactions(ctx context.Context, id string, from, to time.Time) ([]model.ProviderTransaction, error) {
	m.mu.Lock()
	m.Calls.ListTransactions = append(m.Calls.ListTransactions, id)
	m.mu.Unlock()
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, id, from, to)
	}
	return nil, nil
}

func (m *MockGateway) ManageURL(subscriptionID, returnURL string) string {
	return "https://paypal.test/myaccount/autopay/connect/" + subscriptionID + "?returnUrl=" + returnURL
}

// ---- Mock CacheStore ----

// MockCache keeps JSON copies so tests observe the same semantics as Redis.
type MockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration

	// Down makes every call behave like an unreachable cache.
	Down bool
}

var _ adapter.CacheStore = (*MockCache)(nil)

func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *MockCache) Get(ctx context.Context, key string, dst any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return false
	}
	b, ok := m.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

func (m *MockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.data[key] = b
	m.ttls[key] = ttl
}

func (m *MockCache) Delete(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.ttls, key)
}

func (m *MockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *MockCache) ttl(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// ---- Mock Locker ----

type MockLocker struct {
	mu      sync.Mutex
	held    map[string]string
	seq     int
	Locks   int
	Unlocks int

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker { return &MockLocker{held: make(map[string]string)} }

// TryLock spins until the key is free, like the real lockers do with retries.
func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	for {
		m.mu.Lock()
		if _, busy := m.held[key]; !busy {
			m.seq++
			token := fmt.Sprintf("tok-%d", m.seq)
			m.held[key] = token
			m.Locks++
			m.mu.Unlock()
			return token, nil
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
		m.Unlocks++
	}
	return nil
}

// ---- Mock IdeaAnalyzer ----

type MockAnalyzer struct {
	AnalyzeFunc func(ctx context.Context, idea string) (*model.IdeaReport, error)
	ImproveFunc func(ctx context.Context, plan, request string) (*model.Improvement, error)
	Calls       int
}

var _ adapter.IdeaAnalyzer = (*MockAnalyzer)(nil)

func (m *MockAnalyzer) Name() string { return "mock" }

func (m *MockAnalyzer) Analyze(ctx context.Context, idea string) (*model.IdeaReport, error) {
	m.Calls++
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, idea)
	}
	return &model.IdeaReport{Score: 7, Verdict: "promising", Summary: idea}, nil
}

func (m *MockAnalyzer) Improve(ctx context.Context, plan, request string) (*model.Improvement, error) {
	m.Calls++
	if m.ImproveFunc != nil {
		return m.ImproveFunc(ctx, plan, request)
	}
	return &model.Improvement{Suggestions: "narrow the audience"}, nil
}

// ---- Mock TokenCounter ----

// wordCounter approximates tokens by whitespace-separated words.
type wordCounter struct{ err error }

func (w wordCounter) Count(text string) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	return len(strings.Fields(text)), nil
}

// =============================
// Fixtures
// =============================

func freeAccount(id string) *model.Account {
	return &model.Account{
		ID:           id,
		Email:        id + "@example.com",
		Name:         "Test " + id,
		Tier:         model.TierFree,
		UsageResetAt: t0.Add(model.FreeWindow),
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
}

func paidAccount(id string, tier model.Tier, plan model.PlanType, subID string) *model.Account {
	a := freeAccount(id)
	_ = a.ApplyPlan(tier, plan, subID, t0)
	return a
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }
