package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory provider for local runs and tests.
// New subscriptions are approved immediately: the approval URL loops straight
// back to the return URL with the subscription id attached.
type NoopPaymentGateway struct {
	mu    sync.Mutex
	seq   int64
	plans map[string]model.PlanSpec
	subs  map[string]*noopSub
	now   func() time.Time
}

type noopSub struct {
	planID    string
	status    string
	createdAt time.Time
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		plans: make(map[string]model.PlanSpec),
		subs:  make(map[string]*noopSub),
		now:   time.Now,
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-%d", prefix, g.seq)
}

func notFound(op string) error {
	return &domain.GatewayError{Op: op, Status: 404, Name: "RESOURCE_NOT_FOUND", Message: "resource does not exist"}
}

func (g *NoopPaymentGateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next("PROD"), nil
}

func (g *NoopPaymentGateway) CreatePlan(ctx context.Context, spec model.PlanSpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("P")
	g.plans[id] = spec
	return id, nil
}

func (g *NoopPaymentGateway) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (*model.CreatedSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.plans[req.PlanID]; !ok {
		return nil, notFound("create_subscription")
	}
	id := g.next("I-NOOP")
	g.subs[id] = &noopSub{planID: req.PlanID, status: model.ProviderStatusActive, createdAt: g.now().UTC()}

	approval := req.ReturnURL
	sep := "?"
	if strings.Contains(approval, "?") {
		sep = "&"
	}
	approval += sep + "subscription_id=" + url.QueryEscape(id)
	return &model.CreatedSubscription{ID: id, Status: model.ProviderStatusApprovalPending, ApprovalURL: approval}, nil
}

func (g *NoopPaymentGateway) GetSubscription(ctx context.Context, subscriptionID string) (*model.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.subs[subscriptionID]
	if !ok {
		return nil, notFound("get_subscription")
	}
	return &model.GatewaySubscription{ID: subscriptionID, Status: s.status, PlanID: s.planID}, nil
}

func (g *NoopPaymentGateway) GetPlan(ctx context.Context, planID string) (*model.GatewayPlan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	spec, ok := g.plans[planID]
	if !ok {
		return nil, notFound("get_plan")
	}
	return &model.GatewayPlan{
		ID:        planID,
		ProductID: spec.ProductID,
		Status:    "ACTIVE",
		BillingCycles: []model.BillingCycle{{
			IntervalUnit:  string(spec.IntervalUnit),
			IntervalCount: spec.IntervalCount,
			Price:         spec.Amount,
			Currency:      spec.Currency,
		}},
	}, nil
}

func (g *NoopPaymentGateway) SuspendSubscription(ctx context.Context, subscriptionID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.subs[subscriptionID]; ok {
		s.status = model.ProviderStatusSuspended
	}
	return nil
}

// ListTransactions reports a single completed charge at subscription creation.
func (g *NoopPaymentGateway) ListTransactions(ctx context.Context, subscriptionID string, from, to time.Time) ([]model.ProviderTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.subs[subscriptionID]
	if !ok {
		return []model.ProviderTransaction{}, nil
	}
	if s.createdAt.Before(from) || s.createdAt.After(to) {
		return []model.ProviderTransaction{}, nil
	}
	spec := g.plans[s.planID]
	return []model.ProviderTransaction{{
		ID:          "TX-" + subscriptionID,
		Time:        s.createdAt,
		Amount:      spec.Amount,
		Currency:    spec.Currency,
		Status:      model.InvoiceStatusPaid,
		Description: "Subscription payment",
	}}, nil
}

func (g *NoopPaymentGateway) ManageURL(subscriptionID, returnURL string) string {
	return returnURL
}
