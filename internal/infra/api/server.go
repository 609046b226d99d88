package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ideaforge-billing/internal/application"
	"ideaforge-billing/internal/config"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/infra/logging"
)

// Billing is the inbound surface the HTTP handlers drive.
type Billing interface {
	ResolvePlan(ctx context.Context, tier, planType string) application.Result[model.PlanRef]
	CreateSubscription(ctx context.Context, accountID, tier, planType string) application.Result[*model.Checkout]
	CaptureSubscription(ctx context.Context, accountID, subscriptionID string) application.Result[*model.Account]
	ChangePlanDirectly(ctx context.Context, accountID, tier, planType string) application.Result[*model.Account]
	DowngradeToFree(ctx context.Context, accountID string) application.Result[*model.Account]
	RemoveAccount(ctx context.Context, accountID string) application.Result[struct{}]
	UpdatePaymentMethod(ctx context.Context, accountID, returnURL string) application.Result[string]
	ListTransactions(ctx context.Context, accountID string, from, to time.Time) application.Result[[]model.ProviderTransaction]
	ConsumeQuota(ctx context.Context, accountID string, cost model.Cost) application.Result[*model.QuotaDecision]
	QuotaStatus(ctx context.Context, accountID string) application.Result[*model.QuotaStatus]
	ListInvoices(ctx context.Context, accountID string) application.Result[[]*model.Invoice]
	AnalyzeIdea(ctx context.Context, accountID, idea string) application.Result[*model.IdeaReport]
	ImproveIdea(ctx context.Context, accountID, plan, request string) application.Result[*model.Improvement]
}

var _ Billing = (*application.BillingFacade)(nil)

// transactionsLookback is the default window for the transactions listing.
const transactionsLookback = 365 * 24 * time.Hour

type Server struct {
	billing Billing
	auth    *AuthManager
	limiter RateLimiter
	baseURL string
	httpCfg config.HTTPConfig
	rates   config.RateLimitConfig
	log     *zerolog.Logger
}

// NewServer wires the public API. limiter may be nil.
func NewServer(cfg *config.Config, billing Billing, auth *AuthManager, limiter RateLimiter, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	s := &Server{
		billing: billing,
		auth:    auth,
		baseURL: cfg.App.BaseURL,
		httpCfg: cfg.HTTP,
		rates:   cfg.RateLimit,
		log:     &l,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = limiter
	}
	return s
}

// Routes builds the chi router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Metrics(), Timeout(s.httpCfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Browser redirects from the payment provider.
	r.Get("/billing/payment/return", s.handlePaymentReturn)
	r.Get("/billing/payment/cancel", s.handlePaymentCancel)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Authenticate(), RateLimit(s.limiter, "api", s.rates.API, s.log))

		r.Get("/plans/{tier}/{planType}", s.handleResolvePlan)

		r.Post("/subscriptions", s.handleCreateSubscription)
		r.Post("/subscriptions/{id}/capture", s.handleCapture)
		r.Put("/subscriptions/current", s.handleChangePlan)
		r.Delete("/subscriptions/current", s.handleDowngrade)
		r.Get("/subscriptions/current/payment-method", s.handlePaymentMethod)
		r.Get("/subscriptions/current/transactions", s.handleTransactions)

		r.Get("/quota", s.handleQuotaStatus)
		r.Post("/quota/consume", s.handleConsumeQuota)

		r.Get("/invoices", s.handleInvoices)
		r.Delete("/account", s.handleRemoveAccount)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(s.limiter, "analysis", s.rates.Analysis, s.log))
			r.Post("/ideas/analyze", s.handleAnalyze)
			r.Post("/ideas/improve", s.handleImprove)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// HTTPServer returns the listener-ready server for Routes.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.httpCfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.httpCfg.ReadTimeout,
		WriteTimeout:      s.httpCfg.WriteTimeout,
	}
}

func accountID(r *http.Request) string { return logging.AccountID(r.Context()) }

func (s *Server) handleResolvePlan(w http.ResponseWriter, r *http.Request) {
	res := s.billing.ResolvePlan(r.Context(), chi.URLParam(r, "tier"), chi.URLParam(r, "planType"))
	respond(w, http.StatusOK, res, func(p model.PlanRef) any { return p })
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeBody(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}
	res := s.billing.CreateSubscription(r.Context(), accountID(r), req.Tier, req.PlanType)
	respond(w, http.StatusCreated, res, func(c *model.Checkout) any {
		return checkoutResponse{SubscriptionID: c.SubscriptionID, ApprovalURL: c.ApprovalURL}
	})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithSubscriptionID(r.Context(), chi.URLParam(r, "id"))
	res := s.billing.CaptureSubscription(ctx, accountID(r), chi.URLParam(r, "id"))
	respond(w, http.StatusOK, res, func(a *model.Account) any { return toAccountResponse(a) })
}

func (s *Server) handleChangePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeBody(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}
	res := s.billing.ChangePlanDirectly(r.Context(), accountID(r), req.Tier, req.PlanType)
	respond(w, http.StatusOK, res, func(a *model.Account) any { return toAccountResponse(a) })
}

func (s *Server) handleDowngrade(w http.ResponseWriter, r *http.Request) {
	res := s.billing.DowngradeToFree(r.Context(), accountID(r))
	respond(w, http.StatusOK, res, func(a *model.Account) any { return toAccountResponse(a) })
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	res := s.billing.RemoveAccount(r.Context(), accountID(r))
	if !res.OK() {
		writeFailure(w, res.Failure)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	res := s.billing.UpdatePaymentMethod(r.Context(), accountID(r), r.URL.Query().Get("return_url"))
	respond(w, http.StatusOK, res, func(u string) any { return map[string]string{"url": u} })
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.Add(-transactionsLookback)
	q := r.URL.Query()
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", name+" must be RFC3339")
			return
		}
		*dst = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "from must be before to")
		return
	}
	res := s.billing.ListTransactions(r.Context(), accountID(r), from, to)
	respond(w, http.StatusOK, res, func(txs []model.ProviderTransaction) any { return toTransactionResponses(txs) })
}

func (s *Server) handleQuotaStatus(w http.ResponseWriter, r *http.Request) {
	res := s.billing.QuotaStatus(r.Context(), accountID(r))
	respond(w, http.StatusOK, res, func(st *model.QuotaStatus) any { return fromStatus(st) })
}

func (s *Server) handleConsumeQuota(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}
	cost := model.CostAnalysis
	if req.Cost != nil {
		cost = model.Cost(*req.Cost)
	}
	res := s.billing.ConsumeQuota(r.Context(), accountID(r), cost)
	respond(w, http.StatusOK, res, func(d *model.QuotaDecision) any { return fromDecision(d) })
}

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	res := s.billing.ListInvoices(r.Context(), accountID(r))
	respond(w, http.StatusOK, res, func(list []*model.Invoice) any { return toInvoiceResponses(list) })
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}
	res := s.billing.AnalyzeIdea(r.Context(), accountID(r), req.Idea)
	respond(w, http.StatusOK, res, func(rep *model.IdeaReport) any { return rep })
}

func (s *Server) handleImprove(w http.ResponseWriter, r *http.Request) {
	var req improveRequest
	if !decodeBody(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}
	res := s.billing.ImproveIdea(r.Context(), accountID(r), req.Plan, req.Request)
	respond(w, http.StatusOK, res, func(imp *model.Improvement) any { return imp })
}

// handlePaymentReturn captures the approved subscription for the session
// account and sends the browser to the dashboard or the error page.
func (s *Server) handlePaymentReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subID := q.Get("subscription_id")
	if subID == "" {
		subID = q.Get("token")
	}
	if subID == "" {
		s.redirectError(w, r, "Missing subscription ID")
		return
	}
	claims, err := s.auth.ParseFromRequest(r)
	if err != nil {
		s.redirectError(w, r, "Please sign in to activate your subscription")
		return
	}
	ctx := logging.WithAccountID(r.Context(), claims.Subject)
	ctx = logging.WithSubscriptionID(ctx, subID)

	res := s.billing.CaptureSubscription(ctx, claims.Subject, subID)
	if !res.OK() {
		s.redirectError(w, r, res.Failure.Message)
		return
	}
	http.Redirect(w, r, s.baseURL+"/dashboard?payment=success", http.StatusSeeOther)
}

func (s *Server) handlePaymentCancel(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.baseURL+"/pricing?payment=cancelled", http.StatusSeeOther)
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, msg string) {
	if msg == "" {
		msg = "Subscription activation failed"
	}
	http.Redirect(w, r, s.baseURL+"/billing/payment/error?error="+url.QueryEscape(msg), http.StatusSeeOther)
}
