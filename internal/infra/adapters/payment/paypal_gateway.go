// File: internal/infra/adapters/payment/paypal_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ideaforge-billing/internal/config"
	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PayPalGateway)(nil)

const (
	paypalSandboxAPI = "https://api-m.sandbox.paypal.com"
	paypalLiveAPI    = "https://api-m.paypal.com"
	paypalSandboxWeb = "https://www.sandbox.paypal.com"
	paypalLiveWeb    = "https://www.paypal.com"

	retryBaseDelay = 200 * time.Millisecond
	// tokens are refreshed this long before PayPal says they expire
	tokenSkew = time.Minute
)

// PayPalGateway implements adapter.PaymentGateway against the PayPal REST API
// (catalog products, billing plans and billing subscriptions).
type PayPalGateway struct {
	clientID     string
	clientSecret string
	apiBase      string
	webBase      string
	brandName    string
	readRetries  int
	client       *http.Client
	log          *zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalGateway builds a gateway for cfg.Mode. cfg.BaseURL overrides the
// API host, which tests use to point at an httptest server.
func NewPayPalGateway(cfg config.PayPalConfig, brandName string, logger *zerolog.Logger) (*PayPalGateway, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal client id and secret are required")
	}
	apiBase, webBase := paypalSandboxAPI, paypalSandboxWeb
	if cfg.Mode == "live" {
		apiBase, webBase = paypalLiveAPI, paypalLiveWeb
	}
	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid paypal base url: %w", err)
		}
		apiBase = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.ReadRetries
	if retries <= 0 {
		retries = 3
	}
	l := logger.With().Str("component", "paypal_gateway").Logger()
	return &PayPalGateway{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		apiBase:      apiBase,
		webBase:      webBase,
		brandName:    brandName,
		readRetries:  retries,
		client:       &http.Client{Timeout: timeout},
		log:          &l,
	}, nil
}

func (g *PayPalGateway) Name() string { return "paypal" }

// ---- wire types ----

type ppLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type ppMoney struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type ppBillingCycle struct {
	Frequency struct {
		IntervalUnit  string `json:"interval_unit"`
		IntervalCount int    `json:"interval_count"`
	} `json:"frequency"`
	TenureType    string `json:"tenure_type"`
	Sequence      int    `json:"sequence"`
	TotalCycles   int    `json:"total_cycles"`
	PricingScheme struct {
		FixedPrice ppMoney `json:"fixed_price"`
	} `json:"pricing_scheme"`
}

type ppError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

// ---- token ----

func (g *PayPalGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	started := time.Now()
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: token: %v", domain.ErrGateway, err)
		metrics.ObserveGatewayCall(g.Name(), "token", started, err)
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := decodeError("token", resp)
		metrics.ObserveGatewayCall(g.Name(), "token", started, err)
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.AccessToken == "" {
		err = fmt.Errorf("%w: token: malformed response", domain.ErrGateway)
		metrics.ObserveGatewayCall(g.Name(), "token", started, err)
		return "", err
	}
	metrics.ObserveGatewayCall(g.Name(), "token", started, nil)

	g.accessToken = out.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenSkew)
	return g.accessToken, nil
}

func (g *PayPalGateway) dropToken() {
	g.mu.Lock()
	g.accessToken = ""
	g.mu.Unlock()
}

// ---- transport ----

// do performs one API call. GETs are retried with exponential backoff on
// network errors, 429 and 5xx; other methods run once and carry a fresh
// PayPal-Request-Id. A 401 drops the cached token and replays once.
func (g *PayPalGateway) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveGatewayCall(g.Name(), op, started, err) }()

	var payload []byte
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}
	requestID := ""
	retries := 0
	if method == http.MethodGet {
		retries = g.readRetries - 1
	} else {
		requestID = uuid.NewString()
	}

	reauthed := false
	call := func() error {
		status, body, callErr := g.send(ctx, method, path, payload, requestID)
		if callErr == nil && status == http.StatusUnauthorized && !reauthed {
			reauthed = true
			g.dropToken()
			status, body, callErr = g.send(ctx, method, path, payload, requestID)
		}
		if callErr != nil {
			cerr := fmt.Errorf("%w: %s: %v", domain.ErrGateway, op, callErr)
			if ctx.Err() != nil {
				return backoff.Permanent(cerr)
			}
			return cerr
		}
		if status >= 200 && status < 300 {
			if out == nil || len(body) == 0 {
				return nil
			}
			if derr := json.Unmarshal(body, out); derr != nil {
				return backoff.Permanent(fmt.Errorf("%w: %s: decode: %v", domain.ErrGateway, op, derr))
			}
			return nil
		}
		gerr := gatewayError(op, status, body)
		if status != http.StatusTooManyRequests && status < 500 {
			return backoff.Permanent(gerr)
		}
		return gerr
	}
	notify := func(err error, wait time.Duration) {
		g.log.Warn().Err(err).Str("op", op).Dur("retry_in", wait).Msg("paypal call failed, retrying")
	}
	return backoff.RetryNotify(call, g.retryPolicy(ctx, retries), notify)
}

func (g *PayPalGateway) retryPolicy(ctx context.Context, retries int) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(retries, 0))), ctx)
}

func (g *PayPalGateway) send(ctx context.Context, method, path string, payload []byte, requestID string) (int, []byte, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return 0, nil, err
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.apiBase+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, b, nil
}

func gatewayError(op string, status int, body []byte) *domain.GatewayError {
	var pe ppError
	_ = json.Unmarshal(body, &pe)
	ge := &domain.GatewayError{Op: op, Status: status, Name: pe.Name, Message: pe.Message}
	if len(pe.Details) > 0 && pe.Details[0].Issue != "" {
		ge.Message = strings.TrimSpace(ge.Message + " (" + pe.Details[0].Issue + ")")
	}
	if ge.Message == "" {
		ge.Message = http.StatusText(status)
	}
	return ge
}

func decodeError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return gatewayError(op, resp.StatusCode, b)
}

// ---- catalog ----

func (g *PayPalGateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	in := map[string]any{
		"name":        name,
		"description": description,
		"type":        "SERVICE",
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, "create_product", http.MethodPost, "/v1/catalogs/products", in, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: create_product: empty id", domain.ErrGateway)
	}
	return out.ID, nil
}

func (g *PayPalGateway) CreatePlan(ctx context.Context, spec model.PlanSpec) (string, error) {
	count := spec.IntervalCount
	if count <= 0 {
		count = 1
	}
	currency := spec.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}
	cycle := ppBillingCycle{TenureType: "REGULAR", Sequence: 1, TotalCycles: 0}
	cycle.Frequency.IntervalUnit = string(spec.IntervalUnit)
	cycle.Frequency.IntervalCount = count
	cycle.PricingScheme.FixedPrice = ppMoney{Value: spec.Amount.StringFixed(2), CurrencyCode: currency}

	in := map[string]any{
		"product_id":     spec.ProductID,
		"name":           spec.Name,
		"description":    spec.Description,
		"status":         "ACTIVE",
		"billing_cycles": []ppBillingCycle{cycle},
		"payment_preferences": map[string]any{
			"auto_bill_outstanding":     true,
			"setup_fee_failure_action":  "CONTINUE",
			"payment_failure_threshold": 3,
		},
		"taxes": map[string]any{
			"percentage": model.InvoiceTaxRate,
			"inclusive":  false,
		},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, "create_plan", http.MethodPost, "/v1/billing/plans", in, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: create_plan: empty id", domain.ErrGateway)
	}
	return out.ID, nil
}

func (g *PayPalGateway) GetPlan(ctx context.Context, planID string) (*model.GatewayPlan, error) {
	var out struct {
		ID            string           `json:"id"`
		ProductID     string           `json:"product_id"`
		Status        string           `json:"status"`
		BillingCycles []ppBillingCycle `json:"billing_cycles"`
	}
	if err := g.do(ctx, "get_plan", http.MethodGet, "/v1/billing/plans/"+url.PathEscape(planID), nil, &out); err != nil {
		return nil, err
	}
	plan := &model.GatewayPlan{ID: out.ID, ProductID: out.ProductID, Status: out.Status}
	for _, c := range out.BillingCycles {
		price, err := decimal.NewFromString(c.PricingScheme.FixedPrice.Value)
		if err != nil {
			g.log.Warn().Str("plan_id", planID).Str("value", c.PricingScheme.FixedPrice.Value).Msg("unparseable plan price")
			continue
		}
		plan.BillingCycles = append(plan.BillingCycles, model.BillingCycle{
			IntervalUnit:  c.Frequency.IntervalUnit,
			IntervalCount: c.Frequency.IntervalCount,
			Price:         price,
			Currency:      c.PricingScheme.FixedPrice.CurrencyCode,
		})
	}
	return plan, nil
}

// ---- subscriptions ----

func (g *PayPalGateway) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (*model.CreatedSubscription, error) {
	in := map[string]any{
		"plan_id": req.PlanID,
		"application_context": map[string]any{
			"return_url":          req.ReturnURL,
			"cancel_url":          req.CancelURL,
			"brand_name":          g.brandName,
			"locale":              "en-US",
			"shipping_preference": "NO_SHIPPING",
			"user_action":         "SUBSCRIBE_NOW",
		},
	}
	if req.SubscriberEmail != "" && req.SubscriberName != "" {
		given, surname, _ := strings.Cut(strings.TrimSpace(req.SubscriberName), " ")
		in["subscriber"] = map[string]any{
			"name":          map[string]string{"given_name": given, "surname": strings.TrimSpace(surname)},
			"email_address": req.SubscriberEmail,
		}
	}
	var out struct {
		ID     string   `json:"id"`
		Status string   `json:"status"`
		Links  []ppLink `json:"links"`
	}
	if err := g.do(ctx, "create_subscription", http.MethodPost, "/v1/billing/subscriptions", in, &out); err != nil {
		return nil, err
	}
	sub := &model.GatewaySubscription{ID: out.ID, Status: out.Status, Links: toLinks(out.Links)}
	approval := sub.LinkHref("approve", "edit")
	if out.ID == "" || approval == "" {
		return nil, fmt.Errorf("%w: create_subscription: approval url not found", domain.ErrGateway)
	}
	return &model.CreatedSubscription{ID: out.ID, Status: out.Status, ApprovalURL: approval}, nil
}

func (g *PayPalGateway) GetSubscription(ctx context.Context, subscriptionID string) (*model.GatewaySubscription, error) {
	var out struct {
		ID     string   `json:"id"`
		Status string   `json:"status"`
		PlanID string   `json:"plan_id"`
		Links  []ppLink `json:"links"`
	}
	if err := g.do(ctx, "get_subscription", http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(subscriptionID), nil, &out); err != nil {
		return nil, err
	}
	return &model.GatewaySubscription{ID: out.ID, Status: out.Status, PlanID: out.PlanID, Links: toLinks(out.Links)}, nil
}

func (g *PayPalGateway) SuspendSubscription(ctx context.Context, subscriptionID, reason string) error {
	if reason == "" {
		reason = adapter.SuspendReason
	}
	path := "/v1/billing/subscriptions/" + url.PathEscape(subscriptionID) + "/suspend"
	err := g.do(ctx, "suspend", http.MethodPost, path, map[string]string{"reason": reason}, nil)
	if err == nil {
		return nil
	}
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		if domain.IsResourceNotFound(err) || (ge.Status == http.StatusUnprocessableEntity && strings.Contains(ge.Message, "SUBSCRIPTION_STATUS_INVALID")) {
			g.log.Info().Str("subscription_id", subscriptionID).Str("name", ge.Name).Msg("subscription already inactive, suspend skipped")
			return nil
		}
	}
	return err
}

func (g *PayPalGateway) ListTransactions(ctx context.Context, subscriptionID string, from, to time.Time) ([]model.ProviderTransaction, error) {
	q := url.Values{}
	q.Set("start_time", from.UTC().Format(time.RFC3339))
	q.Set("end_time", to.UTC().Format(time.RFC3339))
	path := "/v1/billing/subscriptions/" + url.PathEscape(subscriptionID) + "/transactions?" + q.Encode()

	var out struct {
		Transactions []struct {
			ID                  string  `json:"id"`
			Status              string  `json:"status"`
			Time                string  `json:"time"`
			Amount              ppMoney `json:"amount"`
			AmountWithBreakdown struct {
				GrossAmount ppMoney `json:"gross_amount"`
			} `json:"amount_with_breakdown"`
		} `json:"transactions"`
	}
	if err := g.do(ctx, "transactions", http.MethodGet, path, nil, &out); err != nil {
		if domain.IsResourceNotFound(err) {
			return []model.ProviderTransaction{}, nil
		}
		return nil, err
	}

	txs := make([]model.ProviderTransaction, 0, len(out.Transactions))
	for _, t := range out.Transactions {
		money := t.AmountWithBreakdown.GrossAmount
		if money.Value == "" {
			money = t.Amount
		}
		amount, err := decimal.NewFromString(money.Value)
		if err != nil {
			amount = decimal.Zero
		}
		at, _ := time.Parse(time.RFC3339, t.Time)
		currency := money.CurrencyCode
		if currency == "" {
			currency = model.DefaultCurrency
		}
		txs = append(txs, model.ProviderTransaction{
			ID:          t.ID,
			Time:        at.UTC(),
			Amount:      amount,
			Currency:    currency,
			Status:      model.TransactionStatus(t.Status),
			Description: "Subscription payment",
		})
	}
	return txs, nil
}

// ManageURL points at the subscriber's automatic payments page.
func (g *PayPalGateway) ManageURL(subscriptionID, returnURL string) string {
	return g.webBase + "/myaccount/autopay/connect/" + url.PathEscape(subscriptionID) + "?returnUrl=" + url.QueryEscape(returnURL)
}

func toLinks(in []ppLink) []model.Link {
	out := make([]model.Link, 0, len(in))
	for _, l := range in {
		out = append(out, model.Link{Rel: l.Rel, Href: l.Href, Method: l.Method})
	}
	return out
}
