package api

import (
	"encoding/json"
	"net/http"
	"time"

	"ideaforge-billing/internal/application"
	"ideaforge-billing/internal/domain/model"
)

type planRequest struct {
	Tier     string `json:"tier"`
	PlanType string `json:"planType"`
}

type consumeRequest struct {
	Cost *float64 `json:"cost"`
}

type analyzeRequest struct {
	Idea string `json:"idea"`
}

type improveRequest struct {
	Plan    string `json:"plan"`
	Request string `json:"request"`
}

type errorResponse struct {
	Error           string `json:"error"`
	Message         string `json:"message"`
	UpgradeRequired bool   `json:"upgradeRequired,omitempty"`
	ResetAt         string `json:"resetAt,omitempty"`
}

type checkoutResponse struct {
	SubscriptionID string `json:"subscriptionId"`
	ApprovalURL    string `json:"approvalUrl"`
}

type accountResponse struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Tier           string  `json:"tier"`
	PlanType       string  `json:"planType,omitempty"`
	SubscriptionID string  `json:"subscriptionId,omitempty"`
	State          string  `json:"state"`
	UsageCount     float64 `json:"usageCount"`
	UsageResetAt   string  `json:"usageResetAt,omitempty"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Email:          a.Email,
		Tier:           string(a.Tier),
		PlanType:       string(a.Plan),
		SubscriptionID: a.ProviderSubscriptionID,
		State:          string(a.State()),
		UsageCount:     a.UsageCount,
		UsageResetAt:   formatTime(a.UsageResetAt),
	}
}

type invoiceResponse struct {
	ID             string `json:"id"`
	Number         string `json:"number"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Tier           string `json:"tier"`
	PlanType       string `json:"planType,omitempty"`
	PreviousTier   string `json:"previousTier,omitempty"`
	PreviousPlan   string `json:"previousPlanType,omitempty"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	IssuedAt       string `json:"issuedAt"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	TransactionID  string `json:"transactionId,omitempty"`
	TaxRate        string `json:"taxRate"`
}

func toInvoiceResponses(list []*model.Invoice) []invoiceResponse {
	out := make([]invoiceResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, invoiceResponse{
			ID:             inv.ID,
			Number:         inv.Number,
			Amount:         inv.Amount.StringFixed(2),
			Currency:       inv.Currency,
			Tier:           string(inv.Tier),
			PlanType:       string(inv.Plan),
			PreviousTier:   string(inv.PreviousTier),
			PreviousPlan:   string(inv.PreviousPlan),
			Description:    inv.Description,
			Status:         string(inv.Status),
			IssuedAt:       formatTime(inv.IssuedAt),
			SubscriptionID: inv.ProviderSubscriptionID,
			TransactionID:  inv.ProviderTransactionID,
			TaxRate:        inv.TaxRate,
		})
	}
	return out
}

type transactionResponse struct {
	ID          string `json:"id"`
	Time        string `json:"time"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

func toTransactionResponses(list []model.ProviderTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(list))
	for _, tx := range list {
		out = append(out, transactionResponse{
			ID:          tx.ID,
			Time:        formatTime(tx.Time),
			Amount:      tx.Amount.StringFixed(2),
			Currency:    tx.Currency,
			Status:      string(tx.Status),
			Description: tx.Description,
		})
	}
	return out
}

type quotaResponse struct {
	Allowed   *bool   `json:"allowed,omitempty"`
	Tier      string  `json:"tier,omitempty"`
	Used      float64 `json:"used"`
	Limit     float64 `json:"limit"`
	Remaining float64 `json:"remaining"`
	Unlimited bool    `json:"unlimited"`
	ResetAt   string  `json:"resetAt,omitempty"`
	Message   string  `json:"message,omitempty"`
}

func fromDecision(d *model.QuotaDecision) quotaResponse {
	allowed := d.Allowed
	return quotaResponse{
		Allowed:   &allowed,
		Used:      d.Used,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		Unlimited: d.Unlimited,
		ResetAt:   formatTime(d.ResetAt),
		Message:   d.Message,
	}
}

func fromStatus(s *model.QuotaStatus) quotaResponse {
	return quotaResponse{
		Tier:      string(s.Tier),
		Used:      s.Used,
		Limit:     s.Limit,
		Remaining: s.Remaining,
		Unlimited: s.Unlimited,
		ResetAt:   formatTime(s.ResetAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

// StatusFor maps a failure kind onto an HTTP status.
func StatusFor(kind application.FailureKind) int {
	switch kind {
	case application.FailureUnauthorized:
		return http.StatusUnauthorized
	case application.FailureNotFound:
		return http.StatusNotFound
	case application.FailureQuotaExceeded:
		return http.StatusPaymentRequired
	case application.FailureConflict:
		return http.StatusConflict
	case application.FailureInvalidArgument:
		return http.StatusBadRequest
	case application.FailureGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, f *application.Failure) {
	writeJSON(w, StatusFor(f.Kind), errorResponse{
		Error:           string(f.Kind),
		Message:         f.Message,
		UpgradeRequired: f.UpgradeRequired,
		ResetAt:         formatTime(f.ResetAt),
	})
}

// respond writes res.Value through render, or the failure.
func respond[T any](w http.ResponseWriter, status int, res application.Result[T], render func(T) any) {
	if !res.OK() {
		writeFailure(w, res.Failure)
		return
	}
	writeJSON(w, status, render(res.Value))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst) == nil
}
