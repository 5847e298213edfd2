// Package quota enforces tenant usage quotas read from the usage ledger: requests per
// UTC day and tokens per UTC calendar month.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Quota reasons.
const (
	ReasonDailyRequests = "quota:daily_requests"
	ReasonMonthlyTokens = "quota:monthly_tokens"
)

// Ledger is the read side of the usage ledger.
type Ledger interface {
	CountRequestsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	SumTokensSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
	GetUsageLimit(ctx context.Context, tenantID string) (*models.UsageLimit, error)
}

// Status is a tenant's consumption against its limits. Reason is set when a limit is reached.
type Status struct {
	RequestsToday     int    `json:"requests_today"`
	TokensMonth       int64  `json:"tokens_month"`
	DailyRequestLimit int    `json:"daily_request_limit"`
	MonthlyTokenLimit int64  `json:"monthly_token_limit"`
	Reason            string `json:"reason,omitempty"`
}

// Exceeded reports whether a limit is reached.
func (s Status) Exceeded() bool {
	return s.Reason != ""
}

// Checker evaluates quotas. Tenants without an explicit limit get the configured defaults.
type Checker struct {
	ledger       Ledger
	dailyDefault int
	monthDefault int64
	now          func() time.Time
}

// NewChecker creates a checker.
func NewChecker(ledger Ledger, cfg config.LimitsConfig) *Checker {
	return &Checker{
		ledger:       ledger,
		dailyDefault: cfg.DefaultDailyRequests,
		monthDefault: cfg.DefaultMonthlyTokens,
		now:          time.Now,
	}
}

// Check returns the tenant's quota status. The daily request limit is checked before the
// monthly token limit.
func (c *Checker) Check(ctx context.Context, tenantID string) (Status, error) {
	st := Status{DailyRequestLimit: c.dailyDefault, MonthlyTokenLimit: c.monthDefault}
	limit, err := c.ledger.GetUsageLimit(ctx, tenantID)
	if err != nil {
		return st, fmt.Errorf("load usage limit: %w", err)
	}
	if limit != nil {
		st.DailyRequestLimit = limit.DailyRequestLimit
		st.MonthlyTokenLimit = limit.MonthlyTokenLimit
	}

	now := c.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	if st.RequestsToday, err = c.ledger.CountRequestsSince(ctx, tenantID, dayStart); err != nil {
		return st, fmt.Errorf("count requests: %w", err)
	}
	if st.TokensMonth, err = c.ledger.SumTokensSince(ctx, tenantID, monthStart); err != nil {
		return st, fmt.Errorf("sum tokens: %w", err)
	}

	switch {
	case st.RequestsToday >= st.DailyRequestLimit:
		st.Reason = ReasonDailyRequests
	case st.TokensMonth >= st.MonthlyTokenLimit:
		st.Reason = ReasonMonthlyTokens
	}
	return st, nil
}
