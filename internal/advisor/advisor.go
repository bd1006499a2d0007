// Package advisor combines the local insight engine with the optional AI
// delegate into the insights response.
package advisor

import (
	"context"

	"github.com/dvloznov/cashflow-tracker/internal/aiservice"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/insights"
	"github.com/rs/zerolog"
)

const (
	MessageAvailable   = "AI-powered recommendations generated from your financial data."
	MessageUnavailable = "AI insights are temporarily unavailable. Showing locally computed insights."
)

// AIInsights has the same keys whether or not the delegate answered.
type AIInsights struct {
	Available       bool     `json:"available"`
	Recommendations []string `json:"recommendations"`
	CashflowTips    []string `json:"cashflowTips"`
	Message         string   `json:"message"`
}

// Response is the body of the insights endpoint.
type Response struct {
	Insights   insights.Result `json:"insights"`
	AIInsights AIInsights      `json:"aiInsights"`
}

type Advisor struct {
	delegate aiservice.Delegate
	log      zerolog.Logger
}

func New(delegate aiservice.Delegate, log zerolog.Logger) *Advisor {
	if delegate == nil {
		delegate = aiservice.Disabled{}
	}
	return &Advisor{delegate: delegate, log: log}
}

// Insights asks the delegate to enrich result. It never fails; result is
// returned unchanged in every case.
func (a *Advisor) Insights(ctx context.Context, user *domain.User, result insights.Result) Response {
	req := aiservice.InsightsRequest{Insights: result}
	if user != nil {
		req.BusinessInfo = user.BusinessSetup
		req.UserInfo = &aiservice.UserInfo{Name: user.Name, Currency: user.CurrencySymbol()}
	}

	reply, err := a.delegate.Insights(ctx, req)
	if err != nil {
		ev := a.log.Warn().Err(err)
		if user != nil {
			ev = ev.Str("user_id", user.ID)
		}
		ev.Msg("AI insights unavailable, using local insights")
		return Response{Insights: result, AIInsights: unavailable()}
	}

	return Response{
		Insights: result,
		AIInsights: AIInsights{
			Available:       true,
			Recommendations: nonNil(reply.Recommendations),
			CashflowTips:    nonNil(reply.CashflowTips),
			Message:         MessageAvailable,
		},
	}
}

func unavailable() AIInsights {
	return AIInsights{
		Available:       false,
		Recommendations: []string{},
		CashflowTips:    []string{},
		Message:         MessageUnavailable,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
