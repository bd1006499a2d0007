package aiservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the slice of *genai.Models the delegate needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiDelegate serves the Delegate contract with a Gemini model.
type GeminiDelegate struct {
	models contentGenerator
	model  string
}

// NewGeminiDelegate creates a genai client. An empty apiKey lets the SDK read
// GOOGLE_API_KEY / GEMINI_API_KEY from the environment.
func NewGeminiDelegate(ctx context.Context, apiKey, model string) (*GeminiDelegate, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiDelegate: create genai client: %w", err)
	}
	return newGeminiDelegate(client.Models, model), nil
}

func newGeminiDelegate(models contentGenerator, model string) *GeminiDelegate {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiDelegate{models: models, model: model}
}

func (g *GeminiDelegate) Insights(ctx context.Context, req InsightsRequest) (*InsightsReply, error) {
	raw, err := g.generate(ctx, buildInsightsPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("Insights: %w", err)
	}

	var reply InsightsReply
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &reply); err != nil {
		return nil, fmt.Errorf("Insights: unmarshal JSON: %w", err)
	}
	if len(reply.Recommendations) == 0 && len(reply.CashflowTips) == 0 {
		return nil, fmt.Errorf("Insights: %w", ErrEmptyReply)
	}
	return &reply, nil
}

func (g *GeminiDelegate) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	raw, err := g.generate(ctx, buildChatPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("Chat: %w", err)
	}

	clean := cleanModelJSON(raw)
	var reply ChatReply
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		// The model answered in prose; use it as is.
		reply = ChatReply{Response: clean}
	}
	if strings.TrimSpace(reply.Response) == "" {
		return nil, fmt.Errorf("Chat: %w", ErrEmptyReply)
	}
	return &reply, nil
}

func (g *GeminiDelegate) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func buildInsightsPrompt(req InsightsRequest) string {
	r := req.Insights
	var b strings.Builder

	b.WriteString("You are a financial advisor for small businesses.\n\n")
	b.WriteString("Financial data for the current month:\n")
	fmt.Fprintf(&b, "- Total Income: %s\n", r.CurrentMonthIncome.StringFixed(2))
	fmt.Fprintf(&b, "- Total Expenses: %s\n", r.CurrentMonthExpenses.StringFixed(2))
	fmt.Fprintf(&b, "- Net Cash Flow: %s\n", r.CurrentMonthIncome.Sub(r.CurrentMonthExpenses).StringFixed(2))
	fmt.Fprintf(&b, "- 3-month average income: %s\n", r.AverageIncome.StringFixed(2))
	fmt.Fprintf(&b, "- 3-month average expenses: %s\n", r.AverageExpenses.StringFixed(2))
	fmt.Fprintf(&b, "- Daily burn rate: %s, days of cash remaining: %d\n", r.DailyBurnRate.StringFixed(2), r.DaysRemaining)
	fmt.Fprintf(&b, "- Profit margin: %.2f%%, health score: %d/100\n", r.ProfitMargin, r.HealthScore)
	fmt.Fprintf(&b, "- Upcoming recurring bills: %d\n", len(r.UpcomingBills))

	if bi := req.BusinessInfo; bi != nil {
		fmt.Fprintf(&b, "\nBusiness: %s (%s, %s)\n", bi.BusinessName, bi.BusinessType, bi.Industry)
	}
	if ui := req.UserInfo; ui != nil && ui.Currency != "" {
		fmt.Fprintf(&b, "Currency symbol: %s\n", ui.Currency)
	}

	b.WriteString("\nReturn ONLY raw JSON, no Markdown, shaped exactly as:\n")
	b.WriteString(`{"recommendations": ["..."], "cashflowTips": ["..."]}` + "\n")
	b.WriteString("Give 3 to 5 specific, actionable recommendations and 2 to 3 cash flow tips.\n")
	return b.String()
}

func buildChatPrompt(req ChatRequest) string {
	var b strings.Builder

	b.WriteString("You are a friendly AI financial assistant for a small business owner.\n\n")
	u := req.UserData
	fmt.Fprintf(&b, "User: %s\nCurrent balance: %s%s\n", u.Name, u.Currency, u.CurrentBalance.StringFixed(2))
	if u.BusinessName != "" {
		fmt.Fprintf(&b, "Business: %s (%s)\n", u.BusinessName, u.BusinessType)
	}

	if len(req.RecentTransactions) > 0 {
		b.WriteString("\nRecent transactions:\n")
		for _, t := range req.RecentTransactions {
			fmt.Fprintf(&b, "- %s %s %s%s %s (%s)\n", t.Date, t.Type, u.Currency, t.Amount.StringFixed(2), t.Description, t.Category)
		}
	}
	if len(req.ConversationHistory) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range req.ConversationHistory {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	fmt.Fprintf(&b, "\nUser message: %s\n\n", req.UserMessage)
	b.WriteString("Return ONLY raw JSON, no Markdown, shaped exactly as:\n")
	b.WriteString(`{"response": "...", "suggestions": ["...", "...", "..."]}` + "\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object or array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	open := strings.IndexAny(s, "{[")
	if open == -1 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > open {
		s = s[open : end+1]
	}
	return strings.TrimSpace(s)
}

var _ Delegate = (*GeminiDelegate)(nil)
