package aiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	insightsPath = "/ai/insights"
	chatPath     = "/ai/chat"

	// maxReplyBytes bounds how much of a reply body is read.
	maxReplyBytes = 1 << 20
)

// HTTPDelegate calls a remote AI service over JSON/HTTP.
type HTTPDelegate struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDelegate builds a delegate rooted at baseURL. A nil client means
// http.DefaultClient; deadlines come from the caller's context.
func NewHTTPDelegate(baseURL string, client *http.Client) *HTTPDelegate {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDelegate{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (d *HTTPDelegate) Insights(ctx context.Context, req InsightsRequest) (*InsightsReply, error) {
	var reply InsightsReply
	if err := d.post(ctx, insightsPath, req, &reply); err != nil {
		return nil, fmt.Errorf("Insights: %w", err)
	}
	if reply.Recommendations == nil && reply.CashflowTips == nil {
		return nil, fmt.Errorf("Insights: %w", ErrEmptyReply)
	}
	return &reply, nil
}

func (d *HTTPDelegate) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	var reply ChatReply
	if err := d.post(ctx, chatPath, req, &reply); err != nil {
		return nil, fmt.Errorf("Chat: %w", err)
	}
	if strings.TrimSpace(reply.Response) == "" {
		return nil, fmt.Errorf("Chat: %w", ErrEmptyReply)
	}
	return &reply, nil
}

func (d *HTTPDelegate) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("reading %s reply: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("calling %s: unexpected status %d", path, resp.StatusCode)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyReply
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s reply: %w", path, err)
	}
	return nil
}

var _ Delegate = (*HTTPDelegate)(nil)
