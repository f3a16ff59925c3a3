package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Webhook is a Tool that POSTs its input as JSON to URL and returns the decoded JSON
// response (or the raw body when it is not JSON).
type Webhook struct {
	ToolName string
	URL      string
	Headers  map[string]string
	Client   *http.Client // nil = instrumented default client
}

var defaultWebhookClient = &http.Client{
	Timeout:   30 * time.Second,
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

func (w Webhook) Name() string {
	if w.ToolName == "" {
		return "webhook"
	}
	return w.ToolName
}

func (w Webhook) Invoke(ctx context.Context, input any) (any, error) {
	if w.URL == "" {
		return nil, fmt.Errorf("webhook %s: URL not set", w.Name())
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, InvalidToolInput(w.Name(), input, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	client := w.Client
	if client == nil {
		client = defaultWebhookClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook %s returned %d", w.Name(), resp.StatusCode)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw), nil
	}
	return out, nil
}
