package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rendis/conduit/pkg/schema"
)

// InvokePath is the invocation endpoint relative to the server base URL.
const InvokePath = "/v1/invoke"

const maxResponseBytes = 4 << 20

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// HTTPTransport posts invocations as JSON to a remote server.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport returns a transport for the server at baseURL.
// The default client gives up after 10s, well past the dispatcher deadline.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Invoke sends req. Any response carrying an invocation body is returned,
// whatever its status code.
func (t *HTTPTransport) Invoke(ctx context.Context, req schema.InvocationRequest) (*schema.InvocationResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+InvokePath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out schema.InvocationResponse
	if err := json.Unmarshal(body, &out); err != nil || (!out.Success && out.Error == nil) {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Invoker is the in-process dispatcher.
type Invoker interface {
	Dispatch(ctx context.Context, req schema.InvocationRequest) *schema.InvocationOutcome
}

// LocalTransport calls a dispatcher in the same process.
type LocalTransport struct {
	invoker Invoker
}

func NewLocalTransport(invoker Invoker) *LocalTransport {
	return &LocalTransport{invoker: invoker}
}

func (t *LocalTransport) Invoke(ctx context.Context, req schema.InvocationRequest) (*schema.InvocationResponse, error) {
	return t.invoker.Dispatch(ctx, req).ToResponse(), nil
}
