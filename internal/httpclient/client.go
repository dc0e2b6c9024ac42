package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

// Client is a traced HTTP client shared by the outbound integrations.
// Deadlines come from the request context.
type Client struct {
	tracer     trace.Tracer
	httpClient *http.Client
}

// NewClient creates a traced client
func NewClient(tracer trace.Tracer) *Client {
	return &Client{
		tracer: tracer,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
			},
		},
	}
}

// Request describes one outbound call
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    io.Reader
	JSON    interface{} // marshalled as the body when set
	SpanTag string
}

// Do sends req and decodes a JSON response into out when out is non-nil
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return err
	}

	spanName := req.SpanTag
	if spanName == "" {
		spanName = "call-" + parsed.Hostname()
	}
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body := req.Body
	if req.JSON != nil {
		raw, err := json.Marshal(req.JSON)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if req.JSON != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	span.SetAttributes(
		attribute.String("http.url", parsed.Scheme+"://"+parsed.Host+parsed.Path),
		attribute.String("http.method", req.Method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{URL: req.URL, StatusCode: resp.StatusCode, Body: string(raw)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
