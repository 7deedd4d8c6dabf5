// Package booking calls the external home-visit booking endpoint.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// ErrRejected means the endpoint refused the booking (4xx). Repeating the
// same request will not help.
var ErrRejected = errors.New("booking: rejected")

var tracer = otel.Tracer("labbit.internal.booking")

// Request is the booking endpoint's body.
type Request struct {
	PatientName string `json:"patientName"`
	Phone       string `json:"phone"`
	PackageName string `json:"packageName"`
	Area        string `json:"area"`
	Date        string `json:"date"`
	Timeslot    string `json:"timeslot"`
	Persons     int    `json:"persons"`
	WhatsApp    bool   `json:"whatsapp"`
	Agree       bool   `json:"agree"`

	// IdempotencyKey is sent as a header so retried calls book once.
	IdempotencyKey string `json:"-"`
}

// Response is whatever the endpoint answered; only the raw body is relied on.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

type Config struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

type Client struct {
	url        string
	httpClient *http.Client
	logger     *logging.Logger
}

func New(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("booking: url required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{url: url, httpClient: httpClient, logger: logger}, nil
}

// CreateBooking posts req. Transport failures and 5xx answers are returned
// as plain errors; 4xx answers wrap ErrRejected.
func (c *Client) CreateBooking(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "booking.create", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("booking.area", req.Area))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("booking: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("booking: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("booking: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("booking: read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Info("booking created", "phone", req.Phone, "status", resp.StatusCode)
		out := &Response{StatusCode: resp.StatusCode}
		if json.Valid(data) {
			out.Body = data
		}
		return out, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout:
		span.SetStatus(codes.Error, "rejected")
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, snippet(data))
	default:
		span.SetStatus(codes.Error, "upstream")
		return nil, fmt.Errorf("booking: upstream status %d: %s", resp.StatusCode, snippet(data))
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
