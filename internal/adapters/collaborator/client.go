// Package collaborator talks to the service that owns the status log: it
// lists records, creates new ones and fetches the daily log report.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/status"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

const (
	statusLogsPath  = "/api/status-logs/"
	dailyReportPath = "/api/daily-logs/generate_report/"

	// Submitted times are wall-clock times in the session location; the
	// collaborator stores them without a zone.
	submitTimeLayout = "2006-01-02T15:04:05"

	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 4 << 10
	maxResponseBody = 16 << 20
	tracerName      = "github.com/okian/eldlog/collaborator"
)

// Source is what the service needs from a status-log owner.
type Source interface {
	ListStatusLogs(ctx context.Context) ([]model.RawRecord, error)
	CreateStatusLog(ctx context.Context, sub model.Submission) (string, error)
	DailyReport(ctx context.Context) (model.DailyReport, error)
}

// Client is the HTTP implementation of Source.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	session *model.Session
	logger  logger.Logger
	tracer  trace.Tracer
}

// New creates a client for the collaborator at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		base:    u,
		timeout: defaultTimeout,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.session == nil {
		c.session = model.NewSession("", time.Local)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("collaborator")
	}
	return c, nil
}

// BaseURL returns the collaborator root.
func (c *Client) BaseURL() string { return c.base.String() }

type createRequest struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Trip   string `json:"trip,omitempty"`
}

type errorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type page struct {
	Results []model.RawRecord `json:"results"`
}

// ListStatusLogs fetches the status log. Both a bare array and a paginated
// {"results": [...]} body are accepted.
func (c *Client) ListStatusLogs(ctx context.Context) ([]model.RawRecord, error) {
	body, err := c.do(ctx, "list", http.MethodGet, statusLogsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRemoteFetchFailure, err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p page
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("%w: %w: %w", model.ErrRemoteFetchFailure, ErrDecode, err)
		}
		return p.Results, nil
	}

	var records []model.RawRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", model.ErrRemoteFetchFailure, ErrDecode, err)
	}
	return records, nil
}

// CreateStatusLog submits one status change and returns the created
// record's id. A collaborator refusal wraps ErrRejected with its message.
func (c *Client) CreateStatusLog(ctx context.Context, sub model.Submission) (string, error) {
	payload, err := json.Marshal(createRequest{
		Status: status.ToWire(sub.Status),
		Time:   sub.Time.In(c.session.Location()).Format(submitTimeLayout),
		Trip:   sub.TripID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrRemoteSubmitFailure, err)
	}

	body, err := c.do(ctx, "create", http.MethodPost, statusLogsPath, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrRemoteSubmitFailure, err)
	}

	var created model.RawRecord
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &created); err != nil {
			c.logger.Warn(ctx, "created record not decodable; confirming without id",
				logger.String("operation", sub.OperationID), logger.Error(err))
		}
	}
	return created.ID.String(), nil
}

// DailyReport fetches today's daily log summary.
func (c *Client) DailyReport(ctx context.Context) (model.DailyReport, error) {
	var report model.DailyReport
	body, err := c.do(ctx, "report", http.MethodGet, dailyReportPath, nil)
	if err != nil {
		return report, fmt.Errorf("%w: %w", model.ErrRemoteFetchFailure, err)
	}
	if err := json.Unmarshal(body, &report); err != nil {
		return report, fmt.Errorf("%w: %w: %w", model.ErrRemoteFetchFailure, ErrDecode, err)
	}
	return report, nil
}

func (c *Client) do(ctx context.Context, call, method, path string, payload []byte) ([]byte, error) {
	target := c.base.JoinPath(path)
	// JoinPath drops the trailing slash the collaborator routes require.
	endpoint := strings.TrimRight(target.String(), "/") + "/"

	ctx, span := c.tracer.Start(ctx, "collaborator."+call,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.RecordCollaboratorCall(call, outcome, float64(time.Since(start).Milliseconds()))
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		metrics.RecordErrorByComponent("collaborator", "transport")
		return nil, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := responseError(resp.StatusCode, raw)
		span.RecordError(err)
		span.SetStatus(codes.Error, strconv.Itoa(resp.StatusCode))
		metrics.RecordErrorByComponent("collaborator", "status_"+strconv.Itoa(resp.StatusCode))
		if resp.StatusCode < 500 {
			outcome = "rejected"
		}
		c.logger.Debug(ctx, "collaborator refused request",
			logger.String("call", call),
			logger.Int("status", resp.StatusCode),
			logger.Error(err),
		)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	outcome = "ok"
	return body, nil
}

// responseError turns a non-2xx response into an error. The collaborator
// reports business refusals as {"error": "..."}; other bodies are quoted.
func responseError(code int, raw []byte) error {
	var p errorPayload
	if json.Unmarshal(raw, &p) == nil {
		switch {
		case p.Error != "":
			return fmt.Errorf("%w (%d): %s", ErrRejected, code, p.Error)
		case p.Detail != "":
			return fmt.Errorf("%w (%d): %s", ErrRejected, code, p.Detail)
		}
	}
	if code >= 400 && code < 500 {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(code)
		}
		return fmt.Errorf("%w (%d): %s", ErrRejected, code, msg)
	}
	return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, code, http.StatusText(code))
}
