package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "storefront/pkg/errors"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

// Request describes one call to the storefront backend. Path is relative to
// the configured base URL and must start with "/".
type Request struct {
	Op       string
	Method   string
	Path     string
	Query    url.Values
	Body     any
	Fallback string // message used when the error body has none
}

// RawEnvelope is the success envelope with data left undecoded.
type RawEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Envelope is the typed success envelope {data, message, status, options}.
type Envelope[T any] struct {
	Data    T
	Message string
	Status  string
	Options json.RawMessage
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
	Code    json.RawMessage `json:"code"`
	Errors  json.RawMessage `json:"errors"`
}

// BackendClient talks JSON to the storefront REST backend.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*RawEnvelope]
	logger     *zap.Logger
}

func NewBackendClient(baseURL string, timeout time.Duration, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &BackendClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*RawEnvelope](gobreaker.Settings{
		Name:        "storefront-backend",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("backend circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// Send performs the request and returns the decoded envelope without
// interpreting data. Non-2xx responses come back as typed errors from pkg/errors.
func (c *BackendClient) Send(ctx context.Context, r Request) (*RawEnvelope, error) {
	env, err := c.breaker.Execute(func() (*RawEnvelope, error) {
		return c.roundTrip(ctx, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("backend call short-circuited", zap.String("op", r.Op))
		return nil, &apperrors.ServerError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "Service temporarily unavailable. Please try again shortly.",
		}
	}
	return env, err
}

func (c *BackendClient) roundTrip(ctx context.Context, r Request) (*RawEnvelope, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", r.Op, ctxErr)
		}
		c.logger.Warn("backend request failed", zap.String("op", r.Op), zap.String("path", r.Path), zap.Error(err))
		return nil, &apperrors.NetworkError{Op: r.Op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperrors.NetworkError{Op: r.Op, Err: err}
	}

	c.logger.Debug("backend response",
		zap.String("op", r.Op),
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(r, resp, body)
	}
	return decodeRaw(r.Op, body)
}

func (c *BackendClient) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + r.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: build url: %w", r.Op, err)
	}
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", r.Op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func decodeRaw(op string, body []byte) (*RawEnvelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &RawEnvelope{}, nil
	}
	if trimmed[0] != '{' {
		return nil, &apperrors.DecodeError{Op: op, Err: errors.New("body is not a JSON object")}
	}
	var env RawEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &apperrors.DecodeError{Op: op, Err: err}
	}
	return &env, nil
}

// Decode unpacks the data of a raw envelope into T. A missing or null data
// member is an error.
func Decode[T any](op string, raw *RawEnvelope) (*Envelope[T], error) {
	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, &apperrors.DecodeError{Op: op, Err: errors.New("missing data")}
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &apperrors.DecodeError{Op: op, Err: err}
	}
	return &Envelope[T]{
		Data:    out,
		Message: raw.Message,
		Status:  raw.Status,
		Options: raw.Options,
	}, nil
}

// Call sends r and decodes the envelope data into T.
func Call[T any](ctx context.Context, b Backend, r Request) (*Envelope[T], error) {
	raw, err := b.Send(ctx, r)
	if err != nil {
		return nil, err
	}
	return Decode[T](r.Op, raw)
}

func errorFromResponse(r Request, resp *http.Response, body []byte) error {
	msg, code, fields := parseErrorBody(body)
	if msg == "" {
		msg = r.Fallback
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &apperrors.UnauthorizedError{Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &apperrors.RateLimitError{Message: msg, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &apperrors.ValidationError{StatusCode: resp.StatusCode, Code: code, Message: msg, Fields: fields}
	default:
		return &apperrors.ServerError{StatusCode: resp.StatusCode, Message: msg}
	}
}

// parseErrorBody reads {message, error, code}. error may be a string or an
// object carrying its own message and field errors.
func parseErrorBody(body []byte) (msg, code string, fields map[string]string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", "", nil
	}

	code = rawString(eb.Code)
	fields = stringMap(eb.Errors)
	if m := rawString(eb.Message); m != "" {
		if nested := nestedFields(eb.Error); nested != nil {
			fields = nested
		}
		return m, code, fields
	}
	if m := rawString(eb.Error); m != "" {
		return m, code, fields
	}

	var obj struct {
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	}
	if len(eb.Error) > 0 && json.Unmarshal(eb.Error, &obj) == nil {
		if obj.Fields != nil {
			fields = obj.Fields
		}
		return obj.Message, code, fields
	}
	return "", code, fields
}

func stringMap(raw json.RawMessage) map[string]string {
	var m map[string]string
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

func nestedFields(raw json.RawMessage) map[string]string {
	var obj struct {
		Fields map[string]string `json:"fields"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return nil
	}
	return obj.Fields
}

// rawString returns raw as a string when it is a JSON string. Arrays of
// strings (class-validator style) are joined.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return strings.Join(list, ", ")
	}
	return ""
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// countsAsSuccess keeps client-side rejections out of the breaker's failure count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var netErr *apperrors.NetworkError
	var srvErr *apperrors.ServerError
	return !errors.As(err, &netErr) && !errors.As(err, &srvErr)
}
