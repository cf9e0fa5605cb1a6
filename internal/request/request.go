// Package request is a thin HTTP call wrapper that feeds entity stores.
//
// A Request pairs a method, a URL template and the status code that counts as
// success. Calls fill ":param" segments of the template, send an optional JSON
// body and decode the JSON response into R. Loader turns list and delete
// endpoints into Update and Delete calls on a store.
package request

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

	"github.com/google/uuid"
)

// ErrMissingParam is returned when a ":param" segment has no value.
var ErrMissingParam = errors.New("missing url parameter")

// CorrelationHeader carries the per-call correlation id.
const CorrelationHeader = "X-Correlation-Id"

// StatusError reports a response whose status differs from the success code.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   []byte

	// Reason is the "code" field of a JSON error body, when present.
	Reason string
	// Message is the "message" field of a JSON error body, or the raw body.
	Message string
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: status %d", e.Method, e.URL, e.Code)
	if e.Reason != "" {
		fmt.Fprintf(&b, " code=%s", e.Reason)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Params are the per-call inputs.
type Params struct {
	// URL fills ":name" segments of the template.
	URL map[string]string
	// Body is encoded as JSON. It is ignored for GET requests.
	Body any
	// Headers are added after the request's static headers.
	Headers map[string]string
}

// Request is a reusable description of one endpoint.
type Request[R any] struct {
	method   string
	template string
	success  int
	cfg      config
}

// New returns a Request for method and urlTemplate that treats successCode as
// the only successful status.
func New[R any](method, urlTemplate string, successCode int, opts ...Option) *Request[R] {
	return &Request[R]{
		method:   strings.ToUpper(method),
		template: urlTemplate,
		success:  successCode,
		cfg:      newConfig(opts),
	}
}

// Method returns the HTTP method.
func (r *Request[R]) Method() string {
	return r.method
}

// Template returns the unexpanded URL template.
func (r *Request[R]) Template() string {
	return r.template
}

// URL expands the template with params and prefixes the base URL.
func (r *Request[R]) URL(params map[string]string) (string, error) {
	path, err := Expand(r.template, params)
	if err != nil {
		return "", err
	}
	if r.cfg.baseURL == "" {
		return path, nil
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.cfg.baseURL + path, nil
}

// Call performs the request and decodes the response body into R. An empty
// successful body yields the zero R.
func (r *Request[R]) Call(ctx context.Context, p Params) (R, error) {
	var out R

	target, err := r.URL(p.URL)
	if err != nil {
		return out, err
	}

	var body []byte
	if r.method != http.MethodGet && p.Body != nil {
		body, err = json.Marshal(p.Body)
		if err != nil {
			return out, fmt.Errorf("encode %s %s body: %w", r.method, target, err)
		}
	}

	correlationID := newCorrelationID()
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, r.method, target, bytes.NewReader(body))
		if err != nil {
			return out, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set(CorrelationHeader, correlationID)
		for k, v := range r.cfg.headers {
			req.Header.Set(k, v)
		}
		for k, v := range p.Headers {
			req.Header.Set(k, v)
		}

		resp, err := r.cfg.client.Do(req)
		if err != nil {
			if attempt < r.cfg.maxRetries {
				r.cfg.logger.Debug("request failed, retrying",
					"method", r.method, "url", target, "attempt", attempt+1, "error", err)
				if waitErr := sleepContext(ctx, r.cfg.retryDelay(attempt+1, "")); waitErr != nil {
					return out, waitErr
				}
				continue
			}
			return out, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return out, readErr
		}

		if resp.StatusCode == r.success {
			if len(bytes.TrimSpace(respBody)) == 0 {
				return out, nil
			}
			if err := json.Unmarshal(respBody, &out); err != nil {
				return out, fmt.Errorf("decode %s %s response: %w", r.method, target, err)
			}
			return out, nil
		}

		if retryable(resp.StatusCode) && attempt < r.cfg.maxRetries {
			r.cfg.logger.Debug("request rejected, retrying",
				"method", r.method, "url", target, "status", resp.StatusCode, "attempt", attempt+1)
			if waitErr := sleepContext(ctx, r.cfg.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return out, waitErr
			}
			continue
		}

		return out, newStatusError(r.method, target, resp.StatusCode, respBody)
	}
}

// Expand substitutes ":name" path segments in template. Values are path
// escaped. A query string, if any, is left untouched.
func Expand(template string, params map[string]string) (string, error) {
	path, query, hasQuery := strings.Cut(template, "?")
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		name, ok := strings.CutPrefix(seg, ":")
		if !ok || name == "" {
			continue
		}
		v, ok := params[name]
		if !ok || v == "" {
			return "", fmt.Errorf("%w: %s in %q", ErrMissingParam, name, template)
		}
		segments[i] = url.PathEscape(v)
	}
	out := strings.Join(segments, "/")
	if hasQuery {
		out += "?" + query
	}
	return out, nil
}

func newStatusError(method, target string, code int, body []byte) *StatusError {
	e := &StatusError{
		Method:  method,
		URL:     target,
		Code:    code,
		Body:    body,
		Message: strings.TrimSpace(string(body)),
	}
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		if c, ok := parsed["code"].(string); ok {
			e.Reason = c
		}
		if m, ok := parsed["message"].(string); ok && strings.TrimSpace(m) != "" {
			e.Message = m
		}
	}
	return e
}

func newCorrelationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func (c config) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		return min(retryAfter, c.maxDelay)
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return min(delay, c.maxDelay)
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
