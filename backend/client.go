package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
)

const (
	authPrefix = "/auth/v1"
	restPrefix = "/rest/v1"

	apiKeyHeader = "apikey"
)

// APIError is a non 2xx response. The auth service reports {code, error_code, msg}
// or the OAuth style {error, error_description}; the REST layer reports
// {code, message, details, hint}.
type APIError struct {
	Status           int    `json:"-"`
	ErrorCode        string `json:"error_code,omitempty"`
	Msg              string `json:"msg,omitempty"`
	Message          string `json:"message,omitempty"`
	ErrorName        string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Details          string `json:"details,omitempty"`
	Hint             string `json:"hint,omitempty"`
}

// Text returns the most specific message the backend gave.
func (e *APIError) Text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.ErrorName} {
		if s != "" {
			return s
		}
	}
	return http.StatusText(e.Status)
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.ErrorCode, e.Text())
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Text())
}

type Option func(*options)

type options struct {
	timeout   time.Duration
	transport http.RoundTripper
}

// WithTimeout bounds every request made by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: 30 * time.Second, transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// apiKeyTransport stamps the project key on every request.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(apiKeyHeader, t.key)
	return t.base.RoundTrip(req)
}

// requester performs JSON requests against one backend project.
type requester struct {
	baseURL    string
	httpClient *http.Client
}

type request struct {
	method  string
	path    string
	query   url.Values
	bearer  string
	headers map[string]string
	body    any
}

// do sends req and decodes a successful response into out when out is non nil.
func (r *requester) do(ctx context.Context, req request, out any) error {
	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	target := r.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return r.handleRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("invalid response from backend: %w", err)
	}
	return nil
}

// handleRequestError converts transport failures into ErrNetwork.
func (r *requester) handleRequestError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("request aborted: %w", ctxErr)
	}
	// Token source failures surface through the transport.
	if apperrors.Is(err, apperrors.ErrNotAuthenticated) {
		return fmt.Errorf("request not sent: %w", err)
	}
	return fmt.Errorf("%w: cannot connect to backend at %s: %v", apperrors.ErrNetwork, r.baseURL, err)
}

func handleErrorResponse(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
