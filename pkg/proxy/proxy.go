package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/blaxing/gateway/core/types"
	"github.com/mudler/xlog"
)

var (
	// ErrUnauthorized is returned when neither a per-call key nor a
	// process-wide key is available. No network call is attempted.
	ErrUnauthorized = errors.New("missing remote credential")

	// ErrConfigMissing is returned when no base URL can be resolved.
	ErrConfigMissing = errors.New("no remote base URL configured")

	// ErrUpstreamTimeout marks calls that hit the request deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrUpstreamUnavailable marks I/O-level failures below HTTP.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

const maxErrorBody = 400

// UpstreamError carries a non-2xx response back to the caller with a
// truncated copy of the body.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// CallOpts carries the per-request overrides taken from HTTP headers.
type CallOpts struct {
	Source  types.Source
	APIKey  string
	BaseURL string
}

// Result is the normalized outcome of a successful upstream call.
type Result struct {
	StatusCode int
	Body       map[string]any
	Raw        []byte
}

// Adapter forwards logical (method, path, body) calls to the external
// agent-manager API, resolving credentials and base URLs per call.
type Adapter struct {
	ProdURL    string
	StagingURL string
	DefaultURL string
	APIKey     string
	HTTPClient *http.Client
}

func NewAdapter(prodURL, stagingURL, defaultURL, apiKey string, timeout time.Duration) *Adapter {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		ProdURL:    prodURL,
		StagingURL: stagingURL,
		DefaultURL: defaultURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ResolveKey applies the credential resolution order: explicit
// per-call key, then the process-wide key.
func (a *Adapter) ResolveKey(opts CallOpts) (string, error) {
	if opts.APIKey != "" {
		return opts.APIKey, nil
	}
	if a.APIKey != "" {
		return a.APIKey, nil
	}
	return "", ErrUnauthorized
}

// ResolveBaseURL applies the base-URL resolution order: explicit
// override, source-tagged default, then the process default.
func (a *Adapter) ResolveBaseURL(opts CallOpts) (string, error) {
	if opts.BaseURL != "" {
		return opts.BaseURL, nil
	}
	switch opts.Source {
	case types.SourceProd:
		if a.ProdURL != "" {
			return a.ProdURL, nil
		}
	case types.SourceStaging:
		if a.StagingURL != "" {
			return a.StagingURL, nil
		}
	}
	if a.DefaultURL != "" {
		return a.DefaultURL, nil
	}
	return "", ErrConfigMissing
}

// Do performs an authenticated call against the resolved base URL and
// normalizes the outcome. Transport failures never surface raw: they
// come back as ErrUpstreamTimeout or ErrUpstreamUnavailable, and
// non-2xx responses as *UpstreamError.
func (a *Adapter) Do(ctx context.Context, method, path string, body any, opts CallOpts) (*Result, error) {
	key, err := a.ResolveKey(opts)
	if err != nil {
		return nil, err
	}
	baseURL, err := a.ResolveBaseURL(opts)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		xlog.Warn("Remote proxy call failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	result := &Result{StatusCode: resp.StatusCode, Raw: raw}
	if len(raw) > 0 {
		// Tolerate non-object payloads; callers fall back to Raw.
		_ = json.Unmarshal(raw, &result.Body)
	}
	return result, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
