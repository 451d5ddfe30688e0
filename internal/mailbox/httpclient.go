package mailbox

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/registrar/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 4 << 20

// apiClient is the shared JSON-over-HTTP plumbing for providers.
type apiClient struct {
	hc      *http.Client
	limiter *rate.Limiter
}

// newAPIClient builds the client from cfg; nil selects the network defaults.
func newAPIClient(cfg *network.ClientConfig, rps float64) *apiClient {
	if rps <= 0 {
		rps = 1
	}
	return &apiClient{
		hc:      network.NewClient(cfg),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// StatusError reports an unexpected HTTP status from a provider.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrServiceUnavailable }

// do sends a request and decodes a JSON response into out when out is non-nil.
// Any status outside want (default 2xx) is a *StatusError.
func (c *apiClient) do(ctx context.Context, method, url string, body interface{}, headers map[string]string, out interface{}, want ...int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", "gzip, br")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ErrServiceUnavailable, method, url, err)
	}
	defer resp.Body.Close()

	if !statusWanted(resp.StatusCode, want) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &StatusError{Method: method, URL: url, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}

	decoded, err := decodeBody(resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer decoded.Close()

	data, err := io.ReadAll(io.LimitReader(decoded, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrServiceUnavailable, url, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrServiceUnavailable, url, err)
	}
	return nil
}

func statusWanted(code int, want []int) bool {
	if len(want) == 0 {
		return code >= 200 && code < 300
	}
	for _, w := range want {
		if code == w {
			return true
		}
	}
	return false
}

// decodeBody unwraps gzip or brotli content encodings. Setting Accept-Encoding
// by hand turns off the transport's transparent gzip handling.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		return zr, nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}
