package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/rs/zerolog"
)

const httpBodyLimit = 64 * 1024

// httpObserver reads the raw body of an endpoint or a field of its JSON body.
type httpObserver struct {
	base
	cfg    manifest.HTTPObserver
	client *retryablehttp.Client
}

func newHTTPObserver(b base, cfg manifest.HTTPObserver, timeout time.Duration, logger zerolog.Logger) *httpObserver {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timeout}
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug().Str("url", req.URL.String()).Int("attempt", attempt).Msg("retrying maintenance endpoint")
		}
	}
	return &httpObserver{base: b, cfg: cfg, client: client}
}

func (o *httpObserver) Observe(ctx context.Context) (Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, o.cfg.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := o.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("get %s: %w", o.cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("get %s: unexpected status %s", o.cfg.URL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, httpBodyLimit))
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}
	if o.cfg.JSONField == "" {
		return o.result(string(body)), nil
	}

	value, err := jsonField(body, o.cfg.JSONField)
	if err != nil {
		return Result{}, err
	}
	return o.result(value), nil
}

func (o *httpObserver) Close() error {
	o.client.HTTPClient.CloseIdleConnections()
	return nil
}

// jsonField resolves a dotted path in a JSON document and renders the value
// as a string. A missing field resolves to the empty string.
func jsonField(body []byte, path string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode json body: %w", err)
	}
	current := doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", nil
		}
		current, ok = obj[key]
		if !ok {
			return "", nil
		}
	}
	switch v := current.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool, float64:
		return fmt.Sprint(v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}
