package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/settings"
)

const (
	settingsPath      = "/settings"
	keysParam         = "keys"
	socketBaseURL     = "http://localhost"
	maxResponseBytes  = 32 << 20
	errorExcerptBytes = 512
	defaultAPITimeout = 30 * time.Second
)

// ErrAPIConfig is returned for an unusable APIConfig.
var ErrAPIConfig = errors.New("invalid settings api configuration")

// StatusError reports a non-2xx settings API response.
type StatusError struct {
	StatusCode int
	// Body is the start of the response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"settings api returned %d %s: %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Body,
	)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests
}

// APIConfig configures an APISettingsResolver.
type APIConfig struct {
	// BaseURL is the API root, e.g. "http://127.0.0.1:4242".
	// With Socket set it defaults to "http://localhost".
	BaseURL string
	// Socket, when set, is the unix socket the API listens
	// on.
	Socket string
	// Timeout bounds one request. Zero means 30s.
	Timeout time.Duration
}

// APISettingsResolver fetches settings from a settings
// daemon: GET <base>/settings?keys=a,b returning
// {"settings": {...}}.
type APISettingsResolver struct {
	endpoint *url.URL
	client   *http.Client
}

// NewAPISettingsResolver builds a resolver on a pooled
// go-cleanhttp client.
func NewAPISettingsResolver(cfg APIConfig) (*APISettingsResolver, error) {
	const errCtx = "building settings api resolver"

	base := cfg.BaseURL
	if base == "" && cfg.Socket != "" {
		base = socketBaseURL
	}

	if base == "" {
		return nil, fmt.Errorf("%s: %w: no base url", errCtx, ErrAPIConfig)
	}

	endpoint, err := url.Parse(strings.TrimSuffix(base, "/") + settingsPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", errCtx, ErrAPIConfig, err)
	}

	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf(
			"%s: %w: unsupported scheme %q", errCtx, ErrAPIConfig, endpoint.Scheme,
		)
	}

	transport := cleanhttp.DefaultPooledTransport()

	if cfg.Socket != "" {
		socket := cfg.Socket
		dialer := &net.Dialer{}

		transport.DialContext = func(
			ctx context.Context, _, _ string,
		) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socket)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultAPITimeout
	}

	return &APISettingsResolver{
		endpoint: endpoint,
		client:   &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// FetchSettings implements SettingsResolver. No request is
// made when reqs is empty.
func (r *APISettingsResolver) FetchSettings(
	ctx context.Context,
	reqs iter.Seq[extension.Requirement],
) (settings.Document, error) {
	const errCtx = "fetching settings from api"

	names := Names(reqs)
	if len(names) == 0 {
		return settings.Empty().Wrap(), nil
	}

	endpoint := *r.endpoint
	query := endpoint.Query()
	query.Set(keysParam, strings.Join(names, ","))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, endpoint.String(), http.NoBody,
	)
	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	req.Header.Set("Accept", "application/json")

	slog.Debug("querying settings api", "url", endpoint.String())

	resp, err := r.client.Do(req)
	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < http.StatusOK ||
		resp.StatusCode >= http.StatusMultipleChoices {
		excerpt, _ := io.ReadAll( //nolint:errcheck // best-effort excerpt
			io.LimitReader(resp.Body, errorExcerptBytes),
		)

		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	var doc settings.Document
	if err := doc.UnmarshalJSON(body); err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	// The daemon may return more than asked for.
	return doc.Unwrap().Select(names...).Wrap(), nil
}
