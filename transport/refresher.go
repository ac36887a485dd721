package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"go.uber.org/zap"
)

// ErrRefreshRejected is returned when the refresh endpoint refuses to issue
// a new credential, for example because the session proof it relies on is
// invalid or expired.
var ErrRefreshRejected = errors.New("credential refresh rejected")

// Refresher exchanges a longer-lived session proof for a new access credential.
//
// The proof (typically an ambient session cookie) is opaque to the transport
// layer: implementations carry it implicitly and never expose it.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// HTTPRefresher requests a new access credential from a dedicated,
// cookie-authenticated refresh endpoint.
//
// The refresh call never carries the access credential itself.
type HTTPRefresher struct {
	endpoint *url.URL

	client *http.Client
	logger *zap.Logger
}

// NewHTTPRefresher returns a new HTTPRefresher for the refresh endpoint at
// path, relative to baseURL.
func NewHTTPRefresher(baseURL string, path string, opts ...HTTPRefresherOption) (*HTTPRefresher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	r := &HTTPRefresher{
		endpoint: u.JoinPath(path),
	}

	for _, opt := range opts {
		opt.applyHTTPRefresher(r)
	}

	if r.client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}

		r.client = &http.Client{Jar: jar}
	}

	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	return r, nil
}

// Client returns the underlying HTTP client whose cookie jar carries the
// session proof. The external login flow performs its call through this
// client so the refresh endpoint sees the session cookie afterwards.
func (r *HTTPRefresher) Client() *http.Client {
	return r.client
}

// Refresh implements the Refresher interface.
//
// Any non-success response or transport error is a refresh failure.
func (r *HTTPRefresher) Refresh(ctx context.Context) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating refresh request: %w", err)
	}

	response, err := r.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("refreshing credential: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		r.logger.Debug("refresh endpoint refused", zap.Int("status", response.StatusCode))

		return "", ErrRefreshRejected
	}

	var decoded refreshResponse

	err = json.NewDecoder(response.Body).Decode(&decoded)
	if err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}

	if decoded.AccessToken == "" {
		return "", ErrRefreshRejected
	}

	return decoded.AccessToken, nil
}
