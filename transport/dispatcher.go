package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Dispatcher issues outbound API requests,
// attaching the current access credential to each.
//
// A Dispatcher delivers the raw outcome to its caller:
// it does not interpret status codes.
// Interpretation and recovery are the Client's responsibility.
type Dispatcher interface {
	Dispatch(ctx context.Context, r Request) (Response, error)
}

// HTTPDispatcher dispatches requests over HTTP against a fixed base URL.
type HTTPDispatcher struct {
	baseURL     *url.URL
	credentials CredentialStore

	client *http.Client
	logger *zap.Logger
}

// NewHTTPDispatcher returns a new HTTPDispatcher.
func NewHTTPDispatcher(baseURL string, credentials CredentialStore, opts ...HTTPDispatcherOption) (*HTTPDispatcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	d := &HTTPDispatcher{
		baseURL:     u,
		credentials: credentials,
	}

	for _, opt := range opts {
		opt.applyHTTPDispatcher(d)
	}

	if d.client == nil {
		d.client = http.DefaultClient
	}

	if d.logger == nil {
		d.logger = zap.NewNop()
	}

	return d, nil
}

// Dispatch implements the Dispatcher interface.
//
// If the credential store holds a credential it is attached as a bearer
// credential; otherwise the request is sent uncredentialed.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, r Request) (Response, error) {
	target := d.baseURL.JoinPath(r.Path)

	httpRequest, err := http.NewRequestWithContext(ctx, r.Method, target.String(), bytes.NewReader(r.Body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}

	if r.Header != nil {
		httpRequest.Header = r.Header.Clone()
	}

	if credential := d.credentials.Get(); credential != nil && credential.HasValue() {
		httpRequest.Header.Set("Authorization", "Bearer "+credential.Value())
	}

	httpResponse, err := d.client.Do(httpRequest)
	if err != nil {
		return Response{}, err
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response body: %w", err)
	}

	d.logger.Debug(
		"request dispatched",
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.Int("status", httpResponse.StatusCode),
	)

	return Response{
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       body,
	}, nil
}
