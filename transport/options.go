package transport

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ClientOption configures a Client.
type ClientOption interface {
	applyClient(c *Client)
}

// HTTPDispatcherOption configures an HTTPDispatcher.
type HTTPDispatcherOption interface {
	applyHTTPDispatcher(d *HTTPDispatcher)
}

// HTTPRefresherOption configures an HTTPRefresher.
type HTTPRefresherOption interface {
	applyHTTPRefresher(r *HTTPRefresher)
}

// HTTPOption configures any component that performs HTTP calls.
type HTTPOption interface {
	HTTPDispatcherOption
	HTTPRefresherOption
}

// Option configures any component of the transport.
type Option interface {
	ClientOption
	HTTPOption
}

// WithLogger sets the logger of a component.
func WithLogger(logger *zap.Logger) Option {
	return loggerOption{logger}
}

type loggerOption struct {
	logger *zap.Logger
}

func (o loggerOption) applyClient(c *Client)                 { c.logger = o.logger }
func (o loggerOption) applyHTTPDispatcher(d *HTTPDispatcher) { d.logger = o.logger }
func (o loggerOption) applyHTTPRefresher(r *HTTPRefresher)   { r.logger = o.logger }

// WithHTTPClient sets the HTTP client used for outbound calls.
//
// Note that the refresher relies on its client's cookie jar to carry the
// session proof; a client without a jar disables cookie authentication.
func WithHTTPClient(client *http.Client) HTTPOption {
	return httpClientOption{client}
}

type httpClientOption struct {
	client *http.Client
}

func (o httpClientOption) applyHTTPDispatcher(d *HTTPDispatcher) { d.client = o.client }
func (o httpClientOption) applyHTTPRefresher(r *HTTPRefresher)   { r.client = o.client }

// WithClock sets the clock used to bound refresh calls.
func WithClock(clock clockwork.Clock) ClientOption {
	return clockOption{clock}
}

type clockOption struct {
	clock clockwork.Clock
}

func (o clockOption) applyClient(c *Client) { c.clock = o.clock }

// WithRefreshTimeout sets how long a refresh call may stay in flight before
// it is considered failed.
func WithRefreshTimeout(timeout time.Duration) ClientOption {
	return refreshTimeoutOption{timeout}
}

type refreshTimeoutOption struct {
	timeout time.Duration
}

func (o refreshTimeoutOption) applyClient(c *Client) { c.refreshTimeout = o.timeout }
