package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	optionlib "github.com/sagikazarmark/go-option"
	"go.uber.org/zap"
)

// ErrSessionExpired is returned to every caller queued against a refresh that
// fails: the session proof is no longer accepted and the caller must
// re-authenticate. The session-invalidated signal fires alongside this error.
var ErrSessionExpired = errors.New("authentication session expired")

// ErrCredentialRejected is returned when a request fails authentication even
// after a successful refresh and one replay. The request is never replayed
// again; the rejected response is returned together with this error.
var ErrCredentialRejected = errors.New("credential rejected")

// ErrRefreshTimeout terminates a refresh call that stays in flight longer
// than the configured timeout. It settles the refresh operation exactly like
// a refused refresh.
var ErrRefreshTimeout = errors.New("credential refresh timed out")

const defaultRefreshTimeout = 30 * time.Second

// Client dispatches authenticated API requests,
// transparently recovering from credential expiry.
//
// When a request fails authentication for the first time, the Client starts
// a single refresh call; requests failing concurrently join it as waiters
// instead of starting their own. Once the refresh settles, every waiter's
// original request is replayed (at most once) with the new credential, or
// rejected with ErrSessionExpired if the refresh failed.
type Client struct {
	dispatcher  Dispatcher
	refresher   Refresher
	credentials CredentialStore
	watcher     *SessionWatcher

	refreshTimeout time.Duration
	clock          clockwork.Clock
	logger         *zap.Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []*waiter
}

// waiter is one request queued against the in-flight refresh operation,
// awaiting its outcome before being replayed.
type waiter struct {
	ctx     context.Context
	request Request
	done    chan outcome
}

type outcome struct {
	response Response
	err      error
}

// NewClient returns a new Client.
func NewClient(
	dispatcher Dispatcher,
	refresher Refresher,
	credentials CredentialStore,
	watcher *SessionWatcher,
	opts ...ClientOption,
) *Client {
	c := &Client{
		dispatcher:  dispatcher,
		refresher:   refresher,
		credentials: credentials,
		watcher:     watcher,
	}

	for _, opt := range opts {
		opt.applyClient(c)
	}

	if c.refreshTimeout == 0 {
		c.refreshTimeout = defaultRefreshTimeout
	}

	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	return c
}

// Do dispatches a request, recovering from an authentication failure by
// refreshing the access credential and replaying the request once.
//
// Outcomes:
//   - any response other than an authentication failure is returned untouched
//   - an authentication failure recovered by a refresh is invisible: the
//     replayed request's response is returned
//   - a request rejected again after the replay returns the rejected response
//     together with ErrCredentialRejected
//   - if the refresh itself fails, ErrSessionExpired is returned and the
//     session-invalidated signal fires
//
// Once a request has joined a refresh operation it cannot be withdrawn:
// if ctx ends while queued, the replay fails fast with the context's error.
func (c *Client) Do(ctx context.Context, r Request) (Response, error) {
	response, err := c.dispatcher.Dispatch(ctx, r)
	if err != nil {
		return Response{}, err
	}

	if !response.authFailure() {
		return response, nil
	}

	result := <-c.join(ctx, r)

	return result.response, result.err
}

// join queues a request against the current refresh operation, starting one
// if none is in flight. The idle check and the queue append happen under one
// lock, so concurrent failures cannot start a second refresh and no waiter
// arriving before settlement is dropped.
func (c *Client) join(ctx context.Context, r Request) <-chan outcome {
	w := &waiter{
		ctx:     ctx,
		request: r,
		done:    make(chan outcome, 1),
	}

	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	start := !c.refreshing
	c.refreshing = true
	c.mu.Unlock()

	if start {
		go c.refresh()
	}

	return w.done
}

// refresh performs the single refresh call and settles every queued waiter.
//
// The waiter list and the refreshing flag are reset in one critical section:
// a request failing after that point observes an idle coordinator and opens
// a new refresh operation of its own.
func (c *Client) refresh() {
	credential, err := c.refreshCredential()

	if err != nil {
		c.credentials.Set(optionlib.None[string]())
	} else {
		c.credentials.Set(optionlib.Some(credential))
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("credential refresh failed", zap.Error(err), zap.Int("waiters", len(waiters)))

		for _, w := range waiters {
			w.done <- outcome{err: ErrSessionExpired}
		}

		c.watcher.Invalidate()

		return
	}

	c.logger.Debug("credential refreshed", zap.Int("waiters", len(waiters)))

	for _, w := range waiters {
		w.done <- c.replay(w)
	}
}

// refreshCredential invokes the refresh endpoint exactly once,
// bounding how long the call may stay in flight.
func (c *Client) refreshCredential() (string, error) {
	// Deliberately not derived from any single waiter's context:
	// the refresh outcome is shared by every queued request.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		credential string
		err        error
	}

	done := make(chan result, 1)

	go func() {
		credential, err := c.refresher.Refresh(ctx)
		done <- result{credential, err}
	}()

	select {
	case r := <-done:
		return r.credential, r.err
	case <-c.clock.After(c.refreshTimeout):
		cancel()

		return "", ErrRefreshTimeout
	}
}

// replay re-dispatches a waiter's original request, picking up the refreshed
// credential from the store. A request is replayed at most once: a second
// authentication failure is terminal.
func (c *Client) replay(w *waiter) outcome {
	response, err := c.dispatcher.Dispatch(w.ctx, w.request)
	if err != nil {
		return outcome{err: err}
	}

	if response.authFailure() {
		return outcome{response: response, err: ErrCredentialRejected}
	}

	return outcome{response: response}
}
