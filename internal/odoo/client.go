package odoo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gitea.jw6.us/james/odoolink/internal/config"
	"gitea.jw6.us/james/odoolink/internal/metrics"
	"gitea.jw6.us/james/odoolink/internal/xmlrpc"
)

const (
	commonPath = "/xmlrpc/2/common"
	objectPath = "/xmlrpc/2/object"

	maxResponseBytes = 16 << 20
)

// session is the cached identity used for execute_kw. It is never logged.
type session struct {
	uid      int64
	password string
}

// Client talks to one Odoo database. It authenticates lazily on the first
// Execute and keeps the session for its whole lifetime; build a new Client to
// re-authenticate. A Client is safe for concurrent use: concurrent first calls
// share a single authenticate round trip.
type Client struct {
	cfg        config.Connection
	httpClient *http.Client
	timeout    time.Duration

	mu        sync.RWMutex
	sess      *session
	authGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the per-call timeout from the connection config.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient returns an unauthenticated client for cfg.
func NewClient(cfg config.Connection, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		timeout:    cfg.Timeout,
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connection returns the configuration the client was built with.
func (c *Client) Connection() config.Connection { return c.cfg }

// Authenticate logs in against the common endpoint and caches the session.
// It always performs a round trip, even when a session is already cached.
func (c *Client) Authenticate(ctx context.Context) (int64, error) {
	params := []xmlrpc.Value{
		xmlrpc.String(c.cfg.Database),
		xmlrpc.String(c.cfg.Username),
		xmlrpc.String(c.cfg.Password),
		xmlrpc.Struct(),
	}
	result, err := c.call(ctx, commonPath, "authenticate", "authenticate", params)
	if err != nil {
		return 0, err
	}

	uid, ok := result.AsInt()
	if !ok || uid <= 0 {
		return 0, &AuthenticationError{}
	}

	c.mu.Lock()
	c.sess = &session{uid: uid, password: c.cfg.Password}
	c.mu.Unlock()
	return uid, nil
}

// Authenticated reports whether a session is cached.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess != nil
}

func (c *Client) session(ctx context.Context) (*session, error) {
	c.mu.RLock()
	s := c.sess
	c.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	// Callers waiting on the shared call observe the first caller's context.
	_, err, _ := c.authGroup.Do("authenticate", func() (any, error) {
		if c.Authenticated() {
			return nil, nil
		}
		return c.Authenticate(ctx)
	})
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess, nil
}

// Execute runs model.method through execute_kw. args are the positional
// arguments and kwargs the keyword arguments; both are converted with
// xmlrpc.ValueOf. A nil kwargs is sent as an empty struct.
func (c *Client) Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (xmlrpc.Value, error) {
	argsValue, err := xmlrpc.ValueOf(args)
	if err != nil {
		return xmlrpc.Value{}, fmt.Errorf("encode %s.%s args: %w", model, method, err)
	}
	kwValue := xmlrpc.Struct()
	if len(kwargs) > 0 {
		if kwValue, err = xmlrpc.ValueOf(kwargs); err != nil {
			return xmlrpc.Value{}, fmt.Errorf("encode %s.%s kwargs: %w", model, method, err)
		}
	}

	s, err := c.session(ctx)
	if err != nil {
		return xmlrpc.Value{}, err
	}

	params := []xmlrpc.Value{
		xmlrpc.String(c.cfg.Database),
		xmlrpc.Int(s.uid),
		xmlrpc.String(s.password),
		xmlrpc.String(model),
		xmlrpc.String(method),
		argsValue,
		kwValue,
	}
	return c.call(ctx, objectPath, "execute_kw", model+"."+method, params)
}

func (c *Client) call(ctx context.Context, path, method, label string, params []xmlrpc.Value) (result xmlrpc.Value, err error) {
	service := path[len("/xmlrpc/2/"):]
	start := time.Now()
	defer func() {
		metrics.ObserveRPC(ctx, service, label, errorCode(err), start)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := xmlrpc.EncodeCall(method, params...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return xmlrpc.Value{}, &TransportError{Endpoint: service, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Accept", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return xmlrpc.Value{}, &TimeoutError{Endpoint: service, Timeout: c.timeout}
		}
		return xmlrpc.Value{}, &TransportError{Endpoint: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return xmlrpc.Value{}, &TransportError{Endpoint: service, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return xmlrpc.Value{}, &TimeoutError{Endpoint: service, Timeout: c.timeout}
		}
		return xmlrpc.Value{}, &TransportError{Endpoint: service, Err: err}
	}

	result, err = xmlrpc.DecodeResponse(raw)
	if err != nil {
		var fault *xmlrpc.Fault
		if errors.As(err, &fault) {
			return xmlrpc.Value{}, &FaultError{Fault: fault}
		}
		return xmlrpc.Value{}, &TransportError{Endpoint: service, Err: err}
	}
	return result, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}
