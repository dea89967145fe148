package preload

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"
)

// WarmResult reports which handshake stages a warm-up completed.
type WarmResult struct {
	TCPConnected bool
	TLSHandshake bool
}

// Prober is the network primitive used for warm-up. Both calls must return
// promptly once ctx is done.
type Prober interface {
	Resolve(ctx context.Context, host string) error
	Warm(ctx context.Context, rawURL string) (WarmResult, error)
}

// HTTPProber resolves hosts with the system resolver and warms connections
// with HEAD requests over a shared keep-alive transport, so a later request
// for the same origin reuses the pooled connection.
type HTTPProber struct {
	resolver *net.Resolver
	client   *http.Client
}

// NewHTTPProber returns a prober with its own connection pool.
func NewHTTPProber() *HTTPProber {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &HTTPProber{
		resolver: net.DefaultResolver,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Resolve looks up host with the system resolver.
func (p *HTTPProber) Resolve(ctx context.Context, host string) error {
	addrs, err := p.resolver.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	return nil
}

// Warm issues a HEAD request. Any HTTP response counts as a warmed connection.
func (p *HTTPProber) Warm(ctx context.Context, rawURL string) (WarmResult, error) {
	var connected, secured atomic.Bool
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			connected.Store(true)
			if _, ok := info.Conn.(*tls.Conn); ok {
				secured.Store(true)
			}
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				connected.Store(true)
			}
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				secured.Store(true)
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodHead, rawURL, nil)
	if err != nil {
		return WarmResult{}, fmt.Errorf("build warm-up request: %w", err)
	}
	req.Header.Set("Purpose", "prefetch")

	resp, err := p.client.Do(req)
	res := WarmResult{TCPConnected: connected.Load(), TLSHandshake: secured.Load()}
	if err != nil {
		return res, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return res, nil
}

// Close releases pooled connections.
func (p *HTTPProber) Close() {
	p.client.CloseIdleConnections()
}

// isTimeout reports whether err came from a deadline rather than the network.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
