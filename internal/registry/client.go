// Package registry implements the npm registry HTTP client: packument
// metadata fetching and tarball downloads with retry, circuit breaking,
// and DNS caching.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/pocketnode/core/internal/ports"
)

// DefaultURL is the public npm registry.
const DefaultURL = "https://registry.npmjs.org"

const (
	defaultUserAgent = "pocketnode/1.0 (npm-lite)"
	maxRedirects     = 5

	metadataTimeout = 30 * time.Second
	tarballTimeout  = 60 * time.Second
)

// Client fetches packuments and tarballs from an npm-compatible registry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	scopeURLs  map[string]string
	userAgent  string
	maxRetries uint64
	logger     ports.Logger

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the default registry URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithScopeURLs sets per-scope registry overrides, keyed by "@scope".
func WithScopeURLs(m map[string]string) Option {
	return func(c *Client) {
		for scope, u := range m {
			c.scopeURLs[scope] = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxRetries sets the maximum retry attempts for transient failures.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a registry client with the given options.
func NewClient(opts ...Option) *Client {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		baseURL:    DefaultURL,
		scopeURLs:  make(map[string]string),
		userAgent:  defaultUserAgent,
		maxRetries: 2,
		breakers:   make(map[string]*circuit.Breaker),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// registryFor returns the registry base URL serving the given package name,
// honoring per-scope overrides.
func (c *Client) registryFor(name string) string {
	if scope := Scope(name); scope != "" {
		if u, ok := c.scopeURLs[scope]; ok {
			return u
		}
	}
	return c.baseURL
}

// PackumentURL returns the metadata URL for a package.
func (c *Client) PackumentURL(name string) string {
	return c.registryFor(name) + "/" + encodeName(name)
}

// FetchPackument fetches and decodes the packument for a package.
func (c *Client) FetchPackument(ctx context.Context, name string) (*Packument, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	body, err := c.get(ctx, c.PackumentURL(name))
	if err != nil {
		if httpErr, ok := err.(*HTTPError); ok && httpErr.IsNotFound() {
			return nil, &NotFoundError{Name: name}
		}
		return nil, err
	}

	var p Packument
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode packument for %s: %w", name, err)
	}
	return &p, nil
}

// DownloadTarball fetches a package tarball.
func (c *Client) DownloadTarball(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, tarballTimeout)
	defer cancel()

	return c.get(ctx, url)
}

// get performs a GET with retry and circuit breaking. Client errors are
// permanent; 5xx and transport errors retry with exponential backoff.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	breaker := c.breakerFor(url)
	if !breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", hostOf(url), ErrUpstreamDown)
	}

	var body []byte
	op := func() error {
		return breaker.Call(func() error {
			b, err := c.doGet(ctx, url)
			if err != nil {
				if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode < 500 {
					return backoff.Permanent(err)
				}
				return err
			}
			body = b
			return nil
		}, 0)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return nil, perm.Err
		}
		return nil, err
	}
	return body, nil
}

// doGet performs a single GET request.
func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}

// breakerFor returns or creates the circuit breaker for a URL's host.
// Trips once 5 failures are counted, whether or not they are consecutive.
func (c *Client) breakerFor(url string) *circuit.Breaker {
	host := hostOf(url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[host]; ok {
		return b
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 30 * time.Second
	bo.MaxInterval = 5 * time.Minute
	bo.Multiplier = 2.0
	bo.Reset()

	b := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    bo,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	})
	c.breakers[host] = b
	return b
}

// hostOf extracts the host portion of a URL for breaker grouping.
func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}
