package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/eliwatch/internal/logger"
	"github.com/MrSnakeDoc/eliwatch/internal/metrics"
	"github.com/MrSnakeDoc/eliwatch/internal/utils"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps how much of a body is kept in memory.
	DefaultMaxBodyBytes = 16 << 20
	// DefaultUserAgent is sent with every request unless overridden.
	DefaultUserAgent = "Mozilla/5.0 (compatible; eliwatch imagery watchdog)"

	// headBytes of every response are kept for content sniffing.
	headBytes = 512
	// drainBytes of an unread remainder are discarded so the connection
	// can be reused.
	drainBytes = 64 << 10
)

// FailureKind classifies why no HTTP status is available.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureMalformedURL
	FailureTimeout
	FailureTransport
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "ok"
	case FailureMalformedURL:
		return "malformed"
	case FailureTimeout:
		return "timeout"
	case FailureTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Response is the memoized outcome of one GET. It is never mutated once
// stored in the cache.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	// Head holds the first bytes of the body for sniffing.
	Head []byte
	// Body is capped at Config.MaxBodyBytes.
	Body []byte

	Failure FailureKind
	// Message describes the failure in a user-facing way.
	Message string
}

// Failed reports whether no HTTP response was obtained.
func (r *Response) Failed() bool {
	return r.Failure != FailureNone
}

// Options tune a single fetch.
type Options struct {
	// Headers are extra request headers. They are part of the cache key.
	Headers map[string]string
}

// Config configures a Cache.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
	// HostInterval is the minimum spacing between two requests to the same
	// host. Zero disables pacing (serialization still applies).
	HostInterval  time.Duration
	SkipTLSVerify bool
}

// Stats are counters over the lifetime of a Cache.
type Stats struct {
	Requests int64
	Hits     int64
	Hosts    int
}

// Cache deduplicates GET requests for one batch run and serializes requests
// per remote host. Create one per run; it is safe for concurrent use.
type Cache struct {
	client    *http.Client
	cfg       Config
	log       logger.Logger
	gates     *gateTable
	mu        sync.RWMutex
	responses map[string]*Response
	requests  atomic.Int64
	hits      atomic.Int64
}

// New creates a Cache. A nil client gets a default one built from cfg.
func New(cfg Config, client *http.Client, log logger.Logger) *Cache {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	every := rate.Inf
	if cfg.HostInterval > 0 {
		every = rate.Every(cfg.HostInterval)
	}
	return &Cache{
		client:    client,
		cfg:       cfg,
		log:       log,
		gates:     newGateTable(every),
		responses: make(map[string]*Response),
	}
}

// NewHTTPClient builds the client used for probing remote services.
func NewHTTPClient(cfg Config) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // many imagery hosts ship broken chains
			},
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// Fetch performs the GET for rawURL at most once per run and returns the
// cached outcome afterwards. Failures are reported inside the Response.
func (c *Cache) Fetch(ctx context.Context, rawURL string, opts Options) *Response {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &Response{
			URL:     rawURL,
			Failure: FailureMalformedURL,
			Message: fmt.Sprintf("Could not parse URL: %s", rawURL),
		}
	}

	key := cacheKey(rawURL, opts.Headers)
	if resp, ok := c.lookup(key); ok {
		c.hit(rawURL)
		return resp
	}

	gate := c.gates.get(strings.ToLower(u.Host))
	if err := gate.acquire(ctx); err != nil {
		return c.contextFailure(rawURL, err)
	}
	defer gate.release()

	// Another task may have fetched it while we waited for the host.
	if resp, ok := c.lookup(key); ok {
		c.hit(rawURL)
		return resp
	}

	if err := gate.limiter.Wait(ctx); err != nil {
		return c.contextFailure(rawURL, err)
	}

	resp := c.do(ctx, rawURL, opts)
	c.mu.Lock()
	c.responses[key] = resp
	c.mu.Unlock()
	return resp
}

// Stats returns request and hit counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Requests: c.requests.Load(),
		Hits:     c.hits.Load(),
		Hosts:    c.gates.hosts(),
	}
}

func (c *Cache) lookup(key string) (*Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.responses[key]
	return resp, ok
}

func (c *Cache) hit(rawURL string) {
	c.hits.Add(1)
	metrics.FetchCacheHits.Inc()
	c.log.Debug("cached", logger.String("url", rawURL))
}

func (c *Cache) contextFailure(rawURL string, err error) *Response {
	kind := FailureTransport
	msg := fmt.Sprintf("Exception %s for: %s", err, rawURL)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = FailureTimeout
		msg = fmt.Sprintf("Timeout for: %s", rawURL)
	}
	return &Response{URL: rawURL, Failure: kind, Message: msg}
}

func (c *Cache) do(ctx context.Context, rawURL string, opts Options) *Response {
	c.requests.Add(1)
	c.log.Debug("GET", logger.String("url", rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		metrics.FetchRequests.WithLabelValues(FailureMalformedURL.String()).Inc()
		return &Response{
			URL:     rawURL,
			Failure: FailureMalformedURL,
			Message: fmt.Sprintf("Could not parse URL: %s", rawURL),
		}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	res, err := c.client.Do(req)
	if err != nil {
		out := c.transportFailure(ctx, rawURL, err)
		metrics.FetchRequests.WithLabelValues(out.Failure.String()).Inc()
		return out
	}
	defer utils.DrainClose(res.Body, drainBytes)

	out := &Response{
		URL:         rawURL,
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
	}

	// The body is always kept so a URL first tested for reachability can
	// later be parsed without a second GET.
	data, err := io.ReadAll(io.LimitReader(res.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		out = c.transportFailure(ctx, rawURL, err)
		metrics.FetchRequests.WithLabelValues(out.Failure.String()).Inc()
		return out
	}
	if len(data) > headBytes {
		out.Head = data[:headBytes]
	} else {
		out.Head = data
	}
	out.Body = data

	metrics.FetchRequests.WithLabelValues(FailureNone.String()).Inc()
	return out
}

func (c *Cache) transportFailure(ctx context.Context, rawURL string, err error) *Response {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &Response{
			URL:     rawURL,
			Failure: FailureTimeout,
			Message: fmt.Sprintf("Timeout for: %s", rawURL),
		}
	}
	c.log.Debug("request failed", logger.String("url", rawURL), logger.Error(err))
	return &Response{
		URL:     rawURL,
		Failure: FailureTransport,
		Message: fmt.Sprintf("Exception %s for: %s", err, rawURL),
	}
}

// cacheKey combines the URL with a canonical rendering of the headers.
func cacheKey(rawURL string, headers map[string]string) string {
	if len(headers) == 0 {
		return rawURL
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range names {
		b.WriteString("\n")
		b.WriteString(http.CanonicalHeaderKey(k))
		b.WriteString(": ")
		b.WriteString(headers[k])
	}
	return b.String()
}
