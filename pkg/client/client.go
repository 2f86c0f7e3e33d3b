package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/audiofetch/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	userAgentValue   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	initialBackoff   = 200 * time.Millisecond
	maxBackoff       = 3 * time.Second
	successMinCode   = http.StatusOK                  // 200
	retryableMinCode = http.StatusInternalServerError // 500
)

// defaultTransport is a tuned HTTP transport reused across clients.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 10 * time.Second,
	ForceAttemptHTTP2:     true,
	// Compressed bodies are decoded by the callers that ask for them.
	DisableCompression: true,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NoRetries makes every request a single attempt.
const NoRetries = -1

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout time.Duration
	// Retries is the number of attempts per request. Zero uses the default,
	// NoRetries (or any negative value) a single attempt.
	Retries   int
	UserAgent string
	ProxyURL  string
	Jar       http.CookieJar
	// Transport overrides the tuned default transport; ProxyURL is ignored when set.
	Transport http.RoundTripper
}

// Client wraps http.Client with retry/backoff and default headers.
type Client struct {
	HTTPClient *http.Client
	Retries    int
	UserAgent  string
}

// New creates a new Client with a tuned Transport, default timeout, and retries.
func New() *Client {
	return NewWith(Config{})
}

// NewWith creates a new client with provided config. Zero values use defaults.
func NewWith(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	switch {
	case retries == 0:
		retries = defaultRetries
	case retries < 0:
		retries = 1
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgentValue
	}

	rt := cfg.Transport
	if rt == nil {
		tr := defaultTransport.Clone()
		if cfg.ProxyURL != "" {
			// Callers validate with ParseProxyURL first; a bad URL here keeps the environment proxy.
			if proxyFunc, err := proxyFromURLString(cfg.ProxyURL); err == nil {
				tr.Proxy = proxyFunc
			} else {
				logger.WithComponent(logger.ComponentClient).Warn("Ignoring invalid proxy URL", map[string]interface{}{
					"proxy": cfg.ProxyURL,
					"error": err.Error(),
				})
			}
		}
		rt = tr
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: rt,
			Jar:       cfg.Jar,
		},
		Retries:   retries,
		UserAgent: ua,
	}
}

// Get performs a GET request through Do.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends req with a simple retry policy for transient errors
// (HTTP 5xx or network failures). A User-Agent is set when the request has none.
// Requests with a body are only retried when req.GetBody is available.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		ua := c.UserAgent
		if ua == "" {
			ua = userAgentValue
		}
		req.Header.Set("User-Agent", ua)
	}

	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	if req.Body != nil && req.GetBody == nil {
		retries = 1
	}

	log := logger.WithComponent(logger.ComponentClient)
	ctx := req.Context()

	var (
		resp *http.Response
		err  error
	)
	backoff := initialBackoff
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, fmt.Errorf("rewind request body: %w", berr)
			}
			req.Body = body
		}
		resp, err = c.HTTPClient.Do(req)
		if err == nil && resp.StatusCode >= successMinCode && resp.StatusCode < retryableMinCode {
			return resp, nil
		}
		if attempt == retries-1 {
			break
		}
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		fields := map[string]interface{}{"url": req.URL.Redacted(), "attempt": attempt + 1}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status"] = resp.StatusCode
		}
		log.Debug("Retrying request", fields)

		if serr := sleepCtx(ctx, backoff); serr != nil {
			return nil, serr
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return resp, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ParseProxyURL parses an http, https, socks5 or socks5h proxy URL.
func ParseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy URL %q must include scheme and host", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("proxy URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	return u, nil
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := ParseProxyURL(raw)
	if err != nil {
		return nil, err
	}
	return http.ProxyURL(u), nil
}
