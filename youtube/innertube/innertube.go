package innertube

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/ytget/audiofetch/errs"
	"github.com/ytget/audiofetch/internal/botguard"
	"github.com/ytget/audiofetch/internal/logger"
)

const (
	// DefaultBaseURL is the YouTube origin used for page scraping and the API.
	DefaultBaseURL = "https://www.youtube.com"
	// DefaultClientName is the InnerTube client that tends to return direct stream URLs.
	DefaultClientName = "ANDROID"
	// DefaultClientVersion pairs with DefaultClientName.
	DefaultClientVersion = "20.10.38"

	playerPath            = "/youtubei/v1/player"
	userAgentValue        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	headerContentTypeJSON = "application/json"
	headerBotguard        = "x-goog-ext-123-botguard"
	headerVisitorID       = "x-goog-visitor-id"
	clientNameWEB         = "WEB"
	defaultWebVersion     = "2.20250312.04.00"
	visitorIDMaxAge       = 10 * time.Hour
	maxBodyBytes          = 16 << 20
)

var (
	apiKeyRe    = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	clientVerRe = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION":"([^"]+)"`)
)

// Doer sends HTTP requests. *http.Client and *client.Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// clientCodeFromName returns X-YouTube-Client-Name numeric code for known clients
func clientCodeFromName(name string) string {
	switch strings.ToUpper(name) {
	case "WEB":
		return "1"
	case "MWEB":
		return "2"
	case "ANDROID":
		return "3"
	case "IOS":
		return "5"
	case "TVHTML5":
		return "7"
	case "WEB_EMBEDDED_PLAYER":
		return "56"
	case "WEB_CREATOR":
		return "62"
	case "WEB_REMIX":
		return "67"
	case "TVHTML5_SIMPLY":
		return "75"
	case "TVHTML5_SIMPLY_EMBEDDED_PLAYER":
		return "85"
	default:
		return ""
	}
}

// Client for interacting with the YouTube InnerTube API.
type Client struct {
	HTTPClient Doer

	baseURL    string
	mu         sync.Mutex
	apiKey     string
	clientVer  string
	clientName string
	visitorID  struct {
		value   string
		updated time.Time
	}
	bg struct {
		solver botguard.Solver
		mode   botguard.Mode
		cache  botguard.Cache
		ttl    time.Duration
	}
	log *logger.ComponentLogger
}

// New creates a new InnerTube client. A nil httpClient uses a plain http.Client with a 30s timeout.
func New(httpClient Doer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		HTTPClient: httpClient,
		baseURL:    DefaultBaseURL,
		clientName: clientNameWEB,
		log:        logger.WithComponent(logger.ComponentInnerTube),
	}
}

// WithBaseURL points the client at another origin (used by tests and mirrors).
func (c *Client) WithBaseURL(base string) *Client {
	if b := strings.TrimRight(strings.TrimSpace(base), "/"); b != "" {
		c.baseURL = b
	}
	return c
}

// WithClient overrides InnerTube client name/version to shape playback URLs.
func (c *Client) WithClient(name, version string) *Client {
	if strings.TrimSpace(name) != "" {
		c.clientName = strings.TrimSpace(name)
	}
	if strings.TrimSpace(version) != "" {
		c.clientVer = strings.TrimSpace(version)
	}
	return c
}

// WithAPIKey presets the API key and skips page scraping for it.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = strings.TrimSpace(key)
	return c
}

// WithBotguard configures an optional Botguard solver and mode.
func (c *Client) WithBotguard(solver botguard.Solver, mode botguard.Mode, cache botguard.Cache) *Client {
	c.bg.solver = solver
	c.bg.mode = mode
	c.bg.cache = cache
	return c
}

// WithBotguardTTL sets a default TTL to apply when solver does not specify ExpiresAt.
func (c *Client) WithBotguardTTL(ttl time.Duration) *Client {
	c.bg.ttl = ttl
	return c
}

func (c *Client) logger() *logger.ComponentLogger {
	if c.log == nil {
		c.log = logger.WithComponent(logger.ComponentInnerTube)
	}
	return c.log
}

func (c *Client) base() string {
	if c.baseURL == "" {
		return DefaultBaseURL
	}
	return c.baseURL
}

func (c *Client) getPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: HTTP status %d", pageURL, resp.StatusCode)
	}
	return readBody(resp)
}

// ensureKey scrapes the API key and client version from the watch page, then the home page.
func (c *Client) ensureKey(ctx context.Context, videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apiKey != "" && c.clientVer != "" {
		return
	}

	sources := []string{c.base() + "/watch?v=" + url.QueryEscape(videoID), c.base()}
	for _, source := range sources {
		if c.apiKey != "" && c.clientVer != "" {
			break
		}
		body, err := c.getPage(ctx, source)
		if err != nil {
			c.logger().Debug("Config page fetch failed", map[string]interface{}{"url": source, "error": err.Error()})
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if c.apiKey == "" {
			if m := apiKeyRe.FindSubmatch(body); len(m) == 2 {
				c.apiKey = string(m[1])
			}
		}
		if c.clientVer == "" {
			if m := clientVerRe.FindSubmatch(body); len(m) == 2 {
				c.clientVer = string(m[1])
			}
		}
	}

	if c.clientVer == "" {
		c.clientVer = defaultWebVersion
	}
}

// GetPlayerResponse fetches stream data for the provided video ID using the
// InnerTube /player endpoint. Non-playable videos are reported through
// PlayerResponse.Err, not as an error here.
func (c *Client) GetPlayerResponse(ctx context.Context, videoID string) (*PlayerResponse, error) {
	c.ensureKey(ctx, videoID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := c.clientName
	ver := c.clientVer
	if !strings.EqualFold(name, clientNameWEB) && ver == defaultWebVersion {
		ver = "2.0"
	}

	clientMap := map[string]any{
		"clientName":    name,
		"clientVersion": ver,
		"hl":            "en",
		"gl":            "US",
	}
	reqUserAgent := userAgentValue
	if strings.EqualFold(name, "ANDROID") {
		clientMap["androidSdkVersion"] = 30
		clientMap["osName"] = "Android"
		clientMap["osVersion"] = "11"
		ua := "com.google.android.youtube/" + ver + " (Linux; U; Android 11) gzip"
		clientMap["userAgent"] = ua
		reqUserAgent = ua
	}

	requestBody, err := json.Marshal(map[string]any{
		"context":        map[string]any{"client": clientMap},
		"videoId":        videoID,
		"contentCheckOk": true,
		"racyCheckOk":    true,
	})
	if err != nil {
		return nil, err
	}

	endpoint := c.base() + playerPath + "?prettyPrint=false"
	if c.apiKey != "" {
		endpoint += "&key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", headerContentTypeJSON)
	req.Header.Set("User-Agent", reqUserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Referer", c.base()+"/")
	req.Header.Set("Origin", c.base())
	if code := clientCodeFromName(name); code != "" {
		req.Header.Set("X-YouTube-Client-Name", code)
	}
	req.Header.Set("X-YouTube-Client-Version", ver)
	if visitorID, err := c.getVisitorID(ctx); err == nil && visitorID != "" {
		req.Header.Set(headerVisitorID, visitorID)
	} else if err != nil {
		c.logger().Debug("Visitor ID unavailable", map[string]interface{}{"error": err.Error()})
	}

	resp, err := c.doWithBotguardRetry(req)
	if err != nil {
		return nil, fmt.Errorf("innertube: player request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger().Debug("Player response", map[string]interface{}{
		"status":   resp.StatusCode,
		"encoding": resp.Header.Get("Content-Encoding"),
		"client":   name,
	})

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("innertube: %w (HTTP 429)", errs.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("innertube: player HTTP status %d", resp.StatusCode)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("innertube: read player response: %w", err)
	}

	var playerResponse PlayerResponse
	if err := json.Unmarshal(body, &playerResponse); err != nil {
		return nil, fmt.Errorf("innertube: failed to parse response: %w", err)
	}
	return &playerResponse, nil
}

// readBody returns the decoded response body according to Content-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deflate reader: %w", err)
		}
		defer zr.Close()
		reader = zr
	case "bzip2":
		reader = bzip2.NewReader(resp.Body)
	}
	return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
}

// getVisitorID returns the current visitor ID, refreshing it if necessary
func (c *Client) getVisitorID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.visitorID.value == "" || time.Since(c.visitorID.updated) > visitorIDMaxAge {
		err = c.refreshVisitorID(ctx)
	}
	return c.visitorID.value, err
}

// refreshVisitorID reads INNERTUBE_CONTEXT.client.visitorData from the ytcfg blob on the home page.
func (c *Client) refreshVisitorID(ctx context.Context) error {
	const sep = "ytcfg.set("

	data, err := c.getPage(ctx, c.base())
	if err != nil {
		return err
	}

	page := string(data)
	for {
		_, rest, found := strings.Cut(page, sep)
		if !found {
			return errors.New("visitor ID not found in YouTube response")
		}
		page = rest

		var value struct {
			InnertubeContext struct {
				Client struct {
					VisitorData string `json:"visitorData"`
				} `json:"client"`
			} `json:"INNERTUBE_CONTEXT"`
		}
		if err := json.NewDecoder(strings.NewReader(rest)).Decode(&value); err != nil {
			continue
		}
		if v := value.InnertubeContext.Client.VisitorData; v != "" {
			c.visitorID.value = strings.ReplaceAll(v, "%3D", "=")
			c.visitorID.updated = time.Now()
			return nil
		}
	}
}

// doWithBotguardRetry executes the request and, in Auto/Force mode, runs a
// single Botguard attestation on 403 and retries with the token applied.
// Force mode also attests before the first attempt.
func (c *Client) doWithBotguardRetry(req *http.Request) (*http.Response, error) {
	if c.bg.solver == nil || c.bg.mode == botguard.Off {
		return c.HTTPClient.Do(req)
	}

	if c.bg.mode == botguard.Force {
		if err := c.maybeApplyBotguard(req); err != nil {
			c.logger().Warn("Botguard preflight failed", map[string]interface{}{"error": err.Error()})
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusForbidden {
		return resp, err
	}

	c.logger().Debug("403 from player endpoint, attempting Botguard attestation")
	if aerr := c.maybeApplyBotguard(req); aerr != nil {
		c.logger().Warn("Botguard attestation failed", map[string]interface{}{"error": aerr.Error()})
		return resp, nil
	}
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return resp, nil
		}
		req.Body = body
	}
	_ = resp.Body.Close()
	return c.HTTPClient.Do(req)
}

// maybeApplyBotguard runs the solver (or reuses a cached token) and sets the token header.
func (c *Client) maybeApplyBotguard(req *http.Request) error {
	if c.bg.solver == nil {
		return nil
	}
	name := c.clientName
	if strings.TrimSpace(name) == "" {
		name = clientNameWEB
	}
	in := botguard.Input{
		UserAgent:     req.Header.Get("User-Agent"),
		PageURL:       c.base() + "/",
		ClientName:    name,
		ClientVersion: c.clientVer,
		VisitorID:     req.Header.Get(headerVisitorID),
	}
	key := botguard.KeyFromInput(in)
	if c.bg.cache != nil {
		if out, ok := c.bg.cache.Get(key); ok && !out.Expired(time.Now()) {
			c.logger().Debug("Botguard cache hit")
			if out.Token != "" {
				req.Header.Set(headerBotguard, out.Token)
			}
			return nil
		}
	}
	out, err := c.bg.solver.Attest(req.Context(), in)
	if err != nil {
		return err
	}
	if out.ExpiresAt.IsZero() && c.bg.ttl > 0 {
		out.ExpiresAt = time.Now().Add(c.bg.ttl)
	}
	if out.Token != "" {
		req.Header.Set(headerBotguard, out.Token)
	}
	if c.bg.cache != nil {
		c.bg.cache.Set(key, out)
	}
	return nil
}
