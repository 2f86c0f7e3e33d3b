package cipher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ytget/audiofetch/internal/logger"
)

const (
	userAgentValue  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	defaultBaseURL  = "https://www.youtube.com"
	jsURLGroupIndex = 1 // capture group index for jsUrl
	playerJSTTL     = 10 * time.Minute
	maxPlayerJSSize = 8 << 20
)

var playerJSURLRegex = regexp.MustCompile(`"(?:jsUrl|PLAYER_JS_URL)":"([^"]+)"`)

// Doer sends HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type playerJSCacheEntry struct {
	body  string
	expAt time.Time
}

// Cipher fetches player.js and keeps its body cached per URL.
type Cipher struct {
	HTTPClient Doer

	baseURL string
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]playerJSCacheEntry
	sigs  map[string]string // playerURL + "\x00" + signature

	log *logger.ComponentLogger
}

// New returns a Cipher using httpClient, or http.DefaultClient when nil.
func New(httpClient Doer) *Cipher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Cipher{
		HTTPClient: httpClient,
		baseURL:    defaultBaseURL,
		ttl:        playerJSTTL,
		now:        time.Now,
		cache:      make(map[string]playerJSCacheEntry),
		sigs:       make(map[string]string),
		log:        logger.WithComponent(logger.ComponentCipher),
	}
}

// WithBaseURL points watch page and relative player.js lookups at another origin.
func (c *Cipher) WithBaseURL(base string) *Cipher {
	if b := strings.TrimRight(strings.TrimSpace(base), "/"); b != "" {
		c.baseURL = b
	}
	return c
}

// WithTTL sets how long a downloaded player.js stays cached.
func (c *Cipher) WithTTL(ttl time.Duration) *Cipher {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

func (c *Cipher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: HTTP status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPlayerJSSize))
}

// FetchPlayerJS finds the player.js URL by requesting the watch page of
// videoID and scraping the "jsUrl" field from the response.
func (c *Cipher) FetchPlayerJS(ctx context.Context, videoID string) (string, error) {
	pageURL := c.baseURL + "/watch?v=" + url.QueryEscape(videoID)
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return "", NewError(ErrCodePlayerJSNotFound, "failed to load watch page", err)
	}

	matches := playerJSURLRegex.FindSubmatch(body)
	if len(matches) <= jsURLGroupIndex || len(matches[jsURLGroupIndex]) == 0 {
		return "", NewError(ErrCodePlayerJSNotFound, "could not find player js url in video page")
	}
	playerJSURL := strings.ReplaceAll(string(matches[jsURLGroupIndex]), `\/`, `/`)
	if strings.HasPrefix(playerJSURL, "//") {
		playerJSURL = "https:" + playerJSURL
	} else if !strings.HasPrefix(playerJSURL, "http") {
		playerJSURL = c.baseURL + playerJSURL
	}

	c.log.Debug("Found player.js", map[string]interface{}{"url": playerJSURL})
	return playerJSURL, nil
}

func (c *Cipher) playerJS(ctx context.Context, playerJSURL string) (string, error) {
	c.mu.Lock()
	entry, ok := c.cache[playerJSURL]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expAt) {
		return entry.body, nil
	}

	body, err := c.get(ctx, playerJSURL)
	if err != nil {
		return "", NewError(ErrCodePlayerJSDownload, "failed to download player.js", err)
	}
	if len(body) == 0 {
		return "", NewError(ErrCodePlayerJSDownload, "empty player.js")
	}

	c.mu.Lock()
	c.cache[playerJSURL] = playerJSCacheEntry{body: string(body), expAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	c.log.Debug("Downloaded player.js", map[string]interface{}{"bytes": len(body)})
	return string(body), nil
}

// Player binds c to one player.js URL.
func (c *Cipher) Player(playerJSURL string) *Player {
	return &Player{c: c, url: playerJSURL}
}

// Player deciphers values with a specific player.js.
type Player struct {
	c   *Cipher
	url string
}

// URL returns the player.js URL p is bound to.
func (p *Player) URL() string { return p.url }

// Decipher decrypts a signature: first with the regex operation parser, then
// by executing player.js in otto and calling its global decipher function.
func (p *Player) Decipher(ctx context.Context, signature string) (string, error) {
	if signature == "" {
		return "", NewError(ErrCodeSignatureInvalid, "empty signature")
	}
	key := p.url + "\x00" + signature
	p.c.mu.Lock()
	cached, ok := p.c.sigs[key]
	p.c.mu.Unlock()
	if ok {
		return cached, nil
	}

	js, err := p.c.playerJS(ctx, p.url)
	if err != nil {
		return "", err
	}

	out, ok := tryRegexDecipher(js, signature)
	if !ok {
		p.c.log.Debug("Regex decipher failed, falling back to otto")
		out, err = tryOttoDecipher(ctx, js, signature)
		if err != nil {
			return "", NewError(ErrCodeSignatureDecipher, "all decipher methods failed", err)
		}
	}

	p.c.mu.Lock()
	p.c.sigs[key] = out
	p.c.mu.Unlock()
	return out, nil
}

// DecipherN decodes the n (throttling) parameter. The value is returned
// unchanged when player.js carries no recognizable n-function.
func (p *Player) DecipherN(ctx context.Context, nval string) (string, error) {
	js, err := p.c.playerJS(ctx, p.url)
	if err != nil {
		return "", err
	}
	out, err := decodeN(js, nval)
	if err != nil {
		if IsNotFound(err) {
			p.c.log.Debug("No n-function in player.js")
			return nval, nil
		}
		return "", err
	}
	return out, nil
}
