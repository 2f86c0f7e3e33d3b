package client

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/ytget/audiofetch/internal/logger"
)

const httpOnlyPrefix = "#HttpOnly_"

// CookieEntry is one line of a Netscape cookies.txt file.
type CookieEntry struct {
	// Host is the domain column without its leading dot.
	Host   string
	Cookie *http.Cookie
}

// ParseCookiesFile parses a Netscape cookies.txt document.
// Malformed lines are skipped; the count of skipped lines is returned.
func ParseCookiesFile(data []byte) ([]CookieEntry, int) {
	var (
		entries []CookieEntry
		skipped int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		httpOnly := false
		if rest, ok := strings.CutPrefix(line, httpOnlyPrefix); ok {
			line = rest
			httpOnly = true
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) < 7 {
			skipped++
			continue
		}
		domain := strings.TrimSpace(f[0])
		host := strings.TrimPrefix(domain, ".")
		if host == "" {
			skipped++
			continue
		}
		c := &http.Cookie{
			Path:     f[2],
			Secure:   strings.EqualFold(f[3], "TRUE"),
			Name:     f[5],
			Value:    f[6],
			HttpOnly: httpOnly,
		}
		// An empty Domain keeps the cookie host-only.
		if strings.EqualFold(f[1], "TRUE") {
			c.Domain = host
		}
		if exp, err := strconv.ParseInt(f[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
		}
		entries = append(entries, CookieEntry{Host: host, Cookie: c})
	}
	return entries, skipped
}

// LoadCookieJar reads a cookies.txt file from fsys into a fresh cookie jar.
func LoadCookieJar(fsys afero.Fs, path string) (http.CookieJar, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read cookies file: %w", err)
	}
	entries, skipped := ParseCookiesFile(data)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		u := &url.URL{Scheme: "https", Host: e.Host, Path: "/"}
		jar.SetCookies(u, []*http.Cookie{e.Cookie})
	}

	logger.WithComponent(logger.ComponentClient).Debug("Loaded cookies", map[string]interface{}{
		"path":    path,
		"cookies": len(entries),
		"skipped": skipped,
	})
	return jar, nil
}
