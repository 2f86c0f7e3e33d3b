package cipher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ytget/audiofetch/errs"
)

const testPlayerJS = `var Xy={Ab:function(a){a.reverse()},
Cd:function(a,b){a.splice(0,b)},
Ef:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c}};
Zq=function(a){a=a.split("");Xy.Cd(a,2);Xy.Ab(a,41);Xy.Ef(a,5);return a.join("")};
var nArr=[Nf];
Nf=function(a){var b=a.split("");var s="}{";b.reverse();return b.join("")+"_x"};
function useN(u){var b;if((b=u.get("n"))&&(b=nArr[0](b),u.set("n",b)))return u}
`

type fakePlayerServer struct {
	playerJS    string
	jsHits      int32
	watchStatus int
}

func (f *fakePlayerServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		if f.watchStatus != 0 {
			w.WriteHeader(f.watchStatus)
			return
		}
		_, _ = io.WriteString(w, `<script>var ytplayer={"jsUrl":"\/s\/player\/abc123\/player_ias.vflset\/en_US\/base.js"};</script>`)
	})
	mux.HandleFunc("/s/player/abc123/player_ias.vflset/en_US/base.js", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.jsHits, 1)
		_, _ = io.WriteString(w, f.playerJS)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPlayerJS(t *testing.T) {
	f := &fakePlayerServer{playerJS: testPlayerJS}
	srv := f.start(t)
	c := New(srv.Client()).WithBaseURL(srv.URL)

	got, err := c.FetchPlayerJS(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FetchPlayerJS: %v", err)
	}
	want := srv.URL + "/s/player/abc123/player_ias.vflset/en_US/base.js"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFetchPlayerJS_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>nothing here</html>")
	}))
	defer srv.Close()

	_, err := New(srv.Client()).WithBaseURL(srv.URL).FetchPlayerJS(context.Background(), "dQw4w9WgXcQ")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !errors.Is(err, errs.ErrCipherFailed) {
		t.Fatalf("expected errs.ErrCipherFailed, got %v", err)
	}
}

func TestFetchPlayerJS_HTTPError(t *testing.T) {
	f := &fakePlayerServer{watchStatus: http.StatusServiceUnavailable}
	srv := f.start(t)
	if _, err := New(srv.Client()).WithBaseURL(srv.URL).FetchPlayerJS(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPlayerDecipher_CachesPlayerJS(t *testing.T) {
	f := &fakePlayerServer{playerJS: testPlayerJS}
	srv := f.start(t)
	c := New(srv.Client()).WithBaseURL(srv.URL)
	ctx := context.Background()

	jsURL, err := c.FetchPlayerJS(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FetchPlayerJS: %v", err)
	}
	p := c.Player(jsURL)

	out, err := p.Decipher(ctx, "0123456789")
	if err != nil {
		t.Fatalf("Decipher: %v", err)
	}
	if out != "48765932" {
		t.Fatalf("Decipher = %q", out)
	}
	if _, err := p.Decipher(ctx, "abcdefghij"); err != nil {
		t.Fatalf("Decipher: %v", err)
	}
	n, err := p.DecipherN(ctx, "abc")
	if err != nil {
		t.Fatalf("DecipherN: %v", err)
	}
	if n != "cba_x" {
		t.Fatalf("DecipherN = %q", n)
	}
	if hits := atomic.LoadInt32(&f.jsHits); hits != 1 {
		t.Fatalf("expected one player.js download, got %d", hits)
	}
}

func TestPlayerJSCacheExpires(t *testing.T) {
	f := &fakePlayerServer{playerJS: testPlayerJS}
	srv := f.start(t)
	c := New(srv.Client()).WithBaseURL(srv.URL).WithTTL(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	jsURL := srv.URL + "/s/player/abc123/player_ias.vflset/en_US/base.js"
	ctx := context.Background()
	if _, err := c.playerJS(ctx, jsURL); err != nil {
		t.Fatal(err)
	}
	if _, err := c.playerJS(ctx, jsURL); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := c.playerJS(ctx, jsURL); err != nil {
		t.Fatal(err)
	}
	if hits := atomic.LoadInt32(&f.jsHits); hits != 2 {
		t.Fatalf("expected refetch after TTL, got %d downloads", hits)
	}
}

func TestPlayerDecipher_Errors(t *testing.T) {
	f := &fakePlayerServer{playerJS: "var nothing = 1;"}
	srv := f.start(t)
	c := New(srv.Client())
	p := c.Player(srv.URL + "/s/player/abc123/player_ias.vflset/en_US/base.js")

	if _, err := p.Decipher(context.Background(), ""); !IsInvalid(err) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}
	_, err := p.Decipher(context.Background(), "abc")
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeSignatureDecipher {
		t.Fatalf("expected SIGNATURE_DECIPHER_FAILED, got %v", err)
	}

	// Without an n-function the value is passed through.
	n, err := p.DecipherN(context.Background(), "keep")
	if err != nil || n != "keep" {
		t.Fatalf("DecipherN = %q, %v", n, err)
	}

	missing := c.Player(srv.URL + "/missing.js")
	if _, err := missing.DecipherN(context.Background(), "x"); err == nil {
		t.Fatal("expected download error")
	}
}

func TestTryOttoDecipher(t *testing.T) {
	tests := []struct {
		name      string
		playerJS  string
		signature string
		expected  string
		wantErr   bool
	}{
		{
			name:      "global decipher",
			playerJS:  "function decipher(a){return a.split('').reverse().join('');}",
			signature: "test_signature",
			expected:  "erutangis_tset",
		},
		{
			name:      "split/join entry point",
			playerJS:  `var Zz=function(a){a=a.split("");a=a.slice(1);return a.join("")};`,
			signature: "abcdef",
			expected:  "bcdef",
		},
		{
			name:      "empty player JS",
			signature: "test_signature",
			wantErr:   true,
		},
		{
			name:      "invalid player JS",
			playerJS:  "invalid javascript (",
			signature: "test_signature",
			wantErr:   true,
		},
		{
			name:      "no entry point",
			playerJS:  "var x = 1;",
			signature: "test_signature",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tryOttoDecipher(context.Background(), tt.playerJS, tt.signature)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("got %q want %q", result, tt.expected)
			}
		})
	}
}

func TestTryOttoDecipher_Canceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tryOttoDecipher(ctx, "while(true){}", "abc")
	if !IsJSError(err) {
		t.Fatalf("expected JS error on interrupt, got %v", err)
	}
}

func TestDecodeN(t *testing.T) {
	out, err := decodeN(testPlayerJS, "xyz")
	if err != nil {
		t.Fatalf("decodeN: %v", err)
	}
	if out != "zyx_x" {
		t.Fatalf("got %q", out)
	}

	legacy := `function ncode(a){return a.toUpperCase()}`
	if out, err := decodeN(legacy, "abc"); err != nil || out != "ABC" {
		t.Fatalf("ncode fallback = %q, %v", out, err)
	}

	if _, err := decodeN("var y=2;", "abc"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	failing := `function ncode(a){return "enhanced_except_" + a}`
	if _, err := decodeN(failing, "abc"); !IsJSError(err) {
		t.Fatalf("expected JS error, got %v", err)
	}
}

func TestExtractFunction(t *testing.T) {
	js := `var xNf=function(a){return 1};Nf=function(a){if(a){return "{"}return a};`
	src, ok := extractFunction(js, "Nf")
	if !ok {
		t.Fatal("function not found")
	}
	if !strings.HasPrefix(src, "function(a){if(a)") || !strings.HasSuffix(src, "return a}") {
		t.Fatalf("unexpected source %q", src)
	}
}

func TestNFunctionName(t *testing.T) {
	tests := []struct {
		js   string
		want string
		ok   bool
	}{
		{`a.get("n"))&&(b=Qz(b),c.set("n",b))`, "Qz", true},
		{`var Arr=[Ff,Gg];x.get("n"))&&(b=Arr[1](b)`, "Gg", true},
		{`x.get("n"))&&(b=Missing[0](b)`, "", false},
		{`nothing`, "", false},
	}
	for _, tt := range tests {
		got, ok := nFunctionName(tt.js)
		if ok != tt.ok || got != tt.want {
			t.Errorf("nFunctionName(%q) = %q, %v; want %q, %v", tt.js, got, ok, tt.want, tt.ok)
		}
	}
}
