package client

import (
	"net/url"
	"testing"

	"github.com/spf13/afero"
)

const cookiesTxt = "# Netscape HTTP Cookie File\n" +
	"# This is a generated file! Do not edit.\n" +
	"\n" +
	".youtube.com\tTRUE\t/\tTRUE\t4102444800\tPREF\tf6=40000000\n" +
	"#HttpOnly_.youtube.com\tTRUE\t/\tTRUE\t4102444800\tLOGIN_INFO\tabc\n" +
	"www.youtube.com\tFALSE\t/\tFALSE\t0\tVISITOR\tv1\n" +
	"broken line\n"

func TestParseCookiesFile(t *testing.T) {
	entries, skipped := ParseCookiesFile([]byte(cookiesTxt))
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	pref := entries[0]
	if pref.Host != "youtube.com" || pref.Cookie.Domain != "youtube.com" {
		t.Errorf("unexpected domain handling: %+v", pref)
	}
	if !pref.Cookie.Secure || pref.Cookie.Expires.Unix() != 4102444800 {
		t.Errorf("unexpected attributes: %+v", pref.Cookie)
	}
	if !entries[1].Cookie.HttpOnly || entries[1].Cookie.Name != "LOGIN_INFO" {
		t.Errorf("HttpOnly prefix not handled: %+v", entries[1].Cookie)
	}
	if entries[2].Cookie.Domain != "" || !entries[2].Cookie.Expires.IsZero() {
		t.Errorf("host-only session cookie mishandled: %+v", entries[2].Cookie)
	}
}

func TestLoadCookieJar(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/tmp/cookies.txt", []byte(cookiesTxt), 0o600); err != nil {
		t.Fatal(err)
	}

	jar, err := LoadCookieJar(fsys, "/tmp/cookies.txt")
	if err != nil {
		t.Fatalf("LoadCookieJar: %v", err)
	}

	u, _ := url.Parse("https://www.youtube.com/watch?v=abc")
	names := map[string]bool{}
	for _, c := range jar.Cookies(u) {
		names[c.Name] = true
	}
	for _, want := range []string{"PREF", "LOGIN_INFO", "VISITOR"} {
		if !names[want] {
			t.Errorf("cookie %s missing from jar (got %v)", want, names)
		}
	}

	music, _ := url.Parse("https://music.youtube.com/")
	for _, c := range jar.Cookies(music) {
		if c.Name == "VISITOR" {
			t.Error("host-only cookie leaked to another host")
		}
	}
}

func TestLoadCookieJar_Missing(t *testing.T) {
	if _, err := LoadCookieJar(afero.NewMemMapFs(), "/nope.txt"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
