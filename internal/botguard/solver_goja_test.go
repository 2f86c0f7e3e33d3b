package botguard

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func writeScript(t *testing.T, fsys afero.Fs, body string) string {
	t.Helper()
	if err := afero.WriteFile(fsys, "/bg.js", []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return "/bg.js"
}

func TestGojaSolver_StringToken(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := writeScript(t, fsys, `function bgAttest(input) { return "tok-" + input.ClientName; }`)

	out, err := NewGojaSolver(fsys, path).Attest(context.Background(), Input{ClientName: "ANDROID"})
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	if out.Token != "tok-ANDROID" {
		t.Fatalf("token = %q", out.Token)
	}
}

func TestGojaSolver_ObjectToken(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := writeScript(t, fsys, `function bgAttest(input) { return { token: "abc", ttlSeconds: 60 }; }`)

	out, err := NewGojaSolver(fsys, path).Attest(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	if out.Token != "abc" {
		t.Fatalf("token = %q", out.Token)
	}
	if out.ExpiresAt.Before(time.Now().Add(30 * time.Second)) {
		t.Fatalf("unexpected expiry %v", out.ExpiresAt)
	}
}

func TestGojaSolver_Errors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if _, err := NewGojaSolver(fsys, "").Attest(context.Background(), Input{}); err == nil {
		t.Error("expected error for empty script path")
	}
	if _, err := NewGojaSolver(fsys, "/missing.js").Attest(context.Background(), Input{}); err == nil {
		t.Error("expected error for missing script")
	}
	path := writeScript(t, fsys, `var x = 1;`)
	if _, err := NewGojaSolver(fsys, path).Attest(context.Background(), Input{}); err == nil {
		t.Error("expected error when bgAttest is missing")
	}
}
