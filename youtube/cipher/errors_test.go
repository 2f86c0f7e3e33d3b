package cipher

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/ytget/audiofetch/errs"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "error with details",
			err: &Error{
				Code:    ErrCodeSignatureDecipher,
				Message: "Failed to decipher",
				Details: map[string]any{"signature": "abc123"},
			},
			expected: "SIGNATURE_DECIPHER_FAILED: Failed to decipher (map[signature:abc123])",
		},
		{
			name: "error without details",
			err: &Error{
				Code:    ErrCodePlayerJSNotFound,
				Message: "Player.js not found",
			},
			expected: "PLAYER_JS_NOT_FOUND: Player.js not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_MarshalJSON(t *testing.T) {
	cause := errors.New("connection reset")
	e := NewError(ErrCodePlayerJSDownload, "failed to download player.js", cause)

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Failed to marshal error: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal error: %v", err)
	}
	if result["code"] != ErrCodePlayerJSDownload {
		t.Errorf("Wrong code in JSON: %v", result["code"])
	}
	if result["details"] != "connection reset" {
		t.Errorf("Wrong details in JSON: %v", result["details"])
	}
	if result["error"] != e.Error() {
		t.Errorf("Wrong error string in JSON: %v", result["error"])
	}
}

func TestError_Wrapping(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("resolve: %w", NewError(ErrCodeJSExecutionFailed, "failed", cause))

	if !errors.Is(wrapped, cause) {
		t.Error("expected cause to be reachable")
	}
	if !errors.Is(wrapped, errs.ErrCipherFailed) {
		t.Error("expected cipher errors to match errs.ErrCipherFailed")
	}
	if !IsJSError(wrapped) {
		t.Error("expected IsJSError through wrapping")
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		isNF    bool
		isInv   bool
		isJS    bool
		isRegex bool
	}{
		{name: "player.js not found", err: NewError(ErrCodePlayerJSNotFound, "Not found"), isNF: true},
		{name: "n-function not found", err: NewError(ErrCodeNFunctionNotFound, "Not found"), isNF: true},
		{name: "invalid", err: NewError(ErrCodeSignatureInvalid, "Invalid"), isInv: true},
		{name: "js execution", err: NewError(ErrCodeJSExecutionFailed, "JS failed"), isJS: true},
		{name: "js parsing", err: NewError(ErrCodeJSParsingFailed, "JS parse failed"), isJS: true},
		{name: "regex", err: NewError(ErrCodeRegexParsingFailed, "Regex failed"), isRegex: true},
		{name: "plain error", err: errors.New("x")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.isNF {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.isNF)
			}
			if got := IsInvalid(tt.err); got != tt.isInv {
				t.Errorf("IsInvalid() = %v, want %v", got, tt.isInv)
			}
			if got := IsJSError(tt.err); got != tt.isJS {
				t.Errorf("IsJSError() = %v, want %v", got, tt.isJS)
			}
			if got := IsRegexError(tt.err); got != tt.isRegex {
				t.Errorf("IsRegexError() = %v, want %v", got, tt.isRegex)
			}
		})
	}
}
