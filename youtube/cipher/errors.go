package cipher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ytget/audiofetch/errs"
)

// Error codes
const (
	ErrCodePlayerJSNotFound   = "PLAYER_JS_NOT_FOUND"
	ErrCodePlayerJSDownload   = "PLAYER_JS_DOWNLOAD_FAILED"
	ErrCodeSignatureDecipher  = "SIGNATURE_DECIPHER_FAILED"
	ErrCodeSignatureInvalid   = "SIGNATURE_INVALID"
	ErrCodeNFunctionNotFound  = "N_FUNCTION_NOT_FOUND"
	ErrCodeJSExecutionFailed  = "JS_EXECUTION_FAILED"
	ErrCodeJSParsingFailed    = "JS_PARSING_FAILED"
	ErrCodeRegexParsingFailed = "REGEX_PARSING_FAILED"
)

// Error represents a structured error with code and details
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes Details when it is itself an error.
func (e *Error) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// Is makes every cipher error match errs.ErrCipherFailed.
func (e *Error) Is(target error) bool {
	return target == errs.ErrCipherFailed
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	alias := *e
	if err, ok := alias.Details.(error); ok {
		alias.Details = err.Error()
	}
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(&alias),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and message
func NewError(code string, message string, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

func hasCode(err error, codes ...string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}

// IsNotFound returns true if player.js or one of its functions could not be located.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodePlayerJSNotFound, ErrCodeNFunctionNotFound)
}

// IsInvalid returns true if the error is an invalid signature error
func IsInvalid(err error) bool {
	return hasCode(err, ErrCodeSignatureInvalid)
}

// IsJSError returns true if the error is a JavaScript execution error
func IsJSError(err error) bool {
	return hasCode(err, ErrCodeJSExecutionFailed, ErrCodeJSParsingFailed)
}

// IsRegexError returns true if the error is a regex parsing error
func IsRegexError(err error) bool {
	return hasCode(err, ErrCodeRegexParsingFailed)
}
