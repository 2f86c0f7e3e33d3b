package botguard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode defines how Botguard solving is used.
type Mode int

const (
	// Off disables Botguard usage entirely.
	Off Mode = iota
	// Auto runs attestation after a 403 from the player endpoint.
	Auto
	// Force always runs attestation before the player request.
	Force
)

// ParseMode parses "off", "auto" or "force".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return Off, nil
	case "auto":
		return Auto, nil
	case "force":
		return Force, nil
	default:
		return Off, fmt.Errorf("unknown botguard mode: %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Force:
		return "force"
	default:
		return "off"
	}
}

// Input carries the parameters required to perform Botguard attestation.
type Input struct {
	UserAgent        string
	PageURL          string
	ClientName       string
	ClientVersion    string
	VisitorID        string
	AdditionalParams map[string]string
}

// Output contains attestation result to be applied to Innertube requests.
type Output struct {
	Token     string
	ExpiresAt time.Time
	Metadata  map[string]string
}

// Expired reports whether o carries an expiry in the past.
func (o Output) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

// Solver is an interface for Botguard attestation providers.
type Solver interface {
	Attest(ctx context.Context, input Input) (Output, error)
}

// Cache stores Botguard outputs keyed by input characteristics.
type Cache interface {
	Get(key string) (Output, bool)
	Set(key string, value Output)
}

// KeyFromInput derives a cache key from Input fields that influence the attestation result.
func KeyFromInput(in Input) string {
	return in.UserAgent + "|" + in.ClientName + "|" + in.ClientVersion + "|" + in.VisitorID
}
