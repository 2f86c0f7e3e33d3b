// Package command runs external tools and finds working installations of them.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/samber/lo"

	"github.com/ytget/audiofetch/errs"
	"github.com/ytget/audiofetch/internal/logger"
)

// Runner runs external commands. It lets tests replace os/exec.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec is the production Runner built on os/exec.
type Exec struct{}

// Output runs the command and returns its stdout. On failure the last
// line of stderr is folded into the error.
func (Exec) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := LastLine(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return out, fmt.Errorf("%s: %w", name, ctxErr)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// LastLine returns the last non-blank line of s.
func LastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// Tool describes an external binary and how to check that it runs.
type Tool struct {
	Name        string
	VersionArgs []string
	Component   logger.Component
}

// Locate returns the first candidate that answers tool.VersionArgs.
// Blank and repeated candidates are skipped. When none works the error
// wraps errs.ErrDependencyUnavailable.
func Locate(ctx context.Context, runner Runner, tool Tool, candidates ...string) (string, error) {
	log := logger.WithComponent(tool.Component)
	candidates = lo.Uniq(lo.Compact(lo.Map(candidates, func(c string, _ int) string {
		return strings.TrimSpace(c)
	})))

	for _, c := range candidates {
		out, err := runner.Output(ctx, c, tool.VersionArgs...)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Debug("Candidate rejected", map[string]interface{}{"tool": tool.Name, "path": c, "error": err.Error()})
			continue
		}
		log.Debug("Using "+tool.Name, map[string]interface{}{"path": c, "version": firstLine(string(out))})
		return c, nil
	}
	return "", fmt.Errorf("%w: %s not found (tried %s)", errs.ErrDependencyUnavailable, tool.Name, strings.Join(candidates, ", "))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
