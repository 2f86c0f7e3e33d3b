package botguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/spf13/afero"
)

// GojaSolver executes a user-provided JS file to produce Botguard tokens.
// The script must define a global function `bgAttest(input)` returning a string token
// or an object { token: string, ttlSeconds?: number }.
type GojaSolver struct {
	fs         afero.Fs
	scriptPath string
}

// NewGojaSolver returns a solver reading scriptPath from fsys (the OS filesystem when nil).
func NewGojaSolver(fsys afero.Fs, scriptPath string) *GojaSolver {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &GojaSolver{fs: fsys, scriptPath: scriptPath}
}

func (s *GojaSolver) Attest(ctx context.Context, input Input) (Output, error) {
	if s == nil || s.scriptPath == "" {
		return Output{}, errors.New("goja solver: script path not set")
	}
	script, err := afero.ReadFile(s.fs, s.scriptPath)
	if err != nil {
		return Output{}, fmt.Errorf("read script: %w", err)
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	_ = vm.Set("console", map[string]any{"log": func(...any) {}})

	inJSON, _ := json.Marshal(input)
	var inObj map[string]any
	_ = json.Unmarshal(inJSON, &inObj)
	_ = vm.Set("__bgInput", inObj)

	if _, err := vm.RunScript(s.scriptPath, string(script)); err != nil {
		return Output{}, fmt.Errorf("run script: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get("bgAttest"))
	if !ok {
		return Output{}, errors.New("bgAttest function not found in script")
	}
	res, err := fn(goja.Undefined(), vm.Get("__bgInput"))
	if err != nil {
		return Output{}, fmt.Errorf("bgAttest error: %w", err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return Output{}, errors.New("bgAttest returned undefined/null")
	}

	var out Output
	if str, ok := res.Export().(string); ok {
		out.Token = str
		return out, nil
	}
	obj := res.ToObject(vm)
	if v := obj.Get("token"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		out.Token = v.String()
	}
	if v := obj.Get("ttlSeconds"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		if n := v.ToInteger(); n > 0 {
			out.ExpiresAt = time.Now().Add(time.Duration(n) * time.Second)
		}
	}
	if out.Token == "" {
		return Output{}, errors.New("bgAttest returned empty token")
	}
	return out, nil
}
