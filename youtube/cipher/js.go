package cipher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"
)

const (
	decipherFuncName = "decipher"
	ncodeFuncName    = "ncode"
	nFuncAlias       = "audiofetchNFunction"
	jsEvalTimeout    = 10 * time.Second
)

var (
	nFunctionNameRegexps = []*regexp.Regexp{
		// b=XY[0](b) or b=XY(b)
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]+)(?:\[(\d+)\])?\([a-zA-Z0-9$]+\)`),
		// Some variants use optional chaining / looser spacing.
		regexp.MustCompile(`\.get\("n"\).*?&&.*?([a-zA-Z0-9$]{2,})(?:\[(\d+)\])?\([a-zA-Z0-9$]+\)`),
	}
	// X=function(a){a=a.split("") ... used to find the signature entry point for otto.
	sigEntryRe = regexp.MustCompile(`(` + jsIdent + `)\s*=\s*function\(\s*(` + jsIdent + `)\s*\)\s*\{\s*(` + jsIdent + `)\s*=\s*(` + jsIdent + `)\.split\(""\)`)

	errHalt = errors.New("javascript evaluation interrupted")
)

// matchBrace returns the index just past the brace closing the one at open.
// Braces inside string literals are ignored.
func matchBrace(js string, open int) (int, bool) {
	if open < 0 || open >= len(js) || js[open] != '{' {
		return 0, false
	}
	var strChar byte
	depth := 0
	for pos := open; pos < len(js); pos++ {
		b := js[pos]
		switch b {
		case '\\':
			if strChar != 0 {
				pos++
			}
		case '`', '"', '\'':
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		case '{':
			if strChar == 0 {
				depth++
			}
		case '}':
			if strChar == 0 {
				depth--
				if depth == 0 {
					return pos + 1, true
				}
			}
		}
	}
	return 0, false
}

// extractFunction returns the source of the function named name, starting at "function(".
func extractFunction(js, name string) (string, bool) {
	defPatterns := []string{
		name + "=function(",
		name + " = function(",
		"function " + name + "(",
	}
	for _, def := range defPatterns {
		start := indexIdent(js, def)
		if start < 0 {
			continue
		}
		fnStart := strings.Index(js[start:], "function")
		open := strings.IndexByte(js[start:], '{')
		if fnStart < 0 || open < 0 {
			continue
		}
		end, ok := matchBrace(js, start+open)
		if !ok {
			continue
		}
		src := js[start+fnStart : end]
		if strings.HasPrefix(def, "function ") {
			// Drop the name so the source can be used as an expression.
			src = "function" + strings.TrimPrefix(src, "function "+name)
		}
		return src, true
	}
	return "", false
}

// indexIdent is strings.Index that skips matches preceded by an identifier character.
func indexIdent(js, def string) int {
	offset := 0
	for {
		i := strings.Index(js[offset:], def)
		if i < 0 {
			return -1
		}
		i += offset
		if i == 0 || !isIdentByte(js[i-1]) {
			return i
		}
		offset = i + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// nFunctionName locates the n-transform function, resolving XY[i] through the
// array literal it indexes.
func nFunctionName(js string) (string, bool) {
	for _, re := range nFunctionNameRegexps {
		m := re.FindStringSubmatch(js)
		if m == nil {
			continue
		}
		name := m[1]
		if m[2] == "" {
			return name, true
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		arrRe := regexp.MustCompile(`(?:var|let|const)\s+` + regexp.QuoteMeta(name) + `\s*=\s*\[([^\]]*)\]`)
		am := arrRe.FindStringSubmatch(js)
		if am == nil {
			continue
		}
		elems := strings.Split(am[1], ",")
		if idx < len(elems) {
			return strings.TrimSpace(elems[idx]), true
		}
	}
	return "", false
}

// decodeN evaluates the n-transform function of playerJS with goja.
func decodeN(playerJS, nval string) (string, error) {
	name, ok := nFunctionName(playerJS)
	if !ok {
		name = ncodeFuncName
	}
	src, ok := extractFunction(playerJS, name)
	if !ok {
		return "", NewError(ErrCodeNFunctionNotFound, "unable to extract n-function", name)
	}
	out, err := evalGoja(src, nval)
	if err != nil {
		return "", NewError(ErrCodeJSExecutionFailed, "n-function evaluation failed", err)
	}
	// A failing n-function returns an "enhanced_except_" marker instead of throwing.
	if out == "" || strings.HasPrefix(out, "enhanced_except_") {
		return "", NewError(ErrCodeJSExecutionFailed, "n-function returned an error marker", out)
	}
	return out, nil
}

func evalGoja(jsFunction, arg string) (out string, err error) {
	vm := goja.New()
	timer := time.AfterFunc(jsEvalTimeout, func() { vm.Interrupt(errHalt) })
	defer timer.Stop()

	if _, err := vm.RunString(nFuncAlias + "=" + jsFunction); err != nil {
		return "", err
	}
	fn, ok := goja.AssertFunction(vm.Get(nFuncAlias))
	if !ok {
		return "", fmt.Errorf("%s is not a function", nFuncAlias)
	}
	v, err := fn(goja.Undefined(), vm.ToValue(arg))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// tryOttoDecipher runs the whole player.js in otto and calls its signature
// entry point: a global decipher() or the split/join function found in it.
func tryOttoDecipher(ctx context.Context, playerJS string, signature string) (out string, err error) {
	if strings.TrimSpace(playerJS) == "" {
		return "", NewError(ErrCodeJSParsingFailed, "empty player.js")
	}

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt <- func() { panic(errHalt) }
	})
	defer stop()
	defer func() {
		if r := recover(); r != nil {
			if r == errHalt {
				err = NewError(ErrCodeJSExecutionFailed, "otto interrupted", ctx.Err())
				return
			}
			err = NewError(ErrCodeJSExecutionFailed, "otto panic", fmt.Sprint(r))
		}
	}()

	if _, err := vm.Run(playerJS); err != nil {
		return "", NewError(ErrCodeJSParsingFailed, "failed to run player.js in otto", err)
	}

	names := []string{decipherFuncName}
	if m := sigEntryRe.FindStringSubmatch(playerJS); m != nil && m[2] == m[3] && m[3] == m[4] {
		names = append(names, m[1])
	}
	for _, name := range names {
		fn, gerr := vm.Get(name)
		if gerr != nil || !fn.IsFunction() {
			continue
		}
		value, cerr := vm.Call(name, nil, signature)
		if cerr != nil {
			return "", NewError(ErrCodeJSExecutionFailed, "failed to call "+name, cerr)
		}
		return value.ToString()
	}
	return "", NewError(ErrCodeSignatureDecipher, "no decipher function in player.js")
}
