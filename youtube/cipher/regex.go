package cipher

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

type regexStep struct {
	op  string // rev, spl, swp
	arg int
}

const jsIdent = `[a-zA-Z_$][a-zA-Z_0-9$]*`

var (
	regexParseMu    sync.Mutex
	regexParseCache = make(map[string][]regexStep)

	// X(a){a=a.split("");...;return a.join("")}
	sigFuncRe = regexp.MustCompile(`\(\s*(` + jsIdent + `)\s*\)\s*\{\s*(` + jsIdent + `)\s*=\s*(` + jsIdent + `)\.split\(""\)\s*;([\s\S]*?)return\s+(` + jsIdent + `)\.join\(""\)\s*\}`)
	// OBJ.fn(a,N), OBJ["fn"](a,N), a=OBJ.fn(a,N)
	objCallRe      = regexp.MustCompile(`^(?:` + jsIdent + `\s*=\s*)?(` + jsIdent + `)(?:\.(` + jsIdent + `)|\[["'](` + jsIdent + `)["']\])\(\s*` + jsIdent + `\s*,\s*(\d+)\s*\)$`)
	inlineRevRe    = regexp.MustCompile(`^(?:` + jsIdent + `\s*=\s*)?` + jsIdent + `\.reverse\(\)$`)
	inlineSpliceRe = regexp.MustCompile(`^(?:` + jsIdent + `\s*=\s*)?` + jsIdent + `\.splice\(\s*0\s*,\s*(\d+)\s*\)$`)
	methodRe       = regexp.MustCompile(`(` + jsIdent + `)\s*:\s*function\s*\([^)]*\)\s*\{([^}]*)\}`)
)

func cacheKeyForJS(playerJS string) string {
	h := sha1.Sum([]byte(playerJS))
	return hex.EncodeToString(h[:])
}

// tryRegexDecipher parses the transform sequence out of player.js and
// applies it to signature without running any JavaScript.
func tryRegexDecipher(playerJS string, signature string) (string, bool) {
	key := cacheKeyForJS(playerJS)

	regexParseMu.Lock()
	steps, ok := regexParseCache[key]
	regexParseMu.Unlock()

	if !ok {
		steps = parseSteps(playerJS)
		regexParseMu.Lock()
		regexParseCache[key] = steps
		regexParseMu.Unlock()
	}
	if len(steps) == 0 {
		return "", false
	}
	return applySteps(steps, signature), true
}

func applySteps(steps []regexStep, signature string) string {
	r := []rune(signature)
	for _, st := range steps {
		switch st.op {
		case "rev":
			r = regexReverse(r)
		case "spl":
			r = regexSplice(r, st.arg)
		case "swp":
			r = regexSwap(r, st.arg)
		}
	}
	return string(r)
}

// parseSteps returns nil when any statement of the decipher function is not understood.
func parseSteps(playerJS string) []regexStep {
	for _, m := range sigFuncRe.FindAllStringSubmatch(playerJS, -1) {
		param := m[1]
		if m[2] != param || m[3] != param || m[5] != param {
			continue
		}
		if steps := parseBody(playerJS, m[4]); len(steps) > 0 {
			return steps
		}
	}
	return nil
}

func parseBody(playerJS, body string) []regexStep {
	var (
		steps   []regexStep
		objOps  map[string]string
		objName string
	)
	for _, stmt := range strings.Split(body, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if inlineRevRe.MatchString(stmt) {
			steps = append(steps, regexStep{op: "rev"})
			continue
		}
		if m := inlineSpliceRe.FindStringSubmatch(stmt); m != nil {
			n, _ := strconv.Atoi(m[1])
			steps = append(steps, regexStep{op: "spl", arg: n})
			continue
		}
		m := objCallRe.FindStringSubmatch(stmt)
		if m == nil {
			return nil
		}
		if objOps == nil || objName != m[1] {
			objName = m[1]
			objOps = transformOps(playerJS, objName)
		}
		fn := m[2]
		if fn == "" {
			fn = m[3]
		}
		op, ok := objOps[fn]
		if !ok {
			return nil
		}
		n, _ := strconv.Atoi(m[4])
		steps = append(steps, regexStep{op: op, arg: n})
	}
	return steps
}

// transformOps maps method names of the transform object obj to operations.
func transformOps(playerJS, obj string) map[string]string {
	ops := make(map[string]string)
	objBody, ok := extractObjectLiteral(playerJS, obj)
	if !ok {
		return ops
	}
	for _, fm := range methodRe.FindAllStringSubmatch(objBody, -1) {
		name, fbody := fm[1], fm[2]
		switch {
		case strings.Contains(fbody, ".reverse()"):
			ops[name] = "rev"
		case strings.Contains(fbody, ".splice("):
			ops[name] = "spl"
		case strings.Contains(fbody, "[0]") && (strings.Contains(fbody, "%") || strings.Contains(fbody, "var c")):
			ops[name] = "swp"
		}
	}
	return ops
}

func extractObjectLiteral(playerJS, obj string) (string, bool) {
	re := regexp.MustCompile(`(?:var|let|const)\s+` + regexp.QuoteMeta(obj) + `\s*=\s*\{`)
	loc := re.FindStringIndex(playerJS)
	if loc == nil {
		return "", false
	}
	end, ok := matchBrace(playerJS, loc[1]-1)
	if !ok {
		return "", false
	}
	return playerJS[loc[1] : end-1], true
}

func regexReverse(s []rune) []rune {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}

func regexSplice(s []rune, n int) []rune {
	if n < 0 || n > len(s) {
		return s
	}
	return s[n:]
}

func regexSwap(s []rune, n int) []rune {
	if len(s) <= 1 {
		return s
	}
	n = n % len(s)
	if n < 0 {
		n += len(s)
	}
	s[0], s[n] = s[n], s[0]
	return s
}
