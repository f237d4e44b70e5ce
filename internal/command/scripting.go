package command

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cedis/server/internal/resp"
)

// Scripting commands (EVAL/EVALSHA/SCRIPT) implement only the integration
// contract spec.md §6 names: a digest-keyed script cache and a way to run
// a script against the store. The scripting *language* itself is
// explicitly out of scope, and no Lua runtime exists anywhere in the
// reference pack to ground a real one against, so scripts here are a
// small, deliberately constrained statement language: one `redis.call(...)`
// or `redis.pcall(...)` invocation per statement (arguments are quoted
// strings, KEYS[n]/ARGV[n] references, or bare numeric/string literals),
// optionally prefixed with `return`. It is a placeholder standing in for
// the Lua sandbox the original embeds via
// mlua, not a feature reduction of the original's scripting surface.
func (d *Dispatcher) registerScriptingCommands() {
	d.add("EVAL", 3, true, cmdEval)
	d.add("EVALSHA", 3, true, cmdEvalSha)
	d.add("SCRIPT", 2, false, cmdScript)
}

func scriptSHA1(src string) string {
	sum := sha1.Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}

func splitScriptKeysArgs(args [][]byte, numKeys int64) ([][]byte, [][]byte, resp.Value) {
	if numKeys < 0 || int(numKeys) > len(args)-3 {
		return nil, nil, resp.Error("ERR Number of keys can't be greater than number of args")
	}
	keys := args[3 : 3+numKeys]
	argv := args[3+numKeys:]
	return keys, argv, resp.Value{}
}

func cmdEval(ctx *Context, args [][]byte) resp.Value {
	src := string(args[1])
	numKeys, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	keys, argv, errv := splitScriptKeysArgs(args, numKeys)
	if errv.Kind == resp.KindError {
		return errv
	}
	d := ctx.Disp
	d.ScriptMu.Lock()
	d.Scripts[scriptSHA1(src)] = src
	d.ScriptMu.Unlock()
	return runScript(ctx, src, keys, argv)
}

func cmdEvalSha(ctx *Context, args [][]byte) resp.Value {
	sha := strings.ToLower(string(args[1]))
	numKeys, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	d := ctx.Disp
	d.ScriptMu.Lock()
	src, ok := d.Scripts[sha]
	d.ScriptMu.Unlock()
	if !ok {
		return resp.Error("NOSCRIPT No matching script. Please use EVAL.")
	}
	keys, argv, errv := splitScriptKeysArgs(args, numKeys)
	if errv.Kind == resp.KindError {
		return errv
	}
	return runScript(ctx, src, keys, argv)
}

func cmdScript(ctx *Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[1]))
	d := ctx.Disp
	switch sub {
	case "LOAD":
		if len(args) < 3 {
			return syntaxError()
		}
		src := string(args[2])
		sha := scriptSHA1(src)
		d.ScriptMu.Lock()
		d.Scripts[sha] = src
		d.ScriptMu.Unlock()
		return resp.BulkString(sha)
	case "EXISTS":
		d.ScriptMu.Lock()
		out := make([]resp.Value, len(args)-2)
		for i, a := range args[2:] {
			if _, ok := d.Scripts[strings.ToLower(string(a))]; ok {
				out[i] = resp.Integer(1)
			} else {
				out[i] = resp.Integer(0)
			}
		}
		d.ScriptMu.Unlock()
		return resp.Array(out)
	case "FLUSH":
		d.ScriptMu.Lock()
		d.Scripts = make(map[string]string)
		d.ScriptMu.Unlock()
		return resp.OK()
	default:
		return resp.Error("ERR Unknown SCRIPT subcommand or wrong number of arguments")
	}
}

// scriptCall runs one redis.call-equivalent against the store directly,
// bypassing Dispatch's top-level gating (the enclosing EVAL/EVALSHA already
// passed it) and its persist/propagate tail — the whole script is teed to
// the AOF and replicas as the single EVAL command that invoked it. Touched
// keys are forwarded to the enclosing Context so the outer Dispatch still
// wakes any blocked waiters once the script completes.
func scriptCall(ctx *Context, name string, args [][]byte) resp.Value {
	d := ctx.Disp
	upper := strings.ToUpper(name)
	spec, ok := d.commands[upper]
	if !ok {
		return resp.Error("ERR Unknown Redis command called from script")
	}
	full := append([][]byte{[]byte(upper)}, args...)
	if len(full) < spec.Arity {
		return resp.Error("ERR Wrong number of args calling Redis command from script")
	}
	inner := &Context{Client: ctx.Client, Disp: d}
	result := spec.Handler(inner, full)
	ctx.touched = append(ctx.touched, inner.touched...)
	return result
}

func runScript(ctx *Context, src string, keys, argv [][]byte) resp.Value {
	for _, stmt := range splitScriptStatements(src) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		isReturn := false
		if stmt == "return" {
			return resp.NullBulk()
		}
		if strings.HasPrefix(stmt, "return ") {
			isReturn = true
			stmt = strings.TrimSpace(stmt[len("return "):])
		}
		val, err := evalScriptExpr(ctx, stmt, keys, argv)
		if err != nil {
			return resp.Error("ERR " + err.Error())
		}
		if isReturn {
			return val
		}
	}
	return resp.NullBulk()
}

// splitScriptStatements splits on ';' and newlines that are not inside a
// quoted string.
func splitScriptStatements(src string) []string {
	var out []string
	var cur strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inQuote != 0 {
			cur.WriteByte(c)
			if c == inQuote && (i == 0 || src[i-1] != '\\') {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
			cur.WriteByte(c)
		case ';', '\n':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func evalScriptExpr(ctx *Context, expr string, keys, argv [][]byte) (resp.Value, error) {
	if strings.HasPrefix(expr, "redis.call(") || strings.HasPrefix(expr, "redis.pcall(") {
		if !strings.HasSuffix(expr, ")") {
			return resp.Value{}, fmt.Errorf("malformed redis.call expression")
		}
		open := strings.IndexByte(expr, '(')
		inner := expr[open+1 : len(expr)-1]
		rawArgs, err := splitScriptArgs(inner)
		if err != nil {
			return resp.Value{}, err
		}
		callArgs := make([][]byte, 0, len(rawArgs))
		for _, a := range rawArgs {
			resolved, err := resolveScriptArg(a, keys, argv)
			if err != nil {
				return resp.Value{}, err
			}
			callArgs = append(callArgs, resolved)
		}
		if len(callArgs) == 0 {
			return resp.Value{}, fmt.Errorf("redis.call requires a command name")
		}
		return scriptCall(ctx, string(callArgs[0]), callArgs[1:]), nil
	}
	return evalScriptLiteral(expr)
}

// splitScriptArgs splits a redis.call(...) argument list on top-level
// commas, respecting single/double-quoted strings.
func splitScriptArgs(s string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			cur.WriteByte(c)
			if c == inQuote && (i == 0 || s[i-1] != '\\') {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
			cur.WriteByte(c)
		case ',':
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("unterminated string literal in script")
	}
	trimmed := strings.TrimSpace(cur.String())
	if trimmed != "" || len(out) > 0 {
		out = append(out, trimmed)
	}
	return out, nil
}

func resolveScriptArg(a string, keys, argv [][]byte) ([]byte, error) {
	a = strings.TrimSpace(a)
	if len(a) >= 2 && (a[0] == '\'' || a[0] == '"') && a[len(a)-1] == a[0] {
		unquoted := a[1 : len(a)-1]
		unquoted = strings.ReplaceAll(unquoted, `\'`, `'`)
		unquoted = strings.ReplaceAll(unquoted, `\"`, `"`)
		return []byte(unquoted), nil
	}
	if strings.HasPrefix(a, "KEYS[") && strings.HasSuffix(a, "]") {
		idx, err := strconv.Atoi(a[len("KEYS[") : len(a)-1])
		if err != nil || idx < 1 || idx > len(keys) {
			return nil, fmt.Errorf("KEYS index out of range")
		}
		return keys[idx-1], nil
	}
	if strings.HasPrefix(a, "ARGV[") && strings.HasSuffix(a, "]") {
		idx, err := strconv.Atoi(a[len("ARGV[") : len(a)-1])
		if err != nil || idx < 1 || idx > len(argv) {
			return nil, fmt.Errorf("ARGV index out of range")
		}
		return argv[idx-1], nil
	}
	if a == "#KEYS" {
		return []byte(strconv.Itoa(len(keys))), nil
	}
	if a == "#ARGV" {
		return []byte(strconv.Itoa(len(argv))), nil
	}
	return []byte(a), nil
}

func evalScriptLiteral(expr string) (resp.Value, error) {
	switch expr {
	case "nil", "false":
		return resp.NullBulk(), nil
	case "true":
		return resp.Integer(1), nil
	}
	if len(expr) >= 2 && (expr[0] == '\'' || expr[0] == '"') && expr[len(expr)-1] == expr[0] {
		return resp.BulkString(expr[1 : len(expr)-1]), nil
	}
	if n, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return resp.Integer(n), nil
	}
	return resp.BulkString(expr), nil
}
