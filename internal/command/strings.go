package command

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

func (d *Dispatcher) registerStringCommands() {
	d.add("GET", 2, false, cmdGet)
	d.add("SET", 3, true, cmdSet)
	d.add("SETNX", 3, true, cmdSetNX)
	d.add("SETEX", 4, true, cmdSetEX)
	d.add("PSETEX", 4, true, cmdPSetEX)
	d.add("GETSET", 3, true, cmdGetSet)
	d.add("GETDEL", 2, true, cmdGetDel)
	d.add("GETEX", 2, true, cmdGetEx)
	d.add("MGET", 2, false, cmdMGet)
	d.add("MSET", 3, true, cmdMSet)
	d.add("MSETNX", 3, true, cmdMSetNX)
	d.add("MSETEX", 4, true, cmdMSetEX)
	d.add("APPEND", 3, true, cmdAppend)
	d.add("STRLEN", 2, false, cmdStrlen)
	d.add("INCR", 2, true, cmdIncr)
	d.add("DECR", 2, true, cmdDecr)
	d.add("INCRBY", 3, true, cmdIncrBy)
	d.add("DECRBY", 3, true, cmdDecrBy)
	d.add("INCRBYFLOAT", 3, true, cmdIncrByFloat)
	d.add("GETRANGE", 4, false, cmdGetRange)
	d.add("SUBSTR", 4, false, cmdGetRange)
	d.add("SETRANGE", 4, true, cmdSetRange)
	d.add("LCS", 3, false, cmdLCS)
	d.add("DIGEST", 2, false, cmdDigest)
	d.add("DELEX", 2, true, cmdDelEx)
}

func getRString(ctx *Context, key string) (*store.RString, bool, resp.Value) {
	e, ok := ctx.DB().Get(key, store.NowMillis())
	if !ok {
		return nil, false, resp.Value{}
	}
	rs, ok := e.Value.(*store.RString)
	if !ok {
		return nil, false, wrongType()
	}
	return rs, true, resp.Value{}
}

func cmdGet(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	rs, ok, errv := getRString(ctx, string(args[1]))
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(rs.Data)
}

func cmdSet(ctx *Context, args [][]byte) resp.Value {
	key, val := string(args[1]), args[2]
	var exMs *int64
	nx, xx, keepTTL, get := false, false, false, false
	var ifeqVal, ifneVal []byte
	var ifdeqDigest, ifdneDigest string
	hasIfeq, hasIfne, hasIfdeq, hasIfdne := false, false, false, false
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GET":
			get = true
		case "KEEPTTL":
			keepTTL = true
		case "EX", "PX", "EXAT", "PXAT":
			opt := strings.ToUpper(string(args[i]))
			if i+1 >= len(args) {
				return syntaxError()
			}
			i++
			n, err := parseInt(args[i])
			if err != nil {
				return notInteger()
			}
			now := store.NowMillis()
			switch opt {
			case "EX":
				exMs = store.ExpireAt(now + n*1000)
			case "PX":
				exMs = store.ExpireAt(now + n)
			case "EXAT":
				exMs = store.ExpireAt(n * 1000)
			case "PXAT":
				exMs = store.ExpireAt(n)
			}
		case "IFEQ":
			if i+1 >= len(args) {
				return syntaxError()
			}
			i++
			ifeqVal = args[i]
			hasIfeq = true
		case "IFNE":
			if i+1 >= len(args) {
				return syntaxError()
			}
			i++
			ifneVal = args[i]
			hasIfne = true
		case "IFDEQ":
			if i+1 >= len(args) {
				return syntaxError()
			}
			i++
			ifdeqDigest = string(args[i])
			hasIfdeq = true
		case "IFDNE":
			if i+1 >= len(args) {
				return syntaxError()
			}
			i++
			ifdneDigest = string(args[i])
			hasIfdne = true
		default:
			return syntaxError()
		}
	}

	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	existing, exists := db.Get(key, now)

	var oldVal resp.Value = resp.NullBulk()
	var existingData []byte
	if exists {
		rs, ok := existing.Value.(*store.RString)
		if !ok {
			return wrongType()
		}
		existingData = rs.Data
	}
	if get && exists {
		oldVal = resp.Bulk(existingData)
	}

	// IFEQ/IFNE/IFDEQ/IFDNE value-equivalence conditions (spec.md §6), checked
	// in this precedence order and before NX/XX, matching
	// original_source/src/command/string.rs's cmd_set.
	if hasIfeq || hasIfne || hasIfdeq || hasIfdne {
		var conditionMet bool
		switch {
		case hasIfeq:
			conditionMet = exists && bytes.Equal(existingData, ifeqVal)
		case hasIfne:
			conditionMet = !exists || !bytes.Equal(existingData, ifneVal)
		case hasIfdeq:
			if !isValidDigest(ifdeqDigest) {
				return resp.Error("ERR The digest must be exactly 16 hexadecimal characters")
			}
			conditionMet = exists && strings.EqualFold(valueDigest(existingData), ifdeqDigest)
		case hasIfdne:
			if !isValidDigest(ifdneDigest) {
				return resp.Error("ERR The digest must be exactly 16 hexadecimal characters")
			}
			conditionMet = !exists || !strings.EqualFold(valueDigest(existingData), ifdneDigest)
		}
		if !conditionMet {
			return oldVal
		}
	}

	if nx && exists {
		if get {
			return oldVal
		}
		return resp.NullBulk()
	}
	if xx && !exists {
		if get {
			return oldVal
		}
		return resp.NullBulk()
	}

	cp := make([]byte, len(val))
	copy(cp, val)
	if keepTTL && exists {
		exMs = existing.ExpiresAt
	}
	db.Set(key, store.NewRString(cp), exMs)
	ctx.Touch(key)
	if get {
		return oldVal
	}
	return resp.OK()
}

func cmdSetNX(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	if db.Exists(string(args[1]), now) {
		return resp.Integer(0)
	}
	cp := make([]byte, len(args[2]))
	copy(cp, args[2])
	db.Set(string(args[1]), store.NewRString(cp), nil)
	ctx.Touch(string(args[1]))
	return resp.Integer(1)
}

func setWithSeconds(ctx *Context, key string, secs int64, val []byte, millis bool) resp.Value {
	if secs <= 0 {
		return resp.Error("ERR invalid expire time")
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	now := store.NowMillis()
	var at *int64
	if millis {
		at = store.ExpireAt(now + secs)
	} else {
		at = store.ExpireAt(now + secs*1000)
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	ctx.DB().Set(key, store.NewRString(cp), at)
	ctx.Touch(key)
	return resp.OK()
}

func cmdSetEX(ctx *Context, args [][]byte) resp.Value {
	secs, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	return setWithSeconds(ctx, string(args[1]), secs, args[3], false)
}

func cmdPSetEX(ctx *Context, args [][]byte) resp.Value {
	ms, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	return setWithSeconds(ctx, string(args[1]), ms, args[3], true)
}

func cmdGetSet(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	var old resp.Value = resp.NullBulk()
	if e, ok := db.Get(string(args[1]), now); ok {
		rs, ok := e.Value.(*store.RString)
		if !ok {
			return wrongType()
		}
		old = resp.Bulk(rs.Data)
	}
	cp := make([]byte, len(args[2]))
	copy(cp, args[2])
	db.Set(string(args[1]), store.NewRString(cp), nil)
	ctx.Touch(string(args[1]))
	return old
}

func cmdGetDel(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(string(args[1]), now)
	if !ok {
		return resp.NullBulk()
	}
	rs, ok := e.Value.(*store.RString)
	if !ok {
		return wrongType()
	}
	db.Delete(string(args[1]), now)
	ctx.Touch(string(args[1]))
	return resp.Bulk(rs.Data)
}

func cmdGetEx(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(string(args[1]), now)
	if !ok {
		return resp.NullBulk()
	}
	rs, ok := e.Value.(*store.RString)
	if !ok {
		return wrongType()
	}
	persist := false
	var at *int64
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "PERSIST":
			persist = true
		case "EX", "PX", "EXAT", "PXAT":
			opt := strings.ToUpper(string(args[i]))
			if i+1 >= len(args) {
				return syntaxError()
			}
			i++
			n, err := parseInt(args[i])
			if err != nil {
				return notInteger()
			}
			switch opt {
			case "EX":
				at = store.ExpireAt(now + n*1000)
			case "PX":
				at = store.ExpireAt(now + n)
			case "EXAT":
				at = store.ExpireAt(n * 1000)
			case "PXAT":
				at = store.ExpireAt(n)
			}
		default:
			return syntaxError()
		}
	}
	if persist {
		e.ExpiresAt = nil
		ctx.Touch(string(args[1]))
	} else if at != nil {
		e.ExpiresAt = at
		ctx.Touch(string(args[1]))
	}
	return resp.Bulk(rs.Data)
}

func cmdMGet(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	db := ctx.DB()
	now := store.NowMillis()
	out := make([]resp.Value, len(args)-1)
	for i, k := range args[1:] {
		e, ok := db.Get(string(k), now)
		if !ok {
			out[i] = resp.NullBulk()
			continue
		}
		rs, ok := e.Value.(*store.RString)
		if !ok {
			out[i] = resp.NullBulk()
			continue
		}
		out[i] = resp.Bulk(rs.Data)
	}
	return resp.Array(out)
}

func cmdMSet(ctx *Context, args [][]byte) resp.Value {
	if (len(args)-1)%2 != 0 {
		return syntaxError()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	var touched []string
	for i := 1; i+1 < len(args); i += 2 {
		key := string(args[i])
		cp := make([]byte, len(args[i+1]))
		copy(cp, args[i+1])
		db.Set(key, store.NewRString(cp), nil)
		touched = append(touched, key)
	}
	ctx.Touch(touched...)
	return resp.OK()
}

func cmdMSetNX(ctx *Context, args [][]byte) resp.Value {
	if (len(args)-1)%2 != 0 {
		return syntaxError()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	for i := 1; i+1 < len(args); i += 2 {
		if db.Exists(string(args[i]), now) {
			return resp.Integer(0)
		}
	}
	var touched []string
	for i := 1; i+1 < len(args); i += 2 {
		key := string(args[i])
		cp := make([]byte, len(args[i+1]))
		copy(cp, args[i+1])
		db.Set(key, store.NewRString(cp), nil)
		touched = append(touched, key)
	}
	ctx.Touch(touched...)
	return resp.Integer(1)
}

func cmdAppend(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(string(args[1]), now)
	if !ok {
		cp := make([]byte, len(args[2]))
		copy(cp, args[2])
		db.Set(string(args[1]), store.NewRString(cp), nil)
		ctx.Touch(string(args[1]))
		return resp.Integer(int64(len(cp)))
	}
	rs, ok := e.Value.(*store.RString)
	if !ok {
		return wrongType()
	}
	rs.Data = append(rs.Data, args[2]...)
	db.Touch(string(args[1]))
	ctx.Touch(string(args[1]))
	return resp.Integer(int64(len(rs.Data)))
}

func cmdStrlen(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	rs, ok, errv := getRString(ctx, string(args[1]))
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		return resp.Integer(0)
	}
	return resp.Integer(int64(len(rs.Data)))
}

func incrByHelper(ctx *Context, key string, delta int64) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(key, now)
	var cur int64
	var expiresAt *int64
	if ok {
		rs, ok := e.Value.(*store.RString)
		if !ok {
			return wrongType()
		}
		n, err := strconv.ParseInt(string(rs.Data), 10, 64)
		if err != nil {
			return notInteger()
		}
		cur = n
		expiresAt = e.ExpiresAt
	}
	next := cur + delta
	db.Set(key, store.NewRString([]byte(strconv.FormatInt(next, 10))), expiresAt)
	ctx.Touch(key)
	return resp.Integer(next)
}

func cmdIncr(ctx *Context, args [][]byte) resp.Value { return incrByHelper(ctx, string(args[1]), 1) }
func cmdDecr(ctx *Context, args [][]byte) resp.Value { return incrByHelper(ctx, string(args[1]), -1) }

func cmdIncrBy(ctx *Context, args [][]byte) resp.Value {
	n, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	return incrByHelper(ctx, string(args[1]), n)
}

func cmdDecrBy(ctx *Context, args [][]byte) resp.Value {
	n, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	return incrByHelper(ctx, string(args[1]), -n)
}

func cmdIncrByFloat(ctx *Context, args [][]byte) resp.Value {
	delta, err := parseFloat(args[2])
	if err != nil {
		return notFloat()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(string(args[1]), now)
	var cur float64
	var expiresAt *int64
	if ok {
		rs, ok := e.Value.(*store.RString)
		if !ok {
			return wrongType()
		}
		f, err := strconv.ParseFloat(string(rs.Data), 64)
		if err != nil {
			return notFloat()
		}
		cur = f
		expiresAt = e.ExpiresAt
	}
	next := cur + delta
	formatted := formatFloat(next)
	db.Set(string(args[1]), store.NewRString([]byte(formatted)), expiresAt)
	ctx.Touch(string(args[1]))
	return resp.Bulk([]byte(formatted))
}

func normalizeStrRange(start, end int64, n int) (int, int) {
	if start < 0 {
		start += int64(n)
	}
	if end < 0 {
		end += int64(n)
	}
	if start < 0 {
		start = 0
	}
	if end >= int64(n) {
		end = int64(n) - 1
	}
	return int(start), int(end)
}

func cmdGetRange(ctx *Context, args [][]byte) resp.Value {
	start, err1 := parseInt(args[2])
	end, err2 := parseInt(args[3])
	if err1 != nil || err2 != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	rs, ok, errv := getRString(ctx, string(args[1]))
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok || len(rs.Data) == 0 {
		return resp.BulkString("")
	}
	lo, hi := normalizeStrRange(start, end, len(rs.Data))
	if lo > hi || lo >= len(rs.Data) {
		return resp.BulkString("")
	}
	return resp.Bulk(rs.Data[lo : hi+1])
}

func cmdSetRange(ctx *Context, args [][]byte) resp.Value {
	offset, err := parseInt(args[2])
	if err != nil || offset < 0 {
		return notInteger()
	}
	patch := args[3]
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(string(args[1]), now)
	var data []byte
	var expiresAt *int64
	if ok {
		rs, ok := e.Value.(*store.RString)
		if !ok {
			return wrongType()
		}
		data = rs.Data
		expiresAt = e.ExpiresAt
	}
	needed := int(offset) + len(patch)
	if needed > len(data) {
		grown := make([]byte, needed)
		copy(grown, data)
		data = grown
	}
	copy(data[offset:], patch)
	db.Set(string(args[1]), store.NewRString(data), expiresAt)
	ctx.Touch(string(args[1]))
	return resp.Integer(int64(len(data)))
}

// cmdLCS implements "LCS key1 key2 [LEN]" between two string keys via
// classic O(n*m) dynamic programming; other options (IDX, MINMATCHLEN,
// WITHMATCHLEN) are ignored and no match ranges are reported.
func cmdLCS(ctx *Context, args [][]byte) resp.Value {
	wantLen := false
	for i := 3; i < len(args); i++ {
		if strings.EqualFold(string(args[i]), "LEN") {
			wantLen = true
		}
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	now := store.NowMillis()
	var a, b []byte
	if e, ok := ctx.DB().Get(string(args[1]), now); ok {
		if rs, ok := e.Value.(*store.RString); ok {
			a = rs.Data
		} else {
			return wrongType()
		}
	}
	if e, ok := ctx.DB().Get(string(args[2]), now); ok {
		if rs, ok := e.Value.(*store.RString); ok {
			b = rs.Data
		} else {
			return wrongType()
		}
	}
	lcs := longestCommonSubsequence(a, b)
	if wantLen {
		return resp.Integer(int64(len(lcs)))
	}
	return resp.Bulk(lcs)
}

func longestCommonSubsequence(a, b []byte) []byte {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	out := make([]byte, dp[n][m])
	i, j, k := n, m, dp[n][m]
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			k--
			out[k] = a[i-1]
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return out
}

// cmdMSetEX implements "MSETEX numkeys key value [key value ...]
// [EX sec | PX ms | EXAT ts | PXAT ts | KEEPTTL] [NX | XX]" (spec.md §6),
// grounded on original_source/src/command/string.rs:838's cmd_msetex.
func cmdMSetEX(ctx *Context, args [][]byte) resp.Value {
	numkeys, err := parseInt(args[1])
	if err != nil || numkeys <= 0 {
		return resp.Error("ERR invalid numkeys value")
	}
	required := 2 + int(numkeys)*2
	if len(args) < required {
		return resp.Error("ERR wrong number of key-value pairs for 'msetex' command")
	}

	type kv struct {
		key string
		val []byte
	}
	pairs := make([]kv, numkeys)
	for i := int64(0); i < numkeys; i++ {
		pairs[i] = kv{key: string(args[2+i*2]), val: args[3+i*2]}
	}

	var exMs *int64
	keepTTL, nx, xx := false, false, false
	now := store.NowMillis()
	for i := required; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "EX", "PX", "EXAT", "PXAT":
			if exMs != nil || keepTTL {
				return syntaxError()
			}
			opt := strings.ToUpper(string(args[i]))
			if i+1 >= len(args) {
				return syntaxError()
			}
			i++
			n, err := parseInt(args[i])
			if err != nil || n <= 0 {
				return resp.Error("ERR invalid expire time in 'msetex' command")
			}
			switch opt {
			case "EX":
				exMs = store.ExpireAt(now + n*1000)
			case "PX":
				exMs = store.ExpireAt(now + n)
			case "EXAT":
				exMs = store.ExpireAt(n * 1000)
			case "PXAT":
				exMs = store.ExpireAt(n)
			}
		case "KEEPTTL":
			if exMs != nil {
				return syntaxError()
			}
			keepTTL = true
		case "NX":
			if xx {
				return syntaxError()
			}
			nx = true
		case "XX":
			if nx {
				return syntaxError()
			}
			xx = true
		default:
			return syntaxError()
		}
	}

	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	if nx {
		for _, p := range pairs {
			if db.Exists(p.key, now) {
				return resp.Integer(0)
			}
		}
	}
	if xx {
		for _, p := range pairs {
			if !db.Exists(p.key, now) {
				return resp.Integer(0)
			}
		}
	}
	for _, p := range pairs {
		at := exMs
		if keepTTL {
			at = nil
			if e, ok := db.Get(p.key, now); ok {
				at = e.ExpiresAt
			}
		}
		cp := make([]byte, len(p.val))
		copy(cp, p.val)
		db.Set(p.key, store.NewRString(cp), at)
		ctx.Touch(p.key)
	}
	if nx || xx {
		return resp.Integer(1)
	}
	return resp.OK()
}

// cmdDigest implements DIGEST key (spec.md §6, §9 open question 4): a
// 16-hex-character value-equivalence fingerprint of a string key, the
// same one IFDEQ/IFDNE compare against. Grounded on
// original_source/src/command/mod.rs's inline "DIGEST" match arm.
func cmdDigest(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	rs, ok, errv := getRString(ctx, string(args[1]))
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(valueDigest(rs.Data))
}

// cmdDelEx implements "DELEX key [IFEQ|IFNE|IFDEQ|IFDNE value]" (spec.md
// §6): an unconditional delete with no condition argument, or a delete
// gated on the key's current string value or its digest. Grounded on
// original_source/src/command/mod.rs's inline "DELEX" match arm.
func cmdDelEx(ctx *Context, args [][]byte) resp.Value {
	if len(args) != 2 && len(args) != 4 {
		return resp.Error("ERR wrong number of arguments for 'delex' command")
	}
	key := string(args[1])
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()

	if len(args) == 2 {
		if db.Delete(key, now) {
			ctx.Touch(key)
			return resp.Integer(1)
		}
		return resp.Integer(0)
	}

	e, ok := db.Get(key, now)
	if !ok {
		return resp.Integer(0)
	}
	rs, ok := e.Value.(*store.RString)
	if !ok {
		return resp.Error("ERR DELEX only supports string keys")
	}

	condition := strings.ToUpper(string(args[2]))
	cmpVal := args[3]
	var shouldDelete bool
	switch condition {
	case "IFEQ":
		shouldDelete = bytes.Equal(rs.Data, cmpVal)
	case "IFNE":
		shouldDelete = !bytes.Equal(rs.Data, cmpVal)
	case "IFDEQ":
		if !isValidDigest(string(cmpVal)) {
			return resp.Error("ERR The digest must be exactly 16 hexadecimal characters")
		}
		shouldDelete = strings.EqualFold(valueDigest(rs.Data), string(cmpVal))
	case "IFDNE":
		if !isValidDigest(string(cmpVal)) {
			return resp.Error("ERR The digest must be exactly 16 hexadecimal characters")
		}
		shouldDelete = !strings.EqualFold(valueDigest(rs.Data), string(cmpVal))
	default:
		return resp.Error("ERR Invalid condition")
	}

	if shouldDelete {
		db.Delete(key, now)
		ctx.Touch(key)
		return resp.Integer(1)
	}
	return resp.Integer(0)
}
