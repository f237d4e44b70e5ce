package command

import (
	"strings"
	"time"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

func (d *Dispatcher) registerListCommands() {
	d.add("LPUSH", 3, true, cmdLPush)
	d.add("RPUSH", 3, true, cmdRPush)
	d.add("LPUSHX", 3, true, cmdLPushX)
	d.add("RPUSHX", 3, true, cmdRPushX)
	d.add("LPOP", 2, true, cmdLPop)
	d.add("RPOP", 2, true, cmdRPop)
	d.add("LLEN", 2, false, cmdLLen)
	d.add("LRANGE", 4, false, cmdLRange)
	d.add("LINDEX", 3, false, cmdLIndex)
	d.add("LSET", 4, true, cmdLSet)
	d.add("LINSERT", 5, true, cmdLInsert)
	d.add("LREM", 4, true, cmdLRem)
	d.add("LTRIM", 4, true, cmdLTrim)
	d.add("RPOPLPUSH", 3, true, cmdRPopLPush)
	d.add("LMOVE", 5, true, cmdLMove)
	d.add("BLPOP", 3, true, cmdBLPop)
	d.add("BRPOP", 3, true, cmdBRPop)
	d.add("BLMOVE", 6, true, cmdBLMove)
}

func getRList(ctx *Context, key string, create bool) (*store.RList, resp.Value) {
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(key, now)
	if !ok {
		if !create {
			return nil, resp.Value{}
		}
		l := store.NewRList()
		db.Set(key, l, nil)
		return l, resp.Value{}
	}
	l, ok := e.Value.(*store.RList)
	if !ok {
		return nil, wrongType()
	}
	return l, resp.Value{}
}

func pushHelper(ctx *Context, key string, vals [][]byte, left, requireExisting bool) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	if requireExisting {
		db := ctx.DB()
		if !db.Exists(key, store.NowMillis()) {
			return resp.Integer(0)
		}
	}
	l, errv := getRList(ctx, key, true)
	if errv.Kind == resp.KindError {
		return errv
	}
	if left {
		for _, v := range vals {
			l.PushLeft(append([]byte(nil), v...))
		}
	} else {
		for _, v := range vals {
			l.PushRight(append([]byte(nil), v...))
		}
	}
	ctx.Touch(key)
	return resp.Integer(int64(l.Len()))
}

func cmdLPush(ctx *Context, args [][]byte) resp.Value {
	return pushHelper(ctx, string(args[1]), args[2:], true, false)
}
func cmdRPush(ctx *Context, args [][]byte) resp.Value {
	return pushHelper(ctx, string(args[1]), args[2:], false, false)
}
func cmdLPushX(ctx *Context, args [][]byte) resp.Value {
	return pushHelper(ctx, string(args[1]), args[2:], true, true)
}
func cmdRPushX(ctx *Context, args [][]byte) resp.Value {
	return pushHelper(ctx, string(args[1]), args[2:], false, true)
}

func popHelper(ctx *Context, key string, left bool, count int64, hasCount bool) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	l, errv := getRList(ctx, key, false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		if hasCount {
			return resp.NullArray()
		}
		return resp.NullBulk()
	}
	if !hasCount {
		var v []byte
		var ok bool
		if left {
			v, ok = l.PopLeft()
		} else {
			v, ok = l.PopRight()
		}
		if !ok {
			return resp.NullBulk()
		}
		ctx.DB().DeleteIfEmpty(key)
		ctx.Touch(key)
		return resp.Bulk(v)
	}
	var out []resp.Value
	for i := int64(0); i < count; i++ {
		var v []byte
		var ok bool
		if left {
			v, ok = l.PopLeft()
		} else {
			v, ok = l.PopRight()
		}
		if !ok {
			break
		}
		out = append(out, resp.Bulk(v))
	}
	ctx.DB().DeleteIfEmpty(key)
	ctx.Touch(key)
	if out == nil {
		return resp.NullArray()
	}
	return resp.Array(out)
}

func cmdLPop(ctx *Context, args [][]byte) resp.Value {
	if len(args) >= 3 {
		n, err := parseInt(args[2])
		if err != nil || n < 0 {
			return notInteger()
		}
		return popHelper(ctx, string(args[1]), true, n, true)
	}
	return popHelper(ctx, string(args[1]), true, 0, false)
}

func cmdRPop(ctx *Context, args [][]byte) resp.Value {
	if len(args) >= 3 {
		n, err := parseInt(args[2])
		if err != nil || n < 0 {
			return notInteger()
		}
		return popHelper(ctx, string(args[1]), false, n, true)
	}
	return popHelper(ctx, string(args[1]), false, 0, false)
}

func cmdLLen(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	l, errv := getRList(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(l.Len()))
}

func cmdLRange(ctx *Context, args [][]byte) resp.Value {
	start, err1 := parseInt(args[2])
	stop, err2 := parseInt(args[3])
	if err1 != nil || err2 != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	l, errv := getRList(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		return resp.Array(nil)
	}
	lo, hi, ok := store.NormalizeRange(start, stop, l.Len())
	if !ok {
		return resp.Array(nil)
	}
	out := make([]resp.Value, 0, hi-lo)
	for _, v := range l.Items[lo:hi] {
		out = append(out, resp.Bulk(v))
	}
	return resp.Array(out)
}

func cmdLIndex(ctx *Context, args [][]byte) resp.Value {
	idx, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	l, errv := getRList(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		return resp.NullBulk()
	}
	if idx < 0 {
		idx += int64(l.Len())
	}
	if idx < 0 || idx >= int64(l.Len()) {
		return resp.NullBulk()
	}
	return resp.Bulk(l.Items[idx])
}

func cmdLSet(ctx *Context, args [][]byte) resp.Value {
	idx, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	l, errv := getRList(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		return resp.Error("ERR no such key")
	}
	if idx < 0 {
		idx += int64(l.Len())
	}
	if idx < 0 || idx >= int64(l.Len()) {
		return resp.Error("ERR index out of range")
	}
	l.Items[idx] = append([]byte(nil), args[3]...)
	ctx.Touch(string(args[1]))
	return resp.OK()
}

func cmdLInsert(ctx *Context, args [][]byte) resp.Value {
	where := strings.ToUpper(string(args[2]))
	if where != "BEFORE" && where != "AFTER" {
		return syntaxError()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	l, errv := getRList(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		return resp.Integer(0)
	}
	pivot := args[3]
	idx := -1
	for i, v := range l.Items {
		if string(v) == string(pivot) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return resp.Integer(-1)
	}
	insertAt := idx
	if where == "AFTER" {
		insertAt = idx + 1
	}
	l.Items = append(l.Items, nil)
	copy(l.Items[insertAt+1:], l.Items[insertAt:])
	l.Items[insertAt] = append([]byte(nil), args[4]...)
	ctx.Touch(string(args[1]))
	return resp.Integer(int64(l.Len()))
}

func cmdLRem(ctx *Context, args [][]byte) resp.Value {
	count, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	l, errv := getRList(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		return resp.Integer(0)
	}
	target := args[3]
	removed := int64(0)
	if count >= 0 {
		limit := count
		out := l.Items[:0]
		for _, v := range l.Items {
			if (limit == 0 || removed < limit) && string(v) == string(target) {
				removed++
				continue
			}
			out = append(out, v)
		}
		l.Items = out
	} else {
		limit := -count
		out := make([][]byte, 0, len(l.Items))
		for i := len(l.Items) - 1; i >= 0; i-- {
			v := l.Items[i]
			if removed < limit && string(v) == string(target) {
				removed++
				continue
			}
			out = append(out, v)
		}
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		l.Items = out
	}
	if removed > 0 {
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(removed)
}

func cmdLTrim(ctx *Context, args [][]byte) resp.Value {
	start, err1 := parseInt(args[2])
	stop, err2 := parseInt(args[3])
	if err1 != nil || err2 != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	l, errv := getRList(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if l == nil {
		return resp.OK()
	}
	lo, hi, ok := store.NormalizeRange(start, stop, l.Len())
	if !ok {
		l.Items = nil
	} else {
		l.Items = append([][]byte(nil), l.Items[lo:hi]...)
	}
	ctx.DB().DeleteIfEmpty(string(args[1]))
	ctx.Touch(string(args[1]))
	return resp.OK()
}

func moveBetween(ctx *Context, srcKey, dstKey string, fromLeft, toLeft bool) ([]byte, bool, resp.Value) {
	src, errv := getRList(ctx, srcKey, false)
	if errv.Kind == resp.KindError {
		return nil, false, errv
	}
	if src == nil {
		return nil, false, resp.Value{}
	}
	var v []byte
	var ok bool
	if fromLeft {
		v, ok = src.PopLeft()
	} else {
		v, ok = src.PopRight()
	}
	if !ok {
		return nil, false, resp.Value{}
	}
	dst, errv := getRList(ctx, dstKey, true)
	if errv.Kind == resp.KindError {
		return nil, false, errv
	}
	if toLeft {
		dst.PushLeft(v)
	} else {
		dst.PushRight(v)
	}
	ctx.DB().DeleteIfEmpty(srcKey)
	ctx.Touch(srcKey, dstKey)
	return v, true, resp.Value{}
}

func cmdRPopLPush(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	v, ok, errv := moveBetween(ctx, string(args[1]), string(args[2]), false, true)
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(v)
}

func parseSide(b []byte) (bool, bool) {
	switch strings.ToUpper(string(b)) {
	case "LEFT":
		return true, true
	case "RIGHT":
		return false, true
	default:
		return false, false
	}
}

func cmdLMove(ctx *Context, args [][]byte) resp.Value {
	fromLeft, ok1 := parseSide(args[3])
	toLeft, ok2 := parseSide(args[4])
	if !ok1 || !ok2 {
		return syntaxError()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	v, ok, errv := moveBetween(ctx, string(args[1]), string(args[2]), fromLeft, toLeft)
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(v)
}

// blockingDeadline computes the absolute wake time for a timeout argument in
// seconds (fractional allowed), with 0 meaning block indefinitely, per
// spec.md §4.5's blocking-command semantics.
func blockingDeadline(timeoutArg []byte) (time.Time, bool, error) {
	secs, err := parseFloat(timeoutArg)
	if err != nil || secs < 0 {
		return time.Time{}, false, err
	}
	if secs == 0 {
		return time.Time{}, false, nil
	}
	return time.Now().Add(time.Duration(secs * float64(time.Second))), true, nil
}

func blockOnKeys(ctx *Context, keys []string, timeoutArg []byte, tryOnce func() (resp.Value, bool)) resp.Value {
	deadline, hasDeadline, err := blockingDeadline(timeoutArg)
	if err != nil {
		return notFloat()
	}
	for {
		ctx.Disp.Store.Lock()
		v, done := tryOnce()
		ctx.Disp.Store.Unlock()
		if done {
			return v
		}
		if ctx.Client.InMulti {
			// Inside a transaction, blocking commands never actually block
			// (spec.md §4.6): EXEC must return immediately.
			return resp.NullArray()
		}
		handle := ctx.Disp.Watcher.RegisterMany(keys)
		var timer *time.Timer
		var timerCh <-chan time.Time
		if hasDeadline {
			remain := time.Until(deadline)
			if remain <= 0 {
				ctx.Disp.Watcher.UnregisterMany(keys, handle)
				return resp.NullArray()
			}
			timer = time.NewTimer(remain)
			timerCh = timer.C
		}
		select {
		case <-handle.Ch:
			if timer != nil {
				timer.Stop()
			}
		case <-timerCh:
			ctx.Disp.Watcher.UnregisterMany(keys, handle)
			return resp.NullArray()
		}
		ctx.Disp.Watcher.UnregisterMany(keys, handle)
	}
}

func blockingPop(ctx *Context, args [][]byte, left bool) resp.Value {
	keys := make([]string, 0, len(args)-2)
	for _, k := range args[1 : len(args)-1] {
		keys = append(keys, string(k))
	}
	timeoutArg := args[len(args)-1]
	return blockOnKeys(ctx, keys, timeoutArg, func() (resp.Value, bool) {
		for _, k := range keys {
			l, errv := getRList(ctx, k, false)
			if errv.Kind == resp.KindError {
				return errv, true
			}
			if l == nil {
				continue
			}
			var v []byte
			var ok bool
			if left {
				v, ok = l.PopLeft()
			} else {
				v, ok = l.PopRight()
			}
			if ok {
				ctx.DB().DeleteIfEmpty(k)
				ctx.Touch(k)
				return resp.Array([]resp.Value{resp.BulkString(k), resp.Bulk(v)}), true
			}
		}
		return resp.Value{}, false
	})
}

func cmdBLPop(ctx *Context, args [][]byte) resp.Value { return blockingPop(ctx, args, true) }
func cmdBRPop(ctx *Context, args [][]byte) resp.Value { return blockingPop(ctx, args, false) }

func cmdBLMove(ctx *Context, args [][]byte) resp.Value {
	srcKey, dstKey := string(args[1]), string(args[2])
	fromLeft, ok1 := parseSide(args[3])
	toLeft, ok2 := parseSide(args[4])
	if !ok1 || !ok2 {
		return syntaxError()
	}
	timeoutArg := args[5]
	return blockOnKeys(ctx, []string{srcKey}, timeoutArg, func() (resp.Value, bool) {
		v, ok, errv := moveBetween(ctx, srcKey, dstKey, fromLeft, toLeft)
		if errv.Kind == resp.KindError {
			return errv, true
		}
		if !ok {
			return resp.Value{}, false
		}
		return resp.Bulk(v), true
	})
}
