package command

import (
	"math/rand"
	"strconv"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

func (d *Dispatcher) registerHashCommands() {
	d.add("HSET", 4, true, cmdHSet)
	d.add("HMSET", 4, true, cmdHMSet)
	d.add("HSETNX", 4, true, cmdHSetNX)
	d.add("HGET", 3, false, cmdHGet)
	d.add("HMGET", 3, false, cmdHMGet)
	d.add("HDEL", 3, true, cmdHDel)
	d.add("HEXISTS", 3, false, cmdHExists)
	d.add("HGETALL", 2, false, cmdHGetAll)
	d.add("HKEYS", 2, false, cmdHKeys)
	d.add("HVALS", 2, false, cmdHVals)
	d.add("HLEN", 2, false, cmdHLen)
	d.add("HINCRBY", 4, true, cmdHIncrBy)
	d.add("HINCRBYFLOAT", 4, true, cmdHIncrByFloat)
	d.add("HSTRLEN", 3, false, cmdHStrlen)
	d.add("HRANDFIELD", 2, false, cmdHRandField)
}

func getRHash(ctx *Context, key string, create bool) (*store.RHash, resp.Value) {
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(key, now)
	if !ok {
		if !create {
			return nil, resp.Value{}
		}
		h := store.NewRHash()
		db.Set(key, h, nil)
		return h, resp.Value{}
	}
	h, ok := e.Value.(*store.RHash)
	if !ok {
		return nil, wrongType()
	}
	return h, resp.Value{}
}

func cmdHSet(ctx *Context, args [][]byte) resp.Value {
	if (len(args)-2)%2 != 0 {
		return syntaxError()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	h, errv := getRHash(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	added := int64(0)
	for i := 2; i+1 < len(args); i += 2 {
		field := string(args[i])
		if _, existed := h.Fields[field]; !existed {
			added++
		}
		h.Fields[field] = append([]byte(nil), args[i+1]...)
	}
	ctx.Touch(string(args[1]))
	return resp.Integer(added)
}

func cmdHMSet(ctx *Context, args [][]byte) resp.Value {
	v := cmdHSet(ctx, args)
	if v.IsError() {
		return v
	}
	return resp.OK()
}

func cmdHSetNX(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	h, errv := getRHash(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	field := string(args[2])
	if _, existed := h.Fields[field]; existed {
		return resp.Integer(0)
	}
	h.Fields[field] = append([]byte(nil), args[3]...)
	ctx.Touch(string(args[1]))
	return resp.Integer(1)
}

func cmdHGet(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.NullBulk()
	}
	v, ok := h.Fields[string(args[2])]
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(v)
}

func cmdHMGet(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	out := make([]resp.Value, len(args)-2)
	for i, f := range args[2:] {
		if h == nil {
			out[i] = resp.NullBulk()
			continue
		}
		if v, ok := h.Fields[string(f)]; ok {
			out[i] = resp.Bulk(v)
		} else {
			out[i] = resp.NullBulk()
		}
	}
	return resp.Array(out)
}

func cmdHDel(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.Integer(0)
	}
	removed := int64(0)
	for _, f := range args[2:] {
		if _, ok := h.Fields[string(f)]; ok {
			delete(h.Fields, string(f))
			removed++
		}
	}
	if removed > 0 {
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(removed)
}

func cmdHExists(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.Integer(0)
	}
	if _, ok := h.Fields[string(args[2])]; ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdHGetAll(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.Array(nil)
	}
	out := make([]resp.Value, 0, len(h.Fields)*2)
	for f, v := range h.Fields {
		out = append(out, resp.BulkString(f), resp.Bulk(v))
	}
	return resp.Array(out)
}

func cmdHKeys(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.Array(nil)
	}
	out := make([]resp.Value, 0, len(h.Fields))
	for f := range h.Fields {
		out = append(out, resp.BulkString(f))
	}
	return resp.Array(out)
}

func cmdHVals(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.Array(nil)
	}
	out := make([]resp.Value, 0, len(h.Fields))
	for _, v := range h.Fields {
		out = append(out, resp.Bulk(v))
	}
	return resp.Array(out)
}

func cmdHLen(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(h.Len()))
}

func cmdHIncrBy(ctx *Context, args [][]byte) resp.Value {
	delta, err := parseInt(args[3])
	if err != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	h, errv := getRHash(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	field := string(args[2])
	var cur int64
	if v, ok := h.Fields[field]; ok {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return notInteger()
		}
		cur = n
	}
	next := cur + delta
	h.Fields[field] = []byte(strconv.FormatInt(next, 10))
	ctx.Touch(string(args[1]))
	return resp.Integer(next)
}

func cmdHIncrByFloat(ctx *Context, args [][]byte) resp.Value {
	delta, err := parseFloat(args[3])
	if err != nil {
		return notFloat()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	h, errv := getRHash(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	field := string(args[2])
	var cur float64
	if v, ok := h.Fields[field]; ok {
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return notFloat()
		}
		cur = f
	}
	next := cur + delta
	formatted := formatFloat(next)
	h.Fields[field] = []byte(formatted)
	ctx.Touch(string(args[1]))
	return resp.Bulk([]byte(formatted))
}

func cmdHStrlen(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(len(h.Fields[string(args[2])])))
}

func cmdHRandField(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	h, errv := getRHash(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if h == nil || len(h.Fields) == 0 {
		if len(args) >= 3 {
			return resp.Array(nil)
		}
		return resp.NullBulk()
	}
	fields := make([]string, 0, len(h.Fields))
	for f := range h.Fields {
		fields = append(fields, f)
	}
	if len(args) < 3 {
		return resp.BulkString(fields[rand.Intn(len(fields))])
	}
	count, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	withValues := len(args) >= 4
	var picked []string
	if count < 0 {
		n := int(-count)
		for i := 0; i < n; i++ {
			picked = append(picked, fields[rand.Intn(len(fields))])
		}
	} else {
		n := int(count)
		if n > len(fields) {
			n = len(fields)
		}
		perm := rand.Perm(len(fields))
		for i := 0; i < n; i++ {
			picked = append(picked, fields[perm[i]])
		}
	}
	out := make([]resp.Value, 0, len(picked)*2)
	for _, f := range picked {
		out = append(out, resp.BulkString(f))
		if withValues {
			out = append(out, resp.Bulk(h.Fields[f]))
		}
	}
	return resp.Array(out)
}
