package command

import (
	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

// HyperLogLog commands ride the string value type (SPEC_FULL.md §3),
// grounded on original_source/src/command/hyperloglog.rs.
func (d *Dispatcher) registerHLLCommands() {
	d.add("PFADD", 2, true, cmdPFAdd)
	d.add("PFCOUNT", 2, false, cmdPFCount)
	d.add("PFMERGE", 2, true, cmdPFMerge)
}

func cmdPFAdd(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	key := string(args[1])
	rs, ok, errv := getRString(ctx, key)
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		rs = &store.RString{Data: store.NewHLL()}
		ctx.DB().Set(key, rs, nil)
	}
	changed := false
	for _, elem := range args[2:] {
		if store.HLLAdd(rs.Data, elem) {
			changed = true
		}
	}
	if !ok || changed {
		ctx.Touch(key)
	}
	if changed || !ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdPFCount(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	if len(args) == 2 {
		rs, ok, errv := getRString(ctx, string(args[1]))
		if errv.Kind == resp.KindError {
			return errv
		}
		if !ok {
			return resp.Integer(0)
		}
		return resp.Integer(store.HLLCount(rs.Data))
	}
	merged := store.NewHLL()
	for _, k := range args[1:] {
		rs, ok, errv := getRString(ctx, string(k))
		if errv.Kind == resp.KindError {
			return errv
		}
		if ok {
			store.HLLMerge(merged, rs.Data)
		}
	}
	return resp.Integer(store.HLLCount(merged))
}

func cmdPFMerge(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	destKey := string(args[1])
	dest, ok, errv := getRString(ctx, destKey)
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		dest = &store.RString{Data: store.NewHLL()}
		ctx.DB().Set(destKey, dest, nil)
	}
	for _, k := range args[2:] {
		src, ok, errv := getRString(ctx, string(k))
		if errv.Kind == resp.KindError {
			return errv
		}
		if ok {
			store.HLLMerge(dest.Data, src.Data)
		}
	}
	ctx.Touch(destKey)
	return resp.OK()
}
