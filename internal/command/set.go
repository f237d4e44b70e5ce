package command

import (
	"math/rand"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

func (d *Dispatcher) registerSetCommands() {
	d.add("SADD", 3, true, cmdSAdd)
	d.add("SREM", 3, true, cmdSRem)
	d.add("SCARD", 2, false, cmdSCard)
	d.add("SISMEMBER", 3, false, cmdSIsMember)
	d.add("SMISMEMBER", 3, false, cmdSMIsMember)
	d.add("SMEMBERS", 2, false, cmdSMembers)
	d.add("SPOP", 2, true, cmdSPop)
	d.add("SRANDMEMBER", 2, false, cmdSRandMember)
	d.add("SUNION", 2, false, cmdSUnion)
	d.add("SINTER", 2, false, cmdSInter)
	d.add("SDIFF", 2, false, cmdSDiff)
	d.add("SUNIONSTORE", 3, true, cmdSUnionStore)
	d.add("SINTERSTORE", 3, true, cmdSInterStore)
	d.add("SDIFFSTORE", 3, true, cmdSDiffStore)
	d.add("SMOVE", 4, true, cmdSMove)
}

func getRSet(ctx *Context, key string, create bool) (*store.RSet, resp.Value) {
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(key, now)
	if !ok {
		if !create {
			return nil, resp.Value{}
		}
		set := store.NewRSet()
		db.Set(key, set, nil)
		return set, resp.Value{}
	}
	set, ok := e.Value.(*store.RSet)
	if !ok {
		return nil, wrongType()
	}
	return set, resp.Value{}
}

func cmdSAdd(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	set, errv := getRSet(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	added := int64(0)
	for _, m := range args[2:] {
		if set.Add(string(m)) {
			added++
		}
	}
	if added > 0 {
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(added)
}

func cmdSRem(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	set, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if set == nil {
		return resp.Integer(0)
	}
	removed := int64(0)
	for _, m := range args[2:] {
		if set.Remove(string(m)) {
			removed++
		}
	}
	if removed > 0 {
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(removed)
}

func cmdSCard(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	set, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if set == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(set.Len()))
}

func cmdSIsMember(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	set, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if set == nil || !set.Has(string(args[2])) {
		return resp.Integer(0)
	}
	return resp.Integer(1)
}

func cmdSMIsMember(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	set, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	out := make([]resp.Value, len(args)-2)
	for i, m := range args[2:] {
		if set != nil && set.Has(string(m)) {
			out[i] = resp.Integer(1)
		} else {
			out[i] = resp.Integer(0)
		}
	}
	return resp.Array(out)
}

func cmdSMembers(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	set, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if set == nil {
		return resp.Array(nil)
	}
	out := make([]resp.Value, 0, set.Len())
	for m := range set.Members {
		out = append(out, resp.BulkString(m))
	}
	return resp.Array(out)
}

func cmdSPop(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	set, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	hasCount := len(args) >= 3
	if set == nil || set.Len() == 0 {
		if hasCount {
			return resp.Array(nil)
		}
		return resp.NullBulk()
	}
	members := make([]string, 0, set.Len())
	for m := range set.Members {
		members = append(members, m)
	}
	if !hasCount {
		m := members[rand.Intn(len(members))]
		set.Remove(m)
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
		return resp.BulkString(m)
	}
	count, err := parseInt(args[2])
	if err != nil || count < 0 {
		return notInteger()
	}
	n := int(count)
	if n > len(members) {
		n = len(members)
	}
	perm := rand.Perm(len(members))
	out := make([]resp.Value, 0, n)
	for i := 0; i < n; i++ {
		m := members[perm[i]]
		set.Remove(m)
		out = append(out, resp.BulkString(m))
	}
	if n > 0 {
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
	}
	return resp.Array(out)
}

func cmdSRandMember(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	set, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if set == nil || set.Len() == 0 {
		if len(args) >= 3 {
			return resp.Array(nil)
		}
		return resp.NullBulk()
	}
	members := make([]string, 0, set.Len())
	for m := range set.Members {
		members = append(members, m)
	}
	if len(args) < 3 {
		return resp.BulkString(members[rand.Intn(len(members))])
	}
	count, err := parseInt(args[2])
	if err != nil {
		return notInteger()
	}
	var out []resp.Value
	if count < 0 {
		n := int(-count)
		for i := 0; i < n; i++ {
			out = append(out, resp.BulkString(members[rand.Intn(len(members))]))
		}
	} else {
		n := int(count)
		if n > len(members) {
			n = len(members)
		}
		perm := rand.Perm(len(members))
		for i := 0; i < n; i++ {
			out = append(out, resp.BulkString(members[perm[i]]))
		}
	}
	return resp.Array(out)
}

func loadSetsForOp(ctx *Context, keys [][]byte) ([]*store.RSet, resp.Value) {
	sets := make([]*store.RSet, 0, len(keys))
	for _, k := range keys {
		set, errv := getRSet(ctx, string(k), false)
		if errv.Kind == resp.KindError {
			return nil, errv
		}
		if set != nil {
			sets = append(sets, set)
		}
	}
	return sets, resp.Value{}
}

func setUnion(sets []*store.RSet) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for m := range s.Members {
			out[m] = struct{}{}
		}
	}
	return out
}

func setInter(sets []*store.RSet) map[string]struct{} {
	out := make(map[string]struct{})
	if len(sets) == 0 {
		return out
	}
	for m := range sets[0].Members {
		inAll := true
		for _, s := range sets[1:] {
			if !s.Has(m) {
				inAll = false
				break
			}
		}
		if inAll {
			out[m] = struct{}{}
		}
	}
	return out
}

func setDiff(sets []*store.RSet) map[string]struct{} {
	out := make(map[string]struct{})
	if len(sets) == 0 {
		return out
	}
	for m := range sets[0].Members {
		out[m] = struct{}{}
	}
	for _, s := range sets[1:] {
		for m := range s.Members {
			delete(out, m)
		}
	}
	return out
}

func membersToArray(m map[string]struct{}) resp.Value {
	out := make([]resp.Value, 0, len(m))
	for k := range m {
		out = append(out, resp.BulkString(k))
	}
	return resp.Array(out)
}

func cmdSUnion(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	sets, errv := loadSetsForOp(ctx, args[1:])
	if errv.Kind == resp.KindError {
		return errv
	}
	return membersToArray(setUnion(sets))
}

func cmdSInter(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	sets, errv := loadSetsForOp(ctx, args[1:])
	if errv.Kind == resp.KindError {
		return errv
	}
	if len(sets) < len(args)-1 {
		return resp.Array(nil)
	}
	return membersToArray(setInter(sets))
}

func cmdSDiff(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	sets, errv := loadSetsForOp(ctx, args[1:])
	if errv.Kind == resp.KindError {
		return errv
	}
	return membersToArray(setDiff(sets))
}

func storeSetResult(ctx *Context, destKey string, members map[string]struct{}) resp.Value {
	db := ctx.DB()
	if len(members) == 0 {
		db.Delete(destKey, store.NowMillis())
		ctx.Touch(destKey)
		return resp.Integer(0)
	}
	set := store.NewRSet()
	set.Members = members
	db.Set(destKey, set, nil)
	ctx.Touch(destKey)
	return resp.Integer(int64(len(members)))
}

func cmdSUnionStore(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	sets, errv := loadSetsForOp(ctx, args[2:])
	if errv.Kind == resp.KindError {
		return errv
	}
	return storeSetResult(ctx, string(args[1]), setUnion(sets))
}

func cmdSInterStore(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	sets, errv := loadSetsForOp(ctx, args[2:])
	if errv.Kind == resp.KindError {
		return errv
	}
	if len(sets) < len(args)-2 {
		return storeSetResult(ctx, string(args[1]), map[string]struct{}{})
	}
	return storeSetResult(ctx, string(args[1]), setInter(sets))
}

func cmdSDiffStore(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	sets, errv := loadSetsForOp(ctx, args[2:])
	if errv.Kind == resp.KindError {
		return errv
	}
	return storeSetResult(ctx, string(args[1]), setDiff(sets))
}

func cmdSMove(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	src, errv := getRSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if src == nil || !src.Has(string(args[3])) {
		return resp.Integer(0)
	}
	dst, errv := getRSet(ctx, string(args[2]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	src.Remove(string(args[3]))
	dst.Add(string(args[3]))
	ctx.DB().DeleteIfEmpty(string(args[1]))
	ctx.Touch(string(args[1]), string(args[2]))
	return resp.Integer(1)
}
