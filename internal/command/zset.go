package command

import (
	"strings"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

func (d *Dispatcher) registerZSetCommands() {
	d.add("ZADD", 4, true, cmdZAdd)
	d.add("ZREM", 3, true, cmdZRem)
	d.add("ZSCORE", 3, false, cmdZScore)
	d.add("ZMSCORE", 3, false, cmdZMScore)
	d.add("ZCARD", 2, false, cmdZCard)
	d.add("ZINCRBY", 4, true, cmdZIncrBy)
	d.add("ZRANGE", 4, false, cmdZRange)
	d.add("ZREVRANGE", 4, false, cmdZRevRange)
	d.add("ZRANGEBYSCORE", 4, false, cmdZRangeByScore)
	d.add("ZREVRANGEBYSCORE", 4, false, cmdZRevRangeByScore)
	d.add("ZRANK", 3, false, cmdZRank)
	d.add("ZREVRANK", 3, false, cmdZRevRank)
	d.add("ZCOUNT", 4, false, cmdZCount)
	d.add("ZPOPMIN", 2, true, cmdZPopMin)
	d.add("ZPOPMAX", 2, true, cmdZPopMax)
	d.add("BZPOPMIN", 3, true, cmdBZPopMin)
	d.add("BZPOPMAX", 3, true, cmdBZPopMax)
	d.add("ZUNIONSTORE", 4, true, cmdZUnionStore)
	d.add("ZINTERSTORE", 4, true, cmdZInterStore)
	d.add("ZDIFFSTORE", 4, true, cmdZDiffStore)
	d.add("ZREMRANGEBYSCORE", 4, true, cmdZRemRangeByScore)
	d.add("ZREMRANGEBYRANK", 4, true, cmdZRemRangeByRank)
}

func getRZSet(ctx *Context, key string, create bool) (*store.RZSet, resp.Value) {
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(key, now)
	if !ok {
		if !create {
			return nil, resp.Value{}
		}
		z := store.NewRZSet()
		db.Set(key, z, nil)
		return z, resp.Value{}
	}
	z, ok := e.Value.(*store.RZSet)
	if !ok {
		return nil, wrongType()
	}
	return z, resp.Value{}
}

func cmdZAdd(ctx *Context, args [][]byte) resp.Value {
	i := 2
	nx, xx, gt, lt, ch, incr := false, false, false, false, false, false
loop:
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			nx = true
			i++
		case "XX":
			xx = true
			i++
		case "GT":
			gt = true
			i++
		case "LT":
			lt = true
			i++
		case "CH":
			ch = true
			i++
		case "INCR":
			incr = true
			i++
		default:
			break loop
		}
	}
	if nx && (gt || lt) {
		return syntaxError()
	}
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return syntaxError()
	}
	if incr && len(rest) != 2 {
		return resp.Error("ERR INCR option supports a single increment-element pair")
	}

	type pair struct {
		score  float64
		member string
	}
	pairs := make([]pair, 0, len(rest)/2)
	for j := 0; j+1 < len(rest); j += 2 {
		sc, err := parseFloat(rest[j])
		if err != nil {
			return notFloat()
		}
		pairs = append(pairs, pair{sc, string(rest[j+1])})
	}

	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	z, errv := getRZSet(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}

	added, changed := int64(0), int64(0)
	var incrResult *float64
	for _, p := range pairs {
		old, existed := z.Score(p.member)
		if existed && nx {
			if incr {
				continue
			}
			continue
		}
		if !existed && xx {
			continue
		}
		next := p.score
		if incr {
			next = old + p.score
		}
		if existed && gt && next <= old {
			if incr {
				incrResult = nil
			}
			continue
		}
		if existed && lt && next >= old {
			if incr {
				incrResult = nil
			}
			continue
		}
		isNew := z.Add(p.member, next)
		if isNew {
			added++
			changed++
		} else if old != next {
			changed++
		}
		if incr {
			v := next
			incrResult = &v
		}
	}
	if changed > 0 {
		ctx.Touch(string(args[1]))
	}
	if incr {
		if incrResult == nil {
			return resp.NullBulk()
		}
		return resp.BulkString(formatFloat(*incrResult))
	}
	if ch {
		return resp.Integer(changed)
	}
	return resp.Integer(added)
}

func cmdZRem(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Integer(0)
	}
	removed := int64(0)
	for _, m := range args[2:] {
		if z.Remove(string(m)) {
			removed++
		}
	}
	if removed > 0 {
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(removed)
}

func cmdZScore(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.NullBulk()
	}
	sc, ok := z.Score(string(args[2]))
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(formatFloat(sc))
}

func cmdZMScore(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	out := make([]resp.Value, len(args)-2)
	for i, m := range args[2:] {
		if z == nil {
			out[i] = resp.NullBulk()
			continue
		}
		if sc, ok := z.Score(string(m)); ok {
			out[i] = resp.BulkString(formatFloat(sc))
		} else {
			out[i] = resp.NullBulk()
		}
	}
	return resp.Array(out)
}

func cmdZCard(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(z.Len()))
}

func cmdZIncrBy(ctx *Context, args [][]byte) resp.Value {
	delta, err := parseFloat(args[2])
	if err != nil {
		return notFloat()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	z, errv := getRZSet(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	old, _ := z.Score(string(args[3]))
	next := old + delta
	z.Add(string(args[3]), next)
	ctx.Touch(string(args[1]))
	return resp.BulkString(formatFloat(next))
}

func rangeReply(members []store.RZSetMember, withScores bool) resp.Value {
	out := make([]resp.Value, 0, len(members)*2)
	for _, m := range members {
		out = append(out, resp.BulkString(m.Member))
		if withScores {
			out = append(out, resp.BulkString(formatFloat(m.Score)))
		}
	}
	return resp.Array(out)
}

func hasWithScores(args [][]byte, from int) bool {
	for _, a := range args[from:] {
		if strings.EqualFold(string(a), "WITHSCORES") {
			return true
		}
	}
	return false
}

func cmdZRange(ctx *Context, args [][]byte) resp.Value {
	start, err1 := parseInt(args[2])
	stop, err2 := parseInt(args[3])
	if err1 != nil || err2 != nil {
		return notInteger()
	}
	withScores := hasWithScores(args, 4)
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Array(nil)
	}
	lo, hi, ok := store.NormalizeRange(start, stop, z.Len())
	if !ok {
		return resp.Array(nil)
	}
	return rangeReply(z.RangeByIndex(lo, hi), withScores)
}

func reverseMembers(in []store.RZSetMember) []store.RZSetMember {
	out := make([]store.RZSetMember, len(in))
	for i, m := range in {
		out[len(in)-1-i] = m
	}
	return out
}

func cmdZRevRange(ctx *Context, args [][]byte) resp.Value {
	start, err1 := parseInt(args[2])
	stop, err2 := parseInt(args[3])
	if err1 != nil || err2 != nil {
		return notInteger()
	}
	withScores := hasWithScores(args, 4)
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Array(nil)
	}
	n := z.Len()
	lo, hi, ok := store.NormalizeRange(start, stop, n)
	if !ok {
		return resp.Array(nil)
	}
	// Translate ascending [lo,hi) into the mirrored descending window.
	revLo, revHi := n-hi, n-lo
	return rangeReply(reverseMembers(z.RangeByIndex(revLo, revHi)), withScores)
}

// parseScoreBound parses a ZRANGEBYSCORE-style bound: "(score" is
// exclusive, "-inf"/"+inf" are the unbounded ends.
func parseScoreBound(b []byte) (score float64, excl bool, err error) {
	s := string(b)
	if strings.HasPrefix(s, "(") {
		excl = true
		s = s[1:]
	}
	f, err := parseFloat([]byte(s))
	return f, excl, err
}

func cmdZRangeByScore(ctx *Context, args [][]byte) resp.Value {
	minS, minExcl, err1 := parseScoreBound(args[2])
	maxS, maxExcl, err2 := parseScoreBound(args[3])
	if err1 != nil || err2 != nil {
		return notFloat()
	}
	withScores := false
	limitOff, limitCount := -1, -1
	for i := 4; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(args) {
				return syntaxError()
			}
			o, e1 := parseInt(args[i+1])
			c, e2 := parseInt(args[i+2])
			if e1 != nil || e2 != nil {
				return notInteger()
			}
			limitOff, limitCount = int(o), int(c)
			i += 2
		default:
			return syntaxError()
		}
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Array(nil)
	}
	members := z.RangeByScore(minS, maxS, minExcl, maxExcl)
	members = applyLimit(members, limitOff, limitCount)
	return rangeReply(members, withScores)
}

func cmdZRevRangeByScore(ctx *Context, args [][]byte) resp.Value {
	maxS, maxExcl, err1 := parseScoreBound(args[2])
	minS, minExcl, err2 := parseScoreBound(args[3])
	if err1 != nil || err2 != nil {
		return notFloat()
	}
	withScores := false
	limitOff, limitCount := -1, -1
	for i := 4; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(args) {
				return syntaxError()
			}
			o, e1 := parseInt(args[i+1])
			c, e2 := parseInt(args[i+2])
			if e1 != nil || e2 != nil {
				return notInteger()
			}
			limitOff, limitCount = int(o), int(c)
			i += 2
		default:
			return syntaxError()
		}
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Array(nil)
	}
	members := reverseMembers(z.RangeByScore(minS, maxS, minExcl, maxExcl))
	members = applyLimit(members, limitOff, limitCount)
	return rangeReply(members, withScores)
}

func applyLimit(members []store.RZSetMember, off, count int) []store.RZSetMember {
	if off < 0 {
		return members
	}
	if off > len(members) {
		return nil
	}
	end := len(members)
	if count >= 0 && off+count < end {
		end = off + count
	}
	return members[off:end]
}

func cmdZRank(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.NullBulk()
	}
	rank, ok := z.Rank(string(args[2]))
	if !ok {
		return resp.NullBulk()
	}
	return resp.Integer(int64(rank))
}

func cmdZRevRank(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.NullBulk()
	}
	rank, ok := z.Rank(string(args[2]))
	if !ok {
		return resp.NullBulk()
	}
	return resp.Integer(int64(z.Len() - 1 - rank))
}

func cmdZCount(ctx *Context, args [][]byte) resp.Value {
	minS, minExcl, err1 := parseScoreBound(args[2])
	maxS, maxExcl, err2 := parseScoreBound(args[3])
	if err1 != nil || err2 != nil {
		return notFloat()
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(len(z.RangeByScore(minS, maxS, minExcl, maxExcl))))
}

func popExtreme(ctx *Context, key string, count int64, min bool) resp.Value {
	z, errv := getRZSet(ctx, key, false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Array(nil)
	}
	n := int(count)
	if n <= 0 {
		n = 1
	}
	if n > z.Len() {
		n = z.Len()
	}
	var window []store.RZSetMember
	if min {
		window = z.RangeByIndex(0, n)
	} else {
		window = reverseMembers(z.RangeByIndex(z.Len()-n, z.Len()))
	}
	out := make([]resp.Value, 0, len(window)*2)
	for _, m := range window {
		z.Remove(m.Member)
		out = append(out, resp.BulkString(m.Member), resp.BulkString(formatFloat(m.Score)))
	}
	if len(window) > 0 {
		ctx.DB().DeleteIfEmpty(key)
		ctx.Touch(key)
	}
	return resp.Array(out)
}

func cmdZPopMin(ctx *Context, args [][]byte) resp.Value {
	count := int64(1)
	if len(args) >= 3 {
		n, err := parseInt(args[2])
		if err != nil {
			return notInteger()
		}
		count = n
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	return popExtreme(ctx, string(args[1]), count, true)
}

func cmdZPopMax(ctx *Context, args [][]byte) resp.Value {
	count := int64(1)
	if len(args) >= 3 {
		n, err := parseInt(args[2])
		if err != nil {
			return notInteger()
		}
		count = n
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	return popExtreme(ctx, string(args[1]), count, false)
}

func blockingZPop(ctx *Context, args [][]byte, min bool) resp.Value {
	keys := make([]string, 0, len(args)-2)
	for _, k := range args[1 : len(args)-1] {
		keys = append(keys, string(k))
	}
	timeoutArg := args[len(args)-1]
	return blockOnKeys(ctx, keys, timeoutArg, func() (resp.Value, bool) {
		for _, k := range keys {
			z, errv := getRZSet(ctx, k, false)
			if errv.Kind == resp.KindError {
				return errv, true
			}
			if z == nil || z.Len() == 0 {
				continue
			}
			var m store.RZSetMember
			if min {
				m = z.RangeByIndex(0, 1)[0]
			} else {
				m = z.RangeByIndex(z.Len()-1, z.Len())[0]
			}
			z.Remove(m.Member)
			ctx.DB().DeleteIfEmpty(k)
			ctx.Touch(k)
			return resp.Array([]resp.Value{
				resp.BulkString(k), resp.BulkString(m.Member), resp.BulkString(formatFloat(m.Score)),
			}), true
		}
		return resp.Value{}, false
	})
}

func cmdBZPopMin(ctx *Context, args [][]byte) resp.Value { return blockingZPop(ctx, args, true) }
func cmdBZPopMax(ctx *Context, args [][]byte) resp.Value { return blockingZPop(ctx, args, false) }

// loadZSetsForOp loads the source sorted sets shared by
// ZUNIONSTORE/ZINTERSTORE/ZDIFFSTORE, pairing each existing one with its
// WEIGHTS entry (defaulting to 1); missing keys are left out.
func loadZSetsForOp(ctx *Context, keys [][]byte, weights []float64) ([]*store.RZSet, []float64, resp.Value) {
	sets := make([]*store.RZSet, 0, len(keys))
	out := make([]float64, 0, len(keys))
	for i, k := range keys {
		z, errv := getRZSet(ctx, string(k), false)
		if errv.Kind == resp.KindError {
			return nil, nil, errv
		}
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		if z != nil {
			sets = append(sets, z)
			out = append(out, w)
		}
	}
	return sets, out, resp.Value{}
}

func aggregate(agg string, a, b float64, seen bool) float64 {
	if !seen {
		return b
	}
	switch agg {
	case "MIN":
		if b < a {
			return b
		}
		return a
	case "MAX":
		if b > a {
			return b
		}
		return a
	default: // SUM
		return a + b
	}
}

func parseZStoreOpts(args [][]byte, numKeysIdx int) (keys [][]byte, weights []float64, agg string, err resp.Value) {
	numKeys, e := parseInt(args[numKeysIdx])
	if e != nil || numKeys < 0 {
		return nil, nil, "", notInteger()
	}
	keysEnd := numKeysIdx + 1 + int(numKeys)
	if keysEnd > len(args) {
		return nil, nil, "", syntaxError()
	}
	keys = args[numKeysIdx+1 : keysEnd]
	agg = "SUM"
	i := keysEnd
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "WEIGHTS":
			for j := 0; j < len(keys); j++ {
				i++
				if i >= len(args) {
					return nil, nil, "", syntaxError()
				}
				w, werr := parseFloat(args[i])
				if werr != nil {
					return nil, nil, "", notFloat()
				}
				weights = append(weights, w)
			}
			i++
		case "AGGREGATE":
			i++
			if i >= len(args) {
				return nil, nil, "", syntaxError()
			}
			agg = strings.ToUpper(string(args[i]))
			i++
		case "WITHSCORES":
			i++
		default:
			return nil, nil, "", syntaxError()
		}
	}
	return keys, weights, agg, resp.Value{}
}

func cmdZUnionStore(ctx *Context, args [][]byte) resp.Value {
	keys, weights, agg, errv := parseZStoreOpts(args, 2)
	if errv.Kind == resp.KindError {
		return errv
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	sets, w, errv2 := loadZSetsForOp(ctx, keys, weights)
	if errv2.Kind == resp.KindError {
		return errv2
	}
	scores := make(map[string]float64)
	seen := make(map[string]bool)
	for i, z := range sets {
		for _, m := range z.All() {
			scores[m.Member] = aggregate(agg, scores[m.Member], m.Score*w[i], seen[m.Member])
			seen[m.Member] = true
		}
	}
	return storeZSetResult(ctx, string(args[1]), scores)
}

func cmdZInterStore(ctx *Context, args [][]byte) resp.Value {
	keys, weights, agg, errv := parseZStoreOpts(args, 2)
	if errv.Kind == resp.KindError {
		return errv
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	sets, w, errv2 := loadZSetsForOp(ctx, keys, weights)
	if errv2.Kind == resp.KindError {
		return errv2
	}
	scores := make(map[string]float64)
	if len(sets) == len(keys) && len(sets) > 0 {
		for _, m := range sets[0].All() {
			inAll := true
			total := m.Score * w[0]
			seen := true
			for i := 1; i < len(sets); i++ {
				sc, ok := sets[i].Score(m.Member)
				if !ok {
					inAll = false
					break
				}
				total = aggregate(agg, total, sc*w[i], seen)
			}
			if inAll {
				scores[m.Member] = total
			}
		}
	}
	return storeZSetResult(ctx, string(args[1]), scores)
}

func cmdZDiffStore(ctx *Context, args [][]byte) resp.Value {
	keys, _, _, errv := parseZStoreOpts(args, 2)
	if errv.Kind == resp.KindError {
		return errv
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	sets, _, errv2 := loadZSetsForOp(ctx, keys, nil)
	if errv2.Kind == resp.KindError {
		return errv2
	}
	scores := make(map[string]float64)
	if len(sets) > 0 {
		for _, m := range sets[0].All() {
			scores[m.Member] = m.Score
		}
		for _, z := range sets[1:] {
			for m := range scores {
				if _, ok := z.Score(m); ok {
					delete(scores, m)
				}
			}
		}
	}
	return storeZSetResult(ctx, string(args[1]), scores)
}

func storeZSetResult(ctx *Context, destKey string, scores map[string]float64) resp.Value {
	db := ctx.DB()
	if len(scores) == 0 {
		db.Delete(destKey, store.NowMillis())
		ctx.Touch(destKey)
		return resp.Integer(0)
	}
	z := store.NewRZSet()
	for m, sc := range scores {
		z.Add(m, sc)
	}
	db.Set(destKey, z, nil)
	ctx.Touch(destKey)
	return resp.Integer(int64(len(scores)))
}

func cmdZRemRangeByScore(ctx *Context, args [][]byte) resp.Value {
	minS, minExcl, err1 := parseScoreBound(args[2])
	maxS, maxExcl, err2 := parseScoreBound(args[3])
	if err1 != nil || err2 != nil {
		return notFloat()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Integer(0)
	}
	members := z.RangeByScore(minS, maxS, minExcl, maxExcl)
	for _, m := range members {
		z.Remove(m.Member)
	}
	if len(members) > 0 {
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(int64(len(members)))
}

func cmdZRemRangeByRank(ctx *Context, args [][]byte) resp.Value {
	start, err1 := parseInt(args[2])
	stop, err2 := parseInt(args[3])
	if err1 != nil || err2 != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Integer(0)
	}
	lo, hi, ok := store.NormalizeRange(start, stop, z.Len())
	if !ok {
		return resp.Integer(0)
	}
	members := z.RangeByIndex(lo, hi)
	for _, m := range members {
		z.Remove(m.Member)
	}
	if len(members) > 0 {
		ctx.DB().DeleteIfEmpty(string(args[1]))
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(int64(len(members)))
}
