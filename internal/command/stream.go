package command

import (
	"strconv"
	"strings"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

// Stream commands are supplemental to spec.md's core four containers
// (SPEC_FULL.md §3), grounded on original_source/src/command/stream.rs and
// src/types/stream.rs.
func (d *Dispatcher) registerStreamCommands() {
	d.add("XADD", 5, true, cmdXAdd)
	d.add("XLEN", 2, false, cmdXLen)
	d.add("XRANGE", 4, false, cmdXRange)
	d.add("XREVRANGE", 4, false, cmdXRevRange)
	d.add("XDEL", 3, true, cmdXDel)
	d.add("XTRIM", 4, true, cmdXTrim)
	d.add("XREAD", 4, false, cmdXRead)
	d.add("XGROUP", 2, true, cmdXGroup)
	d.add("XREADGROUP", 7, true, cmdXReadGroup)
	d.add("XACK", 4, true, cmdXAck)
	d.add("XPENDING", 3, false, cmdXPending)
}

func getRStream(ctx *Context, key string, create bool) (*store.RStream, resp.Value) {
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(key, now)
	if !ok {
		if !create {
			return nil, resp.Value{}
		}
		st := store.NewRStream()
		db.Set(key, st, nil)
		return st, resp.Value{}
	}
	st, ok := e.Value.(*store.RStream)
	if !ok {
		return nil, wrongType()
	}
	return st, resp.Value{}
}

func entryToArray(e store.StreamEntry) resp.Value {
	fields := make([]resp.Value, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = resp.BulkString(f)
	}
	return resp.Array([]resp.Value{resp.BulkString(e.ID.String()), resp.Array(fields)})
}

func cmdXAdd(ctx *Context, args [][]byte) resp.Value {
	key := string(args[1])
	i := 2
	nomkstream := false
	maxLen := -1
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "NOMKSTREAM":
			nomkstream = true
			i++
		case "MAXLEN":
			i++
			if i < len(args) && (string(args[i]) == "~" || string(args[i]) == "=") {
				i++
			}
			if i >= len(args) {
				return syntaxError()
			}
			n, err := parseInt(args[i])
			if err != nil {
				return notInteger()
			}
			maxLen = int(n)
			i++
		default:
			goto idDone
		}
	}
idDone:
	if i >= len(args) {
		return syntaxError()
	}
	idArg := string(args[i])
	i++
	fieldArgs := args[i:]
	if len(fieldArgs) == 0 || len(fieldArgs)%2 != 0 {
		return syntaxError()
	}
	fields := make([]string, len(fieldArgs))
	for j, f := range fieldArgs {
		fields[j] = string(f)
	}

	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, exists := db.Get(key, now)
	var st *store.RStream
	if exists {
		var ok bool
		st, ok = e.Value.(*store.RStream)
		if !ok {
			return wrongType()
		}
	} else {
		if nomkstream {
			return resp.NullBulk()
		}
		st = store.NewRStream()
		db.Set(key, st, nil)
	}

	var id store.StreamID
	if idArg == "*" {
		id = st.NextID(uint64(now))
	} else {
		parsed, err := store.ParseStreamID(idArg, 0)
		if err != nil {
			return resp.Error("ERR Invalid stream ID specified as stream command argument")
		}
		if !st.LastID.Less(parsed) && (st.LastID != store.StreamID{}) {
			return resp.Error("ERR The ID specified in XADD is equal or smaller than the target stream top item")
		}
		id = parsed
	}
	st.Add(id, fields)
	if maxLen >= 0 {
		st.TrimToMaxLen(maxLen)
	}
	ctx.Touch(key)
	return resp.BulkString(id.String())
}

func cmdXLen(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	st, errv := getRStream(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if st == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(st.Len()))
}

func parseRangeBound(b []byte, isStart bool) (store.StreamID, bool, error) {
	s := string(b)
	excl := false
	if strings.HasPrefix(s, "(") {
		excl = true
		s = s[1:]
	}
	switch s {
	case "-":
		return store.StreamID{Ms: 0, Seq: 0}, excl, nil
	case "+":
		return store.StreamID{Ms: ^uint64(0), Seq: ^uint64(0)}, excl, nil
	}
	defaultSeq := uint64(0)
	if !isStart {
		defaultSeq = ^uint64(0)
	}
	id, err := store.ParseStreamID(s, defaultSeq)
	return id, excl, err
}

func cmdXRange(ctx *Context, args [][]byte) resp.Value {
	lo, loExcl, err1 := parseRangeBound(args[2], true)
	hi, hiExcl, err2 := parseRangeBound(args[3], false)
	if err1 != nil || err2 != nil {
		return resp.Error("ERR Invalid stream ID specified as stream command argument")
	}
	count := -1
	if len(args) >= 6 && strings.EqualFold(string(args[4]), "COUNT") {
		n, err := parseInt(args[5])
		if err != nil {
			return notInteger()
		}
		count = int(n)
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	st, errv := getRStream(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if st == nil {
		return resp.Array(nil)
	}
	entries := st.Range(lo, hi, loExcl, hiExcl, count)
	out := make([]resp.Value, len(entries))
	for i, e := range entries {
		out[i] = entryToArray(e)
	}
	return resp.Array(out)
}

func cmdXRevRange(ctx *Context, args [][]byte) resp.Value {
	hi, hiExcl, err1 := parseRangeBound(args[2], false)
	lo, loExcl, err2 := parseRangeBound(args[3], true)
	if err1 != nil || err2 != nil {
		return resp.Error("ERR Invalid stream ID specified as stream command argument")
	}
	count := -1
	if len(args) >= 6 && strings.EqualFold(string(args[4]), "COUNT") {
		n, err := parseInt(args[5])
		if err != nil {
			return notInteger()
		}
		count = int(n)
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	st, errv := getRStream(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if st == nil {
		return resp.Array(nil)
	}
	entries := st.Range(lo, hi, loExcl, hiExcl, count)
	out := make([]resp.Value, len(entries))
	for i := range entries {
		out[len(entries)-1-i] = entryToArray(entries[i])
	}
	return resp.Array(out)
}

func cmdXDel(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	st, errv := getRStream(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if st == nil {
		return resp.Integer(0)
	}
	ids := make([]store.StreamID, 0, len(args)-2)
	for _, a := range args[2:] {
		id, err := store.ParseStreamID(string(a), 0)
		if err != nil {
			return resp.Error("ERR Invalid stream ID specified as stream command argument")
		}
		ids = append(ids, id)
	}
	removed := st.DeleteIDs(ids)
	if removed > 0 {
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(int64(removed))
}

func cmdXTrim(ctx *Context, args [][]byte) resp.Value {
	strategy := strings.ToUpper(string(args[2]))
	if strategy != "MAXLEN" {
		return resp.Error("ERR syntax error, MAXLEN is currently the only supported trim strategy")
	}
	i := 3
	if i < len(args) && (string(args[i]) == "~" || string(args[i]) == "=") {
		i++
	}
	if i >= len(args) {
		return syntaxError()
	}
	n, err := parseInt(args[i])
	if err != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	st, errv := getRStream(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if st == nil {
		return resp.Integer(0)
	}
	removed := st.TrimToMaxLen(int(n))
	if removed > 0 {
		ctx.Touch(string(args[1]))
	}
	return resp.Integer(int64(removed))
}

// cmdXRead implements the non-blocking form of XREAD [COUNT n] STREAMS
// key [key ...] id [id ...]; XREAD BLOCK is not offered since spec.md
// §4.5's blocking-command set does not name it.
func cmdXRead(ctx *Context, args [][]byte) resp.Value {
	count := -1
	i := 1
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "COUNT":
			i++
			if i >= len(args) {
				return syntaxError()
			}
			n, err := parseInt(args[i])
			if err != nil {
				return notInteger()
			}
			count = int(n)
			i++
		case "STREAMS":
			i++
			goto streamsFound
		default:
			return syntaxError()
		}
	}
	return syntaxError()
streamsFound:
	rest := args[i:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return syntaxError()
	}
	n := len(rest) / 2
	keys := rest[:n]
	ids := rest[n:]

	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	var out []resp.Value
	for j, k := range keys {
		st, errv := getRStream(ctx, string(k), false)
		if errv.Kind == resp.KindError {
			return errv
		}
		if st == nil {
			continue
		}
		var after store.StreamID
		if string(ids[j]) == "$" {
			after = st.LastID
		} else {
			parsed, err := store.ParseStreamID(string(ids[j]), ^uint64(0))
			if err != nil {
				return resp.Error("ERR Invalid stream ID specified as stream command argument")
			}
			after = parsed
		}
		entries := st.EntriesAfter(after, count)
		if len(entries) == 0 {
			continue
		}
		items := make([]resp.Value, len(entries))
		for m, e := range entries {
			items[m] = entryToArray(e)
		}
		out = append(out, resp.Array([]resp.Value{resp.BulkString(string(k)), resp.Array(items)}))
	}
	if out == nil {
		return resp.NullArray()
	}
	return resp.Array(out)
}

func cmdXGroup(ctx *Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[1]))
	switch sub {
	case "CREATE":
		if len(args) < 5 {
			return syntaxError()
		}
		key, group, idArg := string(args[2]), string(args[3]), string(args[4])
		mkstream := len(args) >= 6 && strings.EqualFold(string(args[5]), "MKSTREAM")
		s := ctx.Disp.Store
		s.Lock()
		defer s.Unlock()
		st, errv := getRStream(ctx, key, mkstream)
		if errv.Kind == resp.KindError {
			return errv
		}
		if st == nil {
			return resp.Error("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
		}
		if _, exists := st.Groups[group]; exists {
			return resp.Error("BUSYGROUP Consumer Group name already exists")
		}
		last := st.LastID
		if idArg != "$" {
			parsed, err := store.ParseStreamID(idArg, 0)
			if err != nil {
				return resp.Error("ERR Invalid stream ID specified as stream command argument")
			}
			last = parsed
		}
		st.Groups[group] = &store.ConsumerGroup{LastDelivered: last, Consumers: map[string]bool{}}
		st.Pending[group] = map[store.StreamID]*store.PendingEntry{}
		ctx.Touch(key)
		return resp.OK()
	case "DESTROY":
		if len(args) < 4 {
			return syntaxError()
		}
		key, group := string(args[2]), string(args[3])
		s := ctx.Disp.Store
		s.Lock()
		defer s.Unlock()
		st, errv := getRStream(ctx, key, false)
		if errv.Kind == resp.KindError {
			return errv
		}
		if st == nil {
			return resp.Integer(0)
		}
		if _, ok := st.Groups[group]; !ok {
			return resp.Integer(0)
		}
		delete(st.Groups, group)
		delete(st.Pending, group)
		ctx.Touch(key)
		return resp.Integer(1)
	case "CREATECONSUMER":
		if len(args) < 5 {
			return syntaxError()
		}
		key, group, consumer := string(args[2]), string(args[3]), string(args[4])
		s := ctx.Disp.Store
		s.Lock()
		defer s.Unlock()
		st, errv := getRStream(ctx, key, false)
		if errv.Kind == resp.KindError {
			return errv
		}
		if st == nil {
			return resp.Error("NOGROUP No such key or consumer group")
		}
		grp, ok := st.Groups[group]
		if !ok {
			return resp.Error("NOGROUP No such key or consumer group")
		}
		if grp.Consumers[consumer] {
			return resp.Integer(0)
		}
		grp.Consumers[consumer] = true
		return resp.Integer(1)
	default:
		return resp.Error("ERR unknown XGROUP subcommand")
	}
}

func cmdXReadGroup(ctx *Context, args [][]byte) resp.Value {
	if !strings.EqualFold(string(args[1]), "GROUP") {
		return syntaxError()
	}
	group, consumer := string(args[2]), string(args[3])
	i := 4
	count := -1
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "COUNT":
			i++
			if i >= len(args) {
				return syntaxError()
			}
			n, err := parseInt(args[i])
			if err != nil {
				return notInteger()
			}
			count = int(n)
			i++
		case "NOACK":
			i++
		case "STREAMS":
			i++
			goto streamsFound
		default:
			return syntaxError()
		}
	}
	return syntaxError()
streamsFound:
	rest := args[i:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return syntaxError()
	}
	n := len(rest) / 2
	keys := rest[:n]
	ids := rest[n:]

	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	var out []resp.Value
	for j, k := range keys {
		key := string(k)
		st, errv := getRStream(ctx, key, false)
		if errv.Kind == resp.KindError {
			return errv
		}
		if st == nil {
			return resp.Error("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
		}
		grp, ok := st.Groups[group]
		if !ok {
			return resp.Error("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
		}
		grp.Consumers[consumer] = true

		var entries []store.StreamEntry
		if string(ids[j]) == ">" {
			entries = st.EntriesAfter(grp.LastDelivered, count)
			if len(entries) > 0 {
				grp.LastDelivered = entries[len(entries)-1].ID
				now := store.NowMillis()
				pend := st.Pending[group]
				for _, e := range entries {
					pend[e.ID] = &store.PendingEntry{ID: e.ID, Consumer: consumer, DeliveryTime: now, DeliveryCount: 1}
				}
			}
		} else {
			// Re-deliver this consumer's own pending entries from id onward.
			after, err := store.ParseStreamID(string(ids[j]), 0)
			if err != nil {
				return resp.Error("ERR Invalid stream ID specified as stream command argument")
			}
			pend := st.Pending[group]
			for id, pe := range pend {
				if pe.Consumer == consumer && !id.Less(after) {
					for _, e := range st.Entries {
						if e.ID == id {
							entries = append(entries, e)
						}
					}
				}
			}
		}
		if len(entries) == 0 {
			continue
		}
		items := make([]resp.Value, len(entries))
		for m, e := range entries {
			items[m] = entryToArray(e)
		}
		out = append(out, resp.Array([]resp.Value{resp.BulkString(key), resp.Array(items)}))
		if len(entries) > 0 {
			ctx.Touch(key)
		}
	}
	if out == nil {
		return resp.NullArray()
	}
	return resp.Array(out)
}

func cmdXAck(ctx *Context, args [][]byte) resp.Value {
	key, group := string(args[1]), string(args[2])
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	st, errv := getRStream(ctx, key, false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if st == nil {
		return resp.Integer(0)
	}
	pend, ok := st.Pending[group]
	if !ok {
		return resp.Integer(0)
	}
	acked := int64(0)
	for _, a := range args[3:] {
		id, err := store.ParseStreamID(string(a), 0)
		if err != nil {
			return resp.Error("ERR Invalid stream ID specified as stream command argument")
		}
		if _, ok := pend[id]; ok {
			delete(pend, id)
			acked++
		}
	}
	if acked > 0 {
		ctx.Touch(key)
	}
	return resp.Integer(acked)
}

func cmdXPending(ctx *Context, args [][]byte) resp.Value {
	key, group := string(args[1]), string(args[2])
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	st, errv := getRStream(ctx, key, false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if st == nil {
		return resp.Error("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
	}
	pend, ok := st.Pending[group]
	if !ok {
		return resp.Error("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
	}
	if len(pend) == 0 {
		return resp.Array([]resp.Value{resp.Integer(0), resp.NullBulk(), resp.NullBulk(), resp.NullArray()})
	}
	var minID, maxID store.StreamID
	first := true
	perConsumer := make(map[string]int64)
	for id, pe := range pend {
		if first || id.Less(minID) {
			minID = id
		}
		if first || maxID.Less(id) {
			maxID = id
		}
		first = false
		perConsumer[pe.Consumer]++
	}
	consumers := make([]resp.Value, 0, len(perConsumer))
	for c, n := range perConsumer {
		consumers = append(consumers, resp.Array([]resp.Value{
			resp.BulkString(c), resp.BulkString(strconv.FormatInt(n, 10)),
		}))
	}
	return resp.Array([]resp.Value{
		resp.Integer(int64(len(pend))),
		resp.BulkString(minID.String()),
		resp.BulkString(maxID.String()),
		resp.Array(consumers),
	})
}
