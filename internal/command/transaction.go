package command

import (
	"github.com/cedis/server/internal/client"
	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

// Transaction commands (C6): MULTI/EXEC/DISCARD queue and replay a batch of
// commands, WATCH/UNWATCH arm optimistic-lock invalidation checked at EXEC
// time. Grounded on original_source/src/command/transaction.rs.
func (d *Dispatcher) registerTransactionCommands() {
	d.add("MULTI", 1, false, cmdMulti)
	d.add("EXEC", 1, false, cmdExec)
	d.add("DISCARD", 1, false, cmdDiscard)
	d.add("WATCH", 2, false, cmdWatch)
	d.add("UNWATCH", 1, false, cmdUnwatch)
}

func cmdMulti(ctx *Context, args [][]byte) resp.Value {
	if ctx.Client.InMulti {
		return resp.Error("ERR MULTI calls can not be nested")
	}
	ctx.Client.InMulti = true
	ctx.Client.MultiQueue = nil
	ctx.Client.MultiError = false
	return resp.OK()
}

func cmdDiscard(ctx *Context, args [][]byte) resp.Value {
	if !ctx.Client.InMulti {
		return resp.Error("ERR DISCARD without MULTI")
	}
	ctx.Client.ResetTransaction()
	return resp.OK()
}

func cmdWatch(ctx *Context, args [][]byte) resp.Value {
	if ctx.Client.InMulti {
		return resp.Error("ERR WATCH inside MULTI is not allowed")
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	db := ctx.DB()
	now := store.NowMillis()
	for _, k := range args[1:] {
		key := string(k)
		var entryVersion uint64
		if e, ok := db.Get(key, now); ok {
			entryVersion = e.Version
		}
		ctx.Client.WatchedKeys = append(ctx.Client.WatchedKeys, client.WatchedKey{
			DBIndex:      ctx.Client.DBIndex,
			Key:          key,
			EntryVersion: entryVersion,
			DBVersion:    db.Version(),
		})
	}
	return resp.OK()
}

func cmdUnwatch(ctx *Context, args [][]byte) resp.Value {
	ctx.Client.WatchedKeys = nil
	ctx.Client.WatchDirty = false
	return resp.OK()
}

// watchedKeysDirty reports whether any key the client WATCHed has changed
// (its own version, or its database's version, moved past the snapshot
// taken at WATCH time) since being armed.
func watchedKeysDirty(d *Dispatcher, c *client.State) bool {
	if len(c.WatchedKeys) == 0 {
		return false
	}
	now := store.NowMillis()
	for _, w := range c.WatchedKeys {
		db := d.Store.DB(w.DBIndex)
		if db.Version() != w.DBVersion {
			return true
		}
		e, ok := db.Get(w.Key, now)
		if !ok {
			if w.EntryVersion != 0 {
				return true
			}
			continue
		}
		if e.Version != w.EntryVersion {
			return true
		}
	}
	return false
}

func cmdExec(ctx *Context, args [][]byte) resp.Value {
	c := ctx.Client
	if !c.InMulti {
		return resp.Error("ERR EXEC without MULTI")
	}
	if c.MultiError {
		c.ResetTransaction()
		return resp.Error("EXECABORT Transaction discarded because of previous errors.")
	}

	d := ctx.Disp
	s := d.Store
	s.RLock()
	dirty := watchedKeysDirty(d, c)
	s.RUnlock()
	if dirty {
		c.ResetTransaction()
		return resp.NullArray()
	}

	queued := c.MultiQueue
	c.ResetTransaction()

	out := make([]resp.Value, len(queued))
	for i, q := range queued {
		out[i] = d.execQueued(c, q.Name, q.Args)
	}
	return resp.Array(out)
}

// execQueued runs one previously-queued command outside Dispatch's normal
// entry path (auth/subscribe/queueing gating no longer applies once inside
// EXEC), but still performs the write-path tail: persistence tee,
// replication propagation, and key-watcher notification.
func (d *Dispatcher) execQueued(c *client.State, name string, args [][]byte) resp.Value {
	spec, known := d.commands[name]
	if !known {
		return resp.Error(unknownCommandError(name, args[1:]))
	}
	if len(args) < spec.Arity {
		return resp.Error("ERR wrong number of arguments for '" + name + "' command")
	}
	ctx := &Context{Client: c, Disp: d}
	result := spec.Handler(ctx, args)
	if spec.IsWrite && !result.IsError() && !c.IsReplicationLink {
		if d.Persist != nil {
			d.Persist.LogCommand(c.DBIndex, args)
		}
		d.bumpSaveCounter()
		if d.Repl != nil {
			d.Repl.Propagate(c.DBIndex, args)
		}
		for _, k := range ctx.touched {
			d.Watcher.Notify(k)
		}
	}
	return result
}
