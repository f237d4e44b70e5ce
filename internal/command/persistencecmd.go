package command

import (
	"github.com/cedis/server/internal/resp"
)

// Persistence control commands (C8/C9): SAVE/BGSAVE trigger a snapshot
// write, BGREWRITEAOF compacts the append-only log, LASTSAVE reports the
// last successful snapshot time. Grounded on
// original_source/src/command/persistence.rs.
func (d *Dispatcher) registerPersistenceCommands() {
	d.add("SAVE", 1, false, cmdSave)
	d.add("BGSAVE", 1, false, cmdBGSave)
	d.add("BGREWRITEAOF", 1, false, cmdBGRewriteAOF)
	d.add("LASTSAVE", 1, false, cmdLastSave)
}

func cmdSave(ctx *Context, args [][]byte) resp.Value {
	if ctx.Disp.Snapshot == nil {
		return resp.Error("ERR no snapshot writer configured")
	}
	if err := ctx.Disp.Snapshot.Save(); err != nil {
		return resp.Error("ERR " + err.Error())
	}
	ctx.Disp.ResetSaveCounter()
	return resp.OK()
}

func cmdBGSave(ctx *Context, args [][]byte) resp.Value {
	if ctx.Disp.Snapshot == nil {
		return resp.Error("ERR no snapshot writer configured")
	}
	snap := ctx.Disp.Snapshot
	d := ctx.Disp
	go func() {
		if err := snap.Save(); err == nil {
			d.ResetSaveCounter()
		}
	}()
	return resp.SimpleString("Background saving started")
}

func cmdBGRewriteAOF(ctx *Context, args [][]byte) resp.Value {
	if ctx.Disp.Persist == nil {
		return resp.Error("ERR no append-only log configured")
	}
	persist := ctx.Disp.Persist
	go func() {
		_ = persist.Rewrite()
	}()
	return resp.SimpleString("Background append only file rewriting started")
}

func cmdLastSave(ctx *Context, args [][]byte) resp.Value {
	return resp.Integer(ctx.Disp.LastSaveUnix())
}
