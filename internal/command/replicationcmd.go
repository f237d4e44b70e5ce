package command

import (
	"strconv"
	"strings"

	"github.com/cedis/server/internal/resp"
)

// Replication-support commands (C10): REPLICAOF/SLAVEOF flips this node's
// role, SYNC/PSYNC attach a follower connection to the propagation
// pipeline, REPLCONF carries handshake and ACK metadata. Grounded on
// original_source/src/command/replication.rs and src/replication.rs.
func (d *Dispatcher) registerReplicationCommands() {
	d.add("REPLICAOF", 3, false, cmdReplicaOf)
	d.add("SLAVEOF", 3, false, cmdReplicaOf)
	d.add("SYNC", 1, false, cmdSync)
	d.add("PSYNC", 3, false, cmdPSync)
	d.add("REPLCONF", 2, false, cmdReplConf)
}

func cmdReplicaOf(ctx *Context, args [][]byte) resp.Value {
	if ctx.Disp.Repl == nil {
		return resp.Error("ERR replication is not configured on this instance")
	}
	host, port := string(args[1]), string(args[2])
	if strings.EqualFold(host, "no") && strings.EqualFold(port, "one") {
		if err := ctx.Disp.Repl.ReplicaOf("", ""); err != nil {
			return resp.Error("ERR " + err.Error())
		}
		return resp.OK()
	}
	if err := ctx.Disp.Repl.ReplicaOf(host, port); err != nil {
		return resp.Error("ERR " + err.Error())
	}
	return resp.OK()
}

// attachAsFollower runs the shared SYNC/PSYNC tail: negotiate full vs
// partial resync, write the handshake line (and snapshot body for a full
// resync) via the client's raw channel, then attach it to the backlog.
func attachAsFollower(ctx *Context, wantReplID string, wantOffset int64) resp.Value {
	c := ctx.Client
	if c.RawPush == nil {
		return resp.Error("ERR this connection cannot be attached as a replication follower")
	}
	repl := ctx.Disp.Repl
	replID, full, offset, partial, detach := repl.AttachFollower(c.ID, wantReplID, wantOffset, c.RawPush)
	c.ReplDetach = detach // the connection task (C11) must call this on disconnect
	if full {
		snap, err := repl.SnapshotBytes()
		if err != nil {
			return resp.Error("ERR " + err.Error())
		}
		c.RawPush([]byte("+FULLRESYNC " + replID + " " + strconv.FormatInt(offset, 10) + "\r\n"))
		c.RawPush([]byte("$" + strconv.Itoa(len(snap)) + "\r\n"))
		c.RawPush(snap)
	} else {
		c.RawPush([]byte("+CONTINUE " + replID + "\r\n"))
		if len(partial) > 0 {
			c.RawPush(partial)
		}
	}
	c.IsReplicaFeed = true
	return resp.Value{}
}

func cmdSync(ctx *Context, args [][]byte) resp.Value {
	return attachAsFollower(ctx, "", -1)
}

func cmdPSync(ctx *Context, args [][]byte) resp.Value {
	replID := string(args[1])
	offset, err := parseInt(args[2])
	if err != nil {
		offset = -1
	}
	if replID == "?" {
		replID = ""
	}
	return attachAsFollower(ctx, replID, offset)
}

func cmdReplConf(ctx *Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[1]))
	switch sub {
	case "LISTENING-PORT", "CAPA", "IP-ADDRESS":
		return resp.OK()
	case "ACK":
		if len(args) < 3 {
			return resp.Value{}
		}
		offset, err := parseInt(args[2])
		if err == nil && ctx.Disp.Repl != nil {
			ctx.Disp.Repl.RecordAck(ctx.Client.ID, offset)
		}
		return resp.Value{}
	case "GETACK":
		return resp.Value{}
	default:
		return resp.OK()
	}
}
