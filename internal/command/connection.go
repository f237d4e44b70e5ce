package command

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cedis/server/internal/config"
	"github.com/cedis/server/internal/glob"
	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

func (d *Dispatcher) registerConnectionCommands() {
	d.add("PING", 1, false, cmdPing)
	d.add("ECHO", 2, false, cmdEcho)
	d.add("QUIT", 1, false, cmdQuit)
	d.add("SELECT", 2, false, cmdSelect)
	d.add("AUTH", 2, false, cmdAuth)
	d.add("DBSIZE", 1, false, cmdDBSize)
	d.add("FLUSHDB", 1, true, cmdFlushDB)
	d.add("FLUSHALL", 1, true, cmdFlushAll)
	d.add("SWAPDB", 3, true, cmdSwapDB)
	d.add("INFO", 1, false, cmdInfo)
	d.add("CONFIG", 2, false, cmdConfig)
	d.add("TIME", 1, false, cmdTime)
	d.add("COMMAND", 1, false, cmdCommand)
	d.add("CLIENT", 2, false, cmdClient)
	d.add("DEBUG", 2, false, cmdDebug)
	d.add("RESET", 1, false, cmdReset)
	d.add("HELLO", 1, false, cmdHello)
	d.add("WAIT", 3, false, cmdWait)
	d.add("MONITOR", 1, false, cmdMonitor)
}

func cmdPing(ctx *Context, args [][]byte) resp.Value {
	if ctx.Client.InSubscribeMode() {
		msg := resp.BulkString("PONG")
		if len(args) >= 2 {
			msg = resp.Bulk(args[1])
		}
		return resp.Array([]resp.Value{resp.BulkString("pong"), msg})
	}
	if len(args) >= 2 {
		return resp.Bulk(args[1])
	}
	return resp.SimpleString("PONG")
}

func cmdEcho(ctx *Context, args [][]byte) resp.Value { return resp.Bulk(args[1]) }

func cmdQuit(ctx *Context, args [][]byte) resp.Value {
	ctx.Client.ShouldClose = true
	return resp.OK()
}

func cmdSelect(ctx *Context, args [][]byte) resp.Value {
	idx, err := parseInt(args[1])
	if err != nil {
		return notInteger()
	}
	if idx < 0 || int(idx) >= ctx.Disp.Store.NumDatabases() {
		return resp.Error("ERR DB index is out of range")
	}
	ctx.Client.DBIndex = int(idx)
	return resp.OK()
}

func cmdAuth(ctx *Context, args [][]byte) resp.Value {
	pass := ctx.Disp.Config.RequirePass
	if pass == "" {
		return resp.Error("ERR Client sent AUTH, but no password is set. Did you mean AUTH <username> <password>?")
	}
	if string(args[1]) != pass {
		return resp.Error("WRONGPASS invalid username-password pair or user is disabled.")
	}
	ctx.Client.Authenticated = true
	return resp.OK()
}

func cmdDBSize(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	return resp.Integer(int64(ctx.DB().DBSize(store.NowMillis())))
}

func cmdFlushDB(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	ctx.DB().Flush()
	return resp.OK()
}

func cmdFlushAll(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	s.FlushAll()
	return resp.OK()
}

func cmdSwapDB(ctx *Context, args [][]byte) resp.Value {
	a, err1 := parseInt(args[1])
	b, err2 := parseInt(args[2])
	if err1 != nil || err2 != nil {
		return notInteger()
	}
	s := ctx.Disp.Store
	if a < 0 || b < 0 || int(a) >= s.NumDatabases() || int(b) >= s.NumDatabases() {
		return resp.Error("ERR DB index is out of range")
	}
	s.Lock()
	defer s.Unlock()
	s.SwapDB(int(a), int(b))
	return resp.OK()
}

func cmdInfo(ctx *Context, args [][]byte) resp.Value {
	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\ncedis_version:1.0.0\r\nrun_id:%s\r\nprocess_id:%d\r\ntcp_port:%d\r\n", ctx.Disp.RunID, 1, ctx.Disp.Config.Port)
	fmt.Fprintf(&b, "# Clients\r\nconnected_clients:%d\r\n", 0)
	fmt.Fprintf(&b, "# Memory\r\nused_memory:%d\r\n", ctx.Disp.Store.DB(0).EstimatedMemory())
	b.WriteString("# Replication\r\n")
	fmt.Fprintf(&b, "role:%s\r\n", replRole(ctx.Disp))
	if ctx.Disp.Repl != nil {
		fmt.Fprintf(&b, "connected_slaves:%d\r\n", ctx.Disp.Repl.ConnectedFollowers())
		fmt.Fprintf(&b, "master_replid:%s\r\n", ctx.Disp.Repl.ReplID())
		fmt.Fprintf(&b, "master_repl_offset:%d\r\n", ctx.Disp.Repl.Offset())
	}
	fmt.Fprintf(&b, "# CPU\r\nos:%s\r\ngo_goroutines:%d\r\n", runtime.GOOS, runtime.NumGoroutine())
	return resp.Bulk([]byte(b.String()))
}

func replRole(d *Dispatcher) string {
	if d.Repl != nil && d.Repl.IsReplica() {
		return "slave"
	}
	return "master"
}

func cmdConfig(ctx *Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[1]))
	switch sub {
	case "GET":
		if len(args) < 3 {
			return syntaxError()
		}
		pattern := string(args[2])
		var out []resp.Value
		for _, name := range configMatching(pattern) {
			v, ok := ctx.Disp.Config.Get(name)
			if !ok {
				continue
			}
			out = append(out, resp.BulkString(name), resp.BulkString(v))
		}
		return resp.Array(out)
	case "SET":
		if len(args) < 4 {
			return syntaxError()
		}
		if err := ctx.Disp.Config.Set(string(args[2]), string(args[3])); err != nil {
			return resp.Error("ERR " + err.Error())
		}
		return resp.OK()
	case "RESETSTAT":
		return resp.OK()
	default:
		return resp.Error("ERR Unknown CONFIG subcommand")
	}
}

func configMatching(pattern string) []string {
	var out []string
	for _, name := range config.AllParameterNames() {
		if glob.MatchString(pattern, name) {
			out = append(out, name)
		}
	}
	return out
}

func cmdTime(ctx *Context, args [][]byte) resp.Value {
	now := time.Now()
	return resp.Array([]resp.Value{
		resp.BulkString(strconv.FormatInt(now.Unix(), 10)),
		resp.BulkString(strconv.FormatInt(int64(now.Nanosecond()/1000), 10)),
	})
}

func cmdCommand(ctx *Context, args [][]byte) resp.Value {
	if len(args) >= 2 && strings.EqualFold(string(args[1]), "COUNT") {
		return resp.Integer(int64(len(ctx.Disp.commands)))
	}
	return resp.Array(nil)
}

func cmdClient(ctx *Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[1]))
	switch sub {
	case "SETNAME":
		if len(args) < 3 {
			return syntaxError()
		}
		ctx.Client.Name = string(args[2])
		return resp.OK()
	case "GETNAME":
		return resp.BulkString(ctx.Client.Name)
	case "ID":
		return resp.Integer(int64(ctx.Client.ID))
	case "LIST":
		return resp.BulkString(fmt.Sprintf("id=%d addr=%s db=%d\n", ctx.Client.ID, ctx.Client.Addr, ctx.Client.DBIndex))
	case "INFO":
		return resp.BulkString(fmt.Sprintf("id=%d addr=%s db=%d", ctx.Client.ID, ctx.Client.Addr, ctx.Client.DBIndex))
	default:
		return resp.OK()
	}
}

func cmdDebug(ctx *Context, args [][]byte) resp.Value {
	if len(args) >= 2 && strings.EqualFold(string(args[1]), "SLEEP") {
		if len(args) >= 3 {
			if secs, err := parseFloat(args[2]); err == nil {
				time.Sleep(time.Duration(secs * float64(time.Second)))
			}
		}
		return resp.OK()
	}
	return resp.OK()
}

func cmdReset(ctx *Context, args [][]byte) resp.Value {
	ctx.Client.ResetTransaction()
	ctx.Disp.PubSub.UnsubscribeAll(ctx.Client.ID)
	ctx.Client.Subscriptions = 0
	ctx.Client.DBIndex = 0
	ctx.Client.Authenticated = ctx.Disp.Config.RequirePass == ""
	return resp.SimpleString("RESET")
}

func cmdHello(ctx *Context, args [][]byte) resp.Value {
	return resp.Array([]resp.Value{
		resp.BulkString("server"), resp.BulkString("cedis"),
		resp.BulkString("version"), resp.BulkString("1.0.0"),
		resp.BulkString("proto"), resp.Integer(2),
		resp.BulkString("id"), resp.Integer(int64(ctx.Client.ID)),
		resp.BulkString("mode"), resp.BulkString("standalone"),
		resp.BulkString("role"), resp.BulkString(replRole(ctx.Disp)),
	})
}

func cmdWait(ctx *Context, args [][]byte) resp.Value {
	// WAIT consults neither follower acknowledgements nor the
	// connected-replica count: it always replies 0. spec.md only requires
	// the command exist.
	return resp.Integer(0)
}

func cmdMonitor(ctx *Context, args [][]byte) resp.Value {
	ctx.Client.InMonitor = true
	return resp.OK()
}

