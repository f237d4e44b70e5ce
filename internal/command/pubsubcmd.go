package command

import (
	"strings"

	"github.com/cedis/server/internal/client"
	"github.com/cedis/server/internal/resp"
)

// Pub/Sub commands (C5): SUBSCRIBE/UNSUBSCRIBE/PSUBSCRIBE/PUNSUBSCRIBE arm
// and disarm delivery through internal/pubsub.Registry; PUBLISH fans a
// message out to current subscribers. Grounded on
// original_source/src/command/pubsub.rs and internal/pubsub/pubsub.go.
func (d *Dispatcher) registerPubSubCommands() {
	d.add("SUBSCRIBE", 2, false, cmdSubscribe)
	d.add("UNSUBSCRIBE", 1, false, cmdUnsubscribe)
	d.add("PSUBSCRIBE", 2, false, cmdPSubscribe)
	d.add("PUNSUBSCRIBE", 1, false, cmdPUnsubscribe)
	d.add("PUBLISH", 3, true, cmdPublish)
	d.add("PUBSUB", 2, false, cmdPubSub)
}

// clientSender adapts a client.State to pubsub.Sender without colliding
// with State's own ID field name.
type clientSender struct{ c *client.State }

func (cs clientSender) ID() uint64          { return cs.c.ID }
func (cs clientSender) Push(v resp.Value)   { cs.c.Push(v) }

func cmdSubscribe(ctx *Context, args [][]byte) resp.Value {
	sender := clientSender{ctx.Client}
	for _, ch := range args[1:] {
		count := ctx.Disp.PubSub.Subscribe(sender, string(ch))
		ctx.Client.Subscriptions = count
		ctx.Client.Push(resp.Array([]resp.Value{
			resp.BulkString("subscribe"),
			resp.BulkString(string(ch)),
			resp.Integer(int64(count)),
		}))
	}
	return resp.Value{}
}

func cmdUnsubscribe(ctx *Context, args [][]byte) resp.Value {
	sender := clientSender{ctx.Client}
	channels := args[1:]
	if len(channels) == 0 {
		channels = toByteSlices(ctx.Disp.PubSub.ClientChannelList(ctx.Client.ID))
	}
	if len(channels) == 0 {
		ctx.Client.Push(resp.Array([]resp.Value{
			resp.BulkString("unsubscribe"), resp.NullBulk(), resp.Integer(int64(ctx.Client.Subscriptions)),
		}))
		return resp.Value{}
	}
	for _, ch := range channels {
		count := ctx.Disp.PubSub.Unsubscribe(sender, string(ch))
		ctx.Client.Subscriptions = count
		ctx.Client.Push(resp.Array([]resp.Value{
			resp.BulkString("unsubscribe"),
			resp.BulkString(string(ch)),
			resp.Integer(int64(count)),
		}))
	}
	return resp.Value{}
}

func cmdPSubscribe(ctx *Context, args [][]byte) resp.Value {
	sender := clientSender{ctx.Client}
	for _, pat := range args[1:] {
		count := ctx.Disp.PubSub.PSubscribe(sender, string(pat))
		ctx.Client.Subscriptions = count
		ctx.Client.Push(resp.Array([]resp.Value{
			resp.BulkString("psubscribe"),
			resp.BulkString(string(pat)),
			resp.Integer(int64(count)),
		}))
	}
	return resp.Value{}
}

func cmdPUnsubscribe(ctx *Context, args [][]byte) resp.Value {
	sender := clientSender{ctx.Client}
	patterns := args[1:]
	if len(patterns) == 0 {
		patterns = toByteSlices(ctx.Disp.PubSub.ClientPatternList(ctx.Client.ID))
	}
	if len(patterns) == 0 {
		ctx.Client.Push(resp.Array([]resp.Value{
			resp.BulkString("punsubscribe"), resp.NullBulk(), resp.Integer(int64(ctx.Client.Subscriptions)),
		}))
		return resp.Value{}
	}
	for _, pat := range patterns {
		count := ctx.Disp.PubSub.PUnsubscribe(sender, string(pat))
		ctx.Client.Subscriptions = count
		ctx.Client.Push(resp.Array([]resp.Value{
			resp.BulkString("punsubscribe"),
			resp.BulkString(string(pat)),
			resp.Integer(int64(count)),
		}))
	}
	return resp.Value{}
}

func toByteSlices(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func cmdPublish(ctx *Context, args [][]byte) resp.Value {
	n := ctx.Disp.PubSub.Publish(string(args[1]), args[2])
	return resp.Integer(int64(n))
}

func cmdPubSub(ctx *Context, args [][]byte) resp.Value {
	sub := string(args[1])
	switch strings.ToUpper(sub) {
	case "CHANNELS":
		var pattern []byte
		if len(args) >= 3 {
			pattern = args[2]
		}
		chans := ctx.Disp.PubSub.ChannelsMatching(pattern)
		out := make([]resp.Value, len(chans))
		for i, c := range chans {
			out[i] = resp.BulkString(c)
		}
		return resp.Array(out)
	case "NUMSUB":
		channels := make([]string, len(args)-2)
		for i, a := range args[2:] {
			channels[i] = string(a)
		}
		counts := ctx.Disp.PubSub.NumSub(channels)
		out := make([]resp.Value, 0, len(channels)*2)
		for _, c := range channels {
			out = append(out, resp.BulkString(c), resp.Integer(int64(counts[c])))
		}
		return resp.Array(out)
	case "NUMPAT":
		return resp.Integer(int64(ctx.Disp.PubSub.NumPat()))
	default:
		return resp.Error("ERR Unknown PUBSUB subcommand or wrong number of arguments")
	}
}
