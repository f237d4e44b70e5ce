package main

import (
	"strconv"

	"github.com/cedis/server/internal/store"
)

// storeDump adapts a *store.Store to persistence.RewriteSource, walking
// every database's live keys and rendering the minimal RESP write-command
// sequence that reconstructs them, grounded on internal/persistence/rdb.go's
// own writeEntry type switch (the same four container types plus string).
// Streams carry no reconstructive command here, matching rdb.go's own
// silent skip of *store.RStream.
type storeDump struct {
	s *store.Store
}

func (d storeDump) Dump() [][][][]byte {
	d.s.RLock()
	defer d.s.RUnlock()

	out := make([][][][]byte, d.s.NumDatabases())
	for i := 0; i < d.s.NumDatabases(); i++ {
		db := d.s.DB(i)
		var cmds [][][]byte
		db.Iter(func(key string, e *store.Entry) {
			switch v := e.Value.(type) {
			case *store.RString:
				cmds = append(cmds, [][]byte{[]byte("SET"), []byte(key), v.Data})
			case *store.RList:
				args := append([][]byte{[]byte("RPUSH"), []byte(key)}, v.Items...)
				cmds = append(cmds, args)
			case *store.RSet:
				args := [][]byte{[]byte("SADD"), []byte(key)}
				for m := range v.Members {
					args = append(args, []byte(m))
				}
				cmds = append(cmds, args)
			case *store.RHash:
				args := [][]byte{[]byte("HSET"), []byte(key)}
				for f, val := range v.Fields {
					args = append(args, []byte(f), val)
				}
				cmds = append(cmds, args)
			case *store.RZSet:
				args := [][]byte{[]byte("ZADD"), []byte(key)}
				for _, m := range v.All() {
					args = append(args, []byte(strconv.FormatFloat(m.Score, 'f', -1, 64)), []byte(m.Member))
				}
				cmds = append(cmds, args)
			default:
				return
			}
			if e.ExpiresAt != nil {
				cmds = append(cmds, [][]byte{[]byte("PEXPIREAT"), []byte(key), []byte(strconv.FormatInt(*e.ExpiresAt, 10))})
			}
		})
		out[i] = append([][][]byte{{[]byte("SELECT"), []byte(strconv.Itoa(i))}}, cmds...)
	}
	return out
}
