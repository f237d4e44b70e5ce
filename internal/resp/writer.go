package resp

import (
	"strconv"
)

// Encode serializes v in RESP reply form, appending to dst and returning
// the extended slice. Null bulk is `$-1\r\n`, null array is `*-1\r\n`.
func Encode(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindSimpleString:
		dst = append(dst, '+')
		dst = append(dst, v.Str...)
		return append(dst, '\r', '\n')
	case KindError:
		dst = append(dst, '-')
		dst = append(dst, v.Str...)
		return append(dst, '\r', '\n')
	case KindInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, v.Int, 10)
		return append(dst, '\r', '\n')
	case KindBulk:
		if v.Null {
			return append(dst, '$', '-', '1', '\r', '\n')
		}
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(v.Bulk)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, v.Bulk...)
		return append(dst, '\r', '\n')
	case KindArray:
		if v.Null {
			return append(dst, '*', '-', '1', '\r', '\n')
		}
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(v.Array)), 10)
		dst = append(dst, '\r', '\n')
		for _, item := range v.Array {
			dst = Encode(dst, item)
		}
		return dst
	default:
		return dst
	}
}

// Marshal is a convenience wrapper returning a freshly allocated slice.
func Marshal(v Value) []byte {
	return Encode(make([]byte, 0, 64), v)
}

// EncodeCommand renders args as the RESP array-of-bulk-strings form that a
// client would send, used to serialize write commands for the AOF and the
// replication backlog (spec.md §8: "the bytes fed to the backlog equal the
// bytes a client would have sent").
func EncodeCommand(args [][]byte) []byte {
	items := make([]Value, len(args))
	for i, a := range args {
		items[i] = Bulk(a)
	}
	return Marshal(Array(items))
}
