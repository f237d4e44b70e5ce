package command

import (
	"math/bits"
	"strings"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

// Bitmap commands operate directly on an RString's bytes, the supplemental
// layering documented in SPEC_FULL.md §3 — Redis itself has no distinct
// bitmap container, only bit-level views over its string encoding.
func (d *Dispatcher) registerBitmapCommands() {
	d.add("SETBIT", 4, true, cmdSetBit)
	d.add("GETBIT", 3, false, cmdGetBit)
	d.add("BITCOUNT", 2, false, cmdBitCount)
	d.add("BITOP", 4, true, cmdBitOp)
	d.add("BITPOS", 3, false, cmdBitPos)
}

func cmdSetBit(ctx *Context, args [][]byte) resp.Value {
	offset, err := parseInt(args[2])
	if err != nil || offset < 0 {
		return resp.Error("ERR bit offset is not an integer or out of range")
	}
	bitVal, err := parseInt(args[3])
	if err != nil || (bitVal != 0 && bitVal != 1) {
		return resp.Error("ERR bit is not an integer or out of range")
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	e, ok := db.Get(string(args[1]), now)
	var data []byte
	var expiresAt *int64
	if ok {
		rs, ok := e.Value.(*store.RString)
		if !ok {
			return wrongType()
		}
		data = rs.Data
		expiresAt = e.ExpiresAt
	}
	byteIdx := int(offset / 8)
	if byteIdx+1 > len(data) {
		grown := make([]byte, byteIdx+1)
		copy(grown, data)
		data = grown
	}
	bitIdx := uint(7 - offset%8)
	old := (data[byteIdx] >> bitIdx) & 1
	if bitVal == 1 {
		data[byteIdx] |= 1 << bitIdx
	} else {
		data[byteIdx] &^= 1 << bitIdx
	}
	db.Set(string(args[1]), store.NewRString(data), expiresAt)
	ctx.Touch(string(args[1]))
	return resp.Integer(int64(old))
}

func cmdGetBit(ctx *Context, args [][]byte) resp.Value {
	offset, err := parseInt(args[2])
	if err != nil || offset < 0 {
		return resp.Error("ERR bit offset is not an integer or out of range")
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	rs, ok, errv := getRString(ctx, string(args[1]))
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		return resp.Integer(0)
	}
	byteIdx := int(offset / 8)
	if byteIdx >= len(rs.Data) {
		return resp.Integer(0)
	}
	bitIdx := uint(7 - offset%8)
	return resp.Integer(int64((rs.Data[byteIdx] >> bitIdx) & 1))
}

func cmdBitCount(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	rs, ok, errv := getRString(ctx, string(args[1]))
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		return resp.Integer(0)
	}
	data := rs.Data
	byBit := false
	lo, hi := 0, len(data)-1
	if len(args) >= 4 {
		start, err1 := parseInt(args[2])
		end, err2 := parseInt(args[3])
		if err1 != nil || err2 != nil {
			return notInteger()
		}
		unit := "BYTE"
		if len(args) >= 5 {
			unit = strings.ToUpper(string(args[4]))
		}
		if unit == "BIT" {
			byBit = true
			totalBits := len(data) * 8
			lo, hi = normalizeStrRange(start, end, totalBits)
		} else {
			lo, hi = normalizeStrRange(start, end, len(data))
		}
	} else if len(data) == 0 {
		return resp.Integer(0)
	}
	if lo > hi || lo < 0 {
		return resp.Integer(0)
	}
	count := int64(0)
	if byBit {
		for i := lo; i <= hi && i < len(data)*8; i++ {
			byteIdx := i / 8
			bitIdx := uint(7 - i%8)
			if (data[byteIdx]>>bitIdx)&1 == 1 {
				count++
			}
		}
		return resp.Integer(count)
	}
	if hi >= len(data) {
		hi = len(data) - 1
	}
	for i := lo; i <= hi; i++ {
		count += int64(bits.OnesCount8(data[i]))
	}
	return resp.Integer(count)
}

func cmdBitOp(ctx *Context, args [][]byte) resp.Value {
	op := strings.ToUpper(string(args[1]))
	destKey := string(args[2])
	srcKeys := args[3:]
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	db := ctx.DB()
	now := store.NowMillis()
	srcs := make([][]byte, len(srcKeys))
	maxLen := 0
	for i, k := range srcKeys {
		if e, ok := db.Get(string(k), now); ok {
			rs, ok := e.Value.(*store.RString)
			if !ok {
				return wrongType()
			}
			srcs[i] = rs.Data
			if len(rs.Data) > maxLen {
				maxLen = len(rs.Data)
			}
		}
	}
	if op == "NOT" && len(srcs) != 1 {
		return resp.Error("ERR BITOP NOT must be called with a single source key.")
	}
	result := make([]byte, maxLen)
	switch op {
	case "AND":
		for i := range result {
			result[i] = 0xFF
		}
		for _, src := range srcs {
			for i := 0; i < maxLen; i++ {
				var b byte
				if i < len(src) {
					b = src[i]
				}
				result[i] &= b
			}
		}
	case "OR":
		for _, src := range srcs {
			for i := 0; i < maxLen; i++ {
				var b byte
				if i < len(src) {
					b = src[i]
				}
				result[i] |= b
			}
		}
	case "XOR":
		for _, src := range srcs {
			for i := 0; i < maxLen; i++ {
				var b byte
				if i < len(src) {
					b = src[i]
				}
				result[i] ^= b
			}
		}
	case "NOT":
		for i := 0; i < maxLen; i++ {
			result[i] = ^srcs[0][i]
		}
	default:
		return syntaxError()
	}
	if maxLen == 0 {
		db.Delete(destKey, now)
	} else {
		db.Set(destKey, store.NewRString(result), nil)
	}
	ctx.Touch(destKey)
	return resp.Integer(int64(maxLen))
}

func cmdBitPos(ctx *Context, args [][]byte) resp.Value {
	bitVal, err := parseInt(args[2])
	if err != nil || (bitVal != 0 && bitVal != 1) {
		return resp.Error("ERR The bit argument must be 1 or 0.")
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	rs, ok, errv := getRString(ctx, string(args[1]))
	if errv.Kind == resp.KindError {
		return errv
	}
	if !ok {
		if bitVal == 0 {
			return resp.Integer(0)
		}
		return resp.Integer(-1)
	}
	data := rs.Data
	lo, hi := 0, len(data)-1
	hasRange := len(args) >= 4
	if hasRange {
		start, err1 := parseInt(args[3])
		if err1 != nil {
			return notInteger()
		}
		end := int64(len(data) - 1)
		if len(args) >= 5 {
			e, err2 := parseInt(args[4])
			if err2 != nil {
				return notInteger()
			}
			end = e
		}
		lo, hi = normalizeStrRange(start, end, len(data))
	}
	if lo > hi || lo < 0 || len(data) == 0 {
		return resp.Integer(-1)
	}
	for i := lo; i <= hi && i < len(data); i++ {
		for b := 7; b >= 0; b-- {
			bitIdx := uint(b)
			got := (data[i] >> bitIdx) & 1
			if int64(got) == bitVal {
				return resp.Integer(int64(i*8) + int64(7-b))
			}
		}
	}
	if bitVal == 0 && !hasRange {
		return resp.Integer(int64(len(data) * 8))
	}
	return resp.Integer(-1)
}
