package store

// RString is the string value type: a binary-safe byte sequence. Bitmap
// commands (SETBIT/GETBIT/BITCOUNT/...) and the simplified HyperLogLog
// estimator both operate directly on this byte slice, the same way real
// Redis layers bitmaps and HLL registers over its string encoding rather
// than giving them a dedicated container (SPEC_FULL.md §3).
type RString struct {
	Data []byte
}

func NewRString(b []byte) *RString { return &RString{Data: b} }

func (s *RString) TypeName() string { return TypeString }

func (s *RString) Clone() Value {
	cp := make([]byte, len(s.Data))
	copy(cp, s.Data)
	return &RString{Data: cp}
}
