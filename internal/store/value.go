package store

// Value is the core tagged container stored in an Entry: one of the typed
// RedisValue variants (original_source/src/types/mod.rs). Go has no sum
// types, so this is modeled as an interface with a TypeName discriminator
// instead of the Rust enum; command handlers type-switch on the concrete
// type the way the original matches on the enum variant.
type Value interface {
	TypeName() string
	// Clone returns a deep copy, used by COPY and by snapshot restore.
	Clone() Value
}

const (
	TypeString = "string"
	TypeList   = "list"
	TypeHash   = "hash"
	TypeSet    = "set"
	TypeZSet   = "zset"
	TypeStream = "stream"
)
