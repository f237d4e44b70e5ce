// Package rerr names the wire error taxonomy of spec.md §7, grounded on
// original_source/src/error.rs's CedisError enum. Command handlers in
// internal/command mostly construct resp.Error values directly (the error
// text itself already is the wire contract); this package exists for the
// one distinction that matters structurally rather than textually: whether
// an error is protocol-fatal (the connection must close) or a recoverable
// command error (the connection stays open).
package rerr

// Error is a classified wire error: Message is the exact text sent to the
// client (without the leading "-" RESP marker), Fatal marks a protocol
// error that must close the connection per spec.md §4.1's failure model.
type Error struct {
	Message string
	Fatal   bool
}

func (e *Error) Error() string { return e.Message }

// Protocol wraps a parser failure as a fatal wire error (spec.md §7:
// "ERR Protocol error: ..."; terminates the connection).
func Protocol(msg string) *Error {
	return &Error{Message: "ERR Protocol error: " + msg, Fatal: true}
}

func NoAuth() *Error {
	return &Error{Message: "NOAUTH Authentication required."}
}

func WrongPass() *Error {
	return &Error{Message: "WRONGPASS invalid username-password pair or user is disabled."}
}

func WrongType() *Error {
	return &Error{Message: "WRONGTYPE Operation against a key holding the wrong kind of value"}
}

func ReadOnly() *Error {
	return &Error{Message: "READONLY You can't write against a read only replica."}
}

func Loading() *Error {
	return &Error{Message: "LOADING Cedis is loading the dataset in memory"}
}

func NoScript() *Error {
	return &Error{Message: "NOSCRIPT No matching script. Please use EVAL."}
}
