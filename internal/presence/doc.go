// Package presence holds the bookkeeping behind the signaling hub: which
// logical user is bound to which connection, and which users are idle versus
// in a call.
//
// Nothing in this package performs I/O or locking. Callers (signaling.Hub)
// serialize access.
package presence
