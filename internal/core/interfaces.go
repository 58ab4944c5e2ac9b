package core

// Frame is a serialized wire payload (one JSON envelope).
type Frame []byte

// Connection abstracts a client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	TrySend(Frame) error
	Close()
}
