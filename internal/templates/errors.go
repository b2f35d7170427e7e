package templates

import "fmt"

// DeserializationError reports a persisted template list that could not be decoded.
// Callers on the startup path log it and continue with an empty list.
type DeserializationError struct {
	Key string
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// SerializationError reports a template list that could not be encoded or written.
// The in-memory list stays authoritative; the change may not survive a restart.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }
