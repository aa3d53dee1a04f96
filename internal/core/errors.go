package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when a record does not exist
var ErrNotFound = errors.New("record not found")

// MalformedInputError marks a message that cannot be processed (missing
// sender, empty body). The message is logged and skipped; the batch continues.
type MalformedInputError struct {
	MessageID string
	Reason    string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed message %q: %s", e.MessageID, e.Reason)
}

// TransientError marks a recoverable failure of an external capability
// (inference timeout, quota exhaustion). It triggers the component fallback
// policy and never aborts a batch.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// StateCorruptionError marks a persisted-store invariant violation found on
// read. Fatal for the affected thread or message; fatal for the whole
// invocation only when neither is known, meaning the store itself is
// unreadable.
type StateCorruptionError struct {
	ThreadKey string
	MessageID string
	Detail    string
}

func (e *StateCorruptionError) Error() string {
	switch {
	case e.ThreadKey != "":
		return fmt.Sprintf("state corrupted for thread %s: %s", e.ThreadKey, e.Detail)
	case e.MessageID != "":
		return fmt.Sprintf("state corrupted for message %s: %s", e.MessageID, e.Detail)
	default:
		return fmt.Sprintf("state store corrupted: %s", e.Detail)
	}
}

// Fatal reports whether the corruption affects the store as a whole, in which
// case no per-thread isolation is possible and the invocation must abort.
func (e *StateCorruptionError) Fatal() bool { return e.ThreadKey == "" && e.MessageID == "" }

// IsMalformed reports whether err is a MalformedInputError
func IsMalformed(err error) bool {
	var m *MalformedInputError
	return errors.As(err, &m)
}

// IsTransient reports whether err is a TransientError
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
