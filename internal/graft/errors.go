package graft

import (
	"fmt"
	"strings"
)

// EntryError records a single failed entry of a graft.
type EntryError struct {
	Src string
	Dst string
	Err error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("%s -> %s: %v", e.Src, e.Dst, e.Err)
}

func (e EntryError) Unwrap() error { return e.Err }

// Error is the aggregate failure of a graft. It is only returned when at
// least one entry failed; every other entry was still attempted.
type Error struct {
	Entries []EntryError
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graft: %d entries failed", len(e.Entries))
	for _, entry := range e.Entries {
		b.WriteString("\n\t")
		b.WriteString(entry.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Entries))
	for i, entry := range e.Entries {
		errs[i] = entry
	}
	return errs
}

type abortError struct {
	err error
}

func (a *abortError) Error() string { return a.err.Error() }
func (a *abortError) Unwrap() error { return a.err }

// Abort marks err as fatal. A CopyFunc returning an aborted error stops the
// whole graft; Graft then returns err itself instead of an aggregate.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &abortError{err: err}
}
