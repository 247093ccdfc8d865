package crm

import "fmt"

// FetchError reports a failed CRM read. It aborts the event's pipeline run
// and is never retried.
type FetchError struct {
	Kind       string // "deal" or "conversation"
	ID         string
	StatusCode int // 0 on transport failure
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s %s: status %d", e.Kind, e.ID, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a failed note creation. This is the terminal,
// user-visible effect of a pipeline run, so it always propagates: a swallowed
// write failure would mean the drafted reply was silently lost.
type WriteError struct {
	StatusCode int
	Err        error
}

func (e *WriteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("creating note: status %d", e.StatusCode)
	}
	return fmt.Sprintf("creating note: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
