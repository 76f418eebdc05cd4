// Package trace describes kernel trace data: the entries that make up a loaded trace, the event formats published by
// tracefs, and typed access to the fields of raw records.
package trace

import "fmt"

// Timestamp is a monotonic time in nanoseconds.
type Timestamp uint64

// Locator identifies a raw record in a record store. Its interpretation belongs to the store that produced it.
type Locator uint64

// Visibility bits of Entry.Visible.
const (
	VisibleText uint8 = 1 << iota
	VisibleGraph
	VisibleEvent

	VisibleAll uint8 = 0xFF
)

// Entry is the decoded surrogate of one trace record.
//
// Entries are produced by the ingester and are immutable afterwards. For context switch events, PID holds the pid of
// the task being switched to, not the pid that emitted the record; the latter is only available from the record's
// payload.
type Entry struct {
	Timestamp Timestamp
	Offset    Locator
	PID       uint32
	EventID   uint16
	CPU       uint16
	Visible   uint8
}

func (e *Entry) String() string {
	return fmt.Sprintf("entry{ts=%d pid=%d event=%d cpu=%d}", e.Timestamp, e.PID, e.EventID, e.CPU)
}

// FilteredEntry is returned by scans that found a matching entry which was hidden by a visibility filter, and no visible
// one. It never matches a real event.
var FilteredEntry = &Entry{
	PID:     ^uint32(0),
	EventID: ^uint16(0),
}
