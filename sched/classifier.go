package sched

import (
	"honnef.co/go/schedbox/trace"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned by Resolve when a trace lacks the events or fields a variant needs.
var ErrUnavailable = errors.New("scheduler events unavailable")

// RecordSource provides scoped access to raw records. The record passed to fn is only valid during the call.
type RecordSource interface {
	ReadAt(loc trace.Locator, fn func(rec []byte) error) error
}

// Classifier decides which entries start or stop a task's activity, according to a variant. It is immutable once
// resolved.
type Classifier struct {
	variant Variant
	src     RecordSource

	switchID uint16
	wakeupID uint16

	nextPID  *trace.Field
	prevPID  *trace.Field
	wokenPID *trace.Field

	// nil if the wakeup event has no success field
	success *trace.Field
}

// Resolve looks up the events and fields of v in cat. The error wraps ErrUnavailable if any of them is missing.
func Resolve(cat *trace.Catalogue, v Variant, src RecordSource) (*Classifier, error) {
	sw, ok := cat.Event(v.Switch.System, v.Switch.Name).Get()
	if !ok {
		return nil, errors.Wrapf(ErrUnavailable, "%s: no event %s", v.Name, v.Switch)
	}
	wk, ok := cat.Event(v.Wakeup.System, v.Wakeup.Name).Get()
	if !ok {
		return nil, errors.Wrapf(ErrUnavailable, "%s: no event %s", v.Name, v.Wakeup)
	}

	c := &Classifier{
		variant:  v,
		src:      src,
		switchID: sw.ID,
		wakeupID: wk.ID,
	}
	required := []struct {
		ev    *trace.EventFormat
		name  string
		field **trace.Field
	}{
		{sw, v.SwitchNextPID, &c.nextPID},
		{sw, v.SwitchPrevPID, &c.prevPID},
		{wk, v.WakeupPID, &c.wokenPID},
	}
	for _, req := range required {
		f := req.ev.Field(req.name)
		if f == nil {
			return nil, errors.Wrapf(ErrUnavailable, "%s: event %s has no field %q", v.Name, req.ev, req.name)
		}
		*req.field = f
	}
	if v.WakeupSuccess != "" {
		c.success = wk.Field(v.WakeupSuccess)
	}
	return c, nil
}

func (c *Classifier) Variant() Variant { return c.variant }

// MatchPID reports whether an entry is attributed to pid. It is the cheapest check of all predicates and suitable as
// a general pid filter.
func MatchPID(e *trace.Entry, pid uint32) bool {
	return e.PID == pid
}

// IsStop reports whether e may end an interval of pid.
func (c *Classifier) IsStop(e *trace.Entry, pid uint32) bool {
	return MatchPID(e, pid)
}

func (c *Classifier) IsSwitchEvent(e *trace.Entry) bool {
	return e != trace.FilteredEntry && e.EventID == c.switchID
}

func (c *Classifier) IsWakeupEvent(e *trace.Entry) bool {
	return e != trace.FilteredEntry && e.EventID == c.wakeupID
}

// read reads numeric fields of e's record. It returns false if the record can't be read or any field can't be
// decoded.
func (c *Classifier) read(e *trace.Entry, fields []*trace.Field, out []uint64) bool {
	ok := true
	err := c.src.ReadAt(e.Offset, func(rec []byte) error {
		for i, f := range fields {
			out[i], ok = f.ReadNumber(rec)
			if !ok {
				break
			}
		}
		return nil
	})
	return err == nil && ok
}

// PrevPID returns the pid of the task that a switch event switched away from.
func (c *Classifier) PrevPID(e *trace.Entry) (uint32, bool) {
	if !c.IsSwitchEvent(e) {
		return 0, false
	}
	var out [1]uint64
	if !c.read(e, []*trace.Field{c.prevPID}, out[:]) {
		return 0, false
	}
	return uint32(out[0]), true
}

// NextPID returns the pid of the task that a switch event switched to. Entries of switch events normally carry it
// as their pid already.
func (c *Classifier) NextPID(e *trace.Entry) (uint32, bool) {
	if !c.IsSwitchEvent(e) {
		return 0, false
	}
	var out [1]uint64
	if !c.read(e, []*trace.Field{c.nextPID}, out[:]) {
		return 0, false
	}
	return uint32(out[0]), true
}

// WakeupPID returns the pid of the task woken by a wakeup event, and whether the wakeup succeeded.
func (c *Classifier) WakeupPID(e *trace.Entry) (pid uint32, success bool, ok bool) {
	if !c.IsWakeupEvent(e) {
		return 0, false, false
	}
	if c.success == nil {
		var out [1]uint64
		if !c.read(e, []*trace.Field{c.wokenPID}, out[:]) {
			return 0, false, false
		}
		return uint32(out[0]), true, true
	}
	var out [2]uint64
	if !c.read(e, []*trace.Field{c.wokenPID, c.success}, out[:]) {
		return 0, false, false
	}
	return uint32(out[0]), out[1] != 0, true
}

// IsSwitchStart reports whether e may start a switch interval of pid: either the entry belongs to pid, or it is a
// switch away from pid.
func (c *Classifier) IsSwitchStart(e *trace.Entry, pid uint32) bool {
	if MatchPID(e, pid) {
		return true
	}
	prev, ok := c.PrevPID(e)
	return ok && prev == pid
}

// IsWakeup reports whether e may start a wakeup interval of pid: either the entry belongs to pid, or it is a
// successful wakeup of pid.
func (c *Classifier) IsWakeup(e *trace.Entry, pid uint32) bool {
	if MatchPID(e, pid) {
		return true
	}
	woken, success, ok := c.WakeupPID(e)
	return ok && success && woken == pid
}
