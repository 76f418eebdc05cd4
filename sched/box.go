package sched

import (
	"fmt"
	"image/color"

	"honnef.co/go/schedbox/histo"
	"honnef.co/go/schedbox/trace"
)

// Family selects the events that open intervals.
type Family uint8

const (
	// Wakeup intervals start when a task is woken up and end when it gets switched away from.
	Wakeup Family = iota
	// Switch intervals start when the CPU switches away from a task and end when it switches back to it.
	Switch
)

func (fam Family) String() string {
	switch fam {
	case Wakeup:
		return "wakeup"
	case Switch:
		return "switch"
	default:
		return fmt.Sprintf("Family(%d)", fam)
	}
}

func (fam Family) MarshalText() ([]byte, error) {
	return []byte(fam.String()), nil
}

// Box is an interval of a task's activity, spanning from the bin it was opened in to the bin it was closed in.
type Box struct {
	OpenBin  int `json:"open_bin"`
	CloseBin int `json:"close_bin"`
	// Timestamps of the entries that opened and closed the box.
	Open  trace.Timestamp `json:"open"`
	Close trace.Timestamp `json:"close"`

	Color   color.NRGBA `json:"-"`
	Variant string      `json:"variant"`
	Family  Family      `json:"family"`
}

func (b Box) String() string {
	return fmt.Sprintf("%s/%s[%d, %d]", b.Variant, b.Family, b.OpenBin, b.CloseBin)
}

// opens reports whether back, the last entry of a bin matching the family's start predicate, opens an interval.
func (c *Classifier) opens(back *trace.Entry, pid uint32, fam Family) bool {
	switch fam {
	case Switch:
		// The switch is away from pid, not towards it.
		return c.IsSwitchEvent(back) && back.PID != pid
	case Wakeup:
		woken, success, ok := c.WakeupPID(back)
		return ok && success && woken == pid
	default:
		return false
	}
}

// closes reports whether front, the first entry of a bin attributed to pid, closes an interval.
func (c *Classifier) closes(front *trace.Entry, pid uint32) bool {
	return c.IsSwitchEvent(front) && front.PID == pid
}

// build runs the interval state machine over all bins of h and appends completed boxes to out. An interval that is
// still open after the last bin is dropped.
func (c *Classifier) build(h *histo.Histogram, pid uint32, fam Family, out []Box) []Box {
	start := c.IsSwitchStart
	if fam == Wakeup {
		start = c.IsWakeup
	}

	var (
		open bool
		box  Box
	)
	for bin := range h.NumBins() {
		if c.variant.DenseBin > 0 && h.BinCount(bin) > c.variant.DenseBin {
			continue
		}

		front, hasFront := h.EntryFront(bin, pid, false, c.IsStop).Get()
		back, hasBack := h.EntryBack(bin, pid, false, start).Get()

		if !open && hasBack && c.opens(back, pid, fam) {
			open = true
			box = Box{
				OpenBin: bin,
				Open:    back.Timestamp,
				Color:   c.variant.Color(fam),
				Variant: c.variant.Name,
				Family:  fam,
			}
		}

		if open && hasFront && c.closes(front, pid) {
			box.CloseBin = bin
			box.Close = front.Timestamp
			out = append(out, box)
			open = false
		}
	}
	return out
}
