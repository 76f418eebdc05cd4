package sched

import (
	"image/color"

	mycolor "honnef.co/go/schedbox/color"
	"honnef.co/go/schedbox/trace/store"
)

// Event names an event kind in a format catalogue.
type Event struct {
	System string
	Name   string
}

func (ev Event) String() string { return ev.System + "/" + ev.Name }

// Variant describes one family of scheduler events: which events signal context switches and wakeups, which of
// their fields carry pids, and how boxes derived from them are drawn.
type Variant struct {
	Name string

	Switch Event
	// Field holding the pid of the task being switched to.
	SwitchNextPID string
	// Field holding the pid of the task being switched away from.
	SwitchPrevPID string

	Wakeup Event
	// Field holding the pid of the woken task.
	WakeupPID string
	// Optional field that is zero if the wakeup didn't succeed. Wakeups are considered successful if the event
	// doesn't have this field.
	WakeupSuccess string

	SwitchColor color.NRGBA
	WakeupColor color.NRGBA

	// Bins with more entries than this are skipped. Zero disables skipping.
	DenseBin int
}

// Linux is the variant for the mainline kernel's scheduler events.
var Linux = Variant{
	Name:          "linux",
	Switch:        Event{"sched", "sched_switch"},
	SwitchNextPID: "next_pid",
	SwitchPrevPID: "prev_pid",
	Wakeup:        Event{"sched", "sched_wakeup"},
	WakeupPID:     "pid",
	WakeupSuccess: "success",
	SwitchColor:   mycolor.RGBA(0xFF0000FF),
	WakeupColor:   mycolor.RGBA(0x00FF00FF),
	DenseBin:      100,
}

// Cobalt is the variant for the events of Xenomai's Cobalt real-time core.
var Cobalt = Variant{
	Name:          "cobalt",
	Switch:        Event{"cobalt_core", "cobalt_switch_context"},
	SwitchNextPID: "next_pid",
	SwitchPrevPID: "prev_pid",
	Wakeup:        Event{"cobalt_core", "cobalt_thread_resume"},
	WakeupPID:     "pid",
	SwitchColor:   mycolor.RGBA(0xFFFF00FF),
	WakeupColor:   mycolor.RGBA(0x800080FF),
	DenseBin:      20,
}

// Builtin returns the built-in variants.
func Builtin() []Variant {
	return []Variant{Linux, Cobalt}
}

// Color returns the color of boxes of a family.
func (v *Variant) Color(fam Family) color.NRGBA {
	if fam == Switch {
		return v.SwitchColor
	}
	return v.WakeupColor
}

// PIDRewrites returns the ingest rewrites that attribute switch entries to the task being switched to, as the
// classifiers expect.
func PIDRewrites(variants ...Variant) []store.Rewrite {
	out := make([]store.Rewrite, len(variants))
	for i, v := range variants {
		out[i] = store.Rewrite{System: v.Switch.System, Event: v.Switch.Name, Field: v.SwitchNextPID}
	}
	return out
}
