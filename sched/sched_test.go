package sched

import (
	"reflect"
	"testing"

	"honnef.co/go/schedbox/histo"
	"honnef.co/go/schedbox/trace"
	"honnef.co/go/schedbox/trace/formats"
	"honnef.co/go/schedbox/trace/store"

	"github.com/pkg/errors"
)

// fixture builds a trace from raw records laid out per the embedded formats.
type fixture struct {
	t       *testing.T
	cat     *trace.Catalogue
	st      *store.Store
	entries []trace.Entry
}

func newFixture(t *testing.T) *fixture {
	cat := formats.Default()
	return &fixture{
		t:   t,
		cat: cat,
		// Small chunks so that traces span several of them.
		st: store.New(cat, store.Config{ChunkSize: 4, CacheChunks: 2}),
	}
}

func (fx *fixture) add(ev Event, ts trace.Timestamp, pid uint32, fields map[string]uint64) *trace.Entry {
	fx.t.Helper()
	format, ok := fx.cat.Event(ev.System, ev.Name).Get()
	if !ok {
		fx.t.Fatalf("no event %s", ev)
	}
	rec := make([]byte, format.RecordSize())
	fields["common_type"] = uint64(format.ID)
	for name, v := range fields {
		if !format.Field(name).PutNumber(rec, v) {
			fx.t.Fatalf("couldn't set %s.%s", ev, name)
		}
	}
	fx.entries = append(fx.entries, trace.Entry{
		Timestamp: ts,
		Offset:    fx.st.Append(rec),
		PID:       pid,
		EventID:   format.ID,
		Visible:   trace.VisibleAll,
	})
	return &fx.entries[len(fx.entries)-1]
}

// switchTo records a context switch from prev to next. As after ingestion, the entry belongs to next.
func (fx *fixture) switchTo(v Variant, ts trace.Timestamp, prev, next uint32) *trace.Entry {
	fx.t.Helper()
	return fx.add(v.Switch, ts, next, map[string]uint64{
		v.SwitchPrevPID: uint64(prev),
		v.SwitchNextPID: uint64(next),
	})
}

func (fx *fixture) wakeup(v Variant, ts trace.Timestamp, waker, woken uint32, success bool) *trace.Entry {
	fx.t.Helper()
	fields := map[string]uint64{v.WakeupPID: uint64(woken)}
	if v.WakeupSuccess != "" && success {
		fields[v.WakeupSuccess] = 1
	}
	return fx.add(v.Wakeup, ts, waker, fields)
}

// histogram returns n bins of 100ns each, starting at 0.
func (fx *fixture) histogram(n int) *histo.Histogram {
	fx.t.Helper()
	fx.st.Flush()
	h := histo.New(fx.entries)
	if !h.SetBinning(n, 0, trace.Timestamp(n*100)) {
		fx.t.Fatalf("couldn't set up %d bins", n)
	}
	return h
}

func (fx *fixture) drawer(cat *trace.Catalogue, variants ...Variant) *Drawer {
	fx.t.Helper()
	if len(variants) == 0 {
		variants = Builtin()
	}
	d := NewDrawer(variants...)
	if _, err := d.Reload(cat, fx.st); err != nil {
		fx.t.Fatal(err)
	}
	return d
}

type span struct {
	open, close int
	fam         Family
	variant     string
}

func spans(boxes []Box) []span {
	var out []span
	for _, b := range boxes {
		out = append(out, span{b.OpenBin, b.CloseBin, b.Family, b.Variant})
	}
	return out
}

func checkSpans(t *testing.T, boxes []Box, want []span) {
	t.Helper()
	if got := spans(boxes); !reflect.DeepEqual(got, want) {
		t.Errorf("got boxes %v, want %v", got, want)
	}
}

// checkSequence verifies that the boxes of each variant and family are ordered and don't overlap.
func checkSequence(t *testing.T, boxes []Box) {
	t.Helper()
	type key struct {
		variant string
		fam     Family
	}
	last := map[key]Box{}
	for _, b := range boxes {
		if b.CloseBin < b.OpenBin {
			t.Errorf("box %s closes before it opens", b)
		}
		k := key{b.Variant, b.Family}
		if prev, ok := last[k]; ok && b.OpenBin <= prev.CloseBin {
			t.Errorf("box %s overlaps %s", b, prev)
		}
		last[k] = b
	}
}

func TestSwitchAwayAndBack(t *testing.T) {
	fx := newFixture(t)
	fx.switchTo(Linux, 10, 5, 1)
	fx.switchTo(Linux, 210, 1, 5)
	h := fx.histogram(3)

	boxes := fx.drawer(fx.cat).Boxes(h, 5)
	checkSpans(t, boxes, []span{{0, 2, Switch, "linux"}})
	if len(boxes) == 1 {
		b := boxes[0]
		if b.Color != Linux.SwitchColor {
			t.Errorf("got color %v, want %v", b.Color, Linux.SwitchColor)
		}
		if b.Open != 10 || b.Close != 210 {
			t.Errorf("got timestamps [%d, %d], want [10, 210]", b.Open, b.Close)
		}
	}
}

func TestWakeupSuccess(t *testing.T) {
	for _, success := range []bool{false, true} {
		fx := newFixture(t)
		fx.wakeup(Linux, 10, 1, 7, success)
		fx.switchTo(Linux, 210, 1, 7)
		h := fx.histogram(3)

		boxes := fx.drawer(fx.cat).Boxes(h, 7)
		if !success {
			checkSpans(t, boxes, nil)
			continue
		}
		checkSpans(t, boxes, []span{{0, 2, Wakeup, "linux"}})
		if len(boxes) == 1 && boxes[0].Color != Linux.WakeupColor {
			t.Errorf("got color %v, want %v", boxes[0].Color, Linux.WakeupColor)
		}
	}
}

func schedOnly(t *testing.T) *trace.Catalogue {
	t.Helper()
	full := formats.Default()
	sw := full.Event("sched", "sched_switch").MustGet()
	wk := full.Event("sched", "sched_wakeup").MustGet()
	cat, err := trace.NewCatalogue(sw, wk)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestUnavailableVariant(t *testing.T) {
	fx := newFixture(t)
	fx.switchTo(Cobalt, 10, 5, 1)
	fx.switchTo(Linux, 20, 5, 1)
	fx.switchTo(Cobalt, 210, 1, 5)
	// Closing scans only look at the task's first entry in a bin, so the switches back to 5 need their own bins.
	fx.switchTo(Linux, 310, 1, 5)
	h := fx.histogram(4)

	cat := schedOnly(t)
	_, err := Resolve(cat, Cobalt, fx.st)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got error %v, want ErrUnavailable", err)
	}

	boxes := fx.drawer(cat).Boxes(h, 5)
	checkSpans(t, boxes, []span{{0, 3, Switch, "linux"}})
	for _, b := range boxes {
		if b.Color == Cobalt.SwitchColor || b.Color == Cobalt.WakeupColor {
			t.Errorf("box %s has a cobalt color", b)
		}
	}

	// With the full catalogue, both variants draw.
	boxes = fx.drawer(fx.cat).Boxes(h, 5)
	checkSpans(t, boxes, []span{{0, 3, Switch, "linux"}, {0, 2, Switch, "cobalt"}})
}

func TestFamiliesAreIndependent(t *testing.T) {
	fx := newFixture(t)
	fx.wakeup(Linux, 10, 1, 5, true)
	fx.switchTo(Linux, 20, 5, 1)
	fx.switchTo(Linux, 210, 1, 5)
	h := fx.histogram(3)

	boxes := fx.drawer(fx.cat).Boxes(h, 5)
	checkSpans(t, boxes, []span{{0, 2, Wakeup, "linux"}, {0, 2, Switch, "linux"}})
	checkSequence(t, boxes)
}

func TestIdleTask(t *testing.T) {
	fx := newFixture(t)
	fx.switchTo(Linux, 10, 0, 1)
	fx.switchTo(Linux, 210, 1, 0)
	h := fx.histogram(3)

	if boxes := fx.drawer(fx.cat).Boxes(h, 0); boxes != nil {
		t.Errorf("got boxes %v for the idle task", spans(boxes))
	}
}

func TestDanglingBoxIsDiscarded(t *testing.T) {
	fx := newFixture(t)
	fx.switchTo(Linux, 10, 5, 1)
	fx.switchTo(Linux, 110, 1, 5)
	// Switched away again, but never back.
	fx.switchTo(Linux, 250, 5, 1)
	h := fx.histogram(4)

	checkSpans(t, fx.drawer(fx.cat).Boxes(h, 5), []span{{0, 1, Switch, "linux"}})
}

func TestOpenBoxKeepsFirstStart(t *testing.T) {
	fx := newFixture(t)
	fx.switchTo(Linux, 10, 5, 1)
	fx.wakeup(Linux, 20, 1, 5, true)
	// Starts of both families again while their boxes are open.
	fx.switchTo(Linux, 110, 5, 2)
	fx.wakeup(Linux, 120, 2, 5, true)
	fx.switchTo(Linux, 210, 2, 5)
	h := fx.histogram(3)

	boxes := fx.drawer(fx.cat).Boxes(h, 5)
	checkSpans(t, boxes, []span{{0, 2, Wakeup, "linux"}, {0, 2, Switch, "linux"}})
	if len(boxes) == 2 {
		if boxes[0].Open != 20 || boxes[1].Open != 10 {
			t.Errorf("got open timestamps %d and %d, want 20 and 10", boxes[0].Open, boxes[1].Open)
		}
	}
}

func TestSequence(t *testing.T) {
	fx := newFixture(t)
	fx.switchTo(Linux, 10, 5, 1)
	fx.switchTo(Linux, 150, 1, 5)
	fx.switchTo(Linux, 250, 5, 2)
	fx.wakeup(Linux, 260, 2, 9, true)
	fx.switchTo(Linux, 450, 2, 5)
	fx.wakeup(Linux, 520, 5, 5, true)
	fx.switchTo(Linux, 530, 5, 3)
	fx.switchTo(Linux, 780, 3, 5)
	h := fx.histogram(8)

	d := fx.drawer(fx.cat)
	boxes := d.Boxes(h, 5)
	checkSpans(t, boxes, []span{
		{5, 7, Wakeup, "linux"},
		{0, 1, Switch, "linux"},
		{2, 4, Switch, "linux"},
		{5, 7, Switch, "linux"},
	})
	checkSequence(t, boxes)

	if again := d.Boxes(h, 5); !reflect.DeepEqual(again, boxes) {
		t.Errorf("second run produced %v, first run %v", spans(again), spans(boxes))
	}
}

func TestDenseBins(t *testing.T) {
	build := func(dense int) []Box {
		fx := newFixture(t)
		fx.wakeup(Linux, 5, 1, 9, true)
		fx.wakeup(Linux, 6, 1, 8, true)
		fx.switchTo(Linux, 10, 5, 1)
		fx.switchTo(Linux, 210, 1, 5)
		h := fx.histogram(3)

		v := Linux
		v.DenseBin = dense
		return fx.drawer(fx.cat, v).Boxes(h, 5)
	}

	checkSpans(t, build(0), []span{{0, 2, Switch, "linux"}})
	checkSpans(t, build(3), []span{{0, 2, Switch, "linux"}})
	checkSpans(t, build(2), nil)
}

func TestCobaltResume(t *testing.T) {
	fx := newFixture(t)
	fx.wakeup(Cobalt, 10, 1, 5, true)
	fx.switchTo(Cobalt, 210, 1, 5)
	h := fx.histogram(3)

	boxes := fx.drawer(fx.cat).Boxes(h, 5)
	checkSpans(t, boxes, []span{{0, 2, Wakeup, "cobalt"}})
	if len(boxes) == 1 && boxes[0].Color != Cobalt.WakeupColor {
		t.Errorf("got color %v, want %v", boxes[0].Color, Cobalt.WakeupColor)
	}
}

func TestResolveFields(t *testing.T) {
	fx := newFixture(t)

	v := Linux
	v.SwitchPrevPID = "prev_tgid"
	if _, err := Resolve(fx.cat, v, fx.st); !errors.Is(err, ErrUnavailable) {
		t.Errorf("missing required field: got %v, want ErrUnavailable", err)
	}

	v = Linux
	v.Name = "nosuccess"
	v.WakeupSuccess = "no_such_field"
	c, err := Resolve(fx.cat, v, fx.st)
	if err != nil {
		t.Fatalf("missing optional field: %s", err)
	}
	e := fx.wakeup(Linux, 10, 1, 5, false)
	fx.st.Flush()
	// Without a success field, every wakeup succeeds.
	if pid, success, ok := c.WakeupPID(e); !ok || !success || pid != 5 {
		t.Errorf("got (%d, %t, %t), want (5, true, true)", pid, success, ok)
	}
}

func TestPredicates(t *testing.T) {
	fx := newFixture(t)
	away := fx.switchTo(Linux, 10, 5, 1)
	wk := fx.wakeup(Linux, 20, 1, 5, true)
	fx.st.Flush()

	c, err := Resolve(fx.cat, Linux, fx.st)
	if err != nil {
		t.Fatal(err)
	}
	if next, ok := c.NextPID(away); !ok || next != 1 {
		t.Errorf("NextPID = %d, %t; want 1, true", next, ok)
	}
	if prev, ok := c.PrevPID(away); !ok || prev != 5 {
		t.Errorf("PrevPID = %d, %t; want 5, true", prev, ok)
	}
	tests := []struct {
		name string
		fn   func(*trace.Entry, uint32) bool
		e    *trace.Entry
		pid  uint32
		want bool
	}{
		{"IsStop", c.IsStop, away, 1, true},
		{"IsStop", c.IsStop, away, 5, false},
		{"IsSwitchStart", c.IsSwitchStart, away, 5, true},
		{"IsSwitchStart", c.IsSwitchStart, away, 1, true},
		{"IsSwitchStart", c.IsSwitchStart, away, 7, false},
		{"IsSwitchStart", c.IsSwitchStart, wk, 5, false},
		{"IsWakeup", c.IsWakeup, wk, 5, true},
		{"IsWakeup", c.IsWakeup, wk, 1, true},
		{"IsWakeup", c.IsWakeup, away, 5, false},
		{"IsSwitchStart", c.IsSwitchStart, trace.FilteredEntry, 5, false},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.e, tt.pid); got != tt.want {
			t.Errorf("%s(%s, %d) = %t, want %t", tt.name, tt.e, tt.pid, got, tt.want)
		}
	}
}

func TestBadLocator(t *testing.T) {
	fx := newFixture(t)
	e := fx.switchTo(Linux, 10, 5, 1)
	e.Offset = 1 << 40
	fx.switchTo(Linux, 210, 1, 5)
	h := fx.histogram(3)

	// The unreadable switch can't be attributed to task 5.
	checkSpans(t, fx.drawer(fx.cat).Boxes(h, 5), nil)
}

func TestReload(t *testing.T) {
	fx := newFixture(t)
	fx.switchTo(Cobalt, 10, 5, 1)
	fx.switchTo(Cobalt, 210, 1, 5)
	h := fx.histogram(3)

	d := NewDrawer(Linux, Cobalt, Linux)
	if got := d.Variants(); got != nil {
		t.Errorf("got variants %v before loading a trace", got)
	}
	if got := d.Boxes(h, 5); got != nil {
		t.Errorf("got boxes %v before loading a trace", spans(got))
	}

	names, err := d.Reload(fx.cat, fx.st)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"linux", "cobalt"}; !reflect.DeepEqual(names, want) {
		t.Errorf("got variants %v, want %v", names, want)
	}
	checkSpans(t, d.Boxes(h, 5), []span{{0, 2, Switch, "cobalt"}})
	if _, ok := d.Classifier("cobalt").Get(); !ok {
		t.Error("no cobalt classifier")
	}

	if _, err := d.Reload(schedOnly(t), fx.st); err != nil {
		t.Fatal(err)
	}
	if want := []string{"linux"}; !reflect.DeepEqual(d.Variants(), want) {
		t.Errorf("got variants %v, want %v", d.Variants(), want)
	}
	checkSpans(t, d.Boxes(h, 5), nil)
	if _, ok := d.Classifier("cobalt").Get(); ok {
		t.Error("cobalt classifier survived reload")
	}
}

func TestFamilyText(t *testing.T) {
	for fam, want := range map[Family]string{Wakeup: "wakeup", Switch: "switch", 7: "Family(7)"} {
		b, err := fam.MarshalText()
		if err != nil || string(b) != want {
			t.Errorf("got %q, %v; want %q", b, err, want)
		}
	}
}
