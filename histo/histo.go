// Package histo partitions time-ordered trace entries into fixed-width bins.
//
// A histogram covers the range [Min, Max] with NumBins bins of BinSize nanoseconds each. Every bin but the last is
// half-open; the last bin also includes entries at exactly Max, so that a histogram fitted to a trace contains the
// trace's final entry. Entries before Min belong to the lower overflow bin, entries after Max to the upper overflow
// bin.
package histo

import (
	"sort"

	"honnef.co/go/schedbox/container"
	"honnef.co/go/schedbox/trace"

	"honnef.co/go/stuff/math/mathutil"
)

// Pseudo bin indices of the overflow bins.
const (
	UpperOverflowBin = -1
	LowerOverflowBin = -2
)

// MaxBins is the largest number of bins a histogram can have.
const MaxBins = 1 << 16

// Cond reports whether an entry matches a pid.
type Cond func(e *trace.Entry, pid uint32) bool

type Histogram struct {
	entries []trace.Entry

	Min     trace.Timestamp
	Max     trace.Timestamp
	BinSize uint64

	// first and count have one element per bin, followed by the upper and then the lower overflow bin. first is -1
	// for empty bins.
	first []int
	count []int
}

// New returns a histogram without bins over entries, which must be sorted by timestamp. The histogram doesn't copy
// the entries and never modifies them.
func New(entries []trace.Entry) *Histogram {
	return &Histogram{entries: entries}
}

func (h *Histogram) Entries() []trace.Entry { return h.entries }

func (h *Histogram) NumBins() int {
	if len(h.first) == 0 {
		return 0
	}
	return len(h.first) - 2
}

// SetBinning sets up n bins over [min, max] and fills them. If the range isn't a multiple of n, it is grown to the
// next multiple, centered on the requested range. It returns false and leaves the histogram without bins if n is
// zero, larger than MaxBins or larger than the range.
func (h *Histogram) SetBinning(n int, min, max trace.Timestamp) bool {
	if !h.bin(n, min, max) {
		return false
	}
	h.Fill()
	return true
}

// SetInRangeBinning is like SetBinning, but if growing the range would move it past the first or last entry, the
// range is shifted to stay within the data.
func (h *Histogram) SetInRangeBinning(n int, min, max trace.Timestamp) bool {
	if !h.bin(n, min, max) {
		return false
	}
	if len(h.entries) > 0 && (h.Max-h.Min) != (max-min) {
		span := h.Max - h.Min
		first, last := h.entries[0].Timestamp, h.entries[len(h.entries)-1].Timestamp
		if h.Min < first {
			h.Min = first
			h.Max = first + span
		} else if h.Max > last && last >= span {
			h.Max = last
			h.Min = last - span
		}
	}
	h.Fill()
	return true
}

func (h *Histogram) bin(n int, min, max trace.Timestamp) bool {
	h.first = nil
	h.count = nil
	h.Min, h.Max, h.BinSize = 0, 0, 0
	if max < min {
		return false
	}
	rng := uint64(max - min)
	if n <= 0 || n > MaxBins || uint64(n) > rng {
		return false
	}

	if rng%uint64(n) == 0 {
		h.Min, h.Max = min, max
		h.BinSize = rng / uint64(n)
	} else {
		h.BinSize = rng/uint64(n) + 1
		corrected := h.BinSize * uint64(n)
		delta := trace.Timestamp((corrected - rng) / 2)
		if delta > min {
			delta = min
		}
		h.Min = min - delta
		h.Max = h.Min + trace.Timestamp(corrected)
	}
	h.first = make([]int, n+2)
	h.count = make([]int, n+2)
	return true
}

// search returns the index of the first entry for which pred is true. pred must be monotonic in the entries' order.
func (h *Histogram) search(pred func(ts trace.Timestamp) bool) int {
	return sort.Search(len(h.entries), func(i int) bool { return pred(h.entries[i].Timestamp) })
}

// Fill assigns entries to bins. It has to be called again if the entries change.
func (h *Histogram) Fill() {
	n := h.NumBins()
	if n == 0 {
		return
	}

	set := func(idx, start, end int) {
		h.count[idx] = end - start
		if end > start {
			h.first[idx] = start
		} else {
			h.first[idx] = -1
		}
	}

	prev := h.search(func(ts trace.Timestamp) bool { return ts >= h.Min })
	set(n+1, 0, prev)
	for bin := 0; bin < n; bin++ {
		var end int
		if bin == n-1 {
			end = h.search(func(ts trace.Timestamp) bool { return ts > h.Max })
		} else {
			edge := h.Min + trace.Timestamp(uint64(bin+1)*h.BinSize)
			end = h.search(func(ts trace.Timestamp) bool { return ts >= edge })
		}
		set(bin, prev, end)
		prev = end
	}
	set(n, prev, len(h.entries))
}

func (h *Histogram) index(bin int) (int, bool) {
	n := h.NumBins()
	switch {
	case n == 0:
		return 0, false
	case bin >= 0 && bin < n:
		return bin, true
	case bin == UpperOverflowBin:
		return n, true
	case bin == LowerOverflowBin:
		return n + 1, true
	default:
		return 0, false
	}
}

// BinCount returns the number of entries in a bin, which may be one of the overflow bins.
func (h *Histogram) BinCount(bin int) int {
	idx, ok := h.index(bin)
	if !ok {
		return 0
	}
	return h.count[idx]
}

// FirstIndexAt returns the index of the first entry in a bin, or -1 if the bin is empty.
func (h *Histogram) FirstIndexAt(bin int) int {
	idx, ok := h.index(bin)
	if !ok {
		return -1
	}
	return h.first[idx]
}

// BinRange returns the time range covered by a regular bin.
func (h *Histogram) BinRange(bin int) (start, end trace.Timestamp) {
	start = h.Min + trace.Timestamp(uint64(bin)*h.BinSize)
	return start, start + trace.Timestamp(h.BinSize)
}

// BinOf returns the bin that ts falls into, or one of the overflow bins.
func (h *Histogram) BinOf(ts trace.Timestamp) int {
	n := h.NumBins()
	switch {
	case n == 0:
		return UpperOverflowBin
	case ts < h.Min:
		return LowerOverflowBin
	case ts > h.Max:
		return UpperOverflowBin
	case ts == h.Max:
		return n - 1
	default:
		return int(uint64(ts-h.Min) / h.BinSize)
	}
}

func visible(e *trace.Entry) bool {
	return e.Visible&trace.VisibleGraph != 0
}

// EntryFront returns the first entry in the bin that matches cond. With visOnly, entries hidden from the graph are
// skipped; if only hidden entries match, trace.FilteredEntry is returned.
func (h *Histogram) EntryFront(bin int, pid uint32, visOnly bool, cond Cond) container.Option[*trace.Entry] {
	n := h.BinCount(bin)
	if n == 0 {
		return container.None[*trace.Entry]()
	}
	first := h.FirstIndexAt(bin)
	filtered := false
	for i := first; i < first+n; i++ {
		e := &h.entries[i]
		if !cond(e, pid) {
			continue
		}
		if !visOnly || visible(e) {
			return container.Some(e)
		}
		filtered = true
	}
	if filtered {
		return container.Some(trace.FilteredEntry)
	}
	return container.None[*trace.Entry]()
}

// EntryBack is like EntryFront, but returns the last matching entry of the bin.
func (h *Histogram) EntryBack(bin int, pid uint32, visOnly bool, cond Cond) container.Option[*trace.Entry] {
	n := h.BinCount(bin)
	if n == 0 {
		return container.None[*trace.Entry]()
	}
	first := h.FirstIndexAt(bin)
	filtered := false
	for i := first + n - 1; i >= first; i-- {
		e := &h.entries[i]
		if !cond(e, pid) {
			continue
		}
		if !visOnly || visible(e) {
			return container.Some(e)
		}
		filtered = true
	}
	if filtered {
		return container.Some(trace.FilteredEntry)
	}
	return container.None[*trace.Entry]()
}

// ShiftForward moves the range n bins towards later times. It does nothing if there is no data past the range.
func (h *Histogram) ShiftForward(n int) {
	if len(h.entries) == 0 || n <= 0 || h.BinCount(UpperOverflowBin) == 0 {
		return
	}
	d := trace.Timestamp(uint64(n) * h.BinSize)
	h.SetBinning(h.NumBins(), h.Min+d, h.Max+d)
}

// ShiftBackward moves the range n bins towards earlier times. It does nothing if there is no data before the range.
func (h *Histogram) ShiftBackward(n int) {
	if len(h.entries) == 0 || n <= 0 || h.BinCount(LowerOverflowBin) == 0 {
		return
	}
	d := trace.Timestamp(uint64(n) * h.BinSize)
	if d > h.Min {
		d = h.Min
	}
	h.SetBinning(h.NumBins(), h.Min-d, h.Max-d)
}

// JumpTo centers the range on ts without changing the bin size. It does nothing if ts is already inside the range.
func (h *Histogram) JumpTo(ts trace.Timestamp) {
	nbins := h.NumBins()
	if len(h.entries) == 0 || nbins == 0 || (ts > h.Min && ts < h.Max) {
		return
	}
	span := trace.Timestamp(uint64(nbins) * h.BinSize)
	var min trace.Timestamp
	if ts > span/2 {
		min = ts - span/2
	}
	first, last := h.entries[0].Timestamp, h.entries[len(h.entries)-1].Timestamp
	if min < first {
		min = first
	}
	if last >= span && min > last-span {
		min = last - span
	}
	h.SetBinning(nbins, min, min+span)
}

// ZoomIn shrinks the range by the fraction r, keeping the bin mark in place. A negative mark zooms around the center.
// Ranges of fewer than 4 nanoseconds per bin are not shrunk further.
func (h *Histogram) ZoomIn(r float64, mark int) {
	nbins := h.NumBins()
	if len(h.entries) == 0 || nbins == 0 {
		return
	}
	if mark < 0 {
		mark = nbins / 2
	}
	rng := uint64(h.Max - h.Min)
	if rng < uint64(nbins)*4 {
		return
	}
	deltaTot := float64(rng) * r
	var deltaMin float64
	switch mark {
	case nbins - 1:
		deltaMin = deltaTot
	case 0:
		deltaMin = 0
	default:
		deltaMin = mathutil.Lerp(0, deltaTot, float64(mark)/float64(nbins))
	}
	min := h.Min + trace.Timestamp(deltaMin)
	max := h.Max - trace.Timestamp(deltaTot) + trace.Timestamp(deltaMin)
	h.SetInRangeBinning(nbins, min, max)
}

// ZoomOut grows the range by the fraction r, keeping the bin mark in place, without going past the data.
func (h *Histogram) ZoomOut(r float64, mark int) {
	nbins := h.NumBins()
	if len(h.entries) == 0 || nbins == 0 {
		return
	}
	if mark < 0 {
		mark = nbins / 2
	}
	rng := uint64(h.Max - h.Min)
	deltaTot := float64(rng) * r
	deltaMin := trace.Timestamp(mathutil.Lerp(0, deltaTot, float64(mark)/float64(nbins)))

	var min trace.Timestamp
	if deltaMin < h.Min {
		min = h.Min - deltaMin
	}
	max := h.Max + trace.Timestamp(deltaTot) - deltaMin
	if first := h.entries[0].Timestamp; min < first {
		min = first
	}
	if last := h.entries[len(h.entries)-1].Timestamp; max > last {
		max = last
	}
	if max <= min || uint64(max-min) < uint64(nbins) {
		return
	}
	h.SetInRangeBinning(nbins, min, max)
}
