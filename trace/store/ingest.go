package store

import (
	"bufio"
	"cmp"
	"io"
	"regexp"
	"strconv"
	"strings"

	"honnef.co/go/schedbox/metrics"
	"honnef.co/go/schedbox/trace"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"k8s.io/klog/v2"
)

// Rewrite replaces the pid of every entry of an event with the value of one of the event's fields. Context switch
// events use it to attribute the entry to the task being switched to.
type Rewrite struct {
	System string
	Event  string
	Field  string
}

type Options struct {
	Config
	Rewrites []Rewrite
}

// reportLine matches a line of a trace-cmd or ftrace text report:
//
//	bash-1234  [001] d..3  5678.000123456: sched_switch: prev_comm=bash prev_pid=1234 ... ==> next_comm=...
var reportLine = regexp.MustCompile(`^\s*(.*?)-(\d+)\s+(?:\(\s*[-\d]+\)\s+)?\[(\d+)\]\s+(?:\S+\s+)?(\d+)\.(\d+):\s+(\w+):(?:\s+(.*))?$`)

// trace-cmd's sched plugin prints switches and wakeups in a compact form instead of the events' print formats:
//
//	worker:42 [120] S ==> other:50 [120]
//	worker:42 [120] success=1 CPU:000
var (
	pluginSwitch = regexp.MustCompile(`^(.*):(\d+) \[(-?\d+)\] (\S+) ==> (.*):(\d+) \[(-?\d+)\]\s*$`)
	pluginWakeup = regexp.MustCompile(`^(.*):(\d+) \[(-?\d+)\](?: success=(\d+))? CPU:(\d+)\s*$`)

	pluginSwitchFields = [...]string{"prev_comm", "prev_pid", "prev_prio", "prev_state", "next_comm", "next_pid", "next_prio"}
)

// Pairs of fields that associate a task name with a pid.
var taskNameFields = [...][2]string{
	{"prev_comm", "prev_pid"},
	{"next_comm", "next_pid"},
	{"prev_name", "prev_pid"},
	{"next_name", "next_pid"},
	{"comm", "pid"},
	{"name", "pid"},
}

type line struct {
	comm    string
	pid     uint32
	cpu     uint16
	ts      trace.Timestamp
	event   string
	payload string
}

// Ingest reads a text trace report and builds a store of its records. Each line is encoded into a binary record laid
// out according to the event's format in cat. Lines that can't be parsed, or whose event isn't in the catalogue, are
// skipped.
func Ingest(r io.Reader, cat *trace.Catalogue, opts Options) (*Store, error) {
	s := New(cat, opts.Config)

	rewrites := make(map[uint16]*trace.Field, len(opts.Rewrites))
	for _, rw := range opts.Rewrites {
		ev, ok := cat.Event(rw.System, rw.Event).Get()
		if !ok {
			klog.V(1).Infof("not rewriting pids of %s/%s: event not in catalogue", rw.System, rw.Event)
			continue
		}
		f := ev.Field(rw.Field)
		if f == nil {
			klog.V(1).Infof("not rewriting pids of %s: no field %q", ev, rw.Field)
			continue
		}
		rewrites[ev.ID] = f
	}

	var (
		lineNumber int
		skipped    int
		degraded   int
		unknown    = map[string]int{}
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNumber++
		l, ok := parseLine(sc.Text())
		if !ok {
			if strings.TrimSpace(sc.Text()) != "" {
				klog.V(2).Infof("line %d: not a trace event", lineNumber)
				skipped++
			}
			continue
		}
		ev, ok := cat.Lookup(l.event).Get()
		if !ok {
			unknown[l.event]++
			skipped++
			continue
		}

		kvs := parsePayload(l.event, l.payload)
		rec := encode(ev, l, kvs)
		e := trace.Entry{
			Timestamp: l.ts,
			Offset:    s.Append(rec),
			PID:       l.pid,
			EventID:   ev.ID,
			CPU:       l.cpu,
			Visible:   trace.VisibleAll,
		}
		if f, ok := rewrites[ev.ID]; ok {
			// A field missing from the payload reads as zero, the idle task.
			if _, present := kvs[f.Name]; present {
				if pid, ok := f.ReadNumber(rec); ok {
					e.PID = uint32(pid)
				}
			} else {
				klog.V(2).Infof("line %d: %s without %s, keeping pid %d", lineNumber, ev, f.Name, l.pid)
				degraded++
			}
		}
		s.entries = append(s.entries, e)

		s.RegisterTask(l.pid, l.comm)
		for _, pair := range taskNameFields {
			name, ok1 := kvs[pair[0]]
			pid, ok2 := kvs[pair[1]]
			if !ok1 || !ok2 {
				continue
			}
			if n, ok := parseNumber(pid); ok {
				s.RegisterTask(uint32(n), name)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading trace report at line %d", lineNumber)
	}
	s.Flush()

	for name, n := range unknown {
		klog.V(2).Infof("skipped %d entries of unknown event %q", n, name)
	}
	if skipped > 0 {
		klog.V(1).Infof("skipped %d of %d lines", skipped, lineNumber)
	}
	if degraded > 0 {
		klog.Warningf("%d entries lack the fields needed to attribute them to the task switched to", degraded)
	}
	metrics.SkippedLines.Add(float64(skipped))
	metrics.IngestedEntries.Add(float64(len(s.entries)))

	// The report is ordered per CPU buffer, not globally. Sorting stably keeps the report's order for equal
	// timestamps.
	slices.SortStableFunc(s.entries, func(a, b trace.Entry) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	return s, nil
}

func parseLine(text string) (line, bool) {
	m := reportLine.FindStringSubmatch(text)
	if m == nil {
		return line{}, false
	}
	pid, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return line{}, false
	}
	cpu, err := strconv.ParseUint(m[3], 10, 16)
	if err != nil {
		return line{}, false
	}
	sec, err := strconv.ParseUint(m[4], 10, 64)
	if err != nil {
		return line{}, false
	}
	frac := m[5]
	if len(frac) > 9 {
		frac = frac[:9]
	}
	ns, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return line{}, false
	}
	for i := len(frac); i < 9; i++ {
		ns *= 10
	}
	return line{
		comm:    strings.TrimSpace(m[1]),
		pid:     uint32(pid),
		cpu:     uint16(cpu),
		ts:      trace.Timestamp(sec*1e9 + ns),
		event:   m[6],
		payload: m[7],
	}, true
}

func parsePayload(event, payload string) map[string]string {
	kvs := map[string]string{}
	switch event {
	case "sched_switch":
		if m := pluginSwitch.FindStringSubmatch(payload); m != nil {
			for i, k := range pluginSwitchFields {
				kvs[k] = m[i+1]
			}
			return kvs
		}
	case "sched_wakeup", "sched_wakeup_new", "sched_waking":
		if m := pluginWakeup.FindStringSubmatch(payload); m != nil {
			kvs["comm"] = m[1]
			kvs["pid"] = m[2]
			kvs["prio"] = m[3]
			// Kernels without the success field only trace successful wakeups.
			kvs["success"] = "1"
			if m[4] != "" {
				kvs["success"] = m[4]
			}
			kvs["target_cpu"] = m[5]
			return kvs
		}
	}
	for _, tok := range strings.Fields(payload) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		kvs[k] = v
	}
	return kvs
}

// parseNumber parses decimal and hexadecimal integers. Negative numbers are returned in two's complement.
func parseNumber(s string) (uint64, bool) {
	base := 10
	digits := s
	neg := false
	if strings.HasPrefix(digits, "-") {
		neg = true
		digits = digits[1:]
	}
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		base = 16
		digits = digits[2:]
	}
	n, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// Bits of the task state as printed by sched_switch.
var taskStates = map[rune]uint64{
	'R': 0,
	'S': 0x01,
	'D': 0x02,
	'T': 0x04,
	't': 0x08,
	'X': 0x10,
	'Z': 0x20,
	'P': 0x40,
	'I': 0x80,
}

func parseTaskState(s string) (uint64, bool) {
	var state uint64
	for _, r := range strings.TrimSuffix(s, "+") {
		if r == '|' {
			continue
		}
		bit, ok := taskStates[r]
		if !ok {
			return 0, false
		}
		state |= bit
	}
	return state, true
}

func encode(ev *trace.EventFormat, l line, kvs map[string]string) []byte {
	rec := make([]byte, ev.RecordSize())
	ev.Field("common_type").PutNumber(rec, uint64(ev.ID))
	ev.Field("common_pid").PutNumber(rec, uint64(l.pid))

	// Dynamic data is appended in field order so that records of the same event have the same layout.
	for _, fields := range [2][]*trace.Field{ev.CommonFields, ev.Fields} {
		for _, f := range fields {
			v, ok := kvs[f.Name]
			if !ok {
				continue
			}
			switch {
			case f.Dynamic:
				rec, _ = f.AppendDynamic(rec, v)
			case f.IsString():
				f.PutString(rec, v)
			default:
				n, ok := parseNumber(v)
				if !ok && f.Name == "prev_state" {
					n, ok = parseTaskState(v)
				}
				if ok {
					f.PutNumber(rec, n)
				} else {
					klog.V(3).Infof("%s: can't parse %s=%q", ev, f.Name, v)
				}
			}
		}
	}
	return rec
}
