package trace

import (
	"bufio"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"honnef.co/go/schedbox/container"

	"github.com/pkg/errors"
)

// EventFormat is the format of one tracefs event, as found in events/<system>/<name>/format.
type EventFormat struct {
	System string
	Name   string
	ID     uint16
	// CommonFields are shared by all events; Fields are specific to this event.
	CommonFields []*Field
	Fields       []*Field
}

func (ev *EventFormat) String() string {
	return ev.System + "/" + ev.Name
}

// Field looks up a field by name, searching event specific fields before common ones. It returns nil if there is no
// such field.
func (ev *EventFormat) Field(name string) *Field {
	if ev == nil {
		return nil
	}
	for _, f := range ev.Fields {
		if f.Name == name {
			return f
		}
	}
	for _, f := range ev.CommonFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// RecordSize is the size of a record of this event, not counting the payload of dynamic arrays.
func (ev *EventFormat) RecordSize() int {
	var n uint32
	for _, fields := range [2][]*Field{ev.CommonFields, ev.Fields} {
		for _, f := range fields {
			if end := f.Offset + f.Size; end > n {
				n = end
			}
		}
	}
	return int(n)
}

// ParseFormat parses the contents of a tracefs format file. The system name isn't part of the file and has to be
// provided by the caller.
func ParseFormat(system string, r io.Reader) (*EventFormat, error) {
	ev := &EventFormat{System: system}
	var (
		haveID     bool
		inFormat   bool
		inCommon   = true
		lineNumber int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNumber++
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "name:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "name:"))
		case strings.HasPrefix(line, "ID:"):
			id, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "ID:")), 10, 16)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: invalid event ID", lineNumber)
			}
			ev.ID = uint16(id)
			haveID = true
		case line == "format:":
			inFormat = true
		case strings.HasPrefix(line, "print fmt:"):
			inFormat = false
		case line == "":
			// A blank line separates the common fields from the event's own fields.
			if inFormat && len(ev.CommonFields) > 0 {
				inCommon = false
			}
		case strings.HasPrefix(line, "field:"):
			if !inFormat {
				return nil, errors.Errorf("line %d: field outside of format section", lineNumber)
			}
			f, err := parseField(line)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNumber)
			}
			if inCommon && strings.HasPrefix(f.Name, "common_") {
				ev.CommonFields = append(ev.CommonFields, f)
			} else {
				inCommon = false
				ev.Fields = append(ev.Fields, f)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading format")
	}
	if ev.Name == "" {
		return nil, errors.New("missing event name")
	}
	if !haveID {
		return nil, errors.Errorf("event %s: missing ID", ev.Name)
	}
	return ev, nil
}

// parseField parses a line of the form
//
//	field:char prev_comm[16];	offset:8;	size:16;	signed:1;
func parseField(line string) (*Field, error) {
	f := &Field{}
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.Errorf("malformed field attribute %q", part)
		}
		switch key {
		case "field":
			if err := parseDecl(f, value); err != nil {
				return nil, err
			}
		case "offset", "size":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "field %s: invalid %s", f.Name, key)
			}
			if key == "offset" {
				f.Offset = uint32(n)
			} else {
				f.Size = uint32(n)
			}
		case "signed":
			f.Signed = value == "1"
		}
	}
	if f.Name == "" {
		return nil, errors.Errorf("field without name in %q", line)
	}
	if f.NumElements > 0 && f.Size%f.NumElements != 0 {
		return nil, errors.Errorf("field %s: size %d is not a multiple of %d elements", f.Name, f.Size, f.NumElements)
	}
	return f, nil
}

func parseDecl(f *Field, decl string) error {
	decl = strings.TrimSpace(decl)
	i := strings.LastIndexAny(decl, " \t*")
	if i < 0 || i == len(decl)-1 {
		return errors.Errorf("malformed declaration %q", decl)
	}
	f.Decl = strings.TrimSpace(decl[:i+1])
	name := decl[i+1:]
	if j := strings.IndexByte(name, '['); j >= 0 {
		dim := strings.TrimSuffix(name[j+1:], "]")
		name = name[:j]
		if dim != "" {
			n, err := strconv.ParseUint(dim, 10, 32)
			if err != nil {
				// Array dimensions can be macros we know nothing about. Treat the field as opaque.
				n = 0
			}
			f.NumElements = uint32(n)
		}
	}
	f.Name = name
	f.Dynamic = strings.HasPrefix(f.Decl, "__data_loc")
	return nil
}

// Catalogue indexes the event formats of a trace.
type Catalogue struct {
	byID   map[uint16]*EventFormat
	byName map[string]*EventFormat
	// Bare event names, without systems. Names that occur in more than one system map to nil.
	byBareName map[string]*EventFormat
}

func newCatalogue(n int) *Catalogue {
	return &Catalogue{
		byID:       make(map[uint16]*EventFormat, n),
		byName:     make(map[string]*EventFormat, n),
		byBareName: make(map[string]*EventFormat, n),
	}
}

func NewCatalogue(formats ...*EventFormat) (*Catalogue, error) {
	cat := newCatalogue(len(formats))
	for _, ev := range formats {
		if err := cat.Add(ev); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func (cat *Catalogue) Add(ev *EventFormat) error {
	if other, ok := cat.byID[ev.ID]; ok {
		return errors.Errorf("events %s and %s share ID %d", other, ev, ev.ID)
	}
	cat.byID[ev.ID] = ev
	cat.byName[ev.String()] = ev
	if _, ok := cat.byBareName[ev.Name]; ok {
		cat.byBareName[ev.Name] = nil
	} else {
		cat.byBareName[ev.Name] = ev
	}
	return nil
}

func (cat *Catalogue) Len() int { return len(cat.byID) }

// Event resolves an event kind by system and name.
func (cat *Catalogue) Event(system, name string) container.Option[*EventFormat] {
	if ev, ok := cat.byName[system+"/"+name]; ok {
		return container.Some(ev)
	}
	return container.None[*EventFormat]()
}

// Lookup resolves an event by its bare name, as printed in text reports. Ambiguous names don't resolve.
func (cat *Catalogue) Lookup(name string) container.Option[*EventFormat] {
	if system, bare, ok := strings.Cut(name, ":"); ok {
		return cat.Event(system, bare)
	}
	if ev := cat.byBareName[name]; ev != nil {
		return container.Some(ev)
	}
	return container.None[*EventFormat]()
}

func (cat *Catalogue) ByID(id uint16) container.Option[*EventFormat] {
	if ev, ok := cat.byID[id]; ok {
		return container.Some(ev)
	}
	return container.None[*EventFormat]()
}

// LoadCatalogue loads all format files found at <system>/<event>/format in fsys, which is usually rooted at a tracefs
// events directory.
func LoadCatalogue(fsys fs.FS) (*Catalogue, error) {
	matches, err := fs.Glob(fsys, "*/*/format")
	if err != nil {
		return nil, errors.Wrap(err, "listing event formats")
	}
	cat := newCatalogue(len(matches))
	for _, m := range matches {
		system := path.Dir(path.Dir(m))
		ev, err := parseFormatFile(fsys, system, m)
		if err != nil {
			return nil, err
		}
		if err := cat.Add(ev); err != nil {
			return nil, errors.Wrapf(err, "loading %s", m)
		}
	}
	return cat, nil
}

func parseFormatFile(fsys fs.FS, system, name string) (*EventFormat, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ev, err := ParseFormat(system, f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}
	return ev, nil
}
