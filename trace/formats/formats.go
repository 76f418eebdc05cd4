// Package formats embeds the tracefs format descriptions of the scheduler events that schedbox understands. They are
// used when a trace is loaded without the events directory of the machine it was recorded on.
package formats

import (
	"embed"
	"io/fs"
	"sync"

	"honnef.co/go/schedbox/trace"
)

//go:embed events
var events embed.FS

// FS returns the embedded events directory, laid out like /sys/kernel/tracing/events.
func FS() fs.FS {
	sub, err := fs.Sub(events, "events")
	if err != nil {
		panic(err)
	}
	return sub
}

var defaultCatalogue = sync.OnceValue(func() *trace.Catalogue {
	cat, err := trace.LoadCatalogue(FS())
	if err != nil {
		panic(err)
	}
	return cat
})

// Default returns a catalogue of the embedded formats. The catalogue is shared and must not be modified.
func Default() *trace.Catalogue {
	return defaultCatalogue()
}
