package sched

import (
	"sync/atomic"

	"honnef.co/go/schedbox/container"
	"honnef.co/go/schedbox/histo"
	"honnef.co/go/schedbox/metrics"
	"honnef.co/go/schedbox/trace"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
)

// Drawer reconstructs the boxes of a task for all variants that are available in the currently loaded trace.
//
// Reload and Boxes may be called concurrently. A call to Boxes sees either the old or the new set of classifiers,
// never a mix of the two.
type Drawer struct {
	variants    []Variant
	classifiers atomic.Pointer[[]*Classifier]
}

// NewDrawer returns a drawer for variants. Of several variants with the same name, only the first is used. The
// drawer draws nothing until Reload has been called.
func NewDrawer(variants ...Variant) *Drawer {
	seen := container.NewSet[string]()
	d := &Drawer{}
	for _, v := range variants {
		if seen.Has(v.Name) {
			klog.Warningf("ignoring duplicate variant %q", v.Name)
			continue
		}
		seen.Add(v.Name)
		d.variants = append(d.variants, v)
	}
	return d
}

// Reload resolves all variants against a newly loaded trace and replaces the registered classifiers. Variants whose
// events aren't in the trace are skipped. It returns the names of the registered variants.
func (d *Drawer) Reload(cat *trace.Catalogue, src RecordSource) ([]string, error) {
	cs := make([]*Classifier, 0, len(d.variants))
	for _, v := range d.variants {
		c, err := Resolve(cat, v, src)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				klog.V(1).Infof("variant unavailable: %s", err)
				continue
			}
			return nil, err
		}
		cs = append(cs, c)
	}
	d.classifiers.Store(&cs)
	metrics.Variants.Set(float64(len(cs)))
	return names(cs), nil
}

// Variants returns the names of the registered variants, in registration order.
func (d *Drawer) Variants() []string {
	cs := d.classifiers.Load()
	if cs == nil {
		return nil
	}
	return names(*cs)
}

// Classifier returns the registered classifier of a variant.
func (d *Drawer) Classifier(name string) container.Option[*Classifier] {
	cs := d.classifiers.Load()
	if cs == nil {
		return container.None[*Classifier]()
	}
	for _, c := range *cs {
		if c.variant.Name == name {
			return container.Some(c)
		}
	}
	return container.None[*Classifier]()
}

func names(cs []*Classifier) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.variant.Name
	}
	return out
}

// Boxes returns the boxes of task pid, built over the bins of h. For every variant, wakeup boxes precede switch
// boxes. The idle task (pid 0) has no boxes.
func (d *Drawer) Boxes(h *histo.Histogram, pid uint32) []Box {
	if pid == 0 {
		return nil
	}
	cs := d.classifiers.Load()
	if cs == nil {
		return nil
	}

	metrics.DrawCalls.Inc()
	timer := prometheus.NewTimer(metrics.DrawDuration)
	defer timer.ObserveDuration()

	var out []Box
	for _, c := range *cs {
		for _, fam := range [...]Family{Wakeup, Switch} {
			n := len(out)
			out = c.build(h, pid, fam, out)
			if added := len(out) - n; added > 0 {
				metrics.Boxes.WithLabelValues(c.variant.Name, fam.String()).Add(float64(added))
			}
		}
	}
	return out
}
