package main

import (
	"honnef.co/go/schedbox/histo"
	"honnef.co/go/schedbox/render"
	"honnef.co/go/schedbox/trace"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func newBoxesCmd(opts *options) *cobra.Command {
	var (
		tracePath string
		pid       uint32
		bins      int
		lo, hi    uint64
	)
	cmd := &cobra.Command{
		Use:   "boxes",
		Short: "Print the activity boxes of a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, d, err := opts.loadTrace(tracePath)
			if err != nil {
				return err
			}
			entries := st.Entries()
			if len(entries) == 0 {
				return errors.Errorf("%s has no trace entries", tracePath)
			}
			if bins == 0 {
				bins = opts.cfg.Bins
			}
			if bins < 0 || bins > histo.MaxBins {
				return errors.Errorf("--bins must be between 1 and %d, got %d", histo.MaxBins, bins)
			}
			if !cmd.Flags().Changed("min") {
				lo = uint64(entries[0].Timestamp)
			}
			if !cmd.Flags().Changed("max") {
				hi = uint64(entries[len(entries)-1].Timestamp)
			}

			h := histo.New(entries)
			if !h.SetInRangeBinning(bins, trace.Timestamp(lo), trace.Timestamp(hi)) {
				return errors.Errorf("can't divide [%d, %d] into %d bins", lo, hi, bins)
			}
			boxes := d.Boxes(h, pid)

			w := cmd.OutOrStdout()
			p := message.NewPrinter(language.English)
			name, ok := st.TaskName(pid)
			if !ok {
				name = "unknown"
			}
			p.Fprintf(w, "task %d (%s): %d boxes, %d bins of %d ns from %d ns\n", pid, name, len(boxes), h.NumBins(), h.BinSize, h.Min)
			for _, b := range boxes {
				p.Fprintf(w, "  %-8s %-6s  bins %d-%d  %d ns - %d ns  (%d ns)\n",
					b.Variant, b.Family, b.OpenBin, b.CloseBin, b.Open, b.Close, int64(b.Close)-int64(b.Open))
			}
			if len(boxes) == 0 {
				return nil
			}
			p.Fprintln(w)
			return render.Terminal(w, boxes, h.NumBins())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&tracePath, "trace", "", "trace report, as written by trace-cmd report")
	flags.Uint32Var(&pid, "pid", 0, "task to show")
	flags.IntVar(&bins, "bins", 0, "number of bins (default from configuration)")
	flags.Uint64Var(&lo, "min", 0, "start of the range in ns (default: first entry)")
	flags.Uint64Var(&hi, "max", 0, "end of the range in ns (default: last entry)")
	cmd.MarkFlagRequired("trace")
	cmd.MarkFlagRequired("pid")
	return cmd
}

func newTasksCmd(opts *options) *cobra.Command {
	var tracePath string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks of a trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.loadTrace(tracePath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			p := message.NewPrinter(language.English)
			for _, task := range st.Tasks() {
				p.Fprintf(w, "%8d  %s\n", task.PID, task.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tracePath, "trace", "", "trace report, as written by trace-cmd report")
	cmd.MarkFlagRequired("trace")
	return cmd
}
