// Command schedbox reconstructs scheduler activity of tasks from kernel trace reports.
package main

import (
	goflag "flag"
	"os"
	"strconv"

	"honnef.co/go/schedbox/config"
	"honnef.co/go/schedbox/sched"
	"honnef.co/go/schedbox/trace"
	"honnef.co/go/schedbox/trace/formats"
	"honnef.co/go/schedbox/trace/store"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

type options struct {
	configPath string
	eventsDir  string

	cfg config.Configuration
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	if err := newRootCmd().Execute(); err != nil {
		klog.Error(err)
		klog.Flush()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "schedbox",
		Short:         "Show when tasks were woken up and switched out, from kernel trace reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	opts.setFlags(root.PersistentFlags())

	root.AddCommand(
		newBoxesCmd(opts),
		newTasksCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setFlags registers the global flags, including klog's.
func (opts *options) setFlags(flags *pflag.FlagSet) {
	flags.AddGoFlagSet(goflag.CommandLine)
	flags.StringVar(&opts.configPath, "config", "", "configuration file")
	flags.StringVar(&opts.eventsDir, "events-dir", "", "tracefs events directory of the traced machine (default: built-in formats)")
}

func (opts *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.eventsDir != "" {
		cfg.EventsDir = opts.eventsDir
	}

	// Command line flags win over the configuration file.
	flags := cmd.Flags()
	if cfg.Logging.Verbosity > 0 && !flags.Changed("v") {
		if err := goflag.Set("v", strconv.Itoa(cfg.Logging.Verbosity)); err != nil {
			return err
		}
	}
	if cfg.Logging.AlsoToStderr && !flags.Changed("alsologtostderr") {
		if err := goflag.Set("alsologtostderr", "true"); err != nil {
			return err
		}
	}
	opts.cfg = cfg
	return nil
}

func (opts *options) catalogue() (*trace.Catalogue, error) {
	if opts.cfg.EventsDir == "" {
		return formats.Default(), nil
	}
	cat, err := trace.LoadCatalogue(os.DirFS(opts.cfg.EventsDir))
	if err != nil {
		return nil, errors.Wrapf(err, "loading event formats from %s", opts.cfg.EventsDir)
	}
	return cat, nil
}

// loadTrace ingests a trace report and prepares a drawer for it.
func (opts *options) loadTrace(path string) (*store.Store, *sched.Drawer, error) {
	variants, err := opts.cfg.SchedVariants()
	if err != nil {
		return nil, nil, err
	}
	cat, err := opts.catalogue()
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening trace")
	}
	defer f.Close()
	st, err := store.Ingest(f, cat, store.Options{
		Config:   opts.cfg.Store,
		Rewrites: sched.PIDRewrites(variants...),
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}

	d := sched.NewDrawer(variants...)
	names, err := d.Reload(cat, st)
	if err != nil {
		return nil, nil, err
	}
	if len(names) == 0 {
		klog.Warningf("%s contains none of the scheduler events of the configured variants", path)
	}
	klog.V(1).Infof("loaded %d entries from %s, variants: %v", len(st.Entries()), path, names)
	return st, d, nil
}
