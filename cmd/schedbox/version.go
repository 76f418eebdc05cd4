package main

import (
	"fmt"
	"io"
	"runtime"
	rdebug "runtime/debug"

	"github.com/spf13/cobra"
)

const Version = "v0.1.0"

// version returns a version descriptor and reports whether the version is a known release.
func version(human string) (_ string, known bool) {
	if human != "devel" {
		return human, true
	}
	info, ok := rdebug.ReadBuildInfo()
	if ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version, false
	}
	return "devel", false
}

func printVersion(w io.Writer, human string, verbose bool) {
	human, release := version(human)
	switch {
	case release:
		fmt.Fprintf(w, "schedbox %s\n", human)
	case human == "devel":
		fmt.Fprintln(w, "schedbox (no version)")
	default:
		fmt.Fprintf(w, "schedbox (devel, %s)\n", human)
	}
	if !verbose {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Compiled with Go version:", runtime.Version())
	info, ok := rdebug.ReadBuildInfo()
	if !ok {
		fmt.Fprintln(w, "Built without Go modules")
		return
	}
	fmt.Fprintln(w, "Main module:")
	printModule(w, &info.Main)
	fmt.Fprintln(w, "Dependencies:")
	for _, dep := range info.Deps {
		printModule(w, dep)
	}
}

func printModule(w io.Writer, m *rdebug.Module) {
	fmt.Fprintf(w, "\t%s", m.Path)
	if m.Version != "(devel)" {
		fmt.Fprintf(w, "@%s", m.Version)
	}
	if m.Sum != "" {
		fmt.Fprintf(w, " (sum: %s)", m.Sum)
	}
	if m.Replace != nil {
		fmt.Fprintf(w, " (replace: %s)", m.Replace.Path)
	}
	fmt.Fprintln(w)
}

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of schedbox",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), Version, verbose)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "also print build information")
	return cmd
}
