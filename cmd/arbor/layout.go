package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"arbor/internal/cfg"
	"arbor/internal/cfgtext"
	"arbor/internal/pipeline"
	"arbor/internal/project"
)

var layoutCmd = &cobra.Command{
	Use:   "layout [flags] <input>",
	Short: "Run the basic-block layout pass",
	Long: "Run the basic-block layout pass over a module read from a textual " +
		".cfg file or a binary .mp snapshot.",
	Args: cobra.ExactArgs(1),
	RunE: layoutExecution,
}

func init() {
	layoutCmd.Flags().StringP("output", "o", "", "write the laid-out module in textual form")
	layoutCmd.Flags().String("emit-snapshot", "", "write the laid-out module as a binary snapshot")
	layoutCmd.Flags().StringSlice("debug", nil, "trace the pass for the named functions")
	layoutCmd.Flags().Int("jobs", 0, "number of parallel workers (0 = one per CPU)")
}

func layoutExecution(cmd *cobra.Command, args []string) error {
	input := args[0]
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	snapshotOut, err := cmd.Flags().GetString("emit-snapshot")
	if err != nil {
		return err
	}
	debugFuncs, err := cmd.Flags().GetStringSlice("debug")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}
	timings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return err
	}
	colorMode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	applyColorMode(colorMode)

	m, err := readModule(input)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Jobs:       jobs,
		DebugFuncs: debugFuncs,
		DebugW:     os.Stderr,
	}
	if manifest, ok, err := project.Load(filepath.Dir(input)); err != nil {
		return err
	} else if ok {
		if opts.Jobs == 0 {
			opts.Jobs = manifest.Config.Layout.Jobs
		}
		opts.DumpDir = manifest.Config.Layout.DumpDir
		opts.DebugFuncs = append(opts.DebugFuncs, manifest.Config.Layout.Debug...)
	}

	report, err := pipeline.LayoutModule(context.Background(), m, opts)
	if err != nil {
		return err
	}

	if !quiet {
		printReport(report)
	}
	if timings {
		fmt.Println(summaryTimings(report))
	}
	if output != "" {
		if err := writeText(output, m); err != nil {
			return err
		}
	}
	if snapshotOut != "" {
		if err := writeSnapshot(snapshotOut, m); err != nil {
			return err
		}
	}
	return nil
}

func printReport(report *pipeline.ModuleReport) {
	nameColor := color.New(color.FgCyan, color.Bold)
	for _, f := range report.Funcs {
		ids := make([]string, len(f.Order))
		for i, id := range f.Order {
			ids[i] = fmt.Sprintf("%d", id)
		}
		line := fmt.Sprintf("%s: %d blocks [%s]", nameColor.Sprint(f.Name), len(f.Order), strings.Join(ids, " "))
		if f.NewBBInLayout {
			line += " +new-bb"
		}
		fmt.Println(line)
	}
	if len(report.Invalidated) > 0 {
		fmt.Printf("invalidated: %s\n", strings.Join(report.Invalidated, ", "))
	}
}

func summaryTimings(report *pipeline.ModuleReport) string {
	out := "timings:"
	for _, p := range report.Timing.Phases {
		out += fmt.Sprintf("\n  %-12s %7.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			out += "  // " + p.Note
		}
	}
	return out
}

func applyColorMode(mode string) {
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
}

func readModule(path string) (*cfg.Module, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	if filepath.Ext(path) == ".mp" {
		return cfgtext.DecodeSnapshot(in)
	}
	return cfgtext.Parse(path, in)
}

func writeText(path string, m *cfg.Module) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cfg.FprintModule(out, m); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeSnapshot(path string, m *cfg.Module) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cfgtext.EncodeSnapshot(out, m); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
