// Package pipeline runs the middle-end passes over a module, one
// function at a time with a bounded worker pool.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"arbor/internal/cfg"
	"arbor/internal/layout"
	"arbor/internal/observ"
)

// Options configures one pipeline run.
type Options struct {
	// Jobs bounds the per-function fan-out; 0 means one per CPU.
	Jobs int
	// DebugFuncs names functions whose pass output is traced and whose
	// CFG is dumped after layout.
	DebugFuncs []string
	// DumpDir receives debug CFG dumps; empty means the current
	// directory.
	DumpDir string
	// DebugW receives pass trace output. nil suppresses both the trace
	// and the CFG dump, even for functions named in DebugFuncs.
	DebugW io.Writer
}

// FuncReport summarizes the layout of one function.
type FuncReport struct {
	Name          string
	Order         []cfg.BlockID
	NewBBInLayout bool
}

// ModuleReport is the result of laying out a whole module.
type ModuleReport struct {
	Funcs []FuncReport
	// Invalidated lists analyses whose cached results are stale after
	// this run.
	Invalidated []string
	Timing      observ.Report
}

// LayoutModule validates every function of m and runs the basic-block
// layout pass on each, fanning out across opts.Jobs workers. The CFGs in
// m are rewritten in place.
func LayoutModule(ctx context.Context, m *cfg.Module, opts Options) (*ModuleReport, error) {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	timer := observ.NewTimer()
	phase := timer.Begin("layout")

	reports := make([]FuncReport, len(m.Funcs))
	var mu sync.Mutex // guards opts.DebugW

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, f := range m.Funcs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := cfg.Validate(f); err != nil {
				return fmt.Errorf("validate %s: %w", f.Name, err)
			}
			var debugBuf *bytes.Buffer
			var debugW io.Writer
			if opts.DebugW != nil && (f.DebugLayout || slices.Contains(opts.DebugFuncs, f.Name)) {
				debugBuf = &bytes.Buffer{}
				debugW = debugBuf
			}
			res := layout.New(f, debugW).Run()
			if debugBuf != nil {
				mu.Lock()
				opts.DebugW.Write(debugBuf.Bytes())
				mu.Unlock()
				if err := cfg.DumpToFile(f, opts.DumpDir, "afterBBLayout"); err != nil {
					return err
				}
			}
			r := FuncReport{Name: f.Name, NewBBInLayout: res.NewBBInLayout()}
			for _, b := range res.Blocks() {
				r.Order = append(r.Order, b.ID)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	timer.End(phase, fmt.Sprintf("%d funcs", len(m.Funcs)))

	report := &ModuleReport{Funcs: reports, Timing: timer.Report()}
	for _, r := range reports {
		if r.NewBBInLayout {
			report.Invalidated = append(report.Invalidated, "dominance")
			break
		}
	}
	return report, nil
}
