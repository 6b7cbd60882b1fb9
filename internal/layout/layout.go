// Package layout flattens a function's control flow graph into the
// linear block order used for code emission. While laying blocks out it
// threads branches through trivial trampolines, flips conditional
// branches so the taken side becomes the physical fall-through, and
// drops unconditional jumps to the next emitted block. Inside protected
// regions the pass strictly obeys source ordering.
package layout

import (
	"fmt"
	"io"

	"arbor/internal/cfg"
	"arbor/internal/ir"
)

// Layout is the pass state for one function.
type Layout struct {
	f       *cfg.Func
	bbs     []*cfg.BB
	laidOut []bool

	tryOutstanding bool
	newBBInLayout  bool
	cursor         int

	debugW io.Writer
}

// Result is what the pass hands back to the pipeline.
type Result struct {
	bbs     []*cfg.BB
	laidOut []bool
	newBB   bool
}

// Blocks returns the emission order.
func (r *Result) Blocks() []*cfg.BB { return r.bbs }

// NewBBInLayout reports whether any artificial block was synthesized.
// Downstream dominance results are stale when true.
func (r *Result) NewBBInLayout() bool { return r.newBB }

// IsLaidOut reports whether the block was emitted or dropped as
// unreachable.
func (r *Result) IsLaidOut(id cfg.BlockID) bool {
	return int(id) < len(r.laidOut) && r.laidOut[id]
}

// New returns pass state for f. debugW, when non-nil, receives one line
// per laid-out block.
func New(f *cfg.Func, debugW io.Writer) *Layout {
	return &Layout{
		f:       f,
		laidOut: make([]bool, len(f.Blocks)),
		debugW:  debugW,
	}
}

// Run lays out the function starting from the common entry block.
func (l *Layout) Run() *Result {
	if len(l.f.Blocks) == 0 {
		return &Result{}
	}
	bb := l.f.Entry()
	for bb != nil {
		l.addBB(bb)
		if bb.Kind == cfg.KindCondGoto || bb.Kind == cfg.KindGoto {
			l.OptimizeBranchTarget(bb)
		}
		next := l.nextBB()
		if next != nil {
			l.checkTryOrder(next)
		}
		if bb.Kind == cfg.KindFallthru {
			l.ResolveUnconditionalFallThru(bb, next)
		} else if bb.Kind == cfg.KindCondGoto {
			l.layoutCondGoto(bb, next)
		}
		// A fall-through may have grown a goto above, so re-check the
		// kind rather than chain on the dispatch.
		if bb.Kind == cfg.KindGoto {
			l.layoutGoto(bb, next)
		}
		if next != nil && l.laidOut[next.ID] {
			next = l.nextBB()
		}
		bb = next
	}
	return &Result{bbs: l.bbs, laidOut: l.laidOut, newBB: l.newBBInLayout}
}

// addBB appends bb to the emission sequence and tracks the protected
// region state.
func (l *Layout) addBB(bb *cfg.BB) {
	l.ensure(bb.ID)
	if l.laidOut[bb.ID] {
		panic(fmt.Errorf("layout: %s: bb%d already laid out", l.f.Name, bb.ID))
	}
	l.bbs = append(l.bbs, bb)
	l.laidOut[bb.ID] = true
	if l.debugW != nil {
		fmt.Fprintf(l.debugW, "bb id %d kind %s", bb.ID, bb.Kind)
	}
	if first := bb.FirstStmt(); first != nil && first.Op == ir.OpTry {
		if l.tryOutstanding {
			panic(fmt.Errorf("layout: %s: bb%d opens a try while one is outstanding", l.f.Name, bb.ID))
		}
		l.tryOutstanding = true
		if l.debugW != nil {
			fmt.Fprint(l.debugW, " try")
		}
	}
	if bb.HasAttr(cfg.AttrTryEnd) && l.f.ExplicitEH {
		l.tryOutstanding = false
		if l.debugW != nil {
			fmt.Fprint(l.debugW, " endtry")
		}
	}
	if l.debugW != nil {
		fmt.Fprintln(l.debugW)
	}
}

// nextBB returns the next block in source order that is neither removed
// nor laid out. The cursor only moves forward.
func (l *Layout) nextBB() *cfg.BB {
	for i := l.cursor + 1; i < len(l.f.Blocks); i++ {
		b := l.f.Blocks[i]
		if b == nil {
			continue
		}
		l.ensure(b.ID)
		if l.laidOut[b.ID] {
			continue
		}
		l.cursor = i
		return b
	}
	l.cursor = len(l.f.Blocks)
	return nil
}

// checkTryOrder validates that emitting next keeps protected regions
// properly nested.
func (l *Layout) checkTryOrder(next *cfg.BB) {
	if first := next.FirstStmt(); first != nil && first.Op == ir.OpTry && l.tryOutstanding {
		panic(fmt.Errorf("layout: %s: cannot emit try bb%d before the outstanding try is ended", l.f.Name, next.ID))
	}
	if next.HasAttr(cfg.AttrTryEnd) {
		t := l.f.TryFor(next.ID)
		if t == cfg.NoBlock {
			panic(fmt.Errorf("layout: %s: endtry bb%d has no recorded try block", l.f.Name, next.ID))
		}
		if t != next.ID && !l.laidOut[t] {
			panic(fmt.Errorf("layout: %s: cannot emit endtry bb%d before its try bb%d", l.f.Name, next.ID, t))
		}
	}
}

// layoutCondGoto decides what follows a conditional block: flip the
// branch and inline the taken target, move the fall-through up, or
// synthesize a trampoline.
func (l *Layout) layoutCondGoto(bb, next *cfg.BB) {
	oldFt := l.f.Block(bb.Succs[0])
	ft := l.fallThruSkippingEmpty(bb)
	tgt := l.f.Block(bb.Succs[1])
	if tgt != ft && (oldFt != ft || len(ft.Preds) > 1) && l.CanBeMoved(tgt, bb) {
		// Flip the branch sense and lay the taken target out right here.
		ftLabel := l.f.GetOrCreateLabel(ft)
		br := bb.LastStmt()
		if tgt.Label != br.Offset {
			panic(fmt.Errorf("layout: %s: bb%d branch offset %d disagrees with target bb%d label %d",
				l.f.Name, bb.ID, br.Offset, tgt.ID, tgt.Label))
		}
		br.Offset = ftLabel
		br.Op = ir.Opposite(br.Op)
		bb.Succs[0], bb.Succs[1] = bb.Succs[1], bb.Succs[0]
		l.addBB(tgt)
		l.ResolveUnconditionalFallThru(tgt, next)
		l.OptimizeBranchTarget(tgt)
		return
	}
	if ft == next {
		return
	}
	if l.CanBeMoved(ft, bb) {
		l.addBB(ft)
		l.ResolveUnconditionalFallThru(ft, next)
		l.OptimizeBranchTarget(ft)
		return
	}
	nfb := l.newFallthruGoto(bb, ft)
	l.addBB(nfb)
	l.OptimizeBranchTarget(nfb)
}

// layoutGoto tries to place the goto target (or, failing that, the
// fall-through of a single-predecessor conditional target) directly
// after bb so the jump disappears.
func (l *Layout) layoutGoto(bb, next *cfg.BB) {
	gt := l.f.Block(bb.Succs[0])
	if gt != next && l.CanBeMoved(gt, bb) {
		l.addBB(gt)
		l.changeGotoToFallthru(bb)
		l.ResolveUnconditionalFallThru(gt, next)
		l.OptimizeBranchTarget(gt)
		return
	}
	if gt.Kind == cfg.KindCondGoto && len(gt.Preds) == 1 && !l.isLaidOut(gt.ID) {
		gtNext := l.f.Block(gt.Succs[0])
		if gtNext != next && l.CanBeMoved(gtNext, bb) {
			l.addBB(gt)
			l.changeGotoToFallthru(bb)
			l.OptimizeBranchTarget(gt)
			l.addBB(gtNext)
			l.ResolveUnconditionalFallThru(gtNext, next)
			l.OptimizeBranchTarget(gtNext)
		}
	}
}

// newFallthruGoto synthesizes an artificial block holding a single goto
// to ft and splices it onto bb's fall-through edge. The caller lays the
// new block out.
func (l *Layout) newFallthruGoto(bb, ft *cfg.BB) *cfg.BB {
	nfb := l.f.NewBasicBlock()
	l.ensure(nfb.ID)
	nfb.SetAttr(cfg.AttrArtificial)
	nfb.Kind = cfg.KindGoto
	nfb.AppendStmt(ir.NewGoto(l.f.GetOrCreateLabel(ft)))
	nfb.Freq = ft.Freq
	bb.ReplaceSucc(ft.ID, nfb.ID)
	nfb.AddPred(bb.ID)
	nfb.Succs = append(nfb.Succs, ft.ID)
	for i, p := range ft.Preds {
		if p == bb.ID {
			ft.Preds[i] = nfb.ID
			break
		}
	}
	l.newBBInLayout = true
	if l.debugW != nil {
		fmt.Fprintf(l.debugW, "created goto bb%d to reach bb%d\n", nfb.ID, ft.ID)
	}
	return nfb
}

// changeGotoToFallthru drops bb's trailing goto; its target is about to
// become the physical next block.
func (l *Layout) changeGotoToFallthru(bb *cfg.BB) {
	if bb.Kind != cfg.KindGoto {
		panic(fmt.Errorf("layout: %s: bb%d is not a goto block", l.f.Name, bb.ID))
	}
	bb.RemoveLastStmt()
	bb.Kind = cfg.KindFallthru
}

// isLaidOut reads the laid-out bit without growing the vector.
func (l *Layout) isLaidOut(id cfg.BlockID) bool {
	return int(id) < len(l.laidOut) && l.laidOut[id]
}

// ensure grows the laid-out bit vector to cover id.
func (l *Layout) ensure(id cfg.BlockID) {
	for int(id) >= len(l.laidOut) {
		l.laidOut = append(l.laidOut, false)
	}
}
