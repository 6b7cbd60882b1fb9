package layout

import (
	"fmt"

	"arbor/internal/cfg"
	"arbor/internal/ir"
)

// fallThruSkippingEmpty walks bb's fall-through edge past empty blocks,
// splicing each one out of the CFG, and returns the first block that is
// non-empty, closes a protected region, or has other predecessors.
func (l *Layout) fallThruSkippingEmpty(bb *cfg.BB) *cfg.BB {
	if bb.Kind != cfg.KindFallthru && bb.Kind != cfg.KindCondGoto {
		panic(fmt.Errorf("layout: %s: bb%d has no fall-through edge", l.f.Name, bb.ID))
	}
	if len(bb.Succs) == 0 {
		panic(fmt.Errorf("layout: %s: bb%d fall-through block without successors", l.f.Name, bb.ID))
	}
	ft := l.f.Block(bb.Succs[0])
	for {
		if len(ft.Preds) > 1 || ft.HasAttr(cfg.AttrTryEnd) {
			return ft
		}
		if !ft.IsEmpty() {
			return ft
		}
		if len(ft.Succs) == 0 {
			panic(fmt.Errorf("layout: %s: empty fall-through bb%d without successors", l.f.Name, ft.ID))
		}
		l.ensure(ft.ID)
		l.laidOut[ft.ID] = true
		old := ft
		ft = l.f.Block(old.Succs[0])
		bb.Succs[0] = ft.ID
		ft.AddPred(bb.ID)
		old.RemovePred(bb.ID)
		if len(old.Preds) == 0 {
			l.RemoveUnreachable(old)
		}
	}
}

// ResolveUnconditionalFallThru makes bb's fall-through physically next:
// either the intended successor is nextBB already, or it is moved here,
// or bb grows a goto to it. Calls on goto blocks are no-ops.
func (l *Layout) ResolveUnconditionalFallThru(bb, nextBB *cfg.BB) {
	if bb.Kind == cfg.KindGoto {
		return
	}
	if bb.Kind != cfg.KindFallthru {
		panic(fmt.Errorf("layout: %s: bb%d is not a fall-through block", l.f.Name, bb.ID))
	}
	if !bb.HasAttr(cfg.AttrTry) && !bb.HasAttr(cfg.AttrWontExit) && len(bb.Succs) != 1 {
		panic(fmt.Errorf("layout: %s: fall-through bb%d has %d successors", l.f.Name, bb.ID, len(bb.Succs)))
	}
	ft := l.fallThruSkippingEmpty(bb)
	if ft == nextBB {
		return
	}
	if l.CanBeMoved(ft, bb) {
		l.addBB(ft)
		l.ResolveUnconditionalFallThru(ft, nextBB)
		l.OptimizeBranchTarget(ft)
		return
	}
	l.appendGoto(bb, ft)
	l.OptimizeBranchTarget(bb)
}

// appendGoto turns the fall-through block bb into a goto block targeting
// ft.
func (l *Layout) appendGoto(bb, ft *cfg.BB) {
	bb.AppendStmt(ir.NewGoto(l.f.GetOrCreateLabel(ft)))
	bb.Kind = cfg.KindGoto
}
