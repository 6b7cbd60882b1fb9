package layout

import (
	"fmt"

	"arbor/internal/cfg"
	"arbor/internal/ir"
)

// OptimizeBranchTarget rewrites bb's branch to skip trivial targets
// until a fixed point: targets holding only a goto, empty fall-through
// targets, and conditional targets that re-test bb's own condition with
// the same sense. Each rewrite removes an edge, so the loop is bounded
// by the block count; the explicit counter guards against a CFG mutation
// that breaks that monotonicity.
func (l *Layout) OptimizeBranchTarget(bb *cfg.BB) {
	last := bb.LastStmt()
	if last == nil || (last.Op != ir.OpGoto && !last.IsCondBr()) {
		return
	}
	for iter := 0; ; iter++ {
		if iter > len(l.f.Blocks) {
			panic(fmt.Errorf("layout: %s: bb%d branch threading did not converge", l.f.Name, bb.ID))
		}
		if len(bb.Succs) == 0 {
			panic(fmt.Errorf("layout: %s: bb%d branch block without successors", l.f.Name, bb.ID))
		}
		ti := bb.Succs[0]
		if bb.Kind == cfg.KindCondGoto {
			ti = bb.Succs[1]
		}
		tgt := l.f.Block(ti)
		if tgt == bb || tgt.HasAttr(cfg.AttrWontExit) {
			return
		}
		if !l.ContainsOnlyGoto(tgt) && !l.EmptyAndFallthru(tgt) &&
			!(bb.Kind == cfg.KindCondGoto && tgt.Kind == cfg.KindCondGoto &&
				l.ContainsOnlyCondGoto(tgt) && l.SameBranchCond(bb, tgt)) {
			return
		}
		if len(tgt.Succs) == 0 {
			panic(fmt.Errorf("layout: %s: bb%d thread target bb%d has no successors", l.f.Name, bb.ID, tgt.ID))
		}
		ni := tgt.Succs[0]
		if tgt.Kind == cfg.KindCondGoto {
			// tgt re-tests the taken condition, so control exits along
			// its own taken edge.
			ni = tgt.Succs[1]
		}
		if ni == tgt.ID {
			return
		}
		newTgt := l.f.Block(ni)
		newLabel := l.f.GetOrCreateLabel(newTgt)
		br := bb.LastStmt()
		if tgt.Label != br.Offset {
			panic(fmt.Errorf("layout: %s: bb%d branch offset %d disagrees with target bb%d label %d",
				l.f.Name, bb.ID, br.Offset, tgt.ID, tgt.Label))
		}
		br.Offset = newLabel
		if bb.Kind == cfg.KindCondGoto {
			bb.Succs[1] = newTgt.ID
		} else {
			bb.Succs[0] = newTgt.ID
		}
		newTgt.AddPred(bb.ID)
		tgt.RemovePred(bb.ID)
		if len(tgt.Preds) == 0 {
			l.ensure(tgt.ID)
			l.laidOut[tgt.ID] = true
			l.RemoveUnreachable(tgt)
		}
	}
}
