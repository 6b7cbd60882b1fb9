package layout

import (
	"arbor/internal/cfg"
	"arbor/internal/ir"
)

// EmptyAndFallthru reports whether bb is an empty fall-through block.
// Region-closing blocks never qualify.
func (l *Layout) EmptyAndFallthru(bb *cfg.BB) bool {
	if bb.HasAttr(cfg.AttrTryEnd) {
		return false
	}
	return bb.Kind == cfg.KindFallthru && bb.IsEmpty()
}

// ContainsOnlyGoto reports whether bb holds nothing but goto and comment
// statements and ends in a goto.
func (l *Layout) ContainsOnlyGoto(bb *cfg.BB) bool {
	if bb.Kind != cfg.KindGoto || bb.HasAttr(cfg.AttrTryEnd) {
		return false
	}
	if len(bb.Stmts) == 0 {
		return false
	}
	for i := range bb.Stmts[:len(bb.Stmts)-1] {
		if op := bb.Stmts[i].Op; op != ir.OpGoto && op != ir.OpComment {
			return false
		}
	}
	return bb.LastStmt().Op == ir.OpGoto
}

// ContainsOnlyCondGoto reports whether bb holds nothing but conditional
// branches and comments and ends in a conditional branch.
func (l *Layout) ContainsOnlyCondGoto(bb *cfg.BB) bool {
	if bb.Kind != cfg.KindCondGoto || bb.HasAttr(cfg.AttrTryEnd) {
		return false
	}
	if len(bb.Stmts) == 0 {
		return false
	}
	for i := range bb.Stmts[:len(bb.Stmts)-1] {
		if s := &bb.Stmts[i]; !s.IsCondBr() && s.Op != ir.OpComment {
			return false
		}
	}
	return bb.LastStmt().IsCondBr()
}

// SameBranchCond reports whether bb1 and bb2 end in conditional branches
// that test the same direction of the same compare, either with
// identical opcodes or as contrapositives, e.g.
// brfalse (gt a 3) against brtrue (le a 3).
func (l *Layout) SameBranchCond(bb1, bb2 *cfg.BB) bool {
	s1, s2 := bb1.LastStmt(), bb2.LastStmt()
	if s1 == nil || s2 == nil || !s1.IsCondBr() || !s2.IsCondBr() {
		return false
	}
	c1, c2 := s1.Cond, s2.Cond
	if c1 == nil || c2 == nil {
		return false
	}
	if !(s1.Op == s2.Op && c1.Op == c2.Op) &&
		!(s1.Op == ir.Opposite(s2.Op) && c1.Op == ir.Opposite(c2.Op)) {
		return false
	}
	if !ir.IsCompare(c1.Op) || !ir.IsCompare(c2.Op) {
		return false
	}
	if !ir.Same(c1.X, c2.X) {
		return false
	}
	// A constant always sits on the rhs; two zeros match even when they
	// are distinct nodes. Non-zero constants must be identical.
	if !ir.Same(c1.Y, c2.Y) && !(c1.Y.IsZero() && c2.Y.IsZero()) {
		return false
	}
	return true
}

// CanBeMoved reports whether from may be relocated to immediately follow
// toAfter. Single-entry blocks not yet laid out qualify when they are
// artificial, or when neither side is inside a protected region; a pure
// goto block may move across region boundaries because it has no
// effects.
func (l *Layout) CanBeMoved(from, toAfter *cfg.BB) bool {
	if len(from.Preds) > 1 {
		return false
	}
	if l.isLaidOut(from.ID) {
		return false
	}
	if from.HasAttr(cfg.AttrArtificial) ||
		(!from.HasAttr(cfg.AttrTry) && !toAfter.HasAttr(cfg.AttrTry)) {
		return len(from.Succs) == 1
	}
	return l.ContainsOnlyGoto(from)
}
