package cfg

import (
	"strings"
	"testing"

	"arbor/internal/ir"
)

func linearFunc() *Func {
	f := NewFunc("linear")
	entry := f.NewBasicBlock()
	entry.SetAttr(AttrEntry)
	entry.Kind = KindFallthru
	entry.AppendStmt(ir.Stmt{Op: ir.OpAssign, Dst: "x", Src: ir.NewConst(1)})
	ret := f.NewBasicBlock()
	ret.Kind = KindReturn
	ret.AppendStmt(ir.Stmt{Op: ir.OpReturn})
	f.Connect(entry, ret)
	return f
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	if err := Validate(linearFunc()); err != nil {
		t.Fatalf("well-formed CFG rejected: %v", err)
	}
}

func TestValidateMissingEntry(t *testing.T) {
	f := NewFunc("noentry")
	b := f.NewBasicBlock()
	b.Kind = KindReturn
	b.AppendStmt(ir.Stmt{Op: ir.OpReturn})
	err := Validate(f)
	if err == nil || !strings.Contains(err.Error(), "common entry") {
		t.Fatalf("missing entry not reported: %v", err)
	}
}

func TestValidateCondGotoSuccCount(t *testing.T) {
	f := linearFunc()
	entry := f.Block(0)
	entry.Kind = KindCondGoto
	entry.AppendStmt(ir.NewCondBr(ir.OpBrTrue, ir.NewVar("a"), f.GetOrCreateLabel(f.Block(1))))
	err := Validate(f)
	if err == nil || !strings.Contains(err.Error(), "condgoto with 1 successors") {
		t.Fatalf("bad successor count not reported: %v", err)
	}
}

func TestValidateMutualEdges(t *testing.T) {
	f := linearFunc()
	// Break the mirror edge.
	f.Block(1).Preds = nil
	err := Validate(f)
	if err == nil || !strings.Contains(err.Error(), "mirror predecessor") {
		t.Fatalf("broken mirror edge not reported: %v", err)
	}
}

func TestValidateLabelMismatch(t *testing.T) {
	f := linearFunc()
	entry := f.Block(0)
	entry.Kind = KindGoto
	f.GetOrCreateLabel(f.Block(1))
	entry.AppendStmt(ir.NewGoto(ir.LabelID(99)))
	err := Validate(f)
	if err == nil || !strings.Contains(err.Error(), "disagrees with target") {
		t.Fatalf("label mismatch not reported: %v", err)
	}
}

func TestValidateFallthruEndingInBranch(t *testing.T) {
	f := linearFunc()
	entry := f.Block(0)
	entry.AppendStmt(ir.NewGoto(f.GetOrCreateLabel(f.Block(1))))
	err := Validate(f)
	if err == nil || !strings.Contains(err.Error(), "fallthru ends in a branch") {
		t.Fatalf("fallthru terminator mismatch not reported: %v", err)
	}
}
