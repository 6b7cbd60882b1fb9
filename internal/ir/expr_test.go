package ir

import "testing"

func TestSame(t *testing.T) {
	a := NewBinary(OpGt, NewVar("a"), NewConst(3))
	b := NewBinary(OpGt, NewVar("a"), NewConst(3))
	if !Same(a, b) {
		t.Errorf("structurally identical trees must compare equal")
	}
	if Same(a, NewBinary(OpGt, NewVar("b"), NewConst(3))) {
		t.Errorf("different variables must not compare equal")
	}
	if Same(a, NewBinary(OpGt, NewVar("a"), NewConst(4))) {
		t.Errorf("different constants must not compare equal")
	}
	if Same(a, NewBinary(OpGe, NewVar("a"), NewConst(3))) {
		t.Errorf("different operators must not compare equal")
	}
	if !Same(nil, nil) {
		t.Errorf("two absent operands compare equal")
	}
	if Same(a, nil) {
		t.Errorf("a tree never equals an absent operand")
	}
	nested := NewBinary(OpEq, NewBinary(OpAdd, NewVar("a"), NewConst(1)), NewConst(0))
	if !Same(nested, NewBinary(OpEq, NewBinary(OpAdd, NewVar("a"), NewConst(1)), NewConst(0))) {
		t.Errorf("nested trees must compare structurally")
	}
}

func TestIsZero(t *testing.T) {
	if !NewConst(0).IsZero() {
		t.Errorf("zero constant is zero")
	}
	if NewConst(1).IsZero() || NewVar("a").IsZero() {
		t.Errorf("non-zero values are not zero")
	}
	var e *Expr
	if e.IsZero() {
		t.Errorf("nil expression is not zero")
	}
}
