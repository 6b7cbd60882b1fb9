package ir

import "testing"

func TestOpposite(t *testing.T) {
	pairs := [][2]Op{
		{OpBrTrue, OpBrFalse},
		{OpEq, OpNe},
		{OpLt, OpGe},
		{OpLe, OpGt},
	}
	for _, p := range pairs {
		if Opposite(p[0]) != p[1] || Opposite(p[1]) != p[0] {
			t.Errorf("Opposite(%s) and %s do not invert each other", p[0], p[1])
		}
	}
	for _, o := range []Op{OpGoto, OpReturn, OpAdd, OpVar, OpComment} {
		if Opposite(o) != OpUndef {
			t.Errorf("Opposite(%s) = %s, want undef", o, Opposite(o))
		}
	}
}

func TestIsCondBr(t *testing.T) {
	if !IsCondBr(OpBrTrue) || !IsCondBr(OpBrFalse) {
		t.Errorf("brtrue/brfalse are conditional branches")
	}
	if IsCondBr(OpGoto) || IsCondBr(OpEq) {
		t.Errorf("goto and compares are not conditional branches")
	}
}
