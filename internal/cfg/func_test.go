package cfg

import (
	"testing"

	"arbor/internal/ir"
)

func TestGetOrCreateLabelIdempotent(t *testing.T) {
	f := NewFunc("labels")
	a := f.NewBasicBlock()
	b := f.NewBasicBlock()

	la := f.GetOrCreateLabel(a)
	if la == ir.NoLabel {
		t.Fatalf("minted label must not be the sentinel")
	}
	if again := f.GetOrCreateLabel(a); again != la {
		t.Fatalf("repeat mint returned %d, want %d", again, la)
	}
	lb := f.GetOrCreateLabel(b)
	if lb == la {
		t.Fatalf("two blocks share label %d", la)
	}
	if f.LabelTarget(la) != a.ID || f.LabelTarget(lb) != b.ID {
		t.Fatalf("label table does not resolve back to the blocks")
	}
}

func TestNewBasicBlockIDs(t *testing.T) {
	f := NewFunc("ids")
	for want := 0; want < 5; want++ {
		b := f.NewBasicBlock()
		if int(b.ID) != want {
			t.Fatalf("block id %d, want %d", b.ID, want)
		}
	}
}

func TestNullify(t *testing.T) {
	f := NewFunc("nullify")
	f.NewBasicBlock()
	b := f.NewBasicBlock()
	l := f.GetOrCreateLabel(b)
	f.Nullify(b.ID)
	if f.Block(b.ID) != nil {
		t.Fatalf("block survived nullify")
	}
	if f.LabelTarget(l) != NoBlock {
		t.Fatalf("label still resolves after nullify")
	}
	f.Nullify(b.ID) // repeat is a no-op
}

func TestTryMapping(t *testing.T) {
	f := NewFunc("try")
	tryBB := f.NewBasicBlock()
	endBB := f.NewBasicBlock()
	f.SetTryEnd(tryBB.ID, endBB.ID)
	if f.TryFor(endBB.ID) != tryBB.ID {
		t.Fatalf("endtry does not map back to its try")
	}
	if f.TryFor(tryBB.ID) != NoBlock {
		t.Fatalf("try block itself has no mapping")
	}
}

func TestBlockOutOfRangeAborts(t *testing.T) {
	f := NewFunc("range")
	f.NewBasicBlock()
	defer func() {
		if recover() == nil {
			t.Fatalf("out-of-range id must abort")
		}
	}()
	f.Block(7)
}
