package layout_test

import (
	"fmt"
	"math/rand"
	"testing"

	"arbor/internal/cfg"
	"arbor/internal/ir"
	"arbor/internal/layout"
)

// genFunc builds a random well-formed CFG. Edges only point forward so
// every generated graph is acyclic and the pass must terminate without
// relying on edge-removal monotonicity.
func genFunc(rng *rand.Rand, name string) *cfg.Func {
	f := cfg.NewFunc(name)
	n := 4 + rng.Intn(12)
	for i := 0; i < n; i++ {
		f.NewBasicBlock()
	}
	vars := []string{"a", "b"}

	for id := 0; id < n; id++ {
		b := f.Block(cfg.BlockID(id))
		remaining := n - 1 - id
		kind := cfg.KindReturn
		if id == 0 {
			b.SetAttr(cfg.AttrEntry)
			kind = cfg.KindFallthru
		} else if remaining > 0 {
			switch rng.Intn(10) {
			case 0, 1, 2:
				kind = cfg.KindFallthru
			case 3, 4, 5:
				kind = cfg.KindGoto
			case 6, 7:
				if remaining >= 2 {
					kind = cfg.KindCondGoto
				} else {
					kind = cfg.KindGoto
				}
			default:
				kind = cfg.KindReturn
			}
		}
		b.Kind = kind

		pick := func() *cfg.BB {
			return f.Block(cfg.BlockID(id + 1 + rng.Intn(remaining)))
		}
		switch kind {
		case cfg.KindFallthru:
			if rng.Intn(10) < 7 {
				b.AppendStmt(ir.Stmt{Op: ir.OpAssign, Dst: "x", Src: ir.NewConst(int64(id))})
			}
			f.Connect(b, pick())
		case cfg.KindGoto:
			t := pick()
			f.Connect(b, t)
			b.AppendStmt(ir.NewGoto(f.GetOrCreateLabel(t)))
		case cfg.KindCondGoto:
			ft := pick()
			tgt := pick()
			for tgt == ft {
				tgt = pick()
			}
			f.Connect(b, ft)
			f.Connect(b, tgt)
			if rng.Intn(2) == 0 {
				b.AppendStmt(ir.Stmt{Op: ir.OpAssign, Dst: "x", Src: ir.NewConst(int64(id))})
			}
			cmp := []ir.Op{ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe}[rng.Intn(6)]
			br := ir.OpBrTrue
			if rng.Intn(2) == 0 {
				br = ir.OpBrFalse
			}
			cond := ir.NewBinary(cmp, ir.NewVar(vars[rng.Intn(2)]), ir.NewConst(int64(rng.Intn(4))))
			b.AppendStmt(ir.NewCondBr(br, cond, f.GetOrCreateLabel(tgt)))
		case cfg.KindReturn:
			b.AppendStmt(ir.Stmt{Op: ir.OpReturn})
		}
	}
	return f
}

// reachableFrom collects the ids reachable from the entry block.
func reachableFrom(f *cfg.Func) map[cfg.BlockID]bool {
	seen := make(map[cfg.BlockID]bool)
	var visit func(id cfg.BlockID)
	visit = func(id cfg.BlockID) {
		if seen[id] || f.Blocks[id] == nil {
			return
		}
		seen[id] = true
		for _, s := range f.Blocks[id].Succs {
			visit(s)
		}
	}
	visit(0)
	return seen
}

func TestLayoutProperties(t *testing.T) {
	for seed := int64(1); seed <= 60; seed++ {
		seed := seed
		t.Run(fmt.Sprintf("seed%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			f := genFunc(rng, fmt.Sprintf("gen%d", seed))
			if err := cfg.Validate(f); err != nil {
				t.Fatalf("generator produced an invalid CFG: %v", err)
			}
			reachable := reachableFrom(f)

			res := layout.New(f, nil).Run()

			// Every block is emitted at most once.
			emitted := make(map[cfg.BlockID]int)
			for _, b := range res.Blocks() {
				emitted[b.ID]++
				if emitted[b.ID] > 1 {
					t.Fatalf("bb%d emitted twice", b.ID)
				}
			}
			// Coverage: a reachable block is emitted or nullified, and
			// everything surviving in the table is emitted.
			for id := range reachable {
				if emitted[id] == 0 && f.Blocks[id] != nil {
					t.Errorf("reachable bb%d neither emitted nor removed", id)
				}
			}
			for id, b := range f.Blocks {
				if b != nil && emitted[cfg.BlockID(id)] == 0 {
					t.Errorf("surviving bb%d missing from the layout", id)
				}
				if !res.IsLaidOut(cfg.BlockID(id)) {
					t.Errorf("bb%d not accounted for by IsLaidOut", id)
				}
			}
			// Edge integrity and label consistency.
			for _, b := range res.Blocks() {
				for _, s := range b.Succs {
					if f.Blocks[s] == nil {
						t.Errorf("bb%d has dangling successor %d", b.ID, s)
					}
				}
				last := b.LastStmt()
				switch b.Kind {
				case cfg.KindGoto:
					if tgt := f.Block(b.Succs[0]); last.Offset != tgt.Label {
						t.Errorf("bb%d goto offset %d, target label %d", b.ID, last.Offset, tgt.Label)
					}
				case cfg.KindCondGoto:
					if tgt := f.Block(b.Succs[1]); last.Offset != tgt.Label {
						t.Errorf("bb%d branch offset %d, target label %d", b.ID, last.Offset, tgt.Label)
					}
				}
				// Mutual edges survive the rewrites.
				for _, s := range b.Succs {
					if sb := f.Blocks[s]; sb != nil && !hasPred(sb, b.ID) {
						t.Errorf("bb%d -> bb%d lost the mirror predecessor edge", b.ID, s)
					}
				}
			}
			// Idempotence: a second run reproduces the order and stays
			// quiet.
			second := layout.New(f, nil).Run()
			got, want := order(second), order(res)
			if len(got) != len(want) {
				t.Fatalf("second run order %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("second run order %v, want %v", got, want)
				}
			}
			if second.NewBBInLayout() {
				t.Errorf("second run synthesized a block")
			}
		})
	}
}

// A back edge to a non-trivial block terminates: loop headers are
// re-tested, not threaded.
func TestLoopBackEdge(t *testing.T) {
	f := parseFunc(t, `
func loop
bb 0 entry fallthru -> 1
  assign %i 0
bb 1 condgoto -> 2 4
  brtrue (ge %i %n) @4
bb 2 fallthru -> 3
  assign %i (add %i 1)
bb 3 goto -> 1
  goto @1
bb 4 return
  return
`)
	res := layout.New(f, nil).Run()
	wantOrder(t, res, 0, 1, 2, 3, 4)
	if got := f.Block(3).LastStmt().Offset; got != f.Block(1).Label {
		t.Fatalf("back edge retargeted: offset=%d", got)
	}
}
