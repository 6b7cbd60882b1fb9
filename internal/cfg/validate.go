package cfg

import (
	"errors"
	"fmt"

	"arbor/internal/ir"
)

// Validate checks function CFG invariants: a well-formed entry, mutual
// edges, successor counts matching block kinds, terminator/kind
// agreement and branch label consistency. Returns a joined error listing
// every violation.
func Validate(f *Func) error {
	if f == nil {
		return nil
	}
	var errs []error
	if len(f.Blocks) == 0 || f.Blocks[0] == nil || !f.Blocks[0].HasAttr(AttrEntry) {
		errs = append(errs, fmt.Errorf("%s: block 0 is not the common entry", f.Name))
	}
	for i, b := range f.Blocks {
		if b == nil {
			continue
		}
		if int(b.ID) != i {
			errs = append(errs, fmt.Errorf("%s: bb%d: stored id %d disagrees with table index", f.Name, i, b.ID))
			continue
		}
		if err := validateEdges(f, b); err != nil {
			errs = append(errs, err)
		}
		if err := validateKind(f, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateEdges(f *Func, b *BB) error {
	var errs []error
	for _, s := range b.Succs {
		if s < 0 || int(s) >= len(f.Blocks) || f.Blocks[s] == nil {
			errs = append(errs, fmt.Errorf("%s: bb%d: dangling successor %d", f.Name, b.ID, s))
			continue
		}
		if !contains(f.Blocks[s].Preds, b.ID) {
			errs = append(errs, fmt.Errorf("%s: bb%d: successor bb%d lacks the mirror predecessor edge", f.Name, b.ID, s))
		}
	}
	for _, p := range b.Preds {
		if p < 0 || int(p) >= len(f.Blocks) || f.Blocks[p] == nil {
			errs = append(errs, fmt.Errorf("%s: bb%d: dangling predecessor %d", f.Name, b.ID, p))
			continue
		}
		if !contains(f.Blocks[p].Succs, b.ID) {
			errs = append(errs, fmt.Errorf("%s: bb%d: predecessor bb%d lacks the mirror successor edge", f.Name, b.ID, p))
		}
	}
	return errors.Join(errs...)
}

func validateKind(f *Func, b *BB) error {
	var errs []error
	last := b.LastStmt()
	switch b.Kind {
	case KindCondGoto:
		if len(b.Succs) != 2 {
			errs = append(errs, fmt.Errorf("%s: bb%d: condgoto with %d successors", f.Name, b.ID, len(b.Succs)))
		}
		if last == nil || !last.IsCondBr() {
			errs = append(errs, fmt.Errorf("%s: bb%d: condgoto without a conditional branch terminator", f.Name, b.ID))
		} else if len(b.Succs) == 2 {
			errs = appendLabelMismatch(errs, f, b, last, b.Succs[1])
		}
	case KindGoto:
		if len(b.Succs) != 1 {
			errs = append(errs, fmt.Errorf("%s: bb%d: goto with %d successors", f.Name, b.ID, len(b.Succs)))
		}
		if last == nil || last.Op != ir.OpGoto {
			errs = append(errs, fmt.Errorf("%s: bb%d: goto without a goto terminator", f.Name, b.ID))
		} else if len(b.Succs) == 1 {
			errs = appendLabelMismatch(errs, f, b, last, b.Succs[0])
		}
	case KindFallthru:
		// Try-body entries may carry extra exception edges.
		if len(b.Succs) != 1 && !b.HasAttr(AttrTry) && !b.HasAttr(AttrWontExit) {
			errs = append(errs, fmt.Errorf("%s: bb%d: fallthru with %d successors", f.Name, b.ID, len(b.Succs)))
		}
		if last != nil && last.IsBranch() {
			errs = append(errs, fmt.Errorf("%s: bb%d: fallthru ends in a branch", f.Name, b.ID))
		}
	case KindReturn:
		if len(b.Succs) != 0 {
			errs = append(errs, fmt.Errorf("%s: bb%d: return block with successors", f.Name, b.ID))
		}
	case KindSwitch:
		if len(b.Succs) == 0 {
			errs = append(errs, fmt.Errorf("%s: bb%d: switch without successors", f.Name, b.ID))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: bb%d: unknown block kind", f.Name, b.ID))
	}
	return errors.Join(errs...)
}

func appendLabelMismatch(errs []error, f *Func, b *BB, br *ir.Stmt, target BlockID) []error {
	t := f.Blocks[target]
	if t == nil {
		return errs
	}
	if t.Label != br.Offset {
		errs = append(errs, fmt.Errorf("%s: bb%d: branch offset %d disagrees with target bb%d label %d",
			f.Name, b.ID, br.Offset, target, t.Label))
	}
	return errs
}

func contains(ids []BlockID, id BlockID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
