package cfg

import (
	"fmt"

	"fortio.org/safecast"

	"arbor/internal/ir"
)

// Func is the function container: the dense block table, the label
// allocator and the endtry-to-try mapping. Block ids index the table
// directly; a nil entry is a block removed as unreachable.
type Func struct {
	Name   string
	Blocks []*BB

	// ExplicitEH is set by the front end for functions whose endtry
	// markers close the outstanding protected region.
	ExplicitEH bool

	// DebugLayout enables per-pass debug output for this function.
	DebugLayout bool

	nextLabel   ir.LabelID
	labelTarget map[ir.LabelID]BlockID
	endTryToTry map[BlockID]BlockID
}

// NewFunc returns an empty function named name.
func NewFunc(name string) *Func {
	return &Func{
		Name:        name,
		labelTarget: make(map[ir.LabelID]BlockID),
		endTryToTry: make(map[BlockID]BlockID),
	}
}

// NewBasicBlock appends a fresh block to the block table and returns it.
func (f *Func) NewBasicBlock() *BB {
	raw, err := safecast.Conv[int32](len(f.Blocks))
	if err != nil {
		panic(fmt.Errorf("cfg: block id overflow in %s: %w", f.Name, err))
	}
	b := &BB{ID: BlockID(raw)}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Block returns the block with the given id, or nil if it was removed.
// An out-of-range id is a fatal error.
func (f *Func) Block(id BlockID) *BB {
	if id < 0 || int(id) >= len(f.Blocks) {
		panic(fmt.Errorf("cfg: %s: block id %d out of range [0,%d)", f.Name, id, len(f.Blocks)))
	}
	return f.Blocks[id]
}

// Entry returns the common entry block, always block 0.
func (f *Func) Entry() *BB {
	if len(f.Blocks) == 0 || f.Blocks[0] == nil {
		panic(fmt.Errorf("cfg: %s: missing entry block", f.Name))
	}
	return f.Blocks[0]
}

// GetOrCreateLabel returns b's label, minting one on first use. Repeat
// calls for the same block return the same label. This is the only way
// to obtain a branch target.
func (f *Func) GetOrCreateLabel(b *BB) ir.LabelID {
	if b.Label != ir.NoLabel {
		return b.Label
	}
	f.nextLabel++
	b.Label = f.nextLabel
	f.labelTarget[b.Label] = b.ID
	return b.Label
}

// LabelTarget resolves a label to its block id, or NoBlock.
func (f *Func) LabelTarget(l ir.LabelID) BlockID {
	if id, ok := f.labelTarget[l]; ok {
		return id
	}
	return NoBlock
}

// Nullify removes the block with the given id from the block table.
func (f *Func) Nullify(id BlockID) {
	b := f.Block(id)
	if b == nil {
		return
	}
	if b.Label != ir.NoLabel {
		delete(f.labelTarget, b.Label)
	}
	f.Blocks[id] = nil
}

// SetTryEnd records that endID closes the protected region opened by
// tryID.
func (f *Func) SetTryEnd(tryID, endID BlockID) {
	f.endTryToTry[endID] = tryID
}

// TryFor returns the opening try block for an endtry block, or NoBlock
// if none was recorded.
func (f *Func) TryFor(endID BlockID) BlockID {
	if id, ok := f.endTryToTry[endID]; ok {
		return id
	}
	return NoBlock
}

// Connect adds the edge from → to, updating both edge lists.
func (f *Func) Connect(from, to *BB) {
	from.Succs = append(from.Succs, to.ID)
	to.Preds = append(to.Preds, from.ID)
}
