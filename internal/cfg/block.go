package cfg

import "arbor/internal/ir"

// BlockID identifies a basic block within its function.
type BlockID int32

// NoBlock is the absent-block sentinel.
const NoBlock BlockID = -1

// Kind classifies a block by its terminator.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindFallthru falls through to its single successor.
	KindFallthru
	// KindGoto ends in an unconditional branch.
	KindGoto
	// KindCondGoto ends in a conditional branch; successor 0 is the
	// fall-through edge, successor 1 the taken edge.
	KindCondGoto
	// KindReturn ends in a return and has no successors.
	KindReturn
	// KindSwitch ends in a multi-way branch.
	KindSwitch
)

var kindNames = [...]string{
	KindUnknown:  "unknown",
	KindFallthru: "fallthru",
	KindGoto:     "goto",
	KindCondGoto: "condgoto",
	KindReturn:   "return",
	KindSwitch:   "switch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind?"
}

// Attr is a bit set of block attributes.
type Attr uint8

const (
	// AttrEntry marks the function's common entry block.
	AttrEntry Attr = 1 << iota
	// AttrArtificial marks blocks synthesized by optimization passes.
	AttrArtificial
	// AttrTry marks blocks inside an exception-handling region.
	AttrTry
	// AttrTryEnd marks the closing boundary of an exception-handling region.
	AttrTryEnd
	// AttrWontExit marks blocks that never return control, such as
	// abort helpers.
	AttrWontExit
)

// BB is a basic block. Predecessor and successor edges are ordered lists
// of block ids resolved through the owning function's block table.
type BB struct {
	ID    BlockID
	Kind  Kind
	Attr  Attr
	Label ir.LabelID
	Freq  uint64
	Stmts []ir.Stmt
	Preds []BlockID
	Succs []BlockID
}

// HasAttr reports whether the block carries attribute a.
func (b *BB) HasAttr(a Attr) bool { return b.Attr&a != 0 }

// SetAttr adds attribute a to the block.
func (b *BB) SetAttr(a Attr) { b.Attr |= a }

// IsEmpty reports whether the block has no statements other than comments.
func (b *BB) IsEmpty() bool {
	for i := range b.Stmts {
		if b.Stmts[i].Op != ir.OpComment {
			return false
		}
	}
	return true
}

// FirstStmt returns the first statement, or nil for an empty block.
func (b *BB) FirstStmt() *ir.Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return &b.Stmts[0]
}

// LastStmt returns the last statement, or nil for an empty block.
// By construction the terminator, when present, is the last statement.
func (b *BB) LastStmt() *ir.Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return &b.Stmts[len(b.Stmts)-1]
}

// AppendStmt appends s to the statement list.
func (b *BB) AppendStmt(s ir.Stmt) {
	b.Stmts = append(b.Stmts, s)
}

// RemoveLastStmt drops the last statement. It is a no-op on an empty
// block.
func (b *BB) RemoveLastStmt() {
	if n := len(b.Stmts); n > 0 {
		b.Stmts = b.Stmts[:n-1]
	}
}

// ReplaceSucc rewrites the first occurrence of old in the successor
// list. It does not touch predecessor lists; callers keep the mirror
// edges consistent.
func (b *BB) ReplaceSucc(old, repl BlockID) bool {
	for i, s := range b.Succs {
		if s == old {
			b.Succs[i] = repl
			return true
		}
	}
	return false
}

// RemovePred deletes the first occurrence of id from the predecessor
// list, preserving order.
func (b *BB) RemovePred(id BlockID) bool {
	for i, p := range b.Preds {
		if p == id {
			b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
			return true
		}
	}
	return false
}

// AddPred appends id to the predecessor list.
func (b *BB) AddPred(id BlockID) {
	b.Preds = append(b.Preds, id)
}
