package cfgtext

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"arbor/internal/cfg"
	"arbor/internal/ir"
)

// Snapshot schema version - increment when the payload format changes.
const snapshotSchemaVersion uint16 = 1

type snapModule struct {
	Schema uint16
	Funcs  []snapFunc
}

type snapFunc struct {
	Name       string
	ExplicitEH bool
	Blocks     []snapBlock
}

type snapBlock struct {
	ID      int32
	Removed bool
	Kind    uint8
	Attr    uint8
	Freq    uint64
	TryFor  int32
	Succs   []int32
	Stmts   []snapStmt
}

type snapStmt struct {
	Op     uint8
	Target int32 // branch target block id, -1 when absent
	Cond   *snapExpr
	Text   string
	Callee string
	Args   []*snapExpr
	Dst    string
	Src    *snapExpr
}

type snapExpr struct {
	Op   uint8
	Name string
	Val  int64
	X    *snapExpr
	Y    *snapExpr
}

// EncodeSnapshot writes m as a versioned binary snapshot. Branch targets
// are stored as block ids; labels are re-minted on decode.
func EncodeSnapshot(w io.Writer, m *cfg.Module) error {
	sm := snapModule{Schema: snapshotSchemaVersion}
	for _, f := range m.Funcs {
		sf := snapFunc{Name: f.Name, ExplicitEH: f.ExplicitEH}
		for id, b := range f.Blocks {
			if b == nil {
				// Keep removed slots so ids survive the round trip.
				sf.Blocks = append(sf.Blocks, snapBlock{ID: int32(id), Removed: true, TryFor: int32(cfg.NoBlock)})
				continue
			}
			sb := snapBlock{
				ID:     int32(b.ID),
				Kind:   uint8(b.Kind),
				Attr:   uint8(b.Attr),
				Freq:   b.Freq,
				TryFor: int32(cfg.NoBlock),
			}
			if b.HasAttr(cfg.AttrTryEnd) {
				sb.TryFor = int32(f.TryFor(b.ID))
			}
			for _, s := range b.Succs {
				sb.Succs = append(sb.Succs, int32(s))
			}
			for i := range b.Stmts {
				sb.Stmts = append(sb.Stmts, encodeStmt(f, &b.Stmts[i]))
			}
			sf.Blocks = append(sf.Blocks, sb)
		}
		sm.Funcs = append(sm.Funcs, sf)
	}
	return msgpack.NewEncoder(w).Encode(&sm)
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader) (*cfg.Module, error) {
	var sm snapModule
	if err := msgpack.NewDecoder(r).Decode(&sm); err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	if sm.Schema != snapshotSchemaVersion {
		return nil, fmt.Errorf("snapshot schema %d unsupported, want %d", sm.Schema, snapshotSchemaVersion)
	}
	m := &cfg.Module{}
	for i := range sm.Funcs {
		f, err := decodeFunc(&sm.Funcs[i])
		if err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, f)
	}
	return m, nil
}

func encodeStmt(f *cfg.Func, s *ir.Stmt) snapStmt {
	ss := snapStmt{
		Op:     uint8(s.Op),
		Target: int32(cfg.NoBlock),
		Cond:   encodeExpr(s.Cond),
		Text:   s.Text,
		Callee: s.Callee,
		Dst:    s.Dst,
		Src:    encodeExpr(s.Src),
	}
	if s.Offset != ir.NoLabel {
		ss.Target = int32(f.LabelTarget(s.Offset))
	}
	for _, a := range s.Args {
		ss.Args = append(ss.Args, encodeExpr(a))
	}
	return ss
}

func encodeExpr(e *ir.Expr) *snapExpr {
	if e == nil {
		return nil
	}
	return &snapExpr{
		Op:   uint8(e.Op),
		Name: e.Name,
		Val:  e.Val,
		X:    encodeExpr(e.X),
		Y:    encodeExpr(e.Y),
	}
}

func decodeFunc(sf *snapFunc) (*cfg.Func, error) {
	f := cfg.NewFunc(sf.Name)
	f.ExplicitEH = sf.ExplicitEH
	for i := range sf.Blocks {
		sb := &sf.Blocks[i]
		b := f.NewBasicBlock()
		if int32(b.ID) != sb.ID {
			return nil, fmt.Errorf("snapshot: %s: block ids not dense: got %d, want %d", sf.Name, sb.ID, b.ID)
		}
		if sb.Removed {
			f.Nullify(b.ID)
			continue
		}
		b.Kind = cfg.Kind(sb.Kind)
		b.Attr = cfg.Attr(sb.Attr)
		b.Freq = sb.Freq
		if sb.TryFor != int32(cfg.NoBlock) {
			f.SetTryEnd(cfg.BlockID(sb.TryFor), b.ID)
		}
	}
	for i := range sf.Blocks {
		sb := &sf.Blocks[i]
		if sb.Removed {
			continue
		}
		b := f.Block(cfg.BlockID(sb.ID))
		for _, s := range sb.Succs {
			if s < 0 || int(s) >= len(f.Blocks) || f.Blocks[s] == nil {
				return nil, fmt.Errorf("snapshot: %s: bb%d: successor %d out of range", sf.Name, sb.ID, s)
			}
			f.Connect(b, f.Block(cfg.BlockID(s)))
		}
		for j := range sb.Stmts {
			st, err := decodeStmt(f, sf.Name, &sb.Stmts[j])
			if err != nil {
				return nil, err
			}
			b.AppendStmt(st)
		}
	}
	return f, nil
}

func decodeStmt(f *cfg.Func, fname string, ss *snapStmt) (ir.Stmt, error) {
	s := ir.Stmt{
		Op:     ir.Op(ss.Op),
		Cond:   decodeExpr(ss.Cond),
		Text:   ss.Text,
		Callee: ss.Callee,
		Dst:    ss.Dst,
		Src:    decodeExpr(ss.Src),
	}
	for _, a := range ss.Args {
		s.Args = append(s.Args, decodeExpr(a))
	}
	if s.IsBranch() {
		if ss.Target < 0 || int(ss.Target) >= len(f.Blocks) || f.Blocks[ss.Target] == nil {
			return ir.Stmt{}, fmt.Errorf("snapshot: %s: branch target %d out of range", fname, ss.Target)
		}
		s.Offset = f.GetOrCreateLabel(f.Block(cfg.BlockID(ss.Target)))
	}
	return s, nil
}

func decodeExpr(se *snapExpr) *ir.Expr {
	if se == nil {
		return nil
	}
	return &ir.Expr{
		Op:   ir.Op(se.Op),
		Name: se.Name,
		Val:  se.Val,
		X:    decodeExpr(se.X),
		Y:    decodeExpr(se.Y),
	}
}
