package layout

import "arbor/internal/cfg"

// RemoveUnreachable deletes bb from the function after its last
// predecessor edge is gone, recursing into successors that become
// orphaned in turn. The entry block is never removed. The walk is
// bounded: a removed block loses its successor edges before recursion.
func (l *Layout) RemoveUnreachable(bb *cfg.BB) {
	if bb.HasAttr(cfg.AttrEntry) {
		return
	}
	l.ensure(bb.ID)
	l.laidOut[bb.ID] = true
	succs := append([]cfg.BlockID(nil), bb.Succs...)
	bb.Succs = bb.Succs[:0]
	for _, si := range succs {
		s := l.f.Block(si)
		if s == nil {
			continue
		}
		s.RemovePred(bb.ID)
		if len(s.Preds) == 0 {
			l.RemoveUnreachable(s)
		}
	}
	l.f.Nullify(bb.ID)
}
