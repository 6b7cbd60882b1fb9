package cfg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"arbor/internal/ir"
)

// Fprint writes the textual form of f. The output is stable and is the
// same surface cfgtext parses.
func Fprint(w io.Writer, f *Func) error {
	header := "func " + f.Name
	if f.ExplicitEH {
		header += " explicit-eh"
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	for _, b := range f.Blocks {
		if b == nil {
			continue
		}
		if _, err := fmt.Fprintln(w, blockHeader(f, b)); err != nil {
			return err
		}
		for i := range b.Stmts {
			if _, err := fmt.Fprintf(w, "  %s\n", FormatStmt(f, &b.Stmts[i])); err != nil {
				return err
			}
		}
	}
	return nil
}

// FprintModule writes every function of m separated by blank lines.
func FprintModule(w io.Writer, m *Module) error {
	for i, f := range m.Funcs {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := Fprint(w, f); err != nil {
			return err
		}
	}
	return nil
}

func blockHeader(f *Func, b *BB) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "bb %d", b.ID)
	if b.HasAttr(AttrEntry) {
		sb.WriteString(" entry")
	}
	if b.HasAttr(AttrArtificial) {
		sb.WriteString(" artificial")
	}
	if b.HasAttr(AttrTry) {
		sb.WriteString(" try")
	}
	if b.HasAttr(AttrTryEnd) {
		if t := f.TryFor(b.ID); t != NoBlock {
			fmt.Fprintf(&sb, " tryend=%d", t)
		} else {
			sb.WriteString(" tryend")
		}
	}
	if b.HasAttr(AttrWontExit) {
		sb.WriteString(" wontexit")
	}
	if b.Freq != 0 {
		fmt.Fprintf(&sb, " freq=%d", b.Freq)
	}
	sb.WriteByte(' ')
	sb.WriteString(b.Kind.String())
	if len(b.Succs) > 0 {
		sb.WriteString(" ->")
		for _, s := range b.Succs {
			fmt.Fprintf(&sb, " %d", s)
		}
	}
	return sb.String()
}

// FormatStmt renders one statement. Branch offsets print as @<blockid>
// resolved through the function's label table.
func FormatStmt(f *Func, s *ir.Stmt) string {
	switch s.Op {
	case ir.OpComment:
		return "comment " + s.Text
	case ir.OpGoto:
		return "goto " + formatTarget(f, s.Offset)
	case ir.OpBrTrue, ir.OpBrFalse:
		return fmt.Sprintf("%s %s %s", s.Op, FormatExpr(s.Cond), formatTarget(f, s.Offset))
	case ir.OpReturn, ir.OpTry, ir.OpEndTry:
		return s.Op.String()
	case ir.OpSwitch:
		return "switch " + FormatExpr(s.Cond)
	case ir.OpCall:
		parts := []string{"call", s.Callee}
		for _, a := range s.Args {
			parts = append(parts, FormatExpr(a))
		}
		return strings.Join(parts, " ")
	case ir.OpAssign:
		return fmt.Sprintf("assign %%%s %s", s.Dst, FormatExpr(s.Src))
	}
	return s.Op.String()
}

func formatTarget(f *Func, l ir.LabelID) string {
	if id := f.LabelTarget(l); id != NoBlock {
		return fmt.Sprintf("@%d", id)
	}
	return "@?"
}

// FormatExpr renders an expression in prefix form.
func FormatExpr(e *ir.Expr) string {
	if e == nil {
		return "_"
	}
	switch e.Op {
	case ir.OpVar:
		return "%" + e.Name
	case ir.OpConst:
		return fmt.Sprintf("%d", e.Val)
	case ir.OpNeg:
		return fmt.Sprintf("(neg %s)", FormatExpr(e.X))
	default:
		return fmt.Sprintf("(%s %s %s)", e.Op, FormatExpr(e.X), FormatExpr(e.Y))
	}
}

// DumpToFile writes the textual form of f to <dir>/<name>.<suffix>.cfg.
// An empty dir means the current directory.
func DumpToFile(f *Func, dir, suffix string) error {
	path := filepath.Join(dir, f.Name+"."+suffix+".cfg")
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cfg dump: %w", err)
	}
	if err := Fprint(out, f); err != nil {
		out.Close()
		return fmt.Errorf("cfg dump %s: %w", path, err)
	}
	return out.Close()
}
