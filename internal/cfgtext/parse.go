// Package cfgtext reads and writes serialized control flow graphs: a
// line-oriented textual form (the same surface cfg.Fprint produces) and
// versioned binary snapshots.
package cfgtext

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"arbor/internal/cfg"
	"arbor/internal/ir"
)

type rawBlock struct {
	id     cfg.BlockID
	attr   cfg.Attr
	kind   cfg.Kind
	freq   uint64
	tryFor cfg.BlockID
	succs  []cfg.BlockID
	stmts  []rawStmt
}

type rawStmt struct {
	line int
	text string
}

type rawFunc struct {
	name       string
	explicitEH bool
	blocks     []rawBlock
}

type parser struct {
	file string
	line int
}

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", p.file, p.line, fmt.Sprintf(format, args...))
}

// Parse reads a module in textual form. Blocks must be declared in
// dense id order starting at 0 within each function.
func Parse(filename string, r io.Reader) (*cfg.Module, error) {
	p := &parser{file: filename}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var raws []*rawFunc
	var cur *rawFunc
	for sc.Scan() {
		p.line++
		line := strings.TrimRight(sc.Text(), " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		switch {
		case fields[0] == "func":
			f, err := p.parseFuncHeader(fields)
			if err != nil {
				return nil, err
			}
			raws = append(raws, f)
			cur = f
		case fields[0] == "bb":
			if cur == nil {
				return nil, p.errf("block outside a function")
			}
			b, err := p.parseBlockHeader(fields)
			if err != nil {
				return nil, err
			}
			if int(b.id) != len(cur.blocks) {
				return nil, p.errf("block ids must be dense: got %d, want %d", b.id, len(cur.blocks))
			}
			cur.blocks = append(cur.blocks, b)
		default:
			if cur == nil || len(cur.blocks) == 0 {
				return nil, p.errf("statement outside a block")
			}
			last := &cur.blocks[len(cur.blocks)-1]
			last.stmts = append(last.stmts, rawStmt{line: p.line, text: trimmed})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	m := &cfg.Module{}
	for _, rf := range raws {
		f, err := p.buildFunc(rf)
		if err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, f)
	}
	return m, nil
}

func (p *parser) parseFuncHeader(fields []string) (*rawFunc, error) {
	if len(fields) < 2 {
		return nil, p.errf("func header needs a name")
	}
	f := &rawFunc{name: fields[1]}
	for _, tok := range fields[2:] {
		switch tok {
		case "explicit-eh":
			f.explicitEH = true
		default:
			return nil, p.errf("unknown func flag %q", tok)
		}
	}
	return f, nil
}

func (p *parser) parseBlockHeader(fields []string) (rawBlock, error) {
	b := rawBlock{tryFor: cfg.NoBlock}
	if len(fields) < 3 {
		return b, p.errf("block header needs an id and a kind")
	}
	id, err := parseBlockID(fields[1])
	if err != nil {
		return b, p.errf("bad block id %q", fields[1])
	}
	b.id = id

	i := 2
	for ; i < len(fields); i++ {
		tok := fields[i]
		switch {
		case tok == "entry":
			b.attr |= cfg.AttrEntry
		case tok == "artificial":
			b.attr |= cfg.AttrArtificial
		case tok == "try":
			b.attr |= cfg.AttrTry
		case tok == "wontexit":
			b.attr |= cfg.AttrWontExit
		case tok == "tryend" || strings.HasPrefix(tok, "tryend="):
			b.attr |= cfg.AttrTryEnd
			if rest, ok := strings.CutPrefix(tok, "tryend="); ok {
				t, err := parseBlockID(rest)
				if err != nil {
					return b, p.errf("bad tryend target %q", rest)
				}
				b.tryFor = t
			}
		case strings.HasPrefix(tok, "freq="):
			n, err := strconv.ParseUint(tok[len("freq="):], 10, 64)
			if err != nil {
				return b, p.errf("bad freq %q", tok)
			}
			b.freq = n
		default:
			k, ok := parseKind(tok)
			if !ok {
				return b, p.errf("unknown block kind %q", tok)
			}
			b.kind = k
			i++
			goto succs
		}
	}
	return b, p.errf("block header missing a kind")

succs:
	if i < len(fields) {
		if fields[i] != "->" {
			return b, p.errf("expected \"->\" before successors, got %q", fields[i])
		}
		for _, tok := range fields[i+1:] {
			s, err := parseBlockID(tok)
			if err != nil {
				return b, p.errf("bad successor id %q", tok)
			}
			b.succs = append(b.succs, s)
		}
	}
	return b, nil
}

func parseKind(tok string) (cfg.Kind, bool) {
	switch tok {
	case "fallthru":
		return cfg.KindFallthru, true
	case "goto":
		return cfg.KindGoto, true
	case "condgoto":
		return cfg.KindCondGoto, true
	case "return":
		return cfg.KindReturn, true
	case "switch":
		return cfg.KindSwitch, true
	}
	return cfg.KindUnknown, false
}

func parseBlockID(tok string) (cfg.BlockID, error) {
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return cfg.NoBlock, err
	}
	raw, err := safecast.Conv[int32](n)
	if err != nil {
		return cfg.NoBlock, err
	}
	return cfg.BlockID(raw), nil
}

func (p *parser) buildFunc(rf *rawFunc) (*cfg.Func, error) {
	f := cfg.NewFunc(rf.name)
	f.ExplicitEH = rf.explicitEH
	for i := range rf.blocks {
		rb := &rf.blocks[i]
		b := f.NewBasicBlock()
		b.Attr = rb.attr
		b.Kind = rb.kind
		b.Freq = rb.freq
		if rb.tryFor != cfg.NoBlock {
			f.SetTryEnd(rb.tryFor, b.ID)
		}
	}
	// Edges first so statement targets can mint labels.
	for i := range rf.blocks {
		rb := &rf.blocks[i]
		b := f.Block(rb.id)
		for _, s := range rb.succs {
			if s < 0 || int(s) >= len(f.Blocks) {
				return nil, fmt.Errorf("%s: %s: bb%d: successor %d out of range", p.file, rf.name, rb.id, s)
			}
			f.Connect(b, f.Block(s))
		}
	}
	for i := range rf.blocks {
		b := f.Block(rf.blocks[i].id)
		for _, rs := range rf.blocks[i].stmts {
			p.line = rs.line
			s, err := p.parseStmt(f, rs.text)
			if err != nil {
				return nil, err
			}
			b.AppendStmt(s)
		}
	}
	return f, nil
}

func (p *parser) parseStmt(f *cfg.Func, text string) (ir.Stmt, error) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "comment":
		return ir.NewComment(strings.TrimSpace(strings.TrimPrefix(text, "comment"))), nil
	case "goto":
		if len(fields) != 2 {
			return ir.Stmt{}, p.errf("goto needs one target")
		}
		l, err := p.parseTarget(f, fields[1])
		if err != nil {
			return ir.Stmt{}, err
		}
		return ir.NewGoto(l), nil
	case "brtrue", "brfalse":
		op := ir.OpBrTrue
		if fields[0] == "brfalse" {
			op = ir.OpBrFalse
		}
		toks := tokenize(text)[1:]
		if len(toks) < 2 {
			return ir.Stmt{}, p.errf("%s needs a condition and a target", fields[0])
		}
		cond, rest, err := p.parseExpr(toks)
		if err != nil {
			return ir.Stmt{}, err
		}
		if len(rest) != 1 {
			return ir.Stmt{}, p.errf("%s needs exactly one target", fields[0])
		}
		l, err := p.parseTarget(f, rest[0])
		if err != nil {
			return ir.Stmt{}, err
		}
		return ir.NewCondBr(op, cond, l), nil
	case "return":
		return ir.Stmt{Op: ir.OpReturn}, nil
	case "try":
		return ir.Stmt{Op: ir.OpTry}, nil
	case "endtry":
		return ir.Stmt{Op: ir.OpEndTry}, nil
	case "switch":
		cond, rest, err := p.parseExpr(tokenize(text)[1:])
		if err != nil {
			return ir.Stmt{}, err
		}
		if len(rest) != 0 {
			return ir.Stmt{}, p.errf("trailing tokens after switch")
		}
		return ir.Stmt{Op: ir.OpSwitch, Cond: cond}, nil
	case "call":
		if len(fields) < 2 {
			return ir.Stmt{}, p.errf("call needs a callee")
		}
		s := ir.Stmt{Op: ir.OpCall, Callee: fields[1]}
		toks := tokenize(text)[2:]
		for len(toks) > 0 {
			arg, rest, err := p.parseExpr(toks)
			if err != nil {
				return ir.Stmt{}, err
			}
			s.Args = append(s.Args, arg)
			toks = rest
		}
		return s, nil
	case "assign":
		toks := tokenize(text)[1:]
		if len(toks) < 2 || !strings.HasPrefix(toks[0], "%") {
			return ir.Stmt{}, p.errf("assign needs a %%dest and a value")
		}
		src, rest, err := p.parseExpr(toks[1:])
		if err != nil {
			return ir.Stmt{}, err
		}
		if len(rest) != 0 {
			return ir.Stmt{}, p.errf("trailing tokens after assign")
		}
		return ir.Stmt{Op: ir.OpAssign, Dst: toks[0][1:], Src: src}, nil
	}
	return ir.Stmt{}, p.errf("unknown statement %q", fields[0])
}

// parseTarget resolves an @<blockid> reference, minting the target's
// label.
func (p *parser) parseTarget(f *cfg.Func, tok string) (ir.LabelID, error) {
	rest, ok := strings.CutPrefix(tok, "@")
	if !ok {
		return ir.NoLabel, p.errf("branch target must be @<blockid>, got %q", tok)
	}
	id, err := parseBlockID(rest)
	if err != nil || id < 0 || int(id) >= len(f.Blocks) {
		return ir.NoLabel, p.errf("bad branch target %q", tok)
	}
	return f.GetOrCreateLabel(f.Block(id)), nil
}

func tokenize(s string) []string {
	s = strings.ReplaceAll(s, "(", " ( ")
	s = strings.ReplaceAll(s, ")", " ) ")
	return strings.Fields(s)
}

var exprOps = map[string]ir.Op{
	"eq":  ir.OpEq,
	"ne":  ir.OpNe,
	"lt":  ir.OpLt,
	"le":  ir.OpLe,
	"gt":  ir.OpGt,
	"ge":  ir.OpGe,
	"add": ir.OpAdd,
	"sub": ir.OpSub,
	"neg": ir.OpNeg,
}

// parseExpr consumes one prefix-form expression from toks and returns
// the remainder.
func (p *parser) parseExpr(toks []string) (*ir.Expr, []string, error) {
	if len(toks) == 0 {
		return nil, nil, p.errf("missing expression")
	}
	tok := toks[0]
	switch {
	case tok == "(":
		if len(toks) < 2 {
			return nil, nil, p.errf("unterminated expression")
		}
		op, ok := exprOps[toks[1]]
		if !ok {
			return nil, nil, p.errf("unknown operator %q", toks[1])
		}
		rest := toks[2:]
		x, rest, err := p.parseExpr(rest)
		if err != nil {
			return nil, nil, err
		}
		e := &ir.Expr{Op: op, X: x}
		if op != ir.OpNeg {
			var y *ir.Expr
			y, rest, err = p.parseExpr(rest)
			if err != nil {
				return nil, nil, err
			}
			e.Y = y
		}
		if len(rest) == 0 || rest[0] != ")" {
			return nil, nil, p.errf("expected \")\"")
		}
		return e, rest[1:], nil
	case strings.HasPrefix(tok, "%"):
		return ir.NewVar(tok[1:]), toks[1:], nil
	default:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, nil, p.errf("bad expression token %q", tok)
		}
		return ir.NewConst(v), toks[1:], nil
	}
}
