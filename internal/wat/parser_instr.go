package wat

import (
	"strings"

	"github.com/vela-wasm/vela/internal/wasm"
)

// localEnv resolves the symbolic names visible inside one function body:
// its parameters and locals (one combined index space), and the stack of
// enclosing structured control labels (innermost last), addressed either by
// name or by relative nesting depth.
type localEnv struct {
	a          *assembler
	localNames map[string]uint32
	labelNames []string // outermost first, innermost last; "" if unnamed
}

func (e *localEnv) pushLabel(name string) {
	e.labelNames = append(e.labelNames, name)
}

func (e *localEnv) popLabel() {
	e.labelNames = e.labelNames[:len(e.labelNames)-1]
}

func (e *localEnv) resolveLabel(n *node) (uint32, error) {
	if n.Atom != nil && n.Atom.Type == tokenID {
		for depth := 0; depth < len(e.labelNames); depth++ {
			if e.labelNames[len(e.labelNames)-1-depth] == n.text() {
				return uint32(depth), nil
			}
		}
		return 0, n.errorf("undefined label %q", n.text())
	}
	idx, err := decodeUint32([]byte(n.text()))
	if err != nil {
		return 0, n.errorf("invalid label index %q", n.text())
	}
	return idx, nil
}

func (e *localEnv) resolveLocal(n *node) (uint32, error) {
	if n.Atom != nil && n.Atom.Type == tokenID {
		idx, ok := e.localNames[n.text()]
		if !ok {
			return 0, n.errorf("undefined local %q", n.text())
		}
		return idx, nil
	}
	return decodeUint32([]byte(n.text()))
}

func (a *assembler) buildFuncBody(fd *funcDecl) (*wasm.Code, error) {
	items := fd.node.List[1:]
	i := skipNameAndImport(items)
	_, n := inlineExports(items, i)
	i += n

	tu, err := a.scanTypeUse(items[i:], 0)
	if err != nil {
		return nil, err
	}
	i += tu.Consumed

	env := &localEnv{a: a, localNames: map[string]uint32{}}
	for idx, name := range tu.ParamNames {
		if name != "" {
			env.localNames[name] = uint32(idx)
		}
	}
	nextLocal := uint32(len(tu.ParamNames))

	var locals []wasm.LocalEntry
	for i < len(items) && items[i].keyword() == "local" {
		li := items[i]
		decls := li.List[1:]
		if len(decls) >= 1 && decls[0].isAtomType(tokenID) {
			if len(decls) != 2 {
				return nil, li.errorf("named local must declare exactly one type")
			}
			vt, err := resolveValueType(decls[1].text())
			if err != nil {
				return nil, err
			}
			env.localNames[decls[0].text()] = nextLocal
			nextLocal++
			locals = append(locals, wasm.LocalEntry{Count: 1, Type: vt})
		} else {
			for _, d := range decls {
				vt, err := resolveValueType(d.text())
				if err != nil {
					return nil, err
				}
				nextLocal++
				locals = append(locals, wasm.LocalEntry{Count: 1, Type: vt})
			}
		}
		i++
	}

	sp := &seqParser{nodes: items[i:], env: env}
	body, _, err := sp.parseSeq()
	if err != nil {
		return nil, err
	}
	return &wasm.Code{LocalTypes: locals, Body: body}, nil
}

// seqParser walks a flat list of sibling nodes -- which may freely mix bare
// keyword/immediate atoms (flat-form instructions) and parenthesized lists
// (folded-form instructions) -- producing the equivalent stack-machine
// instruction sequence.
type seqParser struct {
	nodes []*node
	pos   int
	env   *localEnv
}

func (p *seqParser) peek() *node {
	if p.pos >= len(p.nodes) {
		return nil
	}
	return p.nodes[p.pos]
}

func (p *seqParser) next() *node {
	n := p.nodes[p.pos]
	p.pos++
	return n
}

// parseSeq consumes instructions until it runs out of nodes or hits a bare
// "end" or "else" keyword atom (flat-form block terminators), returning
// which one stopped it ("" if it ran out of nodes instead).
func (p *seqParser) parseSeq() ([]wasm.Instruction, string, error) {
	var out []wasm.Instruction
	for {
		n := p.peek()
		if n == nil {
			return out, "", nil
		}
		if n.Atom != nil && n.Atom.Type == tokenKeyword && (n.text() == "end" || n.text() == "else") {
			p.next()
			return out, n.text(), nil
		}
		insts, err := p.parseOne(n)
		if err != nil {
			return nil, "", err
		}
		out = append(out, insts...)
	}
}

// parseOne parses a single instruction (which, for folded-form control
// instructions, may expand into several once its nested bodies are
// flattened) starting at n, advancing the cursor past everything it
// consumes.
func (p *seqParser) parseOne(n *node) ([]wasm.Instruction, error) {
	if n.IsList {
		p.next()
		return p.parseFolded(n)
	}
	p.next()
	return p.parseFlat(n)
}

// parseFlat parses a single bare keyword atom and whatever immediates
// follow it directly in the node stream (also flat atoms), per the
// instruction's arity.
func (p *seqParser) parseFlat(kw *node) ([]wasm.Instruction, error) {
	name := kw.text()

	switch name {
	case "block", "loop":
		return p.parseFlatBlockLike(kw, name)
	case "if":
		return p.parseFlatIf(kw)
	}

	op, ok := wasm.OpcodeByMnemonic(name)
	if !ok {
		return nil, kw.errorf("unknown instruction %q", name)
	}
	inst, err := p.parseImmediates(kw, op)
	if err != nil {
		return nil, err
	}
	return []wasm.Instruction{inst}, nil
}

func (p *seqParser) parseOptionalLabelName() string {
	if n := p.peek(); n != nil && n.isAtomType(tokenID) {
		p.next()
		return n.text()
	}
	return ""
}

func (p *seqParser) parseOptionalBlockType() (wasm.LanguageType, bool, error) {
	n := p.peek()
	if n == nil || !n.IsList || n.keyword() != "result" {
		return 0, false, nil
	}
	p.next()
	items := n.List[1:]
	if len(items) != 1 {
		return 0, false, n.errorf("block result type must name exactly one value type")
	}
	vt, err := resolveValueType(items[0].text())
	if err != nil {
		return 0, false, err
	}
	return wasm.LanguageType(vt), true, nil
}

func (p *seqParser) parseFlatBlockLike(kw *node, name string) ([]wasm.Instruction, error) {
	label := p.parseOptionalLabelName()
	blockType, has, err := p.parseOptionalBlockType()
	if err != nil {
		return nil, err
	}
	p.env.pushLabel(label)
	then, term, err := p.parseSeq()
	p.env.popLabel()
	if err != nil {
		return nil, err
	}
	if term == "else" {
		return nil, kw.errorf("%q block cannot have an else branch", name)
	}
	op := wasm.OpcodeBlock
	if name == "loop" {
		op = wasm.OpcodeLoop
	}
	return []wasm.Instruction{{Opcode: op, HasBlockType: has, BlockType: blockType, Then: then}}, nil
}

func (p *seqParser) parseFlatIf(kw *node) ([]wasm.Instruction, error) {
	label := p.parseOptionalLabelName()
	blockType, has, err := p.parseOptionalBlockType()
	if err != nil {
		return nil, err
	}
	p.env.pushLabel(label)
	then, term, err := p.parseSeq()
	if err != nil {
		p.env.popLabel()
		return nil, err
	}
	var elseBody []wasm.Instruction
	if term == "else" {
		elseBody, _, err = p.parseSeq()
		if err != nil {
			p.env.popLabel()
			return nil, err
		}
	}
	p.env.popLabel()
	return []wasm.Instruction{{
		Opcode: wasm.OpcodeIf, HasBlockType: has, BlockType: blockType,
		Then: then, Else: elseBody,
	}}, nil
}

// parseImmediates consumes the atoms following a plain (non-control)
// opcode's mnemonic, per its immediate arity.
func (p *seqParser) parseImmediates(kw *node, op wasm.Opcode) (wasm.Instruction, error) {
	inst := wasm.Instruction{Opcode: op}

	switch op {
	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		idx, err := p.env.resolveLocal(p.next())
		if err != nil {
			return inst, err
		}
		inst.Index = idx

	case wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		idx, err := p.env.a.resolveIndex(p.next(), p.env.a.globalNames, uint32(len(p.env.a.globals)))
		if err != nil {
			return inst, err
		}
		inst.Index = idx

	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		idx, err := p.env.resolveLabel(p.next())
		if err != nil {
			return inst, err
		}
		inst.LabelIndex = idx

	case wasm.OpcodeBrTable:
		var labels []uint32
		for {
			n := p.peek()
			if n == nil || n.Atom == nil || (n.Atom.Type != tokenUN && n.Atom.Type != tokenID) {
				break
			}
			idx, err := p.env.resolveLabel(p.next())
			if err != nil {
				return inst, err
			}
			labels = append(labels, idx)
		}
		if len(labels) == 0 {
			return inst, kw.errorf("br_table requires at least a default label")
		}
		inst.DefaultLabel = labels[len(labels)-1]
		inst.LabelIndices = labels[:len(labels)-1]

	case wasm.OpcodeCall:
		idx, err := p.env.a.resolveIndex(p.next(), p.env.a.funcNames, uint32(len(p.env.a.funcs)))
		if err != nil {
			return inst, err
		}
		inst.FuncIndex = idx

	case wasm.OpcodeCallIndirect:
		n := p.peek()
		if n != nil && n.IsList && n.keyword() == "type" {
			p.next()
			idx, err := p.env.a.resolveTypeIndexRef(n)
			if err != nil {
				return inst, err
			}
			inst.TypeIndex = idx
		}

	case wasm.OpcodeI32Const:
		v, err := decodeInt32([]byte(p.next().text()))
		if err != nil {
			return inst, err
		}
		inst.I32 = v
	case wasm.OpcodeI64Const:
		v, err := decodeInt64([]byte(p.next().text()))
		if err != nil {
			return inst, err
		}
		inst.I64 = v
	case wasm.OpcodeF32Const:
		v, err := decodeFloat32([]byte(p.next().text()))
		if err != nil {
			return inst, err
		}
		inst.F32 = v
	case wasm.OpcodeF64Const:
		v, err := decodeFloat64([]byte(p.next().text()))
		if err != nil {
			return inst, err
		}
		inst.F64 = v

	default:
		if wasm.IsMemoryAccessOpcode(op) {
			mem, err := p.parseMemArg()
			if err != nil {
				return inst, err
			}
			inst.Mem = mem
		}
	}
	return inst, nil
}

// parseMemArg consumes zero or more offset=N and align=N keyword-atom
// clauses following a load/store mnemonic.
func (p *seqParser) parseMemArg() (wasm.MemArg, error) {
	var mem wasm.MemArg
	for {
		n := p.peek()
		if n == nil || n.Atom == nil || n.Atom.Type != tokenKeyword {
			break
		}
		text := n.text()
		switch {
		case strings.HasPrefix(text, "offset="):
			v, err := decodeUint32([]byte(strings.TrimPrefix(text, "offset=")))
			if err != nil {
				return mem, n.errorf("invalid offset: %s", err)
			}
			mem.Offset = v
			p.next()
		case strings.HasPrefix(text, "align="):
			v, err := decodeUint32([]byte(strings.TrimPrefix(text, "align=")))
			if err != nil {
				return mem, n.errorf("invalid align: %s", err)
			}
			mem.Align = v
			p.next()
		default:
			return mem, nil
		}
	}
	return mem, nil
}

// parseFolded handles a parenthesized instruction node: recursively
// flattens its operand sub-expressions (each evaluated before the operator,
// per stack order) and appends the operator itself, except for the
// block/loop/if forms, which are special-cased.
func (p *seqParser) parseFolded(n *node) ([]wasm.Instruction, error) {
	kw := n.keyword()
	switch kw {
	case "block", "loop":
		return p.parseFoldedBlockLike(n, kw)
	case "if":
		return p.parseFoldedIf(n)
	}

	op, ok := wasm.OpcodeByMnemonic(kw)
	if !ok {
		return nil, n.errorf("unknown instruction %q", kw)
	}

	children := n.List[1:]

	// Split off any non-expression leading immediates (local/global index,
	// branch label, numeric constant, memarg keyword clauses, or a (type
	// ...) reference for call_indirect) from the trailing operand
	// sub-expressions, by reusing a nested flat-style cursor over the
	// folded node's own children.
	sub := &seqParser{nodes: children, env: p.env}
	inst, err := sub.parseImmediates(n, op)
	if err != nil {
		return nil, err
	}

	var out []wasm.Instruction
	for sub.pos < len(children) {
		operand := sub.next()
		if !operand.IsList {
			return nil, operand.errorf("expected a parenthesized operand expression")
		}
		flattened, err := p.parseFolded(operand)
		if err != nil {
			return nil, err
		}
		out = append(out, flattened...)
	}
	out = append(out, inst)
	return out, nil
}

func (p *seqParser) parseFoldedBlockLike(n *node, kw string) ([]wasm.Instruction, error) {
	inner := &seqParser{nodes: n.List[1:], env: p.env}
	label := inner.parseOptionalLabelName()
	blockType, has, err := inner.parseOptionalBlockType()
	if err != nil {
		return nil, err
	}
	p.env.pushLabel(label)
	then, _, err := inner.parseSeq()
	p.env.popLabel()
	if err != nil {
		return nil, err
	}
	op := wasm.OpcodeBlock
	if kw == "loop" {
		op = wasm.OpcodeLoop
	}
	return []wasm.Instruction{{Opcode: op, HasBlockType: has, BlockType: blockType, Then: then}}, nil
}

func (p *seqParser) parseFoldedIf(n *node) ([]wasm.Instruction, error) {
	inner := &seqParser{nodes: n.List[1:], env: p.env}
	label := inner.parseOptionalLabelName()
	blockType, has, err := inner.parseOptionalBlockType()
	if err != nil {
		return nil, err
	}

	var cond []wasm.Instruction
	for {
		c := inner.peek()
		if c == nil {
			return nil, n.errorf("if requires a (then ...) clause")
		}
		if c.IsList && c.keyword() == "then" {
			break
		}
		flattened, err := p.parseFolded(inner.next())
		if err != nil {
			return nil, err
		}
		cond = append(cond, flattened...)
	}

	thenNode := inner.next()
	p.env.pushLabel(label)
	thenSub := &seqParser{nodes: thenNode.List[1:], env: p.env}
	then, _, err := thenSub.parseSeq()
	if err != nil {
		p.env.popLabel()
		return nil, err
	}

	var elseBody []wasm.Instruction
	if e := inner.peek(); e != nil && e.IsList && e.keyword() == "else" {
		inner.next()
		elseSub := &seqParser{nodes: e.List[1:], env: p.env}
		elseBody, _, err = elseSub.parseSeq()
		if err != nil {
			p.env.popLabel()
			return nil, err
		}
	}
	p.env.popLabel()

	out := append([]wasm.Instruction{}, cond...)
	out = append(out, wasm.Instruction{
		Opcode: wasm.OpcodeIf, HasBlockType: has, BlockType: blockType,
		Then: then, Else: elseBody,
	})
	return out, nil
}
