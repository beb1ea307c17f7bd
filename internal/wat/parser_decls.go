package wat

import (
	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/internal/wasm"
)

func resolveValueType(name string) (wasm.ValueType, error) {
	switch name {
	case "i32":
		return wasm.ValueTypeI32, nil
	case "i64":
		return wasm.ValueTypeI64, nil
	case "f32":
		return wasm.ValueTypeF32, nil
	case "f64":
		return wasm.ValueTypeF64, nil
	}
	return 0, errors.Errorf("unknown value type %q", name)
}

// typeUseResult is the outcome of scanning a typeuse prefix: an explicit or
// implicit (param/result)*-derived function type, the names bound to each
// parameter slot (empty string for unnamed), and how many leading child
// nodes were consumed.
type typeUseResult struct {
	Type       *wasm.FunctionType
	ParamNames []string
	Consumed   int
}

// scanTypeUse consumes an optional leading (type ...) reference followed by
// any number of (param ...) and (result ...) forms from children[start:].
func (a *assembler) scanTypeUse(children []*node, start int) (*typeUseResult, error) {
	i := start
	var explicitIdx *uint32

	if i < len(children) && children[i].keyword() == "type" {
		idx, err := a.resolveTypeIndexRef(children[i])
		if err != nil {
			return nil, err
		}
		explicitIdx = &idx
		i++
	}

	var params []wasm.ValueType
	var paramNames []string
	for i < len(children) && children[i].keyword() == "param" {
		c := children[i]
		items := c.List[1:]
		if len(items) >= 1 && items[0].isAtomType(tokenID) {
			if len(items) != 2 {
				return nil, c.errorf("named param must declare exactly one type")
			}
			vt, err := resolveValueType(items[1].text())
			if err != nil {
				return nil, err
			}
			params = append(params, vt)
			paramNames = append(paramNames, items[0].text())
		} else {
			for _, it := range items {
				vt, err := resolveValueType(it.text())
				if err != nil {
					return nil, err
				}
				params = append(params, vt)
				paramNames = append(paramNames, "")
			}
		}
		i++
	}

	var results []wasm.ValueType
	for i < len(children) && children[i].keyword() == "result" {
		for _, it := range children[i].List[1:] {
			vt, err := resolveValueType(it.text())
			if err != nil {
				return nil, err
			}
			results = append(results, vt)
		}
		i++
	}

	ft := &wasm.FunctionType{Params: params, Results: results}

	if explicitIdx != nil {
		if int(*explicitIdx) >= len(a.types) {
			return nil, errors.Errorf("type index %d out of range", *explicitIdx)
		}
		// When both an explicit type and inline param/result are given, the
		// inline signature must already match; we trust the explicit type
		// and just use its declared shape for indexing purposes.
		ft = a.types[*explicitIdx]
	}

	return &typeUseResult{Type: ft, ParamNames: paramNames, Consumed: i - start}, nil
}

func (a *assembler) resolveTypeIndexRef(typeNode *node) (uint32, error) {
	items := typeNode.List[1:]
	if len(items) != 1 {
		return 0, typeNode.errorf("(type ...) must contain exactly one index or name")
	}
	return a.resolveIndex(items[0], a.typeNames, uint32(len(a.types)))
}

// resolveIndex resolves an atom that is either a bare unsigned integer
// (a numeric index) or a $-prefixed symbolic name looked up in names.
func (a *assembler) resolveIndex(n *node, names map[string]uint32, count uint32) (uint32, error) {
	if n.Atom == nil {
		return 0, n.errorf("expected an index or name")
	}
	if n.Atom.Type == tokenID {
		idx, ok := names[n.text()]
		if !ok {
			return 0, n.errorf("undefined identifier %q", n.text())
		}
		return idx, nil
	}
	idx, err := decodeUint32([]byte(n.text()))
	if err != nil {
		return 0, n.errorf("invalid index %q: %s", n.text(), err)
	}
	if idx >= count {
		return 0, n.errorf("index %d out of range (have %d)", idx, count)
	}
	return idx, nil
}

// internType returns the index of ft within a.types, adding it (and
// registering its structural key) if this exact signature hasn't been seen
// yet -- the implicit typeuse deduplication rule.
func (a *assembler) internType(ft *wasm.FunctionType) uint32 {
	key := ft.String()
	if idx, ok := a.typeKeys[key]; ok {
		return idx
	}
	idx := uint32(len(a.types))
	a.types = append(a.types, ft)
	a.typeKeys[key] = idx
	return idx
}

func (a *assembler) registerType(t *node) error {
	items := t.List[1:]
	idx := uint32(len(a.types))
	if len(items) > 0 && items[0].isAtomType(tokenID) {
		a.typeNames[items[0].text()] = idx
		items = items[1:]
	}
	if len(items) != 1 || items[0].keyword() != "func" {
		return t.errorf("(type ...) must contain exactly one (func ...)")
	}
	funcNode := items[0]
	tu, err := a.scanTypeUse(funcNode.List[1:], 0)
	if err != nil {
		return err
	}
	a.types = append(a.types, tu.Type)
	a.typeKeys[tu.Type.String()] = idx
	return nil
}

// inlineImport, if present as the first clause after an optional name,
// returns the (module, name) pair and how many nodes it occupied.
func inlineImport(children []*node, start int) (mod, name string, consumed int, ok bool) {
	if start < len(children) && children[start].keyword() == "import" {
		items := children[start].List[1:]
		if len(items) == 2 {
			return items[0].text(), items[1].text(), 1, true
		}
	}
	return "", "", 0, false
}

// inlineExports collects every leading (export "name") clause, which may
// repeat, starting at children[start].
func inlineExports(children []*node, start int) (names []string, consumed int) {
	i := start
	for i < len(children) && children[i].keyword() == "export" {
		items := children[i].List[1:]
		if len(items) == 1 {
			names = append(names, items[0].text())
		}
		i++
	}
	return names, i - start
}

func (a *assembler) registerFunc(f *node) error {
	items := f.List[1:]
	idx := uint32(len(a.funcs))
	if len(items) > 0 && items[0].isAtomType(tokenID) {
		a.funcNames[items[0].text()] = idx
		items = items[1:]
	}

	mod, name, n, isImport := inlineImport(items, 0)
	items = items[n:]
	_, n = inlineExports(items, 0)
	exportNames := n
	items = items[exportNames:]

	tu, err := a.scanTypeUse(items, 0)
	if err != nil {
		return err
	}
	typeIdx := a.internType(tu.Type)

	fd := &funcDecl{node: f, typeIndex: typeIdx, hasExplicitType: true}
	if isImport {
		fd.isImport = true
		fd.importMod, fd.importName = mod, name
	}
	a.funcs = append(a.funcs, fd)

	// Register inline exports immediately -- their target index is this
	// function's index, known right now.
	names, _ := inlineExports(f.List[1:], skipNameAndImport(f.List[1:]))
	for _, exportName := range names {
		a.exports = append(a.exports, &wasm.Export{Name: exportName, Kind: wasm.ExternalKindFunction, Index: idx})
	}
	return nil
}

// skipNameAndImport returns how many leading children of a definition form
// are the optional $name and an inline (import ...) clause, so inline
// exports (which follow both) can be located.
func skipNameAndImport(children []*node) int {
	i := 0
	if i < len(children) && children[i].isAtomType(tokenID) {
		i++
	}
	if i < len(children) && children[i].keyword() == "import" {
		i++
	}
	return i
}

func (a *assembler) registerTable(t *node) error {
	items := t.List[1:]
	idx := uint32(len(a.tables))
	if len(items) > 0 && items[0].isAtomType(tokenID) {
		a.tableNames[items[0].text()] = idx
		items = items[1:]
	}
	mod, name, n, isImport := inlineImport(items, 0)
	items = items[n:]
	exportNames, n := inlineExports(items, 0)
	items = items[n:]

	td := &tableDecl{}
	if isImport {
		td.isImport = true
		td.importMod, td.importName = mod, name
	}
	limits, _, err := parseLimitsAndElemType(items)
	if err != nil {
		return err
	}
	td.limits = limits
	a.tables = append(a.tables, td)

	for _, exportName := range exportNames {
		a.exports = append(a.exports, &wasm.Export{Name: exportName, Kind: wasm.ExternalKindTable, Index: idx})
	}
	return nil
}

func parseLimitsAndElemType(items []*node) (wasm.ResizableLimits, string, error) {
	if len(items) < 1 {
		return wasm.ResizableLimits{}, "", errors.New("table requires limits and an element type")
	}
	// items: uN [uN] keyword(elemtype)
	nums := items[:len(items)-1]
	elemType := items[len(items)-1].text()
	if len(nums) < 1 || len(nums) > 2 {
		return wasm.ResizableLimits{}, "", errors.New("table limits must be `initial` or `initial maximum`")
	}
	initial, err := decodeUint32([]byte(nums[0].text()))
	if err != nil {
		return wasm.ResizableLimits{}, "", err
	}
	limits := wasm.ResizableLimits{Initial: initial}
	if len(nums) == 2 {
		max, err := decodeUint32([]byte(nums[1].text()))
		if err != nil {
			return wasm.ResizableLimits{}, "", err
		}
		limits.Maximum = &max
	}
	return limits, elemType, nil
}

func (a *assembler) registerMemory(m *node) error {
	items := m.List[1:]
	idx := uint32(len(a.mems))
	if len(items) > 0 && items[0].isAtomType(tokenID) {
		a.memNames[items[0].text()] = idx
		items = items[1:]
	}
	mod, name, n, isImport := inlineImport(items, 0)
	items = items[n:]
	exportNames, n := inlineExports(items, 0)
	items = items[n:]

	md := &memDecl{}
	if isImport {
		md.isImport = true
		md.importMod, md.importName = mod, name
	}
	limits, err := parseMemoryLimits(items)
	if err != nil {
		return err
	}
	md.limits = limits
	a.mems = append(a.mems, md)

	for _, exportName := range exportNames {
		a.exports = append(a.exports, &wasm.Export{Name: exportName, Kind: wasm.ExternalKindMemory, Index: idx})
	}
	return nil
}

func parseMemoryLimits(items []*node) (wasm.ResizableLimits, error) {
	if len(items) < 1 || len(items) > 2 {
		return wasm.ResizableLimits{}, errors.New("memory limits must be `initial` or `initial maximum`")
	}
	initial, err := decodeUint32([]byte(items[0].text()))
	if err != nil {
		return wasm.ResizableLimits{}, err
	}
	limits := wasm.ResizableLimits{Initial: initial}
	if len(items) == 2 {
		max, err := decodeUint32([]byte(items[1].text()))
		if err != nil {
			return wasm.ResizableLimits{}, err
		}
		limits.Maximum = &max
	}
	return limits, nil
}

func (a *assembler) registerGlobal(g *node) error {
	items := g.List[1:]
	idx := uint32(len(a.globals))
	if len(items) > 0 && items[0].isAtomType(tokenID) {
		a.globalNames[items[0].text()] = idx
		items = items[1:]
	}
	mod, name, n, isImport := inlineImport(items, 0)
	items = items[n:]
	exportNames, n := inlineExports(items, 0)
	items = items[n:]

	typ, mutable, consumed, err := parseGlobalType(items)
	if err != nil {
		return err
	}
	items = items[consumed:]

	gd := &globalDecl{typ: typ, mutable: mutable}
	if isImport {
		gd.isImport = true
		gd.importMod, gd.importName = mod, name
	} else {
		gd.node = g
		_ = items // remaining items are the init expression, parsed in pass B
	}
	a.globals = append(a.globals, gd)

	for _, exportName := range exportNames {
		a.exports = append(a.exports, &wasm.Export{Name: exportName, Kind: wasm.ExternalKindGlobal, Index: idx})
	}
	return nil
}

// parseGlobalType parses the `(mut T)` or bare `T` global type clause.
func parseGlobalType(items []*node) (wasm.ValueType, bool, int, error) {
	if len(items) == 0 {
		return 0, false, 0, errors.New("global requires a type")
	}
	if items[0].keyword() == "mut" {
		inner := items[0].List[1:]
		if len(inner) != 1 {
			return 0, false, 0, errors.New("(mut T) must contain exactly one type")
		}
		vt, err := resolveValueType(inner[0].text())
		return vt, true, 1, err
	}
	vt, err := resolveValueType(items[0].text())
	return vt, false, 1, err
}

func (a *assembler) registerImport(imp *node) error {
	items := imp.List[1:]
	if len(items) != 3 {
		return imp.errorf("(import mod name desc) requires exactly three children")
	}
	mod, name, desc := items[0].text(), items[1].text(), items[2]

	switch desc.keyword() {
	case "func":
		descItems := desc.List[1:]
		idx := uint32(len(a.funcs))
		if len(descItems) > 0 && descItems[0].isAtomType(tokenID) {
			a.funcNames[descItems[0].text()] = idx
			descItems = descItems[1:]
		}
		tu, err := a.scanTypeUse(descItems, 0)
		if err != nil {
			return err
		}
		a.funcs = append(a.funcs, &funcDecl{
			isImport: true, importMod: mod, importName: name,
			typeIndex: a.internType(tu.Type),
		})
	case "table":
		descItems := desc.List[1:]
		idx := uint32(len(a.tables))
		if len(descItems) > 0 && descItems[0].isAtomType(tokenID) {
			a.tableNames[descItems[0].text()] = idx
			descItems = descItems[1:]
		}
		limits, _, err := parseLimitsAndElemType(descItems)
		if err != nil {
			return err
		}
		a.tables = append(a.tables, &tableDecl{isImport: true, importMod: mod, importName: name, limits: limits})
	case "memory":
		descItems := desc.List[1:]
		idx := uint32(len(a.mems))
		if len(descItems) > 0 && descItems[0].isAtomType(tokenID) {
			a.memNames[descItems[0].text()] = idx
			descItems = descItems[1:]
		}
		limits, err := parseMemoryLimits(descItems)
		if err != nil {
			return err
		}
		a.mems = append(a.mems, &memDecl{isImport: true, importMod: mod, importName: name, limits: limits})
	case "global":
		descItems := desc.List[1:]
		idx := uint32(len(a.globals))
		if len(descItems) > 0 && descItems[0].isAtomType(tokenID) {
			a.globalNames[descItems[0].text()] = idx
			descItems = descItems[1:]
		}
		typ, mutable, _, err := parseGlobalType(descItems)
		if err != nil {
			return err
		}
		a.globals = append(a.globals, &globalDecl{isImport: true, importMod: mod, importName: name, typ: typ, mutable: mutable})
	default:
		return desc.errorf("unsupported import descriptor %q", desc.keyword())
	}
	return nil
}

func (a *assembler) parseExport(e *node) error {
	items := e.List[1:]
	if len(items) != 2 {
		return e.errorf("(export name desc) requires exactly two children")
	}
	name := items[0].text()
	desc := items[1]
	descItems := desc.List[1:]
	if len(descItems) != 1 {
		return desc.errorf("export descriptor must contain exactly one index or name")
	}
	switch desc.keyword() {
	case "func":
		idx, err := a.resolveIndex(descItems[0], a.funcNames, uint32(len(a.funcs)))
		if err != nil {
			return err
		}
		a.exports = append(a.exports, &wasm.Export{Name: name, Kind: wasm.ExternalKindFunction, Index: idx})
	case "table":
		idx, err := a.resolveIndex(descItems[0], a.tableNames, uint32(len(a.tables)))
		if err != nil {
			return err
		}
		a.exports = append(a.exports, &wasm.Export{Name: name, Kind: wasm.ExternalKindTable, Index: idx})
	case "memory":
		idx, err := a.resolveIndex(descItems[0], a.memNames, uint32(len(a.mems)))
		if err != nil {
			return err
		}
		a.exports = append(a.exports, &wasm.Export{Name: name, Kind: wasm.ExternalKindMemory, Index: idx})
	case "global":
		idx, err := a.resolveIndex(descItems[0], a.globalNames, uint32(len(a.globals)))
		if err != nil {
			return err
		}
		a.exports = append(a.exports, &wasm.Export{Name: name, Kind: wasm.ExternalKindGlobal, Index: idx})
	default:
		return desc.errorf("unsupported export descriptor %q", desc.keyword())
	}
	return nil
}

func (a *assembler) parseStart(s *node) error {
	items := s.List[1:]
	if len(items) != 1 {
		return s.errorf("(start ...) requires exactly one function index or name")
	}
	idx, err := a.resolveIndex(items[0], a.funcNames, uint32(len(a.funcs)))
	if err != nil {
		return err
	}
	a.start = &idx
	return nil
}

func (a *assembler) parseElem(e *node) error {
	items := e.List[1:]
	tableIdx := uint32(0)
	if len(items) > 0 && (items[0].isAtomType(tokenID) || items[0].isAtomType(tokenUN)) {
		idx, err := a.resolveIndex(items[0], a.tableNames, uint32(len(a.tables)))
		if err != nil {
			return err
		}
		tableIdx = idx
		items = items[1:]
	}
	if len(items) < 1 || items[0].keyword() != "offset" && !items[0].isFoldedConstExpr() {
		return e.errorf("elem requires an (offset ...) or a folded constant expression")
	}
	offset, err := a.parseOffsetClause(items[0])
	if err != nil {
		return err
	}
	items = items[1:]

	var init []uint32
	for _, it := range items {
		idx, err := a.resolveIndex(it, a.funcNames, uint32(len(a.funcs)))
		if err != nil {
			return err
		}
		init = append(init, idx)
	}
	a.elems = append(a.elems, &wasm.ElementSegment{TableIndex: tableIdx, Offset: offset, Init: init})
	return nil
}

// isFoldedConstExpr reports whether n looks like a bare folded constant
// expression, e.g. (i32.const 0), used as an elem/data offset shorthand for
// (offset (i32.const 0)).
func (n *node) isFoldedConstExpr() bool {
	kw := n.keyword()
	return kw == "i32.const" || kw == "i64.const" || kw == "f32.const" || kw == "f64.const" || kw == "global.get"
}

func (a *assembler) parseOffsetClause(n *node) (wasm.ConstantExpression, error) {
	var exprNode *node
	if n.keyword() == "offset" {
		if len(n.List) != 2 {
			return wasm.ConstantExpression{}, n.errorf("(offset ...) must contain exactly one expression")
		}
		exprNode = n.List[1]
	} else {
		exprNode = n
	}
	return a.parseConstExprNode(exprNode)
}

func (a *assembler) parseConstExprNode(n *node) (wasm.ConstantExpression, error) {
	op, ok := wasm.OpcodeByMnemonic(n.keyword())
	if !ok {
		return wasm.ConstantExpression{}, n.errorf("invalid constant expression %q", n.keyword())
	}
	items := n.List[1:]
	ce := wasm.ConstantExpression{Opcode: op}
	switch op {
	case wasm.OpcodeI32Const:
		v, err := decodeInt32([]byte(items[0].text()))
		if err != nil {
			return ce, err
		}
		ce.I32 = v
	case wasm.OpcodeI64Const:
		v, err := decodeInt64([]byte(items[0].text()))
		if err != nil {
			return ce, err
		}
		ce.I64 = v
	case wasm.OpcodeF32Const:
		v, err := decodeFloat32([]byte(items[0].text()))
		if err != nil {
			return ce, err
		}
		ce.F32 = v
	case wasm.OpcodeF64Const:
		v, err := decodeFloat64([]byte(items[0].text()))
		if err != nil {
			return ce, err
		}
		ce.F64 = v
	case wasm.OpcodeGlobalGet:
		idx, err := a.resolveIndex(items[0], a.globalNames, uint32(len(a.globals)))
		if err != nil {
			return ce, err
		}
		ce.GlobalIndex = idx
	}
	return ce, nil
}

func (a *assembler) parseData(d *node) error {
	items := d.List[1:]
	memIdx := uint32(0)
	if len(items) > 0 && (items[0].isAtomType(tokenID) || items[0].isAtomType(tokenUN)) {
		idx, err := a.resolveIndex(items[0], a.memNames, uint32(len(a.mems)))
		if err != nil {
			return err
		}
		memIdx = idx
		items = items[1:]
	}
	if len(items) < 1 {
		return d.errorf("data requires an offset expression")
	}
	offset, err := a.parseOffsetClause(items[0])
	if err != nil {
		return err
	}
	items = items[1:]

	var init []byte
	for _, it := range items {
		if !it.isAtomType(tokenString) {
			return it.errorf("data segment contents must be string literals")
		}
		init = append(init, []byte(it.text())...)
	}
	a.data = append(a.data, &wasm.DataSegment{MemoryIndex: memIdx, Offset: offset, Init: init})
	return nil
}

func (a *assembler) buildGlobalBody(gd *globalDecl) (*wasm.Global, error) {
	items := gd.node.List[1:]
	// Skip $name, inline import (none, since this isn't an import), inline
	// exports, and the type clause, leaving the initializer expression.
	i := skipNameAndImport(items)
	_, n := inlineExports(items, i)
	i += n
	_, _, consumed, err := parseGlobalType(items[i:])
	if err != nil {
		return nil, err
	}
	i += consumed
	if i >= len(items) {
		return nil, gd.node.errorf("global is missing its initializer expression")
	}
	init, err := a.parseConstExprNode(items[i])
	if err != nil {
		return nil, err
	}
	return &wasm.Global{Type: gd.typ, Mutable: gd.mutable, Init: init}, nil
}
