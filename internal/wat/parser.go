package wat

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vela-wasm/vela/internal/wasm"
)

// Assemble parses src as a single WebAssembly text format module and
// returns its binary-model representation. Diagnostic warnings encountered
// along the way (currently none are non-fatal, but the hook exists for
// producers that want visibility into recoverable quirks) are emitted to
// log, which may be nil.
func Assemble(src string, log *logrus.Logger) (*wasm.Module, error) {
	if log == nil {
		log = logrus.New()
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, errors.Wrap(err, "lexing failed")
	}
	exprs, err := parseSExprs(tokens)
	if err != nil {
		return nil, errors.Wrap(err, "parsing failed")
	}
	if len(exprs) != 1 || exprs[0].keyword() != "module" {
		return nil, errors.New("source must contain exactly one (module ...) form")
	}
	a := newAssembler(log)
	if err := a.assembleModule(exprs[0]); err != nil {
		return nil, err
	}
	return a.build()
}

type funcDecl struct {
	node      *node // the (func ...) or (import ... (func ...)) node, for pass B
	isImport  bool
	importMod string
	importName string
	typeIndex uint32
	hasExplicitType bool
}

type tableDecl struct {
	isImport             bool
	importMod, importName string
	limits               wasm.ResizableLimits
}

type memDecl struct {
	isImport             bool
	importMod, importName string
	limits               wasm.ResizableLimits
}

type globalDecl struct {
	node                  *node
	isImport              bool
	importMod, importName string
	typ                   wasm.ValueType
	mutable               bool
}

// assembler holds the running symbol tables and collected declarations for
// a single module being assembled.
type assembler struct {
	log *logrus.Logger

	types     []*wasm.FunctionType
	typeNames map[string]uint32
	typeKeys  map[string]uint32

	funcs     []*funcDecl
	funcNames map[string]uint32

	tables     []*tableDecl
	tableNames map[string]uint32

	mems     []*memDecl
	memNames map[string]uint32

	globals     []*globalDecl
	globalNames map[string]uint32

	exports []*wasm.Export
	start   *uint32
	elems   []*wasm.ElementSegment
	data    []*wasm.DataSegment
}

func newAssembler(log *logrus.Logger) *assembler {
	return &assembler{
		log:         log,
		typeNames:   map[string]uint32{},
		typeKeys:    map[string]uint32{},
		funcNames:   map[string]uint32{},
		tableNames:  map[string]uint32{},
		memNames:    map[string]uint32{},
		globalNames: map[string]uint32{},
	}
}

func (a *assembler) assembleModule(mod *node) error {
	fields := mod.List[1:]

	// Explicit (type ...) definitions take the first type indices; implicit
	// types interned from inline typeuses are appended after them.
	for _, f := range fields {
		if f.keyword() == "type" {
			if err := a.registerType(f); err != nil {
				return err
			}
		}
	}

	// Pass A: register every other top-level declaration's index and
	// optional name, without yet resolving bodies (which may
	// forward-reference later declarations).
	for _, f := range fields {
		kw := f.keyword()
		switch kw {
		case "func":
			if err := a.registerFunc(f); err != nil {
				return err
			}
		case "table":
			if err := a.registerTable(f); err != nil {
				return err
			}
		case "memory":
			if err := a.registerMemory(f); err != nil {
				return err
			}
		case "global":
			if err := a.registerGlobal(f); err != nil {
				return err
			}
		case "import":
			if err := a.registerImport(f); err != nil {
				return err
			}
		}
	}

	// Pass B: exports, start, elem, data, and function bodies -- anything
	// that needs the fully-populated symbol tables from pass A.
	for _, f := range fields {
		switch f.keyword() {
		case "export":
			if err := a.parseExport(f); err != nil {
				return err
			}
		case "start":
			if err := a.parseStart(f); err != nil {
				return err
			}
		case "elem":
			if err := a.parseElem(f); err != nil {
				return err
			}
		case "data":
			if err := a.parseData(f); err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *assembler) build() (*wasm.Module, error) {
	m := &wasm.Module{Magic: 0x6d736100, Version: 1}

	if len(a.types) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDType, Types: a.types})
	}

	var imports []*wasm.Import
	for _, fd := range a.funcs {
		if fd.isImport {
			imports = append(imports, &wasm.Import{
				Module: fd.importMod, Name: fd.importName,
				Kind: wasm.ExternalKindFunction, DescFunc: fd.typeIndex,
			})
		}
	}
	for _, td := range a.tables {
		if td.isImport {
			lim := td.limits
			imports = append(imports, &wasm.Import{
				Module: td.importMod, Name: td.importName,
				Kind: wasm.ExternalKindTable, DescTable: &wasm.Table{Limits: lim},
			})
		}
	}
	for _, md := range a.mems {
		if md.isImport {
			lim := md.limits
			imports = append(imports, &wasm.Import{
				Module: md.importMod, Name: md.importName,
				Kind: wasm.ExternalKindMemory, DescMem: &wasm.Memory{Limits: lim},
			})
		}
	}
	for _, gd := range a.globals {
		if gd.isImport {
			imports = append(imports, &wasm.Import{
				Module: gd.importMod, Name: gd.importName,
				Kind: wasm.ExternalKindGlobal, DescGlobal: &wasm.Global{Type: gd.typ, Mutable: gd.mutable},
			})
		}
	}
	if len(imports) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDImport, Imports: imports})
	}

	var funcTypeIndices []uint32
	var codes []*wasm.Code
	for _, fd := range a.funcs {
		if fd.isImport {
			continue
		}
		funcTypeIndices = append(funcTypeIndices, fd.typeIndex)
	}
	if len(funcTypeIndices) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDFunction, FunctionTypeIndices: funcTypeIndices})
	}

	var tables []*wasm.Table
	for _, td := range a.tables {
		if !td.isImport {
			lim := td.limits
			tables = append(tables, &wasm.Table{Limits: lim})
		}
	}
	if len(tables) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDTable, Tables: tables})
	}

	var mems []*wasm.Memory
	for _, md := range a.mems {
		if !md.isImport {
			lim := md.limits
			mems = append(mems, &wasm.Memory{Limits: lim})
		}
	}
	if len(mems) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDMemory, Memories: mems})
	}

	var globals []*wasm.Global
	for _, gd := range a.globals {
		if gd.isImport {
			continue
		}
		g, err := a.buildGlobalBody(gd)
		if err != nil {
			a.log.WithError(err).Error("failed to assemble global initializer")
			return nil, err
		}
		globals = append(globals, g)
	}
	if len(globals) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDGlobal, Globals: globals})
	}

	if len(a.exports) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDExport, Exports: a.exports})
	}

	if a.start != nil {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDStart, Start: a.start})
	}

	if len(a.elems) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDElement, Elements: a.elems})
	}

	for _, fd := range a.funcs {
		if fd.isImport {
			continue
		}
		c, err := a.buildFuncBody(fd)
		if err != nil {
			a.log.WithError(err).Error("failed to assemble function body")
			return nil, err
		}
		codes = append(codes, c)
	}
	if len(codes) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDCode, Codes: codes})
	}

	if len(a.data) > 0 {
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDData, Data: a.data})
	}

	return m, nil
}
