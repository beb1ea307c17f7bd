package wasm

import (
	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/internal/ieee754"
)

// Importer supplies named functions, memories, tables, and globals during
// instantiation. It is queried with (module, field) per import entry and
// returns the already-built instance-level object, or an error if the
// import cannot be satisfied. Implementations decide for themselves what
// "a module" means: a previously instantiated ModuleInstance, a built-in
// environment such as spectest, or some combination.
//
// See https://webassembly.github.io/spec/core/exec/modules.html#instantiation
type Importer interface {
	ImportFunction(module, name string, sig *FunctionType) (*FunctionInstance, error)
	ImportGlobal(module, name string, g *Global) (*GlobalInstance, error)
	ImportMemory(module, name string, mem *Memory) (*MemoryInstance, error)
	ImportTable(module, name string, tbl *Table) (*TableInstance, error)
}

// Instantiate builds a ModuleInstance from m, named instanceName, resolving
// m's imports against importer. It does not invoke a declared start
// function; callers that need that behavior look it up via
// ModuleInstance.Functions and the index returned by Module.StartSection.
//
// Steps, matching the Wasm spec's instantiation algorithm: resolve imports,
// allocate memories/tables/globals declared by m, evaluate global
// initializers, copy data segments into memory, copy element segments into
// tables, then build the export table.
func Instantiate(m *Module, instanceName string, importer Importer) (*ModuleInstance, error) {
	inst := &ModuleInstance{Name: instanceName, Types: m.TypeSection()}

	for _, imp := range m.ImportSection() {
		switch imp.Kind {
		case ExternalKindFunction:
			sig := inst.Types[imp.DescFunc]
			fn, err := importer.ImportFunction(imp.Module, imp.Name, sig)
			if err != nil {
				return nil, errors.Wrapf(err, "import %s.%s", imp.Module, imp.Name)
			}
			inst.Functions = append(inst.Functions, fn)
		case ExternalKindGlobal:
			g, err := importer.ImportGlobal(imp.Module, imp.Name, imp.DescGlobal)
			if err != nil {
				return nil, errors.Wrapf(err, "import %s.%s", imp.Module, imp.Name)
			}
			inst.Globals = append(inst.Globals, g)
		case ExternalKindMemory:
			mem, err := importer.ImportMemory(imp.Module, imp.Name, imp.DescMem)
			if err != nil {
				return nil, errors.Wrapf(err, "import %s.%s", imp.Module, imp.Name)
			}
			inst.Memory = mem
		case ExternalKindTable:
			tbl, err := importer.ImportTable(imp.Module, imp.Name, imp.DescTable)
			if err != nil {
				return nil, errors.Wrapf(err, "import %s.%s", imp.Module, imp.Name)
			}
			inst.Tables = append(inst.Tables, tbl)
		}
	}

	for _, t := range m.TableSection() {
		inst.Tables = append(inst.Tables, &TableInstance{
			Limits:    t.Limits,
			Functions: make([]*FunctionInstance, t.Limits.Initial),
		})
	}

	for _, mem := range m.MemorySection() {
		if inst.Memory != nil {
			return nil, errors.New("module declares a memory in addition to an imported one")
		}
		inst.Memory = NewMemoryInstance(mem.Limits)
	}

	constCtx := &instantiationConstContext{inst}
	for _, g := range m.GlobalSection() {
		v, err := g.Init.Evaluate(constCtx)
		if err != nil {
			return nil, errors.Wrap(err, "evaluating global initializer")
		}
		inst.Globals = append(inst.Globals, &GlobalInstance{Type: g, Val: encodeConstValue(v)})
	}

	funcTypeIndices := m.FunctionSection()
	codes := m.CodeSection()
	for i, code := range codes {
		ft := inst.Types[funcTypeIndices[i]]
		inst.Functions = append(inst.Functions, &FunctionInstance{
			Type:       ft,
			Module:     inst,
			LocalTypes: append(append([]ValueType{}, ft.Params...), expandLocalTypes(code.LocalTypes)...),
			Body:       code.Body,
		})
	}

	for _, d := range m.DataSection() {
		if inst.Memory == nil {
			return nil, errors.New("data segment without a memory")
		}
		v, err := d.Offset.Evaluate(constCtx)
		if err != nil {
			return nil, errors.Wrap(err, "evaluating data segment offset")
		}
		offset := uint32(v.(int32))
		if err := inst.Memory.Write(offset, d.Init); err != nil {
			return nil, errors.Wrap(err, "initializing data segment")
		}
	}

	for _, el := range m.ElementSection() {
		if int(el.TableIndex) >= len(inst.Tables) {
			return nil, errors.Errorf("element segment references table %d, module has %d", el.TableIndex, len(inst.Tables))
		}
		tbl := inst.Tables[el.TableIndex]
		v, err := el.Offset.Evaluate(constCtx)
		if err != nil {
			return nil, errors.Wrap(err, "evaluating element segment offset")
		}
		offset := uint32(v.(int32))
		if uint64(offset)+uint64(len(el.Init)) > uint64(len(tbl.Functions)) {
			return nil, errors.Errorf("element segment out of bounds: offset=%d count=%d table size=%d", offset, len(el.Init), len(tbl.Functions))
		}
		for i, fnIdx := range el.Init {
			if int(fnIdx) >= len(inst.Functions) {
				return nil, errors.Errorf("element segment references function %d, module has %d", fnIdx, len(inst.Functions))
			}
			tbl.Functions[offset+uint32(i)] = inst.Functions[fnIdx]
		}
	}

	inst.buildExports(m.ExportSection())
	return inst, nil
}

// expandLocalTypes flattens a Code's run-length-encoded local declarations
// into one ValueType per local, the shape FunctionInstance stores them in.
func expandLocalTypes(entries []LocalEntry) []ValueType {
	var out []ValueType
	for _, e := range entries {
		for i := uint32(0); i < e.Count; i++ {
			out = append(out, e.Type)
		}
	}
	return out
}

// encodeConstValue packs the interface{} a ConstantExpression evaluates to
// (one of int32/int64/float32/float64) into its raw bit pattern, the
// representation GlobalInstance.Val uses.
func encodeConstValue(v interface{}) uint64 {
	switch x := v.(type) {
	case int32:
		return uint64(uint32(x))
	case int64:
		return uint64(x)
	case float32:
		return uint64(ieee754.Float32bits(x))
	case float64:
		return ieee754.Float64bits(x)
	}
	return 0
}

// instantiationConstContext backs ConstantExpression.Evaluate during
// Instantiate: global.get in a global/data/element initializer may only
// reference an already-resolved imported global.
type instantiationConstContext struct {
	inst *ModuleInstance
}

func (c *instantiationConstContext) ImportedGlobalValue(index uint32) (interface{}, error) {
	if int(index) >= len(c.inst.Globals) {
		return nil, errors.Errorf("global.get %d: not yet defined", index)
	}
	g := c.inst.Globals[index]
	switch g.Type.Type {
	case ValueTypeI32:
		return int32(uint32(g.Get())), nil
	case ValueTypeI64:
		return int64(g.Get()), nil
	case ValueTypeF32:
		return ieee754.Float32frombits(uint32(g.Get())), nil
	case ValueTypeF64:
		return ieee754.Float64frombits(g.Get()), nil
	}
	return nil, errors.Errorf("global %d: unknown value type", index)
}
