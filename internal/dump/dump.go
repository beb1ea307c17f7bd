// Package dump renders a decoded wasm.Module as human-readable text,
// backing the out-of-scope wasm-dump CLI.
package dump

import (
	"fmt"
	"io"
	"strings"

	"github.com/vela-wasm/vela/internal/wasm"
)

// String renders m the same way Fprint does, returning the result directly.
func String(m *wasm.Module) string {
	var b strings.Builder
	_ = Fprint(&b, m) // strings.Builder's Write never errors
	return b.String()
}

// Fprint writes a textual rendering of m to w: one S-expression-flavored
// line per declaration, instruction bodies indented under their owning
// function. The output is diagnostic, not a round-trippable .wat file.
func Fprint(w io.Writer, m *wasm.Module) error {
	d := &dumper{w: w}
	d.module(m)
	return d.err
}

type dumper struct {
	w   io.Writer
	err error
}

func (d *dumper) printf(format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *dumper) module(m *wasm.Module) {
	d.printf("(module ;; version %d\n", m.Version)

	for i, ft := range m.TypeSection() {
		d.printf("  (type (;%d;) %s)\n", i, ft.String())
	}
	for _, imp := range m.ImportSection() {
		d.importDecl(imp)
	}

	codes := m.CodeSection()
	funcTypes := m.FunctionSection()
	imported := m.ImportedFunctionCount()
	types := m.TypeSection()
	for i, code := range codes {
		funcIndex := imported + uint32(i)
		var ft *wasm.FunctionType
		if i < len(funcTypes) && int(funcTypes[i]) < len(types) {
			ft = types[funcTypes[i]]
		}
		d.function(funcIndex, ft, code)
	}

	for i, tbl := range m.TableSection() {
		d.printf("  (table (;%d;) %s anyfunc)\n", i, limitsString(tbl.Limits))
	}
	for i, mem := range m.MemorySection() {
		d.printf("  (memory (;%d;) %s)\n", i, limitsString(mem.Limits))
	}
	for i, g := range m.GlobalSection() {
		mut := ""
		if g.Mutable {
			mut = " mutable"
		}
		d.printf("  (global (;%d;) %s%s (%s))\n", i, wasm.ValueTypeName(g.Type), mut, constExprString(&g.Init))
	}
	for _, exp := range m.ExportSection() {
		d.printf("  (export %q (%s %d))\n", exp.Name, wasm.ExternalKindName(exp.Kind), exp.Index)
	}
	if idx, ok := m.StartSection(); ok {
		d.printf("  (start %d)\n", idx)
	}
	for i, el := range m.ElementSection() {
		d.printf("  (elem (;%d;) (offset %s) %s)\n", i, constExprString(&el.Offset), indices(el.Init))
	}
	for i, data := range m.DataSection() {
		d.printf("  (data (;%d;) (offset %s) %q)\n", i, constExprString(&data.Offset), data.Init)
	}
	for _, cs := range m.CustomSections() {
		d.printf("  (custom %q (; %d bytes ;))\n", cs.Name, len(cs.Raw))
	}

	d.printf(")\n")
}

func (d *dumper) importDecl(imp *wasm.Import) {
	switch imp.Kind {
	case wasm.ExternalKindFunction:
		d.printf("  (import %q %q (func (type %d)))\n", imp.Module, imp.Name, imp.DescFunc)
	case wasm.ExternalKindTable:
		d.printf("  (import %q %q (table %s anyfunc))\n", imp.Module, imp.Name, limitsString(imp.DescTable.Limits))
	case wasm.ExternalKindMemory:
		d.printf("  (import %q %q (memory %s))\n", imp.Module, imp.Name, limitsString(imp.DescMem.Limits))
	case wasm.ExternalKindGlobal:
		mut := ""
		if imp.DescGlobal.Mutable {
			mut = " mutable"
		}
		d.printf("  (import %q %q (global %s%s))\n", imp.Module, imp.Name, wasm.ValueTypeName(imp.DescGlobal.Type), mut)
	}
}

func (d *dumper) function(index uint32, ft *wasm.FunctionType, code *wasm.Code) {
	sig := ""
	if ft != nil {
		sig = " " + ft.String()
	}
	d.printf("  (func (;%d;)%s\n", index, sig)
	for _, e := range code.LocalTypes {
		d.printf("    (local (;%d;) %s)\n", e.Count, wasm.ValueTypeName(e.Type))
	}
	d.instructions(code.Body, 2)
	d.printf("  )\n")
}

// instructions renders a flat or nested instruction list at the given
// indentation depth (in units of two spaces), recursing into block/loop/if
// bodies and reprinting the terminating `end` (and `else`, for `if`) that
// Instruction's tree shape otherwise leaves implicit.
func (d *dumper) instructions(body []wasm.Instruction, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, inst := range body {
		if !wasm.IsBlockStructured(inst.Opcode) {
			d.printf("%s%s\n", indent, inst.String())
			continue
		}
		d.printf("%s%s\n", indent, blockHeader(inst))
		d.instructions(inst.Then, depth+1)
		if inst.Opcode == wasm.OpcodeIf && inst.Else != nil {
			d.printf("%selse\n", indent)
			d.instructions(inst.Else, depth+1)
		}
		d.printf("%send\n", indent)
	}
}

func blockHeader(inst wasm.Instruction) string {
	name := wasm.MnemonicFor(inst.Opcode)
	if !inst.HasBlockType {
		return name
	}
	return fmt.Sprintf("%s (result %s)", name, wasm.ValueTypeName(wasm.ValueType(inst.BlockType)))
}

func limitsString(l wasm.ResizableLimits) string {
	if l.HasMaximum() {
		return fmt.Sprintf("%d %d", l.Initial, *l.Maximum)
	}
	return fmt.Sprintf("%d", l.Initial)
}

func constExprString(c *wasm.ConstantExpression) string {
	switch c.Opcode {
	case wasm.OpcodeI32Const:
		return fmt.Sprintf("i32.const %d", c.I32)
	case wasm.OpcodeI64Const:
		return fmt.Sprintf("i64.const %d", c.I64)
	case wasm.OpcodeF32Const:
		return fmt.Sprintf("f32.const %v", c.F32)
	case wasm.OpcodeF64Const:
		return fmt.Sprintf("f64.const %v", c.F64)
	case wasm.OpcodeGlobalGet:
		return fmt.Sprintf("global.get %d", c.GlobalIndex)
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(c.Opcode))
	}
}

func indices(idx []uint32) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " ")
}
