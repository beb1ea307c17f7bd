// Package optimizer implements the peephole passes wasm-opt's core library
// support relies on: per-body instruction rewriting, local-entry compaction,
// and function-type deduplication with index rewriting. Optimize mutates a
// decoded *wasm.Module in place.
package optimizer

import "github.com/vela-wasm/vela/internal/wasm"

// Optimize runs every pass over m: function-type dedup first (so later
// passes see the final type indices), then per-function local compaction
// and peephole rewriting.
func Optimize(m *wasm.Module) {
	dedupFunctionTypes(m)
	codes := section(m, wasm.SectionIDCode)
	if codes == nil {
		return
	}
	for _, code := range codes.Codes {
		code.LocalTypes = compactLocals(code.LocalTypes)
		code.Body = runRules(code.Body)
	}
}

func section(m *wasm.Module, id wasm.SectionID) *wasm.Section {
	for _, s := range m.Sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// compactLocals merges adjacent LocalEntry runs of the same type and drops
// zero-count entries, matching the binary format's own compression scheme.
func compactLocals(entries []wasm.LocalEntry) []wasm.LocalEntry {
	out := make([]wasm.LocalEntry, 0, len(entries))
	for _, e := range entries {
		if e.Count == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Type == e.Type {
			out[n-1].Count += e.Count
			continue
		}
		out = append(out, e)
	}
	return out
}

// dedupFunctionTypes computes a distinct list of the module's function
// types by structural equality and rewrites every type-index reference in
// the import and function sections to point at the deduplicated list.
func dedupFunctionTypes(m *wasm.Module) {
	typeSec := section(m, wasm.SectionIDType)
	if typeSec == nil || len(typeSec.Types) == 0 {
		return
	}

	seen := make(map[string]uint32, len(typeSec.Types))
	remap := make([]uint32, len(typeSec.Types))
	deduped := make([]*wasm.FunctionType, 0, len(typeSec.Types))
	for i, ft := range typeSec.Types {
		key := ft.String()
		if idx, ok := seen[key]; ok {
			remap[i] = idx
			continue
		}
		idx := uint32(len(deduped))
		deduped = append(deduped, ft)
		seen[key] = idx
		remap[i] = idx
	}
	typeSec.Types = deduped

	if importSec := section(m, wasm.SectionIDImport); importSec != nil {
		for _, imp := range importSec.Imports {
			if imp.Kind == wasm.ExternalKindFunction {
				imp.DescFunc = remap[imp.DescFunc]
			}
		}
	}
	if funcSec := section(m, wasm.SectionIDFunction); funcSec != nil {
		for i, idx := range funcSec.FunctionTypeIndices {
			funcSec.FunctionTypeIndices[i] = remap[idx]
		}
	}
}
