package wasm

// SectionID identifies a top-level section of a binary module.
//
// See https://webassembly.github.io/spec/core/binary/modules.html#sections
type SectionID byte

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
)

// SectionIDName returns the text name used in the custom-section-like
// rendering of a section header, e.g. "type" or "code".
func SectionIDName(id SectionID) string {
	switch id {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return "unknown"
}

// Section is one entry of a module's top-level section list, tagged by ID.
// Only the field matching ID is populated (Name in addition, for custom
// sections). ExtraPayload holds any trailing bytes within the section's
// declared payload_length that the decoder did not need to interpret,
// preserved so that a decode/encode round trip reproduces the original
// bytes exactly.
type Section struct {
	ID SectionID

	// Name is the custom section's name; meaningful only when ID is
	// SectionIDCustom.
	Name string

	// Raw is the custom section's payload following the name, or, for a
	// section ID the decoder does not recognize, that section's whole
	// payload. It is always populated for such sections and re-encoded
	// verbatim, so a decode/encode round trip never depends on Names below.
	Raw []byte

	// Names is the parsed form of Raw when Name is "name", or nil if Raw
	// isn't a recognized name section layout. Decoding never fails because
	// Names didn't parse; it is a best-effort convenience on top of Raw.
	Names *NameSection

	Types               []*FunctionType
	Imports             []*Import
	FunctionTypeIndices []uint32
	Tables              []*Table
	Memories            []*Memory
	Globals             []*Global
	Exports             []*Export
	Start               *uint32
	Elements            []*ElementSegment
	Codes               []*Code
	Data                []*DataSegment

	// ExtraPayload holds bytes within the section's declared length that
	// followed its recognized content (e.g. padding some producers emit).
	// Re-encoding a section replays it verbatim after the recognized
	// content.
	ExtraPayload []byte
}

// Module is a decoded WebAssembly binary module: the four-byte magic and
// version header followed by an ordered list of sections. Sections are
// kept in file order, including repeated custom sections and sections that
// may appear out of their canonical relative order in malformed-but-still
// section-framed inputs.
type Module struct {
	Magic   uint32
	Version uint32

	Sections []*Section
}

// section returns the first section with the given ID, or nil. Every
// non-custom section ID appears at most once in a valid module, so "first"
// is unambiguous for them; custom sections should be looked up via
// CustomSections instead.
func (m *Module) section(id SectionID) *Section {
	for _, s := range m.Sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// CustomSections returns every custom section in file order.
func (m *Module) CustomSections() []*Section {
	var out []*Section
	for _, s := range m.Sections {
		if s.ID == SectionIDCustom {
			out = append(out, s)
		}
	}
	return out
}

// TypeSection returns the module's declared function types, or nil if the
// module has no type section.
func (m *Module) TypeSection() []*FunctionType {
	if s := m.section(SectionIDType); s != nil {
		return s.Types
	}
	return nil
}

// ImportSection returns the module's imports, or nil.
func (m *Module) ImportSection() []*Import {
	if s := m.section(SectionIDImport); s != nil {
		return s.Imports
	}
	return nil
}

// FunctionSection returns, for each module-defined (non-imported) function,
// the index of its signature in the type section.
func (m *Module) FunctionSection() []uint32 {
	if s := m.section(SectionIDFunction); s != nil {
		return s.FunctionTypeIndices
	}
	return nil
}

// TableSection returns the module's table declarations, or nil.
func (m *Module) TableSection() []*Table {
	if s := m.section(SectionIDTable); s != nil {
		return s.Tables
	}
	return nil
}

// MemorySection returns the module's memory declarations, or nil.
func (m *Module) MemorySection() []*Memory {
	if s := m.section(SectionIDMemory); s != nil {
		return s.Memories
	}
	return nil
}

// GlobalSection returns the module's global declarations, or nil.
func (m *Module) GlobalSection() []*Global {
	if s := m.section(SectionIDGlobal); s != nil {
		return s.Globals
	}
	return nil
}

// ExportSection returns the module's exports, or nil.
func (m *Module) ExportSection() []*Export {
	if s := m.section(SectionIDExport); s != nil {
		return s.Exports
	}
	return nil
}

// StartSection returns the index of the module's start function, and
// whether one is declared.
func (m *Module) StartSection() (uint32, bool) {
	if s := m.section(SectionIDStart); s != nil && s.Start != nil {
		return *s.Start, true
	}
	return 0, false
}

// ElementSection returns the module's element segments, or nil.
func (m *Module) ElementSection() []*ElementSegment {
	if s := m.section(SectionIDElement); s != nil {
		return s.Elements
	}
	return nil
}

// CodeSection returns the module's function bodies, in the same order as
// FunctionSection's type indices.
func (m *Module) CodeSection() []*Code {
	if s := m.section(SectionIDCode); s != nil {
		return s.Codes
	}
	return nil
}

// DataSection returns the module's data segments, or nil.
func (m *Module) DataSection() []*DataSegment {
	if s := m.section(SectionIDData); s != nil {
		return s.Data
	}
	return nil
}

// ImportedFunctionCount returns the number of function imports, which is
// also the base offset module-defined function indices start counting from.
func (m *Module) ImportedFunctionCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection() {
		if imp.Kind == ExternalKindFunction {
			n++
		}
	}
	return n
}

// ImportedGlobalCount returns the number of global imports.
func (m *Module) ImportedGlobalCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection() {
		if imp.Kind == ExternalKindGlobal {
			n++
		}
	}
	return n
}

// ImportedTableCount returns the number of table imports.
func (m *Module) ImportedTableCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection() {
		if imp.Kind == ExternalKindTable {
			n++
		}
	}
	return n
}

// ImportedMemoryCount returns the number of memory imports.
func (m *Module) ImportedMemoryCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection() {
		if imp.Kind == ExternalKindMemory {
			n++
		}
	}
	return n
}

// FunctionTypeIndex returns the signature index of the function at the
// given module-wide function index (imports counted first), and whether
// that index is valid.
func (m *Module) FunctionTypeIndex(funcIndex uint32) (uint32, bool) {
	imported := m.ImportedFunctionCount()
	if funcIndex < imported {
		i := uint32(0)
		for _, imp := range m.ImportSection() {
			if imp.Kind != ExternalKindFunction {
				continue
			}
			if i == funcIndex {
				return imp.DescFunc, true
			}
			i++
		}
		return 0, false
	}
	indices := m.FunctionSection()
	localIndex := funcIndex - imported
	if localIndex >= uint32(len(indices)) {
		return 0, false
	}
	return indices[localIndex], true
}

// NameSection is the parsed form of the "name" custom section: debugging
// names for the module, its functions, and each function's locals.
//
// See https://webassembly.github.io/spec/core/appendix/custom.html#name-section
type NameSection struct {
	ModuleName    string
	FunctionNames NameMap
	LocalNames    IndirectNameMap
}

// NameAssoc pairs an index (a function or local index, depending on context)
// with its debugging name.
type NameAssoc struct {
	Index uint32
	Name  string
}

// NameMap is a NameAssoc vector, ordered as it appeared in the section.
type NameMap []NameAssoc

// Find returns the name assigned to index, or "" if none was given.
func (m NameMap) Find(index uint32) string {
	for _, a := range m {
		if a.Index == index {
			return a.Name
		}
	}
	return ""
}

// IndirectNameAssoc pairs an outer index (a function index, for LocalNames)
// with the NameMap of its inner indices (that function's locals).
type IndirectNameAssoc struct {
	Index   uint32
	NameMap NameMap
}

// IndirectNameMap is an IndirectNameAssoc vector.
type IndirectNameMap []IndirectNameAssoc

// Find returns the NameMap associated with outer index, or nil if none was
// given.
func (m IndirectNameMap) Find(index uint32) NameMap {
	for _, a := range m {
		if a.Index == index {
			return a.NameMap
		}
	}
	return nil
}

// NameSection returns the module's parsed "name" custom section, or nil if
// it has none or the custom section's payload wasn't a recognized layout.
func (m *Module) NameSection() *NameSection {
	for _, s := range m.Sections {
		if s.ID == SectionIDCustom && s.Name == "name" {
			return s.Names
		}
	}
	return nil
}
