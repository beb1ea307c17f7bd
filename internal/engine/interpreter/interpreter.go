package interpreter

import (
	"context"
	"math"
	"math/bits"

	"github.com/chewxy/math32"

	"github.com/vela-wasm/vela/internal/ieee754"
	"github.com/vela-wasm/vela/internal/wasm"
)

// Engine executes wasm.FunctionInstance bodies by walking the instruction
// tree directly. Unlike a bytecode-compiling engine, it holds no per-module
// compiled state; every exported method is safe to call concurrently for
// independent invocations (each gets its own callEngine).
type Engine struct {
	callStackCeiling int
}

// NewEngine constructs an Engine with the default call stack ceiling.
func NewEngine() *Engine {
	return &Engine{callStackCeiling: defaultCallStackCeiling}
}

// NewEngineWithCallStackCeiling constructs an Engine that traps with
// TrapCodeCallStackExhausted once nested calls reach ceiling deep, instead
// of the default.
func NewEngineWithCallStackCeiling(ceiling int) *Engine {
	return &Engine{callStackCeiling: ceiling}
}

// Call invokes fn with args (already the function's combined param values,
// each as its raw bit pattern) and returns its results, or a trap. ctx is
// visible to Go-implemented host functions reached transitively from fn; a
// nil ctx defaults to context.Background.
func (e *Engine) Call(ctx context.Context, fn *wasm.FunctionInstance, args []uint64) ([]uint64, *wasm.Trap) {
	if ctx == nil {
		ctx = context.Background()
	}
	return e.call(newCallEngine(ctx, e.callStackCeiling), fn, args)
}

func (e *Engine) call(ce *callEngine, fn *wasm.FunctionInstance, args []uint64) ([]uint64, *wasm.Trap) {
	if fn.IsHost() {
		return e.callHost(ce, fn, args)
	}

	locals := make([]uint64, len(fn.LocalTypes))
	copy(locals, args)
	if trap := ce.pushFrame(&callFrame{function: fn, locals: locals}); trap != nil {
		return nil, trap
	}
	defer ce.popFrame()

	sig, trap := e.exec(ce, ce.currentFrame(), fn.Body)
	if trap != nil {
		return nil, trap
	}
	if sig.kind == ctrlBranch {
		return nil, wasm.NewTrap(wasm.TrapCodeUnreachable, "branch target escaped function body")
	}

	results := make([]uint64, len(fn.Type.Results))
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = ce.popValue()
	}
	return results, nil
}

func (e *Engine) callHost(ce *callEngine, fn *wasm.FunctionInstance, args []uint64) ([]uint64, *wasm.Trap) {
	var caller *wasm.ModuleInstance
	if n := len(ce.frames); n > 0 {
		caller = ce.frames[n-1].function.Module
	}
	in := make([]interface{}, len(fn.Type.Params))
	for i, pt := range fn.Type.Params {
		in[i] = decodeTyped(pt, args[i])
	}
	out, trap := fn.Host(ce.ctx, caller, in)
	if trap != nil {
		return nil, trap
	}
	results := make([]uint64, len(out))
	for i, rt := range fn.Type.Results {
		results[i] = encodeTyped(rt, out[i])
	}
	return results, nil
}

func decodeTyped(t wasm.ValueType, v uint64) interface{} {
	switch t {
	case wasm.ValueTypeI32:
		return int32(uint32(v))
	case wasm.ValueTypeI64:
		return int64(v)
	case wasm.ValueTypeF32:
		return ieee754.Float32frombits(uint32(v))
	case wasm.ValueTypeF64:
		return ieee754.Float64frombits(v)
	}
	return nil
}

func encodeTyped(t wasm.ValueType, v interface{}) uint64 {
	switch t {
	case wasm.ValueTypeI32:
		return uint64(uint32(v.(int32)))
	case wasm.ValueTypeI64:
		return uint64(v.(int64))
	case wasm.ValueTypeF32:
		return uint64(ieee754.Float32bits(v.(float32)))
	case wasm.ValueTypeF64:
		return ieee754.Float64bits(v.(float64))
	}
	return 0
}

// ctrlKind classifies how exec stopped short of running off the end of an
// instruction list.
type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlBranch
	ctrlReturn
)

// ctrlSignal is threaded back up through nested exec calls so that block/
// loop/if can catch a branch targeting their own label (depth 0) and let
// anything deeper propagate with its depth decremented.
type ctrlSignal struct {
	kind  ctrlKind
	depth uint32
}

var sigNone = ctrlSignal{kind: ctrlNone}

// exec runs body to completion, to a `return`, or to an unconsumed branch.
func (e *Engine) exec(ce *callEngine, frame *callFrame, body []wasm.Instruction) (ctrlSignal, *wasm.Trap) {
	for _, inst := range body {
		sig, trap := e.execOne(ce, frame, inst)
		if trap != nil {
			return sigNone, trap
		}
		if sig.kind != ctrlNone {
			return sig, nil
		}
	}
	return sigNone, nil
}

func (e *Engine) execOne(ce *callEngine, frame *callFrame, inst wasm.Instruction) (ctrlSignal, *wasm.Trap) {
	switch inst.Opcode {
	case wasm.OpcodeUnreachable:
		return sigNone, trapUnreachable()
	case wasm.OpcodeNop:
		return sigNone, nil

	case wasm.OpcodeBlock:
		return e.execBlockLike(ce, frame, inst, false)
	case wasm.OpcodeLoop:
		return e.execBlockLike(ce, frame, inst, true)
	case wasm.OpcodeIf:
		cond := ce.popI32()
		if cond != 0 {
			return e.execBlockLike(ce, frame, wasm.Instruction{Then: inst.Then}, false)
		}
		return e.execBlockLike(ce, frame, wasm.Instruction{Then: inst.Else}, false)

	case wasm.OpcodeBr:
		return ctrlSignal{kind: ctrlBranch, depth: inst.LabelIndex}, nil
	case wasm.OpcodeBrIf:
		if ce.popI32() != 0 {
			return ctrlSignal{kind: ctrlBranch, depth: inst.LabelIndex}, nil
		}
		return sigNone, nil
	case wasm.OpcodeBrTable:
		idx := ce.popU32()
		target := inst.DefaultLabel
		if int(idx) < len(inst.LabelIndices) {
			target = inst.LabelIndices[idx]
		}
		return ctrlSignal{kind: ctrlBranch, depth: target}, nil

	case wasm.OpcodeReturn:
		return ctrlSignal{kind: ctrlReturn}, nil

	case wasm.OpcodeCall:
		return sigNone, e.execCall(ce, frame, inst.FuncIndex)
	case wasm.OpcodeCallIndirect:
		return sigNone, e.execCallIndirect(ce, frame, inst.TypeIndex)

	case wasm.OpcodeDrop:
		ce.popValue()
		return sigNone, nil
	case wasm.OpcodeSelect:
		cond := ce.popI32()
		v2 := ce.popValue()
		v1 := ce.popValue()
		if cond != 0 {
			ce.pushValue(v1)
		} else {
			ce.pushValue(v2)
		}
		return sigNone, nil

	case wasm.OpcodeLocalGet:
		ce.pushValue(frame.locals[inst.Index])
		return sigNone, nil
	case wasm.OpcodeLocalSet:
		frame.locals[inst.Index] = ce.popValue()
		return sigNone, nil
	case wasm.OpcodeLocalTee:
		frame.locals[inst.Index] = ce.peekValue()
		return sigNone, nil
	case wasm.OpcodeGlobalGet:
		ce.pushValue(frame.function.Module.Globals[inst.Index].Get())
		return sigNone, nil
	case wasm.OpcodeGlobalSet:
		frame.function.Module.Globals[inst.Index].Set(ce.popValue())
		return sigNone, nil

	case wasm.OpcodeI32Const:
		ce.pushI32(inst.I32)
		return sigNone, nil
	case wasm.OpcodeI64Const:
		ce.pushI64(inst.I64)
		return sigNone, nil
	case wasm.OpcodeF32Const:
		ce.pushF32(inst.F32)
		return sigNone, nil
	case wasm.OpcodeF64Const:
		ce.pushF64(inst.F64)
		return sigNone, nil

	case wasm.OpcodeMemorySize:
		ce.pushU32(frame.function.Module.Memory.PageSize())
		return sigNone, nil
	case wasm.OpcodeMemoryGrow:
		ce.pushI32(frame.function.Module.Memory.Grow(ce.popU32()))
		return sigNone, nil
	}

	if wasm.IsMemoryAccessOpcode(inst.Opcode) {
		return sigNone, e.execMemoryAccess(ce, frame, inst)
	}
	return sigNone, e.execNumeric(ce, inst.Opcode)
}

// execBlockLike runs a block or loop body. A branch targeting depth 0 either
// falls through (block) or re-enters the body (loop); anything deeper is
// decremented and passed up.
func (e *Engine) execBlockLike(ce *callEngine, frame *callFrame, inst wasm.Instruction, isLoop bool) (ctrlSignal, *wasm.Trap) {
	for {
		sig, trap := e.exec(ce, frame, inst.Then)
		if trap != nil {
			return sigNone, trap
		}
		switch sig.kind {
		case ctrlNone:
			return sigNone, nil
		case ctrlReturn:
			return sig, nil
		case ctrlBranch:
			if sig.depth == 0 {
				if isLoop {
					continue
				}
				return sigNone, nil
			}
			return ctrlSignal{kind: ctrlBranch, depth: sig.depth - 1}, nil
		}
	}
}

func (e *Engine) execCall(ce *callEngine, frame *callFrame, funcIndex uint32) *wasm.Trap {
	callee := frame.function.Module.Functions[funcIndex]
	args := make([]uint64, len(callee.Type.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = ce.popValue()
	}
	results, trap := e.call(ce, callee, args)
	if trap != nil {
		return trap
	}
	for _, r := range results {
		ce.pushValue(r)
	}
	return nil
}

func (e *Engine) execCallIndirect(ce *callEngine, frame *callFrame, typeIndex uint32) *wasm.Trap {
	mod := frame.function.Module
	table := mod.Tables[0]
	elemIdx := ce.popU32()
	if elemIdx >= uint32(len(table.Functions)) {
		return trapOutOfBoundsTable(elemIdx, uint32(len(table.Functions)))
	}
	callee := table.Functions[elemIdx]
	if callee == nil {
		return trapUninitializedElement(elemIdx)
	}
	wantType := mod.Types[typeIndex]
	if !callee.Type.Equal(wantType) {
		return trapIndirectCallTypeMismatch()
	}
	args := make([]uint64, len(callee.Type.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = ce.popValue()
	}
	results, trap := e.call(ce, callee, args)
	if trap != nil {
		return trap
	}
	for _, r := range results {
		ce.pushValue(r)
	}
	return nil
}

func (e *Engine) execMemoryAccess(ce *callEngine, frame *callFrame, inst wasm.Instruction) *wasm.Trap {
	mem := frame.function.Module.Memory
	if isStoreOpcode(inst.Opcode) {
		return e.execStore(ce, mem, inst)
	}
	return e.execLoad(ce, mem, inst)
}

func isStoreOpcode(op wasm.Opcode) bool {
	return op >= wasm.OpcodeI32Store && op <= wasm.OpcodeI64Store32
}

func effectiveAddress(offset uint32, inst wasm.Instruction) uint64 {
	return uint64(inst.Mem.Offset) + uint64(offset)
}

// inBounds reports whether a size-byte access at ea falls entirely within a
// memory of length bufLen, without wrapping: the check must happen against
// the full, untruncated effective address, since ea can exceed 2^32 (e.g. a
// large addr plus an offset) and truncating first would wrap it back into
// range.
func inBounds(ea, size, bufLen uint64) bool {
	end := ea + size
	return end >= ea && end <= bufLen
}

func (e *Engine) execLoad(ce *callEngine, mem *wasm.MemoryInstance, inst wasm.Instruction) *wasm.Trap {
	addr := ce.popU32()
	ea := effectiveAddress(addr, inst)
	size := loadSize(inst.Opcode)
	if !inBounds(ea, uint64(size), uint64(len(mem.Buffer))) {
		return trapOutOfBoundsMemory("memory.load", ea, uint64(size), uint64(len(mem.Buffer)))
	}
	buf, err := mem.Read(uint32(ea), size)
	if err != nil {
		return trapOutOfBoundsMemory("memory.load", ea, uint64(size), uint64(len(mem.Buffer)))
	}
	switch inst.Opcode {
	case wasm.OpcodeI32Load:
		ce.pushU32(leU32(buf))
	case wasm.OpcodeI64Load:
		ce.pushU64(leU64(buf))
	case wasm.OpcodeF32Load:
		ce.pushF32(ieee754.Float32frombits(leU32(buf)))
	case wasm.OpcodeF64Load:
		ce.pushF64(ieee754.Float64frombits(leU64(buf)))
	case wasm.OpcodeI32Load8S:
		ce.pushI32(int32(int8(buf[0])))
	case wasm.OpcodeI32Load8U:
		ce.pushU32(uint32(buf[0]))
	case wasm.OpcodeI32Load16S:
		ce.pushI32(int32(int16(leU16(buf))))
	case wasm.OpcodeI32Load16U:
		ce.pushU32(uint32(leU16(buf)))
	case wasm.OpcodeI64Load8S:
		ce.pushI64(int64(int8(buf[0])))
	case wasm.OpcodeI64Load8U:
		ce.pushU64(uint64(buf[0]))
	case wasm.OpcodeI64Load16S:
		ce.pushI64(int64(int16(leU16(buf))))
	case wasm.OpcodeI64Load16U:
		ce.pushU64(uint64(leU16(buf)))
	case wasm.OpcodeI64Load32S:
		ce.pushI64(int64(int32(leU32(buf))))
	case wasm.OpcodeI64Load32U:
		ce.pushU64(uint64(leU32(buf)))
	}
	return nil
}

func (e *Engine) execStore(ce *callEngine, mem *wasm.MemoryInstance, inst wasm.Instruction) *wasm.Trap {
	var buf []byte
	switch inst.Opcode {
	case wasm.OpcodeI32Store:
		buf = leBytes32(ce.popU32())
	case wasm.OpcodeI64Store:
		buf = leBytes64(ce.popU64())
	case wasm.OpcodeF32Store:
		buf = leBytes32(ieee754.Float32bits(ce.popF32()))
	case wasm.OpcodeF64Store:
		buf = leBytes64(ieee754.Float64bits(ce.popF64()))
	case wasm.OpcodeI32Store8:
		buf = []byte{byte(ce.popU32())}
	case wasm.OpcodeI32Store16:
		buf = leBytes16(uint16(ce.popU32()))
	case wasm.OpcodeI64Store8:
		buf = []byte{byte(ce.popU64())}
	case wasm.OpcodeI64Store16:
		buf = leBytes16(uint16(ce.popU64()))
	case wasm.OpcodeI64Store32:
		buf = leBytes32(uint32(ce.popU64()))
	}
	addr := ce.popU32()
	ea := effectiveAddress(addr, inst)
	if !inBounds(ea, uint64(len(buf)), uint64(len(mem.Buffer))) {
		return trapOutOfBoundsMemory("memory.store", ea, uint64(len(buf)), uint64(len(mem.Buffer)))
	}
	if err := mem.Write(uint32(ea), buf); err != nil {
		return trapOutOfBoundsMemory("memory.store", ea, uint64(len(buf)), uint64(len(mem.Buffer)))
	}
	return nil
}

func loadSize(op wasm.Opcode) uint32 {
	switch op {
	case wasm.OpcodeI32Load, wasm.OpcodeF32Load:
		return 4
	case wasm.OpcodeI64Load, wasm.OpcodeF64Load:
		return 8
	case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U:
		return 1
	case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U:
		return 2
	case wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U:
		return 4
	}
	return 0
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
func leBytes16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func leBytes32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func leBytes64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

// execNumeric handles every comparison, arithmetic, and conversion opcode --
// everything with no control-flow or memory-addressing side effects.
func (e *Engine) execNumeric(ce *callEngine, op wasm.Opcode) *wasm.Trap {
	switch op {
	// i32 comparisons
	case wasm.OpcodeI32Eqz:
		ce.pushBool(ce.popI32() == 0)
	case wasm.OpcodeI32Eq:
		b, a := ce.popI32(), ce.popI32()
		ce.pushBool(a == b)
	case wasm.OpcodeI32Ne:
		b, a := ce.popI32(), ce.popI32()
		ce.pushBool(a != b)
	case wasm.OpcodeI32LtS:
		b, a := ce.popI32(), ce.popI32()
		ce.pushBool(a < b)
	case wasm.OpcodeI32LtU:
		b, a := ce.popU32(), ce.popU32()
		ce.pushBool(a < b)
	case wasm.OpcodeI32GtS:
		b, a := ce.popI32(), ce.popI32()
		ce.pushBool(a > b)
	case wasm.OpcodeI32GtU:
		b, a := ce.popU32(), ce.popU32()
		ce.pushBool(a > b)
	case wasm.OpcodeI32LeS:
		b, a := ce.popI32(), ce.popI32()
		ce.pushBool(a <= b)
	case wasm.OpcodeI32LeU:
		b, a := ce.popU32(), ce.popU32()
		ce.pushBool(a <= b)
	case wasm.OpcodeI32GeS:
		b, a := ce.popI32(), ce.popI32()
		ce.pushBool(a >= b)
	case wasm.OpcodeI32GeU:
		b, a := ce.popU32(), ce.popU32()
		ce.pushBool(a >= b)

	// i64 comparisons
	case wasm.OpcodeI64Eqz:
		ce.pushBool(ce.popI64() == 0)
	case wasm.OpcodeI64Eq:
		b, a := ce.popI64(), ce.popI64()
		ce.pushBool(a == b)
	case wasm.OpcodeI64Ne:
		b, a := ce.popI64(), ce.popI64()
		ce.pushBool(a != b)
	case wasm.OpcodeI64LtS:
		b, a := ce.popI64(), ce.popI64()
		ce.pushBool(a < b)
	case wasm.OpcodeI64LtU:
		b, a := ce.popU64(), ce.popU64()
		ce.pushBool(a < b)
	case wasm.OpcodeI64GtS:
		b, a := ce.popI64(), ce.popI64()
		ce.pushBool(a > b)
	case wasm.OpcodeI64GtU:
		b, a := ce.popU64(), ce.popU64()
		ce.pushBool(a > b)
	case wasm.OpcodeI64LeS:
		b, a := ce.popI64(), ce.popI64()
		ce.pushBool(a <= b)
	case wasm.OpcodeI64LeU:
		b, a := ce.popU64(), ce.popU64()
		ce.pushBool(a <= b)
	case wasm.OpcodeI64GeS:
		b, a := ce.popI64(), ce.popI64()
		ce.pushBool(a >= b)
	case wasm.OpcodeI64GeU:
		b, a := ce.popU64(), ce.popU64()
		ce.pushBool(a >= b)

	// f32/f64 comparisons
	case wasm.OpcodeF32Eq:
		b, a := ce.popF32(), ce.popF32()
		ce.pushBool(a == b)
	case wasm.OpcodeF32Ne:
		b, a := ce.popF32(), ce.popF32()
		ce.pushBool(a != b)
	case wasm.OpcodeF32Lt:
		b, a := ce.popF32(), ce.popF32()
		ce.pushBool(a < b)
	case wasm.OpcodeF32Gt:
		b, a := ce.popF32(), ce.popF32()
		ce.pushBool(a > b)
	case wasm.OpcodeF32Le:
		b, a := ce.popF32(), ce.popF32()
		ce.pushBool(a <= b)
	case wasm.OpcodeF32Ge:
		b, a := ce.popF32(), ce.popF32()
		ce.pushBool(a >= b)
	case wasm.OpcodeF64Eq:
		b, a := ce.popF64(), ce.popF64()
		ce.pushBool(a == b)
	case wasm.OpcodeF64Ne:
		b, a := ce.popF64(), ce.popF64()
		ce.pushBool(a != b)
	case wasm.OpcodeF64Lt:
		b, a := ce.popF64(), ce.popF64()
		ce.pushBool(a < b)
	case wasm.OpcodeF64Gt:
		b, a := ce.popF64(), ce.popF64()
		ce.pushBool(a > b)
	case wasm.OpcodeF64Le:
		b, a := ce.popF64(), ce.popF64()
		ce.pushBool(a <= b)
	case wasm.OpcodeF64Ge:
		b, a := ce.popF64(), ce.popF64()
		ce.pushBool(a >= b)

	// i32 arithmetic
	case wasm.OpcodeI32Clz:
		ce.pushI32(int32(bits.LeadingZeros32(ce.popU32())))
	case wasm.OpcodeI32Ctz:
		ce.pushI32(int32(bits.TrailingZeros32(ce.popU32())))
	case wasm.OpcodeI32Popcnt:
		ce.pushI32(int32(bits.OnesCount32(ce.popU32())))
	case wasm.OpcodeI32Add:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a + b)
	case wasm.OpcodeI32Sub:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a - b)
	case wasm.OpcodeI32Mul:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a * b)
	case wasm.OpcodeI32DivS:
		b, a := ce.popI32(), ce.popI32()
		if b == 0 {
			return trapDivideByZero()
		}
		if a == math.MinInt32 && b == -1 {
			return trapIntegerOverflow()
		}
		ce.pushI32(a / b)
	case wasm.OpcodeI32DivU:
		b, a := ce.popU32(), ce.popU32()
		if b == 0 {
			return trapDivideByZero()
		}
		ce.pushU32(a / b)
	case wasm.OpcodeI32RemS:
		b, a := ce.popI32(), ce.popI32()
		if b == 0 {
			return trapDivideByZero()
		}
		if a == math.MinInt32 && b == -1 {
			ce.pushI32(0)
		} else {
			ce.pushI32(a % b)
		}
	case wasm.OpcodeI32RemU:
		b, a := ce.popU32(), ce.popU32()
		if b == 0 {
			return trapDivideByZero()
		}
		ce.pushU32(a % b)
	case wasm.OpcodeI32And:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a & b)
	case wasm.OpcodeI32Or:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a | b)
	case wasm.OpcodeI32Xor:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a ^ b)
	case wasm.OpcodeI32Shl:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a << (b % 32))
	case wasm.OpcodeI32ShrS:
		b, a := ce.popU32(), ce.popI32()
		ce.pushI32(a >> (b % 32))
	case wasm.OpcodeI32ShrU:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(a >> (b % 32))
	case wasm.OpcodeI32Rotl:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(bits.RotateLeft32(a, int(b)))
	case wasm.OpcodeI32Rotr:
		b, a := ce.popU32(), ce.popU32()
		ce.pushU32(bits.RotateLeft32(a, -int(b)))

	// i64 arithmetic
	case wasm.OpcodeI64Clz:
		ce.pushI64(int64(bits.LeadingZeros64(ce.popU64())))
	case wasm.OpcodeI64Ctz:
		ce.pushI64(int64(bits.TrailingZeros64(ce.popU64())))
	case wasm.OpcodeI64Popcnt:
		ce.pushI64(int64(bits.OnesCount64(ce.popU64())))
	case wasm.OpcodeI64Add:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a + b)
	case wasm.OpcodeI64Sub:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a - b)
	case wasm.OpcodeI64Mul:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a * b)
	case wasm.OpcodeI64DivS:
		b, a := ce.popI64(), ce.popI64()
		if b == 0 {
			return trapDivideByZero()
		}
		if a == math.MinInt64 && b == -1 {
			return trapIntegerOverflow()
		}
		ce.pushI64(a / b)
	case wasm.OpcodeI64DivU:
		b, a := ce.popU64(), ce.popU64()
		if b == 0 {
			return trapDivideByZero()
		}
		ce.pushU64(a / b)
	case wasm.OpcodeI64RemS:
		b, a := ce.popI64(), ce.popI64()
		if b == 0 {
			return trapDivideByZero()
		}
		if a == math.MinInt64 && b == -1 {
			ce.pushI64(0)
		} else {
			ce.pushI64(a % b)
		}
	case wasm.OpcodeI64RemU:
		b, a := ce.popU64(), ce.popU64()
		if b == 0 {
			return trapDivideByZero()
		}
		ce.pushU64(a % b)
	case wasm.OpcodeI64And:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a & b)
	case wasm.OpcodeI64Or:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a | b)
	case wasm.OpcodeI64Xor:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a ^ b)
	case wasm.OpcodeI64Shl:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a << (b % 64))
	case wasm.OpcodeI64ShrS:
		b, a := ce.popU64(), ce.popI64()
		ce.pushI64(a >> (b % 64))
	case wasm.OpcodeI64ShrU:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(a >> (b % 64))
	case wasm.OpcodeI64Rotl:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(bits.RotateLeft64(a, int(b)))
	case wasm.OpcodeI64Rotr:
		b, a := ce.popU64(), ce.popU64()
		ce.pushU64(bits.RotateLeft64(a, -int(b)))

	// f32 arithmetic
	case wasm.OpcodeF32Abs:
		ce.pushF32(math32.Abs(ce.popF32()))
	case wasm.OpcodeF32Neg:
		ce.pushF32(-ce.popF32())
	case wasm.OpcodeF32Ceil:
		ce.pushF32(math32.Ceil(ce.popF32()))
	case wasm.OpcodeF32Floor:
		ce.pushF32(math32.Floor(ce.popF32()))
	case wasm.OpcodeF32Trunc:
		ce.pushF32(math32.Trunc(ce.popF32()))
	case wasm.OpcodeF32Nearest:
		ce.pushF32(nearestF32(ce.popF32()))
	case wasm.OpcodeF32Sqrt:
		ce.pushF32(math32.Sqrt(ce.popF32()))
	case wasm.OpcodeF32Add:
		b, a := ce.popF32(), ce.popF32()
		ce.pushF32(a + b)
	case wasm.OpcodeF32Sub:
		b, a := ce.popF32(), ce.popF32()
		ce.pushF32(a - b)
	case wasm.OpcodeF32Mul:
		b, a := ce.popF32(), ce.popF32()
		ce.pushF32(a * b)
	case wasm.OpcodeF32Div:
		b, a := ce.popF32(), ce.popF32()
		ce.pushF32(a / b)
	case wasm.OpcodeF32Min:
		b, a := ce.popF32(), ce.popF32()
		ce.pushF32(ieee754.WasmCompatMin32(a, b))
	case wasm.OpcodeF32Max:
		b, a := ce.popF32(), ce.popF32()
		ce.pushF32(ieee754.WasmCompatMax32(a, b))
	case wasm.OpcodeF32Copysign:
		b, a := ce.popF32(), ce.popF32()
		ce.pushF32(ieee754.Copysign32(a, b))

	// f64 arithmetic
	case wasm.OpcodeF64Abs:
		ce.pushF64(math.Abs(ce.popF64()))
	case wasm.OpcodeF64Neg:
		ce.pushF64(-ce.popF64())
	case wasm.OpcodeF64Ceil:
		ce.pushF64(math.Ceil(ce.popF64()))
	case wasm.OpcodeF64Floor:
		ce.pushF64(math.Floor(ce.popF64()))
	case wasm.OpcodeF64Trunc:
		ce.pushF64(math.Trunc(ce.popF64()))
	case wasm.OpcodeF64Nearest:
		ce.pushF64(nearestF64(ce.popF64()))
	case wasm.OpcodeF64Sqrt:
		ce.pushF64(math.Sqrt(ce.popF64()))
	case wasm.OpcodeF64Add:
		b, a := ce.popF64(), ce.popF64()
		ce.pushF64(a + b)
	case wasm.OpcodeF64Sub:
		b, a := ce.popF64(), ce.popF64()
		ce.pushF64(a - b)
	case wasm.OpcodeF64Mul:
		b, a := ce.popF64(), ce.popF64()
		ce.pushF64(a * b)
	case wasm.OpcodeF64Div:
		b, a := ce.popF64(), ce.popF64()
		ce.pushF64(a / b)
	case wasm.OpcodeF64Min:
		b, a := ce.popF64(), ce.popF64()
		ce.pushF64(ieee754.WasmCompatMin64(a, b))
	case wasm.OpcodeF64Max:
		b, a := ce.popF64(), ce.popF64()
		ce.pushF64(ieee754.WasmCompatMax64(a, b))
	case wasm.OpcodeF64Copysign:
		b, a := ce.popF64(), ce.popF64()
		ce.pushF64(ieee754.Copysign64(a, b))

	// conversions
	case wasm.OpcodeI32WrapI64:
		ce.pushU32(uint32(ce.popU64()))
	case wasm.OpcodeI32TruncF32S:
		return convertTrunc(ce, ce.popF32, ce.pushI32, "f32", "i32", math.MinInt32, math.MaxInt32)
	case wasm.OpcodeI32TruncF32U:
		return convertTruncU(ce, ce.popF32, ce.pushU32, "f32", "u32", 0, math.MaxUint32)
	case wasm.OpcodeI32TruncF64S:
		return convertTruncF64(ce, ce.popF64, ce.pushI32, "f64", "i32", math.MinInt32, math.MaxInt32)
	case wasm.OpcodeI32TruncF64U:
		return convertTruncF64U(ce, ce.popF64, ce.pushU32, "f64", "u32", 0, math.MaxUint32)
	case wasm.OpcodeI64ExtendI32S:
		ce.pushI64(int64(ce.popI32()))
	case wasm.OpcodeI64ExtendI32U:
		ce.pushU64(uint64(ce.popU32()))
	case wasm.OpcodeI64TruncF32S:
		return convertTruncI64(ce, ce.popF32, ce.pushI64, "f32", "i64")
	case wasm.OpcodeI64TruncF32U:
		return convertTruncU64(ce, ce.popF32, ce.pushU64, "f32", "u64")
	case wasm.OpcodeI64TruncF64S:
		return convertTruncI64F64(ce, ce.popF64, ce.pushI64, "f64", "i64")
	case wasm.OpcodeI64TruncF64U:
		return convertTruncU64F64(ce, ce.popF64, ce.pushU64, "f64", "u64")
	case wasm.OpcodeF32ConvertI32S:
		ce.pushF32(float32(ce.popI32()))
	case wasm.OpcodeF32ConvertI32U:
		ce.pushF32(float32(ce.popU32()))
	case wasm.OpcodeF32ConvertI64S:
		ce.pushF32(float32(ce.popI64()))
	case wasm.OpcodeF32ConvertI64U:
		ce.pushF32(float32(ce.popU64()))
	case wasm.OpcodeF32DemoteF64:
		ce.pushF32(float32(ce.popF64()))
	case wasm.OpcodeF64ConvertI32S:
		ce.pushF64(float64(ce.popI32()))
	case wasm.OpcodeF64ConvertI32U:
		ce.pushF64(float64(ce.popU32()))
	case wasm.OpcodeF64ConvertI64S:
		ce.pushF64(float64(ce.popI64()))
	case wasm.OpcodeF64ConvertI64U:
		ce.pushF64(float64(ce.popU64()))
	case wasm.OpcodeF64PromoteF32:
		ce.pushF64(float64(ce.popF32()))
	case wasm.OpcodeI32ReinterpretF32:
		ce.pushU32(ieee754.Float32bits(ce.popF32()))
	case wasm.OpcodeI64ReinterpretF64:
		ce.pushU64(ieee754.Float64bits(ce.popF64()))
	case wasm.OpcodeF32ReinterpretI32:
		ce.pushF32(ieee754.Float32frombits(ce.popU32()))
	case wasm.OpcodeF64ReinterpretI64:
		ce.pushF64(ieee754.Float64frombits(ce.popU64()))

	default:
		return wasm.NewTrap(wasm.TrapCodeUnreachable, "unimplemented opcode 0x%02x", byte(op))
	}
	return nil
}

// nearestF32/nearestF64 implement round-to-nearest-even, the rounding mode
// f32.nearest/f64.nearest require (as opposed to math.Round's round-half-
// away-from-zero).
func nearestF32(f float32) float32 { return float32(math.RoundToEven(float64(f))) }
func nearestF64(f float64) float64 { return math.RoundToEven(f) }

func convertTrunc(ce *callEngine, pop func() float32, push func(int32), from, to string, lo, hi float64) *wasm.Trap {
	f := float64(pop())
	v := math.Trunc(f)
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < lo || v > hi {
		return trapIntegerOverflow()
	}
	push(int32(v))
	return nil
}

func convertTruncU(ce *callEngine, pop func() float32, push func(uint32), from, to string, lo, hi float64) *wasm.Trap {
	f := float64(pop())
	v := math.Trunc(f)
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < lo || v > hi {
		return trapIntegerOverflow()
	}
	push(uint32(v))
	return nil
}

func convertTruncF64(ce *callEngine, pop func() float64, push func(int32), from, to string, lo, hi float64) *wasm.Trap {
	v := math.Trunc(pop())
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < lo || v > hi {
		return trapIntegerOverflow()
	}
	push(int32(v))
	return nil
}

func convertTruncF64U(ce *callEngine, pop func() float64, push func(uint32), from, to string, lo, hi float64) *wasm.Trap {
	v := math.Trunc(pop())
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < lo || v > hi {
		return trapIntegerOverflow()
	}
	push(uint32(v))
	return nil
}

func convertTruncI64(ce *callEngine, pop func() float32, push func(int64), from, to string) *wasm.Trap {
	v := math.Trunc(float64(pop()))
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < math.MinInt64 || v >= math.MaxInt64 {
		return trapIntegerOverflow()
	}
	push(int64(v))
	return nil
}

func convertTruncU64(ce *callEngine, pop func() float32, push func(uint64), from, to string) *wasm.Trap {
	v := math.Trunc(float64(pop()))
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < 0 || v >= math.MaxUint64 {
		return trapIntegerOverflow()
	}
	push(uint64(v))
	return nil
}

func convertTruncI64F64(ce *callEngine, pop func() float64, push func(int64), from, to string) *wasm.Trap {
	v := math.Trunc(pop())
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < math.MinInt64 || v >= math.MaxInt64 {
		return trapIntegerOverflow()
	}
	push(int64(v))
	return nil
}

func convertTruncU64F64(ce *callEngine, pop func() float64, push func(uint64), from, to string) *wasm.Trap {
	v := math.Trunc(pop())
	if math.IsNaN(v) {
		return trapInvalidConversion(from, to)
	}
	if v < 0 || v >= math.MaxUint64 {
		return trapIntegerOverflow()
	}
	push(uint64(v))
	return nil
}
