// Package interpreter is a tree-walking evaluator for wasm.FunctionInstance
// bodies: it executes the Instruction/Then/Else tree directly, rather than
// lowering to a flat bytecode first.
package interpreter

import (
	"context"

	"github.com/vela-wasm/vela/internal/ieee754"
	"github.com/vela-wasm/vela/internal/wasm"
)

// defaultCallStackCeiling bounds the depth of nested calls a single
// invocation of Call may make, guarding against runaway recursion in Wasm
// code that has no native stack of its own to overflow.
const defaultCallStackCeiling = 2000

// callEngine holds the state of one top-level Call invocation: the operand
// stack shared by every function on the call chain, and the chain of call
// frames itself.
type callEngine struct {
	ctx              context.Context
	callStackCeiling int
	stack            []uint64
	frames           []*callFrame
}

// callFrame is one function activation: its locals (params followed by
// declared locals, all addressed by a single combined index space) and a
// back-reference to the function being executed, for trap messages.
type callFrame struct {
	function *wasm.FunctionInstance
	locals   []uint64
}

func newCallEngine(ctx context.Context, callStackCeiling int) *callEngine {
	return &callEngine{ctx: ctx, callStackCeiling: callStackCeiling}
}

func (ce *callEngine) pushValue(v uint64) {
	ce.stack = append(ce.stack, v)
}

func (ce *callEngine) popValue() uint64 {
	i := len(ce.stack) - 1
	v := ce.stack[i]
	ce.stack = ce.stack[:i]
	return v
}

func (ce *callEngine) peekValue() uint64 {
	return ce.stack[len(ce.stack)-1]
}

func (ce *callEngine) pushFrame(f *callFrame) *wasm.Trap {
	if len(ce.frames) >= ce.callStackCeiling {
		return wasm.NewTrap(wasm.TrapCodeCallStackExhausted, "call stack exhausted (depth %d)", ce.callStackCeiling)
	}
	ce.frames = append(ce.frames, f)
	return nil
}

func (ce *callEngine) popFrame() {
	ce.frames = ce.frames[:len(ce.frames)-1]
}

func (ce *callEngine) currentFrame() *callFrame {
	return ce.frames[len(ce.frames)-1]
}

// Every value on the operand stack is stored as its raw 64-bit bit pattern
// (zero-extended for the 32-bit types), matching wasm.GlobalInstance's
// convention so locals and globals can share the same representation.

func (ce *callEngine) pushI32(v int32)     { ce.pushValue(uint64(uint32(v))) }
func (ce *callEngine) popI32() int32       { return int32(uint32(ce.popValue())) }
func (ce *callEngine) pushU32(v uint32)    { ce.pushValue(uint64(v)) }
func (ce *callEngine) popU32() uint32      { return uint32(ce.popValue()) }
func (ce *callEngine) pushI64(v int64)     { ce.pushValue(uint64(v)) }
func (ce *callEngine) popI64() int64       { return int64(ce.popValue()) }
func (ce *callEngine) pushU64(v uint64)    { ce.pushValue(v) }
func (ce *callEngine) popU64() uint64      { return ce.popValue() }
func (ce *callEngine) pushBool(b bool) {
	if b {
		ce.pushI32(1)
	} else {
		ce.pushI32(0)
	}
}

func (ce *callEngine) pushF32(v float32) { ce.pushValue(uint64(ieee754.Float32bits(v))) }
func (ce *callEngine) popF32() float32   { return ieee754.Float32frombits(uint32(ce.popValue())) }
func (ce *callEngine) pushF64(v float64) { ce.pushValue(ieee754.Float64bits(v)) }
func (ce *callEngine) popF64() float64   { return ieee754.Float64frombits(ce.popValue()) }
