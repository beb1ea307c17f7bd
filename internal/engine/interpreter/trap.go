package interpreter

import "github.com/vela-wasm/vela/internal/wasm"

func trapUnreachable() *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeUnreachable, "unreachable executed")
}

func trapDivideByZero() *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero, "integer divide by zero")
}

func trapIntegerOverflow() *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeIntegerOverflow, "integer overflow")
}

func trapInvalidConversion(from, to string) *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeInvalidConversionToInteger, "cannot convert %s to %s", from, to)
}

func trapOutOfBoundsMemory(op string, offset, size, limit uint64) *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeOutOfBoundsMemoryAccess,
		"%s out of bounds: offset=%d size=%d memory size=%d", op, offset, size, limit)
}

func trapOutOfBoundsTable(index, limit uint32) *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeOutOfBoundsTableAccess,
		"undefined element: index=%d table size=%d", index, limit)
}

func trapUninitializedElement(index uint32) *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeUninitializedElement, "uninitialized element at index %d", index)
}

func trapIndirectCallTypeMismatch() *wasm.Trap {
	return wasm.NewTrap(wasm.TrapCodeIndirectCallTypeMismatch, "indirect call type mismatch")
}
