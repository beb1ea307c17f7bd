package wasm

import "github.com/pkg/errors"

// ConstantExpression is the restricted instruction sequence allowed as a
// global initializer or as an element/data segment offset: exactly one
// constant-producing instruction followed by `end`.
//
// See https://webassembly.github.io/spec/core/valid/instructions.html#constant-expressions
type ConstantExpression struct {
	Opcode Opcode

	I32 int32
	I64 int64
	F32 float32
	F64 float64

	// GlobalIndex is meaningful only when Opcode is OpcodeGlobalGet, and
	// must then refer to an imported, immutable global (the only kind
	// whose value is known at instantiation time before any code runs).
	GlobalIndex uint32
}

// errInvalidConstExpr is returned by Evaluate when the expression's opcode
// is not one of the five permitted forms.
var errInvalidConstExpr = errors.New("invalid constant expression opcode")

// ConstantExpressionContext supplies the state a ConstantExpression needs to
// evaluate global.get: the values of already-initialized imported globals.
type ConstantExpressionContext interface {
	ImportedGlobalValue(index uint32) (interface{}, error)
}

// Evaluate computes the expression's value. The result is one of int32,
// int64, float32, float64, depending on the value type the expression
// produces.
func (c *ConstantExpression) Evaluate(ctx ConstantExpressionContext) (interface{}, error) {
	switch c.Opcode {
	case OpcodeI32Const:
		return c.I32, nil
	case OpcodeI64Const:
		return c.I64, nil
	case OpcodeF32Const:
		return c.F32, nil
	case OpcodeF64Const:
		return c.F64, nil
	case OpcodeGlobalGet:
		if ctx == nil {
			return nil, errors.Wrap(errInvalidConstExpr, "global.get requires a context")
		}
		return ctx.ImportedGlobalValue(c.GlobalIndex)
	default:
		return nil, errors.Wrapf(errInvalidConstExpr, "opcode 0x%02x", byte(c.Opcode))
	}
}

// ValueType reports the static value type the expression produces.
func (c *ConstantExpression) ValueType() (ValueType, error) {
	switch c.Opcode {
	case OpcodeI32Const:
		return ValueTypeI32, nil
	case OpcodeI64Const:
		return ValueTypeI64, nil
	case OpcodeF32Const:
		return ValueTypeF32, nil
	case OpcodeF64Const:
		return ValueTypeF64, nil
	case OpcodeGlobalGet:
		return 0, errors.New("global.get's value type depends on the referenced global")
	default:
		return 0, errors.Wrapf(errInvalidConstExpr, "opcode 0x%02x", byte(c.Opcode))
	}
}
