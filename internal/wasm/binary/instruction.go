package binary

import (
	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/internal/wasm"
)

// decodeInstructions decodes instructions until it hits an `end` opcode (and
// for the top level of an `if`'s then-branch, also stops early at `else`,
// returning which of the two terminators it saw so the caller can continue
// decoding an else-branch if present).
func decodeInstructions(r *reader) ([]wasm.Instruction, byte, error) {
	var out []wasm.Instruction
	for {
		opByte, err := r.readByte()
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to read opcode")
		}
		if opByte == byte(wasm.OpcodeEnd) || opByte == byte(wasm.OpcodeElse) {
			return out, opByte, nil
		}
		inst, err := decodeInstruction(r, wasm.Opcode(opByte))
		if err != nil {
			return nil, 0, errors.Wrapf(err, "failed to decode instruction 0x%02x", opByte)
		}
		out = append(out, inst)
	}
}

func decodeInstruction(r *reader, op wasm.Opcode) (wasm.Instruction, error) {
	inst := wasm.Instruction{Opcode: op}

	switch op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		bt, err := r.readS33AsS64()
		if err != nil {
			return inst, errors.Wrap(err, "failed to read block type")
		}
		if bt == int64(wasm.LanguageTypeEmpty) {
			inst.HasBlockType = false
		} else {
			inst.HasBlockType = true
			inst.BlockType = wasm.LanguageType(bt)
		}

		then, term, err := decodeInstructions(r)
		if err != nil {
			return inst, err
		}
		inst.Then = then

		if op == wasm.OpcodeIf && term == byte(wasm.OpcodeElse) {
			elseBody, _, err := decodeInstructions(r)
			if err != nil {
				return inst, errors.Wrap(err, "failed to decode else branch")
			}
			inst.Else = elseBody
		}
		return inst, nil

	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		idx, err := r.readU32()
		if err != nil {
			return inst, err
		}
		inst.LabelIndex = idx
		return inst, nil

	case wasm.OpcodeBrTable:
		count, err := r.readU32()
		if err != nil {
			return inst, err
		}
		labels := make([]uint32, count)
		for i := range labels {
			if labels[i], err = r.readU32(); err != nil {
				return inst, err
			}
		}
		def, err := r.readU32()
		if err != nil {
			return inst, err
		}
		inst.LabelIndices = labels
		inst.DefaultLabel = def
		return inst, nil

	case wasm.OpcodeCall:
		idx, err := r.readU32()
		if err != nil {
			return inst, err
		}
		inst.FuncIndex = idx
		return inst, nil

	case wasm.OpcodeCallIndirect:
		typeIdx, err := r.readU32()
		if err != nil {
			return inst, err
		}
		if _, err := r.readByte(); err != nil { // reserved table index, must be 0x00
			return inst, err
		}
		inst.TypeIndex = typeIdx
		return inst, nil

	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		idx, err := r.readU32()
		if err != nil {
			return inst, err
		}
		inst.Index = idx
		return inst, nil

	case wasm.OpcodeI32Const:
		v, err := r.readS32()
		if err != nil {
			return inst, err
		}
		inst.I32 = v
		return inst, nil

	case wasm.OpcodeI64Const:
		v, err := r.readS64()
		if err != nil {
			return inst, err
		}
		inst.I64 = v
		return inst, nil

	case wasm.OpcodeF32Const:
		v, err := r.readF32()
		if err != nil {
			return inst, err
		}
		inst.F32 = v
		return inst, nil

	case wasm.OpcodeF64Const:
		v, err := r.readF64()
		if err != nil {
			return inst, err
		}
		inst.F64 = v
		return inst, nil

	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		if _, err := r.readByte(); err != nil { // reserved memory index, must be 0x00
			return inst, err
		}
		return inst, nil

	default:
		if isMemOpcodeLocal(op) {
			align, err := r.readU32()
			if err != nil {
				return inst, err
			}
			offset, err := r.readU32()
			if err != nil {
				return inst, err
			}
			inst.Mem = wasm.MemArg{Align: align, Offset: offset}
			return inst, nil
		}
		// unreachable, nop, drop, select, return, end, else, unary/binary
		// numeric ops, comparisons, conversions: no immediates.
		return inst, nil
	}
}

func isMemOpcodeLocal(op wasm.Opcode) bool {
	return op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32
}

// encodeInstructions appends the binary encoding of insts, followed by a
// trailing `end` opcode, to w.
func encodeInstructions(w *writer, insts []wasm.Instruction) {
	for _, inst := range insts {
		encodeInstruction(w, inst)
	}
	w.writeByte(byte(wasm.OpcodeEnd))
}

func encodeInstruction(w *writer, inst wasm.Instruction) {
	w.writeByte(byte(inst.Opcode))

	switch inst.Opcode {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		if inst.HasBlockType {
			w.writeS33(int64(inst.BlockType))
		} else {
			w.writeS33(int64(wasm.LanguageTypeEmpty))
		}
		for _, s := range inst.Then {
			encodeInstruction(w, s)
		}
		if inst.Opcode == wasm.OpcodeIf && inst.Else != nil {
			w.writeByte(byte(wasm.OpcodeElse))
			for _, s := range inst.Else {
				encodeInstruction(w, s)
			}
		}
		w.writeByte(byte(wasm.OpcodeEnd))

	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		w.writeU32(inst.LabelIndex)

	case wasm.OpcodeBrTable:
		w.writeU32(uint32(len(inst.LabelIndices)))
		for _, l := range inst.LabelIndices {
			w.writeU32(l)
		}
		w.writeU32(inst.DefaultLabel)

	case wasm.OpcodeCall:
		w.writeU32(inst.FuncIndex)

	case wasm.OpcodeCallIndirect:
		w.writeU32(inst.TypeIndex)
		w.writeByte(0x00)

	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		w.writeU32(inst.Index)

	case wasm.OpcodeI32Const:
		w.writeS32(inst.I32)
	case wasm.OpcodeI64Const:
		w.writeS64(inst.I64)
	case wasm.OpcodeF32Const:
		w.writeF32(inst.F32)
	case wasm.OpcodeF64Const:
		w.writeF64(inst.F64)

	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		w.writeByte(0x00)

	default:
		if isMemOpcodeLocal(inst.Opcode) {
			w.writeU32(inst.Mem.Align)
			w.writeU32(inst.Mem.Offset)
		}
	}
}

// decodeConstExpr decodes a restricted constant expression: one constant or
// global.get instruction followed by `end`.
func decodeConstExpr(r *reader) (wasm.ConstantExpression, error) {
	opByte, err := r.readByte()
	if err != nil {
		return wasm.ConstantExpression{}, errors.Wrap(err, "failed to read const expr opcode")
	}
	op := wasm.Opcode(opByte)

	ce := wasm.ConstantExpression{Opcode: op}
	switch op {
	case wasm.OpcodeI32Const:
		if ce.I32, err = r.readS32(); err != nil {
			return ce, err
		}
	case wasm.OpcodeI64Const:
		if ce.I64, err = r.readS64(); err != nil {
			return ce, err
		}
	case wasm.OpcodeF32Const:
		if ce.F32, err = r.readF32(); err != nil {
			return ce, err
		}
	case wasm.OpcodeF64Const:
		if ce.F64, err = r.readF64(); err != nil {
			return ce, err
		}
	case wasm.OpcodeGlobalGet:
		if ce.GlobalIndex, err = r.readU32(); err != nil {
			return ce, err
		}
	default:
		return ce, errors.Errorf("invalid constant expression opcode 0x%02x", opByte)
	}

	end, err := r.readByte()
	if err != nil {
		return ce, errors.Wrap(err, "failed to read const expr terminator")
	}
	if end != byte(wasm.OpcodeEnd) {
		return ce, errors.Errorf("constant expression must end with 0x0b, got 0x%02x", end)
	}
	return ce, nil
}

func encodeConstExpr(w *writer, ce wasm.ConstantExpression) {
	w.writeByte(byte(ce.Opcode))
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		w.writeS32(ce.I32)
	case wasm.OpcodeI64Const:
		w.writeS64(ce.I64)
	case wasm.OpcodeF32Const:
		w.writeF32(ce.F32)
	case wasm.OpcodeF64Const:
		w.writeF64(ce.F64)
	case wasm.OpcodeGlobalGet:
		w.writeU32(ce.GlobalIndex)
	}
	w.writeByte(byte(wasm.OpcodeEnd))
}
