// Package script drives the spec test command vocabulary (module, register,
// invoke, get, assert_return, assert_trap, assert_exhaustion,
// assert_malformed, assert_invalid, assert_unlinkable) against a vela.Runtime.
//
// A Manifest mirrors the JSON wast2json emits for a single .wast source
// file: commands are replayed in order against one Runtime, with "module"
// and "register" commands threading a running name -> api.Module table that
// later "invoke"/"get" actions and subsequent imports resolve against.
package script

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela"
	"github.com/vela-wasm/vela/api"
	"github.com/vela-wasm/vela/internal/wasm/binary"
	"github.com/vela-wasm/vela/internal/wat"
)

// Manifest is one .wast source file's command list.
type Manifest struct {
	SourceFile string    `json:"source_filename"`
	Commands   []Command `json:"commands"`
}

// Command is a single script directive.
type Command struct {
	Type       string       `json:"type"`
	Line       int          `json:"line"`
	Name       string       `json:"name,omitempty"`
	Filename   string       `json:"filename,omitempty"`
	As         string       `json:"as,omitempty"`
	Action     *Action      `json:"action,omitempty"`
	Expected   []TypedValue `json:"expected,omitempty"`
	ModuleType string       `json:"module_type,omitempty"`
	Text       string       `json:"text,omitempty"`
}

// Action is an assert_return/assert_trap/action command's invoke or get.
type Action struct {
	Type   string       `json:"type"`
	Module string       `json:"module,omitempty"`
	Field  string       `json:"field"`
	Args   []TypedValue `json:"args,omitempty"`
}

// TypedValue is one typed literal as wast2json emits it: f32/f64 values are
// carried as their raw bit pattern (decimal), not the float's text form.
type TypedValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ToStack encodes v as a single operand-stack slot.
func (v TypedValue) ToStack() (uint64, error) {
	if strings.Contains(v.Value, "nan") {
		return nanBits(v.Value, v.Type == "f32")
	}
	bits := 32
	if v.Type == "i64" || v.Type == "f64" {
		bits = 64
	}
	switch v.Type {
	case "i32", "i64", "f32", "f64":
		n, err := strconv.ParseUint(v.Value, 10, bits)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing %s value %q", v.Type, v.Value)
		}
		return n, nil
	}
	return 0, errors.Errorf("unsupported value type %q", v.Type)
}

const (
	f32ExponentMask        = uint64(0x7f800000)
	f32ArithmeticNaNPayload = uint64(0x00400000)
	f32QuietNaNMask        = f32ExponentMask | f32ArithmeticNaNPayload

	f64ExponentMask        = uint64(0x7ff0000000000000)
	f64ArithmeticNaNPayload = uint64(0x0008000000000000)
	f64QuietNaNMask        = f64ExponentMask | f64ArithmeticNaNPayload
)

func nanBits(literal string, is32 bool) (uint64, error) {
	switch literal {
	case "nan:canonical", "nan:arithmetic":
		if is32 {
			return f32QuietNaNMask, nil
		}
		return f64QuietNaNMask, nil
	}
	return 0, errors.Errorf("unrecognized nan literal %q", literal)
}

// match reports whether actual (a raw operand-stack slot) satisfies expected.
// Non-NaN floats compare bit-for-bit, per the spec test's distinction
// between +0/-0; a "nan:canonical"/"nan:arithmetic" expectation matches any
// quiet NaN of the right width, regardless of sign or the remaining payload
// bits.
func match(expected TypedValue, actual uint64) (bool, error) {
	if strings.Contains(expected.Value, "nan") {
		switch expected.Type {
		case "f32":
			return uint64(uint32(actual))&f32QuietNaNMask == f32QuietNaNMask, nil
		case "f64":
			return actual&f64QuietNaNMask == f64QuietNaNMask, nil
		}
		return false, errors.Errorf("nan literal for non-float type %q", expected.Type)
	}
	want, err := expected.ToStack()
	if err != nil {
		return false, err
	}
	switch expected.Type {
	case "i32", "f32":
		return uint32(want) == uint32(actual), nil
	default:
		return want == actual, nil
	}
}

// Run replays every command in m against r, reading "module"/assert_*
// filenames relative to dir within fsys. Each command runs as its own
// subtest, named after its type and source line.
func Run(t *testing.T, ctx context.Context, r *vela.Runtime, fsys afero.Fs, dir string, m *Manifest) {
	modules := map[string]api.Module{}
	var last string

	for _, c := range m.Commands {
		c := c
		t.Run(fmt.Sprintf("%s/line:%d", c.Type, c.Line), func(t *testing.T) {
			switch c.Type {
			case "module":
				name := c.Name
				if name == "" {
					name = c.Filename
				}
				mod := loadModule(t, ctx, r, fsys, dir, c.Filename, name)
				modules[name] = mod
				last = name
			case "register":
				src := c.Name
				if src == "" {
					src = last
				}
				require.NoError(t, r.Alias(src, c.As))
				modules[c.As] = modules[src]
				last = c.As
			case "assert_return", "action":
				runAction(t, ctx, modules, last, c)
			case "assert_trap":
				runAssertTrap(t, ctx, modules, last, c)
			case "assert_exhaustion":
				runAssertExhaustion(t, ctx, modules, last, c)
			case "assert_malformed":
				if c.ModuleType == "text" {
					t.Skip("text-form assert_malformed requires a failing wat.Assemble, not binary decode")
				}
				requireInstantiationError(t, ctx, r, fsys, dir, c.Filename)
			case "assert_invalid", "assert_unlinkable":
				requireInstantiationError(t, ctx, r, fsys, dir, c.Filename)
			default:
				t.Fatalf("unsupported command type %q", c.Type)
			}
		})
	}
}

func loadModule(t *testing.T, ctx context.Context, r *vela.Runtime, fsys afero.Fs, dir, filename, name string) api.Module {
	encoded, err := encodeFile(fsys, dir, filename)
	require.NoError(t, err)

	compiled, err := r.CompileModule(ctx, encoded)
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, vela.NewModuleConfig().WithName(name))
	require.NoError(t, err)
	return mod
}

// encodeFile returns filename's contents as a binary-format module, text-
// assembling it first if its extension names the WebAssembly text format.
func encodeFile(fsys afero.Fs, dir, filename string) ([]byte, error) {
	b, err := afero.ReadFile(fsys, path.Join(dir, filename))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	if strings.HasSuffix(filename, ".wat") || strings.HasSuffix(filename, ".wast") {
		mod, err := wat.Assemble(string(b), nil)
		if err != nil {
			return nil, err
		}
		return binary.EncodeModule(mod), nil
	}
	return b, nil
}

func runAction(t *testing.T, ctx context.Context, modules map[string]api.Module, last string, c Command) {
	mod := actionModule(t, modules, last, c.Action)

	switch c.Action.Type {
	case "invoke":
		args := toStackSlice(t, c.Action.Args)
		fn := mod.ExportedFunction(c.Action.Field)
		require.NotNil(t, fn, "no exported function %q", c.Action.Field)
		results, err := fn.Call(ctx, args...)
		require.NoError(t, err)
		require.Equal(t, len(c.Expected), len(results))
		for i, exp := range c.Expected {
			ok, err := match(exp, results[i])
			require.NoError(t, err)
			require.True(t, ok, "result %d: want %s, have %#x", i, exp.Value, results[i])
		}
	case "get":
		require.Equal(t, 1, len(c.Expected))
		g := mod.ExportedGlobal(c.Action.Field)
		require.NotNil(t, g, "no exported global %q", c.Action.Field)
		ok, err := match(c.Expected[0], g.Get())
		require.NoError(t, err)
		require.True(t, ok)
	default:
		t.Fatalf("unsupported action type %q", c.Action.Type)
	}
}

func runAssertTrap(t *testing.T, ctx context.Context, modules map[string]api.Module, last string, c Command) {
	mod := actionModule(t, modules, last, c.Action)
	require.Equal(t, "invoke", c.Action.Type)

	args := toStackSlice(t, c.Action.Args)
	fn := mod.ExportedFunction(c.Action.Field)
	require.NotNil(t, fn, "no exported function %q", c.Action.Field)

	_, err := fn.Call(ctx, args...)
	require.Error(t, err)
	require.Contains(t, err.Error(), c.Text)
}

func runAssertExhaustion(t *testing.T, ctx context.Context, modules map[string]api.Module, last string, c Command) {
	mod := actionModule(t, modules, last, c.Action)
	require.Equal(t, "invoke", c.Action.Type)

	args := toStackSlice(t, c.Action.Args)
	fn := mod.ExportedFunction(c.Action.Field)
	require.NotNil(t, fn, "no exported function %q", c.Action.Field)

	_, err := fn.Call(ctx, args...)
	require.Error(t, err)
	require.Contains(t, err.Error(), "call stack exhausted")
}

func actionModule(t *testing.T, modules map[string]api.Module, last string, a *Action) api.Module {
	name := last
	if a.Module != "" {
		name = a.Module
	}
	mod, ok := modules[name]
	require.True(t, ok, "module %q not instantiated", name)
	return mod
}

func toStackSlice(t *testing.T, vals []TypedValue) []uint64 {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		n, err := v.ToStack()
		require.NoError(t, err)
		out[i] = n
	}
	return out
}

// requireInstantiationError asserts that decoding (or assembling), compiling,
// or instantiating filename fails somewhere along the way, as assert_invalid/
// assert_unlinkable/binary-form assert_malformed require.
func requireInstantiationError(t *testing.T, ctx context.Context, r *vela.Runtime, fsys afero.Fs, dir, filename string) {
	encoded, err := encodeFile(fsys, dir, filename)
	if err != nil {
		return // failed at the text-assembly or read stage: satisfies the assertion
	}

	compiled, err := r.CompileModule(ctx, encoded)
	if err != nil {
		return
	}

	_, err = r.InstantiateModule(ctx, compiled, vela.NewModuleConfig())
	require.Error(t, err)
}
