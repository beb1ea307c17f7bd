// Package spectest provides the "spectest" host module imported by the
// WebAssembly reference test suite's .wast scripts: a handful of print
// functions, each writing its name and arguments to the configured writer,
// plus fixed globals, a table and a memory for scripts to import and
// exercise.
package spectest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vela-wasm/vela"
	"github.com/vela-wasm/vela/api"
)

// ModuleName is the import module name scripts reference: (import
// "spectest" "print_i32" (func ...)).
const ModuleName = "spectest"

// config customizes where spectest's print_* functions write to. The zero
// value writes to os.Stdout, matching a plain `vela interp --importer
// spectest` invocation.
type config struct {
	out io.Writer
}

// Option customizes Instantiate.
type Option func(*config)

// WithWriter redirects every print_* function's output to w instead of
// os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// Instantiate registers the spectest host module in r's namespace under
// ModuleName, so guest modules instantiated afterward in r can
// `(import "spectest" ...)` from it.
func Instantiate(ctx context.Context, r *vela.Runtime, opts ...Option) (api.Module, error) {
	cfg := &config{out: os.Stdout}
	for _, o := range opts {
		o(cfg)
	}

	maxTable := uint32(20)
	b := r.NewHostModuleBuilder(ModuleName).
		ExportMemory("memory", 1).
		ExportGlobal("global_i32", api.ValueTypeI32, false, api.EncodeI32(666)).
		ExportGlobal("global_i64", api.ValueTypeI64, false, api.EncodeI64(666)).
		ExportGlobal("global_f32", api.ValueTypeF32, false, api.EncodeF32(666)).
		ExportGlobal("global_f64", api.ValueTypeF64, false, api.EncodeF64(666)).
		ExportTable("table", 10, &maxTable)

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context) { fmt.Fprintln(cfg.out, "print") }).
		WithName("print").
		Export("print")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, v int32) { fmt.Fprintln(cfg.out, "print_i32", v) }).
		WithName("print_i32").
		Export("print_i32")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, v int64) { fmt.Fprintln(cfg.out, "print_i64", v) }).
		WithName("print_i64").
		Export("print_i64")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, v float32) { fmt.Fprintln(cfg.out, "print_f32", v) }).
		WithName("print_f32").
		Export("print_f32")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, v float64) { fmt.Fprintln(cfg.out, "print_f64", v) }).
		WithName("print_f64").
		Export("print_f64")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, a int32, v float32) { fmt.Fprintln(cfg.out, "print_i32_f32", a, v) }).
		WithName("print_i32_f32").
		Export("print_i32_f32")

	b = b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, a, v float64) { fmt.Fprintln(cfg.out, "print_f64_f64", a, v) }).
		WithName("print_f64_f64").
		Export("print_f64_f64")

	return b.Instantiate(ctx)
}
