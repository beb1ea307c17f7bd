package vela

import (
	"context"
	"reflect"

	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/api"
	"github.com/vela-wasm/vela/internal/wasm"
)

// HostFunctionBuilder defines a single host function of a HostModuleBuilder.
//
//	builder.NewFunctionBuilder().
//		WithFunc(func(ctx context.Context, x, y uint32) uint32 {
//			return x + y
//		}).
//		Export("add")
type HostFunctionBuilder interface {
	// WithGoFunction is the low-level form: fn reads its parameters off
	// stack (one slot per entry of params) and writes its results back to
	// the same slots.
	WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithGoModuleFunction is WithGoFunction plus access to the calling
	// module, most often to read or write its memory.
	WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithFunc derives the function's signature from fn's own Go type via
	// reflection. fn may optionally start with a context.Context parameter,
	// optionally followed by an api.Module parameter; every remaining
	// parameter and result must be one of uint32, int32, uint64, int64,
	// float32, float64.
	WithFunc(fn interface{}) HostFunctionBuilder

	// WithName sets the function's debug name (wasm.FunctionInstance's
	// DebugName), which defaults to the export name. Trap messages do not
	// include it.
	WithName(name string) HostFunctionBuilder

	// Export finishes this function and adds it to the owning
	// HostModuleBuilder under exportName.
	Export(exportName string) HostModuleBuilder
}

// HostModuleBuilder builds a host module: a named collection of Go-backed
// functions (and, optionally, a memory) that WebAssembly modules can import
// from once Instantiate registers it in the owning Runtime's namespace.
type HostModuleBuilder interface {
	// NewFunctionBuilder starts defining one more exported function.
	NewFunctionBuilder() HostFunctionBuilder

	// ExportMemory gives the host module an exported memory of minPages
	// initial size with no declared maximum, so it grows up to the
	// 65536-page limit of a 32-bit address space.
	ExportMemory(name string, minPages uint32) HostModuleBuilder

	// ExportGlobal gives the host module an exported global of the given
	// type, mutability and initial bit-pattern value.
	ExportGlobal(name string, vt api.ValueType, mutable bool, value uint64) HostModuleBuilder

	// ExportTable gives the host module an exported, all-nil function
	// table of the given initial size and optional maximum.
	ExportTable(name string, min uint32, max *uint32) HostModuleBuilder

	// Instantiate registers the host module in the owning Runtime's
	// namespace, so other modules may import from it by name.
	Instantiate(ctx context.Context) (api.Module, error)
}

type hostModuleBuilder struct {
	r          *Runtime
	name       string
	exports    map[string]*wasm.ExportInstance
	memoryName string
	memory     *wasm.MemoryInstance
}

func (r *Runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{r: r, name: moduleName, exports: map[string]*wasm.ExportInstance{}}
}

func (b *hostModuleBuilder) NewFunctionBuilder() HostFunctionBuilder {
	return &hostFunctionBuilder{module: b}
}

func (b *hostModuleBuilder) ExportMemory(name string, minPages uint32) HostModuleBuilder {
	b.memoryName = name
	b.memory = wasm.NewMemoryInstance(wasm.ResizableLimits{Initial: minPages})
	return b
}

func (b *hostModuleBuilder) ExportGlobal(name string, vt api.ValueType, mutable bool, value uint64) HostModuleBuilder {
	g := &wasm.GlobalInstance{Type: &wasm.Global{Type: wasm.ValueType(vt), Mutable: mutable}}
	g.Set(value)
	b.exports[name] = &wasm.ExportInstance{Type: wasm.ExternalKindGlobal, Global: g}
	return b
}

func (b *hostModuleBuilder) ExportTable(name string, min uint32, max *uint32) HostModuleBuilder {
	tbl := &wasm.TableInstance{
		Limits:    wasm.ResizableLimits{Initial: min, Maximum: max},
		Functions: make([]*wasm.FunctionInstance, min),
	}
	b.exports[name] = &wasm.ExportInstance{Type: wasm.ExternalKindTable, Table: tbl}
	return b
}

func (b *hostModuleBuilder) Instantiate(ctx context.Context) (api.Module, error) {
	inst := &wasm.ModuleInstance{Name: b.name, Exports: b.exports, Memory: b.memory}
	if b.memory != nil {
		inst.Exports[b.memoryName] = &wasm.ExportInstance{Type: wasm.ExternalKindMemory, Memory: b.memory}
	}
	if err := b.r.register(b.name, inst); err != nil {
		return nil, err
	}
	return &moduleInstance{inst: inst, engine: b.r.engine}, nil
}

type hostFunctionBuilder struct {
	module *hostModuleBuilder
	name   string
	fn     wasm.HostFunction
	params []wasm.ValueType
	result []wasm.ValueType
}

func toWasmTypes(in []api.ValueType) []wasm.ValueType {
	out := make([]wasm.ValueType, len(in))
	for i, t := range in {
		out[i] = wasm.ValueType(t)
	}
	return out
}

func (h *hostFunctionBuilder) WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.params, h.result = toWasmTypes(params), toWasmTypes(results)
	h.fn = stackHostFunction(h.params, h.result, func(ctx context.Context, _ *wasm.ModuleInstance, stack []uint64) {
		fn(ctx, stack)
	})
	return h
}

func (h *hostFunctionBuilder) WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.params, h.result = toWasmTypes(params), toWasmTypes(results)
	r := h.module.r
	h.fn = stackHostFunction(h.params, h.result, func(ctx context.Context, caller *wasm.ModuleInstance, stack []uint64) {
		fn(ctx, callerModule(r, caller), stack)
	})
	return h
}

func (h *hostFunctionBuilder) WithFunc(fn interface{}) HostFunctionBuilder {
	r := h.module.r
	goFn, params, results, err := reflectHostFunction(r, fn)
	if err != nil {
		panic(err) // matches the teacher's WithFunc, which panics on a malformed signature rather than threading an error through the builder chain.
	}
	h.params, h.result = params, results
	h.fn = stackHostFunction(params, results, goFn)
	return h
}

func (h *hostFunctionBuilder) WithName(name string) HostFunctionBuilder {
	h.name = name
	return h
}

func (h *hostFunctionBuilder) Export(exportName string) HostModuleBuilder {
	ft := &wasm.FunctionType{Params: h.params, Results: h.result}
	fn := &wasm.FunctionInstance{DebugName: h.name, Type: ft, Host: h.fn}
	if fn.DebugName == "" {
		fn.DebugName = exportName
	}
	h.module.exports[exportName] = &wasm.ExportInstance{Type: wasm.ExternalKindFunction, Function: fn}
	return h.module
}

// callerModule wraps caller (nil when a host function is invoked directly,
// rather than via a Wasm call/call_indirect) as an api.Module.
func callerModule(r *Runtime, caller *wasm.ModuleInstance) api.Module {
	if caller == nil {
		return nil
	}
	return &moduleInstance{inst: caller, engine: r.engine}
}

// stackHostFunction adapts a (ctx, caller, stack) callback, which reads
// params and writes results through a single shared []uint64, to
// wasm.HostFunction's typed args/results convention.
func stackHostFunction(params, results []wasm.ValueType, fn func(ctx context.Context, caller *wasm.ModuleInstance, stack []uint64)) wasm.HostFunction {
	return func(ctx context.Context, caller *wasm.ModuleInstance, args []interface{}) ([]interface{}, *wasm.Trap) {
		n := len(params)
		if len(results) > n {
			n = len(results)
		}
		stack := make([]uint64, n)
		for i, v := range args {
			stack[i] = valueToStack(v)
		}
		fn(ctx, caller, stack)
		out := make([]interface{}, len(results))
		for i, t := range results {
			out[i] = stackToValue(t, stack[i])
		}
		return out, nil
	}
}

func valueToStack(v interface{}) uint64 {
	switch x := v.(type) {
	case int32:
		return api.EncodeI32(x)
	case int64:
		return api.EncodeI64(x)
	case float32:
		return api.EncodeF32(x)
	case float64:
		return api.EncodeF64(x)
	}
	return 0
}

func stackToValue(t wasm.ValueType, raw uint64) interface{} {
	switch t {
	case wasm.ValueTypeI32:
		return api.DecodeI32(raw)
	case wasm.ValueTypeI64:
		return api.DecodeI64(raw)
	case wasm.ValueTypeF32:
		return api.DecodeF32(raw)
	case wasm.ValueTypeF64:
		return api.DecodeF64(raw)
	}
	return nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
)

// reflectHostFunction inspects fn's Go signature and returns a callback
// wired to its reflect.Value, plus the wasm.ValueTypes the adapter should
// marshal its stack slots as.
func reflectHostFunction(r *Runtime, fn interface{}) (func(ctx context.Context, caller *wasm.ModuleInstance, stack []uint64), []wasm.ValueType, []wasm.ValueType, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, nil, nil, errors.Errorf("WithFunc requires a function, got %s", ft.Kind())
	}

	in := 0
	passCtx := in < ft.NumIn() && ft.In(in) == contextType
	if passCtx {
		in++
	}
	passMod := in < ft.NumIn() && ft.In(in) == moduleType
	if passMod {
		in++
	}

	params := make([]wasm.ValueType, 0, ft.NumIn()-in)
	for i := in; i < ft.NumIn(); i++ {
		vt, err := goTypeToValueType(ft.In(i))
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "parameter %d", i)
		}
		params = append(params, vt)
	}

	results := make([]wasm.ValueType, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		vt, err := goTypeToValueType(ft.Out(i))
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "result %d", i)
		}
		results[i] = vt
	}

	callback := func(ctx context.Context, caller *wasm.ModuleInstance, stack []uint64) {
		args := make([]reflect.Value, 0, ft.NumIn())
		if passCtx {
			args = append(args, reflect.ValueOf(ctx))
		}
		if passMod {
			if mod := callerModule(r, caller); mod != nil {
				args = append(args, reflect.ValueOf(mod))
			} else {
				args = append(args, reflect.Zero(moduleType))
			}
		}
		for i, vt := range params {
			args = append(args, stackToGoValue(ft.In(in+i), vt, stack[i]))
		}
		out := fv.Call(args)
		for i, o := range out {
			stack[i] = goValueToStack(results[i], o)
		}
	}
	return callback, params, results, nil
}

func goTypeToValueType(t reflect.Type) (wasm.ValueType, error) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValueTypeI32, nil
	case reflect.Int64, reflect.Uint64:
		return wasm.ValueTypeI64, nil
	case reflect.Float32:
		return wasm.ValueTypeF32, nil
	case reflect.Float64:
		return wasm.ValueTypeF64, nil
	}
	return 0, errors.Errorf("unsupported host function type %s: must be uint32, int32, uint64, int64, float32 or float64", t)
}

func stackToGoValue(t reflect.Type, vt wasm.ValueType, raw uint64) reflect.Value {
	switch vt {
	case wasm.ValueTypeI32:
		if t.Kind() == reflect.Uint32 {
			return reflect.ValueOf(api.DecodeU32(raw)).Convert(t)
		}
		return reflect.ValueOf(api.DecodeI32(raw)).Convert(t)
	case wasm.ValueTypeI64:
		if t.Kind() == reflect.Uint64 {
			return reflect.ValueOf(raw).Convert(t)
		}
		return reflect.ValueOf(api.DecodeI64(raw)).Convert(t)
	case wasm.ValueTypeF32:
		return reflect.ValueOf(api.DecodeF32(raw))
	case wasm.ValueTypeF64:
		return reflect.ValueOf(api.DecodeF64(raw))
	}
	return reflect.Value{}
}

func goValueToStack(vt wasm.ValueType, v reflect.Value) uint64 {
	switch vt {
	case wasm.ValueTypeI32:
		if v.Kind() == reflect.Uint32 {
			return api.EncodeU32(uint32(v.Uint()))
		}
		return api.EncodeI32(int32(v.Int()))
	case wasm.ValueTypeI64:
		if v.Kind() == reflect.Uint64 {
			return v.Uint()
		}
		return api.EncodeI64(v.Int())
	case wasm.ValueTypeF32:
		return api.EncodeF32(float32(v.Float()))
	case wasm.ValueTypeF64:
		return api.EncodeF64(v.Float())
	}
	return 0
}
