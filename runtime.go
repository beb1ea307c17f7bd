// Package vela is a WebAssembly codec, assembler, and interpreter: it
// decodes %.wasm binaries, instantiates them against host-provided imports,
// and runs their exported functions with a tree-walking interpreter.
package vela

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/api"
	"github.com/vela-wasm/vela/internal/engine/interpreter"
	"github.com/vela-wasm/vela/internal/wasm"
	"github.com/vela-wasm/vela/internal/wasm/binary"
)

// CompiledModule is a decoded, not-yet-instantiated %.wasm binary. It may be
// instantiated multiple times, under different names, sharing the same
// parsed Module.
type CompiledModule interface {
	// Name is the module's declared name, if any (empty otherwise); always
	// overridden by ModuleConfig.WithName at instantiation time.
	Name() string
}

type compiledModule struct {
	module *wasm.Module
	name   string
}

func (c *compiledModule) Name() string { return c.name }

// Runtime holds compiled modules, instantiated modules, and the interpreter
// engine used to run them. A module imports from another by the name it (or
// its host builder) was instantiated under within the same Runtime.
type Runtime struct {
	cfg    *runtimeConfig
	engine *interpreter.Engine

	mu      sync.RWMutex
	modules map[string]*wasm.ModuleInstance
}

// NewRuntime returns a Runtime with the default RuntimeConfig.
func NewRuntime(ctx context.Context) *Runtime {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a Runtime configured per cfg.
func NewRuntimeWithConfig(ctx context.Context, cfg RuntimeConfig) *Runtime {
	rc := cfg.(*runtimeConfig)
	return &Runtime{
		cfg:     rc,
		engine:  interpreter.NewEngineWithCallStackCeiling(rc.callStackCeiling()),
		modules: map[string]*wasm.ModuleInstance{},
	}
}

// CompileModule decodes a %.wasm binary, without instantiating it.
func (r *Runtime) CompileModule(ctx context.Context, binaryBytes []byte) (CompiledModule, error) {
	m, err := binary.DecodeModule(binaryBytes)
	if err != nil {
		return nil, errors.Wrap(err, "compiling module")
	}
	name := ""
	if ns := m.NameSection(); ns != nil {
		name = ns.ModuleName
	}
	return &compiledModule{module: m, name: name}, nil
}

// InstantiateModule instantiates compiled, resolving its imports against
// modules already instantiated in this Runtime (by name), and registers the
// result under cfg's name so later modules may import from it in turn.
func (r *Runtime) InstantiateModule(ctx context.Context, compiled CompiledModule, cfg ModuleConfig) (api.Module, error) {
	cm := compiled.(*compiledModule)
	mc := cfg.(*moduleConfig)
	name := mc.name()
	if name == "" {
		name = cm.name
	}

	inst, err := wasm.Instantiate(cm.module, name, &namespaceImporter{r})
	if err != nil {
		return nil, errors.Wrapf(err, "instantiating module %q", name)
	}

	if err := r.register(name, inst); err != nil {
		return nil, err
	}

	mod := &moduleInstance{inst: inst, engine: r.engine}
	if idx, ok := cm.module.StartSection(); ok {
		start := inst.Functions[idx]
		if _, trap := r.engine.Call(ctx, start, nil); trap != nil {
			return nil, errors.Wrap(trap, "running start function")
		}
	}
	return mod, nil
}

// register records inst under name, failing if the name is already taken:
// every module in a Runtime's namespace must be unique, since imports are
// resolved by name alone.
func (r *Runtime) register(name string, inst *wasm.ModuleInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[name]; ok {
		return errors.Errorf("module %q is already instantiated in this runtime", name)
	}
	r.modules[name] = inst
	return nil
}

// Alias makes the module already instantiated under existingName additionally
// resolvable under alias, without re-instantiating it: later imports may
// target either name.
func (r *Runtime) Alias(existingName, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.modules[existingName]
	if !ok {
		return errors.Errorf("module %q not instantiated", existingName)
	}
	if _, ok := r.modules[alias]; ok {
		return errors.Errorf("module %q is already instantiated in this runtime", alias)
	}
	r.modules[alias] = inst
	return nil
}

// Module returns a previously instantiated module by name, or nil.
func (r *Runtime) Module(name string) api.Module {
	r.mu.RLock()
	inst, ok := r.modules[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return &moduleInstance{inst: inst, engine: r.engine}
}

// Close releases every module instantiated in this Runtime. The interpreter
// holds no OS resources of its own, so this currently never errors; it
// exists so callers can defer Close uniformly regardless of what a given
// host module (e.g. one backed by open files) needs to release.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = map[string]*wasm.ModuleInstance{}
	return nil
}

// namespaceImporter resolves an import by looking up its declaring module
// name in the owning Runtime's namespace of already-instantiated modules.
type namespaceImporter struct {
	r *Runtime
}

func (n *namespaceImporter) lookup(module, name string) (*wasm.ModuleInstance, error) {
	n.r.mu.RLock()
	defer n.r.mu.RUnlock()
	inst, ok := n.r.modules[module]
	if !ok {
		return nil, errors.Errorf("module %q not instantiated", module)
	}
	return inst, nil
}

func (n *namespaceImporter) ImportFunction(module, name string, sig *wasm.FunctionType) (*wasm.FunctionInstance, error) {
	inst, err := n.lookup(module, name)
	if err != nil {
		return nil, err
	}
	exp, err := inst.GetExport(name, wasm.ExternalKindFunction)
	if err != nil {
		return nil, err
	}
	if !exp.Function.Type.Equal(sig) {
		return nil, errors.Errorf("import %s.%s: signature mismatch: want %s, have %s", module, name, sig, exp.Function.Type)
	}
	return exp.Function, nil
}

func (n *namespaceImporter) ImportGlobal(module, name string, g *wasm.Global) (*wasm.GlobalInstance, error) {
	inst, err := n.lookup(module, name)
	if err != nil {
		return nil, err
	}
	exp, err := inst.GetExport(name, wasm.ExternalKindGlobal)
	if err != nil {
		return nil, err
	}
	if exp.Global.Type.Type != g.Type || exp.Global.Type.Mutable != g.Mutable {
		return nil, errors.Errorf("import %s.%s: global type mismatch", module, name)
	}
	return exp.Global, nil
}

func (n *namespaceImporter) ImportMemory(module, name string, mem *wasm.Memory) (*wasm.MemoryInstance, error) {
	inst, err := n.lookup(module, name)
	if err != nil {
		return nil, err
	}
	exp, err := inst.GetExport(name, wasm.ExternalKindMemory)
	if err != nil {
		return nil, err
	}
	return exp.Memory, nil
}

func (n *namespaceImporter) ImportTable(module, name string, tbl *wasm.Table) (*wasm.TableInstance, error) {
	inst, err := n.lookup(module, name)
	if err != nil {
		return nil, err
	}
	exp, err := inst.GetExport(name, wasm.ExternalKindTable)
	if err != nil {
		return nil, err
	}
	return exp.Table, nil
}
