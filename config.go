package vela

// RuntimeConfig configures a Runtime. The zero value returned by
// NewRuntimeConfig is ready to use; every With* method returns a new,
// independently mutable config, never modifying the receiver, so that a
// base config can be shared and specialized by multiple callers.
type RuntimeConfig interface {
	// WithCallStackCeiling overrides the maximum nested call depth the
	// interpreter will allow before trapping with TrapCodeCallStackExhausted.
	WithCallStackCeiling(ceiling int) RuntimeConfig

	callStackCeiling() int
}

type runtimeConfig struct {
	ceiling int
}

// NewRuntimeConfig returns the default configuration: a single
// tree-walking interpreter engine (vela ships no JIT engine).
func NewRuntimeConfig() RuntimeConfig {
	return &runtimeConfig{ceiling: 2000}
}

func (c *runtimeConfig) clone() *runtimeConfig {
	ret := *c
	return &ret
}

func (c *runtimeConfig) WithCallStackCeiling(ceiling int) RuntimeConfig {
	ret := c.clone()
	ret.ceiling = ceiling
	return ret
}

func (c *runtimeConfig) callStackCeiling() int { return c.ceiling }

// ModuleConfig configures the instantiation of a single module. The zero
// value returned by NewModuleConfig is ready to use; every With* method
// returns a new, independently mutable config.
type ModuleConfig interface {
	// WithName overrides the name the module is registered and instantiated
	// under, which is also the name other modules use to import from it.
	// Defaults to the name compiled into the binary, if any.
	WithName(name string) ModuleConfig

	name() string
}

type moduleConfig struct {
	moduleName string
}

// NewModuleConfig returns a ModuleConfig with no overrides.
func NewModuleConfig() ModuleConfig {
	return &moduleConfig{}
}

func (c *moduleConfig) clone() *moduleConfig {
	ret := *c
	return &ret
}

func (c *moduleConfig) WithName(name string) ModuleConfig {
	ret := c.clone()
	ret.moduleName = name
	return ret
}

func (c *moduleConfig) name() string { return c.moduleName }
