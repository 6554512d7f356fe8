package argon2wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/glihm/go-argon2-wasm/internal/wasmbin"
)

// HostModuleFunc registers an additional host module in the runtime of a
// new instance, before the Argon2 module is linked.
type HostModuleFunc func(ctx context.Context, r wazero.Runtime) error

// Loader instantiates Argon2 modules sized for a single operation.
type Loader struct {
	source      Source
	cache       wazero.CompilationCache
	ownsCache   bool
	hostModules []HostModuleFunc
	log         *zap.Logger
}

// NewLoader returns a loader fetching the module through a memoized src.
// A nil cache creates one owned (and closed) by the loader.
func NewLoader(src Source, cache wazero.CompilationCache, log *zap.Logger, hostModules ...HostModuleFunc) *Loader {
	l := &Loader{
		source:      Memoize(src),
		cache:       cache,
		hostModules: hostModules,
		log:         log,
	}
	if l.cache == nil {
		l.cache = wazero.NewCompilationCache()
		l.ownsCache = true
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l
}

// Close releases the compilation cache if the loader created it.
func (l *Loader) Close(ctx context.Context) error {
	if l.ownsCache {
		return l.cache.Close(ctx)
	}
	return nil
}

// Instance is one Argon2 module instantiation with its own runtime and
// linear memory. It serves exactly one operation.
type Instance struct {
	runtime wazero.Runtime
	mod     api.Module
	codec   *Codec
	pages   uint32

	hashFull     api.Function
	verifyFull   api.Function
	encodedLen   api.Function
	errorMessage api.Function
}

// Codec returns the codec bound to the instance's memory and allocator.
func (i *Instance) Codec() *Codec {
	return i.codec
}

// Pages returns the number of pages the memory was created with.
func (i *Instance) Pages() uint32 {
	return i.pages
}

// Module returns the instantiated Argon2 module.
func (i *Instance) Module() api.Module {
	return i.mod
}

// Close tears down the runtime, including the memory and every module in it.
func (i *Instance) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}

// Instantiate creates an instance whose imported memory has at least pages
// pages. Every failure is a transport error and leaves nothing behind.
func (l *Loader) Instantiate(ctx context.Context, pages uint32) (*Instance, error) {
	code, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, transportError("fetch module", "", err)
	}

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCompilationCache(l.cache))
	inst, err := l.link(ctx, r, code, pages)
	if err != nil {
		if cerr := r.Close(ctx); cerr != nil {
			l.log.Warn("close runtime after failed instantiation", zap.Error(cerr))
		}
		return nil, err
	}
	return inst, nil
}

func (l *Loader) link(ctx context.Context, r wazero.Runtime, code []byte, pages uint32) (*Instance, error) {
	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		return nil, transportError("compile module", "", err)
	}

	var mem api.Memory
	if def := importedMemory(compiled); def != nil {
		limits := wasmbin.Limits{Min: pages}
		if def.Min() > limits.Min {
			limits.Min = def.Min()
		}
		if maxPages, ok := def.Max(); ok {
			if maxPages < limits.Min {
				return nil, transportError("link memory", fmt.Sprintf("module caps memory at %d pages, %d required", maxPages, limits.Min), nil)
			}
			limits.Max, limits.HasMax = maxPages, true
		}

		env, err := r.InstantiateWithConfig(ctx,
			wasmbin.MemoryModule(ImportMemory, limits),
			wazero.NewModuleConfig().WithName(ImportModuleEnv))
		if err != nil {
			return nil, transportError("link memory", fmt.Sprintf("%d pages", limits.Min), err)
		}
		mem = env.ExportedMemory(ImportMemory)
		pages = limits.Min
	}

	if err := instantiateStubs(ctx, r, compiled); err != nil {
		return nil, transportError("link stubs", "", err)
	}

	for _, fn := range l.hostModules {
		if err := fn(ctx, r); err != nil {
			return nil, transportError("link host module", "", err)
		}
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(ModuleFilename))
	if err != nil {
		return nil, transportError("instantiate module", "", err)
	}

	// Call _initialize if present
	if initFn := mod.ExportedFunction(ExportInitialize); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			return nil, transportError(ExportInitialize, "", err)
		}
	}

	if mem == nil {
		mem = mod.Memory()
		if mem == nil {
			return nil, transportError("link memory", "module has no memory", nil)
		}
		pages = mem.Size() / PageSize
		l.log.Warn("argon2 module defines its own memory; instance is not sized for the operation",
			zap.Uint32("pages", pages))
	}

	exports := map[string]api.Function{}
	for _, name := range []string{
		ExportMalloc, ExportFree, ExportStrlen,
		ExportHashFull, ExportVerifyFull, ExportEncodedLen, ExportErrorMessage,
	} {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return nil, transportError("bind exports", "missing export: "+name, nil)
		}
		exports[name] = fn
	}

	alloc := NewAllocator(exports[ExportMalloc], exports[ExportFree])
	return &Instance{
		runtime:      r,
		mod:          mod,
		codec:        NewCodec(mem, alloc, exports[ExportStrlen]),
		pages:        pages,
		hashFull:     exports[ExportHashFull],
		verifyFull:   exports[ExportVerifyFull],
		encodedLen:   exports[ExportEncodedLen],
		errorMessage: exports[ExportErrorMessage],
	}, nil
}

func importedMemory(compiled wazero.CompiledModule) api.MemoryDefinition {
	for _, def := range compiled.ImportedMemories() {
		if module, name, ok := def.Import(); ok && module == ImportModuleEnv && name == ImportMemory {
			return def
		}
	}
	return nil
}

// instantiateStubs links no-op versions of the WASI fd functions the C
// runtime references. Stubs take the signature the module imports and
// return zeros.
func instantiateStubs(ctx context.Context, r wazero.Runtime, compiled wazero.CompiledModule) error {
	var defs []api.FunctionDefinition
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module == ImportModuleWASI && stubbedImports[name] {
			defs = append(defs, def)
		}
	}
	if len(defs) == 0 {
		return nil
	}

	b := r.NewHostModuleBuilder(ImportModuleWASI)
	for _, def := range defs {
		_, name, _ := def.Import()
		results := len(def.ResultTypes())
		b = b.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(func(_ context.Context, stack []uint64) {
				for i := 0; i < results; i++ {
					stack[i] = 0
				}
			}), def.ParamTypes(), def.ResultTypes()).
			WithName(name).
			Export(name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate %s stubs: %w", ImportModuleWASI, err)
	}
	return nil
}
