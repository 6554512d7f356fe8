package argon2wasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Hasher hashes and verifies passwords with the Argon2 module. It holds no
// per-operation state: every call instantiates its own module, so a Hasher
// is safe for concurrent use.
type Hasher struct {
	loader      *Loader
	overheadKiB uint32
	log         *zap.Logger
}

// Config holds configuration for creating a new Hasher.
type Config struct {
	// Source provides the Argon2 module binary. Required.
	// It is wrapped with Memoize, so the binary is fetched once.
	Source Source
	// Logger receives debug and failure logs. Default: no-op.
	Logger *zap.Logger
	// OverheadKiB is added to the memory cost when sizing an instance.
	// Default: DefaultOverheadKiB.
	OverheadKiB uint32
	// CompilationCache is shared by the runtimes of every instance.
	// Default: a cache owned by the Hasher and released by Close.
	CompilationCache wazero.CompilationCache
	// HostModules are registered in each instance's runtime before the
	// Argon2 module is linked.
	HostModules []HostModuleFunc
}

// New creates a Hasher. Nothing is fetched or compiled until the first
// operation.
func New(cfg *Config) (*Hasher, error) {
	if cfg == nil || cfg.Source == nil {
		return nil, errors.New("argon2wasm: config requires a module source")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	overhead := cfg.OverheadKiB
	if overhead == 0 {
		overhead = DefaultOverheadKiB
	}

	return &Hasher{
		loader:      NewLoader(cfg.Source, cfg.CompilationCache, log, cfg.HostModules...),
		overheadKiB: overhead,
		log:         log,
	}, nil
}

// Close releases the compilation cache if the Hasher owns it.
func (h *Hasher) Close(ctx context.Context) error {
	return h.loader.Close(ctx)
}

// Option supplies an optional Argon2 input.
type Option func(*options)

type options struct {
	secret         Input
	associatedData Input
}

// WithSecret sets the Argon2 secret (pepper).
func WithSecret(secret Input) Option {
	return func(o *options) { o.secret = secret }
}

// WithAssociatedData sets the Argon2 associated data.
func WithAssociatedData(ad Input) Option {
	return func(o *options) { o.associatedData = ad }
}

func collectOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Hash computes the Argon2 hash of password with salt and params.
//
// Failures never escape as errors: they are reported in the outcome.
// Status carries the module's return code and Message its description.
func (h *Hasher) Hash(ctx context.Context, password, salt Input, params Parameters, opts ...Option) (out HashOutcome) {
	o := collectOptions(opts)

	inst, ok := h.instantiate(ctx, "hash", params.MemoryCostKiB, &out.Err)
	if !ok {
		return out
	}
	defer h.closeInstance(ctx, "hash", inst, &out.CleanupErr)

	codec := inst.Codec()
	scope := codec.NewScope()
	defer h.release(ctx, "hash", scope, &out.CleanupErr)

	pwd, err := scope.StoreInput(ctx, password)
	if err != nil {
		out.Err = asError(KindMemory, "store password", err)
		return out
	}
	saltH, err := scope.StoreInput(ctx, salt)
	if err != nil {
		out.Err = asError(KindMemory, "store salt", err)
		return out
	}

	results, err := inst.encodedLen.Call(ctx,
		api.EncodeU32(params.Iterations),
		api.EncodeU32(params.MemoryCostKiB),
		api.EncodeU32(params.Parallelism),
		api.EncodeU32(saltH.Len),
		api.EncodeU32(params.HashLength),
		api.EncodeU32(uint32(params.Type)),
	)
	if err != nil {
		out.Err = transportError(ExportEncodedLen, "", err)
		return out
	}
	encodedLen := api.DecodeU32(results[0])

	rawH, err := scope.Alloc(ctx, params.HashLength)
	if err != nil {
		out.Err = asError(KindMemory, "allocate hash", err)
		return out
	}
	encodedH, err := scope.Alloc(ctx, encodedLen)
	if err != nil {
		out.Err = asError(KindMemory, "allocate encoded hash", err)
		return out
	}

	secret, err := scope.StoreInput(ctx, o.secret)
	if err != nil {
		out.Err = asError(KindMemory, "store secret", err)
		return out
	}
	ad, err := scope.StoreInput(ctx, o.associatedData)
	if err != nil {
		out.Err = asError(KindMemory, "store associated data", err)
		return out
	}

	results, err = inst.hashFull.Call(ctx,
		api.EncodeU32(params.Iterations),
		api.EncodeU32(params.MemoryCostKiB),
		api.EncodeU32(params.Parallelism),
		api.EncodeU32(pwd.Addr), api.EncodeU32(pwd.Len),
		api.EncodeU32(saltH.Addr), api.EncodeU32(saltH.Len),
		api.EncodeU32(secret.Addr), api.EncodeU32(secret.Len),
		api.EncodeU32(ad.Addr), api.EncodeU32(ad.Len),
		api.EncodeU32(rawH.Addr), api.EncodeU32(params.HashLength),
		api.EncodeU32(encodedH.Addr), api.EncodeU32(encodedLen),
		api.EncodeU32(uint32(params.Type)),
		api.EncodeU32(uint32(params.version())),
	)
	if err != nil {
		out.Err = transportError(ExportHashFull, "", err)
		h.log.Error("argon2 hash trapped", zap.Error(err))
		return out
	}
	out.Status = Status(api.DecodeI32(results[0]))

	if out.Message, err = h.message(ctx, inst, out.Status); err != nil {
		out.Err = err
	}
	h.log.Debug("argon2 hash returned",
		zap.Stringer("status", out.Status),
		zap.Stringer("type", params.Type),
		zap.Uint32("m_cost", params.MemoryCostKiB))
	if out.Err != nil || out.Status != StatusOK {
		return out
	}

	raw, err := codec.LoadBytes(rawH)
	if err != nil {
		out.Err = asError(KindMemory, "load hash", err)
		return out
	}
	encoded, err := loadEncoded(codec, encodedH)
	if err != nil {
		out.Err = asError(KindMemory, "load encoded hash", err)
		return out
	}
	out.RawHash = raw
	out.EncodedHash = encoded
	return out
}

// Verify checks password against an encoded hash of the given type.
//
// The memory cost is read from the encoded hash to size the instance; an
// encoded hash without a usable m= parameter fails with a parse error
// before any module is instantiated.
func (h *Hasher) Verify(ctx context.Context, encoded string, password Input, typ Type, opts ...Option) (out VerifyOutcome) {
	o := collectOptions(opts)

	cost := MemoryCostFromEncoded(encoded)
	if cost == 0 {
		out.Err = &Error{Kind: KindParse, Op: "verify", Detail: "could not extract memory cost from encoded hash"}
		return out
	}

	inst, ok := h.instantiate(ctx, "verify", cost, &out.Err)
	if !ok {
		return out
	}
	defer h.closeInstance(ctx, "verify", inst, &out.CleanupErr)

	scope := inst.Codec().NewScope()
	defer h.release(ctx, "verify", scope, &out.CleanupErr)

	encodedH, err := scope.StoreString(ctx, encoded, true)
	if err != nil {
		out.Err = asError(KindMemory, "store encoded hash", err)
		return out
	}
	pwd, err := scope.StoreInput(ctx, password)
	if err != nil {
		out.Err = asError(KindMemory, "store password", err)
		return out
	}
	secret, err := scope.StoreInput(ctx, o.secret)
	if err != nil {
		out.Err = asError(KindMemory, "store secret", err)
		return out
	}
	ad, err := scope.StoreInput(ctx, o.associatedData)
	if err != nil {
		out.Err = asError(KindMemory, "store associated data", err)
		return out
	}

	results, err := inst.verifyFull.Call(ctx,
		api.EncodeU32(encodedH.Addr),
		api.EncodeU32(pwd.Addr), api.EncodeU32(pwd.Len),
		api.EncodeU32(secret.Addr), api.EncodeU32(secret.Len),
		api.EncodeU32(ad.Addr), api.EncodeU32(ad.Len),
		api.EncodeU32(uint32(typ)),
	)
	if err != nil {
		out.Err = transportError(ExportVerifyFull, "", err)
		h.log.Error("argon2 verify trapped", zap.Error(err))
		return out
	}
	out.Status = Status(api.DecodeI32(results[0]))

	if out.Message, err = h.message(ctx, inst, out.Status); err != nil {
		out.Err = err
	}
	h.log.Debug("argon2 verify returned",
		zap.Stringer("status", out.Status),
		zap.Stringer("type", typ),
		zap.Uint32("m_cost", cost))
	return out
}

// instantiate sizes and loads an instance, storing any failure in errp.
func (h *Hasher) instantiate(ctx context.Context, op string, costKiB uint32, errp *error) (*Instance, bool) {
	pages, err := PagesForMemoryCost(costKiB, h.overheadKiB)
	if err != nil {
		*errp = asError(KindSizing, op, err)
		return nil, false
	}

	inst, err := h.loader.Instantiate(ctx, pages)
	if err != nil {
		*errp = asError(KindTransport, op, err)
		h.log.Error("argon2 module unavailable", zap.String("op", op), zap.Error(err))
		return nil, false
	}
	h.log.Debug("argon2 module instantiated",
		zap.String("op", op),
		zap.Uint32("m_cost", costKiB),
		zap.Uint32("pages", inst.Pages()))
	return inst, true
}

// message resolves the module's description of status.
func (h *Hasher) message(ctx context.Context, inst *Instance, status Status) (string, error) {
	results, err := inst.errorMessage.Call(ctx, api.EncodeI32(int32(status)))
	if err != nil {
		return "", transportError(ExportErrorMessage, "", err)
	}
	msg, err := inst.Codec().CString(ctx, api.DecodeU32(results[0]))
	if err != nil {
		return "", asError(KindMemory, ExportErrorMessage, err)
	}
	return msg, nil
}

func (h *Hasher) release(ctx context.Context, op string, scope *Scope, errp *error) {
	if err := scope.Release(ctx); err != nil {
		h.log.Warn("argon2 handle release failed", zap.String("op", op), zap.Error(err))
		*errp = multierr.Append(*errp, err)
	}
}

func (h *Hasher) closeInstance(ctx context.Context, op string, inst *Instance, errp *error) {
	if err := inst.Close(ctx); err != nil {
		h.log.Warn("argon2 instance close failed", zap.String("op", op), zap.Error(err))
		*errp = multierr.Append(*errp, &Error{Kind: KindCleanup, Op: "close instance", Cause: err})
	}
}

// loadEncoded reads the encoded hash buffer without the NUL terminator the
// module writes as its last byte. A missing terminator means the buffer
// layout is not what argon2_encodedlen promised.
func loadEncoded(codec *Codec, h Handle) (string, error) {
	if h.IsEmpty() {
		return "", memoryError("load encoded hash", "empty output buffer", nil)
	}
	last, err := codec.ByteAt(h.Addr + h.Len - 1)
	if err != nil {
		return "", err
	}
	if last != 0 {
		return "", memoryError("load encoded hash", fmt.Sprintf("%s is not NUL-terminated", h), nil)
	}
	h.Len--
	return codec.LoadString(h)
}
