package argon2wasm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
)

// Handle describes a byte range in linear memory. The zero Handle is the
// empty handle: no address, no length, nothing to free.
type Handle struct {
	Addr uint32
	Len  uint32
}

// EmptyHandle owns nothing and is never released.
var EmptyHandle = Handle{}

// IsEmpty reports whether h is the empty handle.
func (h Handle) IsEmpty() bool {
	return h.Len == 0
}

func (h Handle) String() string {
	if h.IsEmpty() {
		return "handle(empty)"
	}
	return fmt.Sprintf("handle(%#x+%d)", h.Addr, h.Len)
}

// Allocator wraps the module's malloc and free exports.
type Allocator struct {
	malloc api.Function
	free   api.Function
}

// NewAllocator binds an allocator to the given exports.
func NewAllocator(malloc, free api.Function) *Allocator {
	return &Allocator{malloc: malloc, free: free}
}

// Alloc reserves length bytes. A zero length yields EmptyHandle without
// calling the module.
func (a *Allocator) Alloc(ctx context.Context, length uint32) (Handle, error) {
	if length == 0 {
		return EmptyHandle, nil
	}
	results, err := a.malloc.Call(ctx, api.EncodeU32(length))
	if err != nil {
		return EmptyHandle, transportError(ExportMalloc, fmt.Sprintf("allocate %d bytes", length), err)
	}
	addr := api.DecodeU32(results[0])
	if addr == 0 {
		return EmptyHandle, memoryError(ExportMalloc, fmt.Sprintf("malloc returned null for %d bytes", length), nil)
	}
	return Handle{Addr: addr, Len: length}, nil
}

// Free releases h. Freeing EmptyHandle is a no-op that never calls the
// module. Each non-empty handle must be freed exactly once.
func (a *Allocator) Free(ctx context.Context, h Handle) error {
	if h.IsEmpty() {
		return nil
	}
	if _, err := a.free.Call(ctx, api.EncodeU32(h.Addr)); err != nil {
		return &Error{Kind: KindCleanup, Op: ExportFree, Detail: h.String(), Cause: err}
	}
	return nil
}

// Codec moves host values in and out of linear memory.
type Codec struct {
	mem    api.Memory
	alloc  *Allocator
	strlen api.Function
}

// NewCodec returns a codec over mem using alloc for storage. strlen may be
// nil if CString is never used.
func NewCodec(mem api.Memory, alloc *Allocator, strlen api.Function) *Codec {
	return &Codec{mem: mem, alloc: alloc, strlen: strlen}
}

// Allocator returns the allocator backing the codec.
func (c *Codec) Allocator() *Allocator {
	return c.alloc
}

// StoreBytes copies b into a fresh allocation. Empty input yields EmptyHandle.
func (c *Codec) StoreBytes(ctx context.Context, b []byte) (Handle, error) {
	if len(b) == 0 {
		return EmptyHandle, nil
	}
	h, err := c.alloc.Alloc(ctx, uint32(len(b)))
	if err != nil {
		return EmptyHandle, err
	}
	if !c.mem.Write(h.Addr, b) {
		_ = c.alloc.Free(ctx, h)
		return EmptyHandle, memoryError("store", fmt.Sprintf("%s outside memory of %d bytes", h, c.mem.Size()), nil)
	}
	return h, nil
}

// StoreString stores s as UTF-8, appending a NUL byte when nullTerminate is
// set. Callees reading a `const char *` need the terminator; callees taking
// an explicit length do not.
func (c *Codec) StoreString(ctx context.Context, s string, nullTerminate bool) (Handle, error) {
	b := []byte(s)
	if nullTerminate {
		b = append(b, 0)
	}
	return c.StoreBytes(ctx, b)
}

// StoreInput stores in without a terminator. An absent Input yields
// EmptyHandle.
func (c *Codec) StoreInput(ctx context.Context, in Input) (Handle, error) {
	switch in.kind {
	case inputText:
		return c.StoreString(ctx, in.text, false)
	case inputBytes:
		return c.StoreBytes(ctx, in.raw)
	default:
		return EmptyHandle, nil
	}
}

// LoadBytes copies the bytes described by h out of memory. It returns nil
// for EmptyHandle.
func (c *Codec) LoadBytes(h Handle) ([]byte, error) {
	if h.IsEmpty() {
		return nil, nil
	}
	view, ok := c.mem.Read(h.Addr, h.Len)
	if !ok {
		return nil, memoryError("load", fmt.Sprintf("%s outside memory of %d bytes", h, c.mem.Size()), nil)
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// LoadString loads h and decodes it as UTF-8, replacing invalid sequences
// with U+FFFD.
func (c *Codec) LoadString(h Handle) (string, error) {
	b, err := c.LoadBytes(h)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

// CString resolves the NUL-terminated string at addr using the module's
// strlen. The returned handle is not owned and must not be freed.
func (c *Codec) CString(ctx context.Context, addr uint32) (string, error) {
	if addr == 0 {
		return "", memoryError(ExportStrlen, "null string pointer", nil)
	}
	results, err := c.strlen.Call(ctx, api.EncodeU32(addr))
	if err != nil {
		return "", transportError(ExportStrlen, "", err)
	}
	return c.LoadString(Handle{Addr: addr, Len: api.DecodeU32(results[0])})
}

// ByteAt reads a single byte.
func (c *Codec) ByteAt(addr uint32) (byte, error) {
	b, ok := c.mem.ReadByte(addr)
	if !ok {
		return 0, memoryError("load", fmt.Sprintf("address %#x outside memory of %d bytes", addr, c.mem.Size()), nil)
	}
	return b, nil
}

// Scope owns the handles created through it and releases them together.
// Use it with defer so every exit path frees what was stored.
type Scope struct {
	codec *Codec
	owned []Handle
}

// NewScope returns an empty scope over c.
func (c *Codec) NewScope() *Scope {
	return &Scope{codec: c}
}

func (s *Scope) own(h Handle, err error) (Handle, error) {
	if err != nil {
		return EmptyHandle, err
	}
	if !h.IsEmpty() {
		s.owned = append(s.owned, h)
	}
	return h, nil
}

// Alloc allocates length bytes owned by the scope.
func (s *Scope) Alloc(ctx context.Context, length uint32) (Handle, error) {
	return s.own(s.codec.alloc.Alloc(ctx, length))
}

// StoreBytes stores b in a region owned by the scope.
func (s *Scope) StoreBytes(ctx context.Context, b []byte) (Handle, error) {
	return s.own(s.codec.StoreBytes(ctx, b))
}

// StoreString stores str in a region owned by the scope.
func (s *Scope) StoreString(ctx context.Context, str string, nullTerminate bool) (Handle, error) {
	return s.own(s.codec.StoreString(ctx, str, nullTerminate))
}

// StoreInput stores in in a region owned by the scope.
func (s *Scope) StoreInput(ctx context.Context, in Input) (Handle, error) {
	return s.own(s.codec.StoreInput(ctx, in))
}

// Owned returns the number of handles awaiting release.
func (s *Scope) Owned() int {
	return len(s.owned)
}

// Release frees every owned handle in acquisition order. A failing free
// does not stop the others; failures are combined. Release is idempotent.
func (s *Scope) Release(ctx context.Context) error {
	var err error
	for _, h := range s.owned {
		err = multierr.Append(err, s.codec.alloc.Free(ctx, h))
	}
	s.owned = nil
	return err
}
