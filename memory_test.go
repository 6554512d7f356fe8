package argon2wasm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/glihm/go-argon2-wasm/internal/argon2test"
)

func newTestInstance(t *testing.T, fx *argon2test.Fixture) *Instance {
	t.Helper()
	ctx := context.Background()

	l := NewLoader(BytesSource(argon2test.Module()), nil, zaptest.NewLogger(t), fx.HostModule)
	t.Cleanup(func() { l.Close(ctx) })

	inst, err := l.Instantiate(ctx, 2)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	t.Cleanup(func() { inst.Close(ctx) })
	return inst
}

func TestCodecRoundTrip(t *testing.T) {
	ctx := context.Background()
	fx := argon2test.New()
	codec := newTestInstance(t, fx).Codec()

	tests := []struct {
		name string
		in   string
	}{
		{"ascii", "password"},
		{"latin", "pässwörd"},
		{"cjk", "密码"},
		{"emoji", "🔑 key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := codec.StoreString(ctx, tt.in, false)
			if err != nil {
				t.Fatalf("StoreString failed: %v", err)
			}
			defer codec.Allocator().Free(ctx, h)

			if int(h.Len) != len(tt.in) {
				t.Errorf("len = %d, want %d UTF-8 bytes", h.Len, len(tt.in))
			}
			got, err := codec.LoadString(h)
			if err != nil {
				t.Fatalf("LoadString failed: %v", err)
			}
			if got != tt.in {
				t.Errorf("got %q, want %q", got, tt.in)
			}

			term, err := codec.StoreString(ctx, tt.in, true)
			if err != nil {
				t.Fatalf("StoreString failed: %v", err)
			}
			defer codec.Allocator().Free(ctx, term)
			term.Len--
			if got, _ := codec.LoadString(term); got != tt.in {
				t.Errorf("terminated: got %q, want %q", got, tt.in)
			}
		})
	}
}

func TestCodecNullTerminated(t *testing.T) {
	ctx := context.Background()
	codec := newTestInstance(t, argon2test.New()).Codec()

	h, err := codec.StoreString(ctx, "héllo", true)
	if err != nil {
		t.Fatalf("StoreString failed: %v", err)
	}
	if h.Len != uint32(len("héllo"))+1 {
		t.Errorf("len = %d, want terminator included", h.Len)
	}
	last, err := codec.ByteAt(h.Addr + h.Len - 1)
	if err != nil || last != 0 {
		t.Errorf("last byte = %d, %v; want NUL", last, err)
	}

	s, err := codec.CString(ctx, h.Addr)
	if err != nil {
		t.Fatalf("CString failed: %v", err)
	}
	if s != "héllo" {
		t.Errorf("CString = %q", s)
	}
}

func TestCodecInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	codec := newTestInstance(t, argon2test.New()).Codec()

	h, err := codec.StoreBytes(ctx, []byte{'a', 0xff, 'b'})
	if err != nil {
		t.Fatalf("StoreBytes failed: %v", err)
	}
	s, err := codec.LoadString(h)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	if s != "a�b" {
		t.Errorf("got %q, want replacement character", s)
	}
}

func TestCodecEmpty(t *testing.T) {
	ctx := context.Background()
	fx := argon2test.New()
	codec := newTestInstance(t, fx).Codec()
	st := fx.Last()

	for _, in := range []Input{{}, Text(""), Bytes(nil), Bytes([]byte{})} {
		h, err := codec.StoreInput(ctx, in)
		if err != nil {
			t.Fatalf("StoreInput failed: %v", err)
		}
		if h != EmptyHandle {
			t.Errorf("StoreInput(%+v) = %s, want empty handle", in, h)
		}
	}
	b, err := codec.LoadBytes(EmptyHandle)
	if err != nil || b != nil {
		t.Errorf("LoadBytes(empty) = %v, %v", b, err)
	}
	if err := codec.Allocator().Free(ctx, EmptyHandle); err != nil {
		t.Errorf("Free(empty) failed: %v", err)
	}

	if st.Mallocs() != 0 || st.Frees() != 0 {
		t.Errorf("empty values reached the module: mallocs=%d frees=%d", st.Mallocs(), st.Frees())
	}
}

func TestCodecOutOfRange(t *testing.T) {
	codec := newTestInstance(t, argon2test.New()).Codec()

	_, err := codec.LoadBytes(Handle{Addr: 2 * PageSize, Len: 8})
	if !errors.Is(err, ErrMemory) {
		t.Errorf("expected memory error, got %v", err)
	}
	_, err = codec.ByteAt(2 * PageSize)
	if !errors.Is(err, ErrMemory) {
		t.Errorf("expected memory error, got %v", err)
	}
}

func TestAllocatorNull(t *testing.T) {
	ctx := context.Background()
	codec := newTestInstance(t, argon2test.New()).Codec()

	_, err := codec.Allocator().Alloc(ctx, 1<<30)
	if !errors.Is(err, ErrMemory) {
		t.Errorf("expected memory error for null malloc, got %v", err)
	}
}

func TestAllocatorDoubleFree(t *testing.T) {
	ctx := context.Background()
	codec := newTestInstance(t, argon2test.New()).Codec()
	alloc := codec.Allocator()

	h, err := alloc.Alloc(ctx, 32)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if err := alloc.Free(ctx, h); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := alloc.Free(ctx, h); !errors.Is(err, ErrCleanup) {
		t.Errorf("expected cleanup error on double free, got %v", err)
	}
}

func TestScopeRelease(t *testing.T) {
	ctx := context.Background()
	fx := argon2test.New()
	codec := newTestInstance(t, fx).Codec()
	st := fx.Last()

	scope := codec.NewScope()
	if _, err := scope.StoreInput(ctx, Text("password")); err != nil {
		t.Fatalf("StoreInput failed: %v", err)
	}
	if _, err := scope.StoreInput(ctx, Input{}); err != nil {
		t.Fatalf("StoreInput failed: %v", err)
	}
	if _, err := scope.Alloc(ctx, 32); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if _, err := scope.StoreString(ctx, "x", true); err != nil {
		t.Fatalf("StoreString failed: %v", err)
	}

	if scope.Owned() != 3 {
		t.Errorf("owned = %d, want 3 (empty handle not owned)", scope.Owned())
	}
	if err := scope.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if st.Live() != 0 || st.Frees() != 3 {
		t.Errorf("live=%d frees=%d after release", st.Live(), st.Frees())
	}

	// A second release frees nothing.
	if err := scope.Release(ctx); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
	if st.Frees() != 3 {
		t.Errorf("second release freed again: frees=%d", st.Frees())
	}
}

func TestScopeReleaseContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	fx := argon2test.New()
	codec := newTestInstance(t, fx).Codec()

	scope := codec.NewScope()
	a, _ := scope.Alloc(ctx, 8)
	if _, err := scope.Alloc(ctx, 8); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	// Free a behind the scope's back so its release fails.
	if err := codec.Allocator().Free(ctx, a); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	err := scope.Release(ctx)
	if !errors.Is(err, ErrCleanup) {
		t.Fatalf("expected cleanup error, got %v", err)
	}
	if fx.Last().Live() != 0 {
		t.Errorf("second handle was not freed")
	}
}

func TestHandleString(t *testing.T) {
	if got := EmptyHandle.String(); got != "handle(empty)" {
		t.Errorf("EmptyHandle.String() = %q", got)
	}
	if got := (Handle{Addr: 0x10, Len: 4}).String(); got != "handle(0x10+4)" {
		t.Errorf("String() = %q", got)
	}
}
