package argon2wasm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := transportError(ExportHashFull, "", errors.New("unreachable"))
	if !errors.Is(err, ErrTransport) {
		t.Error("transport error should match ErrTransport")
	}
	if errors.Is(err, ErrNative) {
		t.Error("transport error should not match ErrNative")
	}

	wrapped := fmt.Errorf("hashing: %w", err)
	if !errors.Is(wrapped, ErrTransport) {
		t.Error("wrapped error should still match its kind")
	}

	combined := multierr.Combine(
		&Error{Kind: KindCleanup, Op: ExportFree},
		&Error{Kind: KindCleanup, Op: "close instance"},
	)
	if !errors.Is(combined, ErrCleanup) {
		t.Error("combined cleanup errors should match ErrCleanup")
	}
}

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{
			&Error{Kind: KindParse, Op: "verify", Detail: "no memory cost"},
			"[parse] verify: no memory cost",
		},
		{
			nativeError("hash", StatusSaltTooShort, "Salt is too short"),
			"[native] hash: status -6 (ARGON2_SALT_TOO_SHORT): Salt is too short",
		},
		{
			transportError("fetch module", "", errors.New("connection refused")),
			"[transport] fetch module (caused by: connection refused)",
		},
		{
			&Error{Kind: KindSizing},
			"[sizing]",
		},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := memoryError("load", "", cause)
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
}

func TestAsError(t *testing.T) {
	if asError(KindMemory, "op", nil) != nil {
		t.Error("nil should stay nil")
	}

	orig := transportError(ExportMalloc, "", nil)
	if got := asError(KindMemory, "store password", orig); got != orig {
		t.Errorf("existing *Error should pass through, got %v", got)
	}

	got := asError(KindMemory, "store password", errors.New("plain"))
	if got.Kind != KindMemory || got.Op != "store password" {
		t.Errorf("foreign error wrapped as %+v", got)
	}
	if !strings.Contains(got.Error(), "plain") {
		t.Errorf("cause missing: %v", got)
	}
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	if e.Is(ErrTransport) {
		t.Error("nil *Error should match nothing")
	}
	if e.Unwrap() != nil {
		t.Error("nil *Error should unwrap to nil")
	}
	if got := e.Error(); got != "<nil>" {
		t.Errorf("Error() = %q", got)
	}
	if errors.Is(&Error{Kind: KindParse}, e) {
		t.Error("nil target should match nothing")
	}
}
