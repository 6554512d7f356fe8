package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	argon2wasm "github.com/glihm/go-argon2-wasm"
)

func TestRunReturnsErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.wasm")

	tests := []struct {
		name  string
		args  []string
		check func(error) bool
	}{
		{
			name:  "unknown flag",
			args:  []string{"-bogus"},
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "unknown type",
			args:  []string{"-type", "argon2x"},
			check: func(err error) bool { return err != nil && strings.Contains(err.Error(), "argon2x") },
		},
		{
			name:  "missing module",
			args:  []string{"-wasm", missing, "-password", "pw"},
			check: func(err error) bool { return errors.Is(err, argon2wasm.ErrTransport) },
		},
		{
			name:  "missing module in verify mode",
			args:  []string{"-wasm", missing, "-verify", "$argon2id$v=19$m=64,t=1,p=1$c29tZXNhbHQ$aGFzaA", "-password", "pw"},
			check: func(err error) bool { return errors.Is(err, argon2wasm.ErrTransport) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			if !tt.check(err) {
				t.Errorf("run(%q) returned %v", tt.args, err)
			}
			if stdout.Len() != 0 {
				t.Errorf("unexpected output: %s", stdout.String())
			}
		})
	}
}
