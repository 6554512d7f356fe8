package argon2wasm

import (
	"errors"
	"testing"
)

func TestPagesForMemoryCost(t *testing.T) {
	tests := []struct {
		name     string
		cost     uint32
		overhead uint32
		pages    uint32
		wantErr  bool
	}{
		{"overhead only", 0, DefaultOverheadKiB, 1, false},
		{"one extra KiB", 1, DefaultOverheadKiB, 2, false},
		{"64 MiB", 65536, DefaultOverheadKiB, 1025, false},
		{"exact page multiple", 64, DefaultOverheadKiB, 2, false},
		{"below one page", 10, 0, 0, true},
		{"largest fit", 4*1024*1024 - DefaultOverheadKiB, DefaultOverheadKiB, MaxPages, false},
		{"beyond wasm32", 4 * 1024 * 1024, DefaultOverheadKiB, 0, true},
		{"max uint32", ^uint32(0), DefaultOverheadKiB, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := PagesForMemoryCost(tt.cost, tt.overhead)
			if tt.wantErr {
				if !errors.Is(err, ErrSizing) {
					t.Fatalf("expected sizing error, got pages=%d err=%v", pages, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PagesForMemoryCost failed: %v", err)
			}
			if pages != tt.pages {
				t.Errorf("pages = %d, want %d", pages, tt.pages)
			}
		})
	}
}

func TestMemoryCostFromEncoded(t *testing.T) {
	tests := []struct {
		encoded string
		want    uint32
	}{
		{"$argon2i$v=19$m=65536,t=2,p=4$c29tZXNhbHQ$RdescudvJCsgt3ub+b+dWRWJTmaaJObG", 65536},
		{"$argon2id$v=19$t=3,m=4096,p=1$c2FsdHNhbHQ$aGFzaA", 4096},
		{"$m=65536,t=2,p=4$", 65536},
		{"$argon2i$v=19$t=2,p=4$c29tZXNhbHQ$aGFzaA", 0},
		{"$argon2i$v=19$m=,t=2,p=4$c29tZXNhbHQ$aGFzaA", 0},
		{"$argon2i$v=19$m=-1,t=2,p=4$c29tZXNhbHQ$aGFzaA", 0},
		{"$argon2i$v=19$m=12ab,t=2,p=4$c29tZXNhbHQ$aGFzaA", 0},
		{"$argon2i$v=19$m=4294967296,t=2,p=4$c29tZXNhbHQ$aGFzaA", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := MemoryCostFromEncoded(tt.encoded); got != tt.want {
			t.Errorf("MemoryCostFromEncoded(%q) = %d, want %d", tt.encoded, got, tt.want)
		}
	}
}
