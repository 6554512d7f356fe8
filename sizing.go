package argon2wasm

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// PageSize is the WebAssembly page size, 2^16 bytes.
	PageSize = 65536
	// MaxPages is the wasm32 page limit (4 GiB).
	MaxPages = 65536

	// DefaultOverheadKiB is the memory reserved for the module's own data,
	// stack and heap bookkeeping on top of the Argon2 memory cost.
	DefaultOverheadKiB = 64

	pageSizeInBit = 16
	kib           = 1024
)

// PagesForMemoryCost returns the number of pages needed to run an Argon2
// computation with the given memory cost, both figures in KiB.
func PagesForMemoryCost(costKiB, overheadKiB uint32) (uint32, error) {
	size := (uint64(overheadKiB) + uint64(costKiB)) * kib
	if size < PageSize {
		return 0, &Error{
			Kind:   KindSizing,
			Op:     "size memory",
			Detail: fmt.Sprintf("%d bytes is below the %d byte page size", size, PageSize),
		}
	}

	pages := (size + PageSize - 1) >> pageSizeInBit
	if pages > MaxPages {
		return 0, &Error{
			Kind:   KindSizing,
			Op:     "size memory",
			Detail: fmt.Sprintf("%d pages exceeds the %d page limit", pages, MaxPages),
		}
	}
	return uint32(pages), nil
}

// MemoryCostFromEncoded extracts m (KiB) from an encoded hash such as
//
//	$argon2i$v=19$m=65536,t=2,p=4$c29tZXNhbHQ$RdescudvJCsgt3ub+b+dWRWJTmaaJObG
//
// It returns 0 when the parameter is missing or not a valid uint32.
func MemoryCostFromEncoded(encoded string) uint32 {
	for _, segment := range strings.Split(encoded, "$") {
		for _, kv := range strings.Split(segment, ",") {
			value, ok := strings.CutPrefix(kv, "m=")
			if !ok {
				continue
			}
			cost, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return 0
			}
			return uint32(cost)
		}
	}
	return 0
}
