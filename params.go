package argon2wasm

import (
	"fmt"
	"strings"
)

// Type is the Argon2 primitive, numbered as argon2_type in argon2.h.
type Type uint32

const (
	TypeD  Type = 0
	TypeI  Type = 1
	TypeID Type = 2
)

// String returns the type tag used in encoded hashes.
func (t Type) String() string {
	switch t {
	case TypeD:
		return "argon2d"
	case TypeI:
		return "argon2i"
	case TypeID:
		return "argon2id"
	default:
		return fmt.Sprintf("argon2(%d)", uint32(t))
	}
}

// ParseType accepts either the encoded tag ("argon2id") or the bare
// suffix ("id").
func ParseType(s string) (Type, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "argon2") {
	case "d":
		return TypeD, nil
	case "i":
		return TypeI, nil
	case "id":
		return TypeID, nil
	}
	return 0, fmt.Errorf("unknown argon2 type %q", s)
}

// Version is the Argon2 algorithm version.
type Version uint32

const (
	Version10 Version = 0x10
	Version13 Version = 0x13

	// DefaultVersion is passed to the module when Parameters.Version is zero.
	DefaultVersion = Version13
)

// Parameters configures a hash computation.
type Parameters struct {
	// Iterations is the number of passes over memory (t_cost).
	Iterations uint32
	// MemoryCostKiB is the memory cost in KiB (m_cost). It also determines
	// the size of the module instance's linear memory.
	MemoryCostKiB uint32
	// Parallelism is the number of lanes and threads.
	Parallelism uint32
	// HashLength is the raw hash length in bytes.
	HashLength uint32
	// Type is the Argon2 primitive.
	Type Type
	// Version defaults to DefaultVersion when zero.
	Version Version
}

// DefaultParameters returns t=2, m=64 MiB, p=4, 32-byte argon2id.
func DefaultParameters() Parameters {
	return Parameters{
		Iterations:    2,
		MemoryCostKiB: 64 * 1024,
		Parallelism:   4,
		HashLength:    32,
		Type:          TypeID,
		Version:       DefaultVersion,
	}
}

func (p Parameters) version() Version {
	if p.Version == 0 {
		return DefaultVersion
	}
	return p.Version
}
