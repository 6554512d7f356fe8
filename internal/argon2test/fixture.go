// Package argon2test provides a stand-in for the C Argon2 module.
//
// The module binary imports the same linear memory and WASI stubs as the
// real build and exports the same functions, but each export forwards to a
// Go host function. Digests come from golang.org/x/crypto/argon2, which
// covers argon2i and argon2id at version 0x13. Secret and associated data
// are recorded but not mixed into the digest.
//
// Allocations are tracked per instance so tests can check that every
// handle is freed exactly once.
package argon2test

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/crypto/argon2"

	"github.com/glihm/go-argon2-wasm/internal/wasmbin"
)

// HostModuleName is the import module the forwarders call into.
const HostModuleName = "argon2_fixture"

// Argon2 return codes used by the fixture.
const (
	codeOK             = 0
	codeOutputTooShort = -2
	codeSaltTooShort   = -6
	codeTimeTooSmall   = -12
	codeMemoryTooSmall = -14
	codeLanesTooFew    = -16
	codeLanesTooMany   = -17
	codeIncorrectType  = -26
	codeEncodingFail   = -31
	codeDecodingFail   = -32
	codeVerifyMismatch = -35
)

var messages = map[int32]string{
	0:   "OK",
	-1:  "Output pointer is NULL",
	-2:  "Output is too short",
	-3:  "Output is too long",
	-4:  "Password is too short",
	-5:  "Password is too long",
	-6:  "Salt is too short",
	-7:  "Salt is too long",
	-8:  "Associated data is too short",
	-9:  "Associated data is too long",
	-10: "Secret is too short",
	-11: "Secret is too long",
	-12: "Time cost is too small",
	-13: "Time cost is too large",
	-14: "Memory cost is too small",
	-15: "Memory cost is too large",
	-16: "Too few lanes",
	-17: "Too many lanes",
	-18: "Password pointer is NULL, but password length is not 0",
	-19: "Salt pointer is NULL, but salt length is not 0",
	-20: "Secret pointer is NULL, but secret length is not 0",
	-21: "Associated data pointer is NULL, but ad length is not 0",
	-22: "Memory allocation error",
	-23: "The free memory callback is NULL",
	-24: "The allocate memory callback is NULL",
	-25: "Argon2_Context context is NULL",
	-26: "There is no such version of Argon2",
	-27: "Output pointer mismatch",
	-28: "Not enough threads",
	-29: "Too many threads",
	-30: "Missing arguments",
	-31: "Encoding failed",
	-32: "Decoding failed",
	-33: "Threading failure",
	-34: "Some of encoded parameters are too long or too short",
	-35: "The password does not match the supplied hash",
}

var typeNames = map[uint32]string{0: "argon2d", 1: "argon2i", 2: "argon2id"}

const version13 = 0x13

// ModuleConfig shapes the generated binary.
type ModuleConfig struct {
	// MemoryMin and MemoryMax set the memory import limits. MemoryMax is
	// only declared when non-zero.
	MemoryMin uint32
	MemoryMax uint32
	// OmitExport drops one export, e.g. "argon2_verify_full".
	OmitExport string
	// ExtraWASIImport adds an import from wasi_snapshot_preview1 that the
	// loader does not stub, e.g. "proc_exit".
	ExtraWASIImport string
	// NoMemoryImport makes the module define its own one-page memory.
	NoMemoryImport bool
}

type forward struct {
	name    string
	typeIdx uint32
	params  int
}

// Type indices, in the order BuildModule declares them.
const (
	tI32toI32 uint32 = iota
	tFdSeek
	tFdWrite
	tI32toVoid
	tHashFull
	tVerifyFull
	tEncodedLen
)

var forwards = []forward{
	{"malloc", tI32toI32, 1},
	{"free", tI32toVoid, 1},
	{"strlen", tI32toI32, 1},
	{"argon2_hash_full", tHashFull, 17},
	{"argon2_verify_full", tVerifyFull, 8},
	{"argon2_encodedlen", tEncodedLen, 6},
	{"argon2_error_message", tI32toI32, 1},
}

func i32s(n int) []wasmbin.ValType {
	out := make([]wasmbin.ValType, n)
	for i := range out {
		out[i] = wasmbin.I32
	}
	return out
}

// Module returns the default fixture binary.
func Module() []byte {
	return BuildModule(ModuleConfig{MemoryMin: 1})
}

// BuildModule returns a fixture binary shaped by cfg.
func BuildModule(cfg ModuleConfig) []byte {
	m := &wasmbin.Module{
		Types: []wasmbin.FuncType{
			{Params: i32s(1), Results: i32s(1)},
			{Params: []wasmbin.ValType{wasmbin.I32, wasmbin.I64, wasmbin.I32, wasmbin.I32}, Results: i32s(1)},
			{Params: i32s(4), Results: i32s(1)},
			{Params: i32s(1)},
			{Params: i32s(17), Results: i32s(1)},
			{Params: i32s(8), Results: i32s(1)},
			{Params: i32s(6), Results: i32s(1)},
		},
	}

	if cfg.NoMemoryImport {
		m.Memories = []wasmbin.Limits{{Min: 1}}
	} else {
		limits := &wasmbin.Limits{Min: cfg.MemoryMin, Max: cfg.MemoryMax, HasMax: cfg.MemoryMax != 0}
		m.Imports = append(m.Imports, wasmbin.Import{Module: "env", Name: "memory", Memory: limits})
	}

	var funcImports uint32
	addFunc := func(module, name string, typeIdx uint32) {
		m.Imports = append(m.Imports, wasmbin.Import{Module: module, Name: name, TypeIdx: typeIdx})
		funcImports++
	}
	addFunc("wasi_snapshot_preview1", "fd_close", tI32toI32)
	addFunc("wasi_snapshot_preview1", "fd_seek", tFdSeek)
	addFunc("wasi_snapshot_preview1", "fd_write", tFdWrite)
	if cfg.ExtraWASIImport != "" {
		addFunc("wasi_snapshot_preview1", cfg.ExtraWASIImport, tI32toVoid)
	}

	first := funcImports
	for _, f := range forwards {
		addFunc(HostModuleName, f.name, f.typeIdx)
	}
	for i, f := range forwards {
		idx := funcImports + uint32(i)
		m.Funcs = append(m.Funcs, wasmbin.Func{TypeIdx: f.typeIdx, Body: wasmbin.ForwardBody(f.params, first+uint32(i))})
		if f.name == cfg.OmitExport {
			continue
		}
		m.Exports = append(m.Exports, wasmbin.Export{Name: f.name, Kind: wasmbin.KindFunc, Index: idx})
	}
	if cfg.NoMemoryImport {
		m.Exports = append(m.Exports, wasmbin.Export{Name: "memory", Kind: wasmbin.KindMemory, Index: 0})
	}
	return m.Encode()
}

// HashCall records the inputs of one argon2_hash_full call.
type HashCall struct {
	Password       []byte
	Salt           []byte
	Secret         []byte
	AssociatedData []byte
	Iterations     uint32
	MemoryCostKiB  uint32
	Parallelism    uint32
	HashLength     uint32
	EncodedLength  uint32
	Type           uint32
	Version        uint32
}

// VerifyCall records the inputs of one argon2_verify_full call.
type VerifyCall struct {
	Encoded        string
	Password       []byte
	Secret         []byte
	AssociatedData []byte
	Type           uint32
}

// Fixture serves the host side of fixture modules. Fault flags apply to
// instances created after they are set.
type Fixture struct {
	// TrapOnHash makes argon2_hash_full trap.
	TrapOnHash bool
	// TrapOnFree makes free trap.
	TrapOnFree bool
	// OmitTerminator overwrites the last byte of the encoded buffer.
	OmitTerminator bool

	mu        sync.Mutex
	instances []*State
}

// New returns a fixture with no faults.
func New() *Fixture {
	return &Fixture{}
}

// Instances returns the number of host modules registered so far.
func (f *Fixture) Instances() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.instances)
}

// Last returns the state of the most recently registered instance.
func (f *Fixture) Last() *State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.instances) == 0 {
		return nil
	}
	return f.instances[len(f.instances)-1]
}

// State is the host-side bookkeeping of one instance.
type State struct {
	trapOnHash     bool
	trapOnFree     bool
	omitTerminator bool

	mu         sync.Mutex
	next       uint32
	live       map[uint32]uint32
	messages   map[int32]uint32
	mallocs    int
	frees      int
	lastHash   *HashCall
	lastVerify *VerifyCall
}

// Mallocs returns the number of malloc calls.
func (s *State) Mallocs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mallocs
}

// Frees returns the number of successful free calls.
func (s *State) Frees() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frees
}

// Live returns the number of allocations not yet freed.
func (s *State) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// LastHash returns the inputs of the last hash call, or nil.
func (s *State) LastHash() *HashCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// LastVerify returns the inputs of the last verify call, or nil.
func (s *State) LastVerify() *VerifyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVerify
}

// HostModule registers the fixture host module in r. Its signature matches
// argon2wasm.HostModuleFunc.
func (f *Fixture) HostModule(ctx context.Context, r wazero.Runtime) error {
	s := &State{
		trapOnHash:     f.TrapOnHash,
		trapOnFree:     f.TrapOnFree,
		omitTerminator: f.OmitTerminator,
		next:           16,
		live:           map[uint32]uint32{},
		messages:       map[int32]uint32{},
	}
	f.mu.Lock()
	f.instances = append(f.instances, s)
	f.mu.Unlock()

	b := r.NewHostModuleBuilder(HostModuleName)
	add := func(name string, fn api.GoModuleFunc, params, results int) {
		p := make([]api.ValueType, params)
		for i := range p {
			p[i] = api.ValueTypeI32
		}
		res := make([]api.ValueType, results)
		for i := range res {
			res[i] = api.ValueTypeI32
		}
		b = b.NewFunctionBuilder().WithGoModuleFunction(fn, p, res).Export(name)
	}
	add("malloc", s.malloc, 1, 1)
	add("free", s.free, 1, 0)
	add("strlen", s.strlen, 1, 1)
	add("argon2_hash_full", s.hashFull, 17, 1)
	add("argon2_verify_full", s.verifyFull, 8, 1)
	add("argon2_encodedlen", s.encodedLen, 6, 1)
	add("argon2_error_message", s.errorMessage, 1, 1)

	_, err := b.Instantiate(ctx)
	return err
}

func (s *State) bump(mem api.Memory, size uint32) uint32 {
	addr := (s.next + 7) &^ 7
	if uint64(addr)+uint64(size) > uint64(mem.Size()) {
		return 0
	}
	s.next = addr + size
	return addr
}

func (s *State) malloc(_ context.Context, mod api.Module, stack []uint64) {
	size := api.DecodeU32(stack[0])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mallocs++
	addr := s.bump(mod.Memory(), size)
	if addr != 0 {
		s.live[addr] = size
	}
	stack[0] = api.EncodeU32(addr)
}

func (s *State) free(_ context.Context, _ api.Module, stack []uint64) {
	ptr := api.DecodeU32(stack[0])
	if s.trapOnFree {
		panic("free: injected trap")
	}
	if ptr == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[ptr]; !ok {
		panic(fmt.Sprintf("free: %#x is not a live allocation", ptr))
	}
	delete(s.live, ptr)
	s.frees++
}

func cstring(mem api.Memory, ptr uint32) (string, bool) {
	var b strings.Builder
	for addr := ptr; ; addr++ {
		c, ok := mem.ReadByte(addr)
		if !ok {
			return "", false
		}
		if c == 0 {
			return b.String(), true
		}
		b.WriteByte(c)
	}
}

func (s *State) strlen(_ context.Context, mod api.Module, stack []uint64) {
	str, ok := cstring(mod.Memory(), api.DecodeU32(stack[0]))
	if !ok {
		panic("strlen: unterminated string")
	}
	stack[0] = api.EncodeU32(uint32(len(str)))
}

func (s *State) errorMessage(_ context.Context, mod api.Module, stack []uint64) {
	code := api.DecodeI32(stack[0])

	s.mu.Lock()
	defer s.mu.Unlock()
	if addr, ok := s.messages[code]; ok {
		stack[0] = api.EncodeU32(addr)
		return
	}
	msg, ok := messages[code]
	if !ok {
		msg = "Unknown error code"
	}
	data := append([]byte(msg), 0)
	addr := s.bump(mod.Memory(), uint32(len(data)))
	if addr == 0 || !mod.Memory().Write(addr, data) {
		panic("argon2_error_message: out of memory")
	}
	s.messages[code] = addr
	stack[0] = api.EncodeU32(addr)
}

func read(mem api.Memory, ptr, length uint32) []byte {
	if length == 0 {
		return nil
	}
	view, ok := mem.Read(ptr, length)
	if !ok {
		panic(fmt.Sprintf("read %#x+%d out of range", ptr, length))
	}
	return append([]byte(nil), view...)
}

func numLen(v uint32) int {
	return len(strconv.FormatUint(uint64(v), 10))
}

func encodedLen(t, m, p, saltLen, hashLen, typ uint32) uint32 {
	name, ok := typeNames[typ]
	if !ok {
		return 0
	}
	n := len("$$v=$m=,t=,p=$$") + len(name) +
		numLen(t) + numLen(m) + numLen(p) +
		base64.RawStdEncoding.EncodedLen(int(saltLen)) +
		base64.RawStdEncoding.EncodedLen(int(hashLen)) +
		numLen(version13) + 1
	return uint32(n)
}

func (s *State) encodedLen(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeU32(encodedLen(
		api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2]),
		api.DecodeU32(stack[3]), api.DecodeU32(stack[4]), api.DecodeU32(stack[5])))
}

func derive(typ uint32, pwd, salt []byte, t, m, p, length uint32) ([]byte, int32) {
	switch typ {
	case 1:
		return argon2.Key(pwd, salt, t, m, uint8(p), length), codeOK
	case 2:
		return argon2.IDKey(pwd, salt, t, m, uint8(p), length), codeOK
	}
	return nil, codeIncorrectType
}

func validate(t, m, p, saltLen, hashLen, version uint32) int32 {
	switch {
	case hashLen < 4:
		return codeOutputTooShort
	case saltLen < 8:
		return codeSaltTooShort
	case t < 1:
		return codeTimeTooSmall
	case p < 1:
		return codeLanesTooFew
	case p > 255:
		return codeLanesTooMany
	case m < 8*p:
		return codeMemoryTooSmall
	case version != version13:
		return codeIncorrectType
	}
	return codeOK
}

func (s *State) hashFull(_ context.Context, mod api.Module, stack []uint64) {
	if s.trapOnHash {
		panic("argon2_hash_full: injected trap")
	}
	mem := mod.Memory()
	arg := func(i int) uint32 { return api.DecodeU32(stack[i]) }

	call := &HashCall{
		Iterations:     arg(0),
		MemoryCostKiB:  arg(1),
		Parallelism:    arg(2),
		Password:       read(mem, arg(3), arg(4)),
		Salt:           read(mem, arg(5), arg(6)),
		Secret:         read(mem, arg(7), arg(8)),
		AssociatedData: read(mem, arg(9), arg(10)),
		HashLength:     arg(12),
		EncodedLength:  arg(14),
		Type:           arg(15),
		Version:        arg(16),
	}
	s.mu.Lock()
	s.lastHash = call
	s.mu.Unlock()

	hashPtr, encodedPtr := arg(11), arg(13)
	if code := validate(call.Iterations, call.MemoryCostKiB, call.Parallelism, uint32(len(call.Salt)), call.HashLength, call.Version); code != codeOK {
		stack[0] = api.EncodeI32(code)
		return
	}

	raw, code := derive(call.Type, call.Password, call.Salt, call.Iterations, call.MemoryCostKiB, call.Parallelism, call.HashLength)
	if code != codeOK {
		stack[0] = api.EncodeI32(code)
		return
	}
	if hashPtr != 0 && !mem.Write(hashPtr, raw) {
		panic("argon2_hash_full: hash buffer out of range")
	}

	if encodedPtr != 0 && call.EncodedLength != 0 {
		encoded := fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
			typeNames[call.Type], call.Version,
			call.MemoryCostKiB, call.Iterations, call.Parallelism,
			base64.RawStdEncoding.EncodeToString(call.Salt),
			base64.RawStdEncoding.EncodeToString(raw))
		if uint32(len(encoded))+1 > call.EncodedLength {
			stack[0] = api.EncodeI32(codeEncodingFail)
			return
		}
		if !mem.Write(encodedPtr, append([]byte(encoded), 0)) {
			panic("argon2_hash_full: encoded buffer out of range")
		}
		if s.omitTerminator {
			mem.WriteByte(encodedPtr+call.EncodedLength-1, '!')
		}
	}
	stack[0] = api.EncodeI32(codeOK)
}

func (s *State) verifyFull(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	arg := func(i int) uint32 { return api.DecodeU32(stack[i]) }

	encoded, ok := cstring(mem, arg(0))
	if !ok {
		stack[0] = api.EncodeI32(codeDecodingFail)
		return
	}
	call := &VerifyCall{
		Encoded:        encoded,
		Password:       read(mem, arg(1), arg(2)),
		Secret:         read(mem, arg(3), arg(4)),
		AssociatedData: read(mem, arg(5), arg(6)),
		Type:           arg(7),
	}
	s.mu.Lock()
	s.lastVerify = call
	s.mu.Unlock()

	t, m, p, salt, want, code := decode(encoded, call.Type)
	if code != codeOK {
		stack[0] = api.EncodeI32(code)
		return
	}
	got, code := derive(call.Type, call.Password, salt, t, m, p, uint32(len(want)))
	if code != codeOK {
		stack[0] = api.EncodeI32(code)
		return
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		stack[0] = api.EncodeI32(codeVerifyMismatch)
		return
	}
	stack[0] = api.EncodeI32(codeOK)
}

// decode parses $<type>$v=19$m=<m>,t=<t>,p=<p>$<salt>$<hash>.
func decode(encoded string, typ uint32) (t, m, p uint32, salt, hash []byte, code int32) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != typeNames[typ] || parts[2] != "v=19" {
		return 0, 0, 0, nil, nil, codeDecodingFail
	}

	values := map[string]uint32{}
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return 0, 0, 0, nil, nil, codeDecodingFail
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, 0, 0, nil, nil, codeDecodingFail
		}
		values[k] = uint32(n)
	}

	var err error
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return 0, 0, 0, nil, nil, codeDecodingFail
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return 0, 0, 0, nil, nil, codeDecodingFail
	}

	t, m, p = values["t"], values["m"], values["p"]
	if rc := validate(t, m, p, uint32(len(salt)), uint32(len(hash)), version13); rc != codeOK {
		return 0, 0, 0, nil, nil, rc
	}
	return t, m, p, salt, hash, codeOK
}
