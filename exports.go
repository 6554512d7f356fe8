// Package argon2wasm computes and verifies Argon2 password hashes by driving
// a C-compiled Argon2 WebAssembly module through wazero.
//
// Every operation gets a freshly sized module instance: the memory an
// Argon2 computation needs depends on its memory cost, so the imported
// linear memory is sized per call and discarded afterwards.
package argon2wasm

// ModuleFilename is the conventional filename of the Argon2 module.
const ModuleFilename = "argon2.wasm"

// Argon2 exports
const (
	// ExportHashFull hashes a password with every Argon2 input.
	// Signature: argon2_hash_full(t_cost, m_cost, parallelism,
	//   pwd, pwdlen, salt, saltlen, secret, secretlen, ad, adlen,
	//   hash, hashlen, encoded, encodedlen, type, version: i32) -> i32
	// Returns: Argon2 status code (0 on success)
	ExportHashFull = "argon2_hash_full"

	// ExportVerifyFull verifies a password against an encoded hash.
	// Signature: argon2_verify_full(encoded, pwd, pwdlen, secret, secretlen,
	//   ad, adlen, type: i32) -> i32
	// Returns: Argon2 status code (0 on match)
	ExportVerifyFull = "argon2_verify_full"

	// ExportEncodedLen returns the encoded hash buffer size, terminator included.
	// Signature: argon2_encodedlen(t_cost, m_cost, parallelism, saltlen,
	//   hashlen, type: i32) -> i32
	ExportEncodedLen = "argon2_encodedlen"

	// ExportErrorMessage returns a pointer to the static message for a status.
	// Signature: argon2_error_message(code: i32) -> i32 (pointer)
	ExportErrorMessage = "argon2_error_message"

	// ExportInitialize is the optional reactor initializer.
	ExportInitialize = "_initialize"
)

// Memory management exports
const (
	// ExportMalloc allocates memory in WASM linear memory.
	// Signature: malloc(size: i32) -> i32 (pointer)
	ExportMalloc = "malloc"

	// ExportFree frees memory in WASM linear memory.
	// Signature: free(ptr: i32) -> void
	ExportFree = "free"

	// ExportStrlen measures a NUL-terminated string.
	// Signature: strlen(ptr: i32) -> i32
	ExportStrlen = "strlen"
)

// Imports required by the Argon2 module
const (
	// ImportModuleEnv provides the linear memory.
	ImportModuleEnv = "env"

	// ImportMemory is the imported linear memory, sized per operation.
	ImportMemory = "memory"

	// ImportModuleWASI is the module name of the legacy file-descriptor
	// syscalls pulled in by the C runtime.
	ImportModuleWASI = "wasi_snapshot_preview1"

	// ImportFdClose, ImportFdSeek and ImportFdWrite are linked against
	// no-op stubs; Argon2 never performs I/O.
	ImportFdClose = "fd_close"
	ImportFdSeek  = "fd_seek"
	ImportFdWrite = "fd_write"
)

// stubbedImports lists the WASI functions satisfied with no-op stubs.
var stubbedImports = map[string]bool{
	ImportFdClose: true,
	ImportFdSeek:  true,
	ImportFdWrite: true,
}
