package argon2wasm

type inputKind uint8

const (
	inputAbsent inputKind = iota
	inputText
	inputBytes
)

// Input is a value handed to the module: either text or raw bytes. The
// zero Input is absent and is passed as a null pointer with zero length.
type Input struct {
	text string
	raw  []byte
	kind inputKind
}

// Text returns an Input holding s, stored as UTF-8 without a terminator.
func Text(s string) Input {
	return Input{kind: inputText, text: s}
}

// Bytes returns an Input holding b. A nil or empty b is stored as the
// empty handle.
func Bytes(b []byte) Input {
	return Input{kind: inputBytes, raw: b}
}

// IsAbsent reports whether in is the zero Input.
func (in Input) IsAbsent() bool {
	return in.kind == inputAbsent
}

// Len returns the number of bytes stored in linear memory.
func (in Input) Len() int {
	switch in.kind {
	case inputText:
		return len(in.text)
	case inputBytes:
		return len(in.raw)
	}
	return 0
}
