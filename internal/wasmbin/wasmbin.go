// Package wasmbin encodes the small core WebAssembly modules the loader
// generates at runtime: the imported-memory provider and test modules that
// forward exports to host functions.
//
// Only the type, import, function, memory, export and code sections are
// supported.
package wasmbin

import "encoding/binary"

// Binary header.
const (
	Magic   uint32 = 0x6d736100 // "\0asm"
	Version uint32 = 1
)

// Section IDs.
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionExport   byte = 7
	SectionCode     byte = 10
)

// External kinds used by imports and exports.
const (
	KindFunc   byte = 0x00
	KindMemory byte = 0x02
)

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

const (
	funcTypeByte byte = 0x60

	opLocalGet byte = 0x20
	opCall     byte = 0x10
	opEnd      byte = 0x0b
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Limits describes a memory's page bounds. Max is ignored unless HasMax.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Import is either a function import (Memory nil) referencing a type index,
// or a memory import.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
	Memory  *Limits
}

// Export names an item in the function or memory index space.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Func is a function defined by the module. Body holds the locals vector
// and the instruction sequence including the final end opcode.
type Func struct {
	TypeIdx uint32
	Body    []byte
}

// Module is the subset of a core module this package can encode.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []Func
	Memories []Limits
	Exports  []Export
}

// Encode encodes the module to WebAssembly binary format.
func (m *Module) Encode() []byte {
	var w writer
	w.u32le(Magic)
	w.u32le(Version)

	if len(m.Types) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.writeByte(funcTypeByte)
			sec.valTypes(ft.Params)
			sec.valTypes(ft.Results)
		}
		w.section(SectionType, sec.bytes())
	}

	if len(m.Imports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.name(imp.Module)
			sec.name(imp.Name)
			if imp.Memory != nil {
				sec.writeByte(KindMemory)
				sec.limits(*imp.Memory)
				continue
			}
			sec.writeByte(KindFunc)
			sec.u32(imp.TypeIdx)
		}
		w.section(SectionImport, sec.bytes())
	}

	if len(m.Funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.u32(f.TypeIdx)
		}
		w.section(SectionFunction, sec.bytes())
	}

	if len(m.Memories) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Memories)))
		for _, l := range m.Memories {
			sec.limits(l)
		}
		w.section(SectionMemory, sec.bytes())
	}

	if len(m.Exports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.name(e.Name)
			sec.writeByte(e.Kind)
			sec.u32(e.Index)
		}
		w.section(SectionExport, sec.bytes())
	}

	if len(m.Funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.u32(uint32(len(f.Body)))
			sec.raw(f.Body)
		}
		w.section(SectionCode, sec.bytes())
	}

	return w.bytes()
}

// MemoryModule returns a module that defines a single memory with the given
// limits and exports it under exportName.
func MemoryModule(exportName string, limits Limits) []byte {
	m := &Module{
		Memories: []Limits{limits},
		Exports:  []Export{{Name: exportName, Kind: KindMemory, Index: 0}},
	}
	return m.Encode()
}

// ForwardBody returns a function body that pushes its first paramCount
// locals and calls funcIdx, returning whatever the callee returns.
func ForwardBody(paramCount int, funcIdx uint32) []byte {
	var w writer
	w.u32(0) // no locals
	for i := 0; i < paramCount; i++ {
		w.writeByte(opLocalGet)
		w.u32(uint32(i))
	}
	w.writeByte(opCall)
	w.u32(funcIdx)
	w.writeByte(opEnd)
	return w.bytes()
}

type writer struct {
	buf []byte
}

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) writeByte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) u32le(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

// u32 writes v as unsigned LEB128.
func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if v == 0 {
			return
		}
	}
}

func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) valTypes(types []ValType) {
	w.u32(uint32(len(types)))
	for _, t := range types {
		w.writeByte(byte(t))
	}
}

func (w *writer) limits(l Limits) {
	if l.HasMax {
		w.writeByte(0x01)
		w.u32(l.Min)
		w.u32(l.Max)
		return
	}
	w.writeByte(0x00)
	w.u32(l.Min)
}

func (w *writer) section(id byte, data []byte) {
	w.writeByte(id)
	w.u32(uint32(len(data)))
	w.raw(data)
}
