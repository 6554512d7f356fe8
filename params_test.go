package argon2wasm

import "testing"

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"argon2d", TypeD, false},
		{"argon2i", TypeI, false},
		{"argon2id", TypeID, false},
		{"id", TypeID, false},
		{"I", TypeI, false},
		{"Argon2ID", TypeID, false},
		{"argon2x", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	for typ, want := range map[Type]string{
		TypeD:   "argon2d",
		TypeI:   "argon2i",
		TypeID:  "argon2id",
		Type(7): "argon2(7)",
	} {
		if got := typ.String(); got != want {
			t.Errorf("Type(%d).String() = %q, want %q", uint32(typ), got, want)
		}
	}
}

func TestParametersVersion(t *testing.T) {
	if v := (Parameters{}).version(); v != Version13 {
		t.Errorf("zero version resolved to %#x", v)
	}
	if v := (Parameters{Version: Version10}).version(); v != Version10 {
		t.Errorf("explicit version resolved to %#x", v)
	}

	p := DefaultParameters()
	if p.Type != TypeID || p.MemoryCostKiB != 65536 || p.HashLength != 32 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestInput(t *testing.T) {
	if !(Input{}).IsAbsent() {
		t.Error("zero Input should be absent")
	}
	if Text("").IsAbsent() || Bytes(nil).IsAbsent() {
		t.Error("empty values are present, not absent")
	}
	if n := Text("pässwörd").Len(); n != 10 {
		t.Errorf("Text len = %d, want UTF-8 byte count 10", n)
	}
	if n := Bytes([]byte{1, 2, 3}).Len(); n != 3 {
		t.Errorf("Bytes len = %d", n)
	}
}
