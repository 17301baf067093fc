package byteio

import (
	"bytes"
	"testing"
)

func TestReaderPrimitives(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x03, 'h', 'i', 0, 0}
	r := New(bytes.NewReader(data))

	u16, err := r.U16()
	if err != nil || u16 != 1 {
		t.Fatalf("U16() = %d, %v, want 1, nil", u16, err)
	}
	u16b, err := r.U16()
	if err != nil || u16b != 2 {
		t.Fatalf("U16() #2 = %d, %v, want 2, nil", u16b, err)
	}
	u32, err := r.U32()
	if err != nil || u32 != 3 {
		t.Fatalf("U32() = %d, %v, want 3, nil", u32, err)
	}
	s, err := r.String(4)
	if err != nil || s != "hi" {
		t.Fatalf("String(4) = %q, %v, want \"hi\", nil", s, err)
	}
}

func TestVarLenRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 16383, 16384, 1 << 20, 0x0FFFFFFF}
	for _, v := range cases {
		enc := EncodeVarLen(v)
		got, consumed, err := VarLen(enc)
		if err != nil {
			t.Fatalf("VarLen(%x) error: %v", enc, err)
		}
		if got != v || consumed != len(enc) {
			t.Fatalf("VarLen(encode(%d)) = (%d, %d), want (%d, %d)", v, got, consumed, v, len(enc))
		}
	}
}

func TestVarLenUnterminated(t *testing.T) {
	_, _, err := VarLen([]byte{0x01, 0x02, 0x03})
	if err == nil {
		t.Fatalf("expected error for unterminated varint")
	}
}
