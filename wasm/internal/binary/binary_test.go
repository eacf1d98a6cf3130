package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}
	if !r.EOF() {
		t.Error("expected EOF after reading every byte")
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderPeekByte(t *testing.T) {
	r := NewReader([]byte{0x40, 0x7f})
	b, err := r.PeekByte()
	if err != nil || b != 0x40 {
		t.Fatalf("PeekByte = 0x%02x, %v", b, err)
	}
	if r.Position() != 0 || r.Len() != 2 {
		t.Errorf("PeekByte consumed input: pos=%d len=%d", r.Position(), r.Len())
	}
}

func TestReaderReadBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})

	got, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", got)
	}
	if r.Position() != 3 {
		t.Errorf("position: got %d, want 3", r.Position())
	}

	if _, err := r.ReadBytes(10); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
	if r.Position() != 3 {
		t.Errorf("failed read moved position to %d", r.Position())
	}
}

func TestReaderReadBytesHugeLength(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadBytes(1 << 40); err == nil {
		t.Error("expected error for length beyond input")
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		got, err := NewReader(tt.encoded).ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%x): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%x) = %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadU32Overflow(t *testing.T) {
	_, err := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}).ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderTruncatedLEB(t *testing.T) {
	if _, err := NewReader([]byte{0x80}).ReadU32(); err == nil {
		t.Error("expected error for truncated LEB128")
	}
}

func TestSignedRoundTrip(t *testing.T) {
	for _, v := range []int64{0, -1, 63, -64, 64, -65, 1 << 40, -(1 << 62)} {
		w := NewWriter()
		w.WriteS64(v)
		got, err := NewReader(w.Bytes()).ReadS64()
		if err != nil || got != v {
			t.Errorf("s64 %d: got %d, %v", v, got, err)
		}
	}
	for _, v := range []int32{0, -1, -64, 2147483647, -2147483648} {
		w := NewWriter()
		w.WriteS32(v)
		got, err := NewReader(w.Bytes()).ReadS32()
		if err != nil || got != v {
			t.Errorf("s32 %d: got %d, %v", v, got, err)
		}
	}
}

func TestUnsignedRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16384, 0xFFFFFFFF} {
		w := NewWriter()
		w.WriteU32(v)
		got, err := NewReader(w.Bytes()).ReadU32()
		if err != nil || got != v {
			t.Errorf("u32 %d: got %d, %v", v, got, err)
		}
	}
}

func TestNameRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteName("memory")
	got, err := NewReader(w.Bytes()).ReadName()
	if err != nil || got != "memory" {
		t.Errorf("ReadName = %q, %v", got, err)
	}

	if _, err := NewReader([]byte{0x01, 0xff}).ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestFixedWidth(t *testing.T) {
	w := NewWriter()
	w.WriteU32LE(0x6d736100)
	w.WriteU64LE(0x0102030405060708)
	if !bytes.Equal(w.Bytes()[:4], []byte{0x00, 'a', 's', 'm'}) {
		t.Errorf("WriteU32LE wrote %x", w.Bytes()[:4])
	}

	r := NewReader(w.Bytes())
	if v, err := r.ReadU32LE(); err != nil || v != 0x6d736100 {
		t.Errorf("ReadU32LE = %x, %v", v, err)
	}
	if v, err := r.ReadU64LE(); err != nil || v != 0x0102030405060708 {
		t.Errorf("ReadU64LE = %x, %v", v, err)
	}
}

func TestWrapError(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, _ = r.ReadByte()
	err := r.WrapError("header", io.ErrUnexpectedEOF)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Position != 1 || pe.Section != "header" {
		t.Errorf("unexpected ParseError %+v", pe)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ParseError does not unwrap")
	}
}
