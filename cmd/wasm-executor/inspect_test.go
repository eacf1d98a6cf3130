package main

import (
	"testing"

	"github.com/wippyai/wasm-executor/contracts"
	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/wasm"
)

func TestInspectBuiltins(t *testing.T) {
	for name, code := range map[string][]byte{
		"token":         contracts.Token(),
		"token-runtime": contracts.Runtime(),
	} {
		t.Run(name, func(t *testing.T) {
			if err := inspect(name, code, schedule.Default()); err != nil {
				t.Fatalf("inspect: %v", err)
			}
		})
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	if err := inspect("garbage", []byte("not wasm"), schedule.Default()); err == nil {
		t.Error("expected decode error")
	}
}

func TestKindName(t *testing.T) {
	tests := []struct {
		kind byte
		want string
	}{
		{wasm.KindFunc, "func"},
		{wasm.KindMemory, "memory"},
		{9, "kind(9)"},
	}
	for _, tt := range tests {
		if got := kindName(tt.kind); got != tt.want {
			t.Errorf("kindName(%d) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestDecodeHex(t *testing.T) {
	b, err := decodeHex("0x0a0b")
	if err != nil || len(b) != 2 || b[0] != 0x0a {
		t.Errorf("decodeHex = %x, %v", b, err)
	}
	if _, err := decodeHex("zz"); err == nil {
		t.Error("expected error")
	}
}
