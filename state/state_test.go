package state

import (
	"context"
	"testing"

	"github.com/wippyai/wasm-executor/ledger"
	"github.com/wippyai/wasm-executor/types"
)

func TestPendingWritesStayLocal(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.New()
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	defer l.Close()

	s := New(l)
	addr := ledger.AddressFromAlias("token")
	key := types.BytesToH256([]byte{1})
	val := types.BytesToH256([]byte{2})

	s.SetStorage(addr, key, val)
	if got, _ := s.StorageAt(ctx, addr, key); got != val {
		t.Errorf("cached StorageAt = %x, want %x", got, val)
	}
	if got, _ := l.StorageAt(ctx, addr, key); got != (types.H256{}) {
		t.Error("provider should not see pending write")
	}
	if !s.Dirty() {
		t.Error("state should be dirty")
	}

	s.Discard()
	if got, _ := s.StorageAt(ctx, addr, key); got != (types.H256{}) {
		t.Error("discarded write still visible")
	}
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.New()
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	defer l.Close()

	s := New(l)
	addr := ledger.AddressFromAlias("token")
	key := types.BytesToH256([]byte{1})
	val := types.BytesToH256([]byte{2})

	s.InitCode(addr, []byte{0xCA, 0xFE})
	s.SetStorage(addr, key, val)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	acc, err := l.Account(ctx, addr)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if string(acc.Code) != "\xCA\xFE" {
		t.Errorf("code = %x", acc.Code)
	}
	if got, _ := l.StorageAt(ctx, addr, key); got != val {
		t.Errorf("flushed storage = %x, want %x", got, val)
	}
	if s.Dirty() {
		t.Error("flush should clear the cache")
	}
}
