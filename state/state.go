// Package state buffers the writes of one execution over a Provider so that
// nothing reaches the Provider unless the execution succeeds.
package state

import (
	"context"

	"github.com/wippyai/wasm-executor/provider"
	"github.com/wippyai/wasm-executor/types"
)

type slot struct {
	addr types.Address
	key  types.H256
}

// State is a per-execution write cache. It is not safe for concurrent use.
type State struct {
	provider provider.Provider
	storage  map[slot]types.H256
	order    []slot
	code     map[types.Address][]byte
	codeSeq  []types.Address
}

// New returns an empty cache over p.
func New(p provider.Provider) *State {
	return &State{
		provider: p,
		storage:  make(map[slot]types.H256),
		code:     make(map[types.Address][]byte),
	}
}

// Provider returns the underlying provider for reads the cache does not cover.
func (s *State) Provider() provider.Provider {
	return s.provider
}

// StorageAt returns the pending value of a slot, falling back to the provider.
func (s *State) StorageAt(ctx context.Context, addr types.Address, key types.H256) (types.H256, error) {
	if v, ok := s.storage[slot{addr, key}]; ok {
		return v, nil
	}
	return s.provider.StorageAt(ctx, addr, key)
}

// SetStorage records a pending write.
func (s *State) SetStorage(addr types.Address, key, value types.H256) {
	k := slot{addr, key}
	if _, ok := s.storage[k]; !ok {
		s.order = append(s.order, k)
	}
	s.storage[k] = value
}

// InitCode records the code to install at addr on flush.
func (s *State) InitCode(addr types.Address, code []byte) {
	if _, ok := s.code[addr]; !ok {
		s.codeSeq = append(s.codeSeq, addr)
	}
	s.code[addr] = append([]byte(nil), code...)
}

// Dirty reports whether any write is pending.
func (s *State) Dirty() bool {
	return len(s.order) > 0 || len(s.codeSeq) > 0
}

// Flush writes pending code then storage to the provider in first-write order
// and clears the cache.
func (s *State) Flush(ctx context.Context) error {
	for _, addr := range s.codeSeq {
		if err := s.provider.CreateContract(ctx, addr, s.code[addr]); err != nil {
			return err
		}
	}
	for _, k := range s.order {
		if err := s.provider.SetStorage(ctx, k.addr, k.key, s.storage[k]); err != nil {
			return err
		}
	}
	s.Discard()
	return nil
}

// Discard drops every pending write.
func (s *State) Discard() {
	s.storage = make(map[slot]types.H256)
	s.order = nil
	s.code = make(map[types.Address][]byte)
	s.codeSeq = nil
}
