package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// AddressLength is the width of an account identifier.
	AddressLength = common.AddressLength
	// WordLength is the width of every integer and hash crossing the sandbox or the wire.
	WordLength = 32
)

// Address is a 20-byte account identifier.
type Address = common.Address

// H256 is a 32-byte hash or storage word.
type H256 = common.Hash

// U256 is a 256-bit unsigned integer.
type U256 = uint256.Int

// BytesToAddress copies the last 20 bytes of b into an Address.
func BytesToAddress(b []byte) Address {
	return common.BytesToAddress(b)
}

// BytesToH256 copies the last 32 bytes of b into an H256.
func BytesToH256(b []byte) H256 {
	return common.BytesToHash(b)
}

// U256FromBig decodes a big-endian sandbox word.
func U256FromBig(word [WordLength]byte) *U256 {
	return new(uint256.Int).SetBytes32(word[:])
}

// U256ToBig encodes v as a zero-padded big-endian sandbox word.
func U256ToBig(v *U256) [WordLength]byte {
	if v == nil {
		return [WordLength]byte{}
	}
	return v.Bytes32()
}

// U256FromLE decodes a little-endian wire word.
func U256FromLE(word [WordLength]byte) *U256 {
	var be [WordLength]byte
	for i := range word {
		be[WordLength-1-i] = word[i]
	}
	return new(uint256.Int).SetBytes32(be[:])
}

// U256ToLE encodes v as a zero-padded little-endian wire word.
func U256ToLE(v *U256) [WordLength]byte {
	be := U256ToBig(v)
	var le [WordLength]byte
	for i := range be {
		le[WordLength-1-i] = be[i]
	}
	return le
}

// U256FromLESlice decodes a little-endian wire field of at most 32 bytes.
// Shorter inputs are treated as zero-extended.
func U256FromLESlice(b []byte) (*U256, bool) {
	if len(b) > WordLength {
		return nil, false
	}
	var word [WordLength]byte
	copy(word[:], b)
	return U256FromLE(word), true
}

// NewU256 returns v as a U256.
func NewU256(v uint64) *U256 {
	return uint256.NewInt(v)
}
