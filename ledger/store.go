package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/wippyai/wasm-executor/types"
)

var (
	accountPrefix = []byte("a")
	blockPrefix   = []byte("b")
	receiptPrefix = []byte("r")
)

type storageRecord struct {
	Key   types.H256
	Value types.H256
}

type accountRecord struct {
	Nonce   *big.Int
	Balance *big.Int
	Code    []byte
	Storage []storageRecord
}

type logRecord struct {
	Address types.Address
	Topics  []types.H256
	Data    []byte
}

type receiptRecord struct {
	Index    uint64
	TxHash   types.H256
	Block    uint64
	Sender   types.Address
	Contract types.Address
	GasLeft  *big.Int
	Data     []byte
	Logs     []logRecord
}

// store persists the committed snapshot. An empty path keeps it in memory.
type store struct {
	db *leveldb.DB
}

func openStore(path string) (*store, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger database at %q: %w", path, err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error {
	return s.db.Close()
}

func key(prefix, suffix []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(suffix))
	return append(append(k, prefix...), suffix...)
}

func seqKey(prefix []byte, n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return key(prefix, b[:])
}

func encodeAccount(a *Account) ([]byte, error) {
	rec := accountRecord{
		Nonce:   a.Nonce.ToBig(),
		Balance: a.Balance.ToBig(),
		Code:    a.Code,
	}
	for k, v := range a.Storage {
		rec.Storage = append(rec.Storage, storageRecord{Key: k, Value: v})
	}
	sort.Slice(rec.Storage, func(i, j int) bool {
		return bytes.Compare(rec.Storage[i].Key[:], rec.Storage[j].Key[:]) < 0
	})
	return rlp.EncodeToBytes(&rec)
}

func decodeAccount(data []byte) (*Account, error) {
	var rec accountRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	a := newAccount()
	if overflow := a.Nonce.SetFromBig(rec.Nonce); overflow {
		return nil, fmt.Errorf("nonce overflows 256 bits")
	}
	if overflow := a.Balance.SetFromBig(rec.Balance); overflow {
		return nil, fmt.Errorf("balance overflows 256 bits")
	}
	a.Code = rec.Code
	for _, s := range rec.Storage {
		a.Storage[s.Key] = s.Value
	}
	return a, nil
}

// writeCommit persists changed accounts, removed accounts and new blocks in one batch.
func (s *store) writeCommit(changed map[types.Address]*Account, removed []types.Address, blocks []Block, receipts []Receipt) error {
	batch := new(leveldb.Batch)
	for addr, acc := range changed {
		data, err := encodeAccount(acc)
		if err != nil {
			return fmt.Errorf("encode account %s: %w", addr.Hex(), err)
		}
		batch.Put(key(accountPrefix, addr[:]), data)
	}
	for _, addr := range removed {
		batch.Delete(key(accountPrefix, addr[:]))
	}
	for _, b := range blocks {
		data, err := rlp.EncodeToBytes(&b)
		if err != nil {
			return fmt.Errorf("encode block %d: %w", b.Number, err)
		}
		batch.Put(seqKey(blockPrefix, b.Number), data)
	}
	for _, r := range receipts {
		rec := receiptRecord{
			Index:    r.Index,
			TxHash:   r.TxHash,
			Block:    r.Block,
			Sender:   r.Sender,
			Contract: r.Contract,
			GasLeft:  r.GasLeft.ToBig(),
			Data:     r.Data,
		}
		for _, l := range r.Logs {
			rec.Logs = append(rec.Logs, logRecord{Address: l.Address, Topics: l.Topics, Data: l.Data})
		}
		data, err := rlp.EncodeToBytes(&rec)
		if err != nil {
			return fmt.Errorf("encode receipt %s: %w", r.TxHash.Hex(), err)
		}
		batch.Put(seqKey(receiptPrefix, r.Index), data)
	}
	return s.db.Write(batch, nil)
}

func (s *store) loadAccounts() (map[types.Address]*Account, error) {
	out := make(map[types.Address]*Account)
	iter := s.db.NewIterator(util.BytesPrefix(accountPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		addr := types.BytesToAddress(iter.Key()[len(accountPrefix):])
		acc, err := decodeAccount(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode account %s: %w", addr.Hex(), err)
		}
		out[addr] = acc
	}
	return out, iter.Error()
}

func (s *store) loadBlocks() ([]Block, error) {
	var out []Block
	iter := s.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		var b Block
		if err := rlp.DecodeBytes(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decode block: %w", err)
		}
		out = append(out, b)
	}
	return out, iter.Error()
}

func (s *store) loadReceipts() ([]Receipt, error) {
	var out []Receipt
	iter := s.db.NewIterator(util.BytesPrefix(receiptPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		var rec receiptRecord
		if err := rlp.DecodeBytes(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode receipt: %w", err)
		}
		gasLeft, _ := uint256.FromBig(rec.GasLeft)
		r := Receipt{
			Index:    rec.Index,
			TxHash:   rec.TxHash,
			Block:    rec.Block,
			Sender:   rec.Sender,
			Contract: rec.Contract,
			GasLeft:  gasLeft,
			Data:     rec.Data,
		}
		for _, l := range rec.Logs {
			r.Logs = append(r.Logs, types.LogEntry{Address: l.Address, Topics: l.Topics, Data: l.Data})
		}
		out = append(out, r)
	}
	return out, iter.Error()
}
