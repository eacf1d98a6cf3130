// Package ledger is an in-process account and storage store implementing
// provider.Provider.
//
// A Ledger keeps a working state that executions mutate and a committed
// snapshot. Commit promotes the working state, seals a block and persists the
// snapshot to LevelDB (in memory unless a path is configured). Rollback discards
// everything since the last commit. One mutex serializes all access.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/types"
)

// DefaultAliases are funded when a ledger is created empty.
var DefaultAliases = []string{"alice", "bob"}

// Config configures a Ledger. A nil Config uses defaults.
type Config struct {
	// Path of the LevelDB directory. Empty keeps the ledger in memory.
	Path string

	// Aliases funded with GenesisBalance in the genesis block.
	Aliases        []string
	GenesisBalance *uint256.Int

	Author     types.Address
	Difficulty *uint256.Int
	GasLimit   *uint256.Int

	// Now supplies block timestamps.
	Now func() time.Time
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Aliases == nil {
		out.Aliases = DefaultAliases
	}
	if out.GenesisBalance == nil {
		out.GenesisBalance = uint256.NewInt(1_000_000_000_000_000_000)
	}
	if out.Author == (types.Address{}) {
		out.Author = AddressFromAlias("coinbase")
	}
	if out.Difficulty == nil {
		out.Difficulty = uint256.NewInt(131072)
	}
	if out.GasLimit == nil {
		out.GasLimit = uint256.NewInt(10_000_000)
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// Ledger is a mutex-guarded in-process Provider.
type Ledger struct {
	mu  sync.Mutex
	cfg Config
	db  *store

	working   map[types.Address]*Account
	committed map[types.Address]*Account
	blocks    []Block
	receipts  []Receipt
	pending   []Receipt
}

// New returns an in-memory ledger with default settings.
func New() (*Ledger, error) {
	return Open(nil)
}

// Open opens or creates a ledger. An empty database is seeded with a genesis
// block funding the configured aliases.
func Open(cfg *Config) (*Ledger, error) {
	c := cfg.withDefaults()
	db, err := openStore(c.Path)
	if err != nil {
		return nil, err
	}

	l := &Ledger{cfg: c, db: db}
	if l.committed, err = db.loadAccounts(); err != nil {
		db.close()
		return nil, err
	}
	if l.blocks, err = db.loadBlocks(); err != nil {
		db.close()
		return nil, err
	}
	if l.receipts, err = db.loadReceipts(); err != nil {
		db.close()
		return nil, err
	}

	if len(l.blocks) == 0 {
		l.working = make(map[types.Address]*Account)
		for _, alias := range c.Aliases {
			acc := newAccount()
			acc.Balance.Set(c.GenesisBalance)
			l.working[AddressFromAlias(alias)] = acc
		}
		l.committed = make(map[types.Address]*Account)
		if err := l.commitLocked(); err != nil {
			db.close()
			return nil, err
		}
	}
	l.working = cloneAccounts(l.committed)
	return l, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.close()
}

func cloneAccounts(in map[types.Address]*Account) map[types.Address]*Account {
	out := make(map[types.Address]*Account, len(in))
	for addr, acc := range in {
		out[addr] = acc.clone()
	}
	return out
}

func (l *Ledger) account(addr types.Address) *Account {
	acc, ok := l.working[addr]
	if !ok {
		acc = newAccount()
		l.working[addr] = acc
	}
	return acc
}

func (l *Ledger) head() Block {
	return l.blocks[len(l.blocks)-1]
}

// Exist reports whether addr has an account.
func (l *Ledger) Exist(_ context.Context, addr types.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.working[addr]
	return ok, nil
}

// Account returns a snapshot of addr.
func (l *Ledger) Account(_ context.Context, addr types.Address) (*types.StateAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.working[addr]
	if !ok {
		return nil, errors.NotFound(errors.PhaseProvider, "account", addr.Hex())
	}
	return acc.snapshot(), nil
}

// UpdateAccount sets the balance and nonce of addr, creating the account if needed.
func (l *Ledger) UpdateAccount(_ context.Context, addr types.Address, balance, nonce *types.U256) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(addr)
	acc.Balance.Set(balance)
	acc.Nonce.Set(nonce)
	return nil
}

// CreateContract installs code at addr. An address may hold code only once.
func (l *Ledger) CreateContract(_ context.Context, addr types.Address, code []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(addr)
	if len(acc.Code) > 0 {
		return errors.InvalidInput(errors.PhaseProvider, fmt.Sprintf("contract already exists at %s", addr.Hex()))
	}
	acc.Code = append([]byte(nil), code...)
	return nil
}

// StorageAt returns the value of a storage slot; unset slots read as zero.
func (l *Ledger) StorageAt(_ context.Context, addr types.Address, key types.H256) (types.H256, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.working[addr]; ok {
		return acc.Storage[key], nil
	}
	return types.H256{}, nil
}

// SetStorage writes a storage slot. Writing zero clears it.
func (l *Ledger) SetStorage(_ context.Context, addr types.Address, key, value types.H256) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(addr)
	if value == (types.H256{}) {
		delete(acc.Storage, key)
		return nil
	}
	acc.Storage[key] = value
	return nil
}

// Timestamp returns the head block's timestamp.
func (l *Ledger) Timestamp(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head().Timestamp, nil
}

// BlockNumber returns the head block's number.
func (l *Ledger) BlockNumber(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head().Number, nil
}

// BlockHash returns the hash of a committed block, or zero if unknown.
func (l *Ledger) BlockHash(_ context.Context, number uint64) (types.H256, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if number < uint64(len(l.blocks)) {
		return l.blocks[number].Hash, nil
	}
	return types.H256{}, nil
}

// BlockAuthor returns the configured coinbase.
func (l *Ledger) BlockAuthor(_ context.Context) (types.Address, error) {
	return l.cfg.Author, nil
}

// Difficulty returns the configured block difficulty.
func (l *Ledger) Difficulty(_ context.Context) (*types.U256, error) {
	return new(uint256.Int).Set(l.cfg.Difficulty), nil
}

// GasLimit returns the configured block gas limit.
func (l *Ledger) GasLimit(_ context.Context) (*types.U256, error) {
	return new(uint256.Int).Set(l.cfg.GasLimit), nil
}

// IncNonce increments the nonce of addr in the working state.
func (l *Ledger) IncNonce(addr types.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(addr)
	acc.Nonce.AddUint64(acc.Nonce, 1)
}

// AddTransaction records tx and its result; the receipt is sealed by the next Commit.
func (l *Ledger) AddTransaction(tx *types.Transaction, result *types.ResultData) (types.H256, error) {
	hash, err := TxHash(tx)
	if err != nil {
		return types.H256{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	r := Receipt{
		Index:    uint64(len(l.receipts) + len(l.pending)),
		TxHash:   hash,
		Block:    l.head().Number + 1,
		Sender:   tx.Sender,
		Contract: result.Contract,
		GasLeft:  new(uint256.Int),
		Data:     append([]byte(nil), result.Data...),
		Logs:     append([]types.LogEntry(nil), result.Logs...),
	}
	if result.GasLeft != nil {
		r.GasLeft.Set(result.GasLeft)
	}
	l.pending = append(l.pending, r)
	return hash, nil
}

// Receipts returns every committed receipt in order.
func (l *Ledger) Receipts() []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Receipt(nil), l.receipts...)
}

// Blocks returns every committed block in order.
func (l *Ledger) Blocks() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Block(nil), l.blocks...)
}

// Commit promotes the working state, seals a new block and persists both.
func (l *Ledger) Commit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitLocked()
}

func (l *Ledger) commitLocked() error {
	changed := make(map[types.Address]*Account)
	for addr, acc := range l.working {
		changed[addr] = acc
	}
	var removed []types.Address
	for addr := range l.committed {
		if _, ok := l.working[addr]; !ok {
			removed = append(removed, addr)
		}
	}

	b := Block{
		Author:    l.cfg.Author,
		Timestamp: uint64(l.cfg.Now().Unix()),
	}
	if len(l.blocks) > 0 {
		parent := l.head()
		b.Number = parent.Number + 1
		b.ParentHash = parent.Hash
	}
	header, err := rlp.EncodeToBytes([]any{b.Number, b.ParentHash, b.Author, b.Timestamp})
	if err != nil {
		return fmt.Errorf("encode block header: %w", err)
	}
	b.Hash = crypto.Keccak256Hash(header)

	for i := range l.pending {
		l.pending[i].Block = b.Number
	}
	if err := l.db.writeCommit(changed, removed, []Block{b}, l.pending); err != nil {
		return err
	}

	l.committed = cloneAccounts(l.working)
	l.blocks = append(l.blocks, b)
	l.receipts = append(l.receipts, l.pending...)
	l.pending = nil
	return nil
}

// Rollback discards all changes made since the last Commit.
func (l *Ledger) Rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.working = cloneAccounts(l.committed)
	l.pending = nil
}

// TxHash returns the keccak256 hash of the RLP encoding of tx.
func TxHash(tx *types.Transaction) (types.H256, error) {
	fields := []any{tx.Sender, u256Big(tx.Value), u256Big(tx.Gas), u256Big(tx.GasPrice)}
	switch a := tx.Action.(type) {
	case types.Create:
		fields = append(fields, uint64(types.ActionCreate), a.Code, a.Salt)
	case types.Call:
		fields = append(fields, uint64(types.ActionCall), a.Address)
	default:
		return types.H256{}, errors.InvalidInput(errors.PhaseProvider, fmt.Sprintf("unknown action %T", tx.Action))
	}
	fields = append(fields, tx.Args)

	data, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return types.H256{}, err
	}
	return crypto.Keccak256Hash(data), nil
}
