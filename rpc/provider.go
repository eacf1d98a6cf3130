package rpc

import (
	"context"
	"net/rpc"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/provider"
	"github.com/wippyai/wasm-executor/types"
)

// ProviderServiceName is the net/rpc service name of a provider capability.
const ProviderServiceName = "Provider"

type AddressArgs struct {
	Address [20]byte
}

type UpdateAccountArgs struct {
	Address [20]byte
	Balance Word
	Nonce   Word
}

type CreateContractArgs struct {
	Address [20]byte
	Code    []byte
}

type StorageArgs struct {
	Address [20]byte
	Key     [32]byte
}

type SetStorageArgs struct {
	Address [20]byte
	Key     [32]byte
	Value   [32]byte
}

type BlockHashArgs struct {
	Number uint64
}

type BoolReply struct {
	Value bool
	Err   *WireError
}

type AccountReply struct {
	Nonce   Word
	Balance Word
	Code    []byte
	Err     *WireError
}

type HashReply struct {
	Value [32]byte
	Err   *WireError
}

type AddressReply struct {
	Value [20]byte
	Err   *WireError
}

type WordReply struct {
	Value Word
	Err   *WireError
}

type U64Reply struct {
	Value uint64
	Err   *WireError
}

type ErrReply struct {
	Err *WireError
}

// ProviderService exposes a provider.Provider as a net/rpc service. Provider
// failures travel in the reply so their kind survives the connection.
type ProviderService struct {
	ctx context.Context
	p   provider.Provider
}

// NewProviderService serves p. ctx bounds every call made on p.
func NewProviderService(ctx context.Context, p provider.Provider) *ProviderService {
	return &ProviderService{ctx: ctx, p: p}
}

func wireErr(err error) *WireError {
	return toWireError(err, errors.PhaseProvider, errors.KindProvider)
}

func (s *ProviderService) Exist(args AddressArgs, reply *BoolReply) error {
	ok, err := s.p.Exist(s.ctx, args.Address)
	reply.Value, reply.Err = ok, wireErr(err)
	return nil
}

func (s *ProviderService) Account(args AddressArgs, reply *AccountReply) error {
	acc, err := s.p.Account(s.ctx, args.Address)
	if err != nil {
		reply.Err = wireErr(err)
		return nil
	}
	reply.Nonce = types.U256ToLE(acc.Nonce)
	reply.Balance = types.U256ToLE(acc.Balance)
	reply.Code = acc.Code
	return nil
}

func (s *ProviderService) UpdateAccount(args UpdateAccountArgs, reply *ErrReply) error {
	reply.Err = wireErr(s.p.UpdateAccount(s.ctx, args.Address, types.U256FromLE(args.Balance), types.U256FromLE(args.Nonce)))
	return nil
}

func (s *ProviderService) CreateContract(args CreateContractArgs, reply *ErrReply) error {
	reply.Err = wireErr(s.p.CreateContract(s.ctx, args.Address, args.Code))
	return nil
}

func (s *ProviderService) StorageAt(args StorageArgs, reply *HashReply) error {
	v, err := s.p.StorageAt(s.ctx, args.Address, args.Key)
	reply.Value, reply.Err = v, wireErr(err)
	return nil
}

func (s *ProviderService) SetStorage(args SetStorageArgs, reply *ErrReply) error {
	reply.Err = wireErr(s.p.SetStorage(s.ctx, args.Address, args.Key, args.Value))
	return nil
}

func (s *ProviderService) Timestamp(_ interface{}, reply *U64Reply) error {
	v, err := s.p.Timestamp(s.ctx)
	reply.Value, reply.Err = v, wireErr(err)
	return nil
}

func (s *ProviderService) BlockNumber(_ interface{}, reply *U64Reply) error {
	v, err := s.p.BlockNumber(s.ctx)
	reply.Value, reply.Err = v, wireErr(err)
	return nil
}

func (s *ProviderService) BlockHash(args BlockHashArgs, reply *HashReply) error {
	v, err := s.p.BlockHash(s.ctx, args.Number)
	reply.Value, reply.Err = v, wireErr(err)
	return nil
}

func (s *ProviderService) BlockAuthor(_ interface{}, reply *AddressReply) error {
	v, err := s.p.BlockAuthor(s.ctx)
	reply.Value, reply.Err = v, wireErr(err)
	return nil
}

func (s *ProviderService) Difficulty(_ interface{}, reply *WordReply) error {
	v, err := s.p.Difficulty(s.ctx)
	reply.Value, reply.Err = types.U256ToLE(v), wireErr(err)
	return nil
}

func (s *ProviderService) GasLimit(_ interface{}, reply *WordReply) error {
	v, err := s.p.GasLimit(s.ctx)
	reply.Value, reply.Err = types.U256ToLE(v), wireErr(err)
	return nil
}

// RemoteProvider implements provider.Provider over a net/rpc client. Each call
// parks the caller until the response arrives or ctx is done.
type RemoteProvider struct {
	client *rpc.Client
}

// NewRemoteProvider wraps a client connected to a ProviderService.
func NewRemoteProvider(client *rpc.Client) *RemoteProvider {
	return &RemoteProvider{client: client}
}

// Close closes the underlying connection.
func (r *RemoteProvider) Close() error {
	return r.client.Close()
}

func (r *RemoteProvider) call(ctx context.Context, method string, args, reply any) error {
	call := r.client.Go(ProviderServiceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			return errors.Provider(method, call.Error)
		}
		return nil
	case <-ctx.Done():
		return errors.Provider(method, ctx.Err())
	}
}

func (r *RemoteProvider) Exist(ctx context.Context, addr types.Address) (bool, error) {
	var reply BoolReply
	if err := r.call(ctx, "Exist", AddressArgs{Address: addr}, &reply); err != nil {
		return false, err
	}
	return reply.Value, reply.Err.Err()
}

func (r *RemoteProvider) Account(ctx context.Context, addr types.Address) (*types.StateAccount, error) {
	var reply AccountReply
	if err := r.call(ctx, "Account", AddressArgs{Address: addr}, &reply); err != nil {
		return nil, err
	}
	if err := reply.Err.Err(); err != nil {
		return nil, err
	}
	return &types.StateAccount{
		Nonce:   types.U256FromLE(reply.Nonce),
		Balance: types.U256FromLE(reply.Balance),
		Code:    reply.Code,
	}, nil
}

func (r *RemoteProvider) UpdateAccount(ctx context.Context, addr types.Address, balance, nonce *types.U256) error {
	var reply ErrReply
	args := UpdateAccountArgs{Address: addr, Balance: types.U256ToLE(balance), Nonce: types.U256ToLE(nonce)}
	if err := r.call(ctx, "UpdateAccount", args, &reply); err != nil {
		return err
	}
	return reply.Err.Err()
}

func (r *RemoteProvider) CreateContract(ctx context.Context, addr types.Address, code []byte) error {
	var reply ErrReply
	if err := r.call(ctx, "CreateContract", CreateContractArgs{Address: addr, Code: code}, &reply); err != nil {
		return err
	}
	return reply.Err.Err()
}

func (r *RemoteProvider) StorageAt(ctx context.Context, addr types.Address, key types.H256) (types.H256, error) {
	var reply HashReply
	if err := r.call(ctx, "StorageAt", StorageArgs{Address: addr, Key: key}, &reply); err != nil {
		return types.H256{}, err
	}
	return reply.Value, reply.Err.Err()
}

func (r *RemoteProvider) SetStorage(ctx context.Context, addr types.Address, key, value types.H256) error {
	var reply ErrReply
	if err := r.call(ctx, "SetStorage", SetStorageArgs{Address: addr, Key: key, Value: value}, &reply); err != nil {
		return err
	}
	return reply.Err.Err()
}

func (r *RemoteProvider) Timestamp(ctx context.Context) (uint64, error) {
	var reply U64Reply
	if err := r.call(ctx, "Timestamp", new(interface{}), &reply); err != nil {
		return 0, err
	}
	return reply.Value, reply.Err.Err()
}

func (r *RemoteProvider) BlockNumber(ctx context.Context) (uint64, error) {
	var reply U64Reply
	if err := r.call(ctx, "BlockNumber", new(interface{}), &reply); err != nil {
		return 0, err
	}
	return reply.Value, reply.Err.Err()
}

func (r *RemoteProvider) BlockHash(ctx context.Context, number uint64) (types.H256, error) {
	var reply HashReply
	if err := r.call(ctx, "BlockHash", BlockHashArgs{Number: number}, &reply); err != nil {
		return types.H256{}, err
	}
	return reply.Value, reply.Err.Err()
}

func (r *RemoteProvider) BlockAuthor(ctx context.Context) (types.Address, error) {
	var reply AddressReply
	if err := r.call(ctx, "BlockAuthor", new(interface{}), &reply); err != nil {
		return types.Address{}, err
	}
	return reply.Value, reply.Err.Err()
}

func (r *RemoteProvider) Difficulty(ctx context.Context) (*types.U256, error) {
	var reply WordReply
	if err := r.call(ctx, "Difficulty", new(interface{}), &reply); err != nil {
		return nil, err
	}
	if err := reply.Err.Err(); err != nil {
		return nil, err
	}
	return types.U256FromLE(reply.Value), nil
}

func (r *RemoteProvider) GasLimit(ctx context.Context) (*types.U256, error) {
	var reply WordReply
	if err := r.call(ctx, "GasLimit", new(interface{}), &reply); err != nil {
		return nil, err
	}
	if err := reply.Err.Err(); err != nil {
		return nil, err
	}
	return types.U256FromLE(reply.Value), nil
}

var _ provider.Provider = (*RemoteProvider)(nil)
