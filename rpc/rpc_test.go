package rpc_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/wippyai/wasm-executor/contracts"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/executor"
	"github.com/wippyai/wasm-executor/ledger"
	"github.com/wippyai/wasm-executor/provider"
	"github.com/wippyai/wasm-executor/rpc"
	"github.com/wippyai/wasm-executor/types"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(&ledger.Config{Now: func() time.Time { return time.Unix(1700000000, 0) }})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func newExecutor(t *testing.T) *executor.Executor {
	t.Helper()
	x, err := executor.New(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { x.Close(context.Background()) })
	return x
}

// startServer serves x on a loopback listener and returns a connected client.
func startServer(t *testing.T, x rpc.Executor, cfg *rpc.ServerConfig) *rpc.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rpc.NewServer(x, cfg).Serve(ctx, ln) }()

	c, err := rpc.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return c
}

func TestRemoteMatchesLocal(t *testing.T) {
	ctx := context.Background()
	x := newExecutor(t)

	local, err := contracts.Script(ctx, x, newLedger(t))
	if err != nil {
		t.Fatalf("local script: %v", err)
	}

	client := startServer(t, x, nil)
	remoteLedger := newLedger(t)
	remote, err := contracts.Script(ctx, client, remoteLedger)
	if err != nil {
		t.Fatalf("remote script: %v", err)
	}

	if len(local) != len(remote) {
		t.Fatalf("steps: local %d, remote %d", len(local), len(remote))
	}
	for i := range local {
		l, r := local[i].Result, remote[i].Result
		if !l.GasLeft.Eq(r.GasLeft) || !bytes.Equal(l.Data, r.Data) || l.Contract != r.Contract || len(l.Logs) != len(r.Logs) {
			t.Errorf("step %s differs: local %+v remote %+v", local[i].Name, l, r)
		}
	}

	balance := remote[len(remote)-1].Result.Data
	if !bytes.Equal(balance, contracts.TransferAmount[:]) {
		t.Errorf("bob balance = %x", balance)
	}
	if n := len(remoteLedger.Receipts()); n != 4 {
		t.Errorf("receipts = %d", n)
	}
}

func TestRemoteErrorKeepsKind(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, newExecutor(t), nil)
	l := newLedger(t)

	alice := ledger.AddressFromAlias("alice")
	zero := types.NewU256(0)
	_, err := client.Execute(ctx, types.NewCreate(alice, zero, types.NewU256(1000), zero, contracts.Token(), contracts.InitialSupply[:], types.H256{}), l)
	if !errors.Is(err, errors.ErrGasLimit) {
		t.Errorf("expected gas limit, got %v", err)
	}
	_, err = client.Execute(ctx, types.NewCall(alice, ledger.AddressFromAlias("nobody"), zero, types.NewU256(1000), zero, nil), l)
	if !errors.Is(err, errors.ErrProvider) {
		t.Errorf("expected provider error, got %v", err)
	}
}

type stuckExecutor struct{}

func (stuckExecutor) Execute(ctx context.Context, _ *types.Transaction, _ provider.Provider) (*types.ResultData, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestServerExecutionTimeout(t *testing.T) {
	client := startServer(t, stuckExecutor{}, &rpc.ServerConfig{ExecutionTimeout: 20 * time.Millisecond})
	zero := types.NewU256(0)
	tx := types.NewCall(types.Address{}, types.Address{}, zero, zero, zero, nil)
	_, err := client.Execute(context.Background(), tx, newLedger(t))
	if err == nil {
		t.Fatal("expected timeout")
	}
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, *types.Transaction, provider.Provider) (*types.ResultData, error) {
	panic("lost")
}

func TestBridgeReportsDisconnect(t *testing.T) {
	_, err := rpc.Bridge(context.Background(), panickingExecutor{}, nil, nil)
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestRemoteProviderOverBroker(t *testing.T) {
	ctx := context.Background()
	a, b := net.Pipe()

	holderSession, err := yamux.Client(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	peerSession, err := yamux.Server(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer holderSession.Close()
	defer peerSession.Close()

	l := newLedger(t)
	holder := rpc.NewBroker(holderSession)
	id := holder.Register(l)
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go holder.Serve(serveCtx)

	p, err := rpc.NewBroker(peerSession).DialProvider(id)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	alice := ledger.AddressFromAlias("alice")
	acc, err := p.Account(ctx, alice)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	want, _ := l.Account(ctx, alice)
	if !acc.Balance.Eq(want.Balance) {
		t.Errorf("balance = %s, want %s", acc.Balance, want.Balance)
	}

	_, err = p.Account(ctx, ledger.AddressFromAlias("nobody"))
	if !errors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
		t.Errorf("expected not found to survive the wire, got %v", err)
	}

	key := types.H256{1}
	if err := p.SetStorage(ctx, alice, key, types.H256{2}); err != nil {
		t.Fatal(err)
	}
	if v, _ := l.StorageAt(ctx, alice, key); v != (types.H256{2}) {
		t.Errorf("storage = %x", v)
	}
	if ts, err := p.Timestamp(ctx); err != nil || ts != 1700000000 {
		t.Errorf("Timestamp = %d, %v", ts, err)
	}
	if d, err := p.Difficulty(ctx); err != nil || d.Uint64() != 131072 {
		t.Errorf("Difficulty = %v, %v", d, err)
	}
	author, _ := l.BlockAuthor(ctx)
	if got, _ := p.BlockAuthor(ctx); got != author {
		t.Errorf("BlockAuthor = %s", got)
	}

	holder.Unregister(id)
	q, err := rpc.NewBroker(peerSession).DialProvider(id)
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()
	if _, err := q.Exist(ctx, alice); !errors.Is(err, errors.ErrProvider) {
		t.Errorf("revoked capability should fail, got %v", err)
	}
}
