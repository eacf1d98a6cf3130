package rpc

import (
	"context"
	"net"
	"net/rpc"

	"github.com/hashicorp/yamux"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/provider"
	"github.com/wippyai/wasm-executor/types"
)

// Client executes transactions on a remote server while serving the
// provider of each request from this process.
type Client struct {
	session *yamux.Session
	broker  *Broker
	control *rpc.Client
	cancel  context.CancelFunc
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Transport("dial", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return NewClient(conn)
}

// NewClient starts a client over an established connection.
func NewClient(conn net.Conn) (*Client, error) {
	session, err := yamux.Client(conn, yamuxConfig())
	if err != nil {
		conn.Close()
		return nil, errors.Transport("yamux session", err)
	}
	stream, err := session.OpenStream()
	if err != nil {
		session.Close()
		return nil, errors.Transport("open control stream", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		session: session,
		broker:  NewBroker(session),
		control: rpc.NewClient(stream),
		cancel:  cancel,
	}
	go func() {
		if err := c.broker.Serve(ctx); err != nil {
			Logger().Warn("capability broker stopped", zap.Error(err))
		}
	}()
	return c, nil
}

// Execute runs tx remotely. p stays in this process and is reachable by the
// server only for the duration of the call.
func (c *Client) Execute(ctx context.Context, tx *types.Transaction, p provider.Provider) (*types.ResultData, error) {
	wtx, err := EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	id := c.broker.Register(p)
	defer c.broker.Unregister(id)

	var reply ExecuteReply
	call := c.control.Go(ExecutorServiceName+".Execute", &ExecuteArgs{Transaction: wtx, Provider: id}, &reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			return nil, errors.Transport("execute", call.Error)
		}
		return reply.Result()
	case <-ctx.Done():
		return nil, errors.Transport("execute", ctx.Err())
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.cancel()
	c.control.Close()
	return c.session.Close()
}
