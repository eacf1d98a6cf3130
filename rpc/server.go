package rpc

import (
	"context"
	"net"
	"net/rpc"
	"time"

	"github.com/hashicorp/yamux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/provider"
	"github.com/wippyai/wasm-executor/types"
)

// ExecutorServiceName is the net/rpc service name of the executor.
const ExecutorServiceName = "Executor"

// Executor runs one transaction against a provider.
type Executor interface {
	Execute(ctx context.Context, tx *types.Transaction, p provider.Provider) (*types.ResultData, error)
}

// ServerConfig holds configuration for server creation
type ServerConfig struct {
	// ExecutionTimeout bounds each Execute request, provider round-trips
	// included. 0 means no limit.
	ExecutionTimeout time.Duration
}

// Server serves Executor.Execute to clients. Every connection is multiplexed
// with yamux: clients open control streams, and the server opens capability
// streams back to reach each request's provider.
type Server struct {
	exec Executor
	cfg  ServerConfig
}

// NewServer returns a server running transactions on exec.
func NewServer(exec Executor, cfg *ServerConfig) *Server {
	s := &Server{exec: exec}
	if cfg != nil {
		s.cfg = *cfg
	}
	return s
}

func yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = zap.NewStdLog(Logger()).Writer()
	return cfg
}

// Serve accepts connections on ln until ctx is done. It returns after every
// connection has been torn down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return errors.Transport("accept", err)
			}
			Logger().Info("client connected", zap.Stringer("remote", conn.RemoteAddr()))
			g.Go(func() error {
				s.serveConn(gctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	session, err := yamux.Server(conn, yamuxConfig())
	if err != nil {
		Logger().Error("yamux session", zap.Error(err))
		conn.Close()
		return
	}
	defer session.Close()

	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-session.CloseChan():
		}
	}()

	broker := NewBroker(session)
	for {
		stream, err := session.AcceptStream()
		if err != nil {
			Logger().Info("client disconnected", zap.Stringer("remote", conn.RemoteAddr()))
			return
		}
		srv := rpc.NewServer()
		if err := srv.RegisterName(ExecutorServiceName, &ExecutorService{ctx: ctx, server: s, broker: broker}); err != nil {
			Logger().Error("register executor service", zap.Error(err))
			stream.Close()
			return
		}
		go srv.ServeConn(stream)
	}
}

// ExecutorService is the net/rpc face of the executor for one connection.
type ExecutorService struct {
	ctx    context.Context
	server *Server
	broker *Broker
}

// Execute decodes the transaction, opens the caller's provider capability and
// runs the transaction on a separate goroutine.
func (e *ExecutorService) Execute(args ExecuteArgs, reply *ExecuteReply) error {
	ctx := e.ctx
	if t := e.server.cfg.ExecutionTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	tx, err := args.Transaction.Decode()
	if err != nil {
		reply.Err = toWireError(err, errors.PhaseWire, errors.KindInvalidInput)
		return nil
	}

	p, err := e.broker.DialProvider(args.Provider)
	if err != nil {
		reply.Err = toWireError(err, errors.PhaseTransport, errors.KindTransport)
		return nil
	}
	defer p.Close()

	res, err := Bridge(ctx, e.server.exec, tx, p)
	if err != nil {
		Logger().Debug("execution failed", zap.Error(err))
		reply.Err = toWireError(err, errors.PhaseExecute, errors.KindWasm)
		return nil
	}
	reply.EncodeResult(res)
	return nil
}

type outcome struct {
	res *types.ResultData
	err error
}

// Bridge runs exec on its own goroutine and waits for the outcome through a
// handoff. A goroutine that dies without reporting is a transport failure.
func Bridge(ctx context.Context, exec Executor, tx *types.Transaction, p provider.Provider) (*types.ResultData, error) {
	h := NewHandoff[outcome]()
	go func() {
		defer h.Close()
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("execution goroutine panicked", zap.Any("panic", r))
			}
		}()
		res, err := exec.Execute(ctx, tx, p)
		h.Send(outcome{res: res, err: err})
	}()

	out, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return out.res, out.err
}
