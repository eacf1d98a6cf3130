package rpc

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/rpc"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/yamux"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/provider"
)

// Broker passes provider capabilities over a yamux session. The holder of a
// provider registers it and gets an ID; the peer dials the ID, which opens a
// stream back to the holder carrying net/rpc for that provider.
type Broker struct {
	session *yamux.Session
	nextID  uint32

	mu   sync.Mutex
	caps map[CapabilityID]provider.Provider
}

// NewBroker returns a broker over session.
func NewBroker(session *yamux.Session) *Broker {
	return &Broker{session: session, caps: make(map[CapabilityID]provider.Provider)}
}

// Register makes p reachable by the peer under the returned ID.
func (b *Broker) Register(p provider.Provider) CapabilityID {
	id := CapabilityID(atomic.AddUint32(&b.nextID, 1))
	b.mu.Lock()
	b.caps[id] = p
	b.mu.Unlock()
	return id
}

// Unregister revokes id. Streams already serving it stay open until closed by the peer.
func (b *Broker) Unregister(id CapabilityID) {
	b.mu.Lock()
	delete(b.caps, id)
	b.mu.Unlock()
}

func (b *Broker) lookup(id CapabilityID) (provider.Provider, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.caps[id]
	return p, ok
}

// Dial opens a stream to capability id held by the peer.
func (b *Broker) Dial(id CapabilityID) (net.Conn, error) {
	stream, err := b.session.OpenStream()
	if err != nil {
		return nil, errors.Transport("open capability stream", err)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(id))
	if _, err := stream.Write(hdr[:]); err != nil {
		stream.Close()
		return nil, errors.Transport("write capability id", err)
	}
	return stream, nil
}

// DialProvider opens capability id as a provider.
func (b *Broker) DialProvider(id CapabilityID) (*RemoteProvider, error) {
	conn, err := b.Dial(id)
	if err != nil {
		return nil, err
	}
	return NewRemoteProvider(rpc.NewClient(conn)), nil
}

// Serve accepts capability streams opened by the peer until the session
// closes or ctx is done. Each stream is served on its own goroutine.
func (b *Broker) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.session.Close()
	}()
	for {
		stream, err := b.session.AcceptStream()
		if err != nil {
			if b.session.IsClosed() {
				return nil
			}
			return errors.Transport("accept capability stream", err)
		}
		go b.serveStream(ctx, stream)
	}
}

func (b *Broker) serveStream(ctx context.Context, stream net.Conn) {
	var hdr [4]byte
	if _, err := io.ReadFull(stream, hdr[:]); err != nil {
		Logger().Debug("capability stream closed before its id", zap.Error(err))
		stream.Close()
		return
	}
	id := CapabilityID(binary.LittleEndian.Uint32(hdr[:]))
	p, ok := b.lookup(id)
	if !ok {
		Logger().Warn("unknown capability requested", zap.Uint32("id", uint32(id)))
		stream.Close()
		return
	}

	srv := rpc.NewServer()
	if err := srv.RegisterName(ProviderServiceName, NewProviderService(ctx, p)); err != nil {
		Logger().Error("register provider service", zap.Error(err))
		stream.Close()
		return
	}
	srv.ServeConn(stream)
}
