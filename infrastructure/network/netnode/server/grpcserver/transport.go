package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/config"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
)

// Transport implements server.Transport on top of gRPC bidirectional
// streams. Outbound connections are dialed through the dial functions of
// the config, so they go through a SOCKS5 proxy when one is configured.
type Transport struct {
	cfg *config.Config

	localAddressLock sync.RWMutex
	localAddress     appmessage.NodeAddress
}

// NewTransport creates a new gRPC Transport
func NewTransport(cfg *config.Config) *Transport {
	return &Transport{
		cfg:          cfg,
		localAddress: cfg.ExternalAddress(),
	}
}

// LocalAddress returns the address announced to peers in the hello message
// of outbound connections.
func (t *Transport) LocalAddress() appmessage.NodeAddress {
	t.localAddressLock.RLock()
	defer t.localAddressLock.RUnlock()

	return t.localAddress
}

// Listen binds the given address and returns a server for it.
// If the configured port is zero the announced local address takes the
// port that was actually bound.
//
// This is part of the Transport interface
func (t *Transport) Listen(address string,
	messageListener server.MessageListener, connectionListener server.ConnectionListener) (server.Server, error) {

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "error listening on %s", address)
	}

	if tcpAddress, ok := listener.Addr().(*net.TCPAddr); ok && t.cfg.Port == 0 {
		t.localAddressLock.Lock()
		t.localAddress.Port = uint16(tcpAddress.Port)
		t.localAddressLock.Unlock()
	}

	return newGRPCServer(listener, messageListener, connectionListener), nil
}

// Connect dials the given peer, opens a message stream and announces the
// local address to it. Connect returns once the hello message was sent or
// when ctx expires.
//
// This is part of the Transport interface
func (t *Transport) Connect(ctx context.Context, peerAddress appmessage.NodeAddress,
	messageListener server.MessageListener, connectionListener server.ConnectionListener) (server.Connection, error) {

	log.Debugf("Dialing to %s", peerAddress)

	dial := t.cfg.DialFor(peerAddress)
	contextDialer := func(ctx context.Context, address string) (net.Conn, error) {
		timeout := config.DefaultConnectTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		return dial("tcp", address, timeout)
	}

	gRPCClientConnection, err := grpc.DialContext(ctx, peerAddress.String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.FailOnNonTempDialError(true),
		grpc.WithContextDialer(contextDialer),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(MaxMessageSize), grpc.MaxCallSendMsgSize(MaxMessageSize)))
	if err != nil {
		return nil, errors.Wrapf(server.ErrNetwork, "error connecting to %s: %s", peerAddress, err)
	}

	clientStream, err := gRPCClientConnection.NewStream(context.Background(), &p2pServiceDesc.Streams[0],
		messageStreamMethod, grpc.UseCompressor(gzip.Name))
	if err != nil {
		_ = gRPCClientConnection.Close()
		return nil, errors.Wrapf(server.ErrNetwork, "error getting client stream for %s: %s", peerAddress, err)
	}

	connection := newConnection(stringAddr(peerAddress.String()), &messageStreamClient{clientStream},
		gRPCClientConnection, messageListener, connectionListener)
	connection.SetPeerAddress(peerAddress)

	err = connection.Send(appmessage.NewMsgHello(t.LocalAddress()))
	if err != nil {
		_ = clientStream.CloseSend()
		_ = gRPCClientConnection.Close()
		return nil, err
	}

	spawn("Transport.Connect-receiveLoop", connection.receiveLoop)
	log.Debugf("Connected to %s", connection)
	return connection, nil
}

// stringAddr is the remote address of outbound connections. The peer host is
// never resolved locally since it may only be reachable through the proxy.
type stringAddr string

func (a stringAddr) Network() string { return "tcp" }
func (a stringAddr) String() string  { return string(a) }
