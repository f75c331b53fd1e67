package server

import (
	"context"
	"fmt"
	"net"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/pkg/errors"
)

// ErrNetwork is an error related to the internals of the connection, and not an error that
// came from outside (e.g. from a listener).
var ErrNetwork = errors.New("network error")

// ErrConnectionStopped is returned when sending a message through a stopped connection.
var ErrConnectionStopped = errors.New("connection is stopped")

// DisconnectReason describes why a connection was disconnected
type DisconnectReason uint8

// The reasons a connection may be disconnected for
const (
	DisconnectReasonUnknown DisconnectReason = iota
	DisconnectReasonPeerClosed
	DisconnectReasonReset
	DisconnectReasonError
	DisconnectReasonLocalClose
)

func (reason DisconnectReason) String() string {
	switch reason {
	case DisconnectReasonPeerClosed:
		return "peer closed"
	case DisconnectReasonReset:
		return "reset"
	case DisconnectReasonError:
		return "error"
	case DisconnectReasonLocalClose:
		return "local close"
	default:
		return "unknown"
	}
}

// Connection represents a bidirectional session to a single peer.
type Connection interface {
	fmt.Stringer

	// Send writes the given message to the peer. It may block on I/O.
	Send(message appmessage.Message) error

	// Stop closes the connection. Calling it more than once does nothing.
	Stop()

	// PeerAddress returns the address of the peer, or nil if it's not yet known.
	PeerAddress() *appmessage.NodeAddress
	SetPeerAddress(peerAddress appmessage.NodeAddress)

	UID() string
	IsStopped() bool
	IsOutbound() bool
}

// ConnectionListener is notified about the lifecycle of connections.
type ConnectionListener interface {
	OnConnection(connection Connection)
	OnPeerAddressAuthenticated(peerAddress appmessage.NodeAddress, connection Connection)
	OnDisconnect(reason DisconnectReason, connection Connection)
	OnError(err error)
}

// MessageListener is notified about every message received through a connection.
type MessageListener interface {
	OnMessage(message appmessage.Message, connection Connection)
}

// SetupListener is notified about the startup of a node.
type SetupListener interface {
	OnServerReady(address appmessage.NodeAddress)
	OnSetupFailed(err error)
}

// Server accepts inbound connections.
type Server interface {
	// Run accepts connections until ShutDown is called.
	Run() error
	ShutDown()
	Address() net.Addr
}

// Transport creates servers and outbound connections. Connections it creates
// report received messages and lifecycle events to the given listeners.
type Transport interface {
	Listen(address string, messageListener MessageListener, connectionListener ConnectionListener) (Server, error)
	Connect(ctx context.Context, peerAddress appmessage.NodeAddress,
		messageListener MessageListener, connectionListener ConnectionListener) (Connection, error)
}
