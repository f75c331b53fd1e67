package protocol

import (
	"sync"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/kaspanet/netnode/util/future"
)

// NetworkNode is the part of netnode.NetworkNode the protocol depends on
type NetworkNode interface {
	SendMessage(peerAddress appmessage.NodeAddress, message appmessage.Message) *future.Future[server.Connection]
	SendMessageToConnection(connection server.Connection, message appmessage.Message) *future.Future[server.Connection]
	AddConnectionListener(listener server.ConnectionListener)
	AddMessageListener(listener server.MessageListener)
}

// Manager manages the p2p protocol: it answers pings, keeps track of the
// pings it sent, and logs what happens to the connections of the node.
type Manager struct {
	node NetworkNode

	pendingPingsLock sync.Mutex
	pendingPings     map[uint64]pendingPing

	quit           chan struct{}
	closeOnce      sync.Once
	flowsWaitGroup sync.WaitGroup
}

// NewManager creates a new instance of the p2p protocol manager and
// registers it as a listener of the given node
func NewManager(node NetworkNode) *Manager {
	manager := &Manager{
		node:         node,
		pendingPings: make(map[uint64]pendingPing),
		quit:         make(chan struct{}),
	}
	node.AddConnectionListener(manager)
	node.AddMessageListener(manager)
	return manager
}

// Close stops the flows of the manager and waits until they finish
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
	})
	m.flowsWaitGroup.Wait()
}

// OnMessage dispatches a received message to its handler.
//
// This is part of the server.MessageListener interface
func (m *Manager) OnMessage(message appmessage.Message, connection server.Connection) {
	switch message := message.(type) {
	case *appmessage.MsgPing:
		m.handlePing(message, connection)
	case *appmessage.MsgPong:
		m.handlePong(message, connection)
	case *appmessage.MsgPayload:
		log.Debugf("Received a payload of %d bytes from %s", len(message.Payload), connection)
	default:
		log.Debugf("Ignoring %s from %s", message.Command(), connection)
	}
}

// OnConnection is part of the server.ConnectionListener interface
func (m *Manager) OnConnection(connection server.Connection) {
	log.Infof("Accepted connection %s", connection)
}

// OnPeerAddressAuthenticated is part of the server.ConnectionListener interface
func (m *Manager) OnPeerAddressAuthenticated(peerAddress appmessage.NodeAddress, connection server.Connection) {
	log.Infof("Connection %s is authenticated as %s", connection.UID(), peerAddress)
}

// OnDisconnect is part of the server.ConnectionListener interface
func (m *Manager) OnDisconnect(reason server.DisconnectReason, connection server.Connection) {
	log.Infof("Disconnected from %s: %s", connection, reason)
}

// OnError is part of the server.ConnectionListener interface
func (m *Manager) OnError(err error) {
	log.Errorf("Network error: %+v", err)
}
