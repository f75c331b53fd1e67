package protocol

import (
	"sync"
	"testing"
	"time"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/kaspanet/netnode/util/future"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type inlineExecutor struct{}

func (inlineExecutor) Execute(task func()) error {
	task()
	return nil
}

type fakeConnection struct {
	peerAddress appmessage.NodeAddress
}

func (c *fakeConnection) String() string { return c.peerAddress.String() }
func (c *fakeConnection) Send(appmessage.Message) error { return nil }
func (c *fakeConnection) Stop() {}
func (c *fakeConnection) PeerAddress() *appmessage.NodeAddress { return &c.peerAddress }
func (c *fakeConnection) SetPeerAddress(appmessage.NodeAddress) {}
func (c *fakeConnection) UID() string { return "fake" }
func (c *fakeConnection) IsStopped() bool { return false }
func (c *fakeConnection) IsOutbound() bool { return true }

type sentMessage struct {
	peerAddress *appmessage.NodeAddress
	connection  server.Connection
	message     appmessage.Message
}

// fakeNode completes every send right away on the calling goroutine
type fakeNode struct {
	lock                sync.Mutex
	sent                []sentMessage
	sendErr             error
	connectionListeners []server.ConnectionListener
	messageListeners    []server.MessageListener
}

func (n *fakeNode) complete(connection server.Connection) *future.Future[server.Connection] {
	result := future.New[server.Connection](inlineExecutor{})
	if n.sendErr != nil {
		_ = result.SetError(n.sendErr)
	} else {
		_ = result.Set(connection)
	}
	return result
}

func (n *fakeNode) SendMessage(peerAddress appmessage.NodeAddress,
	message appmessage.Message) *future.Future[server.Connection] {

	n.lock.Lock()
	defer n.lock.Unlock()

	n.sent = append(n.sent, sentMessage{peerAddress: &peerAddress, message: message})
	return n.complete(&fakeConnection{peerAddress: peerAddress})
}

func (n *fakeNode) SendMessageToConnection(connection server.Connection,
	message appmessage.Message) *future.Future[server.Connection] {

	n.lock.Lock()
	defer n.lock.Unlock()

	n.sent = append(n.sent, sentMessage{connection: connection, message: message})
	return n.complete(connection)
}

func (n *fakeNode) AddConnectionListener(listener server.ConnectionListener) {
	n.connectionListeners = append(n.connectionListeners, listener)
}

func (n *fakeNode) AddMessageListener(listener server.MessageListener) {
	n.messageListeners = append(n.messageListeners, listener)
}

func (n *fakeNode) sentMessages() []sentMessage {
	n.lock.Lock()
	defer n.lock.Unlock()

	return append([]sentMessage(nil), n.sent...)
}

var testPeer = appmessage.NewNodeAddress("10.0.0.2", 16111)

func TestNewManagerRegistersListeners(t *testing.T) {
	node := &fakeNode{}
	manager := NewManager(node)

	require.Equal(t, []server.ConnectionListener{manager}, node.connectionListeners)
	require.Equal(t, []server.MessageListener{manager}, node.messageListeners)
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	node := &fakeNode{}
	manager := NewManager(node)
	connection := &fakeConnection{peerAddress: testPeer}

	manager.OnMessage(appmessage.NewMsgPing(42), connection)

	sent := node.sentMessages()
	require.Len(t, sent, 1)
	require.Equal(t, server.Connection(connection), sent[0].connection)
	pong, ok := sent[0].message.(*appmessage.MsgPong)
	require.True(t, ok, "expected a pong but got %T", sent[0].message)
	require.Equal(t, uint64(42), pong.Nonce)
}

func TestPongCompletesPendingPing(t *testing.T) {
	node := &fakeNode{}
	manager := NewManager(node)

	require.NoError(t, manager.SendPing(testPeer))
	require.Equal(t, 1, manager.PendingPingCount())

	sent := node.sentMessages()
	require.Len(t, sent, 1)
	require.Equal(t, testPeer, *sent[0].peerAddress)
	ping := sent[0].message.(*appmessage.MsgPing)

	connection := &fakeConnection{peerAddress: testPeer}
	manager.OnMessage(appmessage.NewMsgPong(ping.Nonce+1), connection)
	require.Equal(t, 1, manager.PendingPingCount(), "a pong with an unknown nonce must be ignored")

	manager.OnMessage(appmessage.NewMsgPong(ping.Nonce), connection)
	require.Zero(t, manager.PendingPingCount())
}

func TestFailedPingIsForgotten(t *testing.T) {
	node := &fakeNode{sendErr: errors.Wrapf(server.ErrNetwork, "connection refused")}
	manager := NewManager(node)

	require.NoError(t, manager.SendPing(testPeer))
	require.Zero(t, manager.PendingPingCount())
}

func TestExpirePendingPings(t *testing.T) {
	node := &fakeNode{}
	manager := NewManager(node)

	require.NoError(t, manager.SendPing(testPeer))
	manager.expirePendingPings(time.Now())
	require.Equal(t, 1, manager.PendingPingCount())

	manager.expirePendingPings(time.Now().Add(pingTimeout + time.Second))
	require.Zero(t, manager.PendingPingCount())
}

func TestPingPeers(t *testing.T) {
	node := &fakeNode{}
	manager := NewManager(node)

	otherPeer := appmessage.NewNodeAddress("10.0.0.3", 16111)
	manager.PingPeers([]appmessage.NodeAddress{testPeer, otherPeer})
	require.Eventually(t, func() bool { return len(node.sentMessages()) == 2 }, 10*time.Second, 5*time.Millisecond)
	manager.Close()
	manager.Close()

	sent := node.sentMessages()
	require.Equal(t, testPeer, *sent[0].peerAddress)
	require.Equal(t, otherPeer, *sent[1].peerAddress)
	require.Equal(t, 2, manager.PendingPingCount())
}
