package netnode

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/pkg/errors"
)

type fakeConnection struct {
	uid        string
	isOutbound bool

	connectionListener server.ConnectionListener
	messageListener    server.MessageListener

	lock        sync.Mutex
	peerAddress *appmessage.NodeAddress
	sent        []appmessage.Message
	sendErr     error

	isStopped uint32
	stopCount int32
}

func newFakeConnection(isOutbound bool,
	messageListener server.MessageListener, connectionListener server.ConnectionListener) *fakeConnection {

	return &fakeConnection{
		uid:                uuid.New().String(),
		isOutbound:         isOutbound,
		messageListener:    messageListener,
		connectionListener: connectionListener,
	}
}

func (c *fakeConnection) String() string {
	return fmt.Sprintf("fake connection %s (outbound: %t)", c.uid, c.isOutbound)
}

func (c *fakeConnection) Send(message appmessage.Message) error {
	if c.IsStopped() {
		return errors.Wrapf(server.ErrConnectionStopped, "cannot send %s", message.Command())
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeConnection) sentMessages() []appmessage.Message {
	c.lock.Lock()
	defer c.lock.Unlock()

	return append([]appmessage.Message(nil), c.sent...)
}

func (c *fakeConnection) setSendErr(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.sendErr = err
}

func (c *fakeConnection) Stop() {
	c.disconnect(server.DisconnectReasonLocalClose)
}

// disconnect stops the connection the way the transport does when the peer
// goes away.
func (c *fakeConnection) disconnect(reason server.DisconnectReason) {
	if !atomic.CompareAndSwapUint32(&c.isStopped, 0, 1) {
		return
	}
	atomic.AddInt32(&c.stopCount, 1)
	c.connectionListener.OnDisconnect(reason, c)
}

// markStopped stops the connection without reporting it, which leaves a
// stale connection in the registry.
func (c *fakeConnection) markStopped() {
	atomic.StoreUint32(&c.isStopped, 1)
}

func (c *fakeConnection) receive(message appmessage.Message) {
	c.messageListener.OnMessage(message, c)
}

func (c *fakeConnection) PeerAddress() *appmessage.NodeAddress {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.peerAddress
}

func (c *fakeConnection) SetPeerAddress(peerAddress appmessage.NodeAddress) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.peerAddress = &peerAddress
}

func (c *fakeConnection) UID() string {
	return c.uid
}

func (c *fakeConnection) IsStopped() bool {
	return atomic.LoadUint32(&c.isStopped) != 0
}

func (c *fakeConnection) IsOutbound() bool {
	return c.isOutbound
}

type fakeServer struct {
	address       net.Addr
	quit          chan struct{}
	shutDownOnce  sync.Once
	shutDownCount int32
}

func (s *fakeServer) Run() error {
	<-s.quit
	return nil
}

func (s *fakeServer) ShutDown() {
	atomic.AddInt32(&s.shutDownCount, 1)
	s.shutDownOnce.Do(func() { close(s.quit) })
}

func (s *fakeServer) Address() net.Addr {
	return s.address
}

// fakeTransport creates connections in memory. Outbound connections are never
// reported through OnConnection, like the gRPC transport.
type fakeTransport struct {
	lock         sync.Mutex
	connectCount map[appmessage.NodeAddress]int
	connectErr   error
	connectPanic any
	connectGate  chan struct{}
	listenErr    error
	connections  []*fakeConnection

	server             *fakeServer
	messageListener    server.MessageListener
	connectionListener server.ConnectionListener
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connectCount: make(map[appmessage.NodeAddress]int)}
}

func (t *fakeTransport) Listen(address string,
	messageListener server.MessageListener, connectionListener server.ConnectionListener) (server.Server, error) {

	t.lock.Lock()
	defer t.lock.Unlock()

	if t.listenErr != nil {
		return nil, t.listenErr
	}
	t.messageListener = messageListener
	t.connectionListener = connectionListener
	t.server = &fakeServer{
		address: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242},
		quit:    make(chan struct{}),
	}
	return t.server, nil
}

func (t *fakeTransport) Connect(ctx context.Context, peerAddress appmessage.NodeAddress,
	messageListener server.MessageListener, connectionListener server.ConnectionListener) (server.Connection, error) {

	t.lock.Lock()
	t.connectCount[peerAddress]++
	gate := t.connectGate
	connectErr := t.connectErr
	connectPanic := t.connectPanic
	t.lock.Unlock()

	if connectPanic != nil {
		panic(connectPanic)
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	connection := newFakeConnection(true, messageListener, connectionListener)
	connection.SetPeerAddress(peerAddress)

	t.lock.Lock()
	defer t.lock.Unlock()
	t.connections = append(t.connections, connection)
	return connection, nil
}

func (t *fakeTransport) connectsTo(peerAddress appmessage.NodeAddress) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.connectCount[peerAddress]
}

func (t *fakeTransport) setConnectErr(err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.connectErr = err
}

func (t *fakeTransport) setConnectPanic(value any) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.connectPanic = value
}

func (t *fakeTransport) setConnectGate(gate chan struct{}) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.connectGate = gate
}

// accept simulates an inbound connection. If peerAddress is not nil the
// connection also completes the hello handshake.
func (t *fakeTransport) accept(peerAddress *appmessage.NodeAddress) *fakeConnection {
	t.lock.Lock()
	connection := newFakeConnection(false, t.messageListener, t.connectionListener)
	t.connections = append(t.connections, connection)
	t.lock.Unlock()

	connection.connectionListener.OnConnection(connection)
	if peerAddress != nil {
		connection.SetPeerAddress(*peerAddress)
		connection.connectionListener.OnPeerAddressAuthenticated(*peerAddress, connection)
	}
	return connection
}
