package grpcserver

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type gRPCConnection struct {
	uid           string
	remoteAddress net.Addr
	stream        grpcStream
	isOutbound    bool

	// lowLevelClientConnection is nil for inbound connections
	lowLevelClientConnection *grpc.ClientConn

	messageListener    server.MessageListener
	connectionListener server.ConnectionListener

	peerAddressLock sync.RWMutex
	peerAddress     *appmessage.NodeAddress

	// sendLock serializes writes to stream, since a gRPC stream
	// does not support concurrent calls to Send. closeSend
	// takes it too so it never runs in the middle of a Send.
	sendLock sync.Mutex

	stopChan  chan struct{}
	isStopped uint32
}

func newConnection(remoteAddress net.Addr, stream grpcStream, lowLevelClientConnection *grpc.ClientConn,
	messageListener server.MessageListener, connectionListener server.ConnectionListener) *gRPCConnection {

	return &gRPCConnection{
		uid:                      uuid.New().String(),
		remoteAddress:            remoteAddress,
		stream:                   stream,
		isOutbound:               lowLevelClientConnection != nil,
		lowLevelClientConnection: lowLevelClientConnection,
		messageListener:          messageListener,
		connectionListener:       connectionListener,
		stopChan:                 make(chan struct{}),
	}
}

func (c *gRPCConnection) String() string {
	direction := "inbound"
	if c.isOutbound {
		direction = "outbound"
	}
	peer := "unknown peer"
	if peerAddress := c.PeerAddress(); peerAddress != nil {
		peer = peerAddress.String()
	}
	return fmt.Sprintf("%s (%s %s, uid %s)", peer, direction, c.remoteAddress, c.uid)
}

func (c *gRPCConnection) UID() string {
	return c.uid
}

func (c *gRPCConnection) IsOutbound() bool {
	return c.isOutbound
}

func (c *gRPCConnection) IsStopped() bool {
	return atomic.LoadUint32(&c.isStopped) != 0
}

func (c *gRPCConnection) PeerAddress() *appmessage.NodeAddress {
	c.peerAddressLock.RLock()
	defer c.peerAddressLock.RUnlock()

	return c.peerAddress
}

func (c *gRPCConnection) SetPeerAddress(peerAddress appmessage.NodeAddress) {
	c.peerAddressLock.Lock()
	defer c.peerAddressLock.Unlock()

	c.peerAddress = &peerAddress
}

// Send encodes the message and writes it to the stream.
//
// This is part of the Connection interface
func (c *gRPCConnection) Send(message appmessage.Message) error {
	if c.IsStopped() {
		return errors.Wrapf(server.ErrConnectionStopped, "cannot send %s to %s", message.Command(), c)
	}

	payload, err := appmessage.EncodeMessage(message)
	if err != nil {
		return err
	}

	log.Tracef("Sending %s to %s: %s", message.Command(), c,
		logger.NewLogClosure(func() string { return spew.Sdump(message) }))

	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	err = c.stream.Send(&wrapperspb.BytesValue{Value: payload})
	if err != nil {
		return errors.Wrapf(server.ErrNetwork, "error sending %s to %s: %s", message.Command(), c, err)
	}
	return nil
}

// Stop disconnects the connection
// Calling this function a second time doesn't do anything
//
// This is part of the Connection interface
func (c *gRPCConnection) Stop() {
	c.stop(server.DisconnectReasonLocalClose)
}

func (c *gRPCConnection) stop(reason server.DisconnectReason) {
	if !atomic.CompareAndSwapUint32(&c.isStopped, 0, 1) {
		return
	}

	close(c.stopChan)

	if c.isOutbound {
		c.closeSend()
	}

	log.Debugf("Disconnected from %s: %s", c, reason)
	c.connectionListener.OnDisconnect(reason, c)
}

// closeSend half-closes the stream when no Send is in progress, and then
// closes the underlying client connection, which also unblocks a pending Send.
func (c *gRPCConnection) closeSend() {
	if c.sendLock.TryLock() {
		clientStream := c.stream.(grpc.ClientStream)

		// ignore error because we don't really know what's the status of the connection
		_ = clientStream.CloseSend()
		c.sendLock.Unlock()
	}
	_ = c.lowLevelClientConnection.Close()
}

func (c *gRPCConnection) receiveLoop() {
	for {
		frame, err := c.stream.Recv()
		if err != nil {
			reason := c.disconnectReason(err)
			if reason == server.DisconnectReasonError {
				log.Warnf("Error receiving from %s: %s", c, err)
			}
			c.stop(reason)
			return
		}

		message, err := appmessage.DecodeMessage(frame.Value)
		if err != nil {
			c.connectionListener.OnError(errors.Wrapf(err, "received an invalid message from %s", c))
			c.stop(server.DisconnectReasonError)
			return
		}
		message.SetReceivedAt(time.Now())

		log.Tracef("Received %s from %s: %s", message.Command(), c,
			logger.NewLogClosure(func() string { return spew.Sdump(message) }))

		if hello, ok := message.(*appmessage.MsgHello); ok {
			c.handleHello(hello)
			continue
		}
		c.messageListener.OnMessage(message, c)
	}
}

// handleHello assigns the address announced by the peer to an inbound
// connection. Outbound connections already know their peer address.
func (c *gRPCConnection) handleHello(hello *appmessage.MsgHello) {
	if c.isOutbound || c.PeerAddress() != nil {
		log.Debugf("Ignoring a redundant hello from %s", c)
		return
	}
	c.SetPeerAddress(hello.Address)
	log.Debugf("Peer %s authenticated its address as %s", c.remoteAddress, hello.Address)
	c.connectionListener.OnPeerAddressAuthenticated(hello.Address, c)
}

func (c *gRPCConnection) disconnectReason(err error) server.DisconnectReason {
	if c.IsStopped() {
		return server.DisconnectReasonLocalClose
	}
	if errors.Is(err, io.EOF) {
		return server.DisconnectReasonPeerClosed
	}
	switch status.Code(err) {
	case codes.Canceled, codes.Unavailable:
		return server.DisconnectReasonReset
	}
	return server.DisconnectReasonError
}
