package grpcserver

import (
	"net"
	"sync"
	"time"

	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/kaspanet/netnode/util/panics"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
)

// MaxMessageSize is the maximum size of a single gRPC frame
const MaxMessageSize = 1024 * 1024 * 10 // 10MB

type gRPCServer struct {
	server   *grpc.Server
	listener net.Listener

	messageListener    server.MessageListener
	connectionListener server.ConnectionListener

	quit         chan struct{}
	shutDownOnce sync.Once
}

// newGRPCServer creates a gRPC server accepting connections on the given listener
func newGRPCServer(listener net.Listener,
	messageListener server.MessageListener, connectionListener server.ConnectionListener) *gRPCServer {

	log.Debugf("Created new GRPC server on %s with maxMessageSize %d", listener.Addr(), MaxMessageSize)
	s := &gRPCServer{
		server:             grpc.NewServer(grpc.MaxRecvMsgSize(MaxMessageSize), grpc.MaxSendMsgSize(MaxMessageSize)),
		listener:           listener,
		messageListener:    messageListener,
		connectionListener: connectionListener,
		quit:               make(chan struct{}),
	}
	s.server.RegisterService(&p2pServiceDesc, s)
	return s
}

// Run serves inbound connections until ShutDown is called.
//
// This is part of the Server interface
func (s *gRPCServer) Run() error {
	log.Infof("Server listening on %s", s.listener.Addr())
	err := s.server.Serve(s.listener)
	if err != nil {
		return errors.Wrapf(err, "error serving on %s", s.listener.Addr())
	}
	return nil
}

// ShutDown stops accepting connections and stops every inbound connection
// of this server. Calling it more than once does nothing.
//
// This is part of the Server interface
func (s *gRPCServer) ShutDown() {
	s.shutDownOnce.Do(func() {
		const stopTimeout = 2 * time.Second

		close(s.quit)

		stopChan := make(chan interface{})
		spawn("gRPCServer.ShutDown-GracefulStop", func() {
			s.server.GracefulStop()
			close(stopChan)
		})

		select {
		case <-stopChan:
		case <-time.After(stopTimeout):
			log.Warnf("Could not gracefully stop the server on %s: timed out after %s", s.listener.Addr(), stopTimeout)
			s.server.Stop()
		}
	})
}

// Address returns the address the server is bound to
//
// This is part of the Server interface
func (s *gRPCServer) Address() net.Addr {
	return s.listener.Addr()
}

// MessageStream handles a single inbound connection. It returns once the
// connection is stopped, which ends the stream.
func (s *gRPCServer) MessageStream(stream grpcStream) error {
	defer panics.HandlePanic(log, "gRPCServer.MessageStream", nil)

	serverStream := stream.(*messageStreamServer)
	peerInfo, ok := peer.FromContext(serverStream.Context())
	if !ok {
		return errors.Errorf("Error getting stream peer info from context")
	}

	connection := newConnection(peerInfo.Addr, stream, nil, s.messageListener, s.connectionListener)
	log.Infof("Incoming connection from %s", peerInfo.Addr)

	s.connectionListener.OnConnection(connection)
	spawn("gRPCServer.MessageStream-receiveLoop", connection.receiveLoop)

	select {
	case <-connection.stopChan:
	case <-s.quit:
		connection.Stop()
	}
	return nil
}
