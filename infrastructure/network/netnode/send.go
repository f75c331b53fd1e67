package netnode

import (
	"context"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync/atomic"
	"syscall"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/config"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/kaspanet/netnode/util/future"
	"github.com/kaspanet/netnode/util/workerpool"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SendMessage sends message to the peer at peerAddress. A live connection to
// the peer is reused, outbound ones first. Otherwise a new outbound connection
// is established on the worker pool.
//
// The returned future resolves on the control thread with the connection the
// message was written to, or with the error that prevented it.
func (n *NetworkNode) SendMessage(peerAddress appmessage.NodeAddress,
	message appmessage.Message) *future.Future[server.Connection] {

	result := future.New[server.Connection](n.controlThread)
	if !n.isRunning() {
		n.reject(result, errors.Wrapf(ErrNodeNotRunning, "cannot send %s to %s", message.Command(), peerAddress))
		return result
	}

	connection := n.registry.findUsable(peerAddress)
	if connection != nil {
		log.Tracef("Reusing %s to send %s", connection, message.Command())
		n.sendToConnection(result, connection, message)
		return result
	}

	taskName := fmt.Sprintf("NetworkNode:SendMessage-to-%s", peerAddress)
	err := n.submit(taskName, func() {
		connection, err := recoverSendPanic(func() (server.Connection, error) {
			return n.connectAndSend(peerAddress, message)
		})
		if err != nil {
			n.handleSendFailure(err)
		}
		n.complete(result, connection, err)
	})
	if err != nil {
		n.handleSendFailure(err)
		n.reject(result, err)
	}
	return result
}

// SendMessageToConnection writes message to the given connection on the
// worker pool. The returned future resolves on the control thread with the
// connection, or with the error of the send.
func (n *NetworkNode) SendMessageToConnection(connection server.Connection,
	message appmessage.Message) *future.Future[server.Connection] {

	result := future.New[server.Connection](n.controlThread)
	if !n.isRunning() {
		n.reject(result, errors.Wrapf(ErrNodeNotRunning, "cannot send %s to %s", message.Command(), connection))
		return result
	}
	n.sendToConnection(result, connection, message)
	return result
}

func (n *NetworkNode) sendToConnection(result *future.Future[server.Connection],
	connection server.Connection, message appmessage.Message) {

	taskName := fmt.Sprintf("NetworkNode:SendMessage-to-%s", connection.UID())
	err := n.submit(taskName, func() {
		_, err := recoverSendPanic(func() (server.Connection, error) {
			return nil, n.send(connection, message)
		})
		if err != nil {
			n.handleSendFailure(err)
			n.complete(result, nil, err)
			return
		}
		n.complete(result, connection, nil)
	})
	if err != nil {
		n.handleSendFailure(err)
		n.reject(result, err)
	}
}

// connectAndSend runs on the worker pool. Establishing a connection is
// serialized per peer address, so concurrent sends to a new peer share a
// single connection.
func (n *NetworkNode) connectAndSend(peerAddress appmessage.NodeAddress,
	message appmessage.Message) (server.Connection, error) {

	connection, err := n.findOrConnect(peerAddress, message)
	if err != nil {
		return nil, err
	}
	err = n.send(connection, message)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (n *NetworkNode) findOrConnect(peerAddress appmessage.NodeAddress,
	message appmessage.Message) (server.Connection, error) {

	unlock := n.creationLocks.lock(peerAddress)
	defer unlock()

	connection := n.registry.findUsable(peerAddress)
	if connection != nil {
		return connection, nil
	}
	return n.connect(peerAddress, message)
}

// recoverSendPanic runs operation and turns a panic of the transport into an
// error, so the future of the send is still rejected.
func recoverSendPanic(operation func() (server.Connection, error)) (connection server.Connection, err error) {
	defer func() {
		if r := recover(); r != nil {
			connection = nil
			err = errors.Errorf("panic while sending: %+v\n%s", r, debug.Stack())
		}
	}()
	return operation()
}

func (n *NetworkNode) connect(peerAddress appmessage.NodeAddress,
	message appmessage.Message) (server.Connection, error) {

	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultConnectTimeout)
	defer cancel()

	connection, err := n.transport.Connect(ctx, peerAddress, n.events, n.events)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", peerAddress)
	}
	connection.SetPeerAddress(peerAddress)
	log.Infof("Created new outbound connection to %s with uid %s to send %s",
		peerAddress, connection.UID(), message.Command())

	n.registry.register(directionOutbound, connection)
	n.metrics.connectionCreated()
	n.metrics.updateConnectionGauges(n.registry)

	// A connection that stopped before being registered is never
	// reported disconnected again, and one created while the node
	// shuts down is missed by ShutDown.
	if connection.IsStopped() {
		n.registry.onDisconnect(connection)
		n.metrics.updateConnectionGauges(n.registry)
		return nil, errors.Wrapf(server.ErrConnectionStopped, "connection to %s stopped right away", peerAddress)
	}
	if atomic.LoadUint32(&n.isShutDownInProgress) != 0 {
		connection.Stop()
		return nil, errors.Wrapf(ErrNodeNotRunning, "node shut down while connecting to %s", peerAddress)
	}
	return connection, nil
}

func (n *NetworkNode) send(connection server.Connection, message appmessage.Message) error {
	err := connection.Send(message)
	if err != nil {
		return err
	}
	n.metrics.messageSent()
	return nil
}

// submit schedules a task on the worker pool. A stopped pool means the node
// is no longer running.
func (n *NetworkNode) submit(taskName string, task func()) error {
	err := n.workerPool.Submit(taskName, task)
	if errors.Is(err, workerpool.ErrPoolStopped) {
		return errors.Wrapf(ErrNodeNotRunning, "%s", err)
	}
	return err
}

// complete resolves result on the control thread.
func (n *NetworkNode) complete(result *future.Future[server.Connection], connection server.Connection, err error) {
	n.executeOnControlThread(func() {
		var completeErr error
		if err != nil {
			completeErr = result.SetError(err)
		} else {
			completeErr = result.Set(connection)
		}
		if completeErr != nil {
			log.Warnf("Could not complete the result of a send: %s", completeErr)
		}
	})
}

// reject fails a future that was not yet handed to the caller. Since no
// callback can be registered yet, it is failed right away. Callbacks added
// later run on the control thread, or on the caller's goroutine once the
// control thread is stopped.
func (n *NetworkNode) reject(result *future.Future[server.Connection], err error) {
	_ = result.SetError(err)
}

// handleSendFailure reports a failed send. Expected network failures are only
// logged at debug level, anything else is reported to the connection listeners.
func (n *NetworkNode) handleSendFailure(err error) {
	if isExpectedFailure(err) {
		log.Debugf("Sending failed: %s", err)
		n.metrics.sendFailed(true)
		return
	}
	log.Errorf("Sending failed: %+v", err)
	n.metrics.sendFailed(false)
	n.executeOnControlThread(func() { n.hub.notifyError(err) })
}

// isExpectedFailure returns whether err is one of the failures the network
// routinely produces, as opposed to a bug or a misconfiguration.
func isExpectedFailure(err error) bool {
	expectedErrors := []error{
		server.ErrNetwork,
		server.ErrConnectionStopped,
		ErrNodeNotRunning,
		io.EOF,
		io.ErrUnexpectedEOF,
		context.DeadlineExceeded,
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
	}
	for _, expected := range expectedErrors {
		if errors.Is(err, expected) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	switch status.Code(errors.Cause(err)) {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		return true
	}
	return false
}
