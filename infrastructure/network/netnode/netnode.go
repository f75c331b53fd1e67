// Package netnode manages the connections of a p2p node. It reuses or
// establishes a connection for every outgoing message, keeps track of inbound
// and outbound connections, and reports connection events and received
// messages to the registered listeners.
//
// Listener callbacks and the completion of the futures returned by
// NetworkNode are delivered on the node's control thread, one at a time and
// in the order the events occurred. Once the node is shut down, a callback
// added to an already completed future runs on the caller's goroutine.
package netnode

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/config"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/kaspanet/netnode/util/controlthread"
	"github.com/kaspanet/netnode/util/workerpool"
	"github.com/pkg/errors"
)

var (
	// ErrNodeNotRunning is returned when using a node that is not started or already shut down.
	ErrNodeNotRunning = errors.New("network node is not running")

	// ErrAlreadyStarted is returned when starting a node more than once.
	ErrAlreadyStarted = errors.New("network node was already started")
)

// State is a stage in the lifecycle of a NetworkNode
type State uint32

// The lifecycle of a NetworkNode. A node only moves forward through these states.
const (
	StateNotStarted State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

var stateStrings = map[State]string{
	StateNotStarted:   "NotStarted",
	StateRunning:      "Running",
	StateShuttingDown: "ShuttingDown",
	StateStopped:      "Stopped",
}

func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown State (%d)", uint32(s))
}

// NetworkNode is the connection manager of a p2p node
type NetworkNode struct {
	cfg       *config.Config
	transport server.Transport
	metrics   *nodeMetrics

	controlThread *controlthread.ControlThread
	workerPool    *workerpool.Pool
	registry      *connectionRegistry
	hub           *listenerHub
	creationLocks *addressLocks

	// events receives everything the transport reports
	events *transportEvents

	stateLock sync.RWMutex
	state     State
	server    server.Server
	address   *appmessage.NodeAddress

	isShutDownInProgress uint32
}

// New creates a new NetworkNode that listens and connects through the given transport.
// Call Start to begin listening.
func New(cfg *config.Config, transport server.Transport, opts ...Option) (*NetworkNode, error) {
	nodeOptions := &options{}
	for _, opt := range opts {
		err := opt(nodeOptions)
		if err != nil {
			return nil, err
		}
	}

	workerPool, err := workerpool.New(workerpool.Config{
		Name:        "NetworkNode",
		MinWorkers:  config.MinWorkers,
		MaxWorkers:  config.MaxWorkers,
		IdleTimeout: config.WorkerIdleTimeout,
	})
	if err != nil {
		return nil, err
	}

	node := &NetworkNode{
		cfg:           cfg,
		transport:     transport,
		metrics:       newNodeMetrics(nodeOptions.metricSink, nodeOptions.metricLabels),
		controlThread: controlthread.New("NetworkNode.controlThread"),
		workerPool:    workerPool,
		registry:      newConnectionRegistry(),
		hub:           newListenerHub(),
		creationLocks: newAddressLocks(),
		state:         StateNotStarted,
	}
	node.events = &transportEvents{node: node}
	return node, nil
}

// Start opens the listening server of the node and starts accepting
// connections. setupListener, if not nil, is registered as a setup listener
// before the outcome is reported. A listening failure is reported to the
// setup listeners and returned.
func (n *NetworkNode) Start(setupListener server.SetupListener) error {
	n.stateLock.Lock()
	if n.state != StateNotStarted {
		state := n.state
		n.stateLock.Unlock()
		return errors.Wrapf(ErrAlreadyStarted, "cannot start a node in state %s", state)
	}

	if setupListener != nil {
		n.AddSetupListener(setupListener)
	}
	n.controlThread.Start()
	n.workerPool.Start()

	listenAddress := n.cfg.ListenAddress()
	srv, err := n.transport.Listen(listenAddress, n.events, n.events)
	if err != nil {
		n.state = StateStopped
		n.stateLock.Unlock()

		log.Errorf("Failed to listen on %s: %s", listenAddress, err)
		n.executeOnControlThread(func() { n.hub.notifySetupFailed(err) })
		n.release()
		return err
	}

	address := n.advertisedAddress(srv)
	n.server = srv
	n.address = &address
	n.state = StateRunning
	n.stateLock.Unlock()

	err = n.workerPool.Submit(fmt.Sprintf("NetworkNode:Server-%s", address), func() {
		err := srv.Run()
		if err != nil && atomic.LoadUint32(&n.isShutDownInProgress) == 0 {
			log.Errorf("Server on %s stopped unexpectedly: %+v", address, err)
			n.executeOnControlThread(func() { n.hub.notifyError(err) })
		}
	})
	if err != nil {
		n.executeOnControlThread(func() { n.hub.notifySetupFailed(err) })
		n.ShutDown(nil)
		return err
	}

	log.Infof("Network node is listening on %s and advertising %s", srv.Address(), address)
	n.executeOnControlThread(func() { n.hub.notifyServerReady(address) })
	return nil
}

// advertisedAddress is the external host of the node with the port the server
// is actually bound to.
func (n *NetworkNode) advertisedAddress(srv server.Server) appmessage.NodeAddress {
	address := n.cfg.ExternalAddress()
	if tcpAddress, ok := srv.Address().(*net.TCPAddr); ok {
		address.Port = uint16(tcpAddress.Port)
	}
	return address
}

// ShutDown stops the server and every connection of the node, then calls
// completeHandler if it's not nil. Only the first call shuts the node down.
// Later calls only call their own completeHandler.
//
// Listeners receive the disconnect events caused by ShutDown. Tasks that
// are already running on the worker pool are not interrupted.
func (n *NetworkNode) ShutDown(completeHandler func()) {
	if !atomic.CompareAndSwapUint32(&n.isShutDownInProgress, 0, 1) {
		log.Debugf("Network node is already shutting down")
		if completeHandler != nil {
			completeHandler()
		}
		return
	}

	log.Infof("Network node shutting down")

	n.stateLock.Lock()
	srv := n.server
	n.server = nil
	n.state = StateShuttingDown
	n.stateLock.Unlock()

	if srv != nil {
		srv.ShutDown()
	}
	for _, connection := range n.registry.all() {
		connection.Stop()
	}

	n.setState(StateStopped)
	n.release()
	log.Infof("Network node shut down")

	if completeHandler != nil {
		completeHandler()
	}
}

// release stops the worker pool and then the control thread, once every task
// of the pool has finished and delivered its outcome.
func (n *NetworkNode) release() {
	n.workerPool.Stop()
	spawn("NetworkNode.release", func() {
		n.workerPool.Wait()
		n.controlThread.Stop()
	})
}

// State returns the lifecycle stage of the node
func (n *NetworkNode) State() State {
	n.stateLock.RLock()
	defer n.stateLock.RUnlock()

	return n.state
}

func (n *NetworkNode) setState(state State) {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()

	n.state = state
}

func (n *NetworkNode) isRunning() bool {
	return n.State() == StateRunning && atomic.LoadUint32(&n.isShutDownInProgress) == 0
}

// Address returns the address the node advertises to its peers, or nil if
// the node was never started successfully.
func (n *NetworkNode) Address() *appmessage.NodeAddress {
	n.stateLock.RLock()
	defer n.stateLock.RUnlock()

	return n.address
}

// AllConnections returns every connection of the node, without duplicates
func (n *NetworkNode) AllConnections() []server.Connection {
	return n.registry.all()
}

// InboundConnections returns the connections peers established to this node
func (n *NetworkNode) InboundConnections() []server.Connection {
	return n.registry.inbound.values()
}

// OutboundConnections returns the connections this node established to its peers
func (n *NetworkNode) OutboundConnections() []server.Connection {
	return n.registry.outbound.values()
}

// ConnectionCount returns the number of connections of the node
func (n *NetworkNode) ConnectionCount() int {
	return len(n.registry.all())
}

// AddConnectionListener registers a listener for connection events. Adding
// the same listener twice does nothing. Listeners must be comparable, and
// are typically pointers.
func (n *NetworkNode) AddConnectionListener(listener server.ConnectionListener) {
	n.hub.connectionListeners.add(listener)
}

// RemoveConnectionListener unregisters a connection listener. It may be called
// from inside a notification.
func (n *NetworkNode) RemoveConnectionListener(listener server.ConnectionListener) {
	n.hub.connectionListeners.remove(listener)
}

// AddMessageListener registers a listener for received messages
func (n *NetworkNode) AddMessageListener(listener server.MessageListener) {
	n.hub.messageListeners.add(listener)
}

// RemoveMessageListener unregisters a message listener
func (n *NetworkNode) RemoveMessageListener(listener server.MessageListener) {
	n.hub.messageListeners.remove(listener)
}

// AddSetupListener registers a listener for the outcome of Start
func (n *NetworkNode) AddSetupListener(listener server.SetupListener) {
	n.hub.setupListeners.add(listener)
}

// RemoveSetupListener unregisters a setup listener
func (n *NetworkNode) RemoveSetupListener(listener server.SetupListener) {
	n.hub.setupListeners.remove(listener)
}

// executeOnControlThread queues the given task on the control thread. Tasks
// submitted after the node was released are dropped.
func (n *NetworkNode) executeOnControlThread(task func()) {
	err := n.controlThread.Execute(task)
	if err != nil {
		log.Debugf("Dropping a task: %s", err)
	}
}

// transportEvents receives the events of the transport and of every
// connection it creates, and forwards them to the control thread.
type transportEvents struct {
	node *NetworkNode
}

func (e *transportEvents) OnConnection(connection server.Connection) {
	n := e.node
	if atomic.LoadUint32(&n.isShutDownInProgress) != 0 {
		log.Debugf("Stopping %s: the node is shutting down", connection)
		connection.Stop()
		return
	}

	d := directionInbound
	if connection.IsOutbound() {
		d = directionOutbound
	}
	if !n.registry.register(d, connection) {
		return
	}
	if d == directionInbound {
		n.metrics.connectionAccepted()
	}
	n.metrics.updateConnectionGauges(n.registry)

	// A connection that stopped before being registered never gets
	// another disconnect event.
	if connection.IsStopped() {
		n.registry.onDisconnect(connection)
		n.metrics.updateConnectionGauges(n.registry)
	}

	n.executeOnControlThread(func() { n.hub.notifyConnection(connection) })
}

func (e *transportEvents) OnPeerAddressAuthenticated(peerAddress appmessage.NodeAddress, connection server.Connection) {
	n := e.node
	n.executeOnControlThread(func() { n.hub.notifyAuthenticated(peerAddress, connection) })
}

func (e *transportEvents) OnDisconnect(reason server.DisconnectReason, connection server.Connection) {
	n := e.node
	if n.registry.onDisconnect(connection) {
		n.metrics.updateConnectionGauges(n.registry)
	}
	n.metrics.disconnected(reason)
	n.executeOnControlThread(func() { n.hub.notifyDisconnected(reason, connection) })
}

func (e *transportEvents) OnError(err error) {
	n := e.node
	n.executeOnControlThread(func() { n.hub.notifyError(err) })
}

func (e *transportEvents) OnMessage(message appmessage.Message, connection server.Connection) {
	n := e.node
	n.executeOnControlThread(func() { n.hub.notifyMessage(message, connection) })
}
