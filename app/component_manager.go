package app

import (
	"fmt"
	"sync/atomic"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/app/protocol"
	"github.com/kaspanet/netnode/infrastructure/config"
	"github.com/kaspanet/netnode/infrastructure/network/netnode"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server/grpcserver"
	"github.com/kaspanet/netnode/util/panics"
)

// ComponentManager is a wrapper for all the netnode services
type ComponentManager struct {
	cfg             *config.Config
	networkNode     *netnode.NetworkNode
	protocolManager *protocol.Manager

	started, shutdown int32
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config) (*ComponentManager, error) {
	networkNode, err := netnode.New(cfg, grpcserver.NewTransport(cfg))
	if err != nil {
		return nil, err
	}

	return &ComponentManager{
		cfg:             cfg,
		networkNode:     networkNode,
		protocolManager: protocol.NewManager(networkNode),
	}, nil
}

// Start launches all the netnode services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting netnode")

	err := a.networkNode.Start(a)
	if err != nil {
		panics.Exit(log, fmt.Sprintf("Error starting the network node: %+v", err))
	}

	a.protocolManager.PingPeers(a.cfg.ConnectPeerAddresses)
}

// Stop gracefully shuts down all the netnode services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("Netnode is already in the process of shutting down")
		return
	}

	log.Warnf("Netnode shutting down")

	a.protocolManager.Close()

	done := make(chan struct{})
	a.networkNode.ShutDown(func() { close(done) })
	<-done
}

// NetworkNode returns the NetworkNode associated with this ComponentManager
func (a *ComponentManager) NetworkNode() *netnode.NetworkNode {
	return a.networkNode
}

// OnServerReady is part of the server.SetupListener interface
func (a *ComponentManager) OnServerReady(address appmessage.NodeAddress) {
	log.Infof("Netnode is ready, advertising %s", address)
}

// OnSetupFailed is part of the server.SetupListener interface
func (a *ComponentManager) OnSetupFailed(err error) {
	log.Errorf("Netnode setup failed: %s", err)
}
