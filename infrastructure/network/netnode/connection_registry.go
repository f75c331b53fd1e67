package netnode

import (
	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
)

type direction uint8

const (
	directionInbound direction = iota
	directionOutbound
)

func (d direction) String() string {
	if d == directionOutbound {
		return "outbound"
	}
	return "inbound"
}

func (d direction) opposite() direction {
	if d == directionOutbound {
		return directionInbound
	}
	return directionOutbound
}

// connectionRegistry tracks the live connections of a node by the
// direction they were established in. A connection is never in both sets.
type connectionRegistry struct {
	inbound  *copyOnWriteSet[server.Connection]
	outbound *copyOnWriteSet[server.Connection]
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{
		inbound:  newCopyOnWriteSet[server.Connection](),
		outbound: newCopyOnWriteSet[server.Connection](),
	}
}

func (r *connectionRegistry) set(d direction) *copyOnWriteSet[server.Connection] {
	if d == directionOutbound {
		return r.outbound
	}
	return r.inbound
}

// lookup returns the first connection in the given direction whose peer
// address equals peerAddress, or nil if there's none.
func (r *connectionRegistry) lookup(d direction, peerAddress appmessage.NodeAddress) server.Connection {
	for _, connection := range r.set(d).values() {
		connectionAddress := connection.PeerAddress()
		if connectionAddress != nil && *connectionAddress == peerAddress {
			return connection
		}
	}
	return nil
}

// register adds the connection to the given direction. It returns false if the
// connection was already registered, in any direction.
func (r *connectionRegistry) register(d direction, connection server.Connection) bool {
	if r.set(d.opposite()).contains(connection) {
		log.Warnf("Refusing to register %s as %s: it is already registered as %s", connection, d, d.opposite())
		return false
	}
	return r.set(d).add(connection)
}

func (r *connectionRegistry) evictStopped(d direction, connection server.Connection) {
	if r.set(d).remove(connection) {
		log.Debugf("Evicted stopped %s connection %s", d, connection)
	}
}

// onDisconnect removes the connection from both directions, and returns
// whether it was registered.
func (r *connectionRegistry) onDisconnect(connection server.Connection) bool {
	removedInbound := r.inbound.remove(connection)
	removedOutbound := r.outbound.remove(connection)
	return removedInbound || removedOutbound
}

// findUsable returns a connection to peerAddress that's not stopped, preferring
// outbound connections. Stopped connections found along the way are evicted.
func (r *connectionRegistry) findUsable(peerAddress appmessage.NodeAddress) server.Connection {
	for _, d := range []direction{directionOutbound, directionInbound} {
		connection := r.lookup(d, peerAddress)
		if connection == nil {
			continue
		}
		if connection.IsStopped() {
			r.evictStopped(d, connection)
			continue
		}
		return connection
	}
	return nil
}

// all returns every registered connection, inbound first, without duplicates.
func (r *connectionRegistry) all() []server.Connection {
	inbound := r.inbound.values()
	outbound := r.outbound.values()

	connections := make([]server.Connection, 0, len(inbound)+len(outbound))
	connections = append(connections, inbound...)
	for _, connection := range outbound {
		if indexOf(connections, connection) < 0 {
			connections = append(connections, connection)
		}
	}
	return connections
}

func (r *connectionRegistry) counts() (inbound int, outbound int) {
	return r.inbound.len(), r.outbound.len()
}
