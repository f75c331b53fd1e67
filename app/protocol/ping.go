package protocol

import (
	"time"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
	"github.com/kaspanet/netnode/util/random"
)

const (
	pingInterval = 2 * time.Minute

	// pingTimeout is how long a peer has to answer a ping
	pingTimeout = 120 * time.Second
)

type pendingPing struct {
	peerAddress appmessage.NodeAddress
	sentAt      time.Time
}

// SendPing sends a ping with a random nonce to the given peer. The matching
// pong is logged together with the round trip time.
func (m *Manager) SendPing(peerAddress appmessage.NodeAddress) error {
	nonce, err := random.Uint64()
	if err != nil {
		return err
	}
	m.addPendingPing(nonce, peerAddress)

	result := m.node.SendMessage(peerAddress, appmessage.NewMsgPing(nonce))
	return result.AddCallback(func(connection server.Connection, err error) {
		if err != nil {
			m.takePendingPing(nonce)
			log.Warnf("Could not ping %s: %s", peerAddress, err)
			return
		}
		log.Debugf("Sent ping %d to %s", nonce, connection)
	})
}

// PingPeers pings every given peer right away and then every pingInterval,
// until the manager is closed.
func (m *Manager) PingPeers(peerAddresses []appmessage.NodeAddress) {
	if len(peerAddresses) == 0 {
		return
	}

	m.flowsWaitGroup.Add(1)
	spawn("Manager.PingPeers", func() {
		defer m.flowsWaitGroup.Done()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			m.expirePendingPings(time.Now())
			for _, peerAddress := range peerAddresses {
				err := m.SendPing(peerAddress)
				if err != nil {
					log.Warnf("Could not ping %s: %s", peerAddress, err)
				}
			}

			select {
			case <-m.quit:
				return
			case <-ticker.C:
			}
		}
	})
}

func (m *Manager) handlePing(ping *appmessage.MsgPing, connection server.Connection) {
	log.Debugf("Received ping %d from %s", ping.Nonce, connection)

	result := m.node.SendMessageToConnection(connection, appmessage.NewMsgPong(ping.Nonce))
	err := result.AddCallback(func(_ server.Connection, err error) {
		if err != nil {
			log.Warnf("Could not answer ping %d of %s: %s", ping.Nonce, connection, err)
		}
	})
	if err != nil {
		log.Warnf("Could not answer ping %d of %s: %s", ping.Nonce, connection, err)
	}
}

func (m *Manager) handlePong(pong *appmessage.MsgPong, connection server.Connection) {
	ping, ok := m.takePendingPing(pong.Nonce)
	if !ok {
		log.Debugf("Ignoring pong %d from %s: no such ping is pending", pong.Nonce, connection)
		return
	}

	receivedAt := pong.ReceivedAt()
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	log.Infof("Peer %s answered ping %d after %s", ping.peerAddress, pong.Nonce, receivedAt.Sub(ping.sentAt))
}

func (m *Manager) addPendingPing(nonce uint64, peerAddress appmessage.NodeAddress) {
	m.pendingPingsLock.Lock()
	defer m.pendingPingsLock.Unlock()

	m.pendingPings[nonce] = pendingPing{peerAddress: peerAddress, sentAt: time.Now()}
}

func (m *Manager) takePendingPing(nonce uint64) (pendingPing, bool) {
	m.pendingPingsLock.Lock()
	defer m.pendingPingsLock.Unlock()

	ping, ok := m.pendingPings[nonce]
	delete(m.pendingPings, nonce)
	return ping, ok
}

// PendingPingCount returns the number of pings that were not answered yet
func (m *Manager) PendingPingCount() int {
	m.pendingPingsLock.Lock()
	defer m.pendingPingsLock.Unlock()

	return len(m.pendingPings)
}

func (m *Manager) expirePendingPings(now time.Time) {
	m.pendingPingsLock.Lock()
	defer m.pendingPingsLock.Unlock()

	for nonce, ping := range m.pendingPings {
		if now.Sub(ping.sentAt) > pingTimeout {
			log.Warnf("Peer %s did not answer ping %d within %s", ping.peerAddress, nonce, pingTimeout)
			delete(m.pendingPings, nonce)
		}
	}
}
