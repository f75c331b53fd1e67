package netnode

import (
	"runtime/debug"

	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
)

// listenerHub fans events out to the registered listeners. Its notify
// functions are only called from the control thread, and each of them
// delivers one event to every listener before returning.
//
// Listeners may be added or removed at any time, including from inside a
// notification. A notification that is already in progress keeps delivering
// to the listeners that were registered when it began.
type listenerHub struct {
	connectionListeners *copyOnWriteSet[server.ConnectionListener]
	messageListeners    *copyOnWriteSet[server.MessageListener]
	setupListeners      *copyOnWriteSet[server.SetupListener]
}

func newListenerHub() *listenerHub {
	return &listenerHub{
		connectionListeners: newCopyOnWriteSet[server.ConnectionListener](),
		messageListeners:    newCopyOnWriteSet[server.MessageListener](),
		setupListeners:      newCopyOnWriteSet[server.SetupListener](),
	}
}

func (h *listenerHub) notifyConnection(connection server.Connection) {
	for _, listener := range h.connectionListeners.values() {
		callListener("OnConnection", func() { listener.OnConnection(connection) })
	}
}

func (h *listenerHub) notifyAuthenticated(peerAddress appmessage.NodeAddress, connection server.Connection) {
	for _, listener := range h.connectionListeners.values() {
		callListener("OnPeerAddressAuthenticated", func() {
			listener.OnPeerAddressAuthenticated(peerAddress, connection)
		})
	}
}

func (h *listenerHub) notifyDisconnected(reason server.DisconnectReason, connection server.Connection) {
	for _, listener := range h.connectionListeners.values() {
		callListener("OnDisconnect", func() { listener.OnDisconnect(reason, connection) })
	}
}

func (h *listenerHub) notifyError(err error) {
	for _, listener := range h.connectionListeners.values() {
		callListener("OnError", func() { listener.OnError(err) })
	}
}

func (h *listenerHub) notifyMessage(message appmessage.Message, connection server.Connection) {
	for _, listener := range h.messageListeners.values() {
		callListener("OnMessage", func() { listener.OnMessage(message, connection) })
	}
}

func (h *listenerHub) notifyServerReady(address appmessage.NodeAddress) {
	for _, listener := range h.setupListeners.values() {
		callListener("OnServerReady", func() { listener.OnServerReady(address) })
	}
}

func (h *listenerHub) notifySetupFailed(err error) {
	for _, listener := range h.setupListeners.values() {
		callListener("OnSetupFailed", func() { listener.OnSetupFailed(err) })
	}
}

// callListener runs a single listener callback. A panic inside it is logged
// and does not reach the remaining listeners or the control thread.
func callListener(callbackName string, callback func()) {
	defer func() {
		if err := recover(); err != nil {
			log.Errorf("Listener panicked in %s: %s", callbackName, err)
			log.Errorf("Stack trace: %s", debug.Stack())
		}
	}()
	callback()
}
