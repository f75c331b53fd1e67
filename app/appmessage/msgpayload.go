package appmessage

// MsgPayload carries opaque application data between nodes.
type MsgPayload struct {
	baseMessage
	Payload []byte
}

// Command returns the protocol command string for the message
func (msg *MsgPayload) Command() MessageCommand {
	return CmdPayload
}

// NewMsgPayload returns a new payload message wrapping the given bytes
func NewMsgPayload(payload []byte) *MsgPayload {
	return &MsgPayload{
		Payload: payload,
	}
}
