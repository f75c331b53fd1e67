package appmessage

// MsgHello is the first message an outbound connection sends. It carries the
// address the sender is reachable at, which the accepting side assigns as the
// peer address of the connection.
type MsgHello struct {
	baseMessage
	Address NodeAddress
}

// Command returns the protocol command string for the message
func (msg *MsgHello) Command() MessageCommand {
	return CmdHello
}

// NewMsgHello returns a new hello message announcing the given address
func NewMsgHello(address NodeAddress) *MsgHello {
	return &MsgHello{
		Address: address,
	}
}
