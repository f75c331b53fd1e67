package appmessage

import (
	"fmt"
	"time"
)

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = 1024 * 1024 * 10 // 10MB

// MessageCommand is a number that represents the type of a message.
type MessageCommand uint32

func (cmd MessageCommand) String() string {
	cmdString, ok := MessageCommandToString[cmd]
	if !ok {
		cmdString = "unknown command"
	}
	return fmt.Sprintf("%s [code %d]", cmdString, uint32(cmd))
}

// Commands used in netnode messages which describe the type of message.
const (
	CmdHello MessageCommand = iota
	CmdPing
	CmdPong
	CmdPayload
)

// MessageCommandToString maps all MessageCommands to their string representation.
// The string representation is the one written on the wire.
var MessageCommandToString = map[MessageCommand]string{
	CmdHello:   "Hello",
	CmdPing:    "Ping",
	CmdPong:    "Pong",
	CmdPayload: "Payload",
}

var stringToMessageCommand = func() map[string]MessageCommand {
	result := make(map[string]MessageCommand, len(MessageCommandToString))
	for command, name := range MessageCommandToString {
		result[name] = command
	}
	return result
}()

// Message is an interface that describes a netnode message. A type that
// implements Message has complete control over the representation of its data
// and may therefore contain additional or fewer fields than those which
// are used directly in the encoded message.
type Message interface {
	Command() MessageCommand
	ReceivedAt() time.Time
	SetReceivedAt(receivedAt time.Time)
}

type baseMessage struct {
	receivedAt time.Time
}

func (b *baseMessage) ReceivedAt() time.Time {
	return b.receivedAt
}

func (b *baseMessage) SetReceivedAt(receivedAt time.Time) {
	b.receivedAt = receivedAt
}
