package appmessage

import (
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownCommand is returned when decoding a message whose command is not known
	ErrUnknownCommand = errors.New("unknown message command")

	// ErrMalformedMessage is returned when a message cannot be decoded
	ErrMalformedMessage = errors.New("malformed message")
)

// maxCommandLength bounds the length of a command name on the wire
const maxCommandLength = 32

// EncodeMessage serializes the given message as
// [uvarint len(command)][command][payload].
func EncodeMessage(message Message) ([]byte, error) {
	commandName, ok := MessageCommandToString[message.Command()]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommand, "cannot encode %s", message.Command())
	}

	buf := make([]byte, 0, varint.UvarintSize(uint64(len(commandName)))+len(commandName))
	buf = appendBytes(buf, []byte(commandName))

	switch msg := message.(type) {
	case *MsgHello:
		buf = appendBytes(buf, []byte(msg.Address.Host))
		buf = append(buf, varint.ToUvarint(uint64(msg.Address.Port))...)
	case *MsgPing:
		buf = append(buf, varint.ToUvarint(msg.Nonce)...)
	case *MsgPong:
		buf = append(buf, varint.ToUvarint(msg.Nonce)...)
	case *MsgPayload:
		buf = append(buf, msg.Payload...)
	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "cannot encode message of type %T", message)
	}

	if len(buf) > MaxMessagePayload {
		return nil, errors.Errorf("message %s is %d bytes long which exceeds the maximum of %d",
			message.Command(), len(buf), MaxMessagePayload)
	}
	return buf, nil
}

// DecodeMessage parses a message previously serialized with EncodeMessage
func DecodeMessage(data []byte) (Message, error) {
	if len(data) > MaxMessagePayload {
		return nil, errors.Wrapf(ErrMalformedMessage, "message is %d bytes long which exceeds the maximum of %d",
			len(data), MaxMessagePayload)
	}

	r := &reader{data: data}
	commandName, err := r.readBytes(maxCommandLength)
	if err != nil {
		return nil, errors.Wrap(err, "could not read command")
	}
	command, ok := stringToMessageCommand[string(commandName)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommand, "received command %q", commandName)
	}

	var message Message
	switch command {
	case CmdHello:
		host, err := r.readBytes(MaxMessagePayload)
		if err != nil {
			return nil, errors.Wrap(err, "could not read hello host")
		}
		port, err := r.readUvarint()
		if err != nil {
			return nil, errors.Wrap(err, "could not read hello port")
		}
		if port > 0xffff {
			return nil, errors.Wrapf(ErrMalformedMessage, "hello port %d is out of range", port)
		}
		message = NewMsgHello(NewNodeAddress(string(host), uint16(port)))
	case CmdPing:
		nonce, err := r.readUvarint()
		if err != nil {
			return nil, errors.Wrap(err, "could not read ping nonce")
		}
		message = NewMsgPing(nonce)
	case CmdPong:
		nonce, err := r.readUvarint()
		if err != nil {
			return nil, errors.Wrap(err, "could not read pong nonce")
		}
		message = NewMsgPong(nonce)
	case CmdPayload:
		payload := make([]byte, len(r.remaining()))
		copy(payload, r.remaining())
		r.offset = len(r.data)
		message = NewMsgPayload(payload)
	}

	if len(r.remaining()) != 0 {
		return nil, errors.Wrapf(ErrMalformedMessage, "%d trailing bytes after %s", len(r.remaining()), command)
	}
	return message, nil
}

func appendBytes(buf []byte, bytes []byte) []byte {
	buf = append(buf, varint.ToUvarint(uint64(len(bytes)))...)
	return append(buf, bytes...)
}

type reader struct {
	data   []byte
	offset int
}

func (r *reader) remaining() []byte {
	return r.data[r.offset:]
}

func (r *reader) readUvarint() (uint64, error) {
	value, n, err := varint.FromUvarint(r.remaining())
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedMessage, "invalid varint: %s", err)
	}
	r.offset += n
	return value, nil
}

func (r *reader) readBytes(maxLength uint64) ([]byte, error) {
	length, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if length > maxLength {
		return nil, errors.Wrapf(ErrMalformedMessage, "length %d exceeds the maximum of %d", length, maxLength)
	}
	if length > uint64(len(r.remaining())) {
		return nil, errors.Wrapf(ErrMalformedMessage, "length %d exceeds the %d remaining bytes",
			length, len(r.remaining()))
	}
	bytes := r.remaining()[:length]
	r.offset += int(length)
	return bytes, nil
}
