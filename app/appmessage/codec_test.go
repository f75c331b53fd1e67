package appmessage

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func TestCodec(t *testing.T) {
	messages := []Message{
		NewMsgHello(NewNodeAddress("abcdefghijklmnop.onion", 9999)),
		NewMsgPing(0),
		NewMsgPong(1<<64 - 1),
		NewMsgPayload([]byte("some application data")),
		NewMsgPayload([]byte{}),
	}

	for _, message := range messages {
		encoded, err := EncodeMessage(message)
		if err != nil {
			t.Fatalf("EncodeMessage %s: %+v", message.Command(), err)
		}
		decoded, err := DecodeMessage(encoded)
		if err != nil {
			t.Fatalf("DecodeMessage %s: %+v", message.Command(), err)
		}
		if !reflect.DeepEqual(message, decoded) {
			t.Errorf("%s: decoded %+v, want %+v", message.Command(), decoded, message)
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	encoded, err := EncodeMessage(NewMsgPing(300))
	if err != nil {
		t.Fatalf("EncodeMessage: %+v", err)
	}
	expected := []byte{4, 'P', 'i', 'n', 'g', 0xac, 0x02}
	if !reflect.DeepEqual(encoded, expected) {
		t.Errorf("got %x, want %x", encoded, expected)
	}
}

func TestDecodeErrors(t *testing.T) {
	validPing, err := EncodeMessage(NewMsgPing(300))
	if err != nil {
		t.Fatalf("EncodeMessage: %+v", err)
	}

	tests := []struct {
		name        string
		data        []byte
		expectedErr error
	}{
		{name: "empty", data: []byte{}, expectedErr: ErrMalformedMessage},
		{name: "unknown command", data: []byte{3, 'F', 'o', 'o'}, expectedErr: ErrUnknownCommand},
		{name: "command too long", data: append([]byte{100}, make([]byte, 100)...), expectedErr: ErrMalformedMessage},
		{name: "truncated command", data: []byte{4, 'P', 'i'}, expectedErr: ErrMalformedMessage},
		{name: "truncated nonce", data: validPing[:len(validPing)-1], expectedErr: ErrMalformedMessage},
		{name: "trailing bytes", data: append(append([]byte{}, validPing...), 0), expectedErr: ErrMalformedMessage},
		{name: "hello port out of range", data: []byte{5, 'H', 'e', 'l', 'l', 'o', 1, 'a', 0x80, 0x80, 0x04},
			expectedErr: ErrMalformedMessage},
	}

	for _, test := range tests {
		_, err := DecodeMessage(test.data)
		if !errors.Is(err, test.expectedErr) {
			t.Errorf("%s: expected error %v, got %v", test.name, test.expectedErr, err)
		}
	}
}
