package network

import (
	"reflect"
	"testing"

	"github.com/kaspanet/netnode/app/appmessage"
)

func TestParseNodeAddresses(t *testing.T) {
	addresses, err := ParseNodeAddresses([]string{
		"127.0.0.1",
		"127.0.0.1:9999",
		"::1",
		"example.onion:8000",
		"127.0.0.1:9999",
	}, 9999)
	if err != nil {
		t.Fatalf("ParseNodeAddresses: %s", err)
	}

	expected := []appmessage.NodeAddress{
		{Host: "127.0.0.1", Port: 9999},
		{Host: "::1", Port: 9999},
		{Host: "example.onion", Port: 8000},
	}
	if !reflect.DeepEqual(addresses, expected) {
		t.Errorf("got %v, want %v", addresses, expected)
	}

	_, err = ParseNodeAddresses([]string{"127.0.0.1:notaport"}, 9999)
	if err == nil {
		t.Errorf("expected an error for an invalid port")
	}
}
