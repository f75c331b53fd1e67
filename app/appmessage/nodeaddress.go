package appmessage

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const onionSuffix = ".onion"

// NodeAddress identifies a node on the network by host and port.
// The host may be an IP address, a DNS name or an onion address.
type NodeAddress struct {
	Host string
	Port uint16
}

// NewNodeAddress returns a NodeAddress for the given host and port
func NewNodeAddress(host string, port uint16) NodeAddress {
	return NodeAddress{Host: host, Port: port}
}

// NewNodeAddressFromString parses a NodeAddress from its host:port form
func NewNodeAddressFromString(address string) (NodeAddress, error) {
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return NodeAddress{}, errors.Wrapf(err, "invalid node address %s", address)
	}
	if host == "" {
		return NodeAddress{}, errors.Errorf("invalid node address %s: host is empty", address)
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return NodeAddress{}, errors.Wrapf(err, "invalid port in node address %s", address)
	}
	if port == 0 {
		return NodeAddress{}, errors.Errorf("invalid node address %s: port is zero", address)
	}
	return NodeAddress{Host: host, Port: uint16(port)}, nil
}

// IsOnion returns whether the address is a tor hidden service address
func (na NodeAddress) IsOnion() bool {
	return strings.HasSuffix(strings.ToLower(na.Host), onionSuffix)
}

func (na NodeAddress) String() string {
	return net.JoinHostPort(na.Host, strconv.FormatUint(uint64(na.Port), 10))
}
