package network

import (
	"net"
	"strconv"

	"github.com/kaspanet/netnode/app/appmessage"
)

// ParseNodeAddresses parses every passed peer address, appending the given
// default port to those that don't specify one. Duplicates are removed while
// preserving order.
func ParseNodeAddresses(addrs []string, defaultPort uint16) ([]appmessage.NodeAddress, error) {
	result := make([]appmessage.NodeAddress, 0, len(addrs))
	seen := make(map[appmessage.NodeAddress]struct{}, len(addrs))
	for _, addr := range addrs {
		nodeAddress, err := appmessage.NewNodeAddressFromString(NormalizeAddress(addr, defaultPort))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[nodeAddress]; ok {
			continue
		}
		seen[nodeAddress] = struct{}{}
		result = append(result, nodeAddress)
	}
	return result, nil
}

// NormalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func NormalizeAddress(addr string, defaultPort uint16) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, strconv.FormatUint(uint64(defaultPort), 10))
	}
	return addr
}
