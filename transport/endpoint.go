package transport

import (
	"fmt"
	"net"
	"net/url"
)

// ResolveEndpoint parses a peer endpoint URI (e.g. "udp://host:9997/kademlia")
// into a net.Addr suitable for Transport.Send. Only the udp scheme is
// supported; the path component, if any, is ignored — it exists in the URI
// so a single host can in principle expose more than one logical service.
func ResolveEndpoint(endpoint string) (net.Addr, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "udp" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q in %q", u.Scheme, endpoint)
	}
	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("resolving endpoint %q: %w", endpoint, err)
	}
	return addr, nil
}

// EndpointFor builds a udp endpoint URI for host:port, matching the format
// ResolveEndpoint expects.
func EndpointFor(hostPort string) string {
	return "udp://" + hostPort + "/kademlia"
}
