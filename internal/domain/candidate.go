package domain

import (
	"fmt"
	"net"
	"strconv"
)

// Candidate is a proxy record travelling through the pipeline before it is
// persisted. Endpoints, DeclaredProtocols and IsValid are only changed through
// SetEndpoints.
type Candidate struct {
	IP                string
	Port              int
	DeclaredProtocols []Protocol
	Endpoints         map[Protocol]string
	Country           string
	Metadata          map[string]any
	IsValid           bool
}

func NewCandidate(ip string, port int) Candidate {
	return Candidate{
		IP:        ip,
		Port:      port,
		Endpoints: make(map[Protocol]string),
		Metadata:  make(map[string]any),
	}
}

// Key is the dedup identity of the endpoint.
func (c *Candidate) Key() string {
	return EndpointKey(c.IP, c.Port)
}

func EndpointKey(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

func (c *Candidate) EndpointURI(protocol Protocol) string {
	return fmt.Sprintf("%s://%s", protocol, c.Key())
}

// SetEndpoints replaces the endpoint map with exactly the given protocols and
// narrows the declared protocols to the same set.
func (c *Candidate) SetEndpoints(protocols []Protocol) {
	protocols = NormalizeProtocols(protocols)

	endpoints := make(map[Protocol]string, len(protocols))
	for _, p := range protocols {
		endpoints[p] = c.EndpointURI(p)
	}

	c.Endpoints = endpoints
	c.DeclaredProtocols = protocols
	c.IsValid = len(endpoints) > 0
}

// Protocols returns the protocols with an endpoint, in universe order.
func (c *Candidate) Protocols() []Protocol {
	protocols := make([]Protocol, 0, len(c.Endpoints))
	for p := range c.Endpoints {
		protocols = append(protocols, p)
	}
	return NormalizeProtocols(protocols)
}

func (c *Candidate) HasValidPort() bool {
	return c.Port >= 1 && c.Port <= 65535
}

func (c *Candidate) HasValidIP() bool {
	parsed := net.ParseIP(c.IP)
	return parsed != nil && parsed.To4() != nil
}
