package domain

import (
	"fmt"
	"strings"
)

type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSocks4 Protocol = "socks4"
	ProtocolSocks5 Protocol = "socks5"
)

// AllProtocols is the protocol universe in its canonical order.
var AllProtocols = []Protocol{ProtocolHTTP, ProtocolHTTPS, ProtocolSocks4, ProtocolSocks5}

// AssumedProtocols is used for candidates whose source did not declare anything
// and that were not probed.
var AssumedProtocols = []Protocol{ProtocolHTTP, ProtocolSocks4, ProtocolSocks5}

func ParseProtocol(raw string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("unsupported protocol %q", raw)
	}
	return p, nil
}

func (p Protocol) Valid() bool {
	return p.rank() >= 0
}

func (p Protocol) String() string {
	return string(p)
}

func (p Protocol) rank() int {
	for i, known := range AllProtocols {
		if p == known {
			return i
		}
	}
	return -1
}

// NormalizeProtocols drops unknown and duplicate entries and sorts the rest in
// universe order.
func NormalizeProtocols(protocols []Protocol) []Protocol {
	seen := make(map[Protocol]struct{}, len(protocols))
	for _, p := range protocols {
		if p.Valid() {
			seen[p] = struct{}{}
		}
	}

	out := make([]Protocol, 0, len(seen))
	for _, p := range AllProtocols {
		if _, ok := seen[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ProtocolNames converts a list of loosely formatted names, silently skipping
// names outside the universe.
func ProtocolNames(names []string) []Protocol {
	protocols := make([]Protocol, 0, len(names))
	for _, name := range names {
		if p, err := ParseProtocol(name); err == nil {
			protocols = append(protocols, p)
		}
	}
	return NormalizeProtocols(protocols)
}
