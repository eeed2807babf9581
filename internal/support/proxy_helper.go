package support

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"proxycrawler/internal/domain"
)

var proxyLineRegex = regexp.MustCompile(`^(https?|socks[45])://(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(\d{1,5})$`)

// ProxyLine is one parsed `<protocol>://<ip>:<port>` entry.
type ProxyLine struct {
	Protocol domain.Protocol
	IP       string
	Port     int
}

func (line ProxyLine) Key() string {
	return domain.EndpointKey(line.IP, line.Port)
}

func (line ProxyLine) String() string {
	return fmt.Sprintf("%s://%s", line.Protocol, line.Key())
}

// IsValidProxyLine reports whether the line is a well formed proxy URI.
func IsValidProxyLine(line string) bool {
	_, err := ParseProxyLine(line)
	return err == nil
}

func ParseProxyLine(raw string) (ProxyLine, error) {
	line := strings.TrimSpace(strings.ReplaceAll(raw, "\r", ""))

	match := proxyLineRegex.FindStringSubmatch(line)
	if match == nil {
		return ProxyLine{}, fmt.Errorf("malformed proxy line %q", raw)
	}

	ip, ok := normalizeIPv4(match[2])
	if !ok {
		return ProxyLine{}, fmt.Errorf("invalid ip in proxy line %q", raw)
	}

	port, err := strconv.Atoi(match[3])
	if err != nil || port < 1 || port > 65535 {
		return ProxyLine{}, fmt.Errorf("invalid port in proxy line %q", raw)
	}

	return ProxyLine{
		Protocol: domain.Protocol(match[1]),
		IP:       ip,
		Port:     port,
	}, nil
}

// ParseProxyLines parses every non blank line and reports the malformed ones
// separately so callers can refuse the whole input.
func ParseProxyLines(lines []string) ([]ProxyLine, []string) {
	parsed := make([]ProxyLine, 0, len(lines))
	var invalid []string

	for _, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		line, err := ParseProxyLine(raw)
		if err != nil {
			invalid = append(invalid, strings.TrimSpace(raw))
			continue
		}
		parsed = append(parsed, line)
	}

	return parsed, invalid
}

// ProxyLineGroup is a physical endpoint together with every protocol it was
// listed with.
type ProxyLineGroup struct {
	IP        string
	Port      int
	Protocols []domain.Protocol
}

// GroupProxyLines merges repeated ip:port entries, keeping first-seen order.
func GroupProxyLines(lines []ProxyLine) []ProxyLineGroup {
	index := make(map[string]int, len(lines))
	groups := make([]ProxyLineGroup, 0, len(lines))

	for _, line := range lines {
		key := line.Key()
		if i, ok := index[key]; ok {
			groups[i].Protocols = domain.NormalizeProtocols(append(groups[i].Protocols, line.Protocol))
			continue
		}
		index[key] = len(groups)
		groups = append(groups, ProxyLineGroup{
			IP:        line.IP,
			Port:      line.Port,
			Protocols: []domain.Protocol{line.Protocol},
		})
	}

	return groups
}

// normalizeIPv4 strips leading zeros from each octet, e.g. 010.001.2.3 -> 10.1.2.3.
func normalizeIPv4(raw string) (string, bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return "", false
	}
	for i, part := range parts {
		octet, err := strconv.Atoi(part)
		if err != nil || octet < 0 || octet > 255 {
			return "", false
		}
		parts[i] = strconv.Itoa(octet)
	}
	return strings.Join(parts, "."), true
}
