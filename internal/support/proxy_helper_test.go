package support

import (
	"testing"

	"proxycrawler/internal/domain"
)

func TestIsValidProxyLine(t *testing.T) {
	tests := []struct {
		line  string
		valid bool
	}{
		{"http://1.2.3.4:8080", true},
		{"https://1.2.3.4:443", true},
		{"socks4://10.0.0.1:1080", true},
		{"socks5://10.0.0.1:1080", true},
		{"ftp://1.2.3.4:80", false},
		{"http://1.2.3.4", false},
		{"socks6://1.2.3.4:80", false},
		{"http://256.2.3.4:80", false},
		{"http://1.2.3.4:0", false},
		{"http://1.2.3.4:70000", false},
		{"http://1.2.3.4:80/path", false},
		{"1.2.3.4:80", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := IsValidProxyLine(tt.line); got != tt.valid {
				t.Fatalf("IsValidProxyLine(%q) = %t, want %t", tt.line, got, tt.valid)
			}
		})
	}
}

func TestParseProxyLineNormalizesLeadingZeros(t *testing.T) {
	line, err := ParseProxyLine("socks5://010.001.2.3:1080\r")
	if err != nil {
		t.Fatalf("ParseProxyLine returned error: %v", err)
	}
	if line.IP != "10.1.2.3" || line.Port != 1080 || line.Protocol != domain.ProtocolSocks5 {
		t.Fatalf("unexpected parse result %+v", line)
	}
	if got := line.String(); got != "socks5://10.1.2.3:1080" {
		t.Fatalf("String returned %s", got)
	}
}

func TestParseProxyLinesReportsInvalid(t *testing.T) {
	input := []string{"http://1.1.1.1:80", "", "  ", "garbage", "socks4://2.2.2.2:1080"}

	parsed, invalid := ParseProxyLines(input)
	if len(parsed) != 2 {
		t.Fatalf("ParseProxyLines returned %d proxies, want 2", len(parsed))
	}
	if len(invalid) != 1 || invalid[0] != "garbage" {
		t.Fatalf("ParseProxyLines returned invalid %v, want [garbage]", invalid)
	}
}

func TestGroupProxyLines(t *testing.T) {
	parsed, _ := ParseProxyLines([]string{
		"socks5://1.1.1.1:80",
		"http://2.2.2.2:8080",
		"http://1.1.1.1:80",
		"socks5://1.1.1.1:80",
	})

	groups := GroupProxyLines(parsed)
	if len(groups) != 2 {
		t.Fatalf("GroupProxyLines returned %d groups, want 2", len(groups))
	}

	first := groups[0]
	if first.IP != "1.1.1.1" || len(first.Protocols) != 2 {
		t.Fatalf("unexpected first group %+v", first)
	}
	if first.Protocols[0] != domain.ProtocolHTTP || first.Protocols[1] != domain.ProtocolSocks5 {
		t.Fatalf("protocols not normalized: %v", first.Protocols)
	}
}
