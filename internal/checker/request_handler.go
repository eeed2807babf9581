package checker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"

	"proxycrawler/internal/config"
	"proxycrawler/internal/domain"
)

const maxResponseBodyLength = 4096

// Prober performs a single request to the reference URL through a proxy and
// reports the status code it got back.
type Prober interface {
	Probe(ctx context.Context, protocol domain.Protocol, ip string, port int) (int, error)
}

type HTTPProber struct {
	ReferenceURL string
	Timeout      time.Duration
	UserAgent    string
}

func NewHTTPProber(cfg config.Config) *HTTPProber {
	return &HTTPProber{
		ReferenceURL: cfg.Checker.ReferenceURL,
		Timeout:      config.ProbeTimeout(cfg),
		UserAgent:    cfg.Checker.UserAgent,
	}
}

// Probe makes a GET request to the reference URL with the provided proxy.
func (p *HTTPProber) Probe(ctx context.Context, protocol domain.Protocol, ip string, port int) (int, error) {
	transport, err := createTransport(protocol, domain.EndpointKey(ip, port), p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("create transport: %w", err)
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   p.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ReferenceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Connection", "close")
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// drain a little so the proxy sees a complete exchange
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyLength))

	return resp.StatusCode, nil
}

func createTransport(protocol domain.Protocol, proxyAddr string, timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: -1,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	switch protocol {
	case domain.ProtocolHTTP, domain.ProtocolHTTPS:
		transport.Proxy = http.ProxyURL(&url.URL{
			Scheme: protocol.String(),
			Host:   proxyAddr,
		})

	case domain.ProtocolSocks5:
		socksDialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, dialer)
		if err != nil {
			return nil, err
		}
		if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		}

	case domain.ProtocolSocks4:
		dial := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", proxyAddr, timeout))
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}

	default:
		return nil, fmt.Errorf("unsupported protocol %q", protocol)
	}

	return transport, nil
}
