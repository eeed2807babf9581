package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const freeProxyListPage = `<html><body>
<table class="table table-striped table-bordered">
<thead><tr><th>IP Address</th><th>Port</th><th>Code</th><th>Country</th><th>Anonymity</th><th>Google</th><th>Https</th><th>Last Checked</th></tr></thead>
<tbody>
<tr><td>203.0.113.10</td><td>8080</td><td>US</td><td>United States</td><td>elite proxy</td><td>no</td><td>yes</td><td>1 min ago</td></tr>
<tr><td>203.0.113.11</td><td>3128</td><td>FR</td><td>France</td><td>anonymous</td><td>no</td><td>no</td></tr>
<tr><td>203.0.113.12</td><td>port</td><td>DE</td><td>Germany</td><td>transparent</td><td>no</td><td>no</td><td>2 mins ago</td></tr>
<tr><td>203.0.113.13</td><td>80</td><td>JP</td><td>Japan</td><td>transparent</td><td>yes</td><td>no</td><td>3 mins ago</td></tr>
</tbody>
</table>
</body></html>`

func TestFreeProxyListParsesEightCellRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, freeProxyListPage)
	}))
	defer server.Close()

	candidates, err := NewFreeProxyList(FreeProxyListOptions{URL: server.URL}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	first := candidates[0]
	if first.Key() != "203.0.113.10:8080" || first.Country != "US" {
		t.Fatalf("unexpected first candidate %+v", first)
	}
	if len(first.DeclaredProtocols) != 0 {
		t.Fatalf("free-proxy-list does not declare protocols, got %v", first.DeclaredProtocols)
	}
	if first.Metadata["https"] != "yes" || first.Metadata["anonymity"] != "elite proxy" {
		t.Fatalf("metadata = %v", first.Metadata)
	}
	if candidates[1].Key() != "203.0.113.13:80" {
		t.Fatalf("unexpected second candidate %s", candidates[1].Key())
	}
}

func TestFreeProxyListServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewFreeProxyList(FreeProxyListOptions{URL: server.URL}).Fetch(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFreeProxyListHonoursRobots(t *testing.T) {
	var visited atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		visited.Store(true)
		fmt.Fprint(w, freeProxyListPage)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := NewFreeProxyList(FreeProxyListOptions{URL: server.URL + "/", RespectRobots: true, UserAgent: "proxycrawler"})
	candidates, err := source.Fetch(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if visited.Load() || len(candidates) != 0 {
		t.Fatal("page must not be crawled when robots.txt disallows it")
	}
}
