package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"proxycrawler/internal/domain"
)

func TestGeonodeStopsAtEmptyPage(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		mu.Lock()
		pages = append(pages, query.Get("page"))
		mu.Unlock()

		if query.Get("limit") != "500" || query.Get("sort_by") != "lastChecked" || query.Get("sort_type") != "desc" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("Origin") == "" || r.Header.Get("Referer") == "" {
			t.Errorf("missing browser headers")
		}

		switch query.Get("page") {
		case "1":
			fmt.Fprint(w, `{"data":[
				{"ip":"203.0.113.5","port":"8080","protocols":["http","socks5","gopher"],"country":"DE","asn":"AS1","latency":12.5},
				{"ip":"not-an-ip","port":"80","protocols":["http"]},
				{"ip":"203.0.113.6","port":0}
			]}`)
		case "2":
			fmt.Fprint(w, `{"data":[{"ip":"203.0.113.7","port":3128,"protocols":[]}]}`)
		default:
			fmt.Fprint(w, `{"data":[]}`)
		}
	}))
	defer server.Close()

	geonode := NewGeonode(GeonodeOptions{APIURL: server.URL, PageLimit: 10})

	candidates, err := geonode.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	mu.Lock()
	requested := len(pages)
	mu.Unlock()
	if requested != 3 {
		t.Fatalf("requested %d pages, want 3", requested)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	first := candidates[0]
	if first.Key() != "203.0.113.5:8080" || first.Country != "DE" {
		t.Fatalf("unexpected first candidate %+v", first)
	}
	if len(first.DeclaredProtocols) != 2 || first.DeclaredProtocols[1] != domain.ProtocolSocks5 {
		t.Fatalf("declared protocols = %v", first.DeclaredProtocols)
	}
	if first.Metadata["asn"] != "AS1" || first.Metadata["latency"] != 12.5 {
		t.Fatalf("metadata = %v", first.Metadata)
	}
	if first.IsValid || len(first.Endpoints) != 0 {
		t.Fatal("fetched candidates must not carry endpoints yet")
	}
	if len(candidates[1].DeclaredProtocols) != 0 {
		t.Fatalf("empty protocols should stay unknown, got %v", candidates[1].DeclaredProtocols)
	}
}

func TestGeonodeRespectsPageLimit(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprintf(w, `{"data":[{"ip":"198.51.100.%s","port":80}]}`, r.URL.Query().Get("page"))
	}))
	defer server.Close()

	candidates, err := NewGeonode(GeonodeOptions{APIURL: server.URL, PageLimit: 2}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if requests.Load() != 2 || len(candidates) != 2 {
		t.Fatalf("requests=%d candidates=%d, want 2/2", requests.Load(), len(candidates))
	}
}

func TestGeonodeNonOKLaterPageEndsPaging(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"data":[{"ip":"198.51.100.1","port":80}]}`)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	candidates, err := NewGeonode(GeonodeOptions{APIURL: server.URL, PageLimit: 5}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("a rejected later page should end paging, got error %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates from earlier pages should be kept, got %d", len(candidates))
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
}

func TestGeonodeNonOKFirstPageIsSourceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	candidates, err := NewGeonode(GeonodeOptions{APIURL: server.URL, PageLimit: 5}).Fetch(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}

	var sourceErr *SourceError
	if !errors.As(err, &sourceErr) || sourceErr.Source != "geonode" {
		t.Fatalf("expected *SourceError for geonode, got %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestGeonodeMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>rate limited</html>`)
	}))
	defer server.Close()

	_, err := NewGeonode(GeonodeOptions{APIURL: server.URL}).Fetch(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}
