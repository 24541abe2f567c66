package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPFetcherPostsInfraKey(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"data": [{"uuid": "vm-1"}, {"uuid": "vm-2"}]}`))
	}))
	defer srv.Close()

	fetcher, err := NewHTTPFetcher(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}

	items, err := fetcher.Fetch(context.Background(), PlatformNutanix, ResourceVM)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	var req fetchRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if req.Infra != "nutanix" {
		t.Fatalf("infra = %q, want nutanix", req.Infra)
	}
}

func TestHTTPFetcherAcceptsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"uuid": "vm-1"}]`))
	}))
	defer srv.Close()

	fetcher, _ := NewHTTPFetcher(srv.URL, time.Second)
	items, err := fetcher.Fetch(context.Background(), PlatformVMware, ResourceVM)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestHTTPFetcherUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collector exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	fetcher, _ := NewHTTPFetcher(srv.URL, time.Second)
	_, err := fetcher.Fetch(context.Background(), PlatformNutanix, ResourceVM)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if ferr.Platform != PlatformNutanix || ferr.Resource != ResourceVM {
		t.Fatalf("fetch error pair = %s/%s", ferr.Platform, ferr.Resource)
	}
}

func TestHTTPFetcherUnsupportedPair(t *testing.T) {
	fetcher, _ := NewHTTPFetcher("http://collector.local", time.Second)
	if _, err := fetcher.Fetch(context.Background(), PlatformNutanix, ResourceDNS); err == nil {
		t.Fatal("expected error for pair with no collector route")
	}
}

func TestSupportedPairsAllRouted(t *testing.T) {
	for _, pair := range SupportedPairs() {
		if _, ok := infraKeys[pair.Platform][pair.Resource]; !ok {
			t.Fatalf("pair %s/%s has no collector route", pair.Platform, pair.Resource)
		}
	}
}
