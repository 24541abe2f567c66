package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher pulls raw inventory payloads for one (platform, resource) pair.
// Implementations return one raw JSON document per object; parsing and
// validation happen in the coordinator so a single malformed object cannot
// poison the batch.
type Fetcher interface {
	Fetch(ctx context.Context, platform Platform, resource ResourceType) ([]json.RawMessage, error)
}

// infraKeys maps a sync pair to the collector's infra selector.
var infraKeys = map[Platform]map[ResourceType]string{
	PlatformNutanix: {
		ResourceVM:   "nutanix",
		ResourceHost: "nutanix-host",
	},
	PlatformVMware: {
		ResourceVM:            "vmware",
		ResourceHost:          "vmware-host",
		ResourceNetwork:       "vw-network",
		ResourcePublicNetwork: "vw-public-network",
		ResourceDNS:           "vw-dns",
	},
}

// SyncPair identifies one schedulable (platform, resource) combination.
type SyncPair struct {
	Platform Platform     `json:"platform"`
	Resource ResourceType `json:"resource_type"`
}

// SupportedPairs returns every pair the collector can serve, in a stable
// order: VM and host inventories first, then the mapping feeds.
func SupportedPairs() []SyncPair {
	return []SyncPair{
		{PlatformNutanix, ResourceVM},
		{PlatformNutanix, ResourceHost},
		{PlatformVMware, ResourceVM},
		{PlatformVMware, ResourceHost},
		{PlatformVMware, ResourceNetwork},
		{PlatformVMware, ResourcePublicNetwork},
		{PlatformVMware, ResourceDNS},
	}
}

// HTTPFetcher fetches inventory from the collector gateway. The gateway
// exposes a single endpoint that selects the upstream by the infra key in
// the request body.
type HTTPFetcher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPFetcher builds a fetcher for the given collector endpoint.
func NewHTTPFetcher(endpoint string, timeout time.Duration) (*HTTPFetcher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("inventory: fetcher endpoint required")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPFetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type fetchRequest struct {
	Infra string `json:"infra"`
}

type fetchResponse struct {
	Data []json.RawMessage `json:"data"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, platform Platform, resource ResourceType) ([]json.RawMessage, error) {
	key, ok := infraKeys[platform][resource]
	if !ok {
		return nil, &FetchError{Platform: platform, Resource: resource,
			Err: fmt.Errorf("no collector route for pair")}
	}

	body, err := json.Marshal(fetchRequest{Infra: key})
	if err != nil {
		return nil, &FetchError{Platform: platform, Resource: resource, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Platform: platform, Resource: resource, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Platform: platform, Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{Platform: platform, Resource: resource,
			Err: fmt.Errorf("collector returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &FetchError{Platform: platform, Resource: resource, Err: err}
	}
	items, err := decodeFetchBody(raw)
	if err != nil {
		return nil, &FetchError{Platform: platform, Resource: resource, Err: err}
	}
	return items, nil
}

// decodeFetchBody accepts either a bare JSON array or an envelope with a
// data array. Both shapes exist across collector versions.
func decodeFetchBody(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode payload array: %w", err)
		}
		return items, nil
	}
	var env fetchResponse
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	return env.Data, nil
}
