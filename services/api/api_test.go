package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vmledger/services/inventory"
)

type fakeEngine struct {
	startErr error
	lastPair [2]string
}

func (f *fakeEngine) StartSyncAsync(_ context.Context, platform inventory.Platform, resource inventory.ResourceType) (inventory.SyncRun, error) {
	f.lastPair = [2]string{string(platform), string(resource)}
	if f.startErr != nil {
		return inventory.SyncRun{}, f.startErr
	}
	return inventory.SyncRun{
		ID:           uuid.New(),
		Platform:     platform,
		ResourceType: resource,
		Status:       inventory.RunRunning,
	}, nil
}

type fakeInventory struct {
	object        inventory.EffectiveObject
	objectErr     error
	overrideField string
	overrideValue *string
}

func (f *fakeInventory) EffectiveObject(context.Context, uuid.UUID) (inventory.EffectiveObject, error) {
	return f.object, f.objectErr
}

func (f *fakeInventory) ListEffectiveObjects(context.Context, inventory.ObjectFilter) ([]inventory.EffectiveObject, int64, error) {
	return []inventory.EffectiveObject{f.object}, 1, f.objectErr
}

func (f *fakeInventory) SetOverride(_ context.Context, _ uuid.UUID, field string, value *string, _ string) (inventory.EffectiveObject, error) {
	f.overrideField = field
	f.overrideValue = value
	return f.object, f.objectErr
}

func (f *fakeInventory) Overrides(context.Context, uuid.UUID) (map[string]inventory.Override, error) {
	return map[string]inventory.Override{}, f.objectErr
}

func (f *fakeInventory) Changes(context.Context, inventory.ChangeFilter) ([]inventory.ChangeView, int64, error) {
	return nil, 0, f.objectErr
}

func (f *fakeInventory) LatestRuns(context.Context, inventory.Platform) ([]inventory.SyncRun, error) {
	return nil, f.objectErr
}

func (f *fakeInventory) Runs(context.Context, inventory.RunFilter) ([]inventory.SyncRun, int64, error) {
	return nil, 0, f.objectErr
}

func newTestRouter(t *testing.T, inv Inventory, engine SyncEngine) http.Handler {
	t.Helper()
	a, err := New(inv, engine, nil, zerolog.Nop(), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	routes, err := a.Routes()
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	return routes
}

func TestStartSyncEndpoint(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		engine := &fakeEngine{}
		router := newTestRouter(t, &fakeInventory{}, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/sync",
			strings.NewReader(`{"platform": "nutanix", "resource_type": "vm"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
		}
		if engine.lastPair != [2]string{"nutanix", "vm"} {
			t.Fatalf("pair = %v", engine.lastPair)
		}
	})

	t.Run("resource defaults to vm", func(t *testing.T) {
		engine := &fakeEngine{}
		router := newTestRouter(t, &fakeInventory{}, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/sync",
			strings.NewReader(`{"platform": "vmware"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
		if engine.lastPair[1] != "vm" {
			t.Fatalf("resource = %q, want vm", engine.lastPair[1])
		}
	})

	t.Run("conflict while in progress", func(t *testing.T) {
		engine := &fakeEngine{startErr: inventory.ErrSyncAlreadyInProgress}
		router := newTestRouter(t, &fakeInventory{}, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/sync",
			strings.NewReader(`{"platform": "nutanix"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("missing platform", func(t *testing.T) {
		router := newTestRouter(t, &fakeInventory{}, &fakeEngine{})

		req := httptest.NewRequest(http.MethodPost, "/v1/sync", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("invalid platform rejected by engine", func(t *testing.T) {
		engine := &fakeEngine{startErr: &inventory.ValidationError{Field: "platform", Reason: "unknown"}}
		router := newTestRouter(t, &fakeInventory{}, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/sync",
			strings.NewReader(`{"platform": "hyperv"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetObjectEndpoint(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		inv := &fakeInventory{object: inventory.EffectiveObject{
			InventoryObject: inventory.InventoryObject{ID: uuid.New(), Name: "app-01"},
		}}
		router := newTestRouter(t, inv, &fakeEngine{})

		req := httptest.NewRequest(http.MethodGet, "/v1/objects/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Object inventory.EffectiveObject `json:"object"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Object.Name != "app-01" {
			t.Fatalf("object = %+v", body.Object)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		inv := &fakeInventory{objectErr: inventory.ErrNotFound}
		router := newTestRouter(t, inv, &fakeEngine{})

		req := httptest.NewRequest(http.MethodGet, "/v1/objects/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		router := newTestRouter(t, &fakeInventory{}, &fakeEngine{})

		req := httptest.NewRequest(http.MethodGet, "/v1/objects/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestPutOverrideEndpoint(t *testing.T) {
	t.Run("slash in field name", func(t *testing.T) {
		inv := &fakeInventory{}
		router := newTestRouter(t, inv, &fakeEngine{})

		req := httptest.NewRequest(http.MethodPut,
			"/v1/objects/"+uuid.NewString()+"/overrides/nic_ip/VLAN100",
			strings.NewReader(`{"value": "10.0.0.9", "updated_by": "alex"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if inv.overrideField != "nic_ip/VLAN100" {
			t.Fatalf("field = %q, want nic_ip/VLAN100", inv.overrideField)
		}
		if inv.overrideValue == nil || *inv.overrideValue != "10.0.0.9" {
			t.Fatalf("value = %v", inv.overrideValue)
		}
	})

	t.Run("null value disables", func(t *testing.T) {
		inv := &fakeInventory{}
		router := newTestRouter(t, inv, &fakeEngine{})

		req := httptest.NewRequest(http.MethodPut,
			"/v1/objects/"+uuid.NewString()+"/overrides/memory_gb",
			strings.NewReader(`{"value": null}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if inv.overrideValue != nil {
			t.Fatalf("value = %v, want nil", inv.overrideValue)
		}
	})

	t.Run("delete disables", func(t *testing.T) {
		inv := &fakeInventory{}
		router := newTestRouter(t, inv, &fakeEngine{})

		req := httptest.NewRequest(http.MethodDelete,
			"/v1/objects/"+uuid.NewString()+"/overrides/memory_gb", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if inv.overrideField != "memory_gb" || inv.overrideValue != nil {
			t.Fatalf("field = %q value = %v", inv.overrideField, inv.overrideValue)
		}
	})

	t.Run("invalid value rejected", func(t *testing.T) {
		inv := &fakeInventory{objectErr: &inventory.ValidationError{Field: "cpu_count", Reason: "not a number"}}
		router := newTestRouter(t, inv, &fakeEngine{})

		req := httptest.NewRequest(http.MethodPut,
			"/v1/objects/"+uuid.NewString()+"/overrides/cpu_count",
			strings.NewReader(`{"value": "plenty"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestListChangesEndpoint(t *testing.T) {
	t.Run("bad since", func(t *testing.T) {
		router := newTestRouter(t, &fakeInventory{}, &fakeEngine{})

		req := httptest.NewRequest(http.MethodGet, "/v1/changes?since=yesterday", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("ok with meta", func(t *testing.T) {
		router := newTestRouter(t, &fakeInventory{}, &fakeEngine{})

		req := httptest.NewRequest(http.MethodGet, "/v1/changes?change_type=power_state&page=2&per_page=10", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Meta pageMeta `json:"meta"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Meta.Page != 2 || body.Meta.PerPage != 10 {
			t.Fatalf("meta = %+v", body.Meta)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, &fakeInventory{}, &fakeEngine{})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
