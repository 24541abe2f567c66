package api

import (
	"errors"
	"net/http"
	"strings"

	"vmledger/services/inventory"
)

func (a *API) handleStartSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform     string `json:"platform"`
		ResourceType string `json:"resource_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	platform := inventory.Platform(strings.ToLower(strings.TrimSpace(req.Platform)))
	resource := inventory.ResourceType(strings.ToLower(strings.TrimSpace(req.ResourceType)))
	if resource == "" {
		resource = inventory.ResourceVM
	}
	if platform == "" {
		respondError(w, http.StatusBadRequest, errors.New("platform is required"))
		return
	}

	run, err := a.engine.StartSyncAsync(r.Context(), platform, resource)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"run": run})
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	platform := inventory.Platform(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform"))))
	if platform == "" {
		respondError(w, http.StatusBadRequest, errors.New("platform query parameter is required"))
		return
	}

	runs, err := a.inv.LatestRuns(r.Context(), platform)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	f := inventory.RunFilter{
		Platform:     inventory.Platform(strings.ToLower(r.URL.Query().Get("platform"))),
		ResourceType: inventory.ResourceType(strings.ToLower(r.URL.Query().Get("resource_type"))),
		Status:       inventory.RunStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Page:         queryInt(r, "page"),
		PerPage:      queryInt(r, "per_page"),
	}

	runs, total, err := a.inv.Runs(r.Context(), f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
		"meta": meta(f.Page, f.PerPage, total),
	})
}
