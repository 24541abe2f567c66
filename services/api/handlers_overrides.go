package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *API) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid object id is required"))
		return
	}

	overrides, err := a.inv.Overrides(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"overrides": overrides})
}

func (a *API) handlePutOverride(w http.ResponseWriter, r *http.Request) {
	id, field, ok := overrideTarget(w, r)
	if !ok {
		return
	}

	var req struct {
		Value     *string `json:"value"`
		UpdatedBy string  `json:"updated_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	obj, err := a.inv.SetOverride(r.Context(), id, field, req.Value, strings.TrimSpace(req.UpdatedBy))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"object": obj})
}

func (a *API) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	id, field, ok := overrideTarget(w, r)
	if !ok {
		return
	}

	obj, err := a.inv.SetOverride(r.Context(), id, field, nil, "")
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"object": obj})
}

func overrideTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid object id is required"))
		return uuid.Nil, "", false
	}
	field := strings.TrimSpace(chi.URLParam(r, "*"))
	if field == "" {
		respondError(w, http.StatusBadRequest, errors.New("override field is required"))
		return uuid.Nil, "", false
	}
	return id, field, true
}
