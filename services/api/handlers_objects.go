package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vmledger/services/inventory"
)

func (a *API) handleListObjects(w http.ResponseWriter, r *http.Request) {
	f := inventory.ObjectFilter{
		Platform: inventory.Platform(strings.ToLower(r.URL.Query().Get("platform"))),
		Kind:     inventory.ObjectKind(strings.ToLower(r.URL.Query().Get("kind"))),
		Name:     strings.TrimSpace(r.URL.Query().Get("name")),
		Page:     queryInt(r, "page"),
		PerPage:  queryInt(r, "per_page"),
	}
	switch r.URL.Query().Get("missing") {
	case "true":
		v := true
		f.Missing = &v
	case "false":
		v := false
		f.Missing = &v
	}

	objects, total, err := a.inv.ListEffectiveObjects(r.Context(), f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"objects": objects,
		"meta":    meta(f.Page, f.PerPage, total),
	})
}

func (a *API) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid object id is required"))
		return
	}

	obj, err := a.inv.EffectiveObject(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"object": obj})
}
