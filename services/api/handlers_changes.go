package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"vmledger/services/inventory"
)

func (a *API) handleListChanges(w http.ResponseWriter, r *http.Request) {
	f := inventory.ChangeFilter{
		ChangeType: inventory.ChangeType(strings.ToUpper(r.URL.Query().Get("change_type"))),
		Platform:   inventory.Platform(strings.ToLower(r.URL.Query().Get("platform"))),
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
	}

	if raw := r.URL.Query().Get("object_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		f.ObjectID = id
	}

	var err error
	if f.Since, err = queryTime(r, "since"); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if f.Until, err = queryTime(r, "until"); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	changes, total, err := a.inv.Changes(r.Context(), f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"changes": changes,
		"meta":    meta(f.Page, f.PerPage, total),
	})
}
