package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/consultease/consultease-core/internal/status"
)

// unitsResponse is the list endpoint envelope.
type unitsResponse struct {
	Units []status.Record `json:"units"`
	Count int             `json:"count"`
}

// handleListUnits returns every known unit's current status, sorted by
// unit ID.
func (s *Server) handleListUnits(w http.ResponseWriter, _ *http.Request) {
	units := s.aggregator.Snapshot()
	if units == nil {
		units = []status.Record{}
	}
	writeJSON(w, http.StatusOK, unitsResponse{
		Units: units,
		Count: len(units),
	})
}

// handleGetUnit returns one unit's current status.
func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.aggregator.Get(id)
	if !ok {
		writeNotFound(w, "unknown unit: "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
