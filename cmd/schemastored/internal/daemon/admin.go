package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

// storedSchemaResponse is the JSON shape of one schema version. Data is
// base64, the way encoding/json renders byte slices.
type storedSchemaResponse struct {
	SchemaID string `json:"schema_id"`
	Version  uint64 `json:"version"`
	Data     []byte `json:"data"`
}

// adminHandler serves the operational surface: metrics, health and read-only
// schema inspection. The client-facing registration RPC lives in the broker,
// not here.
func (d *Daemon) adminHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", d.metricsHandler())
	r.Mount("/debug", http.DefaultServeMux)
	r.Get("/healthz", d.handleHealth)
	r.Get("/schemas/{schemaID}", d.handleGetLatest)
	r.Get("/schemas/{schemaID}/versions/{version}", d.handleGetByVersion)
	r.Get("/schemas/{schemaID}/history", d.handleHistory)
	return r
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (d *Daemon) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	schemaID := chi.URLParam(r, "schemaID")
	schema, ok, err := d.engine.GetLatest(r.Context(), schemaID)
	if err != nil {
		d.writeError(w, schemaID, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, storedSchemaResponse{SchemaID: schemaID, Version: schema.Version, Data: schema.Data})
}

func (d *Daemon) handleGetByVersion(w http.ResponseWriter, r *http.Request) {
	schemaID := chi.URLParam(r, "schemaID")
	version, err := strconv.ParseUint(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		http.Error(w, "version must be an unsigned integer", http.StatusBadRequest)
		return
	}
	schema, ok, err := d.engine.GetByVersion(r.Context(), schemaID, version)
	if err != nil {
		d.writeError(w, schemaID, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, storedSchemaResponse{SchemaID: schemaID, Version: schema.Version, Data: schema.Data})
}

func (d *Daemon) handleHistory(w http.ResponseWriter, r *http.Request) {
	schemaID := chi.URLParam(r, "schemaID")
	futures, err := d.engine.GetAll(r.Context(), schemaID)
	if err != nil {
		d.writeError(w, schemaID, err)
		return
	}
	history := make([]storedSchemaResponse, 0, len(futures))
	for _, f := range futures {
		schema, err := f.Await(r.Context())
		if err != nil {
			d.writeError(w, schemaID, err)
			return
		}
		history = append(history, storedSchemaResponse{SchemaID: schemaID, Version: schema.Version, Data: schema.Data})
	}
	writeJSON(w, http.StatusOK, history)
}

func (d *Daemon) writeError(w http.ResponseWriter, schemaID string, err error) {
	d.logger.WithError(err).WithField("schema", schemaID).Error("admin schema read failed")
	status := http.StatusInternalServerError
	if errors.Is(err, schemastore.ErrLedgerNotFound) || errors.Is(err, schemastore.ErrEntryNotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
