package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vizquery/vizquery/internal/models"
	"github.com/vizquery/vizquery/internal/registry"
)

// DataSourcesHandler manages the registry endpoints. All read responses
// are built from models.DataSourceInfo, which has no credential fields,
// so connection settings cannot appear in a body regardless of caller.
type DataSourcesHandler struct {
	reg *registry.Registry
}

func NewDataSourcesHandler(reg *registry.Registry) *DataSourcesHandler {
	return &DataSourcesHandler{reg: reg}
}

// List handles GET /api/v1/datasources
func (h *DataSourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	models.WriteJSON(w, http.StatusOK, models.DataSourceListResponse{
		DataSources: h.reg.List(),
	})
}

// Register handles POST /api/v1/datasource
func (h *DataSourcesHandler) Register(w http.ResponseWriter, r *http.Request) {
	def, ok := h.decodeDefinition(w, r)
	if !ok {
		return
	}
	if err := h.reg.Register(r.Context(), def); err != nil {
		models.WriteError(w, http.StatusBadRequest, "could not register data source: "+err.Error())
		return
	}
	models.WriteJSON(w, http.StatusCreated, models.DataSourceInfo{ID: def.ID, Name: def.Name})
}

// Replace handles PUT /api/v1/datasource
func (h *DataSourcesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	def, ok := h.decodeDefinition(w, r)
	if !ok {
		return
	}
	if err := h.reg.Replace(r.Context(), def); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, registry.ErrNotFound) {
			code = http.StatusNotFound
		}
		models.WriteError(w, code, "could not replace data source: "+err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, models.DataSourceInfo{ID: def.ID, Name: def.Name})
}

// Remove handles DELETE /api/v1/datasource?id=...
func (h *DataSourcesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		models.WriteError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	if err := h.reg.Remove(id); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, registry.ErrNotFound) {
			code = http.StatusNotFound
		}
		models.WriteError(w, code, "could not remove data source: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataSourcesHandler) decodeDefinition(w http.ResponseWriter, r *http.Request) (registry.Definition, bool) {
	var req models.RegisterDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return registry.Definition{}, false
	}
	if err := req.Validate(); err != nil {
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return registry.Definition{}, false
	}

	def := registry.Definition{
		ID:   req.ID,
		Name: req.Name,
		Kind: req.Kind,
		Settings: registry.Settings{
			DSN:             req.DSN,
			ProjectID:       req.ProjectID,
			Dataset:         req.Dataset,
			Location:        req.Location,
			CredentialsFile: req.CredsFile,
		},
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	for _, ex := range req.Exemplars {
		def.Exemplars = append(def.Exemplars, registry.Exemplar{Question: ex.Question, SQL: ex.SQL})
	}
	return def, true
}
