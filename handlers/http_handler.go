package handlers

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/medpricing/medical-data-service/interfaces"
)

// Query parameters of the keyed lookups
const (
	paramItemCode    = "item_code"
	paramDrugCode    = "drug_code"
	paramDiseaseName = "disease_name"
)

var serverStartTime = time.Now()

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	store     interfaces.RecordStore
	resolver  interfaces.DiseaseResolver
	validator interfaces.InputValidator
	health    interfaces.HealthChecker
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	store interfaces.RecordStore,
	resolver interfaces.DiseaseResolver,
	validator interfaces.InputValidator,
	health interfaces.HealthChecker,
) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		store:     store,
		resolver:  resolver,
		validator: validator,
		health:    health,
	}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// ServeMedicalCosts returns every treatment item
func (h *HTTPHandlerImpl) ServeMedicalCosts(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.AllTreatmentItems(r.Context())
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, items)
}

// ServeDrugPrices returns every drug price
func (h *HTTPHandlerImpl) ServeDrugPrices(w http.ResponseWriter, r *http.Request) {
	drugs, err := h.store.AllDrugPrices(r.Context())
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, drugs)
}

// ServeDiseases returns every disease record
func (h *HTTPHandlerImpl) ServeDiseases(w http.ResponseWriter, r *http.Request) {
	diseases, err := h.store.AllDiseases(r.Context())
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, diseases)
}

// FindMedicals returns the treatment items listed in ?item_code=a,b,c
func (h *HTTPHandlerImpl) FindMedicals(w http.ResponseWriter, r *http.Request) {
	codes, err := h.validator.ParseKeyList(paramItemCode, r.URL.Query().Get(paramItemCode))
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}

	items, err := h.store.FindTreatmentItems(r.Context(), codes)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, items)
}

// FindDrugs returns the drug prices listed in ?drug_code=a,b,c
func (h *HTTPHandlerImpl) FindDrugs(w http.ResponseWriter, r *http.Request) {
	codes, err := h.validator.ParseKeyList(paramDrugCode, r.URL.Query().Get(paramDrugCode))
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}

	drugs, err := h.store.FindDrugPrices(r.Context(), codes)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, drugs)
}

// FindDiseases returns the disease records listed in ?disease_name=a,b,c
func (h *HTTPHandlerImpl) FindDiseases(w http.ResponseWriter, r *http.Request) {
	names, err := h.validator.ParseKeyList(paramDiseaseName, r.URL.Query().Get(paramDiseaseName))
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}

	diseases, err := h.store.FindDiseases(r.Context(), names)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, diseases)
}

// ResolveDisease returns the flattened view of ?disease_name=X as a one-element array.
// The name is taken whole; commas are not separators here.
func (h *HTTPHandlerImpl) ResolveDisease(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get(paramDiseaseName))
	if name == "" {
		RespondWithError(w, http.StatusBadRequest, paramDiseaseName+": parameter is required")
		return
	}
	if err := h.validator.ValidateInput(name); err != nil {
		RespondWithError(w, http.StatusBadRequest, paramDiseaseName+": "+err.Error())
		return
	}

	views, err := h.resolver.ResolveDiseaseView(r.Context(), name)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, views)
}

// HealthCheck returns service health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status, details, httpStatus := h.health.HealthCheck(r.Context())

	response := HealthResponse{
		Status:        status,
		UptimeSeconds: time.Since(serverStartTime).Seconds(),
		Data:          details,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}

	RespondWithJSON(w, httpStatus, response)
}
