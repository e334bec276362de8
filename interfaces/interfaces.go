// Package interfaces defines core abstractions for the medical data service
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/medpricing/medical-data-service/importer/entities"
)

// RecordCounts holds the number of rows per collection
type RecordCounts struct {
	TreatmentItems int `json:"treatment_items"`
	DrugPrices     int `json:"drug_prices"`
	Diseases       int `json:"diseases"`
}

// RecordStore defines the contract for the reference data store.
// Every Find method accepts a set of keys and returns the matching rows.
// An empty key set returns an empty slice; unknown keys are not an error;
// no ordering across the key set is promised.
type RecordStore interface {
	// Keyed lookups
	FindTreatmentItems(ctx context.Context, codes []string) ([]entities.TreatmentItem, error)
	FindDrugPrices(ctx context.Context, codes []string) ([]entities.DrugPrice, error)
	FindDiseases(ctx context.Context, names []string) ([]entities.DiseaseRecord, error)

	// Full listings
	AllTreatmentItems(ctx context.Context) ([]entities.TreatmentItem, error)
	AllDrugPrices(ctx context.Context) ([]entities.DrugPrice, error)
	AllDiseases(ctx context.Context) ([]entities.DiseaseRecord, error)

	// Data update methods
	ReplaceAll(ctx context.Context, dataset *entities.Dataset) error
	BeginUpdate() bool
	EndUpdate()

	// State
	Counts(ctx context.Context) (RecordCounts, error)
	GetLastUpdated() time.Time
	IsUpdating() bool
	Ping(ctx context.Context) error
}

// DiseaseResolver answers the composite "disease with its drugs and treatments" query.
type DiseaseResolver interface {
	// ResolveDiseaseView returns a one-element slice holding the flattened view
	ResolveDiseaseView(ctx context.Context, diseaseName string) ([]*entities.DiseaseView, error)
}

// Importer defines the contract for reading the reference data files
// and loading them into a RecordStore.
type Importer interface {
	// Parse reads all source files into a dataset
	Parse(ctx context.Context) (*entities.Dataset, error)

	// Load parses the source files and replaces the store content
	Load(ctx context.Context, store RecordStore) (RecordCounts, error)
}

// Registry defines the contract for service discovery registration.
type Registry interface {
	Register(ctx context.Context) error
	Beat(ctx context.Context) error
	Deregister(ctx context.Context) error
	Registered() bool
	LastBeat() time.Time
}

// Scheduler defines the contract for job scheduling and health monitoring.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HTTPHandler defines the contract for HTTP request handlers.
type HTTPHandler interface {
	ServeMedicalCosts(w http.ResponseWriter, r *http.Request)
	ServeDrugPrices(w http.ResponseWriter, r *http.Request)
	ServeDiseases(w http.ResponseWriter, r *http.Request)
	FindMedicals(w http.ResponseWriter, r *http.Request)
	FindDrugs(w http.ResponseWriter, r *http.Request)
	FindDiseases(w http.ResponseWriter, r *http.Request)
	ResolveDisease(w http.ResponseWriter, r *http.Request)
	// This will stay in all versions
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)
}

// InputValidator defines the contract for request input validation.
type InputValidator interface {
	// ValidateInput validates a single user supplied key
	ValidateInput(input string) error

	// ParseKeyList splits a comma separated parameter into validated keys
	ParseKeyList(param, raw string) ([]string, error)
}
