// Package health provides health checking functionality for the medical data service.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/medpricing/medical-data-service/interfaces"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// missedBeats is the number of heartbeat intervals without a successful beat
// after which the registration is reported as degraded
const missedBeats = 3

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	store        interfaces.RecordStore
	registry     interfaces.Registry
	beatInterval time.Duration
}

// NewHealthChecker creates a new health checker. registry may be nil when
// registration is disabled.
func NewHealthChecker(store interfaces.RecordStore, registry interfaces.Registry, beatInterval time.Duration) *HealthCheckerImpl {
	return &HealthCheckerImpl{
		store:        store,
		registry:     registry,
		beatInterval: beatInterval,
	}
}

// HealthCheck reports unhealthy when the store cannot serve requests, degraded
// when the instance is not kept registered and healthy otherwise. Degraded
// still answers 200 because requests are served normally.
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	lastUpdate := h.store.GetLastUpdated()
	isUpdating := h.store.IsUpdating()

	data = map[string]any{
		"is_updating": isUpdating,
	}
	if !lastUpdate.IsZero() {
		dataAge := time.Since(lastUpdate)
		data["last_update"] = lastUpdate.Format(time.RFC3339)
		data["data_age_hours"] = math.Round(dataAge.Hours()*10) / 10
	}

	var counts interfaces.RecordCounts
	storeErr := h.store.Ping(ctx)
	if storeErr == nil && !lastUpdate.IsZero() {
		counts, storeErr = h.store.Counts(ctx)
	}
	if storeErr == nil {
		data["treatment_items"] = counts.TreatmentItems
		data["drug_prices"] = counts.DrugPrices
		data["diseases"] = counts.Diseases
	} else {
		data["store_error"] = storeErr.Error()
	}

	registryHealthy := true
	if h.registry != nil {
		registered := h.registry.Registered()
		lastBeat := h.registry.LastBeat()
		reg := map[string]any{
			"registered": registered,
		}
		if !lastBeat.IsZero() {
			reg["last_beat"] = lastBeat.Format(time.RFC3339)
		}
		data["registry"] = reg

		stale := h.beatInterval > 0 && time.Since(lastBeat) > missedBeats*h.beatInterval
		registryHealthy = registered && !stale
	}

	switch {
	case lastUpdate.IsZero() || storeErr != nil || counts.Diseases == 0:
		status = StatusUnhealthy
		httpStatus = http.StatusServiceUnavailable

	case !registryHealthy:
		status = StatusDegraded
		httpStatus = http.StatusOK

	default:
		status = StatusHealthy
		httpStatus = http.StatusOK
	}

	return status, data, httpStatus
}
