// Package resolver builds the composite disease view: one disease record merged
// with the drug prices and treatment items referenced by its code lists.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/medpricing/medical-data-service/importer/entities"
	"github.com/medpricing/medical-data-service/interfaces"
	"github.com/medpricing/medical-data-service/logging"
	"github.com/medpricing/medical-data-service/metrics"
)

// ErrNotFound is matched by every NotFoundError
var ErrNotFound = errors.New("not found")

// NotFoundError reports that the entity the resolution starts from does not exist
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// Is makes errors.Is(err, ErrNotFound) hold
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Field names of the flattened view
const (
	fieldDescription      = "description"
	fieldDiseaseName      = "disease_name"
	fieldLevel            = "level"
	fieldRecommendedDrugs = "recommended_drugs"
	fieldTreatment        = "treatment"

	prefixDrugName          = "drug_name"
	prefixDrugPrice         = "drug_price"
	prefixDrugSpecification = "drug_specification"
	prefixDrugManufacturer  = "drug_manufacturer"

	prefixTreatmentName  = "treatment_name"
	prefixTreatmentPrice = "treatment_price"
	prefixTreatmentUnit  = "treatment_unit"
)

// Compile-time check to ensure Resolver implements DiseaseResolver
var _ interfaces.DiseaseResolver = (*Resolver)(nil)

// Resolver resolves composite disease views against a record store
type Resolver struct {
	store interfaces.RecordStore
}

// NewResolver creates a resolver reading from store
func NewResolver(store interfaces.RecordStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveDiseaseView resolves the disease named diseaseName, looks up the
// drugs and treatment items it references and returns the flattened view
// wrapped in a one-element slice. An unknown disease yields a NotFoundError.
func (r *Resolver) ResolveDiseaseView(ctx context.Context, diseaseName string) ([]*entities.DiseaseView, error) {
	diseases, err := r.store.FindDiseases(ctx, []string{diseaseName})
	if err != nil {
		metrics.DiseaseViewResolutions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to resolve disease: %w", err)
	}
	if len(diseases) == 0 {
		metrics.DiseaseViewResolutions.WithLabelValues("not_found").Inc()
		return nil, &NotFoundError{Entity: "disease", Key: diseaseName}
	}
	if len(diseases) > 1 {
		// First match wins; the data set is expected to hold unique names
		metrics.DiseaseViewAmbiguous.Inc()
		logging.Warn("Several disease records share a name, using the first",
			"disease_name", diseaseName,
			"matches", len(diseases),
			"used_code", diseases[0].DiseaseCode,
		)
	}
	disease := diseases[0]

	var (
		treatments []entities.TreatmentItem
		drugs      []entities.DrugPrice
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		treatments, err = r.store.FindTreatmentItems(gctx, disease.TreatmentCodes)
		return err
	})
	g.Go(func() error {
		var err error
		drugs, err = r.store.FindDrugPrices(gctx, disease.DrugCodes)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.DiseaseViewResolutions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to resolve codes of disease %q: %w", diseaseName, err)
	}

	metrics.DiseaseViewResolutions.WithLabelValues("found").Inc()
	return []*entities.DiseaseView{Flatten(disease, drugs, treatments)}, nil
}

// Flatten merges a disease with its resolved drugs and treatment items.
// Numbered fields follow the order of the given slices, starting at 1.
func Flatten(disease entities.DiseaseRecord, drugs []entities.DrugPrice, treatments []entities.TreatmentItem) *entities.DiseaseView {
	view := entities.NewDiseaseView(5 + 4*len(drugs) + 3*len(treatments))

	view.Set(fieldDescription, disease.Description)
	view.Set(fieldDiseaseName, disease.DiseaseName)
	view.Set(fieldLevel, disease.Level)
	view.Set(fieldRecommendedDrugs, disease.DrugSummary)
	view.Set(fieldTreatment, disease.TreatmentSummary)

	for i, d := range drugs {
		pos := i + 1
		view.SetIndexed(prefixDrugName, pos, d.DrugName)
		view.SetIndexed(prefixDrugPrice, pos, d.Price)
		view.SetIndexed(prefixDrugSpecification, pos, d.Specification)
		view.SetIndexed(prefixDrugManufacturer, pos, d.Manufacturer)
	}

	for i, t := range treatments {
		pos := i + 1
		view.SetIndexed(prefixTreatmentName, pos, t.ItemName)
		view.SetIndexed(prefixTreatmentPrice, pos, t.Price)
		view.SetIndexed(prefixTreatmentUnit, pos, t.Unit)
	}

	return view
}
