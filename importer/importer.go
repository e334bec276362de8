// Package importer reads the published CSV files of treatment item prices,
// drug prices and disease information and loads them into the record store.
package importer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medpricing/medical-data-service/importer/entities"
	"github.com/medpricing/medical-data-service/interfaces"
	"github.com/medpricing/medical-data-service/logging"
	"github.com/medpricing/medical-data-service/metrics"
)

// Paths locates the three source files
type Paths struct {
	TreatmentItems string
	DrugPrices     string
	Diseases       string
}

// Compile-time check to ensure CSVImporter implements Importer
var _ interfaces.Importer = (*CSVImporter)(nil)

// CSVImporter implements the Importer interface
type CSVImporter struct {
	paths Paths
}

// NewCSVImporter creates an importer reading the files at paths
func NewCSVImporter(paths Paths) *CSVImporter {
	return &CSVImporter{paths: paths}
}

// Parse reads the three files concurrently
func (i *CSVImporter) Parse(ctx context.Context) (*entities.Dataset, error) {
	dataset := &entities.Dataset{}

	var g errgroup.Group
	g.Go(func() error {
		items, err := parseTreatmentItems(i.paths.TreatmentItems)
		dataset.TreatmentItems = items
		return err
	})
	g.Go(func() error {
		drugs, err := parseDrugPrices(i.paths.DrugPrices)
		dataset.DrugPrices = drugs
		return err
	})
	g.Go(func() error {
		diseases, err := parseDiseases(i.paths.Diseases)
		dataset.Diseases = diseases
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return dataset, nil
}

// Load parses the source files and replaces the content of store
func (i *CSVImporter) Load(ctx context.Context, store interfaces.RecordStore) (interfaces.RecordCounts, error) {
	start := time.Now()

	dataset, err := i.Parse(ctx)
	if err != nil {
		return interfaces.RecordCounts{}, fmt.Errorf("failed to parse source files: %w", err)
	}

	if err := store.ReplaceAll(ctx, dataset); err != nil {
		return interfaces.RecordCounts{}, fmt.Errorf("failed to load records: %w", err)
	}

	counts := interfaces.RecordCounts{
		TreatmentItems: len(dataset.TreatmentItems),
		DrugPrices:     len(dataset.DrugPrices),
		Diseases:       len(dataset.Diseases),
	}

	elapsed := time.Since(start)
	metrics.DataImportDuration.Observe(elapsed.Seconds())
	metrics.DataImportRows.WithLabelValues("treatment_items").Set(float64(counts.TreatmentItems))
	metrics.DataImportRows.WithLabelValues("drug_prices").Set(float64(counts.DrugPrices))
	metrics.DataImportRows.WithLabelValues("diseases").Set(float64(counts.Diseases))

	logging.Info("Reference data imported",
		"treatment_items", counts.TreatmentItems,
		"drug_prices", counts.DrugPrices,
		"diseases", counts.Diseases,
		"duration_ms", elapsed.Milliseconds(),
	)

	return counts, nil
}
