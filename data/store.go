// Package data provides the relational record store for the medical data service.
// It owns the database handle, creates the reference tables, bulk loads them
// and answers keyed and full reads for treatment items, drug prices and diseases.
// The handle is a goroutine-safe connection pool; all request-time access is read only.
package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/medpricing/medical-data-service/importer/entities"
	"github.com/medpricing/medical-data-service/interfaces"
	"github.com/medpricing/medical-data-service/logging"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrStoreUnavailable is returned when the store has not been loaded yet
// or the database cannot be reached.
var ErrStoreUnavailable = errors.New("record store unavailable")

// Compile-time check to ensure SQLStore implements RecordStore
var _ interfaces.RecordStore = (*SQLStore)(nil)

// SQLStore is a RecordStore backed by a SQL database
type SQLStore struct {
	db          *sqlx.DB
	loaded      atomic.Bool
	updating    atomic.Bool
	lastUpdated atomic.Value // time.Time
}

// Open connects to the database and returns a store owning the connection
func Open(driverName, dsn string) (*SQLStore, error) {
	switch driverName {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driverName)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driverName == DriverSQLite && isMemoryDSN(dsn) {
		// Every connection to a private in-memory database is a new database
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing database handle
func NewSQLStore(db *sqlx.DB) *SQLStore {
	s := &SQLStore{db: db}
	s.lastUpdated.Store(time.Time{})
	return s
}

// sqliteDSN adds the pragmas the store relies on to a SQLite DSN
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	pragmas := []string{"_pragma=busy_timeout(5000)"}
	if !isMemoryDSN(dsn) {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Close releases the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FindTreatmentItems returns the treatment items whose code is in codes
func (s *SQLStore) FindTreatmentItems(ctx context.Context, codes []string) ([]entities.TreatmentItem, error) {
	items := []entities.TreatmentItem{}
	if err := s.selectIn(ctx, &items, selectIn(treatmentItemColumns, treatmentItemTable, treatmentItemKey), codes); err != nil {
		return nil, fmt.Errorf("failed to find treatment items: %w", err)
	}
	return items, nil
}

// FindDrugPrices returns the drug prices whose code is in codes
func (s *SQLStore) FindDrugPrices(ctx context.Context, codes []string) ([]entities.DrugPrice, error) {
	drugs := []entities.DrugPrice{}
	if err := s.selectIn(ctx, &drugs, selectIn(drugPriceColumns, drugPriceTable, drugPriceKey), codes); err != nil {
		return nil, fmt.Errorf("failed to find drug prices: %w", err)
	}
	return drugs, nil
}

// FindDiseases returns the disease records whose name is in names
func (s *SQLStore) FindDiseases(ctx context.Context, names []string) ([]entities.DiseaseRecord, error) {
	diseases := []entities.DiseaseRecord{}
	if err := s.selectIn(ctx, &diseases, selectIn(diseaseColumns, diseaseTable, diseaseKey), names); err != nil {
		return nil, fmt.Errorf("failed to find diseases: %w", err)
	}
	return diseases, nil
}

// AllTreatmentItems returns every treatment item
func (s *SQLStore) AllTreatmentItems(ctx context.Context) ([]entities.TreatmentItem, error) {
	items := []entities.TreatmentItem{}
	if err := s.selectAll(ctx, &items, selectAll(treatmentItemColumns, treatmentItemTable)); err != nil {
		return nil, fmt.Errorf("failed to list treatment items: %w", err)
	}
	return items, nil
}

// AllDrugPrices returns every drug price
func (s *SQLStore) AllDrugPrices(ctx context.Context) ([]entities.DrugPrice, error) {
	drugs := []entities.DrugPrice{}
	if err := s.selectAll(ctx, &drugs, selectAll(drugPriceColumns, drugPriceTable)); err != nil {
		return nil, fmt.Errorf("failed to list drug prices: %w", err)
	}
	return drugs, nil
}

// AllDiseases returns every disease record
func (s *SQLStore) AllDiseases(ctx context.Context) ([]entities.DiseaseRecord, error) {
	diseases := []entities.DiseaseRecord{}
	if err := s.selectAll(ctx, &diseases, selectAll(diseaseColumns, diseaseTable)); err != nil {
		return nil, fmt.Errorf("failed to list diseases: %w", err)
	}
	return diseases, nil
}

// selectIn runs a keyed query. An empty key set never reaches the database.
func (s *SQLStore) selectIn(ctx context.Context, dest any, query string, keys []string) error {
	if !s.loaded.Load() {
		return ErrStoreUnavailable
	}

	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return nil
	}

	query, args, err := sqlx.In(query, keys)
	if err != nil {
		return fmt.Errorf("failed to expand query: %w", err)
	}

	return classify(s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...))
}

func (s *SQLStore) selectAll(ctx context.Context, dest any, query string) error {
	if !s.loaded.Load() {
		return ErrStoreUnavailable
	}
	return classify(s.db.SelectContext(ctx, dest, query))
}

// uniqueKeys drops duplicate keys, keeping the first occurrence order
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// classify maps connection level failures to ErrStoreUnavailable
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// ReplaceAll drops and recreates the three tables and loads the dataset
// inside a single transaction. Readers keep seeing the previous data until commit.
func (s *SQLStore) ReplaceAll(ctx context.Context, dataset *entities.Dataset) error {
	if dataset == nil {
		return fmt.Errorf("dataset is nil")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.Warn("Failed to roll back import transaction", "error", err)
		}
	}()

	for _, stmt := range append(append([]string{}, dropStatements...), schemaStatements...) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
	}

	if err := insertRows(ctx, tx, insertTreatmentItem, dataset.TreatmentItems, func(it entities.TreatmentItem) []any {
		return []any{it.ItemCode, it.ItemName, it.Unit, it.Price}
	}); err != nil {
		return fmt.Errorf("failed to insert treatment items: %w", err)
	}

	if err := insertRows(ctx, tx, insertDrugPrice, dataset.DrugPrices, func(d entities.DrugPrice) []any {
		return []any{d.DrugCode, d.DrugName, d.Specification, d.Manufacturer, d.Price}
	}); err != nil {
		return fmt.Errorf("failed to insert drug prices: %w", err)
	}

	if err := insertRows(ctx, tx, insertDisease, dataset.Diseases, func(d entities.DiseaseRecord) []any {
		return []any{d.DiseaseCode, d.DiseaseName, d.Description, d.Level,
			d.TreatmentSummary, d.TreatmentCodes, d.DrugSummary, d.DrugCodes}
	}); err != nil {
		return fmt.Errorf("failed to insert diseases: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	s.loaded.Store(true)
	s.lastUpdated.Store(time.Now())
	return nil
}

func insertRows[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T, args func(T) []any) error {
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return err
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			logging.Warn("Failed to close insert statement", "error", err)
		}
	}()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, args(rows[i])...); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return nil
}

// Counts returns the number of rows in each collection
func (s *SQLStore) Counts(ctx context.Context) (interfaces.RecordCounts, error) {
	var counts interfaces.RecordCounts
	if !s.loaded.Load() {
		return counts, ErrStoreUnavailable
	}

	targets := []struct {
		table string
		dest  *int
	}{
		{treatmentItemTable, &counts.TreatmentItems},
		{drugPriceTable, &counts.DrugPrices},
		{diseaseTable, &counts.Diseases},
	}
	for _, t := range targets {
		if err := s.db.GetContext(ctx, t.dest, countRows(t.table)); err != nil {
			return counts, fmt.Errorf("failed to count %s: %w", t.table, classify(err))
		}
	}
	return counts, nil
}

// GetLastUpdated returns the timestamp of the last successful load
func (s *SQLStore) GetLastUpdated() time.Time {
	if v := s.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data load is currently in progress
func (s *SQLStore) IsUpdating() bool {
	return s.updating.Load()
}

// BeginUpdate marks the start of a data load.
// Returns true if the load can proceed, false if another one is in progress
func (s *SQLStore) BeginUpdate() bool {
	return s.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data load
func (s *SQLStore) EndUpdate() {
	s.updating.Store(false)
}
