package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medpricing/medical-data-service/importer/entities"
	"github.com/medpricing/medical-data-service/interfaces"
)

// mockStore is a RecordStore serving fixed rows. Keyed lookups return rows
// in the order they are listed here, not in key order.
type mockStore struct {
	treatments []entities.TreatmentItem
	drugs      []entities.DrugPrice
	diseases   []entities.DiseaseRecord

	diseaseErr error
	drugErr    error

	mu            sync.Mutex
	treatmentKeys [][]string
	drugKeys      [][]string
}

func (m *mockStore) FindTreatmentItems(ctx context.Context, codes []string) ([]entities.TreatmentItem, error) {
	m.mu.Lock()
	m.treatmentKeys = append(m.treatmentKeys, codes)
	m.mu.Unlock()

	out := []entities.TreatmentItem{}
	for _, it := range m.treatments {
		if slices.Contains(codes, it.ItemCode) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockStore) FindDrugPrices(ctx context.Context, codes []string) ([]entities.DrugPrice, error) {
	m.mu.Lock()
	m.drugKeys = append(m.drugKeys, codes)
	m.mu.Unlock()

	if m.drugErr != nil {
		return nil, m.drugErr
	}
	out := []entities.DrugPrice{}
	for _, d := range m.drugs {
		if slices.Contains(codes, d.DrugCode) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) FindDiseases(ctx context.Context, names []string) ([]entities.DiseaseRecord, error) {
	if m.diseaseErr != nil {
		return nil, m.diseaseErr
	}
	out := []entities.DiseaseRecord{}
	for _, d := range m.diseases {
		if slices.Contains(names, d.DiseaseName) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) AllTreatmentItems(ctx context.Context) ([]entities.TreatmentItem, error) {
	return m.treatments, nil
}

func (m *mockStore) AllDrugPrices(ctx context.Context) ([]entities.DrugPrice, error) {
	return m.drugs, nil
}

func (m *mockStore) AllDiseases(ctx context.Context) ([]entities.DiseaseRecord, error) {
	return m.diseases, nil
}

func (m *mockStore) ReplaceAll(ctx context.Context, dataset *entities.Dataset) error { return nil }
func (m *mockStore) BeginUpdate() bool                                                { return true }
func (m *mockStore) EndUpdate()                                                       {}
func (m *mockStore) GetLastUpdated() time.Time                                        { return time.Time{} }
func (m *mockStore) IsUpdating() bool                                                 { return false }
func (m *mockStore) Ping(ctx context.Context) error                                   { return nil }

func (m *mockStore) Counts(ctx context.Context) (interfaces.RecordCounts, error) {
	return interfaces.RecordCounts{}, nil
}

func pneumoniaStore() *mockStore {
	return &mockStore{
		treatments: []entities.TreatmentItem{
			{ItemCode: "T001", ItemName: "胸片", Unit: "次", Price: decimal.NewFromInt(50)},
		},
		drugs: []entities.DrugPrice{
			{DrugCode: "D001", DrugName: "阿莫西林", Specification: "0.25g", Manufacturer: "厂A", Price: decimal.NewFromInt(12)},
		},
		diseases: []entities.DiseaseRecord{
			{
				DiseaseCode:      "J18",
				DiseaseName:      "肺炎",
				Description:      "呼吸道感染",
				Level:            "二级",
				TreatmentSummary: "胸片检查",
				TreatmentCodes:   entities.ParseCodeList("T001"),
				DrugSummary:      "抗生素",
				DrugCodes:        entities.ParseCodeList("D001;D002"),
			},
		},
	}
}

func TestResolveDiseaseViewEndToEnd(t *testing.T) {
	r := NewResolver(pneumoniaStore())

	views, err := r.ResolveDiseaseView(context.Background(), "肺炎")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("Expected a one-element result, got %d", len(views))
	}

	data, err := json.Marshal(views)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	expected := `[{"description":"呼吸道感染","disease_name":"肺炎","level":"二级",` +
		`"recommended_drugs":"抗生素","treatment":"胸片检查",` +
		`"drug_name1":"阿莫西林","drug_price1":12,"drug_specification1":"0.25g","drug_manufacturer1":"厂A",` +
		`"treatment_name1":"胸片","treatment_price1":50,"treatment_unit1":"次"}]`
	if string(data) != expected {
		t.Errorf("Unexpected view\n got: %s\nwant: %s", data, expected)
	}
}

func TestResolveDiseaseViewNotFound(t *testing.T) {
	r := NewResolver(pneumoniaStore())

	views, err := r.ResolveDiseaseView(context.Background(), "不存在")
	if err == nil {
		t.Fatalf("Expected NotFound, got views %v", views)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected errors.Is(err, ErrNotFound), got %v", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected *NotFoundError, got %T", err)
	}
	if nf.Entity != "disease" || nf.Key != "不存在" {
		t.Errorf("Unexpected NotFoundError %+v", nf)
	}
}

func TestResolveDiseaseViewUnmatchedDrugs(t *testing.T) {
	store := &mockStore{
		treatments: []entities.TreatmentItem{
			{ItemCode: "T1", ItemName: "一", Unit: "次", Price: decimal.NewFromInt(1)},
			{ItemCode: "T2", ItemName: "二", Unit: "次", Price: decimal.NewFromInt(2)},
		},
		diseases: []entities.DiseaseRecord{
			{DiseaseName: "X", TreatmentCodes: entities.ParseCodeList("T1;T2"), DrugCodes: entities.ParseCodeList("D1")},
		},
	}
	r := NewResolver(store)

	views, err := r.ResolveDiseaseView(context.Background(), "X")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	view := views[0]

	for _, key := range []string{"treatment_name1", "treatment_name2"} {
		if _, ok := view.Get(key); !ok {
			t.Errorf("Expected %s to be present", key)
		}
	}
	if _, ok := view.Get("drug_name1"); ok {
		t.Error("Expected no drug_name1 when no drug resolved")
	}
	if view.Len() != 5+2*3 {
		t.Errorf("Expected %d fields, got %d", 5+2*3, view.Len())
	}
}

func TestResolveDiseaseViewFollowsStoreOrder(t *testing.T) {
	store := &mockStore{
		// The store answers D2 before D1
		drugs: []entities.DrugPrice{
			{DrugCode: "D2", DrugName: "second"},
			{DrugCode: "D1", DrugName: "first"},
		},
		diseases: []entities.DiseaseRecord{
			{DiseaseName: "X", DrugCodes: entities.ParseCodeList("D1;D2")},
		},
	}
	r := NewResolver(store)

	views, err := r.ResolveDiseaseView(context.Background(), "X")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if v, _ := views[0].Get("drug_name1"); v != "second" {
		t.Errorf("Expected drug_name1 = second, got %v", v)
	}
	if v, _ := views[0].Get("drug_name2"); v != "first" {
		t.Errorf("Expected drug_name2 = first, got %v", v)
	}
}

func TestResolveDiseaseViewPassesCodeListsUnfiltered(t *testing.T) {
	store := &mockStore{
		diseases: []entities.DiseaseRecord{
			{DiseaseName: "X", TreatmentCodes: entities.ParseCodeList("T1;"), DrugCodes: entities.ParseCodeList("")},
		},
	}
	r := NewResolver(store)

	if _, err := r.ResolveDiseaseView(context.Background(), "X"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(store.treatmentKeys) != 1 || !slices.Equal(store.treatmentKeys[0], []string{"T1", ""}) {
		t.Errorf("Expected treatment lookup with [T1 \"\"], got %q", store.treatmentKeys)
	}
	if len(store.drugKeys) != 1 || len(store.drugKeys[0]) != 0 {
		t.Errorf("Expected drug lookup with an empty key set, got %q", store.drugKeys)
	}
}

func TestResolveDiseaseViewFirstMatchWins(t *testing.T) {
	store := &mockStore{
		diseases: []entities.DiseaseRecord{
			{DiseaseCode: "A", DiseaseName: "X", Level: "first"},
			{DiseaseCode: "B", DiseaseName: "X", Level: "second"},
		},
	}
	r := NewResolver(store)

	views, err := r.ResolveDiseaseView(context.Background(), "X")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("Expected one view, got %d", len(views))
	}
	if v, _ := views[0].Get("level"); v != "first" {
		t.Errorf("Expected the first record to be used, got level %v", v)
	}
}

func TestResolveDiseaseViewPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")

	tests := []struct {
		name  string
		store *mockStore
	}{
		{
			name:  "disease lookup fails",
			store: &mockStore{diseaseErr: storeErr},
		},
		{
			name: "drug lookup fails",
			store: &mockStore{
				drugErr:  storeErr,
				diseases: []entities.DiseaseRecord{{DiseaseName: "X", DrugCodes: entities.CodeList{"D1"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.store).ResolveDiseaseView(context.Background(), "X")
			if !errors.Is(err, storeErr) {
				t.Errorf("Expected wrapped store error, got %v", err)
			}
			if errors.Is(err, ErrNotFound) {
				t.Error("Store failure must not look like NotFound")
			}
		})
	}
}

func TestFlattenWithoutCodes(t *testing.T) {
	view := Flatten(entities.DiseaseRecord{DiseaseName: "X"}, nil, nil)

	names := make([]string, 0, view.Len())
	for _, f := range view.Fields() {
		names = append(names, f.Name)
	}
	expected := []string{"description", "disease_name", "level", "recommended_drugs", "treatment"}
	if !slices.Equal(names, expected) {
		t.Errorf("Expected fields %v, got %v", expected, names)
	}
}

func TestFlattenOrdersDrugsBeforeTreatments(t *testing.T) {
	view := Flatten(
		entities.DiseaseRecord{},
		[]entities.DrugPrice{{DrugName: "d1"}, {DrugName: "d2"}},
		[]entities.TreatmentItem{{ItemName: "t1"}},
	)

	fields := view.Fields()
	if len(fields) != 5+8+3 {
		t.Fatalf("Expected 16 fields, got %d", len(fields))
	}
	if fields[5].Name != "drug_name1" || fields[9].Name != "drug_name2" || fields[13].Name != "treatment_name1" {
		t.Errorf("Unexpected field order: %s, %s, %s", fields[5].Name, fields[9].Name, fields[13].Name)
	}
}
