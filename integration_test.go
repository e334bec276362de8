package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/medpricing/medical-data-service/config"
	"github.com/medpricing/medical-data-service/data"
	"github.com/medpricing/medical-data-service/handlers"
	"github.com/medpricing/medical-data-service/health"
	"github.com/medpricing/medical-data-service/importer"
	"github.com/medpricing/medical-data-service/resolver"
	"github.com/medpricing/medical-data-service/scheduler"
	"github.com/medpricing/medical-data-service/server"
	"github.com/medpricing/medical-data-service/validation"
)

const (
	costCSV = "项目编码,项目名称,计价单位,项目单价（元）\n" +
		"T001,胸片,次,50\n" +
		"T002,血常规,次,25.5\n"

	drugCSV = "编号,药品名称,规格,产地,价格\n" +
		"D001,阿莫西林,0.25g,厂A,12\n" +
		"D002,布洛芬,0.2g,厂B,8.8\n"

	diseaseCSV = "疾病编码,疾病名称,疾病描述,疾病分级,常用诊疗,常用诊疗编号,常用药品,常用药品编号\n" +
		"J18,肺炎,呼吸道感染,二级,胸片检查,T001;T002,抗生素,D001;D002\n" +
		"E11,糖尿病,代谢疾病,三级,血糖监测,,降糖药,D003\n"
)

var storeSeq atomic.Int64

// newTestHandler loads CSV fixtures into an in-memory SQLite store through
// the scheduler and returns the handlers serving it, without service registration
func newTestHandler(t testing.TB) *handlers.HTTPHandlerImpl {
	t.Helper()

	dir := t.TempDir()
	paths := importer.Paths{
		TreatmentItems: filepath.Join(dir, "PublicizeCostData.csv"),
		DrugPrices:     filepath.Join(dir, "PublicizeDrugPriceData.csv"),
		Diseases:       filepath.Join(dir, "DiseaseInfo.csv"),
	}
	for path, content := range map[string]string{
		paths.TreatmentItems: costCSV,
		paths.DrugPrices:     drugCSV,
		paths.Diseases:       diseaseCSV,
	} {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write fixture: %v", err)
		}
	}

	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", storeSeq.Add(1))
	store, err := data.Open(data.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sched := scheduler.NewScheduler(store, importer.NewCSVImporter(paths), nil, scheduler.Options{})
	if err := sched.Start(); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	t.Cleanup(sched.Stop)

	return handlers.NewHTTPHandler(
		store,
		resolver.NewResolver(store),
		validation.NewValidator(),
		health.NewHealthChecker(store, nil, 0),
	)
}

// setupTestService builds the whole service router
func setupTestService(t testing.TB) http.Handler {
	t.Helper()

	cfg := &config.Config{
		Port:           "5000",
		Address:        "127.0.0.1",
		Env:            config.EnvTest,
		MaxRequestBody: 1048576,
		MaxHeaderSize:  1048576,
		RateLimit:      config.DefaultRateLimit(),
	}
	return server.NewServer(cfg, newTestHandler(t)).Router()
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestIntegrationListings(t *testing.T) {
	ts := httptest.NewServer(setupTestService(t))
	defer ts.Close()

	tests := []struct {
		path     string
		expected int
	}{
		{"/api/medical-costs", 2},
		{"/api/drug-prices", 2},
		{"/api/diseases", 2},
		{"/api/some_medicals?item_code=T001,T404", 1},
		{"/api/some_drugs?drug_code=D001,D002,D001", 2},
		{"/api/some_diseases?disease_name="+url.QueryEscape("糖尿病"), 1},
		{"/api/some_drugs?drug_code=A--01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var rows []map[string]any
			if status := getJSON(t, ts, tt.path, &rows); status != http.StatusOK {
				t.Fatalf("Expected 200, got %d", status)
			}
			if len(rows) != tt.expected {
				t.Errorf("Expected %d rows, got %d", tt.expected, len(rows))
			}
		})
	}
}

func TestIntegrationResolveDisease(t *testing.T) {
	ts := httptest.NewServer(setupTestService(t))
	defer ts.Close()

	var views []map[string]any
	if status := getJSON(t, ts, "/api/one_disease_medical_drug?disease_name="+url.QueryEscape("肺炎"), &views); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(views) != 1 {
		t.Fatalf("Expected a one-element array, got %d", len(views))
	}

	view := views[0]
	if view["disease_name"] != "肺炎" || view["level"] != "二级" || view["recommended_drugs"] != "抗生素" {
		t.Errorf("Unexpected base fields: %v", view)
	}
	for _, key := range []string{
		"drug_name1", "drug_price1", "drug_specification1", "drug_manufacturer1",
		"drug_name2", "treatment_name1", "treatment_price2", "treatment_unit2",
	} {
		if _, ok := view[key]; !ok {
			t.Errorf("Expected %s in view", key)
		}
	}
	if len(view) != 5+2*4+2*3 {
		t.Errorf("Expected %d fields, got %d", 5+2*4+2*3, len(view))
	}
}

func TestIntegrationResolveDiseaseWithoutMatches(t *testing.T) {
	ts := httptest.NewServer(setupTestService(t))
	defer ts.Close()

	var views []map[string]any
	if status := getJSON(t, ts, "/api/one_disease_medical_drug?disease_name="+url.QueryEscape("糖尿病"), &views); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	// Empty treatment list and an unknown drug code
	if len(views) != 1 || len(views[0]) != 5 {
		t.Errorf("Expected only the base fields, got %v", views)
	}
}

func TestIntegrationErrors(t *testing.T) {
	ts := httptest.NewServer(setupTestService(t))
	defer ts.Close()

	tests := []struct {
		path     string
		expected int
	}{
		{"/api/one_disease_medical_drug?disease_name="+url.QueryEscape("不存在"), http.StatusNotFound},
		{"/api/one_disease_medical_drug", http.StatusBadRequest},
		{"/api/some_drugs", http.StatusBadRequest},
		{"/api/some_medicals?item_code=" + url.QueryEscape(" , "), http.StatusBadRequest},
		{"/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body handlers.ErrorResponse
			status := getJSON(t, ts, tt.path, &body)
			if status != tt.expected {
				t.Fatalf("Expected %d, got %d", tt.expected, status)
			}
			if body.Code != tt.expected || body.Message == "" {
				t.Errorf("Unexpected error body %+v", body)
			}
		})
	}
}

func TestIntegrationHealth(t *testing.T) {
	ts := httptest.NewServer(setupTestService(t))
	defer ts.Close()

	var body handlers.HealthResponse
	if status := getJSON(t, ts, "/health", &body); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body.Status != health.StatusHealthy {
		t.Errorf("Expected healthy without registry, got %s (%v)", body.Status, body.Data)
	}
}
