package kv

import (
	"context"
	"encoding/csv"
	"github.com/ValentinKolb/kvgate/lib/admission"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/lib/store/memstore"
	"os"
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) kvservice.IKeyValue {
	t.Helper()
	st := memstore.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	return kvservice.New(admission.NewBoundedConcurrency(2), st, kvservice.Options{})
}

func TestGenerateLoadStoreOnly(t *testing.T) {
	kv := newTestService(t)
	config := loadConfig{Workers: 8, Requests: 200, Keys: 10, RetrieveRatio: 0, ValueSize: 4, KeyPrefix: "t"}

	report := generateLoad(context.Background(), kv, config)

	ok := report.count(opStore, kvservice.CodeOK)
	conflicts := report.count(opStore, kvservice.CodeAlreadyExists)
	if ok < 1 || ok > int64(config.Keys) {
		t.Errorf("expected between 1 and %d successful stores, got %d", config.Keys, ok)
	}
	if ok+conflicts != int64(config.Requests) {
		t.Errorf("expected %d outcomes, got %d ok and %d conflicts", config.Requests, ok, conflicts)
	}
	if report.total(opStore) != int64(config.Requests) {
		t.Errorf("expected %d timed stores, got %d", config.Requests, report.total(opStore))
	}
	if report.total(opRetrieve) != 0 {
		t.Errorf("expected no retrieves, got %d", report.total(opRetrieve))
	}
}

func TestGenerateLoadRetrieveMissing(t *testing.T) {
	kv := newTestService(t)
	config := loadConfig{Workers: 4, Requests: 50, Keys: 5, RetrieveRatio: 1, KeyPrefix: "missing"}

	report := generateLoad(context.Background(), kv, config)

	if n := report.count(opRetrieve, kvservice.CodeNotFound); n != int64(config.Requests) {
		t.Errorf("expected %d not_found outcomes, got %d", config.Requests, n)
	}
}

func TestGenerateLoadCanceled(t *testing.T) {
	kv := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := generateLoad(ctx, kv, loadConfig{Workers: 4, Requests: 100, Keys: 5, KeyPrefix: "c"})
	if total := report.total(opStore) + report.total(opRetrieve); total != 0 {
		t.Errorf("expected no requests after cancellation, got %d", total)
	}
}

func TestLoadReportCSV(t *testing.T) {
	kv := newTestService(t)
	report := generateLoad(context.Background(), kv, loadConfig{Workers: 2, Requests: 20, Keys: 2, RetrieveRatio: 0.5, KeyPrefix: "csv"})

	path := filepath.Join(t.TempDir(), "load.csv")
	if err := report.writeCSV(path); err != nil {
		t.Fatalf("writeCSV failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("expected a header and at least one row, got %d rows", len(rows))
	}
	if rows[0][0] != "Op" || len(rows[0]) != 9 {
		t.Errorf("unexpected header: %v", rows[0])
	}
}

func TestLoadConfigValidate(t *testing.T) {
	valid := loadConfig{Workers: 1, Requests: 1, Keys: 1, RetrieveRatio: 0.5}
	if err := valid.validate(); err != nil {
		t.Errorf("expected a valid config, got %v", err)
	}

	invalid := []loadConfig{
		{Workers: 0, Requests: 1, Keys: 1},
		{Workers: 1, Requests: 0, Keys: 1},
		{Workers: 1, Requests: 1, Keys: 0},
		{Workers: 1, Requests: 1, Keys: 1, RetrieveRatio: 1.5},
		{Workers: 1, Requests: 1, Keys: 1, ValueSize: -1},
	}
	for _, c := range invalid {
		if err := c.validate(); err == nil {
			t.Errorf("expected an error for %+v", c)
		}
	}
}
