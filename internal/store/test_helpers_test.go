package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/crudkit/internal/catalog"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/testutil"
)

var (
	testCatalog = catalog.MustDefault()
	testSpecs   = catalog.ByName(testCatalog)
)

// createTestStore opens a fresh database with the default catalog migrated
// and a deterministic clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(testutil.NewDeterministicClock())}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(context.Background(), testCatalog); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return s
}

// forEachDriver runs fn against a store opened with each sqlite driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, s *Store)) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			fn(t, createTestStore(t, WithDriver(driver)))
		})
	}
}

func spec(t *testing.T, name string) *ir.EntitySpec {
	t.Helper()
	s, ok := testSpecs[name]
	if !ok {
		t.Fatalf("entity %q not in default catalog", name)
	}
	return s
}

func insertProduct(t *testing.T, s *Store, name, sku string, stock int64, price ir.IRValue) Row {
	t.Helper()
	if price == nil {
		price = ir.IRNull{}
	}
	row, err := s.Insert(context.Background(), spec(t, "Product"), ir.IRObject{
		"name":          ir.IRString(name),
		"sku":           ir.IRString(sku),
		"description":   ir.IRNull{},
		"price":         price,
		"stock_level":   ir.IRInt(stock),
		"reorder_level": ir.IRInt(10),
	})
	if err != nil {
		t.Fatalf("insert product %s: %v", sku, err)
	}
	return row
}

func idOf(t *testing.T, row Row) int64 {
	t.Helper()
	id, ok := row[ir.FieldID].(int64)
	if !ok {
		t.Fatalf("row id is %T, want int64", row[ir.FieldID])
	}
	return id
}

func idsOf(t *testing.T, rows []Row) []int64 {
	t.Helper()
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = idOf(t, r)
	}
	return out
}
