package pgreader

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func testConfig() Config {
	return Config{
		ViewName: "loan_export_view",
		OrderBy:  "loan_id",
		Columns:  []string{"loan_id", "borrower_name", "amount"},
		PageSize: 2,
	}
}

func TestOpen_RejectsBadIdentifiers(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cfg := testConfig()
	cfg.ViewName = "loan_export_view; DROP TABLE x"
	if _, err := Open(db, cfg); err == nil {
		t.Fatal("expected error for unsafe view name")
	}
}

func TestOpen_RejectsNonPositivePageSize(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cfg := testConfig()
	cfg.PageSize = 0
	if _, err := Open(db, cfg); err == nil {
		t.Fatal("expected error for zero page size")
	}
}

func TestReadPage_ReturnsRowsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, err := Open(db, testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rows := sqlmock.NewRows([]string{"loan_id", "borrower_name", "amount"}).
		AddRow("L1", "Alice", 1000).
		AddRow("L2", "Bob", 2000)
	mock.ExpectQuery("SELECT loan_id, borrower_name, amount FROM loan_export_view ORDER BY loan_id OFFSET \\$1 LIMIT \\$2").
		WithArgs(0, 2).
		WillReturnRows(rows)

	page, err := r.ReadPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	if page[0]["loan_id"] != "L1" {
		t.Fatalf("expected first row loan_id L1, got %v", page[0]["loan_id"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReadPage_EmptyPageSignalsEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, err := Open(db, testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rows := sqlmock.NewRows([]string{"loan_id", "borrower_name", "amount"})
	mock.ExpectQuery("SELECT loan_id, borrower_name, amount FROM loan_export_view ORDER BY loan_id OFFSET \\$1 LIMIT \\$2").
		WithArgs(4, 2).
		WillReturnRows(rows)

	page, err := r.ReadPage(context.Background(), 2)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page, got %d rows", len(page))
	}
}

func TestGetTotalRowCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, err := Open(db, testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM loan_export_view").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := r.GetTotalRowCount(context.Background())
	if err != nil {
		t.Fatalf("GetTotalRowCount: %v", err)
	}
	if count != 42 {
		t.Fatalf("expected 42, got %d", count)
	}
}
