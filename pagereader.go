package batchworker

import "context"

// Row is one extracted record, a mapping from column name to a nullable
// value (driver-decoded, so any JSON-marshalable Go value including nil).
type Row map[string]any

// Page is an ordered list of rows. Page index p contains rows
// [p*PageSize, (p+1)*PageSize) in the view's stable order (§3).
type Page []Row

// PageReader performs stable-ordered, offset-based pagination over a
// relational view (§4.3). The configured order must be a total order: ties
// in the sort key are forbidden, or pagination may skip or duplicate rows.
type PageReader interface {
	// ReadPage returns rows [p*PageSize, (p+1)*PageSize) in the view's
	// stable order. An empty result (with no error) signals the view is
	// exhausted.
	ReadPage(ctx context.Context, p int) (Page, error)

	// GetTotalRowCount returns the current row count of the view.
	GetTotalRowCount(ctx context.Context) (int64, error)
}

// TotalPages computes ceil(count / pageSize), the number of pages a reader
// with the given row count and page size would produce.
func TotalPages(count int64, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	pages := count / int64(pageSize)
	if count%int64(pageSize) != 0 {
		pages++
	}
	return int(pages)
}
