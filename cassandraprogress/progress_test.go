package cassandraprogress

import (
	"context"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/batchworker"
)

// fakeRow models one stored row keyed by file_id, enough to exercise
// SetStart/UpsertProgress/SetCompleted/Get/ListByWorker/
// GetMinOutstandingPage without a live Cassandra cluster.
type fakeRow struct {
	fileID, workerID       string
	status                 int
	lastPage               int
	cumulativeRows         int64
	startedAt, completedAt time.Time
}

type fakeSession struct {
	rows map[string]*fakeRow
}

func newFakeSession() *fakeSession { return &fakeSession{rows: make(map[string]*fakeRow)} }

func (f *fakeSession) Query(stmt string, values ...any) queryAPI {
	return &fakeQuery{session: f, stmt: stmt, values: values}
}

type fakeQuery struct {
	session *fakeSession
	stmt    string
	values  []any
}

func (q *fakeQuery) WithContext(ctx context.Context) queryAPI { return q }

func (q *fakeQuery) Exec() error {
	switch {
	case contains(q.stmt, "INSERT INTO"):
		fileID := q.values[0].(string)
		q.session.rows[fileID] = &fakeRow{
			fileID:    fileID,
			workerID:  q.values[1].(string),
			status:    q.values[2].(int),
			lastPage:  q.values[3].(int),
			startedAt: q.values[5].(time.Time),
		}
	case contains(q.stmt, "SET status = ?, last_page"):
		fileID := q.values[3].(string)
		r := q.session.rows[fileID]
		r.status = q.values[0].(int)
		r.lastPage = q.values[1].(int)
		r.cumulativeRows = q.values[2].(int64)
	case contains(q.stmt, "SET status = ?, completed_at"):
		fileID := q.values[2].(string)
		r := q.session.rows[fileID]
		r.status = q.values[0].(int)
		r.completedAt = q.values[1].(time.Time)
	}
	return nil
}

func (q *fakeQuery) Scan(dest ...any) error {
	fileID := q.values[0].(string)
	r, ok := q.session.rows[fileID]
	if !ok {
		return errNotFoundSentinel
	}
	scanRowInto(r, dest)
	return nil
}

func (q *fakeQuery) Iter() iterAPI {
	var matched []*fakeRow
	workerID := q.values[0].(string)
	for _, r := range q.session.rows {
		if r.workerID == workerID {
			matched = append(matched, r)
		}
	}
	return &fakeIter{rows: matched}
}

type fakeIter struct {
	rows []*fakeRow
	i    int
}

func (it *fakeIter) Scan(dest ...any) bool {
	if it.i >= len(it.rows) {
		return false
	}
	scanRowInto(it.rows[it.i], dest)
	it.i++
	return true
}

func (it *fakeIter) Close() error { return nil }

func scanRowInto(r *fakeRow, dest []any) {
	*dest[0].(*string) = r.fileID
	*dest[1].(*string) = r.workerID
	*dest[2].(*int) = r.status
	*dest[3].(*int) = r.lastPage
	*dest[4].(*int64) = r.cumulativeRows
	*dest[5].(*time.Time) = r.startedAt
	*dest[6].(*time.Time) = r.completedAt
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

// errNotFoundSentinel is the driver's own not-found error, which Store.Get
// translates into a nil record.
var errNotFoundSentinel = gocql.ErrNotFound

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func newTestStore() *Store {
	return &Store{session: newFakeSession(), table: "batchworker.file_progress", now: time.Now}
}

func TestSetStart_DoesNotRegressCompleted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if err := s.SetStart(ctx, "LoanWorker", "fileA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.UpsertProgress(ctx, "fileA", 3, 300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetCompleted(ctx, "fileA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.SetStart(ctx, "LoanWorker", "fileA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "fileA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != batchworker.StatusCompleted {
		t.Fatalf("expected status to remain Completed, got %v", got.Status)
	}
}

func TestGetMinOutstandingPage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for _, f := range []string{"A", "B", "C"} {
		if err := s.SetStart(ctx, "LoanWorker", f); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	mustUpsert(t, s, ctx, "A", 4, 400)
	mustUpsert(t, s, ctx, "B", 3, 300)
	mustUpsert(t, s, ctx, "C", 4, 400)

	got, err := s.GetMinOutstandingPage(ctx, "LoanWorker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected min outstanding page 3, got %d", got)
	}

	if err := s.SetCompleted(ctx, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetCompleted(ctx, "B"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetCompleted(ctx, "C"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err = s.GetMinOutstandingPage(ctx, "LoanWorker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0 outstanding pages once all files completed, got %d", got)
	}
}

func mustUpsert(t *testing.T, s *Store, ctx context.Context, fileID string, page int, rows int64) {
	t.Helper()
	if err := s.UpsertProgress(ctx, fileID, page, rows); err != nil {
		t.Fatalf("upsert %s: %v", fileID, err)
	}
}
