package cassandraprogress

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/batchworker"
)

// sessionAPI is the narrow slice of *gocql.Session's query surface Store
// depends on, extracted so tests can substitute a fake session instead of a
// live Cassandra cluster (mirroring the narrow-capability-interface style of
// the teacher's Registry/BlobStore interfaces in repository.go).
type sessionAPI interface {
	Query(stmt string, values ...any) queryAPI
}

type queryAPI interface {
	WithContext(ctx context.Context) queryAPI
	Exec() error
	Scan(dest ...any) error
	Iter() iterAPI
}

type iterAPI interface {
	Scan(dest ...any) bool
	Close() error
}

// gocqlSession adapts *gocql.Session to sessionAPI.
type gocqlSession struct{ s *gocql.Session }

func (g gocqlSession) Query(stmt string, values ...any) queryAPI {
	return gocqlQuery{g.s.Query(stmt, values...)}
}

// gocqlQuery adapts *gocql.Query to queryAPI.
type gocqlQuery struct{ q *gocql.Query }

func (g gocqlQuery) WithContext(ctx context.Context) queryAPI {
	return gocqlQuery{g.q.WithContext(ctx)}
}
func (g gocqlQuery) Exec() error           { return g.q.Exec() }
func (g gocqlQuery) Scan(dest ...any) error { return g.q.Scan(dest...) }
func (g gocqlQuery) Iter() iterAPI          { return g.q.Iter() }

// Store implements batchworker.ProgressStore against Cassandra.
type Store struct {
	session sessionAPI
	table   string
	now     func() time.Time
}

// NewStore builds a Store from an open Connection.
func NewStore(conn *Connection) *Store {
	return &Store{
		session: gocqlSession{conn.Session},
		table:   fmt.Sprintf("%s.%s", conn.Config.Keyspace, conn.Config.Table),
		now:     time.Now,
	}
}

// SetStart implements batchworker.ProgressStore.SetStart.
func (s *Store) SetStart(ctx context.Context, workerID, fileID string) error {
	existing, err := s.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status != batchworker.StatusStarted {
		// Already InProgress or Completed: re-asserting Started would
		// violate the monotonic status invariant (§3).
		return nil
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (file_id, worker_id, status, last_page, cumulative_rows, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		s.table)
	return s.session.Query(stmt, fileID, workerID, int(batchworker.StatusStarted), 0, int64(0), s.now()).WithContext(ctx).Exec()
}

// UpsertProgress implements batchworker.ProgressStore.UpsertProgress.
func (s *Store) UpsertProgress(ctx context.Context, fileID string, page int, rows int64) error {
	stmt := fmt.Sprintf(
		"UPDATE %s SET status = ?, last_page = ?, cumulative_rows = ? WHERE file_id = ?",
		s.table)
	return s.session.Query(stmt, int(batchworker.StatusInProgress), page, rows, fileID).WithContext(ctx).Exec()
}

// SetCompleted implements batchworker.ProgressStore.SetCompleted.
func (s *Store) SetCompleted(ctx context.Context, fileID string) error {
	stmt := fmt.Sprintf(
		"UPDATE %s SET status = ?, completed_at = ? WHERE file_id = ?",
		s.table)
	return s.session.Query(stmt, int(batchworker.StatusCompleted), s.now(), fileID).WithContext(ctx).Exec()
}

// Get implements batchworker.ProgressStore.Get.
func (s *Store) Get(ctx context.Context, fileID string) (*batchworker.FileProgress, error) {
	stmt := fmt.Sprintf(
		"SELECT file_id, worker_id, status, last_page, cumulative_rows, started_at, completed_at FROM %s WHERE file_id = ?",
		s.table)
	var (
		fp          batchworker.FileProgress
		status      int
		completedAt time.Time
	)
	err := s.session.Query(stmt, fileID).WithContext(ctx).Scan(
		&fp.FileID, &fp.WorkerID, &status, &fp.LastPage, &fp.CumulativeRows, &fp.StartedAt, &completedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	fp.Status = batchworker.ProgressStatus(status)
	if !completedAt.IsZero() {
		fp.CompletedAt = &completedAt
	}
	return &fp, nil
}

// ListByWorker implements batchworker.ProgressStore.ListByWorker. The
// worker_id column has no partition-key-level index here (file_id is the
// partition key, matching the one-worker-per-deployment convention this
// store targets), so this issues an ALLOW FILTERING scan — acceptable at
// the scale of "files per worker" this system targets (tens, not millions).
// A secondary index on worker_id is a reasonable follow-up for larger
// fleets.
func (s *Store) ListByWorker(ctx context.Context, workerID string) ([]batchworker.FileProgress, error) {
	stmt := fmt.Sprintf(
		"SELECT file_id, worker_id, status, last_page, cumulative_rows, started_at, completed_at FROM %s WHERE worker_id = ? ALLOW FILTERING",
		s.table)
	iter := s.session.Query(stmt, workerID).WithContext(ctx).Iter()

	var records []batchworker.FileProgress
	var (
		fp          batchworker.FileProgress
		status      int
		completedAt time.Time
	)
	for iter.Scan(&fp.FileID, &fp.WorkerID, &status, &fp.LastPage, &fp.CumulativeRows, &fp.StartedAt, &completedAt) {
		rec := fp
		rec.Status = batchworker.ProgressStatus(status)
		if !completedAt.IsZero() {
			ts := completedAt
			rec.CompletedAt = &ts
		}
		records = append(records, rec)
		completedAt = time.Time{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return records, nil
}

// GetMinOutstandingPage implements batchworker.ProgressStore.GetMinOutstandingPage.
func (s *Store) GetMinOutstandingPage(ctx context.Context, workerID string) (int, error) {
	records, err := s.ListByWorker(ctx, workerID)
	if err != nil {
		return 0, err
	}
	min := -1
	for _, r := range records {
		if r.Status == batchworker.StatusCompleted {
			continue
		}
		if min == -1 || r.LastPage < min {
			min = r.LastPage
		}
	}
	if min == -1 {
		return 0, nil
	}
	return min, nil
}
