package batchworker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeLeaseStore is an in-memory LeaseStore exercising the exact
// TryAcquire/Renew/Release semantics described in §4.1.
type fakeLeaseStore struct {
	mu     sync.Mutex
	leases map[string]LeaseInfo
}

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{leases: make(map[string]LeaseInfo)}
}

func (f *fakeLeaseStore) TryAcquire(ctx context.Context, workerID, instanceID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	existing, ok := f.leases[workerID]
	if ok && existing.ExpiresAt.After(now) {
		return false, nil
	}
	f.leases[workerID] = LeaseInfo{WorkerID: workerID, InstanceID: instanceID, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	return true, nil
}

func (f *fakeLeaseStore) Renew(ctx context.Context, workerID, instanceID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.leases[workerID]
	if !ok || existing.InstanceID != instanceID {
		return false, nil
	}
	existing.ExpiresAt = time.Now().Add(ttl)
	f.leases[workerID] = existing
	return true, nil
}

func (f *fakeLeaseStore) Release(ctx context.Context, workerID, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.leases[workerID]
	if !ok || existing.InstanceID != instanceID {
		return nil
	}
	delete(f.leases, workerID)
	return nil
}

func (f *fakeLeaseStore) IsExpiredOrUnheld(ctx context.Context, workerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.leases[workerID]
	if !ok {
		return true, nil
	}
	return !existing.ExpiresAt.After(time.Now()), nil
}

func (f *fakeLeaseStore) Get(ctx context.Context, workerID string) (*LeaseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.leases[workerID]
	if !ok {
		return nil, nil
	}
	cp := existing
	return &cp, nil
}

// fakeProgressStore is an in-memory ProgressStore.
type fakeProgressStore struct {
	mu      sync.Mutex
	records map[string]FileProgress
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{records: make(map[string]FileProgress)}
}

func (f *fakeProgressStore) SetStart(ctx context.Context, workerID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.records[fileID]
	if ok && existing.Status != StatusStarted {
		return nil
	}
	f.records[fileID] = FileProgress{FileID: fileID, WorkerID: workerID, Status: StatusStarted, StartedAt: time.Now()}
	return nil
}

func (f *fakeProgressStore) UpsertProgress(ctx context.Context, fileID string, page int, rows int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.records[fileID]
	existing.FileID = fileID
	existing.Status = StatusInProgress
	existing.LastPage = page
	existing.CumulativeRows = rows
	f.records[fileID] = existing
	return nil
}

func (f *fakeProgressStore) SetCompleted(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.records[fileID]
	existing.Status = StatusCompleted
	now := time.Now()
	existing.CompletedAt = &now
	f.records[fileID] = existing
	return nil
}

func (f *fakeProgressStore) Get(ctx context.Context, fileID string) (*FileProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.records[fileID]
	if !ok {
		return nil, nil
	}
	cp := existing
	return &cp, nil
}

func (f *fakeProgressStore) ListByWorker(ctx context.Context, workerID string) ([]FileProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FileProgress
	for _, r := range f.records {
		if r.WorkerID == workerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeProgressStore) GetMinOutstandingPage(ctx context.Context, workerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	min := -1
	for _, r := range f.records {
		if r.WorkerID != workerID || r.Status == StatusCompleted {
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

// fakePageReader serves pages from a preloaded set of rows and counts reads.
type fakePageReader struct {
	mu       sync.Mutex
	rows     []Row
	pageSize int
	reads    int
}

func (f *fakePageReader) ReadPage(ctx context.Context, p int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	start := p * f.pageSize
	if start >= len(f.rows) {
		return nil, nil
	}
	end := start + f.pageSize
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return Page(f.rows[start:end]), nil
}

func (f *fakePageReader) GetTotalRowCount(ctx context.Context) (int64, error) {
	return int64(len(f.rows)), nil
}

// fakeOutputWriter is an in-memory OutputWriter for one file, honoring the
// same marker-check idempotence rule as fsoutput.Writer.
type fakeOutputWriter struct {
	mu    sync.Mutex
	lines []string
	page  int
	rows  int64
	valid bool
}

func (w *fakeOutputWriter) AppendPage(ctx context.Context, page int, rows int64, lines []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.valid && w.page >= page {
		return nil
	}
	w.lines = append(w.lines, lines...)
	w.page = page
	w.rows = rows
	w.valid = true
	return nil
}

func (w *fakeOutputWriter) RemoveFooter(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.valid = false
	return nil
}

func (w *fakeOutputWriter) ReadFooter(ctx context.Context) (int, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.valid {
		return 0, 0, nil
	}
	return w.page, w.rows, nil
}

// fakeWriterFactory hands out one shared fakeOutputWriter per fileID so
// repeated NewWriter calls across pages observe the same underlying file.
type fakeWriterFactory struct {
	mu      sync.Mutex
	writers map[string]*fakeOutputWriter
}

func newFakeWriterFactory() *fakeWriterFactory {
	return &fakeWriterFactory{writers: make(map[string]*fakeOutputWriter)}
}

func (f *fakeWriterFactory) factory() OutputWriterFactory {
	return func(fileID, fileName string) (OutputWriter, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w, ok := f.writers[fileID]
		if !ok {
			w = &fakeOutputWriter{}
			f.writers[fileID] = w
		}
		return w, nil
	}
}

func (f *fakeWriterFactory) writerFor(fileID string) *fakeOutputWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[fileID]
}

// fakeEventPublisher records every PublishCompleted call.
type fakeEventPublisher struct {
	mu     sync.Mutex
	events []CompletionEvent
	err    error
}

func (p *fakeEventPublisher) PublishCompleted(ctx context.Context, workerID, fileID, eventType string, totalRows int64, completedAt time.Time) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, CompletionEvent{
		WorkerID:      workerID,
		FileID:        fileID,
		EventType:     eventType,
		CompletedAt:   completedAt,
		TotalRows:     totalRows,
		CorrelationID: CorrelationID(workerID, fileID, completedAt.UnixNano()),
	})
	return nil
}

func testConfig(files []FileConfig, pageSize int) Config {
	return Config{
		WorkerID: "LoanWorker",
		SQL:      SQLConfig{PageSize: pageSize},
		Files:    files,
		Bus:      BusConfig{EventType: "FileCompleted"},
		Policies: Policies{
			LeaseHeartbeatInterval:  time.Hour,
			LeaseTTL:                time.Hour,
			TakeoverPollingInterval: time.Millisecond,
			MaxRetries:              0,
			InitialBackoff:          time.Millisecond,
			BackoffMultiplier:       2.0,
		},
	}
}

func buildTestOrchestrator(t *testing.T, rows []Row, pageSize int, files []FileConfig) (*Orchestrator, *fakeProgressStore, *fakeWriterFactory, *fakeEventPublisher, *fakePageReader) {
	t.Helper()
	cfg := testConfig(files, pageSize)

	lease := newFakeLeaseStore()
	progress := newFakeProgressStore()
	reader := &fakePageReader{rows: rows, pageSize: pageSize}
	registry := NewTranslatorRegistry()
	for _, f := range files {
		registry.RegisterFunc(f.TranslatorID, func(r Row) (string, error) {
			return fmt.Sprint(r["id"]), nil
		})
	}
	publisher := &fakeEventPublisher{}
	trigger := NewProgressTriggerGuard(progress)
	writers := newFakeWriterFactory()

	orch := NewOrchestrator(cfg, "inst-1", lease, progress, reader, registry, publisher, trigger, writers.factory())
	if _, err := lease.TryAcquire(context.Background(), cfg.WorkerID, "inst-1", time.Hour); err != nil {
		t.Fatalf("setup acquire: %v", err)
	}
	return orch, progress, writers, publisher, reader
}

func makeRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{"id": i}
	}
	return rows
}

// TestSharedPage_FanOutWritesAllFiles covers the end state of S2: three
// files, pageSize 3, five rows. After the run every file has 5 lines and
// marker "1,5", and the reader is read exactly twice. The state after page 0
// is not inspected.
func TestSharedPage_FanOutWritesAllFiles(t *testing.T) {
	files := []FileConfig{
		{FileID: "A", TranslatorID: "t"},
		{FileID: "B", TranslatorID: "t"},
		{FileID: "C", TranslatorID: "t"},
	}
	orch, _, writers, _, reader := buildTestOrchestrator(t, makeRows(5), 3, files)

	var lost atomic.Bool
	if err := orch.extract(context.Background(), &lost); err != nil {
		t.Fatalf("extract: %v", err)
	}

	for _, fileID := range []string{"A", "B", "C"} {
		w := writers.writerFor(fileID)
		if w == nil {
			t.Fatalf("no writer recorded for %s", fileID)
		}
		if len(w.lines) != 5 {
			t.Fatalf("file %s: expected 5 lines, got %d", fileID, len(w.lines))
		}
		if w.page != 1 || w.rows != 5 {
			t.Fatalf("file %s: expected marker (1,5), got (%d,%d)", fileID, w.page, w.rows)
		}
	}
	if reader.reads != 2 {
		t.Fatalf("expected exactly 2 page reads, got %d", reader.reads)
	}
}

// TestFinalize_StrictOrderPerFile covers the RemoveFooter -> SetCompleted ->
// PublishCompleted ordering invariant (§4.8 step 4) by checking the
// observable end state each step leaves behind.
func TestFinalize_StrictOrderPerFile(t *testing.T) {
	files := []FileConfig{{FileID: "A", TranslatorID: "t"}}
	orch, progress, writers, publisher, _ := buildTestOrchestrator(t, makeRows(2), 2, files)

	ctx := context.Background()
	if err := orch.extract(ctx, new(atomic.Bool)); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if err := orch.finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	w := writers.writerFor("A")
	page, rows, err := w.ReadFooter(ctx)
	if err != nil {
		t.Fatalf("ReadFooter: %v", err)
	}
	if page != 0 || rows != 0 {
		t.Fatalf("expected footer removed, got (%d,%d)", page, rows)
	}

	fp, err := progress.Get(ctx, "A")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fp.Status != StatusCompleted {
		t.Fatalf("expected status Completed, got %v", fp.Status)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(publisher.events))
	}
	if publisher.events[0].FileID != "A" {
		t.Fatalf("unexpected event: %+v", publisher.events[0])
	}
}

// TestExtract_ResumesFromMinOutstandingPage covers resume correctness: a
// file already at lastPage=1 (simulating a prior crash after page 1) causes
// extraction to resume at page 1, not page 0, and the file's marker check
// makes re-applying page 1 a no-op for files already past it.
func TestExtract_ResumesFromMinOutstandingPage(t *testing.T) {
	files := []FileConfig{
		{FileID: "A", TranslatorID: "t"},
		{FileID: "B", TranslatorID: "t"},
	}
	orch, progress, writers, _, reader := buildTestOrchestrator(t, makeRows(6), 2, files)
	ctx := context.Background()

	if err := progress.SetStart(ctx, "LoanWorker", "A"); err != nil {
		t.Fatalf("start A: %v", err)
	}
	if err := progress.UpsertProgress(ctx, "A", 1, 4); err != nil {
		t.Fatalf("seed A: %v", err)
	}
	wA := &fakeOutputWriter{lines: []string{"0", "1", "2", "3"}, page: 1, rows: 4, valid: true}
	writers.mu.Lock()
	writers.writers["A"] = wA
	writers.mu.Unlock()

	if err := orch.extract(ctx, new(atomic.Bool)); err != nil {
		t.Fatalf("extract: %v", err)
	}

	if reader.reads != 2 {
		t.Fatalf("expected resume to start at page 1 (2 reads total), got %d", reader.reads)
	}
	wB := writers.writerFor("B")
	if wB.page != 2 || wB.rows != 6 {
		t.Fatalf("file B expected to catch up to (2,6), got (%d,%d)", wB.page, wB.rows)
	}
}

// TestDailyGate_SecondRunSameDayIsSkipped covers S1 and invariant 6: once a
// file's startedAt falls within today (UTC), ShouldProcess returns false.
func TestDailyGate_SecondRunSameDayIsSkipped(t *testing.T) {
	progress := newFakeProgressStore()
	trigger := NewProgressTriggerGuard(progress)
	ctx := context.Background()

	should, err := trigger.ShouldProcess(ctx, "LoanWorker")
	if err != nil {
		t.Fatalf("ShouldProcess: %v", err)
	}
	if !should {
		t.Fatal("expected first ShouldProcess to return true")
	}

	if err := progress.SetStart(ctx, "LoanWorker", "fileA"); err != nil {
		t.Fatalf("SetStart: %v", err)
	}

	should, err = trigger.ShouldProcess(ctx, "LoanWorker")
	if err != nil {
		t.Fatalf("ShouldProcess: %v", err)
	}
	if should {
		t.Fatal("expected ShouldProcess to return false after a start today")
	}
}

func TestMain_ConfirmLeadershipDetectsTakeover(t *testing.T) {
	files := []FileConfig{{FileID: "A", TranslatorID: "t"}}
	orch, _, _, _, _ := buildTestOrchestrator(t, makeRows(2), 2, files)
	ctx := context.Background()

	held, err := orch.confirmLeadership(ctx)
	if err != nil {
		t.Fatalf("confirmLeadership: %v", err)
	}
	if !held {
		t.Fatal("expected this instance to still hold leadership")
	}

	// Simulate another replica taking over.
	if _, err := orch.Lease.TryAcquire(ctx, orch.Config.WorkerID, "inst-2", time.Hour); err != nil {
		t.Fatalf("rival acquire: %v", err)
	}
	if err := orch.Lease.Release(ctx, orch.Config.WorkerID, "inst-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := orch.Lease.TryAcquire(ctx, orch.Config.WorkerID, "inst-2", time.Hour); err != nil {
		t.Fatalf("rival acquire 2: %v", err)
	}

	held, err = orch.confirmLeadership(ctx)
	if err != nil {
		t.Fatalf("confirmLeadership: %v", err)
	}
	if held {
		t.Fatal("expected leadership to no longer be held by inst-1")
	}
}
