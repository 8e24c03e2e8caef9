package batchworker

import "context"

// OutputWriter is an append-only file whose final line is a machine-readable
// progress marker ("footer") of the form "{lastPage},{cumulativeRows}"
// (§3, §4.4).
type OutputWriter interface {
	// AppendPage appends lines followed by a new marker line
	// "{page},{rows}\n" in a single write that flushes before returning. If
	// the current marker already indicates markerPage >= page, AppendPage
	// returns without modifying the file (idempotence for retried or
	// duplicate attempts).
	AppendPage(ctx context.Context, page int, rows int64, lines []string) error

	// RemoveFooter truncates the file to exclude its final line. A file
	// containing only a marker truncates to empty; empty files may be
	// removed entirely. This is the act that declares the file "published".
	RemoveFooter(ctx context.Context) error

	// ReadFooter returns the (page, rows) encoded in the file's current
	// marker line, or (0, 0) if the file is missing, empty or unparseable.
	ReadFooter(ctx context.Context) (page int, rows int64, err error)
}
