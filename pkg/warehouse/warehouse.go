// Package warehouse persists per-window feature rows to an analytical table.
package warehouse

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
)

// WriteDisposition controls what happens to existing rows when a run starts.
type WriteDisposition string

const (
	// WriteTruncate removes every existing row before the run writes.
	WriteTruncate WriteDisposition = "truncate"
	// WriteAppend keeps existing rows.
	WriteAppend WriteDisposition = "append"
)

// ParseWriteDisposition validates a disposition name.
func ParseWriteDisposition(s string) (WriteDisposition, error) {
	switch WriteDisposition(s) {
	case WriteTruncate, WriteAppend:
		return WriteDisposition(s), nil
	case "":
		return WriteTruncate, nil
	}
	return "", fmt.Errorf("unknown write disposition %q (want truncate or append)", s)
}

// Row is one feature record with its bookkeeping columns.
type Row struct {
	RunID      string
	SourcePath string
	Record     features.Record
}

// RowSink receives feature rows. Implementations must be safe for
// concurrent Append calls.
type RowSink interface {
	// Prepare creates the table if needed and applies the disposition.
	Prepare(ctx context.Context, disposition WriteDisposition) error
	// Append writes rows atomically.
	Append(ctx context.Context, rows []Row) error
	Close() error
}
