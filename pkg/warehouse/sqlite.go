package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	_ "modernc.org/sqlite"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite is a RowSink backed by a SQLite table. Scalar features are REAL
// columns (NULL when absent); repeated features are JSON arrays.
type SQLite struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens dsn and targets table. Use ":memory:" for a throwaway
// database.
func OpenSQLite(dsn, table string) (*SQLite, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLite{db: db, table: table}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) columns() []string {
	cols := []string{"run_id", "source_path", "window_index"}
	cols = append(cols, features.ScalarNames...)
	cols = append(cols, features.VectorNames...)
	return append(cols, "label")
}

// Prepare creates the table and applies the write disposition.
func (s *SQLite) Prepare(ctx context.Context, disposition WriteDisposition) error {
	var defs []string
	defs = append(defs, "run_id TEXT NOT NULL", "source_path TEXT NOT NULL", "window_index INTEGER NOT NULL")
	for _, name := range features.ScalarNames {
		defs = append(defs, name+" REAL")
	}
	for _, name := range features.VectorNames {
		defs = append(defs, name+" TEXT NOT NULL")
	}
	defs = append(defs, "label TEXT")

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.table, strings.Join(defs, ",\n\t"))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if disposition == WriteTruncate {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table); err != nil {
			return fmt.Errorf("truncate table: %w", err)
		}
	}
	return nil
}

// Append inserts rows in one transaction.
func (s *SQLite) Append(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	cols := s.columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table, strings.Join(cols, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer prepared.Close()

	for _, row := range rows {
		args, err := rowArgs(row)
		if err != nil {
			return err
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %s#%d: %w", row.SourcePath, row.Record.Window, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rowArgs(row Row) ([]any, error) {
	rec := row.Record
	args := []any{row.RunID, row.SourcePath, rec.Window}

	scalars := rec.Scalars()
	for _, name := range features.ScalarNames {
		if v := scalars[name]; v != nil {
			args = append(args, *v)
		} else {
			args = append(args, nil)
		}
	}

	vectors := rec.Vectors()
	for _, name := range features.VectorNames {
		v := vectors[name]
		if v == nil {
			v = []float64{}
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s for %s#%d: %w", name, row.SourcePath, rec.Window, err)
		}
		args = append(args, string(encoded))
	}

	if rec.Label != nil {
		args = append(args, *rec.Label)
	} else {
		args = append(args, nil)
	}
	return args, nil
}

// Rows reads back the rows of a run ordered by source path and window.
func (s *SQLite) Rows(ctx context.Context, runID string) ([]Row, error) {
	cols := s.columns()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE run_id = ? ORDER BY source_path, window_index",
		strings.Join(cols, ", "), s.table)

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row     Row
			scalars = make([]sql.NullFloat64, len(features.ScalarNames))
			vectors = make([]string, len(features.VectorNames))
			label   sql.NullString
		)

		dest := []any{&row.RunID, &row.SourcePath, &row.Record.Window}
		for i := range scalars {
			dest = append(dest, &scalars[i])
		}
		for i := range vectors {
			dest = append(dest, &vectors[i])
		}
		dest = append(dest, &label)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		ptrs := []**float64{
			&row.Record.ChromaSTFT, &row.Record.RMSE, &row.Record.SpectralCentroid,
			&row.Record.SpectralBandwidth, &row.Record.Rolloff, &row.Record.ZeroCrossingRate,
			&row.Record.SNR, &row.Record.SpectralFlatness,
		}
		for i, ns := range scalars {
			if ns.Valid {
				v := ns.Float64
				*ptrs[i] = &v
			}
		}

		vecs := []*[]float64{
			&row.Record.MFCC, &row.Record.MFCCDelta, &row.Record.MFCCDelta2, &row.Record.SpectralContrast,
		}
		for i, raw := range vectors {
			if err := json.Unmarshal([]byte(raw), vecs[i]); err != nil {
				return nil, fmt.Errorf("decode %s: %w", features.VectorNames[i], err)
			}
		}

		if label.Valid {
			l := label.String
			row.Record.Label = &l
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count returns the number of rows in the table.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

var _ RowSink = (*SQLite)(nil)
