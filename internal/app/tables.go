package app

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/output"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdictstore"
)

// recordTable renders records one row per window. Vector features are
// summarised by length in tables; JSON and YAML carry them in full.
type recordTable struct {
	records   []features.Record
	precision int
}

func (t recordTable) MarshalJSON() ([]byte, error) {
	if t.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.records)
}

func (t recordTable) Header() []string {
	h := []string{"window"}
	h = append(h, features.ScalarNames...)
	for _, name := range features.VectorNames {
		h = append(h, name+"_len")
	}
	return append(h, "label")
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, len(t.records))
	for i := range t.records {
		rec := &t.records[i]
		row := []string{strconv.Itoa(rec.Window)}
		scalars := rec.Scalars()
		for _, name := range features.ScalarNames {
			row = append(row, output.FormatValue(scalars[name], t.precision))
		}
		vectors := rec.Vectors()
		for _, name := range features.VectorNames {
			row = append(row, strconv.Itoa(len(vectors[name])))
		}
		label := ""
		if rec.Label != nil {
			label = *rec.Label
		}
		rows[i] = append(row, label)
	}
	return rows
}

type verdictTable []verdictstore.Document

func (t verdictTable) Header() []string {
	return []string{"key", "prediction", "spoof_count", "total_windows", "updated_at"}
}

func (t verdictTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, d := range t {
		rows[i] = []string{
			d.Key,
			string(d.Verdict.Prediction),
			strconv.Itoa(d.Verdict.SpoofCount),
			strconv.Itoa(d.Verdict.TotalWindows),
			d.UpdatedAt.Format(time.RFC3339),
		}
	}
	return rows
}
