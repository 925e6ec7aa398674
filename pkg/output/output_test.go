package output

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name     string    `json:"name"`
	Score    float64   `json:"score"`
	Optional *float64  `json:"optional"`
	Values   []float64 `json:"values"`
	Hidden   string    `json:"-"`
	Note     string    `json:"note,omitempty"`
}

type rows struct{}

func (rows) Header() []string  { return []string{"id", "label"} }
func (rows) Rows() [][]string { return [][]string{{"a", "spoof"}, {"b", "bonafide"}} }

func TestJSONSanitizesNonFinite(t *testing.T) {
	out, err := (&JSONFormatter{}).Format(sample{Name: "x", Score: math.Inf(1), Values: []float64{1, math.NaN()}}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","score":null,"optional":null,"values":[1,null]}`, string(out))
}

func TestYAMLUsesJSONNames(t *testing.T) {
	out, err := (&YAMLFormatter{}).Format(sample{Name: "x", Score: 0.5, Hidden: "secret"}, true)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "name: x")
	assert.Contains(t, s, "score: 0.5")
	assert.NotContains(t, s, "secret")
}

func TestCSVTabular(t *testing.T) {
	out, err := (&CSVFormatter{}).Format(rows{}, false)
	require.NoError(t, err)
	assert.Equal(t, "id,label\na,spoof\nb,bonafide\n", string(out))
}

func TestTableFlattensNested(t *testing.T) {
	data := map[string]any{
		"summary": map[string]any{"rows": 6, "ratio": 0.123456789},
		"values":  []float64{1.5, 2},
	}
	out, err := (&TableFormatter{Precision: 3}).Format(data, false)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.Contains(t, lines[1], "summary.ratio")
	assert.Contains(t, lines[1], "0.123")
	assert.Contains(t, lines[2], "summary.rows")
	assert.Contains(t, lines[3], "[1.500 2.000]")
}

func TestSanitizeKeepsTimes(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out, err := (&JSONFormatter{}).Format(map[string]any{"at": ts, "inf": math.Inf(-1)}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"2026-01-02T03:04:05Z","inf":null}`, string(out))
}

func TestNewFormatter(t *testing.T) {
	assert.IsType(t, &JSONFormatter{}, NewFormatter("", 3))
	assert.IsType(t, &YAMLFormatter{}, NewFormatter("YAML", 3))
	assert.IsType(t, &CSVFormatter{}, NewFormatter("csv", 3))
	assert.IsType(t, &TableFormatter{}, NewFormatter("table", 3))
}

func TestFormatValue(t *testing.T) {
	f := 0.25
	assert.Equal(t, "0.25", FormatValue(&f, 0))
	assert.Equal(t, "0.250", FormatValue(f, 3))
	assert.Equal(t, "", FormatValue((*float64)(nil), 3))
	assert.Equal(t, "", FormatValue(nil, 3))
}
