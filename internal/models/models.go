package models

// Row is one parsed CSV data row keyed by column name. Cell values carry
// the types the tabular reader inferred: int64, float64, bool, time.Time
// or string; nil for empty cells.
type Row = map[string]any

// Batch holds all rows parsed from one remote archive, in file order.
type Batch struct {
	File    string
	Columns []string
	Rows    []Row
}

// FileRef is one expected monthly archive and its resolved download URL.
type FileRef struct {
	Name string
	URL  string
}
