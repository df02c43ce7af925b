package domain

// DateLayout is the canonical serialization of expense dates.
const DateLayout = "2006-01-02"

// Expense is the canonical record every pipeline stage converges on.
// Date is kept as a YYYY-MM-DD string; the validator guarantees it resolves
// to a real calendar date before a record reaches storage.
type Expense struct {
	ID          string  `json:"id,omitempty" firestore:"-"`
	Date        string  `json:"date" firestore:"date"`
	Category    string  `json:"category" firestore:"category"`
	Description string  `json:"description" firestore:"description"`
	Amount      float64 `json:"amount" firestore:"amount"`

	// Attached by the store at write time; absent from preview output.
	SourceFile string `json:"source_file,omitempty" firestore:"source_file"`
	ImportedAt string `json:"imported_at,omitempty" firestore:"imported_at"`
}

// CategoryStats aggregates one category inside a year partition.
type CategoryStats struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// YearStats is the per-year aggregation exposed by every backend.
// TotalAmount is the signed arithmetic sum, so refunds subtract.
type YearStats struct {
	Year        string                   `json:"year"`
	TotalCount  int                      `json:"total_count"`
	TotalAmount float64                  `json:"total_amount"`
	PerCategory map[string]CategoryStats `json:"per_category"`
}

// SearchFilter holds the optional expense search criteria. Zero-valued
// string fields and nil amount bounds impose no constraint; everything
// provided is ANDed. Date and amount ranges are inclusive on both ends.
type SearchFilter struct {
	Year      string
	Category  string
	DateFrom  string
	DateTo    string
	MinAmount *float64
	MaxAmount *float64
}
