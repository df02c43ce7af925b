package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/extractor"
	"github.com/ovolkov/expenseflow/internal/jobs"
	"github.com/ovolkov/expenseflow/internal/normalizer"
	"github.com/ovolkov/expenseflow/internal/store"
)

// ErrInvalidParameter indicates a caller-supplied argument failed validation
// before any work was attempted.
var ErrInvalidParameter = errors.New("invalid parameter")

// PreviewRowCount is how many normalized rows a preview returns.
const PreviewRowCount = 10

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// ImportResult summarizes a completed import.
type ImportResult struct {
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// PreviewResult shows how the first rows of a file would be normalized
// without writing anything.
type PreviewResult struct {
	Filename    string           `json:"filename"`
	TotalRows   int              `json:"total_rows"`
	PreviewRows int              `json:"preview_rows"`
	Data        []domain.Expense `json:"data"`
}

// Importer runs the extract → normalize → validate → persist pipeline.
type Importer struct {
	normalizer *normalizer.Normalizer
	store      store.Store
	publisher  jobs.Publisher
	log        zerolog.Logger
}

// New creates an Importer. publisher may be nil, in which case no backup
// jobs are queued.
func New(n *normalizer.Normalizer, s store.Store, publisher jobs.Publisher, log zerolog.Logger) *Importer {
	return &Importer{
		normalizer: n,
		store:      s,
		publisher:  publisher,
		log:        log,
	}
}

// Step represents a single step in the import pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State holds the shared state across all pipeline steps.
type State struct {
	Year     string
	Filename string
	FileData []byte

	Sheet      *extractor.Sheet
	Candidates []domain.Expense
	Accepted   []domain.Expense
	Rejected   int
	Written    int
}

// extractStep decodes the spreadsheet into raw rows.
type extractStep struct{}

func (extractStep) Execute(ctx context.Context, state *State) error {
	sheet, err := extractor.Extract(state.FileData)
	if err != nil {
		return err
	}
	state.Sheet = sheet
	return nil
}

// normalizeStep maps raw rows to expense candidates.
type normalizeStep struct {
	n *normalizer.Normalizer

	// limit > 0 caps how many raw rows are normalized. Used by previews.
	limit int
}

func (s normalizeStep) Execute(ctx context.Context, state *State) error {
	sheet := state.Sheet
	if s.limit > 0 && len(sheet.Rows) > s.limit {
		trimmed := *sheet
		trimmed.Rows = sheet.Rows[:s.limit]
		sheet = &trimmed
	}

	state.Candidates = s.n.Normalize(ctx, sheet, state.Year)
	return nil
}

// validateStep filters candidates that cannot be persisted.
type validateStep struct{}

func (validateStep) Execute(ctx context.Context, state *State) error {
	state.Accepted, state.Rejected = normalizer.Validate(state.Candidates)
	return nil
}

// saveStep writes accepted expenses to the store.
type saveStep struct {
	store store.Store
}

func (s saveStep) Execute(ctx context.Context, state *State) error {
	written, err := s.store.SaveExpenses(ctx, state.Year, state.Accepted, state.Filename)
	if err != nil {
		return err
	}
	state.Written = written
	return nil
}

// backupStep queues the original file for archival. Failures here never
// fail the import.
type backupStep struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

func (s backupStep) Execute(ctx context.Context, state *State) error {
	if s.publisher == nil {
		return nil
	}

	job := &jobs.BackupFileJob{
		Year:     state.Year,
		Filename: state.Filename,
		Data:     state.FileData,
	}
	if err := s.publisher.PublishBackupFile(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("filename", state.Filename).Msg("failed to queue backup job")
	}
	return nil
}

// ImportFile runs the full pipeline for one uploaded spreadsheet and
// persists the result under the given year partition.
func (imp *Importer) ImportFile(ctx context.Context, year, filename string, data []byte) (*ImportResult, error) {
	if err := validateParams(year, data); err != nil {
		return nil, err
	}

	state := &State{Year: year, Filename: filename, FileData: data}

	steps := []Step{
		extractStep{},
		normalizeStep{n: imp.normalizer},
		validateStep{},
		saveStep{store: imp.store},
		backupStep{publisher: imp.publisher, log: imp.log},
	}
	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			return nil, fmt.Errorf("ImportFile: %w", err)
		}
	}

	imp.log.Info().
		Str("filename", filename).
		Str("year", year).
		Int("imported", state.Written).
		Int("skipped", state.Rejected).
		Msg("import complete")

	result := &ImportResult{
		Imported: state.Written,
		Skipped:  state.Rejected,
		Status:   "ok",
	}
	if state.Written == 0 {
		result.Message = "no valid expense rows found in file"
	}
	return result, nil
}

// PreviewFile normalizes the first rows of a spreadsheet without writing
// anything to the store.
func (imp *Importer) PreviewFile(ctx context.Context, year, filename string, data []byte) (*PreviewResult, error) {
	if err := validateParams(year, data); err != nil {
		return nil, err
	}

	state := &State{Year: year, Filename: filename, FileData: data}

	steps := []Step{
		extractStep{},
		normalizeStep{n: imp.normalizer, limit: PreviewRowCount},
		validateStep{},
	}
	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			return nil, fmt.Errorf("PreviewFile: %w", err)
		}
	}

	if state.Accepted == nil {
		state.Accepted = []domain.Expense{}
	}
	return &PreviewResult{
		Filename:    filename,
		TotalRows:   state.Sheet.TotalRows(),
		PreviewRows: len(state.Accepted),
		Data:        state.Accepted,
	}, nil
}

func validateParams(year string, data []byte) error {
	if !yearPattern.MatchString(year) {
		return fmt.Errorf("%w: year must be a four-digit string, got %q", ErrInvalidParameter, year)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidParameter)
	}
	return nil
}
