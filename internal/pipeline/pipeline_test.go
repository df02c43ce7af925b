package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/extractor"
	"github.com/ovolkov/expenseflow/internal/jobs"
	"github.com/ovolkov/expenseflow/internal/logger"
	"github.com/ovolkov/expenseflow/internal/normalizer"
	"github.com/ovolkov/expenseflow/internal/store"
)

// fakeStore records writes so tests can assert on persistence behaviour.
type fakeStore struct {
	saveCalls int
	saved     []domain.Expense
	savedYear string
	saveErr   error
}

func (f *fakeStore) SaveExpenses(ctx context.Context, year string, expenses []domain.Expense, sourceFile string) (int, error) {
	f.saveCalls++
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, expenses...)
	f.savedYear = year
	return len(expenses), nil
}

func (f *fakeStore) ExpensesByYear(ctx context.Context, year string, limit int) ([]domain.Expense, error) {
	return nil, nil
}
func (f *fakeStore) Years(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) YearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	return domain.YearStats{Year: year}, nil
}
func (f *fakeStore) DeleteByYear(ctx context.Context, year string) (int, error) { return 0, nil }
func (f *fakeStore) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.Expense, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakePublisher captures published backup jobs.
type fakePublisher struct {
	published []*jobs.BackupFileJob
	err       error
}

func (f *fakePublisher) PublishBackupFile(ctx context.Context, job *jobs.BackupFileJob) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, job)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func buildWorkbook(t *testing.T, header []string, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestImporter(st store.Store, pub jobs.Publisher) *Importer {
	log := logger.NewWithWriter(&bytes.Buffer{})
	return New(normalizer.New(nil, log), st, pub, log)
}

func TestImportFile(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Spending", "Details", "RM"},
		[][]interface{}{
			{"Jan 5", "Office supplies", "120.50"},
			{"Feb 10", "Taxi", "35"},
		},
	)

	st := &fakeStore{}
	pub := &fakePublisher{}
	imp := newTestImporter(st, pub)

	result, err := imp.ImportFile(context.Background(), "2023", "jan.xlsx", data)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	if result.Imported != 2 || result.Skipped != 0 || result.Status != "ok" {
		t.Errorf("result = %+v, want 2 imported, 0 skipped, status ok", result)
	}
	if st.savedYear != "2023" {
		t.Errorf("saved year = %q, want 2023", st.savedYear)
	}
	if len(st.saved) != 2 {
		t.Fatalf("store received %d records, want 2", len(st.saved))
	}
	first := st.saved[0]
	if first.Date != "2023-01-05" || first.Category != normalizer.DefaultCategory ||
		first.Description != "Office supplies" || first.Amount != 120.50 {
		t.Errorf("first record = %+v", first)
	}

	if len(pub.published) != 1 {
		t.Fatalf("published %d backup jobs, want 1", len(pub.published))
	}
	job := pub.published[0]
	if job.Year != "2023" || job.Filename != "jan.xlsx" || len(job.Data) == 0 {
		t.Errorf("backup job = %+v", job)
	}
}

func TestImportFile_InvalidParams(t *testing.T) {
	st := &fakeStore{}
	imp := newTestImporter(st, nil)

	cases := []struct {
		name string
		year string
		data []byte
	}{
		{"non-numeric year", "20x3", []byte("x")},
		{"short year", "203", []byte("x")},
		{"long year", "20233", []byte("x")},
		{"empty file", "2023", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := imp.ImportFile(context.Background(), tc.year, "f.xlsx", tc.data)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("err = %v, want ErrInvalidParameter", err)
			}
		})
	}
	if st.saveCalls != 0 {
		t.Errorf("store was called %d times for invalid params", st.saveCalls)
	}
}

// badDateOracle maps every sheet to one valid and one unparseable candidate.
type badDateOracle struct{}

func (badDateOracle) MapRows(ctx context.Context, columns []string, rows []extractor.RawRow, year string) ([]domain.Expense, error) {
	return []domain.Expense{
		{Date: "2023-01-05", Category: "Office", Description: "ok", Amount: 10},
		{Date: "not-a-date", Category: "X", Description: "Y", Amount: 10},
	}, nil
}

func TestImportFile_CountsRejectedCandidates(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Amount"},
		[][]interface{}{
			{"2023-01-05", "10"},
			{"garbage", "10"},
		},
	)

	st := &fakeStore{}
	log := logger.NewWithWriter(&bytes.Buffer{})
	imp := New(normalizer.New(badDateOracle{}, log), st, nil, log)

	result, err := imp.ImportFile(context.Background(), "2023", "f.xlsx", data)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want 1 imported and 1 skipped", result)
	}
	if len(st.saved) != 1 || st.saved[0].Date != "2023-01-05" {
		t.Errorf("persisted records = %+v, want only the valid candidate", st.saved)
	}
}

func TestImportFile_StoreError(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Amount"},
		[][]interface{}{{"2023-04-01", "10"}},
	)

	st := &fakeStore{saveErr: fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)}
	imp := newTestImporter(st, nil)

	_, err := imp.ImportFile(context.Background(), "2023", "f.xlsx", data)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want store.ErrUnavailable", err)
	}
}

func TestImportFile_BackupFailureDoesNotFailImport(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Amount"},
		[][]interface{}{{"2023-04-01", "10"}},
	)

	st := &fakeStore{}
	pub := &fakePublisher{err: errors.New("queue is closed")}
	imp := newTestImporter(st, pub)

	result, err := imp.ImportFile(context.Background(), "2023", "f.xlsx", data)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}
}

func TestPreviewFile(t *testing.T) {
	rows := make([][]interface{}, 25)
	for i := range rows {
		rows[i] = []interface{}{"2023-03-01", fmt.Sprintf("item %d", i), "9.99"}
	}
	data := buildWorkbook(t, []string{"Date", "Description", "Amount"}, rows)

	st := &fakeStore{}
	imp := newTestImporter(st, nil)

	result, err := imp.PreviewFile(context.Background(), "2023", "big.xlsx", data)
	if err != nil {
		t.Fatalf("PreviewFile failed: %v", err)
	}

	if result.TotalRows != 25 {
		t.Errorf("TotalRows = %d, want 25", result.TotalRows)
	}
	if result.PreviewRows != PreviewRowCount || len(result.Data) != PreviewRowCount {
		t.Errorf("PreviewRows = %d (len %d), want %d", result.PreviewRows, len(result.Data), PreviewRowCount)
	}
	if st.saveCalls != 0 {
		t.Errorf("preview wrote to the store %d times", st.saveCalls)
	}
}

func TestPreviewFile_FewerRowsThanLimit(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Amount"},
		[][]interface{}{
			{"2023-01-01", "1"},
			{"2023-01-02", "2"},
		},
	)

	imp := newTestImporter(&fakeStore{}, nil)

	result, err := imp.PreviewFile(context.Background(), "2023", "small.xlsx", data)
	if err != nil {
		t.Fatalf("PreviewFile failed: %v", err)
	}
	if result.TotalRows != 2 || result.PreviewRows != 2 {
		t.Errorf("result = %+v, want 2 total and 2 preview rows", result)
	}
}
