package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/logger"
	"github.com/ovolkov/expenseflow/internal/normalizer"
	"github.com/ovolkov/expenseflow/internal/pipeline"
	"github.com/ovolkov/expenseflow/internal/store"
)

type fakeStore struct {
	saveCalls int
	expenses  []domain.Expense
	years     []string
	unavail   bool
}

func (f *fakeStore) SaveExpenses(ctx context.Context, year string, expenses []domain.Expense, sourceFile string) (int, error) {
	if f.unavail {
		return 0, fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)
	}
	f.saveCalls++
	f.expenses = append(f.expenses, expenses...)
	return len(expenses), nil
}

func (f *fakeStore) ExpensesByYear(ctx context.Context, year string, limit int) ([]domain.Expense, error) {
	if f.unavail {
		return nil, fmt.Errorf("ExpensesByYear: %w", store.ErrUnavailable)
	}
	if limit < len(f.expenses) {
		return f.expenses[:limit], nil
	}
	return f.expenses, nil
}

func (f *fakeStore) Years(ctx context.Context) ([]string, error) {
	if f.unavail {
		return nil, fmt.Errorf("Years: %w", store.ErrUnavailable)
	}
	return f.years, nil
}

func (f *fakeStore) YearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	stats := domain.YearStats{Year: year, PerCategory: map[string]domain.CategoryStats{}}
	for _, e := range f.expenses {
		stats.TotalCount++
		stats.TotalAmount += e.Amount
	}
	return stats, nil
}

func (f *fakeStore) DeleteByYear(ctx context.Context, year string) (int, error) {
	n := len(f.expenses)
	f.expenses = nil
	return n, nil
}

func (f *fakeStore) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.Expense, error) {
	return f.expenses, nil
}

func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

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
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, year, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("year", year); err != nil {
		t.Fatal(err)
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, w.FormDataContentType()
}

func newHandler(st store.Store) *ExpensesHandler {
	log := logger.NewWithWriter(&bytes.Buffer{})
	importer := pipeline.New(normalizer.New(nil, log), st, nil, log)
	return NewExpensesHandler(importer, st, 10<<20, log)
}

func TestUploadExpenses(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Description", "Amount"},
		[][]interface{}{
			{"2023-01-05", "Office supplies", "120.50"},
			{"2023-02-10", "Taxi", "35"},
		},
	)

	st := &fakeStore{}
	h := newHandler(st)

	body, contentType := multipartUpload(t, "2023", "jan.xlsx", data)
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadExpenses(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result pipeline.ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Imported != 2 || result.Status != "ok" {
		t.Errorf("result = %+v", result)
	}
	if st.saveCalls != 1 {
		t.Errorf("store save calls = %d, want 1", st.saveCalls)
	}
}

func TestUploadExpenses_Rejections(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Amount"},
		[][]interface{}{{"2023-01-05", "10"}},
	)

	cases := []struct {
		name       string
		year       string
		filename   string
		data       []byte
		wantStatus int
	}{
		{"bad year", "23", "f.xlsx", data, http.StatusBadRequest},
		{"bad extension", "2023", "f.csv", data, http.StatusBadRequest},
		{"not a workbook", "2023", "f.xlsx", []byte("not a zip"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := &fakeStore{}
			h := newHandler(st)

			body, contentType := multipartUpload(t, tc.year, tc.filename, tc.data)
			req := httptest.NewRequest(http.MethodPost, "/api/expenses/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			h.UploadExpenses(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if st.saveCalls != 0 {
				t.Errorf("store was written to on a rejected upload")
			}
		})
	}
}

func TestUploadExpenses_StorageUnavailable(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Amount"},
		[][]interface{}{{"2023-01-05", "10"}},
	)

	h := newHandler(&fakeStore{unavail: true})

	body, contentType := multipartUpload(t, "2023", "f.xlsx", data)
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadExpenses(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestPreviewExpenses_NeverWrites(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Date", "Amount"},
		[][]interface{}{{"2023-01-05", "10"}},
	)

	st := &fakeStore{}
	h := newHandler(st)

	body, contentType := multipartUpload(t, "2023", "f.xlsx", data)
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.PreviewExpenses(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result pipeline.PreviewResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.TotalRows != 1 || result.PreviewRows != 1 {
		t.Errorf("result = %+v", result)
	}
	if st.saveCalls != 0 {
		t.Errorf("preview wrote to the store")
	}
}

func TestListByYear(t *testing.T) {
	st := &fakeStore{expenses: []domain.Expense{
		{Date: "2023-01-05", Category: "Office", Amount: 120.50},
	}}
	h := newHandler(st)

	rec := httptest.NewRecorder()
	h.ListByYear(rec, httptest.NewRequest(http.MethodGet, "/api/expenses/2023", nil), "2023")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Year     string           `json:"year"`
		Expenses []domain.Expense `json:"expenses"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Year != "2023" || resp.Count != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListByYear_BadInput(t *testing.T) {
	h := newHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	h.ListByYear(rec, httptest.NewRequest(http.MethodGet, "/api/expenses/abcd", nil), "abcd")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric year status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListByYear(rec, httptest.NewRequest(http.MethodGet, "/api/expenses/2023?limit=-1", nil), "2023")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}
}

func TestSearch_BadAmount(t *testing.T) {
	h := newHandler(&fakeStore{})

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/expenses/search?min_amount=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListYears_Unavailable(t *testing.T) {
	log := logger.NewWithWriter(&bytes.Buffer{})
	h := NewYearsHandler(&fakeStore{unavail: true}, log)

	rec := httptest.NewRecorder()
	h.ListYears(rec, httptest.NewRequest(http.MethodGet, "/api/years", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
