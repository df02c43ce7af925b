package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ovolkov/expenseflow/internal/api/middleware"
	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/extractor"
	"github.com/ovolkov/expenseflow/internal/jobs"
	"github.com/ovolkov/expenseflow/internal/pipeline"
	"github.com/ovolkov/expenseflow/internal/store"
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
}

// ExpensesHandler handles expense import and query endpoints.
type ExpensesHandler struct {
	importer       *pipeline.Importer
	store          store.Store
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(importer *pipeline.Importer, st store.Store, maxUploadBytes int64, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{
		importer:       importer,
		store:          st,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// readUpload pulls the spreadsheet and year out of a multipart request.
func (h *ExpensesHandler) readUpload(w http.ResponseWriter, r *http.Request) (year, filename string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
		return "", "", nil, false
	}

	year = r.FormValue("year")
	if !yearPattern.MatchString(year) {
		middleware.WriteError(w, http.StatusBadRequest, "year must be a four-digit string")
		return "", "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file field is required")
		return "", "", nil, false
	}
	defer file.Close()

	filename = filepath.Base(header.Filename)
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		middleware.WriteError(w, http.StatusBadRequest, "Only .xlsx and .xlsm files are supported")
		return "", "", nil, false
	}

	data, err = io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read uploaded file")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return "", "", nil, false
	}

	return year, filename, data, true
}

// writeImportError maps pipeline failures to HTTP statuses without leaking
// backend details to the client.
func (h *ExpensesHandler) writeImportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidParameter):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, extractor.ErrDecode):
		middleware.WriteError(w, http.StatusBadRequest, "Could not decode spreadsheet")
	case errors.Is(err, store.ErrUnavailable):
		middleware.WriteError(w, http.StatusServiceUnavailable, "Storage backend unavailable")
	default:
		middleware.WriteError(w, http.StatusInternalServerError, "Import failed")
	}
}

// UploadExpenses handles POST /api/expenses/upload
func (h *ExpensesHandler) UploadExpenses(w http.ResponseWriter, r *http.Request) {
	year, filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.importer.ImportFile(r.Context(), year, filename, data)
	if err != nil {
		h.log.Error().Err(err).Str("filename", filename).Msg("Import failed")
		h.writeImportError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// PreviewExpenses handles POST /api/expenses/preview
func (h *ExpensesHandler) PreviewExpenses(w http.ResponseWriter, r *http.Request) {
	year, filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.importer.PreviewFile(r.Context(), year, filename, data)
	if err != nil {
		h.log.Error().Err(err).Str("filename", filename).Msg("Preview failed")
		h.writeImportError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// ListByYear handles GET /api/expenses/{year}
func (h *ExpensesHandler) ListByYear(w http.ResponseWriter, r *http.Request, year string) {
	if !yearPattern.MatchString(year) {
		middleware.WriteError(w, http.StatusBadRequest, "year must be a four-digit string")
		return
	}

	limit := store.MaxQueryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	expenses, err := h.store.ExpensesByYear(r.Context(), year, limit)
	if err != nil {
		h.log.Error().Err(err).Str("year", year).Msg("Failed to list expenses")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Storage backend unavailable")
		return
	}

	if expenses == nil {
		expenses = []domain.Expense{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"year":     year,
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// Statistics handles GET /api/expenses/{year}/statistics
func (h *ExpensesHandler) Statistics(w http.ResponseWriter, r *http.Request, year string) {
	if !yearPattern.MatchString(year) {
		middleware.WriteError(w, http.StatusBadRequest, "year must be a four-digit string")
		return
	}

	stats, err := h.store.YearStatistics(r.Context(), year)
	if err != nil {
		h.log.Error().Err(err).Str("year", year).Msg("Failed to compute statistics")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Storage backend unavailable")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}

// DeleteByYear handles DELETE /api/expenses/{year}
func (h *ExpensesHandler) DeleteByYear(w http.ResponseWriter, r *http.Request, year string) {
	if !yearPattern.MatchString(year) {
		middleware.WriteError(w, http.StatusBadRequest, "year must be a four-digit string")
		return
	}

	deleted, err := h.store.DeleteByYear(r.Context(), year)
	if err != nil {
		h.log.Error().Err(err).Str("year", year).Msg("Failed to delete expenses")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Storage backend unavailable")
		return
	}

	h.log.Info().Str("year", year).Int("deleted", deleted).Msg("Year partition deleted")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"year":    year,
		"deleted": deleted,
	})
}

// Search handles GET /api/expenses/search
func (h *ExpensesHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := domain.SearchFilter{
		Year:     query.Get("year"),
		Category: query.Get("category"),
		DateFrom: query.Get("date_from"),
		DateTo:   query.Get("date_to"),
	}
	if filter.Year != "" && !yearPattern.MatchString(filter.Year) {
		middleware.WriteError(w, http.StatusBadRequest, "year must be a four-digit string")
		return
	}

	if s := query.Get("min_amount"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "min_amount must be a number")
			return
		}
		filter.MinAmount = &v
	}
	if s := query.Get("max_amount"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "max_amount must be a number")
			return
		}
		filter.MaxAmount = &v
	}

	expenses, err := h.store.Search(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Search failed")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Storage backend unavailable")
		return
	}

	if expenses == nil {
		expenses = []domain.Expense{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// YearsHandler handles GET /api/years
type YearsHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewYearsHandler creates a new years handler.
func NewYearsHandler(st store.Store, log zerolog.Logger) *YearsHandler {
	return &YearsHandler{store: st, log: log}
}

// ListYears handles GET /api/years
func (h *YearsHandler) ListYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.store.Years(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list years")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Storage backend unavailable")
		return
	}

	if years == nil {
		years = []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"years": years,
		"count": len(years),
	})
}

// JobsHandler handles backup-job endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Year:   query.Get("year"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
