package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"finflow/internal/aggregate"
	"finflow/internal/core"
	"finflow/internal/services"
)

type (
	loginRequest struct {
		Identity string `json:"identity"`
	}

	sessionResponse struct {
		State       string `json:"state"`
		Identity    string `json:"identity,omitempty"`
		OpenEventID string `json:"openEventId,omitempty"`
	}

	createEventRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Currency    string `json:"currency"`
		ImageURL    string `json:"imageUrl"`
	}

	createExpenseRequest struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Category    string `json:"category"`
		Date        string `json:"date"`
	}

	createdResponse struct {
		ID string `json:"id"`
	}

	eventResponse struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Currency    string `json:"currency"`
		ImageURL    string `json:"imageUrl,omitempty"`
	}

	expenseResponse struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Category    string `json:"category"`
		Date        string `json:"date"`
		CreatedBy   string `json:"createdBy,omitempty"`
	}

	summaryResponse struct {
		Count     int    `json:"count"`
		Total     string `json:"total"`
		Formatted string `json:"formatted"`
	}

	categoryTotalResponse struct {
		Category string `json:"category"`
		Total    string `json:"total"`
	}

	bucketResponse struct {
		Label string `json:"label"`
		Start string `json:"start"`
		Total string `json:"total"`
	}

	analysisResponse struct {
		EventCount      int              `json:"eventCount"`
		ExpenseCount    int              `json:"expenseCount"`
		Series          []bucketResponse `json:"series"`
		Currencies      []string         `json:"currencies"`
		MixedCurrencies bool             `json:"mixedCurrencies"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{
		State:    string(s.session.State()),
		Identity: s.session.Identity(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.session.Login(r.Context(), req.Identity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		State:    string(s.session.State()),
		Identity: s.session.Identity(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: string(s.session.State())})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := s.session.Events()
	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session.Event(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event not found"})
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	id, err := s.session.CreateEvent(r.Context(), services.EventFields{
		Name:        req.Name,
		Description: req.Description,
		Currency:    req.Currency,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.session.OpenEvent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		State:       string(s.session.State()),
		Identity:    s.session.Identity(),
		OpenEventID: r.PathValue("id"),
	})
}

func (s *Server) handleCloseEvent(w http.ResponseWriter, r *http.Request) {
	s.session.CloseEvent()
	writeJSON(w, http.StatusOK, sessionResponse{
		State:    string(s.session.State()),
		Identity: s.session.Identity(),
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses := s.session.Expenses(r.PathValue("id"))
	resp := make([]expenseResponse, 0, len(expenses))
	for _, x := range expenses {
		resp = append(resp, toExpenseResponse(x))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	id, err := s.session.CreateExpense(r.Context(), r.PathValue("id"), services.ExpenseFields{
		Description: req.Description,
		Amount:      req.Amount,
		Category:    core.Category(req.Category),
		Date:        req.Date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteExpense(r.Context(), r.PathValue("id"), r.PathValue("expenseId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	summary := s.session.Summary(eventID)

	currency := core.DefaultCurrency
	if e, ok := s.session.Event(eventID); ok && e.Currency != "" {
		currency = e.Currency
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Count:     summary.Count,
		Total:     summary.Total.StringFixed(2),
		Formatted: core.FormatAmount(summary.Total, currency),
	})
}

func (s *Server) handleEventBreakdown(w http.ResponseWriter, r *http.Request) {
	breakdown := s.session.Breakdown(r.PathValue("id"))
	resp := make([]categoryTotalResponse, 0, len(breakdown))
	for _, ct := range breakdown {
		resp = append(resp, categoryTotalResponse{
			Category: string(ct.Category),
			Total:    ct.Total.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEventTimeSeries(w http.ResponseWriter, r *http.Request) {
	period, densify, err := seriesParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	buckets, err := s.session.TimeSeries(r.PathValue("id"), period, densify)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketResponses(buckets))
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	period, densify, err := seriesParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	report, err := s.session.Analysis(r.Context(), period, densify)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{
		EventCount:      report.EventCount,
		ExpenseCount:    report.ExpenseCount,
		Series:          toBucketResponses(report.Series),
		Currencies:      report.Currencies,
		MixedCurrencies: report.MixedCurrencies,
	})
}

func seriesParams(r *http.Request) (aggregate.Period, bool, error) {
	period := aggregate.PeriodMonthly
	if v := r.URL.Query().Get("period"); v != "" {
		p, err := aggregate.ParsePeriod(v)
		if err != nil {
			return "", false, err
		}
		period = p
	}
	densify := false
	if v := r.URL.Query().Get("densify"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return "", false, errors.New("densify must be a boolean")
		}
		densify = b
	}
	return period, densify, nil
}

func toEventResponse(e core.Event) eventResponse {
	currency := e.Currency
	if currency == "" {
		currency = core.DefaultCurrency
	}
	return eventResponse{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Currency:    currency,
		ImageURL:    e.ImageURL,
	}
}

func toExpenseResponse(x core.Expense) expenseResponse {
	return expenseResponse{
		ID:          x.ID,
		Description: x.Description,
		Amount:      x.Amount.StringFixed(2),
		Category:    string(x.Category),
		Date:        x.Date.Format(time.RFC3339),
		CreatedBy:   x.CreatedBy,
	}
}

func toBucketResponses(buckets []aggregate.Bucket) []bucketResponse {
	resp := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		resp = append(resp, bucketResponse{
			Label: b.Label,
			Start: b.Start.Format(time.RFC3339),
			Total: b.Total.StringFixed(2),
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encoding failed", "error", err)
	}
}

// writeError maps the sync core's error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrRemoteUnavailable):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "url", r.URL.Path)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
