package http

import (
	"net/http"
	"strconv"
)

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := period.String()
	if cached, ok := s.overviewCache.Get(key); ok {
		writeJSON(w, http.StatusOK, toOverviewResponse(cached))
		return
	}

	overview, err := s.overview.MonthOverview(r.Context(), period)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.overviewCache.Set(key, overview)
	writeJSON(w, http.StatusOK, toOverviewResponse(overview))
}

// handleInstallments returns each card's installment schedule for the period.
func (s *Server) handleInstallments(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := period.String()
	if cached, ok := s.scheduleCache.Get(key); ok {
		writeJSON(w, http.StatusOK, toCardScheduleResponses(cached))
		return
	}

	schedules, err := s.overview.CardSchedules(r.Context(), period)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.scheduleCache.Set(key, schedules)
	writeJSON(w, http.StatusOK, toCardScheduleResponses(schedules))
}

// handleExportedMonth lists the purchases written to the external ledger for
// one month, so the ledger can be checked against the database.
func (s *Server) handleExportedMonth(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger export disabled")
		return
	}

	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 1970 || year > 9999 {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}

	purchases, err := s.ledger.ListMonth(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponses(purchases))
}

// handleUpcoming lists unpaid installments due after now, nearest first.
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	occs, err := s.overview.Upcoming(r.Context(), s.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOccurrenceResponses(occs))
}
