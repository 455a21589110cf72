package http

import (
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	purchase, err := req.toCore()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.purchases.CreatePurchase(r.Context(), purchase, s.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.invalidateReports()
	writeJSON(w, http.StatusCreated, toPurchaseResponse(created))
}

// handleListPurchases lists all purchases, or one month's worth when year and
// month query parameters are present.
func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("year") != "" && q.Get("month") != "" {
		year, err := strconv.Atoi(q.Get("year"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		month, err := strconv.Atoi(q.Get("month"))
		if err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		purchases, err := s.store.ListPurchasesByMonth(r.Context(), year, time.Month(month))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPurchaseResponses(purchases))
		return
	}

	purchases, err := s.store.ListPurchases(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponses(purchases))
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	purchase, err := s.store.GetPurchase(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (s *Server) handleDeletePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.purchases.DeletePurchase(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	s.invalidateReports()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePayInstallment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	purchase, err := s.purchases.PayInstallment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.invalidateReports()
	writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
}
