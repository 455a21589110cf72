package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"finly/internal/core"
	"finly/internal/schedule"
	"finly/internal/storage"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything not
// recognized is a 500 with a generic message so internals never leak.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, schedule.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrEmptyDescription,
		core.ErrFutureDate,
		core.ErrInvalidDate,
		core.ErrInvalidInstallment,
		core.ErrMissingCard,
		core.ErrInsufficientCredit,
		core.ErrInvalidPayment,
		core.ErrInvalidDebtKind,
		core.ErrDebtOverpayment,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Response DTOs. Amounts go out as integer cents; occurrence amounts keep the
// scheduler's float split.

type purchaseResponse struct {
	ID               int64  `json:"id"`
	Description      string `json:"description"`
	AmountCents      int64  `json:"amount_cents"`
	CategoryID       int64  `json:"category_id,omitempty"`
	PaymentMethod    string `json:"payment_method"`
	Date             string `json:"date"`
	Installments     int    `json:"installments"`
	InstallmentsPaid int    `json:"installments_paid"`
	CardID           int64  `json:"card_id,omitempty"`
}

func toPurchaseResponse(p core.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:               p.ID,
		Description:      p.Description,
		AmountCents:      p.Amount.Cents,
		CategoryID:       p.CategoryID,
		PaymentMethod:    string(p.PaymentMethod),
		Date:             p.Date.Format(dateLayout),
		Installments:     p.Installments,
		InstallmentsPaid: p.InstallmentsPaid,
		CardID:           p.CardID,
	}
}

func toPurchaseResponses(ps []core.Purchase) []purchaseResponse {
	out := make([]purchaseResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPurchaseResponse(p))
	}
	return out
}

type cardResponse struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	Bank                  string `json:"bank"`
	LimitCents            int64  `json:"limit_cents"`
	CloseDay              int    `json:"close_day,omitempty"`
	DueDay                int    `json:"due_day,omitempty"`
	UsedBalanceCents      int64  `json:"used_balance_cents"`
	AvailableBalanceCents int64  `json:"available_balance_cents"`
}

func toCardResponse(c core.Card) cardResponse {
	return cardResponse{
		ID:                    c.ID,
		Name:                  c.Name,
		Bank:                  c.Bank,
		LimitCents:            c.Limit.Cents,
		CloseDay:              c.CloseDay,
		DueDay:                c.DueDay,
		UsedBalanceCents:      c.UsedBalance.Cents,
		AvailableBalanceCents: c.AvailableBalance.Cents,
	}
}

type incomeResponse struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Source      string `json:"source,omitempty"`
}

func toIncomeResponse(in core.Income) incomeResponse {
	return incomeResponse{
		ID:          in.ID,
		Description: in.Description,
		AmountCents: in.Amount.Cents,
		Date:        in.Date.Format(dateLayout),
		Source:      in.Source,
	}
}

type categoryResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`
}

type debtPaymentResponse struct {
	ID          int64  `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Notes       string `json:"notes,omitempty"`
}

type debtResponse struct {
	ID             int64                 `json:"id"`
	Description    string                `json:"description"`
	AmountCents    int64                 `json:"amount_cents"`
	PaidCents      int64                 `json:"paid_cents"`
	RemainingCents int64                 `json:"remaining_cents"`
	Kind           string                `json:"kind"`
	Person         string                `json:"person"`
	Date           string                `json:"date"`
	DueDate        string                `json:"due_date,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	Status         string                `json:"status"`
	Payments       []debtPaymentResponse `json:"payments,omitempty"`
}

func toDebtResponse(d core.Debt) debtResponse {
	resp := debtResponse{
		ID:             d.ID,
		Description:    d.Description,
		AmountCents:    d.Amount.Cents,
		PaidCents:      d.PaidAmount.Cents,
		RemainingCents: d.Remaining().Cents,
		Kind:           string(d.Kind),
		Person:         d.Person,
		Date:           d.Date.Format(dateLayout),
		Notes:          d.Notes,
		Status:         string(d.Status),
	}
	if !d.DueDate.IsZero() {
		resp.DueDate = d.DueDate.Format(dateLayout)
	}
	for _, p := range d.Payments {
		resp.Payments = append(resp.Payments, debtPaymentResponse{
			ID:          p.ID,
			AmountCents: p.Amount.Cents,
			Date:        p.Date.Format(dateLayout),
			Notes:       p.Notes,
		})
	}
	return resp
}

type occurrenceResponse struct {
	PurchaseID  int64   `json:"purchase_id"`
	CardID      int64   `json:"card_id"`
	Index       int     `json:"index"`
	DueDate     string  `json:"due_date"`
	Amount      float64 `json:"amount"`
	Paid        bool    `json:"paid"`
	Description string  `json:"description"`
}

func toOccurrenceResponses(occs []schedule.Occurrence) []occurrenceResponse {
	out := make([]occurrenceResponse, 0, len(occs))
	for _, o := range occs {
		out = append(out, occurrenceResponse{
			PurchaseID:  o.PurchaseID,
			CardID:      o.CardID,
			Index:       o.Index,
			DueDate:     o.DueDate.Format(dateLayout),
			Amount:      o.Amount,
			Paid:        o.Paid,
			Description: o.Description,
		})
	}
	return out
}

type cardScheduleResponse struct {
	Card        cardResponse         `json:"card"`
	Occurrences []occurrenceResponse `json:"occurrences"`
	TotalUnpaid float64              `json:"total_unpaid"`
}

func toCardScheduleResponses(scheds []schedule.CardSchedule) []cardScheduleResponse {
	out := make([]cardScheduleResponse, 0, len(scheds))
	for _, cs := range scheds {
		out = append(out, cardScheduleResponse{
			Card:        toCardResponse(cs.Card),
			Occurrences: toOccurrenceResponses(cs.Occurrences),
			TotalUnpaid: cs.TotalUnpaid,
		})
	}
	return out
}

type categoryAmountResponse struct {
	CategoryID  int64 `json:"category_id"`
	AmountCents int64 `json:"amount_cents"`
}

type overviewResponse struct {
	Year                int                      `json:"year"`
	Month               int                      `json:"month,omitempty"`
	TotalExpenseCents   int64                    `json:"total_expense_cents"`
	TotalIncomeCents    int64                    `json:"total_income_cents"`
	BalanceCents        int64                    `json:"balance_cents"`
	ByCategory          []categoryAmountResponse `json:"by_category"`
	InstallmentsPending float64                  `json:"installments_pending"`
	InstallmentsPaid    float64                  `json:"installments_paid"`
}

func toOverviewResponse(o core.MonthOverview) overviewResponse {
	resp := overviewResponse{
		Year:                o.Year,
		Month:               o.Month,
		TotalExpenseCents:   o.TotalExpense.Cents,
		TotalIncomeCents:    o.TotalIncome.Cents,
		BalanceCents:        o.Balance.Cents,
		ByCategory:          make([]categoryAmountResponse, 0, len(o.ByCategory)),
		InstallmentsPending: o.InstallmentsPending,
		InstallmentsPaid:    o.InstallmentsPaid,
	}
	for _, ca := range o.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryAmountResponse{
			CategoryID:  ca.CategoryID,
			AmountCents: ca.Amount.Cents,
		})
	}
	return resp
}
