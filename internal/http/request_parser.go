package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finly/internal/core"
	"finly/internal/schedule"
)

// maxBodyBytes bounds request bodies. The largest legitimate payload is a debt
// with notes, well under a kilobyte.
const maxBodyBytes = 64 << 10

// decodeBody reads a JSON request body into dst, rejecting unknown fields so
// client typos fail loudly instead of silently dropping data.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseID reads the {id} path value as a positive integer.
func parseID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseAmount converts a decimal string ("1234.56" or "1234,56") into Money.
func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// parseDate parses a required YYYY-MM-DD date.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, core.ErrInvalidDate)
	}
	return t, nil
}

// parsePeriod reads year and month query parameters, defaulting to the month
// containing now. An explicit year without a month selects the whole year.
func parsePeriod(r *http.Request, now time.Time) (schedule.Period, error) {
	q := r.URL.Query()
	yearRaw := q.Get("year")
	monthRaw := q.Get("month")

	if yearRaw == "" && monthRaw == "" {
		return schedule.Period{Year: now.Year(), Month: now.Month()}, nil
	}

	period := schedule.Period{Year: now.Year()}
	if yearRaw != "" {
		year, err := strconv.Atoi(yearRaw)
		if err != nil || year < 1970 || year > 9999 {
			return schedule.Period{}, fmt.Errorf("invalid year %q", yearRaw)
		}
		period.Year = year
	}
	if monthRaw != "" {
		month, err := strconv.Atoi(monthRaw)
		if err != nil || month < 1 || month > 12 {
			return schedule.Period{}, fmt.Errorf("invalid month %q", monthRaw)
		}
		period.Month = time.Month(month)
	}
	return period, nil
}

// sanitizeText trims whitespace and strips control characters from free-form
// input fields.
func sanitizeText(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s))
}

type purchaseRequest struct {
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	CategoryID    int64  `json:"category_id"`
	PaymentMethod string `json:"payment_method"`
	Date          string `json:"date"`
	Installments  int    `json:"installments"`
	CardID        int64  `json:"card_id"`
}

func (req purchaseRequest) toCore() (core.Purchase, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Purchase{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Purchase{}, err
	}
	installments := req.Installments
	if installments == 0 {
		installments = 1
	}
	return core.Purchase{
		Description:   sanitizeText(req.Description),
		Amount:        amount,
		CategoryID:    req.CategoryID,
		PaymentMethod: core.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Date:          date,
		Installments:  installments,
		CardID:        req.CardID,
	}, nil
}

type cardRequest struct {
	Name     string `json:"name"`
	Bank     string `json:"bank"`
	Limit    string `json:"limit"`
	CloseDay int    `json:"close_day"`
	DueDay   int    `json:"due_day"`
}

func (req cardRequest) toCore() (core.Card, error) {
	limit, err := parseAmount(req.Limit)
	if err != nil {
		return core.Card{}, err
	}
	return core.Card{
		Name:             sanitizeText(req.Name),
		Bank:             sanitizeText(req.Bank),
		Limit:            limit,
		CloseDay:         req.CloseDay,
		DueDay:           req.DueDay,
		AvailableBalance: limit,
	}, nil
}

type billingDaysRequest struct {
	CloseDay int `json:"close_day"`
	DueDay   int `json:"due_day"`
}

func (req billingDaysRequest) validate() error {
	if req.CloseDay < 1 || req.CloseDay > 31 {
		return fmt.Errorf("close day must be between 1 and 31")
	}
	if req.DueDay < 1 || req.DueDay > 31 {
		return fmt.Errorf("due day must be between 1 and 31")
	}
	return nil
}

type incomeRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Source      string `json:"source"`
}

func (req incomeRequest) toCore() (core.Income, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Income{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Income{}, err
	}
	return core.Income{
		Description: sanitizeText(req.Description),
		Amount:      amount,
		Date:        date,
		Source:      sanitizeText(req.Source),
	}, nil
}

type categoryRequest struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

func (req categoryRequest) toCore() core.Category {
	return core.Category{
		Name:  sanitizeText(req.Name),
		Emoji: strings.TrimSpace(req.Emoji),
	}
}

type debtRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Person      string `json:"person"`
	Date        string `json:"date"`
	DueDate     string `json:"due_date"`
	Notes       string `json:"notes"`
}

func (req debtRequest) toCore() (core.Debt, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Debt{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Debt{}, err
	}
	var due time.Time
	if strings.TrimSpace(req.DueDate) != "" {
		due, err = parseDate(req.DueDate)
		if err != nil {
			return core.Debt{}, err
		}
	}
	return core.Debt{
		Description: sanitizeText(req.Description),
		Amount:      amount,
		Kind:        core.DebtKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Person:      sanitizeText(req.Person),
		Date:        date,
		DueDate:     due,
		Notes:       sanitizeText(req.Notes),
	}, nil
}

type debtPaymentRequest struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Notes  string `json:"notes"`
}

// toCore defaults a missing payment date to the day containing now.
func (req debtPaymentRequest) toCore(now time.Time) (core.DebtPayment, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.DebtPayment{}, err
	}
	date := now.UTC().Truncate(24 * time.Hour)
	if strings.TrimSpace(req.Date) != "" {
		date, err = parseDate(req.Date)
		if err != nil {
			return core.DebtPayment{}, err
		}
	}
	return core.DebtPayment{
		Amount: amount,
		Date:   date,
		Notes:  sanitizeText(req.Notes),
	}, nil
}
