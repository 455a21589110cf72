// Package schedule computes credit card installment schedules.
//
// Given a purchase paid in N monthly installments and the card's billing-cycle
// configuration, it derives each installment's due date and paid/pending state,
// and filters or aggregates the resulting occurrences for reporting. All
// functions are pure: they never read the clock or touch storage, so the same
// inputs always produce the same schedule.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"finly/internal/core"
)

// DefaultDueDay is used when a card has no due day configured.
const DefaultDueDay = 10

var (
	// ErrNegativeIndex signals a programmer error: installment indexes are
	// zero-based and never negative.
	ErrNegativeIndex = errors.New("negative installment index")

	// ErrAlreadyPaid is returned by MarkInstallmentPaid once every
	// installment of the purchase has been paid.
	ErrAlreadyPaid = errors.New("purchase is already fully paid")
)

// Occurrence is one scheduled installment of a purchase. It is derived data,
// never persisted: paid/pending state is a function of the purchase's
// installment progress, not per-installment records.
type Occurrence struct {
	PurchaseID  int64
	CardID      int64
	Index       int // zero-based position in the installment sequence
	DueDate     time.Time
	Amount      float64
	Paid        bool
	Description string
}

// Period selects a reporting window: a whole year when Month is zero, a single
// month otherwise.
type Period struct {
	Year  int
	Month time.Month // 0 selects the whole year
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if t.Year() != p.Year {
		return false
	}
	return p.Month == 0 || t.Month() == p.Month
}

func (p Period) String() string {
	if p.Month == 0 {
		return fmt.Sprintf("%d", p.Year)
	}
	return fmt.Sprintf("%d-%02d", p.Year, int(p.Month))
}

// CardSchedule groups a card's occurrences for a period together with the
// total amount still owed on them.
type CardSchedule struct {
	Card        core.Card
	Occurrences []Occurrence
	TotalUnpaid float64
}

// DueDate computes when installment `index` of a purchase made on
// purchaseDate falls due under the card's billing cycle:
//
//  1. The statement date is the purchase date with its day set to the card's
//     close day. A purchase made strictly after that month's close rolls into
//     the next cycle. Cards without a configured close day skip the rollover
//     adjustment entirely.
//  2. Each subsequent installment falls one calendar month later.
//  3. The due date is that month with its day set to the card's due day
//     (DefaultDueDay when unconfigured).
//
// Day-of-month arithmetic uses time.Date normalization, so setting day 31 in a
// 30-day month rolls into the next month. That matches the upstream ledger's
// behavior near month-end and is accepted rather than corrected.
func DueDate(purchaseDate time.Time, card core.Card, index int) (time.Time, error) {
	if index < 0 {
		return time.Time{}, fmt.Errorf("installment %d: %w", index, ErrNegativeIndex)
	}

	statement := purchaseDate
	if card.CloseDay > 0 {
		statement = setDay(purchaseDate, card.CloseDay)
		if statement.Before(purchaseDate) {
			// Purchased after this month's close: first installment
			// belongs to the next cycle.
			statement = statement.AddDate(0, 1, 0)
		}
	}

	statement = statement.AddDate(0, index, 0)

	dueDay := card.DueDay
	if dueDay <= 0 {
		dueDay = DefaultDueDay
	}
	return setDay(statement, dueDay), nil
}

// Expand produces the purchase's full installment schedule: exactly
// p.Installments occurrences, index 0..N-1. A non-positive installment count
// yields an empty schedule. Amounts are the equal float split of the purchase
// total; no cent-level remainder correction is applied, so the occurrence sum
// can drift from the total by float rounding.
func Expand(p core.Purchase, card core.Card) []Occurrence {
	if p.Installments <= 0 {
		return nil
	}

	perInstallment := p.Amount.Pesos() / float64(p.Installments)
	occs := make([]Occurrence, 0, p.Installments)
	for i := 0; i < p.Installments; i++ {
		due, err := DueDate(p.Date, card, i)
		if err != nil {
			// Unreachable for non-negative loop indexes.
			continue
		}
		occs = append(occs, Occurrence{
			PurchaseID:  p.ID,
			CardID:      card.ID,
			Index:       i,
			DueDate:     due,
			Amount:      perInstallment,
			Paid:        i < p.InstallmentsPaid,
			Description: p.Description,
		})
	}
	return occs
}

// FilterByPeriod keeps the occurrences whose due date falls inside the period.
func FilterByPeriod(occs []Occurrence, period Period) []Occurrence {
	var out []Occurrence
	for _, o := range occs {
		if period.Contains(o.DueDate) {
			out = append(out, o)
		}
	}
	return out
}

// UpcomingUnpaid keeps unpaid occurrences due strictly after asOf, sorted by
// due date ascending. The reference time is threaded in by the caller so the
// result is reproducible.
func UpcomingUnpaid(occs []Occurrence, asOf time.Time) []Occurrence {
	var out []Occurrence
	for _, o := range occs {
		if !o.Paid && o.DueDate.After(asOf) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

// AggregateByCard expands every installment purchase, filters by period, and
// groups the surviving occurrences by card. Cards with no matching occurrences
// are omitted; purchases referencing an unknown card are skipped rather than
// failing the whole aggregation. Results are ordered by card ID.
func AggregateByCard(purchases []core.Purchase, cards []core.Card, period Period) []CardSchedule {
	byID := make(map[int64]core.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	grouped := make(map[int64][]Occurrence)
	for _, p := range purchases {
		if !p.OnInstallments() {
			continue
		}
		card, ok := byID[p.CardID]
		if !ok {
			continue
		}
		occs := FilterByPeriod(Expand(p, card), period)
		if len(occs) > 0 {
			grouped[card.ID] = append(grouped[card.ID], occs...)
		}
	}

	ids := make([]int64, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]CardSchedule, 0, len(ids))
	for _, id := range ids {
		occs := grouped[id]
		var unpaid float64
		for _, o := range occs {
			if !o.Paid {
				unpaid += o.Amount
			}
		}
		out = append(out, CardSchedule{Card: byID[id], Occurrences: occs, TotalUnpaid: unpaid})
	}
	return out
}

// MarkInstallmentPaid advances the purchase's sequential payment progress by
// one installment. Paying past the last installment is rejected with
// ErrAlreadyPaid instead of silently clamping, so callers can surface the
// double-payment to the user.
func MarkInstallmentPaid(p core.Purchase) (core.Purchase, error) {
	if p.InstallmentsPaid >= p.Installments {
		return p, fmt.Errorf("purchase %d: %w", p.ID, ErrAlreadyPaid)
	}
	p.InstallmentsPaid++
	return p, nil
}

// setDay replaces t's day-of-month, relying on time.Date to normalize
// out-of-range days into the following month.
func setDay(t time.Time, day int) time.Time {
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, t.Location())
}
