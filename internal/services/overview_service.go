package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"finly/internal/core"
	"finly/internal/schedule"
)

// OverviewStore is the subset of the repository the overview service needs.
type OverviewStore interface {
	ListPurchases(ctx context.Context) ([]core.Purchase, error)
	ListPurchasesByMonth(ctx context.Context, year int, month time.Month) ([]core.Purchase, error)
	ListIncomes(ctx context.Context) ([]core.Income, error)
	ListIncomesByMonth(ctx context.Context, year int, month time.Month) ([]core.Income, error)
	ListCards(ctx context.Context) ([]core.Card, error)
}

// OverviewService computes the reporting views: the month overview, per-card
// installment schedules and the upcoming installment list. All installment
// math delegates to the schedule package so every view agrees on due dates.
type OverviewService struct {
	store OverviewStore
}

func NewOverviewService(store OverviewStore) *OverviewService {
	return &OverviewService{store: store}
}

// MonthOverview aggregates expenses, incomes and installment totals for a
// period. With Month zero the whole year is summarized.
func (s *OverviewService) MonthOverview(ctx context.Context, period schedule.Period) (core.MonthOverview, error) {
	purchases, err := s.purchasesIn(ctx, period)
	if err != nil {
		return core.MonthOverview{}, err
	}
	incomes, err := s.incomesIn(ctx, period)
	if err != nil {
		return core.MonthOverview{}, err
	}

	overview := core.MonthOverview{
		Year:  period.Year,
		Month: int(period.Month),
	}

	byCategory := make(map[int64]int64)
	var catOrder []int64
	for _, p := range purchases {
		overview.TotalExpense.Cents += p.Amount.Cents
		if _, seen := byCategory[p.CategoryID]; !seen {
			catOrder = append(catOrder, p.CategoryID)
		}
		byCategory[p.CategoryID] += p.Amount.Cents
	}
	sort.Slice(catOrder, func(i, j int) bool { return catOrder[i] < catOrder[j] })
	for _, id := range catOrder {
		overview.ByCategory = append(overview.ByCategory, core.CategoryAmount{
			CategoryID: id,
			Amount:     core.Money{Cents: byCategory[id]},
		})
	}

	for _, in := range incomes {
		overview.TotalIncome.Cents += in.Amount.Cents
	}
	overview.Balance = core.Money{Cents: overview.TotalIncome.Cents - overview.TotalExpense.Cents}

	pending, paid, err := s.installmentTotals(ctx, period)
	if err != nil {
		return core.MonthOverview{}, err
	}
	overview.InstallmentsPending = pending
	overview.InstallmentsPaid = paid

	return overview, nil
}

// CardSchedules returns each card's installments due in the period.
func (s *OverviewService) CardSchedules(ctx context.Context, period schedule.Period) ([]schedule.CardSchedule, error) {
	purchases, err := s.store.ListPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return schedule.AggregateByCard(purchases, cards, period), nil
}

// Upcoming returns every unpaid installment due after asOf, across all cards,
// sorted by due date.
func (s *OverviewService) Upcoming(ctx context.Context, asOf time.Time) ([]schedule.Occurrence, error) {
	purchases, err := s.store.ListPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	byID := make(map[int64]core.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	var all []schedule.Occurrence
	for _, p := range purchases {
		if !p.OnInstallments() {
			continue
		}
		card, ok := byID[p.CardID]
		if !ok {
			continue
		}
		all = append(all, schedule.Expand(p, card)...)
	}
	return schedule.UpcomingUnpaid(all, asOf), nil
}

func (s *OverviewService) installmentTotals(ctx context.Context, period schedule.Period) (pending, paid float64, err error) {
	schedules, err := s.CardSchedules(ctx, period)
	if err != nil {
		return 0, 0, err
	}
	for _, cs := range schedules {
		for _, o := range cs.Occurrences {
			if o.Paid {
				paid += o.Amount
			} else {
				pending += o.Amount
			}
		}
	}
	return pending, paid, nil
}

func (s *OverviewService) purchasesIn(ctx context.Context, period schedule.Period) ([]core.Purchase, error) {
	if period.Month != 0 {
		purchases, err := s.store.ListPurchasesByMonth(ctx, period.Year, period.Month)
		if err != nil {
			return nil, fmt.Errorf("list purchases by month: %w", err)
		}
		return purchases, nil
	}

	all, err := s.store.ListPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	var out []core.Purchase
	for _, p := range all {
		if period.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *OverviewService) incomesIn(ctx context.Context, period schedule.Period) ([]core.Income, error) {
	if period.Month != 0 {
		incomes, err := s.store.ListIncomesByMonth(ctx, period.Year, period.Month)
		if err != nil {
			return nil, fmt.Errorf("list incomes by month: %w", err)
		}
		return incomes, nil
	}

	all, err := s.store.ListIncomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	var out []core.Income
	for _, in := range all {
		if period.Contains(in.Date) {
			out = append(out, in)
		}
	}
	return out, nil
}
