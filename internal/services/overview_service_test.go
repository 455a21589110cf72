package services

import (
	"context"
	"math"
	"testing"
	"time"

	"finly/internal/core"
	"finly/internal/schedule"
)

func TestMonthOverview(t *testing.T) {
	store := newFakeStore()
	store.cards[1] = core.Card{
		ID: 1, Name: "Visa", Bank: "Galicia",
		CloseDay: 10, DueDay: 20,
	}
	// Cash purchase in March.
	store.purchases[1] = core.Purchase{
		ID: 1, Description: "groceries",
		Amount:        core.Money{Cents: 50000},
		CategoryID:    3,
		PaymentMethod: core.PaymentCash,
		Date:          core.NewDate(2024, time.March, 5),
	}
	// Credit purchase in February, 3 installments due Feb 20, Mar 20, Apr 20,
	// the first already paid.
	store.purchases[2] = core.Purchase{
		ID: 2, Description: "tv",
		Amount:           core.Money{Cents: 300000},
		CategoryID:       5,
		PaymentMethod:    core.PaymentCredit,
		Date:             core.NewDate(2024, time.February, 1),
		Installments:     3,
		InstallmentsPaid: 1,
		CardID:           1,
	}
	store.incomes = []core.Income{
		{ID: 1, Description: "salary", Amount: core.Money{Cents: 200000}, Date: core.NewDate(2024, time.March, 1)},
		{ID: 2, Description: "salary", Amount: core.Money{Cents: 200000}, Date: core.NewDate(2024, time.April, 1)},
	}

	svc := NewOverviewService(store)
	ov, err := svc.MonthOverview(context.Background(), schedule.Period{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("MonthOverview: %v", err)
	}

	if ov.TotalExpense.Cents != 50000 {
		t.Errorf("TotalExpense = %d, want 50000", ov.TotalExpense.Cents)
	}
	if ov.TotalIncome.Cents != 200000 {
		t.Errorf("TotalIncome = %d, want 200000", ov.TotalIncome.Cents)
	}
	if ov.Balance.Cents != 150000 {
		t.Errorf("Balance = %d, want 150000", ov.Balance.Cents)
	}
	if len(ov.ByCategory) != 1 || ov.ByCategory[0].CategoryID != 3 {
		t.Errorf("ByCategory = %+v, want single category 3", ov.ByCategory)
	}

	// The March installment (index 1) is unpaid: 3000.00 / 3 = 1000.00.
	if math.Abs(ov.InstallmentsPending-1000.0) > 1e-9 {
		t.Errorf("InstallmentsPending = %v, want 1000", ov.InstallmentsPending)
	}
	if ov.InstallmentsPaid != 0 {
		t.Errorf("InstallmentsPaid = %v, want 0 (paid installment fell in February)", ov.InstallmentsPaid)
	}
}

func TestMonthOverviewWholeYear(t *testing.T) {
	store := newFakeStore()
	store.purchases[1] = core.Purchase{
		ID: 1, Description: "a",
		Amount:        core.Money{Cents: 10000},
		PaymentMethod: core.PaymentCash,
		Date:          core.NewDate(2024, time.January, 5),
	}
	store.purchases[2] = core.Purchase{
		ID: 2, Description: "b",
		Amount:        core.Money{Cents: 20000},
		PaymentMethod: core.PaymentCash,
		Date:          core.NewDate(2024, time.November, 5),
	}
	store.purchases[3] = core.Purchase{
		ID: 3, Description: "other year",
		Amount:        core.Money{Cents: 40000},
		PaymentMethod: core.PaymentCash,
		Date:          core.NewDate(2023, time.November, 5),
	}

	svc := NewOverviewService(store)
	ov, err := svc.MonthOverview(context.Background(), schedule.Period{Year: 2024})
	if err != nil {
		t.Fatalf("MonthOverview: %v", err)
	}
	if ov.TotalExpense.Cents != 30000 {
		t.Errorf("TotalExpense = %d, want 30000", ov.TotalExpense.Cents)
	}
	if ov.Month != 0 {
		t.Errorf("Month = %d, want 0 for whole year", ov.Month)
	}
}

func TestUpcoming(t *testing.T) {
	store := newFakeStore()
	store.cards[1] = core.Card{ID: 1, Name: "Visa", Bank: "Galicia", CloseDay: 10, DueDay: 20}
	store.purchases[1] = core.Purchase{
		ID: 1, Description: "tv",
		Amount:           core.Money{Cents: 120000},
		PaymentMethod:    core.PaymentCredit,
		Date:             core.NewDate(2024, time.January, 5),
		Installments:     3,
		InstallmentsPaid: 1,
		CardID:           1,
	}

	svc := NewOverviewService(store)
	got, err := svc.Upcoming(context.Background(), core.NewDate(2024, time.January, 25))
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}

	// Due dates: Jan 20 (paid), Feb 20, Mar 20. Only the two unpaid ones
	// after Jan 25 remain.
	if len(got) != 2 {
		t.Fatalf("expected 2 upcoming occurrences, got %d", len(got))
	}
	if !got[0].DueDate.Before(got[1].DueDate) {
		t.Error("upcoming occurrences not sorted by due date")
	}
	if got[0].DueDate != core.NewDate(2024, time.February, 20) {
		t.Errorf("first due date = %v, want 2024-02-20", got[0].DueDate)
	}
}

func TestCardSchedulesSkipsUnknownCard(t *testing.T) {
	store := newFakeStore()
	store.cards[1] = core.Card{ID: 1, Name: "Visa", Bank: "Galicia", CloseDay: 10, DueDay: 20}
	store.purchases[1] = core.Purchase{
		ID: 1, Description: "ok",
		Amount:        core.Money{Cents: 60000},
		PaymentMethod: core.PaymentCredit,
		Date:          core.NewDate(2024, time.March, 1),
		Installments:  2,
		CardID:        1,
	}
	store.purchases[2] = core.Purchase{
		ID: 2, Description: "orphan",
		Amount:        core.Money{Cents: 60000},
		PaymentMethod: core.PaymentCredit,
		Date:          core.NewDate(2024, time.March, 1),
		Installments:  2,
		CardID:        99,
	}

	svc := NewOverviewService(store)
	schedules, err := svc.CardSchedules(context.Background(), schedule.Period{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("CardSchedules: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("expected 1 card schedule, got %d", len(schedules))
	}
	if schedules[0].Card.ID != 1 {
		t.Errorf("Card.ID = %d, want 1", schedules[0].Card.ID)
	}
}
