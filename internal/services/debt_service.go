package services

import (
	"context"
	"fmt"
	"log/slog"

	"finly/internal/core"
)

// DebtStore is the subset of the repository the debt service needs.
type DebtStore interface {
	CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error)
	GetDebt(ctx context.Context, id int64) (core.Debt, error)
	ListDebts(ctx context.Context) ([]core.Debt, error)
	AddDebtPayment(ctx context.Context, debtID int64, p core.DebtPayment) (core.DebtPayment, error)
	UpdateDebtProgress(ctx context.Context, id int64, paid core.Money, status core.DebtStatus) error
	DeleteDebt(ctx context.Context, id int64) error
}

// DebtService tracks money lent and owed, with partial payments moving a debt
// through pending, partial and paid.
type DebtService struct {
	store DebtStore
}

func NewDebtService(store DebtStore) *DebtService {
	return &DebtService{store: store}
}

func (s *DebtService) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}

	d.PaidAmount = core.Money{}
	d.Status = core.StatusPending
	d.Payments = nil

	created, err := s.store.CreateDebt(ctx, d)
	if err != nil {
		return core.Debt{}, fmt.Errorf("save debt: %w", err)
	}
	return created, nil
}

func (s *DebtService) GetDebt(ctx context.Context, id int64) (core.Debt, error) {
	return s.store.GetDebt(ctx, id)
}

func (s *DebtService) ListDebts(ctx context.Context) ([]core.Debt, error) {
	return s.store.ListDebts(ctx)
}

// DeleteDebt removes a debt together with its payment history.
func (s *DebtService) DeleteDebt(ctx context.Context, id int64) error {
	return s.store.DeleteDebt(ctx, id)
}

// AddPayment registers a partial payment against a debt and advances its
// status. A payment larger than the remaining balance is rejected.
func (s *DebtService) AddPayment(ctx context.Context, debtID int64, payment core.DebtPayment) (core.Debt, error) {
	if err := payment.Amount.Validate(); err != nil {
		return core.Debt{}, err
	}

	debt, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		return core.Debt{}, err
	}

	if payment.Amount.Cents > debt.Remaining().Cents {
		return core.Debt{}, core.ErrDebtOverpayment
	}

	if _, err := s.store.AddDebtPayment(ctx, debtID, payment); err != nil {
		return core.Debt{}, fmt.Errorf("add debt payment: %w", err)
	}

	paid := core.Money{Cents: debt.PaidAmount.Cents + payment.Amount.Cents}
	status := core.StatusPartial
	if paid.Cents >= debt.Amount.Cents {
		status = core.StatusPaid
	}

	if err := s.store.UpdateDebtProgress(ctx, debtID, paid, status); err != nil {
		return core.Debt{}, fmt.Errorf("update debt progress: %w", err)
	}

	slog.InfoContext(ctx, "Debt payment registered",
		"debt_id", debtID,
		"amount_cents", payment.Amount.Cents,
		"paid_cents", paid.Cents,
		"status", status)

	return s.store.GetDebt(ctx, debtID)
}
