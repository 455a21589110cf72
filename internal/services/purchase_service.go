package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finly/internal/amqp"
	"finly/internal/core"
	"finly/internal/export"
	applog "finly/internal/log"
	"finly/internal/schedule"
)

// PurchaseStore is the subset of the repository the purchase service needs.
type PurchaseStore interface {
	CreatePurchase(ctx context.Context, p core.Purchase) (core.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (core.Purchase, error)
	DeletePurchase(ctx context.Context, id int64) error
	UpdateInstallmentsPaid(ctx context.Context, id int64, paid int) error
	GetCard(ctx context.Context, id int64) (core.Card, error)
}

// EventPublisher publishes card events for the balance worker.
type EventPublisher interface {
	PublishCardEvent(ctx context.Context, event string, purchaseID, cardID int64) error
}

// PurchaseService orchestrates purchase operations across SQLite, AMQP and
// the external ledger. Writes go to SQLite first; event publishing and ledger
// export are best-effort and never fail the request.
type PurchaseService struct {
	store     PurchaseStore
	publisher EventPublisher
	exporter  export.LedgerWriter
}

func NewPurchaseService(store PurchaseStore, publisher EventPublisher, exporter export.LedgerWriter) *PurchaseService {
	return &PurchaseService{
		store:     store,
		publisher: publisher,
		exporter:  exporter,
	}
}

// CreatePurchase validates and saves a purchase, then publishes a card event
// and exports the row.
func (s *PurchaseService) CreatePurchase(ctx context.Context, p core.Purchase, now time.Time) (core.Purchase, error) {
	if err := p.Validate(now); err != nil {
		return core.Purchase{}, err
	}

	if p.PaymentMethod == core.PaymentCredit {
		card, err := s.store.GetCard(ctx, p.CardID)
		if err != nil {
			return core.Purchase{}, fmt.Errorf("load card: %w", err)
		}
		if err := p.CheckCredit(card); err != nil {
			return core.Purchase{}, err
		}
	}

	created, err := s.store.CreatePurchase(ctx, p)
	if err != nil {
		return core.Purchase{}, fmt.Errorf("save purchase: %w", err)
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentPurchase).
		WithOperation(applog.OpCreate).
		WithPurchase(created.Description, created.Amount.Cents, string(created.PaymentMethod), created.Installments)
	slog.InfoContext(ctx, "Purchase created", fields.ToSlice()...)

	if created.OnInstallments() {
		s.publish(ctx, amqp.EventPurchaseCreated, created.ID, created.CardID)
	}
	s.export(ctx, created)

	return created, nil
}

// DeletePurchase removes a purchase and tells the worker to recompute the
// card balance.
func (s *PurchaseService) DeletePurchase(ctx context.Context, id int64) error {
	p, err := s.store.GetPurchase(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeletePurchase(ctx, id); err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}

	if p.OnInstallments() {
		s.publish(ctx, amqp.EventPurchaseDeleted, p.ID, p.CardID)
	}
	return nil
}

// PayInstallment marks the next unpaid installment of a purchase as paid.
func (s *PurchaseService) PayInstallment(ctx context.Context, id int64) (core.Purchase, error) {
	p, err := s.store.GetPurchase(ctx, id)
	if err != nil {
		return core.Purchase{}, err
	}

	updated, err := schedule.MarkInstallmentPaid(p)
	if err != nil {
		return core.Purchase{}, err
	}

	if err := s.store.UpdateInstallmentsPaid(ctx, id, updated.InstallmentsPaid); err != nil {
		return core.Purchase{}, fmt.Errorf("update installments paid: %w", err)
	}

	slog.InfoContext(ctx, "Installment paid",
		"purchase_id", id,
		"installments_paid", updated.InstallmentsPaid,
		"installments", updated.Installments)

	s.publish(ctx, amqp.EventInstallmentPaid, updated.ID, updated.CardID)
	return updated, nil
}

func (s *PurchaseService) publish(ctx context.Context, event string, purchaseID, cardID int64) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping card event", "event", event)
		return
	}
	if err := s.publisher.PublishCardEvent(ctx, event, purchaseID, cardID); err != nil {
		// Don't fail the request, the periodic recalc will catch up.
		slog.ErrorContext(ctx, "Failed to publish card event",
			"event", event,
			"purchase_id", purchaseID,
			"error", err)
	}
}

func (s *PurchaseService) export(ctx context.Context, p core.Purchase) {
	if s.exporter == nil {
		return
	}
	ref, err := s.exporter.Append(ctx, p)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to export purchase to ledger",
			"purchase_id", p.ID,
			"error", err)
		return
	}
	slog.InfoContext(ctx, "Purchase exported to ledger", "purchase_id", p.ID, "row_ref", ref)
}
