package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"finly/internal/amqp"
	"finly/internal/core"
	"finly/internal/schedule"
)

// BalanceStore is the subset of the repository the balance worker needs.
type BalanceStore interface {
	GetCard(ctx context.Context, id int64) (core.Card, error)
	ListCards(ctx context.Context) ([]core.Card, error)
	ListCardPurchases(ctx context.Context, cardID int64) ([]core.Purchase, error)
	UpdateCardBalance(ctx context.Context, id int64, used, available core.Money) error
}

// BalanceWorker keeps card balances in sync with the installment schedule.
// A card's used balance is the sum of its unpaid installments; the worker
// recomputes it when a card event arrives and in a periodic full pass that
// catches any events lost while the broker was down.
type BalanceWorker struct {
	store BalanceStore
}

func NewBalanceWorker(store BalanceStore) *BalanceWorker {
	return &BalanceWorker{store: store}
}

// HandleCardEvent processes a single card event from AMQP.
func (w *BalanceWorker) HandleCardEvent(ctx context.Context, msg *amqp.CardEventMessage) error {
	slog.InfoContext(ctx, "Processing card event",
		"event", msg.Event,
		"purchase_id", msg.PurchaseID,
		"card_id", msg.CardID)

	if msg.CardID == 0 {
		slog.WarnContext(ctx, "Card event without card ID, skipping", "event", msg.Event)
		return nil
	}

	return w.RecalculateCard(ctx, msg.CardID)
}

// RecalculateCard recomputes one card's used and available balance from its
// unpaid installments.
func (w *BalanceWorker) RecalculateCard(ctx context.Context, cardID int64) error {
	card, err := w.store.GetCard(ctx, cardID)
	if err != nil {
		return fmt.Errorf("get card: %w", err)
	}

	purchases, err := w.store.ListCardPurchases(ctx, cardID)
	if err != nil {
		return fmt.Errorf("list card purchases: %w", err)
	}

	var unpaid float64
	for _, p := range purchases {
		if !p.OnInstallments() {
			continue
		}
		for _, o := range schedule.Expand(p, card) {
			if !o.Paid {
				unpaid += o.Amount
			}
		}
	}

	used := core.Money{Cents: int64(math.Round(unpaid * 100))}
	available := core.Money{Cents: card.Limit.Cents - used.Cents}

	if err := w.store.UpdateCardBalance(ctx, cardID, used, available); err != nil {
		return fmt.Errorf("update card balance: %w", err)
	}

	slog.InfoContext(ctx, "Card balance recalculated",
		"card_id", cardID,
		"used_cents", used.Cents,
		"available_cents", available.Cents)

	return nil
}

// RecalculateAll recomputes every card's balance. Failures on one card are
// logged and do not stop the pass.
func (w *BalanceWorker) RecalculateAll(ctx context.Context) error {
	cards, err := w.store.ListCards(ctx)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	errorCount := 0
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.RecalculateCard(ctx, card.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to recalculate card balance",
				"card_id", card.ID, "error", err)
			errorCount++
		}
	}

	slog.InfoContext(ctx, "Full balance recalculation completed",
		"cards", len(cards),
		"errors", errorCount)

	return nil
}
