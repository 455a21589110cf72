package core

import (
	"errors"
	"strings"
	"time"
)

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentDebit    PaymentMethod = "debit"
	PaymentCredit   PaymentMethod = "credit"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentOther    PaymentMethod = "other"
)

const (
	DebtReceivable DebtKind = "receivable"
	DebtPayable    DebtKind = "payable"
)

const (
	StatusPending DebtStatus = "pending"
	StatusPartial DebtStatus = "partial"
	StatusPaid    DebtStatus = "paid"
)

// MaxInstallments bounds the installment count accepted at purchase creation.
// The scheduler itself tolerates any non-negative count.
const MaxInstallments = 60

type (
	PaymentMethod string
	DebtKind      string
	DebtStatus    string

	Money struct {
		Cents int64
	}

	// Purchase is an expense record, optionally paid by credit card in
	// monthly installments.
	Purchase struct {
		ID               int64
		Description      string
		Amount           Money
		CategoryID       int64
		PaymentMethod    PaymentMethod
		Date             time.Time
		Installments     int
		InstallmentsPaid int
		CardID           int64 // 0 when not paid by card
	}

	// Card holds a credit card's billing-cycle configuration and balances.
	// CloseDay and DueDay are 0 for cards created before the billing-cycle
	// fields existed; the scheduler applies documented fallbacks for them.
	Card struct {
		ID               int64
		Name             string
		Bank             string
		Limit            Money
		CloseDay         int // day of month the statement closes, 1-31, 0 = unset
		DueDay           int // day of month payment is due, 1-31, 0 = unset
		UsedBalance      Money
		AvailableBalance Money
	}

	Income struct {
		ID          int64
		Description string
		Amount      Money
		Date        time.Time
		Source      string
	}

	DebtPayment struct {
		ID     int64
		Amount Money
		Date   time.Time
		Notes  string
	}

	Debt struct {
		ID          int64
		Description string
		Amount      Money
		PaidAmount  Money
		Kind        DebtKind
		Person      string
		Date        time.Time
		DueDate     time.Time // zero when no due date was set
		Notes       string
		Status      DebtStatus
		Payments    []DebtPayment
	}

	Category struct {
		ID    int64
		Name  string
		Emoji string
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrFutureDate         = errors.New("date cannot be in the future")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidInstallment = errors.New("installments must be between 1 and 60")
	ErrMissingCard        = errors.New("credit purchases require a card")
	ErrInsufficientCredit = errors.New("amount exceeds the card's available balance")
	ErrInvalidPayment     = errors.New("invalid payment method")
	ErrInvalidDebtKind    = errors.New("invalid debt kind")
	ErrDebtOverpayment    = errors.New("payment exceeds the remaining debt")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (pm PaymentMethod) Validate() error {
	switch pm {
	case PaymentCash, PaymentDebit, PaymentCredit, PaymentTransfer, PaymentOther:
		return nil
	}
	return ErrInvalidPayment
}

// OnInstallments reports whether the purchase is paid in credit card
// installments and thus participates in schedule expansion.
func (p Purchase) OnInstallments() bool {
	return p.PaymentMethod == PaymentCredit && p.Installments >= 1 && p.CardID != 0
}

// Validate checks the purchase against a reference date. The reference date is
// passed in so validation stays deterministic and testable.
func (p Purchase) Validate(now time.Time) error {
	if len(strings.TrimSpace(p.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(p.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if err := p.PaymentMethod.Validate(); err != nil {
		return err
	}
	if p.Date.IsZero() {
		return ErrInvalidDate
	}
	if p.Date.After(now) {
		return ErrFutureDate
	}
	if p.PaymentMethod == PaymentCredit {
		if p.CardID == 0 {
			return ErrMissingCard
		}
		if p.Installments < 1 || p.Installments > MaxInstallments {
			return ErrInvalidInstallment
		}
	}
	return nil
}

// CheckCredit rejects a credit purchase that exceeds the card's available
// balance. Non-credit purchases always pass.
func (p Purchase) CheckCredit(card Card) error {
	if p.PaymentMethod != PaymentCredit {
		return nil
	}
	if p.Amount.Cents > card.AvailableBalance.Cents {
		return ErrInsufficientCredit
	}
	return nil
}

func (i Income) Validate(now time.Time) error {
	if len(strings.TrimSpace(i.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if i.Date.IsZero() {
		return ErrInvalidDate
	}
	if i.Date.After(now) {
		return ErrFutureDate
	}
	return nil
}

func (d Debt) Validate() error {
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Person) == "" {
		return errors.New("empty person")
	}
	switch d.Kind {
	case DebtReceivable, DebtPayable:
	default:
		return ErrInvalidDebtKind
	}
	return nil
}

// Remaining returns the unpaid portion of the debt.
func (d Debt) Remaining() Money {
	return Money{Cents: d.Amount.Cents - d.PaidAmount.Cents}
}

func (c Card) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return errors.New("empty card name")
	}
	if strings.TrimSpace(c.Bank) == "" {
		return errors.New("empty bank name")
	}
	if c.Limit.Cents < 0 {
		return ErrInvalidAmount
	}
	if c.CloseDay < 0 || c.CloseDay > 31 {
		return errors.New("close day must be between 1 and 31")
	}
	if c.DueDay < 0 || c.DueDay > 31 {
		return errors.New("due day must be between 1 and 31")
	}
	return nil
}

func (c Category) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return errors.New("empty category name")
	}
	return nil
}

// NewDate builds a UTC date at midnight, the canonical representation for all
// ledger dates.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
