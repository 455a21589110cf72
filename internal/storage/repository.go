package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finly/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// --- Purchases ---

func (r *SQLiteRepository) CreatePurchase(ctx context.Context, p core.Purchase) (core.Purchase, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO purchases (description, amount_cents, category_id, payment_method,
			purchase_date, installments, installments_paid, card_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Description, p.Amount.Cents, p.CategoryID, string(p.PaymentMethod),
		formatDate(p.Date), p.Installments, p.InstallmentsPaid, p.CardID)
	if err != nil {
		return core.Purchase{}, fmt.Errorf("create purchase: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Purchase{}, fmt.Errorf("purchase last insert id: %w", err)
	}
	p.ID = id

	slog.InfoContext(ctx, "Purchase saved",
		"id", p.ID,
		"description", p.Description,
		"amount_cents", p.Amount.Cents,
		"payment_method", p.PaymentMethod,
		"installments", p.Installments)

	return p, nil
}

func (r *SQLiteRepository) GetPurchase(ctx context.Context, id int64) (core.Purchase, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, description, amount_cents, category_id, payment_method,
			purchase_date, installments, installments_paid, card_id
		FROM purchases WHERE id = ?`, id)

	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Purchase{}, fmt.Errorf("purchase %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPurchases(ctx context.Context) ([]core.Purchase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount_cents, category_id, payment_method,
			purchase_date, installments, installments_paid, card_id
		FROM purchases ORDER BY purchase_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	return collectPurchases(rows)
}

// ListPurchasesByMonth returns purchases whose purchase date falls inside the
// given month. Dates are stored as ISO text so a prefix match is enough.
func (r *SQLiteRepository) ListPurchasesByMonth(ctx context.Context, year int, month time.Month) ([]core.Purchase, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount_cents, category_id, payment_method,
			purchase_date, installments, installments_paid, card_id
		FROM purchases WHERE purchase_date LIKE ? || '%'
		ORDER BY purchase_date DESC, id DESC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list purchases by month: %w", err)
	}
	defer rows.Close()

	return collectPurchases(rows)
}

// ListCardPurchases returns the installment purchases charged to a card.
func (r *SQLiteRepository) ListCardPurchases(ctx context.Context, cardID int64) ([]core.Purchase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount_cents, category_id, payment_method,
			purchase_date, installments, installments_paid, card_id
		FROM purchases WHERE card_id = ? AND payment_method = 'credit'
		ORDER BY purchase_date, id`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card purchases: %w", err)
	}
	defer rows.Close()

	return collectPurchases(rows)
}

func (r *SQLiteRepository) DeletePurchase(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("purchase %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Purchase deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) UpdateInstallmentsPaid(ctx context.Context, id int64, paid int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchases SET installments_paid = ? WHERE id = ?`, paid, id)
	if err != nil {
		return fmt.Errorf("update installments paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("purchase %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Installments paid updated", "id", id, "installments_paid", paid)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (core.Purchase, error) {
	var (
		p      core.Purchase
		method string
		date   string
	)
	if err := row.Scan(&p.ID, &p.Description, &p.Amount.Cents, &p.CategoryID,
		&method, &date, &p.Installments, &p.InstallmentsPaid, &p.CardID); err != nil {
		return core.Purchase{}, err
	}
	p.PaymentMethod = core.PaymentMethod(method)

	d, err := parseDate(date)
	if err != nil {
		return core.Purchase{}, fmt.Errorf("parse purchase date %q: %w", date, err)
	}
	p.Date = d
	return p, nil
}

func collectPurchases(rows *sql.Rows) ([]core.Purchase, error) {
	var purchases []core.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return purchases, nil
}

// --- Cards ---

func (r *SQLiteRepository) CreateCard(ctx context.Context, c core.Card) (core.Card, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO cards (name, bank, limit_cents, used_cents, available_cents, close_day, due_day)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Bank, c.Limit.Cents, c.UsedBalance.Cents, c.AvailableBalance.Cents,
		nullableDay(c.CloseDay), nullableDay(c.DueDay))
	if err != nil {
		return core.Card{}, fmt.Errorf("create card: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Card{}, fmt.Errorf("card last insert id: %w", err)
	}
	c.ID = id

	slog.InfoContext(ctx, "Card saved",
		"id", c.ID,
		"name", c.Name,
		"bank", c.Bank,
		"close_day", c.CloseDay,
		"due_day", c.DueDay)

	return c, nil
}

func (r *SQLiteRepository) GetCard(ctx context.Context, id int64) (core.Card, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, bank, limit_cents, used_cents, available_cents, close_day, due_day
		FROM cards WHERE id = ?`, id)

	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Card{}, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCards(ctx context.Context) ([]core.Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, bank, limit_cents, used_cents, available_cents, close_day, due_day
		FROM cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []core.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

func (r *SQLiteRepository) UpdateCardBalance(ctx context.Context, id int64, used, available core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET used_cents = ?, available_cents = ? WHERE id = ?`,
		used.Cents, available.Cents, id)
	if err != nil {
		return fmt.Errorf("update card balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Card balance updated",
		"id", id,
		"used_cents", used.Cents,
		"available_cents", available.Cents)
	return nil
}

// UpdateCardBillingDays sets the statement close and payment due days for
// cards created before those fields existed.
func (r *SQLiteRepository) UpdateCardBillingDays(ctx context.Context, id int64, closeDay, dueDay int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET close_day = ?, due_day = ? WHERE id = ?`,
		nullableDay(closeDay), nullableDay(dueDay), id)
	if err != nil {
		return fmt.Errorf("update card billing days: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Card billing days updated",
		"id", id, "close_day", closeDay, "due_day", dueDay)
	return nil
}

// DeleteCard removes a card. Purchases keep their card reference; the
// scheduler skips purchases whose card no longer exists.
func (r *SQLiteRepository) DeleteCard(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Card deleted", "id", id)
	return nil
}

func nullableDay(day int) sql.NullInt64 {
	if day <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(day), Valid: true}
}

func scanCard(row rowScanner) (core.Card, error) {
	var (
		c        core.Card
		closeDay sql.NullInt64
		dueDay   sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Bank, &c.Limit.Cents,
		&c.UsedBalance.Cents, &c.AvailableBalance.Cents, &closeDay, &dueDay); err != nil {
		return core.Card{}, err
	}
	if closeDay.Valid {
		c.CloseDay = int(closeDay.Int64)
	}
	if dueDay.Valid {
		c.DueDay = int(dueDay.Int64)
	}
	return c, nil
}

// --- Incomes ---

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO incomes (description, amount_cents, income_date, source)
		VALUES (?, ?, ?, ?)`,
		in.Description, in.Amount.Cents, formatDate(in.Date), in.Source)
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Income{}, fmt.Errorf("income last insert id: %w", err)
	}
	in.ID = id

	slog.InfoContext(ctx, "Income saved",
		"id", in.ID,
		"description", in.Description,
		"amount_cents", in.Amount.Cents)

	return in, nil
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context) ([]core.Income, error) {
	return r.listIncomes(ctx, `
		SELECT id, description, amount_cents, income_date, source
		FROM incomes ORDER BY income_date DESC, id DESC`)
}

func (r *SQLiteRepository) ListIncomesByMonth(ctx context.Context, year int, month time.Month) ([]core.Income, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))
	return r.listIncomes(ctx, `
		SELECT id, description, amount_cents, income_date, source
		FROM incomes WHERE income_date LIKE ? || '%'
		ORDER BY income_date DESC, id DESC`, prefix)
}

func (r *SQLiteRepository) listIncomes(ctx context.Context, query string, args ...any) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var incomes []core.Income
	for rows.Next() {
		var (
			in   core.Income
			date string
		)
		if err := rows.Scan(&in.ID, &in.Description, &in.Amount.Cents, &date, &in.Source); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		d, err := parseDate(date)
		if err != nil {
			return nil, fmt.Errorf("parse income date %q: %w", date, err)
		}
		in.Date = d
		incomes = append(incomes, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incomes: %w", err)
	}
	return incomes, nil
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("income %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Debts ---

func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	var due any
	if !d.DueDate.IsZero() {
		due = formatDate(d.DueDate)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO debts (description, amount_cents, paid_cents, kind, person, debt_date, due_date, notes, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Description, d.Amount.Cents, d.PaidAmount.Cents, string(d.Kind),
		d.Person, formatDate(d.Date), due, d.Notes, string(d.Status))
	if err != nil {
		return core.Debt{}, fmt.Errorf("create debt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Debt{}, fmt.Errorf("debt last insert id: %w", err)
	}
	d.ID = id

	slog.InfoContext(ctx, "Debt saved",
		"id", d.ID,
		"description", d.Description,
		"kind", d.Kind,
		"amount_cents", d.Amount.Cents)

	return d, nil
}

func (r *SQLiteRepository) GetDebt(ctx context.Context, id int64) (core.Debt, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, description, amount_cents, paid_cents, kind, person, debt_date, due_date, notes, status
		FROM debts WHERE id = ?`, id)

	d, err := scanDebt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debt{}, fmt.Errorf("debt %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("get debt: %w", err)
	}

	payments, err := r.listDebtPayments(ctx, id)
	if err != nil {
		return core.Debt{}, err
	}
	d.Payments = payments
	return d, nil
}

func (r *SQLiteRepository) ListDebts(ctx context.Context) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount_cents, paid_cents, kind, person, debt_date, due_date, notes, status
		FROM debts ORDER BY debt_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var debts []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debts: %w", err)
	}
	return debts, nil
}

func (r *SQLiteRepository) AddDebtPayment(ctx context.Context, debtID int64, p core.DebtPayment) (core.DebtPayment, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO debt_payments (debt_id, amount_cents, payment_date, notes)
		VALUES (?, ?, ?, ?)`,
		debtID, p.Amount.Cents, formatDate(p.Date), p.Notes)
	if err != nil {
		return core.DebtPayment{}, fmt.Errorf("add debt payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.DebtPayment{}, fmt.Errorf("debt payment last insert id: %w", err)
	}
	p.ID = id

	slog.InfoContext(ctx, "Debt payment saved",
		"id", p.ID,
		"debt_id", debtID,
		"amount_cents", p.Amount.Cents)

	return p, nil
}

func (r *SQLiteRepository) UpdateDebtProgress(ctx context.Context, id int64, paid core.Money, status core.DebtStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET paid_cents = ?, status = ? WHERE id = ?`,
		paid.Cents, string(status), id)
	if err != nil {
		return fmt.Errorf("update debt progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("debt %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Debt progress updated",
		"id", id, "paid_cents", paid.Cents, "status", status)
	return nil
}

// DeleteDebt removes a debt; its payments go with it via ON DELETE CASCADE.
func (r *SQLiteRepository) DeleteDebt(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("debt %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Debt deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) listDebtPayments(ctx context.Context, debtID int64) ([]core.DebtPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, payment_date, notes
		FROM debt_payments WHERE debt_id = ? ORDER BY payment_date, id`, debtID)
	if err != nil {
		return nil, fmt.Errorf("list debt payments: %w", err)
	}
	defer rows.Close()

	var payments []core.DebtPayment
	for rows.Next() {
		var (
			p    core.DebtPayment
			date string
		)
		if err := rows.Scan(&p.ID, &p.Amount.Cents, &date, &p.Notes); err != nil {
			return nil, fmt.Errorf("scan debt payment: %w", err)
		}
		d, err := parseDate(date)
		if err != nil {
			return nil, fmt.Errorf("parse payment date %q: %w", date, err)
		}
		p.Date = d
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debt payments: %w", err)
	}
	return payments, nil
}

func scanDebt(row rowScanner) (core.Debt, error) {
	var (
		d      core.Debt
		kind   string
		status string
		date   string
		due    sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Description, &d.Amount.Cents, &d.PaidAmount.Cents,
		&kind, &d.Person, &date, &due, &d.Notes, &status); err != nil {
		return core.Debt{}, err
	}
	d.Kind = core.DebtKind(kind)
	d.Status = core.DebtStatus(status)

	parsed, err := parseDate(date)
	if err != nil {
		return core.Debt{}, fmt.Errorf("parse debt date %q: %w", date, err)
	}
	d.Date = parsed

	if due.Valid && due.String != "" {
		dueDate, err := parseDate(due.String)
		if err != nil {
			return core.Debt{}, fmt.Errorf("parse debt due date %q: %w", due.String, err)
		}
		d.DueDate = dueDate
	}
	return d, nil
}

// --- Categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, emoji) VALUES (?, ?)`, c.Name, c.Emoji)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category last insert id: %w", err)
	}
	c.ID = id
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, emoji FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Emoji); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}
