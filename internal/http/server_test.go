package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finly/internal/core"
	memexport "finly/internal/export/memory"
	"finly/internal/schedule"
	"finly/internal/storage"
)

var testNow = core.NewDate(2024, time.June, 15)

// fakeBackend implements Store, PurchaseAPI, DebtAPI and OverviewAPI with
// in-memory maps so handler behavior can be tested without SQLite or AMQP.
type fakeBackend struct {
	purchases  map[int64]core.Purchase
	cards      map[int64]core.Card
	incomes    map[int64]core.Income
	debts      map[int64]core.Debt
	categories map[int64]core.Category
	nextID     int64

	overview  core.MonthOverview
	schedules []schedule.CardSchedule
	upcoming  []schedule.Occurrence

	overviewCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		purchases:  make(map[int64]core.Purchase),
		cards:      make(map[int64]core.Card),
		incomes:    make(map[int64]core.Income),
		debts:      make(map[int64]core.Debt),
		categories: make(map[int64]core.Category),
	}
}

func (f *fakeBackend) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeBackend) CreatePurchase(ctx context.Context, p core.Purchase, now time.Time) (core.Purchase, error) {
	if err := p.Validate(now); err != nil {
		return core.Purchase{}, err
	}
	if p.PaymentMethod == core.PaymentCredit {
		card, ok := f.cards[p.CardID]
		if !ok {
			return core.Purchase{}, fmt.Errorf("card %d: %w", p.CardID, storage.ErrNotFound)
		}
		if err := p.CheckCredit(card); err != nil {
			return core.Purchase{}, err
		}
	}
	p.ID = f.id()
	f.purchases[p.ID] = p
	return p, nil
}

func (f *fakeBackend) DeletePurchase(ctx context.Context, id int64) error {
	if _, ok := f.purchases[id]; !ok {
		return fmt.Errorf("purchase %d: %w", id, storage.ErrNotFound)
	}
	delete(f.purchases, id)
	return nil
}

func (f *fakeBackend) PayInstallment(ctx context.Context, id int64) (core.Purchase, error) {
	p, ok := f.purchases[id]
	if !ok {
		return core.Purchase{}, fmt.Errorf("purchase %d: %w", id, storage.ErrNotFound)
	}
	updated, err := schedule.MarkInstallmentPaid(p)
	if err != nil {
		return core.Purchase{}, err
	}
	f.purchases[id] = updated
	return updated, nil
}

func (f *fakeBackend) GetPurchase(ctx context.Context, id int64) (core.Purchase, error) {
	p, ok := f.purchases[id]
	if !ok {
		return core.Purchase{}, fmt.Errorf("purchase %d: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (f *fakeBackend) ListPurchases(ctx context.Context) ([]core.Purchase, error) {
	out := make([]core.Purchase, 0, len(f.purchases))
	for _, p := range f.purchases {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeBackend) ListPurchasesByMonth(ctx context.Context, year int, month time.Month) ([]core.Purchase, error) {
	var out []core.Purchase
	for _, p := range f.purchases {
		if p.Date.Year() == year && p.Date.Month() == month {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateCard(ctx context.Context, c core.Card) (core.Card, error) {
	c.ID = f.id()
	f.cards[c.ID] = c
	return c, nil
}

func (f *fakeBackend) GetCard(ctx context.Context, id int64) (core.Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return core.Card{}, fmt.Errorf("card %d: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (f *fakeBackend) ListCards(ctx context.Context) ([]core.Card, error) {
	out := make([]core.Card, 0, len(f.cards))
	for _, c := range f.cards {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) UpdateCardBillingDays(ctx context.Context, id int64, closeDay, dueDay int) error {
	c, ok := f.cards[id]
	if !ok {
		return fmt.Errorf("card %d: %w", id, storage.ErrNotFound)
	}
	c.CloseDay = closeDay
	c.DueDay = dueDay
	f.cards[id] = c
	return nil
}

func (f *fakeBackend) DeleteCard(ctx context.Context, id int64) error {
	if _, ok := f.cards[id]; !ok {
		return fmt.Errorf("card %d: %w", id, storage.ErrNotFound)
	}
	delete(f.cards, id)
	return nil
}

func (f *fakeBackend) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	in.ID = f.id()
	f.incomes[in.ID] = in
	return in, nil
}

func (f *fakeBackend) ListIncomes(ctx context.Context) ([]core.Income, error) {
	out := make([]core.Income, 0, len(f.incomes))
	for _, in := range f.incomes {
		out = append(out, in)
	}
	return out, nil
}

func (f *fakeBackend) ListIncomesByMonth(ctx context.Context, year int, month time.Month) ([]core.Income, error) {
	var out []core.Income
	for _, in := range f.incomes {
		if in.Date.Year() == year && in.Date.Month() == month {
			out = append(out, in)
		}
	}
	return out, nil
}

func (f *fakeBackend) DeleteIncome(ctx context.Context, id int64) error {
	if _, ok := f.incomes[id]; !ok {
		return fmt.Errorf("income %d: %w", id, storage.ErrNotFound)
	}
	delete(f.incomes, id)
	return nil
}

func (f *fakeBackend) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = f.id()
	f.categories[c.ID] = c
	return c, nil
}

func (f *fakeBackend) ListCategories(ctx context.Context) ([]core.Category, error) {
	out := make([]core.Category, 0, len(f.categories))
	for _, c := range f.categories {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := f.categories[id]; !ok {
		return fmt.Errorf("category %d: %w", id, storage.ErrNotFound)
	}
	delete(f.categories, id)
	return nil
}

func (f *fakeBackend) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	d.ID = f.id()
	d.Status = core.StatusPending
	f.debts[d.ID] = d
	return d, nil
}

func (f *fakeBackend) GetDebt(ctx context.Context, id int64) (core.Debt, error) {
	d, ok := f.debts[id]
	if !ok {
		return core.Debt{}, fmt.Errorf("debt %d: %w", id, storage.ErrNotFound)
	}
	return d, nil
}

func (f *fakeBackend) ListDebts(ctx context.Context) ([]core.Debt, error) {
	out := make([]core.Debt, 0, len(f.debts))
	for _, d := range f.debts {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeBackend) DeleteDebt(ctx context.Context, id int64) error {
	if _, ok := f.debts[id]; !ok {
		return fmt.Errorf("debt %d: %w", id, storage.ErrNotFound)
	}
	delete(f.debts, id)
	return nil
}

func (f *fakeBackend) AddPayment(ctx context.Context, debtID int64, payment core.DebtPayment) (core.Debt, error) {
	d, ok := f.debts[debtID]
	if !ok {
		return core.Debt{}, fmt.Errorf("debt %d: %w", debtID, storage.ErrNotFound)
	}
	if payment.Amount.Cents > d.Remaining().Cents {
		return core.Debt{}, core.ErrDebtOverpayment
	}
	d.PaidAmount.Cents += payment.Amount.Cents
	d.Payments = append(d.Payments, payment)
	if d.PaidAmount.Cents >= d.Amount.Cents {
		d.Status = core.StatusPaid
	} else {
		d.Status = core.StatusPartial
	}
	f.debts[debtID] = d
	return d, nil
}

func (f *fakeBackend) MonthOverview(ctx context.Context, period schedule.Period) (core.MonthOverview, error) {
	f.overviewCalls++
	return f.overview, nil
}

func (f *fakeBackend) CardSchedules(ctx context.Context, period schedule.Period) ([]schedule.CardSchedule, error) {
	return f.schedules, nil
}

func (f *fakeBackend) Upcoming(ctx context.Context, asOf time.Time) ([]schedule.Occurrence, error) {
	return f.upcoming, nil
}

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	srv := NewServer(":0", backend, backend, backend, backend, nil)
	srv.now = func() time.Time { return testNow }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, backend
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := doRequest(srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec := doRequest(srv, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
}

func TestCreatePurchase(t *testing.T) {
	srv, backend := newTestServer(t)

	card := core.Card{Name: "Visa", Bank: "BBVA", Limit: core.Money{Cents: 100000000}, AvailableBalance: core.Money{Cents: 100000000}}
	card, _ = backend.CreateCard(context.Background(), card)

	body := fmt.Sprintf(`{"description":"TV","amount":"300000.00","payment_method":"credit","date":"2024-06-10","installments":3,"card_id":%d}`, card.ID)
	rec := doRequest(srv, http.MethodPost, "/api/purchases", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp purchaseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.AmountCents != 30000000 {
		t.Errorf("AmountCents = %d, want 30000000", resp.AmountCents)
	}
	if resp.Installments != 3 || resp.InstallmentsPaid != 0 {
		t.Errorf("installments = %d/%d, want 3/0", resp.InstallmentsPaid, resp.Installments)
	}
	if resp.Date != "2024-06-10" {
		t.Errorf("Date = %q, want 2024-06-10", resp.Date)
	}
}

func TestCreatePurchaseValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "malformed json",
			body: `{"description":`,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown field",
			body: `{"description":"x","amount":"10","payment_method":"cash","date":"2024-06-01","typo_field":1}`,
			want: http.StatusBadRequest,
		},
		{
			name: "bad amount",
			body: `{"description":"x","amount":"abc","payment_method":"cash","date":"2024-06-01"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "future date",
			body: `{"description":"x","amount":"10","payment_method":"cash","date":"2030-01-01"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "credit without card",
			body: `{"description":"x","amount":"10","payment_method":"credit","date":"2024-06-01","installments":3}`,
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/purchases", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPayInstallmentConflict(t *testing.T) {
	srv, backend := newTestServer(t)

	backend.purchases[1] = core.Purchase{
		ID: 1, Description: "TV", Amount: core.Money{Cents: 30000000},
		PaymentMethod: core.PaymentCredit, Date: core.NewDate(2024, time.May, 1),
		Installments: 2, InstallmentsPaid: 0, CardID: 9,
	}
	backend.nextID = 1

	for i := 0; i < 2; i++ {
		rec := doRequest(srv, http.MethodPost, "/api/purchases/1/pay", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("pay %d status = %d, body = %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(srv, http.MethodPost, "/api/purchases/1/pay", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("overpay status = %d, want 409", rec.Code)
	}
}

func TestGetPurchaseNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := doRequest(srv, http.MethodGet, "/api/purchases/42", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := doRequest(srv, http.MethodGet, "/api/purchases/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestDeletePurchase(t *testing.T) {
	srv, backend := newTestServer(t)

	backend.purchases[1] = core.Purchase{ID: 1, Description: "x", Amount: core.Money{Cents: 100}}
	if rec := doRequest(srv, http.MethodDelete, "/api/purchases/1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := doRequest(srv, http.MethodDelete, "/api/purchases/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestUpdateBillingDays(t *testing.T) {
	srv, backend := newTestServer(t)

	card, _ := backend.CreateCard(context.Background(), core.Card{Name: "Visa", Bank: "BBVA", Limit: core.Money{Cents: 1000}})

	rec := doRequest(srv, http.MethodPut, fmt.Sprintf("/api/cards/%d/billing-days", card.ID), `{"close_day":15,"due_day":25}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp cardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.CloseDay != 15 || resp.DueDay != 25 {
		t.Errorf("billing days = %d/%d, want 15/25", resp.CloseDay, resp.DueDay)
	}

	rec = doRequest(srv, http.MethodPut, fmt.Sprintf("/api/cards/%d/billing-days", card.ID), `{"close_day":32,"due_day":25}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("out of range status = %d, want 422", rec.Code)
	}
}

func TestDebtLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/debts", `{"description":"loan","amount":"1000.00","kind":"receivable","person":"Ana","date":"2024-06-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created debtResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Status != "pending" || created.RemainingCents != 100000 {
		t.Errorf("created = %+v, want pending with 100000 remaining", created)
	}

	rec = doRequest(srv, http.MethodPost, fmt.Sprintf("/api/debts/%d/payments", created.ID), `{"amount":"400.00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("payment status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var partial debtResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &partial); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if partial.Status != "partial" || partial.RemainingCents != 60000 {
		t.Errorf("after payment = %+v, want partial with 60000 remaining", partial)
	}

	rec = doRequest(srv, http.MethodPost, fmt.Sprintf("/api/debts/%d/payments", created.ID), `{"amount":"700.00"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("overpayment status = %d, want 422", rec.Code)
	}
}

func TestDeleteEndpoints(t *testing.T) {
	srv, backend := newTestServer(t)

	card, _ := backend.CreateCard(context.Background(), core.Card{Name: "Visa", Bank: "BBVA"})
	income, _ := backend.CreateIncome(context.Background(), core.Income{Description: "salary", Amount: core.Money{Cents: 100}})
	category, _ := backend.CreateCategory(context.Background(), core.Category{Name: "Comida"})
	debt, _ := backend.CreateDebt(context.Background(), core.Debt{
		Description: "loan", Amount: core.Money{Cents: 100}, Kind: core.DebtPayable, Person: "Ana",
	})

	paths := []string{
		fmt.Sprintf("/api/cards/%d", card.ID),
		fmt.Sprintf("/api/incomes/%d", income.ID),
		fmt.Sprintf("/api/categories/%d", category.ID),
		fmt.Sprintf("/api/debts/%d", debt.ID),
	}
	for _, path := range paths {
		if rec := doRequest(srv, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
			t.Errorf("DELETE %s status = %d, want 204", path, rec.Code)
		}
		if rec := doRequest(srv, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("second DELETE %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestOverviewCaching(t *testing.T) {
	srv, backend := newTestServer(t)
	backend.overview = core.MonthOverview{Year: 2024, Month: 6, TotalIncome: core.Money{Cents: 5000}}

	for i := 0; i < 3; i++ {
		rec := doRequest(srv, http.MethodGet, "/api/overview?year=2024&month=6", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if backend.overviewCalls != 1 {
		t.Errorf("overviewCalls = %d, want 1 (cached afterwards)", backend.overviewCalls)
	}

	// Any mutation purges the report caches.
	doRequest(srv, http.MethodPost, "/api/incomes", `{"description":"salary","amount":"100.00","date":"2024-06-01"}`)
	doRequest(srv, http.MethodGet, "/api/overview?year=2024&month=6", "")
	if backend.overviewCalls != 2 {
		t.Errorf("overviewCalls after mutation = %d, want 2", backend.overviewCalls)
	}
}

func TestOverviewInvalidPeriod(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := doRequest(srv, http.MethodGet, "/api/overview?month=13", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("month=13 status = %d, want 400", rec.Code)
	}
	if rec := doRequest(srv, http.MethodGet, "/api/overview?year=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("year=abc status = %d, want 400", rec.Code)
	}
}

func TestUpcomingInstallments(t *testing.T) {
	srv, backend := newTestServer(t)
	backend.upcoming = []schedule.Occurrence{
		{PurchaseID: 1, CardID: 2, Index: 1, DueDate: core.NewDate(2024, time.July, 10), Amount: 100000.0, Description: "TV"},
	}

	rec := doRequest(srv, http.MethodGet, "/api/installments/upcoming", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var occs []occurrenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &occs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(occs) != 1 || occs[0].DueDate != "2024-07-10" {
		t.Errorf("occurrences = %+v, want one due 2024-07-10", occs)
	}
}

func TestExportedLedger(t *testing.T) {
	backend := newFakeBackend()
	ledger := memexport.New()
	if _, err := ledger.Append(context.Background(), core.Purchase{
		Description:   "TV",
		Amount:        core.Money{Cents: 30000000},
		PaymentMethod: core.PaymentCredit,
		Date:          core.NewDate(2024, time.June, 10),
		Installments:  3,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	srv := NewServer(":0", backend, backend, backend, backend, ledger)
	srv.now = func() time.Time { return testNow }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	rec := doRequest(srv, http.MethodGet, "/api/export?year=2024&month=6", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rows []purchaseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 1 || rows[0].AmountCents != 30000000 {
		t.Errorf("rows = %+v, want one row of 30000000 cents", rows)
	}

	rec = doRequest(srv, http.MethodGet, "/api/export?year=2024&month=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty month status = %d", rec.Code)
	}
	rows = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %+v, want none", rows)
	}

	if rec := doRequest(srv, http.MethodGet, "/api/export?year=2024", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing month status = %d, want 400", rec.Code)
	}
}

func TestExportedLedgerDisabled(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := doRequest(srv, http.MethodGet, "/api/export?year=2024&month=6", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
