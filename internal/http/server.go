// Package http exposes the JSON API over the purchase, debt and overview
// services.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"finly/internal/cache"
	"finly/internal/core"
	"finly/internal/export"
	applog "finly/internal/log"
	"finly/internal/middleware/ratelimit"
	"finly/internal/middleware/security"
	"finly/internal/middleware/trace"
	"finly/internal/schedule"
)

// Store is the read/write surface the handlers use directly. Purchase and
// debt mutations go through the services instead so events and status
// transitions are not bypassed.
type Store interface {
	GetPurchase(ctx context.Context, id int64) (core.Purchase, error)
	ListPurchases(ctx context.Context) ([]core.Purchase, error)
	ListPurchasesByMonth(ctx context.Context, year int, month time.Month) ([]core.Purchase, error)

	CreateCard(ctx context.Context, c core.Card) (core.Card, error)
	GetCard(ctx context.Context, id int64) (core.Card, error)
	ListCards(ctx context.Context) ([]core.Card, error)
	UpdateCardBillingDays(ctx context.Context, id int64, closeDay, dueDay int) error
	DeleteCard(ctx context.Context, id int64) error

	CreateIncome(ctx context.Context, in core.Income) (core.Income, error)
	ListIncomes(ctx context.Context) ([]core.Income, error)
	ListIncomesByMonth(ctx context.Context, year int, month time.Month) ([]core.Income, error)
	DeleteIncome(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// PurchaseAPI covers the purchase service operations the handlers call.
type PurchaseAPI interface {
	CreatePurchase(ctx context.Context, p core.Purchase, now time.Time) (core.Purchase, error)
	DeletePurchase(ctx context.Context, id int64) error
	PayInstallment(ctx context.Context, id int64) (core.Purchase, error)
}

// DebtAPI covers the debt service operations the handlers call.
type DebtAPI interface {
	CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error)
	GetDebt(ctx context.Context, id int64) (core.Debt, error)
	ListDebts(ctx context.Context) ([]core.Debt, error)
	AddPayment(ctx context.Context, debtID int64, payment core.DebtPayment) (core.Debt, error)
	DeleteDebt(ctx context.Context, id int64) error
}

// OverviewAPI covers the reporting operations the handlers call.
type OverviewAPI interface {
	MonthOverview(ctx context.Context, period schedule.Period) (core.MonthOverview, error)
	CardSchedules(ctx context.Context, period schedule.Period) ([]schedule.CardSchedule, error)
	Upcoming(ctx context.Context, asOf time.Time) ([]schedule.Occurrence, error)
}

type Server struct {
	http.Server

	store     Store
	purchases PurchaseAPI
	debts     DebtAPI
	overview  OverviewAPI

	// ledger is nil when export is disabled.
	ledger export.LedgerReader

	limiter  *ratelimit.Limiter
	detector *security.Detector

	// Reporting responses are cached per period and purged wholesale on any
	// mutation, since an installment purchase touches months far from its
	// purchase date.
	overviewCache *cache.LRUCache[core.MonthOverview]
	scheduleCache *cache.LRUCache[[]schedule.CardSchedule]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once

	// now is swappable in tests.
	now func() time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store Store, purchases PurchaseAPI, debts DebtAPI, overview OverviewAPI, ledger export.LedgerReader) *Server {
	mux := http.NewServeMux()

	s := &Server{
		store:         store,
		purchases:     purchases,
		debts:         debts,
		overview:      overview,
		ledger:        ledger,
		limiter:       ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:      security.NewDetector(),
		overviewCache: cache.NewLRUCache[core.MonthOverview](100, 5*time.Minute),
		scheduleCache: cache.NewLRUCache[[]schedule.CardSchedule](100, 5*time.Minute),
		cacheManager:  cache.NewManager(),
		now:           time.Now,
	}

	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.Register(s.scheduleCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/purchases", s.handleCreatePurchase)
	mux.HandleFunc("GET /api/purchases", s.handleListPurchases)
	mux.HandleFunc("GET /api/purchases/{id}", s.handleGetPurchase)
	mux.HandleFunc("DELETE /api/purchases/{id}", s.handleDeletePurchase)
	mux.HandleFunc("POST /api/purchases/{id}/pay", s.handlePayInstallment)

	mux.HandleFunc("GET /api/cards", s.handleListCards)
	mux.HandleFunc("POST /api/cards", s.handleCreateCard)
	mux.HandleFunc("PUT /api/cards/{id}/billing-days", s.handleUpdateBillingDays)
	mux.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard)

	mux.HandleFunc("GET /api/incomes", s.handleListIncomes)
	mux.HandleFunc("POST /api/incomes", s.handleCreateIncome)
	mux.HandleFunc("DELETE /api/incomes/{id}", s.handleDeleteIncome)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/debts", s.handleListDebts)
	mux.HandleFunc("POST /api/debts", s.handleCreateDebt)
	mux.HandleFunc("GET /api/debts/{id}", s.handleGetDebt)
	mux.HandleFunc("DELETE /api/debts/{id}", s.handleDeleteDebt)
	mux.HandleFunc("POST /api/debts/{id}/payments", s.handleAddDebtPayment)

	mux.HandleFunc("GET /api/export", s.handleExportedMonth)

	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/installments", s.handleInstallments)
	mux.HandleFunc("GET /api/installments/upcoming", s.handleUpcoming)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP)

	handler := tracer.Middleware(headers.Middleware(s.detect(s.limitMutations(mux))))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// limitMutations rate limits write requests per client IP. Reads stay
// unlimited; the caches keep them cheap.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			if !s.limiter.Allow(s.detector.ExtractClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// detect logs requests matching known probe patterns. Detection is
// observability only, suspicious requests still go through the normal routes.
func (s *Server) detect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			fields := applog.NewFields().
				WithComponent(applog.ComponentSecurity).
				WithClientIP(s.detector.ExtractClientIP(r)).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer"))
			slog.WarnContext(r.Context(), "Suspicious request detected", fields.ToSlice()...)
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// invalidateReports drops every cached reporting response.
func (s *Server) invalidateReports() {
	s.overviewCache.Purge()
	s.scheduleCache.Purge()
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.ListCategories(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
